package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/designforge/internal/service"
	"github.com/digkill/designforge/internal/storage"
)

const (
	maxReferenceBytes = 10 << 20
	maxCanvasBytes    = 1 << 20
	maxJSONBytes      = 64 << 10
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &service.Error{Code: service.CodeValidation, Message: "Request body is too large."}
		}
		return badJSON()
	}
	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.svc.Generations.Generate(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleVariationAction(w http.ResponseWriter, r *http.Request) {
	var req service.ActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.svc.Variations.Apply(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	sub, err := s.svc.Ledger.Balance(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.svc.Ledger.History(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	designs, err := s.svc.Generations.Library(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, designs)
}

type promoRequest struct {
	Code string `json:"code"`
}

func (s *Server) handlePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	bonus, balance, err := s.svc.Promos.Apply(r.Context(), userIDFrom(r.Context()), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"bonusCredits":     bonus,
		"creditsRemaining": balance,
	})
}

// handleReferenceUpload stores a multipart "file" image and returns its URL
// for use as a generation reference.
func (s *Server) handleReferenceUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "Unavailable", Error: "Reference uploads are not configured."})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxReferenceBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, &service.Error{Code: service.CodeValidation, Message: "Attach an image up to 10 MB as \"file\"."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, &service.Error{Code: service.CodeValidation, Message: "Could not read the uploaded file."})
		return
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		s.writeError(w, r, &service.Error{Code: service.CodeValidation, Message: "Only image uploads are supported."})
		return
	}

	url, err := s.uploader.Upload(r.Context(), storage.FolderReferences, data, contentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) handleGetMockup(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Mockups.Get(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSaveMockup(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCanvasBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, &service.Error{Code: service.CodeValidation, Message: "Canvas document is too large."})
			return
		}
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.Mockups.SaveState(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type exportRequest struct {
	DPI int `json:"dpi"`
}

func (s *Server) handleExportMockup(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	view, err := s.svc.Mockups.Export(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), req.DPI)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePublishProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.Products.Publish(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleArchiveProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.svc.Products.Archive(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.BuyerID = userIDFrom(r.Context())
	order, err := s.svc.Orders.Checkout(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := s.svc.Orders.ListForSeller(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

type transitionRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleOrderTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeBareError(w, r, err)
		return
	}
	result, err := s.svc.Orders.Transition(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		s.writeBareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
