package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/designforge/internal/service"
)

type errorBody struct {
	Code  service.Code `json:"code,omitempty"`
	Error string       `json:"error"`
}

func statusFor(code service.Code) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case service.CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {code, error}. Unexpected failures are logged with
// the route and user but only the generic message leaves the server.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.CodeOf(err)
	s.logFailure(r, code, err)
	writeJSON(w, statusFor(code), errorBody{Code: code, Error: service.PublicMessage(err)})
}

// writeBareError answers with {error} only, the shape order transitions use.
func (s *Server) writeBareError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.CodeOf(err)
	s.logFailure(r, code, err)
	writeJSON(w, statusFor(code), errorBody{Error: service.PublicMessage(err)})
}

func (s *Server) logFailure(r *http.Request, code service.Code, err error) {
	if code != service.CodeServerError {
		return
	}
	op := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		op = rctx.RoutePattern()
	}
	s.log.Error("request failed", "op", op, "user_id", userIDFrom(r.Context()), "err", err)
}

func badJSON() error {
	return &service.Error{Code: service.CodeValidation, Message: "Request body must be valid JSON."}
}
