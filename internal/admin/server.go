package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/service"
)

// Notifier delivers a text message to every reachable user.
type Notifier interface {
	Broadcast(ctx context.Context, message string) (sent, total int, err error)
}

// Handler serves the operator endpoints behind HTTP basic auth. It is mounted
// under /admin by the API server.
type Handler struct {
	username string
	password string
	log      *slog.Logger
	users    *service.UserService
	ledger   *service.Ledger
	promos   *service.PromoService
	notifier Notifier
	router   *chi.Mux
}

// NewHandler wires the admin routes. notifier may be nil when no bot is running.
func NewHandler(username, password string, log *slog.Logger, users *service.UserService, ledger *service.Ledger, promos *service.PromoService, notifier Notifier) *Handler {
	r := chi.NewRouter()

	h := &Handler{
		username: username,
		password: password,
		log:      log,
		users:    users,
		ledger:   ledger,
		promos:   promos,
		notifier: notifier,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(h.basicAuthMiddleware())
		protected.Post("/broadcast", h.handleBroadcast)
		protected.Post("/credits/grant", h.handleGrantCredits)
		protected.Get("/credits/{userID}/history", h.handleCreditHistory)
		protected.Route("/users", func(r chi.Router) {
			r.Get("/", h.handleListUsers)
			r.Post("/", h.handleCreateUser)
			r.Put("/{id}/plan", h.handleChangePlan)
		})
		protected.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", h.handleListPromos)
			r.Post("/", h.handleCreatePromo)
			r.Put("/{id}", h.handleUpdatePromo)
			r.Delete("/{id}", h.handleDeletePromo)
		})
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil {
		http.Error(w, "telegram bot is not running", http.StatusServiceUnavailable)
		return
	}
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	sent, total, err := h.notifier.Broadcast(r.Context(), req.Message)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  sent,
		"total": total,
	})
}

type grantRequest struct {
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "Manual top-up"
	}
	balance, err := h.ledger.TopUp(r.Context(), strings.TrimSpace(req.UserID), req.Amount, desc, models.JSONMap{"source": "admin"})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Info("credits granted", "user_id", req.UserID, "amount", req.Amount, "balance", balance)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id":           req.UserID,
		"remaining_credits": balance,
	})
}

func (h *Handler) handleCreditHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.ledger.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

type userRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := h.users.List(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	user, err := h.users.Create(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

type planRequest struct {
	PlanTier string `json:"plan_tier"`
}

func (h *Handler) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	tier := models.PlanTier(strings.ToUpper(strings.TrimSpace(req.PlanTier)))
	sub, err := h.ledger.ChangePlan(r.Context(), chi.URLParam(r, "id"), tier)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

type promoRequest struct {
	Code         string `json:"code"`
	MaxUses      int    `json:"max_uses"`
	BonusCredits int    `json:"bonus_credits"`
}

type promoUpdateRequest struct {
	MaxUses      *int `json:"max_uses"`
	BonusCredits *int `json:"bonus_credits"`
}

func (h *Handler) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promos.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, promos)
}

func (h *Handler) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.MaxUses <= 0 {
		http.Error(w, "code and max_uses required", http.StatusBadRequest)
		return
	}
	promo, err := h.promos.Create(r.Context(), req.Code, req.MaxUses, req.BonusCredits)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, promo)
}

func (h *Handler) handleUpdatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	maxUses, bonus := 0, 0
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}
	if req.BonusCredits != nil {
		bonus = *req.BonusCredits
	}
	promo, err := h.promos.UpdateLimits(r.Context(), chi.URLParam(r, "id"), maxUses, bonus)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, promo)
}

func (h *Handler) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	if err := h.promos.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !equal(user, h.username) || !equal(pass, h.password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="designforge"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail answers with the error's public message. Server errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch service.CodeOf(err) {
	case service.CodeValidation:
		http.Error(w, service.PublicMessage(err), http.StatusBadRequest)
	case service.CodeNotFound:
		http.Error(w, service.PublicMessage(err), http.StatusNotFound)
	default:
		h.log.Error("admin handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
