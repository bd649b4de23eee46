package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/designforge/internal/metrics"
	"github.com/digkill/designforge/internal/ratelimit"
	"github.com/digkill/designforge/internal/service"
)

// Services are the domain entry points the handlers call.
type Services struct {
	Users       *service.UserService
	Ledger      *service.Ledger
	Generations *service.GenerationService
	Variations  *service.VariationService
	Mockups     *service.MockupService
	Products    *service.ProductService
	Orders      *service.OrderService
	Promos      *service.PromoService
}

// Options configure the transport. Limiter, Uploader and Admin are optional.
type Options struct {
	Addr     string
	Sessions SessionResolver
	Limiter  *ratelimit.Limiter
	Uploader service.Uploader
	Admin    http.Handler
	Log      *slog.Logger
}

type Server struct {
	addr     string
	svc      Services
	sessions SessionResolver
	limiter  *ratelimit.Limiter
	uploader service.Uploader
	log      *slog.Logger
	router   *chi.Mux
}

func NewServer(opts Options, svc Services) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     opts.Addr,
		svc:      svc,
		sessions: opts.Sessions,
		limiter:  opts.Limiter,
		uploader: opts.Uploader,
		log:      opts.Log,
		router:   r,
	}
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.With(s.optionalUser).Post("/checkout", s.handleCheckout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.With(s.rateLimit("generate")).Post("/generations", s.handleGenerate)
			r.With(s.rateLimit("variation")).Post("/variations/actions", s.handleVariationAction)
			r.Get("/designs", s.handleLibrary)

			r.Get("/credits", s.handleBalance)
			r.Get("/credits/history", s.handleHistory)
			r.With(s.rateLimit("promo")).Post("/promo", s.handlePromo)
			r.With(s.rateLimit("upload")).Post("/references", s.handleReferenceUpload)

			r.Get("/mockups/{id}", s.handleGetMockup)
			r.Put("/mockups/{id}/state", s.handleSaveMockup)
			r.Post("/mockups/{id}/export", s.handleExportMockup)

			r.Post("/products/{id}/publish", s.handlePublishProduct)
			r.Post("/products/{id}/archive", s.handleArchiveProduct)

			r.Get("/orders", s.handleListOrders)
			r.Post("/orders/{id}/transitions", s.handleOrderTransition)
		})
	})

	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// instrument counts requests by route pattern and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessions.CurrentUserID(r)
		if !ok {
			s.writeError(w, r, &service.Error{Code: service.CodeUnauthorized, Message: "Sign in to continue."})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func (s *Server) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := s.sessions.CurrentUserID(r); ok {
			r = r.WithContext(withUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects callers over the per-minute budget for scope. Redis
// failures let the request through.
func (s *Server) rateLimit(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := s.limiter.Allow(r.Context(), scope, userIDFrom(r.Context()))
			if err != nil {
				s.log.Warn("rate limit check failed", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				metrics.RateLimited.WithLabelValues(scope).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "RateLimited", Error: "Too many requests. Please wait a moment."})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
