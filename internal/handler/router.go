package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"edu-coin-engine/internal/pkg/lock"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	LockWait       time.Duration // how long a request may queue behind another one from the same user
}

// NewRouter sets up the routes and middleware of the API.
func NewRouter(h *Handler, auth *Authenticator, locks *lock.UserLock, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging)
	r.Use(Recovery)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/balance", h.Balance)
		r.Get("/exams/results", h.ExamResults)
		r.Get("/coins/history", h.CoinHistory)
		r.Get("/store/items", h.StoreItems)
		r.Get("/store/redeemed", h.Redeemed)

		// economic writes, one at a time per user
		r.Group(func(r chi.Router) {
			r.Use(OnePerUser(locks, opts.LockWait))

			r.Post("/profile", h.Profile)
			r.Post("/exams/{courseID}/submit", h.SubmitExam)
			r.Post("/redeemItem", h.RedeemItem)
			r.Post("/reports", h.SubmitReport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not-found", Message: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method-not-allowed", Message: "Method not allowed."})
	})

	return r
}
