package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastprodman/stargiver/internal/infra/ratelimit"
	"github.com/fastprodman/stargiver/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the router dispatches to.
type Services struct {
	Ledger   Ledger
	Games    Games
	Payments Payments
	Guard    Guard
	Health   Pinger
	Metrics  *metrics.Metrics
	// CheckLimiter throttles payment checks per user; nil means unlimited.
	CheckLimiter *ratelimit.Limiter
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(s Services) http.Handler {
	h := NewHandler(s)
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.Metrics.Instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		err := s.Health.Ping(r.Context())
		if err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "store unavailable")

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Get("/tiers", h.TiersHandler)
	r.Get("/packages", h.PackagesHandler)

	r.Route("/users/{userId}", func(r chi.Router) {
		r.Post("/", h.RegisterHandler)
		r.Get("/", h.ProfileHandler)
		r.Get("/session", h.GetSessionHandler)
		r.Delete("/session", h.ExitSessionHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSubscription)

			r.Post("/daily", h.ClaimDailyHandler)
			r.Post("/session", h.StartSessionHandler)
			r.Post("/session/picks", h.PickCellHandler)
			r.Post("/purchases", h.PurchaseHandler)
			r.With(h.limitChecks).Post("/purchases/{invoiceId}/check", h.CheckPaymentHandler)
		})
	})

	return r
}
