package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"motion-akademija-billing/internal/config"
	"motion-akademija-billing/internal/infra/logging"
	"motion-akademija-billing/internal/infra/redis"
	"motion-akademija-billing/internal/usecase"
)

// statusPollLimit caps result-page polling per merchant payment id.
const (
	statusPollLimit  = 30
	statusPollWindow = time.Minute
)

type Server struct {
	checkoutUC  usecase.CheckoutUseCase
	reconcileUC usecase.ReconcileUseCase
	subUC       usecase.SubscriptionUseCase
	limiter     *redis.RateLimiter
	frontend    config.FrontendConfig
	jwtSecret   string
	log         *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	reconcileUC usecase.ReconcileUseCase,
	subUC usecase.SubscriptionUseCase,
	limiter *redis.RateLimiter,
	frontend config.FrontendConfig,
	jwtSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		checkoutUC:  checkoutUC,
		reconcileUC: reconcileUC,
		subUC:       subUC,
		limiter:     limiter,
		frontend:    frontend,
		jwtSecret:   jwtSecret,
		log:         &l,
	}
}

// Router builds the HTTP routing tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/msu", func(r chi.Router) {
		r.Post("/create-session", s.createSessionHandler())
		// The gateway delivers callbacks as GET redirects and server-to-server
		// POSTs; both carry the same parameter set. The tighter timeout keeps
		// a stuck reconciliation from holding the gateway's delivery worker.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/callback", s.callbackHandler())
			r.Post("/callback", s.callbackHandler())
		})
		r.Get("/status/{merchantPaymentId}", s.statusHandler())
	})

	// Protected content sits behind the subscription gate; the SPA calls the
	// access endpoint before unlocking a lesson player.
	r.Route("/api/content", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.RequireSubscription)
		r.Get("/access", s.contentAccessHandler())
	})

	r.Route("/api/subscription", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/status", s.subscriptionStatusHandler())
		r.Get("/details", s.subscriptionDetailsHandler())
		r.Post("/cancel", s.cancelHandler())
		r.Post("/reactivate", s.reactivateHandler())
	})

	return r
}

// requestLogger threads the chi request id into the zerolog context and logs
// the request line on completion.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		ctx := logging.WithTraceID(r.Context(), reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.Info().
			Str("trace_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
