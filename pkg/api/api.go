package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/api/docs"
	"github.com/teliax/ringer-docs/pkg/auth"
	"github.com/teliax/ringer-docs/pkg/config"
	"github.com/teliax/ringer-docs/pkg/github"
	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/site"
	"github.com/teliax/ringer-docs/pkg/spec"
	"github.com/teliax/ringer-docs/pkg/store"
	"github.com/teliax/ringer-docs/pkg/syncer"
)

// Server is the HTTP server for the documentation pages and the JSON API.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Handler() http.Handler
	BroadcastSyncRun(run *store.SyncRun)
}

// Deps holds the collaborators of the server. Scheduler and GitHub may be
// nil when sync is not configured.
type Deps struct {
	Specs     *spec.Store
	Store     store.Store
	Scheduler syncer.Scheduler
	GitHub    github.Client
	Auth      auth.Service
	Site      *site.Handler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// server implements Server.
type server struct {
	log       logrus.FieldLogger
	cfg       *config.Config
	specs     *spec.Store
	store     store.Store
	scheduler syncer.Scheduler
	github    github.Client
	auth      auth.Service
	site      *site.Handler
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	hub       *Hub
	srv       *http.Server
	router    chi.Router

	publicRateLimiter *IPRateLimiter
	authRateLimiter   *IPRateLimiter
	cancel            context.CancelFunc
}

// Ensure server implements Server.
var _ Server = (*server)(nil)

// NewServer creates a new server.
func NewServer(log logrus.FieldLogger, cfg *config.Config, deps Deps) Server {
	s := &server{
		log:       log.WithField("component", "api"),
		cfg:       cfg,
		specs:     deps.Specs,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		github:    deps.GitHub,
		auth:      deps.Auth,
		site:      deps.Site,
		metrics:   deps.Metrics,
		gatherer:  deps.Gatherer,
		hub:       NewHub(log, deps.Metrics),
	}

	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	if cfg.Server.RateLimit.Enabled {
		s.publicRateLimiter = NewIPRateLimiter(cfg.Server.RateLimit.RequestsPerMinute)

		log.WithField("public_rpm", cfg.Server.RateLimit.RequestsPerMinute).Info("Rate limiting enabled")
	}

	// Every failed key check costs a bcrypt comparison per configured key.
	if rpm := cfg.Server.RateLimit.Auth.RequestsPerMinute; rpm > 0 {
		s.authRateLimiter = NewIPRateLimiter(rpm)

		log.WithField("auth_rpm", rpm).Info("API key rate limiting enabled")
	}

	if s.scheduler != nil {
		s.scheduler.SetSyncCallback(s.BroadcastSyncRun)
	}

	s.setupRouter()

	return s
}

// Start starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.srv = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Server.Listen).Info("Starting HTTP server")

	go s.hub.Run(ctx)

	for _, l := range []*IPRateLimiter{s.publicRateLimiter, s.authRateLimiter} {
		if l != nil {
			go l.CleanupLoop(ctx)
		}
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.srv == nil {
		return nil
	}

	s.log.Info("Stopping HTTP server")

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

// Handler returns the router.
func (s *server) Handler() http.Handler {
	return s.router
}

// BroadcastSyncRun tells websocket clients about a finished sync run.
func (s *server) BroadcastSyncRun(run *store.SyncRun) {
	s.hub.BroadcastSyncRun(run)
}

func (s *server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		if s.publicRateLimiter != nil {
			r.Use(s.publicRateLimiter.Middleware)
		}

		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		if s.site != nil {
			s.site.Register(r)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			if s.publicRateLimiter != nil {
				r.Use(s.publicRateLimiter.Middleware)
			}

			r.Get("/openapi.json", s.handleOpenAPISpec)
			r.Get("/status", s.handleStatus)

			r.Get("/specs", s.handleListSpecs)
			r.Get("/specs/{category}/{spec}", s.handleGetSpec)
			r.Get("/specs/{category}/{spec}/validation", s.handleValidateSpec)

			r.Get("/sync/runs", s.handleListSyncRuns)
			r.Get("/sync/runs/{id}", s.handleGetSyncRun)
		})

		// The websocket outlives the request timeout.
		r.Group(func(r chi.Router) {
			if s.publicRateLimiter != nil {
				r.Use(s.publicRateLimiter.Middleware)
			}

			r.Get("/ws", s.handleWebSocket)
		})

		// A sync runs synchronously within the request.
		r.Group(func(r chi.Router) {
			if s.authRateLimiter != nil {
				r.Use(s.authRateLimiter.Middleware)
			}

			r.Use(auth.RequireAPIKey(s.auth))

			r.Post("/sync", s.handleTriggerSync)
			r.Get("/audit", s.handleListAudit)
		})
	})

	if s.site != nil {
		r.NotFound(s.site.NotFound)
	}

	s.router = r
}

// requestLogger logs every request through the component logger.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("Request served")
		})
	}
}

// metricsMiddleware records request counts and latency by route pattern.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 1 && origins[0] == "*"

	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Response helpers
// ============================================================================

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error" example:"Something went wrong"`
}

// RateLimitErrorResponse is returned when rate limit is exceeded.
type RateLimitErrorResponse struct {
	Error string `json:"error" example:"rate limit exceeded"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// handleOpenAPISpec godoc
//
//	@Summary		OpenAPI specification
//	@Description	Returns the OpenAPI specification of this service
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	object	"OpenAPI specification"
//	@Router			/openapi.json [get]
func (s *server) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}
