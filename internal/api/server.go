// Package api provides the HTTP REST API for portsweep: background scan jobs,
// their results, profiles, schedules and a websocket progress stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/portsweep/internal/api/handlers"
	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/profiles"
)

const (
	healthPath            = "/api/v1/health"
	limiterCleanupPeriod  = time.Minute
	limiterIdleExpiry     = 10 * time.Minute
	defaultShutdownPeriod = 30 * time.Second
)

// Dependencies are the collaborators the API serves. Schedules, DB and
// Metrics are optional; leave them nil (untyped) to disable their endpoints.
type Dependencies struct {
	Store     apihandlers.ScanStore
	Jobs      apihandlers.JobController
	Schedules apihandlers.ScheduleController
	Profiles  *profiles.Manager
	Hub       *apihandlers.Hub
	DB        apihandlers.Pinger
	Metrics   *metrics.PrometheusMetrics
	Logger    *logging.Logger
	Version   string
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     config.APIConfig
	deps       Dependencies
	limiter    *middleware.ClientLimiter
	logger     *logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New builds the router and HTTP server.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.NewConfigError(errors.CodeConfiguration, "configuration is required")
	}
	if deps.Store == nil || deps.Jobs == nil {
		return nil, errors.NewConfigError(errors.CodeConfiguration, "API requires a job store and a job controller")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Profiles == nil {
		deps.Profiles = profiles.NewManager()
	}
	if deps.Hub == nil {
		deps.Hub = apihandlers.NewHub(deps.Logger)
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg.API,
		deps:   deps,
		logger: deps.Logger.WithComponent("api"),
	}
	if cfg.API.RateLimit.Enabled {
		s.limiter = middleware.NewClientLimiter(cfg.API.RateLimit.RequestsPerSecond, cfg.API.RateLimit.Burst)
	}

	protocols, err := cfg.Scanning.ProtocolList()
	if err != nil {
		return nil, err
	}
	defaults := apihandlers.ScanDefaults{
		Ports:     cfg.Scanning.Ports,
		Protocols: protocols,
		Config:    cfg.Scanning.ScanConfig(),
	}

	s.setupRoutes(defaults)
	s.handler = s.wrap(s.router)

	s.httpServer = &http.Server{
		Addr:              cfg.APIAddress(),
		Handler:           s.handler,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
	}
	return s, nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(defaults apihandlers.ScanDefaults) {
	scans := apihandlers.NewScanHandler(s.deps.Store, s.deps.Jobs, s.deps.Profiles, defaults, s.deps.Logger)
	profileHandler := apihandlers.NewProfileHandler(s.deps.Profiles)
	health := apihandlers.NewHealthHandler(s.deps.DB, s.deps.Jobs, s.deps.Hub, s.deps.Version)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Metrics(s.deps.Metrics))
	if s.limiter != nil {
		api.Use(middleware.RateLimit(s.limiter, s.deps.Logger))
	}
	if len(s.config.APIKeyHashes) > 0 {
		api.Use(middleware.APIKeyAuth(s.config.APIKeyHashes, []string{healthPath}, s.deps.Logger))
	}
	api.Use(middleware.ContentType())
	api.Use(middleware.MaxBodySize(s.config.MaxRequestSize))

	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)

	api.HandleFunc("/scans", scans.CreateScan).Methods(http.MethodPost)
	api.HandleFunc("/scans", scans.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", scans.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", scans.DeleteScan).Methods(http.MethodDelete)
	api.HandleFunc("/scans/{id}/stop", scans.StopScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}/status", scans.ScanStatus).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/results", scans.ScanResults).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/export", scans.ExportScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/history", scans.ScanHistory).Methods(http.MethodGet)

	api.HandleFunc("/statistics", scans.Statistics).Methods(http.MethodGet)
	api.HandleFunc("/quick-scan", scans.QuickScan).Methods(http.MethodPost)

	api.HandleFunc("/profiles", profileHandler.ListProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{name}", profileHandler.GetProfile).Methods(http.MethodGet)

	if s.deps.Schedules != nil {
		schedules := apihandlers.NewScheduleHandler(s.deps.Schedules, s.deps.Logger)
		api.HandleFunc("/schedules", schedules.ListSchedules).Methods(http.MethodGet)
		api.HandleFunc("/schedules/{name}/run", schedules.RunSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{name}/enable", schedules.EnableSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{name}/disable", schedules.DisableSchedule).Methods(http.MethodPost)
	}

	api.HandleFunc("/ws", s.deps.Hub.ServeWS).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

// wrap applies the middleware that must also see unmatched routes and CORS preflights.
func (s *Server) wrap(h http.Handler) http.Handler {
	if s.config.CORS.Enabled {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.config.CORS.AllowedOrigins),
			handlers.AllowedMethods(s.config.CORS.AllowedMethods),
			handlers.AllowedHeaders(s.config.CORS.AllowedHeaders),
			handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		)(h)
	}
	h = middleware.SecurityHeaders()(h)
	h = middleware.Logging(s.deps.Logger)(h)
	h = middleware.Recovery(s.deps.Logger)(h)
	return middleware.RequestID()(h)
}

// index describes the API for root requests.
func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service": "portsweep API",
		"version": s.deps.Version,
		"health":    healthPath,
		"endpoints": s.endpoints(),
		"timestamp": time.Now().UTC(),
	})
}

// endpoints lists every registered route as "METHOD /path", sorted.
func (s *Server) endpoints() []string {
	var out []string
	_ = s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		for _, method := range methods {
			out = append(out, method+" "+path)
		}
		return nil
	})
	slices.Sort(out)
	return out
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the bound address once listening, else the configured one.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Start listens and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting API server",
		"address", ln.Addr().String(),
		"auth", len(s.config.APIKeyHashes) > 0,
		"rate_limit", s.limiter != nil,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	if s.limiter != nil {
		go s.cleanupLimiter(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	}
}

// Stop gracefully stops the API server and disconnects websocket clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownPeriod
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.deps.Hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

func (s *Server) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup(limiterIdleExpiry)
		}
	}
}
