package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/voicememo/internal/metrics"
	"github.com/amanullahtanweer/voicememo/internal/notify"
	"github.com/amanullahtanweer/voicememo/internal/recording"
)

// Pinger reports backing-store health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP server settings.
type Config struct {
	Host            string
	Port            int
	MaxUploadBytes  int64 // defaults to 32 MiB
	RateLimitPerMin int   // per-IP on mutating routes, defaults to 60
	ShutdownTimeout time.Duration
}

// Server is the REST surface over the recording lifecycle manager.
type Server struct {
	config  Config
	manager *recording.Manager
	hub     *notify.Hub
	metrics *metrics.ServiceMetrics
	health  Pinger
	logger  zerolog.Logger
	httpSrv *http.Server
}

func New(cfg Config, manager *recording.Manager, hub *notify.Hub, m *metrics.ServiceMetrics, health Pinger, logger zerolog.Logger) *Server {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimitPerMin == 0 {
		cfg.RateLimitPerMin = 60
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		config:  cfg,
		manager: manager,
		hub:     hub,
		metrics: m,
		health:  health,
		logger:  logger,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsAllowAll)

	limit := httprate.Limit(
		s.config.RateLimitPerMin,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/recordings", s.handleList)
		r.Get("/recordings/{id}", s.handleGet)
		r.Delete("/recordings/{id}", s.handleDelete)
		r.With(limit).Post("/recordings/upload", s.handleUpload)
		r.With(limit).Post("/transcription/{id}", s.handleTranscribe)
		r.With(limit).Post("/transcription/{id}/append", s.handleAppend)
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
	})
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/*", uiHandler())

	return r
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("voice-memo server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http listen and serve: %w", err)
	}
	return nil
}

// Shutdown stops the listener, drains in-flight requests, and
// disconnects event subscribers.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.hub.Close()
	return err
}

// corsAllowAll mirrors the permissive CORS policy of the original
// deployment, where the UI may be served from a different origin in
// development.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
