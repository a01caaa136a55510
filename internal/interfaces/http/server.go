package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/engine"
	"github.com/dexguard/dexguard/internal/notify"
)

// Config holds the API server settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns local-only server settings.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes the containment engine over HTTP: status queries, the
// Prometheus endpoint, the dashboard websocket and the operator admin
// surface.
type Server struct {
	cfg    Config
	engine *engine.Engine
	hub    *notify.Hub
	router *mux.Router
	srv    *http.Server
}

// NewServer builds the router. hub may be nil when no dashboard channel is
// configured; the websocket endpoint then responds 404.
func NewServer(cfg Config, eng *engine.Engine, hub *notify.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		hub:    hub,
		router: mux.NewRouter(),
	}
	s.routes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/breakers", s.handleBreakers).Methods("GET")
	s.router.HandleFunc("/breakers/{id}", s.handleBreaker).Methods("GET")
	s.router.HandleFunc("/events", s.handleEvents).Methods("GET")
	s.router.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	s.router.Handle("/metrics", s.engine.Metrics().Handler()).Methods("GET")

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/breakers/{id}/trigger", s.handleTriggerBreaker).Methods("POST")
	admin.HandleFunc("/protocols/{name}/execute", s.handleExecuteProtocol).Methods("POST")
	admin.HandleFunc("/rules/{name}", s.handleSetRule).Methods("POST")
	admin.HandleFunc("/channels/{name}", s.handleSetChannel).Methods("POST")
	admin.HandleFunc("/alerts/{id}/ack", s.handleAckAlert).Methods("POST")

	if s.hub != nil {
		s.router.HandleFunc("/ws/dashboard", s.hub.ServeWS)
	}
}

// Start runs the server until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Status API server starting")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the dashboard hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
