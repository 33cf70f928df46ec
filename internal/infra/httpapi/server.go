// Package httpapi is the local control surface: connect, disconnect, status
// and settings over JSON, plus health and Prometheus metrics.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voice-companion/internal/application"
	"voice-companion/internal/domain"
)

const maxSettingsBody = 64 * 1024

// Controller is the part of the companion the API drives.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() application.CompanionState
	Settings() domain.Settings
	UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error)
}

type Config struct {
	Addr      string
	AuthToken string
	// RatePerMinute and Burst bound mutating requests per client IP.
	RatePerMinute int
	Burst         int
}

type Server struct {
	cfg         Config
	controller  Controller
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// NewServer builds the API. metrics may be nil, in which case /metrics is
// not served.
func NewServer(cfg Config, controller Controller, metrics http.Handler, logger *slog.Logger) *Server {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	s := &Server{
		cfg:         cfg,
		controller:  controller,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(cfg.RatePerMinute, cfg.Burst),
	}

	s.mux.HandleFunc("POST /connect", s.guard(s.handleConnect))
	s.mux.HandleFunc("POST /disconnect", s.guard(s.handleDisconnect))
	s.mux.HandleFunc("PUT /settings", s.guard(s.handlePutSettings))
	s.mux.HandleFunc("GET /settings", s.handleGetSettings)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) Name() string {
	return "http"
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr is the bound listen address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Start binds the listener and serves in the background until Stop or ctx
// is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP control API starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			return srv.Close()
		}
		return nil
	})

	s.server = srv
	s.listener = ln
	s.group = g
	s.cancel = cancel
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	g, cancel := s.group, s.cancel
	s.server, s.group, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stopping http server: %w", err)
	}
	return nil
}

// guard applies per-IP rate limiting and, when a token is configured, checks
// it from the X-Auth-Token header or the token query parameter.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return s.rateLimiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
				s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Connect(r.Context()); err != nil {
		s.logger.Error("connect requested via HTTP failed", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrDuplicateAPIID) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.controller.Disconnect()
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.State())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var settings domain.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings json")
		return
	}

	saved, err := s.controller.UpdateSettings(r.Context(), settings)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateAPIID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("saving settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"connection": s.controller.State().Status,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
