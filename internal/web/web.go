package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"lifehub/internal/auth"
	"lifehub/internal/config"
	appLog "lifehub/internal/log"
	"lifehub/internal/scheduler"
	"lifehub/internal/store"
)

// RefreshFunc re-imports calendar subscriptions on demand.
type RefreshFunc func(ctx context.Context) []scheduler.Report

// Server exposes the slot finder and the store over JSON HTTP.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	refresh RefreshFunc
	auth    auth.Middleware
	now     func() time.Time
	mux     *http.ServeMux
}

// Options wires a Server. Store and Config are required.
type Options struct {
	Config  *config.Config
	Store   *store.Store
	Refresh RefreshFunc
	Now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:     cfg,
		store:   opts.Store,
		refresh: opts.Refresh,
		auth:    auth.New([]byte(cfg.Auth.JWTSecret), "/health"),
		now:     opts.Now,
		mux:     http.NewServeMux(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped with CORS and, when configured, bearer
// token checks.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.auth.Enabled() {
		appLog.Info("HTTP bearer auth enabled")
		h = s.auth.Wrap(h)
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(h)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/ai/reschedule", s.handleReschedule)

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/me", s.handleMe)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/todos", s.handleListTodos)
	s.mux.HandleFunc("POST /api/todos", s.handleCreateTodo)
	s.mux.HandleFunc("POST /api/todos/{id}/toggle", s.handleToggleTodo)
	s.mux.HandleFunc("DELETE /api/todos/{id}", s.handleDeleteTodo)

	s.mux.HandleFunc("GET /api/calendars", s.handleListCalendars)
	s.mux.HandleFunc("POST /api/calendars", s.handleCreateCalendar)
	s.mux.HandleFunc("PATCH /api/calendars/{id}", s.handleUpdateCalendar)

	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
