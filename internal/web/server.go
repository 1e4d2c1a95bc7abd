package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/roster"
	"github.com/kozaktomas/face-attendance/internal/tracker"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Manager     *roster.Manager
	Attendance  *attendance.Log
	Tracker     *tracker.Tracker
	Settings    *config.SettingsStore
	SessionRepo middleware.SessionRepository // optional
}

const (
	requestTimeout = 5 * time.Minute
	readTimeout    = 30 * time.Second
	// SSE streams and rebuild uploads hold the response open.
	writeTimeout = 5 * time.Minute
	idleTimeout  = 60 * time.Second
)

// Server serves the JSON API and the embedded frontend.
type Server struct {
	config         *config.Config
	deps           Deps
	router         *chi.Mux
	httpServer     *http.Server
	jobManager     *handlers.JobManager
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:         cfg,
		deps:           deps,
		router:         r,
		jobManager:     handlers.NewJobManager(),
		sessionManager: middleware.NewSessionManager(cfg.Web.SessionSecret, deps.SessionRepo),
	}

	r.Use(
		chiMiddleware.RequestID,
		chiMiddleware.RealIP,
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		chiMiddleware.Timeout(requestTimeout),
		middleware.CORS(cfg.Web.AllowedOrigins),
		middleware.SecurityHeaders(),
	)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)),
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return s
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	log.Printf("Listening on http://%s", s.httpServer.Addr)
	if !s.config.Admin.AuthEnabled() {
		log.Println("ADMIN_PASSWORD_HASH is not set, the API is open to anyone who can reach it")
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown cancels running rebuild jobs and drains open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server")

	s.sessionManager.Stop()
	for _, job := range s.jobManager.ListJobs() {
		job.Cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router exposes the handler tree to tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
