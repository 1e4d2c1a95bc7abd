package web

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	statsHandler := handlers.NewStatsHandler(s.deps.Manager, s.deps.Attendance)
	authHandler := handlers.NewAuthHandler(s.config, s.sessionManager)
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Settings)
	studentsHandler := handlers.NewStudentsHandler(s.deps.Manager)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Tracker, s.deps.Settings)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance, s.deps.Manager)
	datasetHandler := handlers.NewDatasetHandler(s.deps.Manager, s.config.Paths.DatasetDir, s.jobManager, statsHandler.InvalidateCache)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.sessionManager, &s.config.Admin))

			// Roster
			r.Get("/students", studentsHandler.List)
			r.Post("/students", studentsHandler.Create)
			r.Get("/students/{id}", studentsHandler.Get)
			r.Put("/students/{id}", studentsHandler.Update)
			r.Delete("/students/{id}", studentsHandler.Delete)
			r.Get("/students/{id}/image", studentsHandler.Image)

			// Recognition
			r.Post("/recognize", recognizeHandler.Recognize)

			// Attendance
			r.Post("/attendance", attendanceHandler.Mark)
			r.Get("/attendance", attendanceHandler.Report)
			r.Get("/attendance/dates", attendanceHandler.Dates)
			r.Get("/attendance/summary/{id}", attendanceHandler.Summary)
			r.Get("/attendance/{date}/export", attendanceHandler.Export)

			// Dataset rebuild (long-running)
			r.Post("/dataset/rebuild", datasetHandler.Rebuild)
			r.Get("/dataset/rebuild/{jobId}", datasetHandler.Status)
			r.Get("/dataset/rebuild/{jobId}/events", datasetHandler.Events)
			r.Delete("/dataset/rebuild/{jobId}", datasetHandler.Cancel)

			// Config and settings
			r.Get("/config", configHandler.Get)
			r.Get("/settings", configHandler.GetSettings)
			r.Put("/settings", configHandler.UpdateSettings)

			r.Get("/stats", statsHandler.Get)
		})
	})

	// Serve static files for frontend (SPA)
	s.router.Get("/*", s.serveSPA)
}

// serveSPA serves the single-page application
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	if f, err := fs.Open(p); err == nil {
		defer f.Close()
		if stat, err := f.Stat(); err == nil && !stat.IsDir() {
			contentType := mime.TypeByExtension(path.Ext(p))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			w.Header().Set("Content-Type", contentType)
			if strings.HasPrefix(p, "/assets/") {
				w.Header().Set("Cache-Control", "public, max-age=3600")
			}
			w.WriteHeader(http.StatusOK)
			io.Copy(w, f)
			return
		}
	}

	// For SPA routing, serve index.html for non-asset paths
	if strings.HasPrefix(p, "/assets/") {
		http.NotFound(w, r)
		return
	}
	indexFile, err := fs.Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer indexFile.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, indexFile)
}
