package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	facesHandler := handlers.NewFacesHandler(s.deps.Enroller, s.deps.Store, s.deps.Processor, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Store, s.deps.Store, s.config.Attendance.LogLimit, s.logger)
	indexHandler := handlers.NewIndexHandler(s.deps.Reindexer, s.logger)

	s.router.Get("/health", handlers.HealthCheck)

	// Kiosk endpoints
	s.router.Post("/upload_face", facesHandler.UploadFace)
	s.router.Post("/process_snapshot", facesHandler.ProcessSnapshot)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/logs", attendanceHandler.Logs)
		r.Get("/employees", attendanceHandler.Employees)
		r.Post("/reindex", indexHandler.Reindex)
	})
}
