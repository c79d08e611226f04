package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Warming (UI/lifecycle hooks enqueue on navigation and login)
	mux.HandleFunc("/api/warming/enqueue", s.app.WarmingHandler.EnqueueHandler)      // POST
	mux.HandleFunc("/api/warming/queue", s.app.WarmingHandler.QueueStatusHandler)    // GET
	mux.HandleFunc("/api/warming/stats", s.app.WarmingHandler.StatsHandler)          // GET
	mux.HandleFunc("/api/warming/subjects", s.app.WarmingHandler.TopSubjectsHandler) // GET
	mux.HandleFunc("/api/warming/clear", s.app.WarmingHandler.ClearQueueHandler)     // POST

	// API routes - Cache health (operational dashboard)
	mux.HandleFunc("/api/cache/health", s.app.HealthHandler.SnapshotHandler)  // GET
	mux.HandleFunc("/api/cache/health/plan", s.app.HealthHandler.PlanHandler) // GET

	// API routes - Maintenance
	mux.HandleFunc("/api/maintenance/status", s.app.MaintenanceHandler.StatusHandler)               // GET
	mux.HandleFunc("/api/maintenance/run", s.app.MaintenanceHandler.RunHandler)                     // POST
	mux.HandleFunc("/api/maintenance/reports", s.app.MaintenanceHandler.ReportsHandler)             // GET
	mux.HandleFunc("/api/maintenance/reports/latest", s.app.MaintenanceHandler.LatestReportHandler) // GET
	mux.HandleFunc("/api/maintenance/config", s.app.MaintenanceHandler.UpdateConfigHandler)         // PUT

	// API routes - Records and change detection (save-orchestration surface)
	mux.HandleFunc("/api/records/conflicts", s.app.RecordHandler.ConflictsHandler)  // GET
	mux.HandleFunc("/api/records/backfill", s.app.RecordHandler.BackfillHandler)    // POST
	mux.HandleFunc("/api/records/", s.app.RecordHandler.GetRecordHandler)           // GET /{table}/{id}
	mux.HandleFunc("/api/workouts/", s.handleWorkoutRoutes)                         // POST /{id}/save
	mux.HandleFunc("/api/changes/detect", s.app.RecordHandler.DetectChangesHandler) // POST

	// API routes - Seeding
	mux.HandleFunc("/api/seed", s.app.SeedHandler.Handle) // POST

	// API routes - System
	mux.HandleFunc("/api/logs", s.app.LogHandler.RecentHandler) // GET
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleWorkoutRoutes routes workout-related requests to the appropriate handler
func (s *Server) handleWorkoutRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/workouts/{id}/save
	if r.Method == "POST" && strings.HasSuffix(path, "/save") {
		s.app.RecordHandler.SaveWorkoutHandler(w, r)
		return
	}

	http.Error(w, "Not found", http.StatusNotFound)
}

// ShutdownHandler handles POST /api/shutdown by signalling the main loop
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shutdownChan == nil {
		http.Error(w, "Shutdown endpoint not enabled", http.StatusServiceUnavailable)
		return
	}

	s.app.Logger.Info().Msg("Shutdown requested via API")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("shutting down"))

	go func() {
		s.shutdownChan <- struct{}{}
	}()
}
