package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Scheduled jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Job runs
	mux.HandleFunc("/api/runs", s.app.RunHandler.ListRunsHandler)
	mux.HandleFunc("/api/runs/", s.handleRunRoutes)

	// API routes - Brand queries
	mux.HandleFunc("/api/queries", s.handleQueriesRoute)
	mux.HandleFunc("/api/queries/", s.handleQueryRoutes)

	// API routes - Collector configs
	mux.HandleFunc("/api/collectors", s.app.CollectorHandler.ListCollectorsHandler)
	mux.HandleFunc("/api/collectors/", s.handleCollectorRoutes)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	case "POST":
		s.app.JobHandler.CreateJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} requests and subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	// POST /api/jobs/{id}/trigger
	if strings.HasSuffix(path, "/trigger") {
		s.app.JobHandler.TriggerJobHandler(w, r)
		return
	}

	// GET /api/jobs/{id}/runs
	if strings.HasSuffix(path, "/runs") {
		s.app.JobHandler.ListJobRunsHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r)
	case "PUT":
		s.app.JobHandler.UpdateJobHandler(w, r)
	case "DELETE":
		s.app.JobHandler.DeleteJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunRoutes routes /api/runs/{id} requests and subpaths
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	// GET /api/runs/{id}/results
	if strings.HasSuffix(path, "/results") {
		s.app.RunHandler.GetRunResultsHandler(w, r)
		return
	}

	s.app.RunHandler.GetRunHandler(w, r)
}

// handleQueriesRoute routes /api/queries requests (list and create)
func (s *Server) handleQueriesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.QueryHandler.ListQueriesHandler(w, r)
	case "POST":
		s.app.QueryHandler.CreateQueryHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleQueryRoutes routes /api/queries/{id} requests
func (s *Server) handleQueryRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.QueryHandler.GetQueryHandler(w, r)
	case "DELETE":
		s.app.QueryHandler.DeleteQueryHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCollectorRoutes routes /api/collectors/{engine} requests
func (s *Server) handleCollectorRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.CollectorHandler.GetCollectorHandler(w, r)
	case "PUT":
		s.app.CollectorHandler.UpdateCollectorHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
