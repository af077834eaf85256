package api

import (
	"net/http"

	"github.com/vocalfuse/backend/internal/health"
	"github.com/vocalfuse/backend/internal/metrics"
	"github.com/vocalfuse/backend/internal/stream"
	"github.com/vocalfuse/backend/internal/websocket"
)

type Router struct {
	mux           *http.ServeMux
	jobHandlers   *JobHandlers
	streamHandler *stream.Handler
	wsHandler     *websocket.Handler
	healthHandler *health.Handler
}

func NewRouter(jobHandlers *JobHandlers, streamHandler *stream.Handler, wsHandler *websocket.Handler, healthHandler *health.Handler) *Router {
	r := &Router{
		mux:           http.NewServeMux(),
		jobHandlers:   jobHandlers,
		streamHandler: streamHandler,
		wsHandler:     wsHandler,
		healthHandler: healthHandler,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Probes and metrics
	r.mux.HandleFunc("GET /health", r.healthHandler.HealthHandler)
	r.mux.HandleFunc("GET /health/ready", r.healthHandler.ReadinessHandler)
	r.mux.HandleFunc("GET /metrics", metrics.Default().Handler())

	// Job lifecycle
	r.mux.HandleFunc("POST /api/v1/jobs", r.jobHandlers.CreateJob)
	r.mux.HandleFunc("GET /api/v1/jobs", r.jobHandlers.ListJobs)
	r.mux.HandleFunc("GET /api/v1/jobs/{id}", r.jobHandlers.GetJob)
	r.mux.HandleFunc("GET /api/v1/jobs/{id}/result", r.jobHandlers.GetResult)
	r.mux.HandleFunc("GET /api/v1/jobs/{id}/artifacts/{kind}", r.streamHandler.ServeArtifact)

	// Live progress
	r.mux.HandleFunc("GET /ws/jobs/{id}", r.wsHandler.ServeWS)
}
