package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	apperrors "github.com/vocalfuse/backend/internal/errors"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Configure allowed origins for production
		return true
	},
}

// JobGetter looks up a job's current state.
type JobGetter interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
}

// Handler handles WebSocket connections for job progress watching.
type Handler struct {
	hub    *Hub
	getter JobGetter
	log    *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, getter JobGetter) *Handler {
	return &Handler{
		hub:    hub,
		getter: getter,
		log:    logger.Default().WithComponent("websocket"),
	}
}

// ServeWS upgrades a request on /ws/jobs/{id} and streams that job's
// progress until the client disconnects or the job goes terminal.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	requestID := apperrors.GetRequestID(r.Context())

	job, err := h.getter.GetJob(r.Context(), jobID)
	if err != nil {
		apperrors.WriteError(w, requestID, apperrors.JobNotFound())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.Default().IncWSConnections()

	client := NewClient(h.hub, conn, jobID)
	h.hub.register <- client

	// Push the current state immediately so watchers of a finished job
	// do not hang waiting for an update that never comes.
	client.send <- MessageFromJob(job)

	go client.WritePump()
	go client.ReadPump()
}

// GetHub returns the hub instance for external access.
func (h *Handler) GetHub() *Hub {
	return h.hub
}
