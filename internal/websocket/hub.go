package websocket

import (
	"context"
	"sync"

	"github.com/vocalfuse/backend/internal/jobs"
)

// Subscriber opens a progress feed for a single job.
type Subscriber interface {
	SubscribeToJobProgress(ctx context.Context, jobID string) *jobs.ProgressSubscription
}

// Hub maintains the set of active clients, grouped by job, and fans
// job progress events out to them. One upstream subscription is held
// per job with at least one watcher.
type Hub struct {
	subscriber Subscriber

	// Registered clients by job ID
	clients map[string]map[*Client]bool

	// One upstream subscription per watched job, with its cancel
	subs map[string]*jobs.ProgressSubscription

	register   chan *Client
	unregister chan *Client
	broadcast  chan *ProgressMessage

	mu sync.RWMutex
}

// ProgressMessage is a job state update pushed to clients.
type ProgressMessage struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// MessageFromJob flattens a job snapshot into the wire message.
func MessageFromJob(job *jobs.Job) *ProgressMessage {
	return &ProgressMessage{
		JobID:    job.ID,
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Error:    job.Error,
	}
}

// NewHub creates a new Hub instance.
func NewHub(subscriber Subscriber) *Hub {
	return &Hub{
		subscriber: subscriber,
		clients:    make(map[string]map[*Client]bool),
		subs:       make(map[string]*jobs.ProgressSubscription),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *ProgressMessage),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.jobID] == nil {
				h.clients[client.jobID] = make(map[*Client]bool)
			}
			h.clients[client.jobID][client] = true

			// First watcher for this job opens the upstream feed.
			if _, ok := h.subs[client.jobID]; !ok && h.subscriber != nil {
				sub := h.subscriber.SubscribeToJobProgress(context.Background(), client.jobID)
				h.subs[client.jobID] = sub
				go h.forward(sub)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.jobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, client.jobID)
						if sub, ok := h.subs[client.jobID]; ok {
							sub.Close()
							delete(h.subs, client.jobID)
						}
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[message.JobID]; ok {
				for client := range clients {
					select {
					case client.send <- message:
					default:
						// Client's buffer is full, drop the connection
						close(client.send)
						delete(clients, client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// forward pumps one job's upstream progress events into the broadcast
// loop. It exits when the subscription closes.
func (h *Hub) forward(sub *jobs.ProgressSubscription) {
	for job := range sub.Channel() {
		h.broadcast <- MessageFromJob(job)
	}
}

// BroadcastProgress sends a progress update to every watcher of the
// message's job.
func (h *Hub) BroadcastProgress(msg *ProgressMessage) {
	h.broadcast <- msg
}

// ClientCount returns the number of connected clients for a job.
func (h *Hub) ClientCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[jobID]; ok {
		return len(clients)
	}
	return 0
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
