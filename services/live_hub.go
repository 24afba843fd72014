package services

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"radius/models"
	"radius/monitoring"
)

// LiveHub fans queue snapshots out to websocket dashboard clients. Each
// connection watches a single queue; business dashboards use this feed
// instead of the PubNub channel the mobile clients subscribe to.
type LiveHub struct {
	monitor *monitoring.Monitor

	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewLiveHub(monitor *monitoring.Monitor) *LiveHub {
	return &LiveHub{
		monitor: monitor,
		conns:   make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection to a queue's watcher set.
func (h *LiveHub) Register(queueID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers, ok := h.conns[queueID]
	if !ok {
		watchers = make(map[*websocket.Conn]struct{})
		h.conns[queueID] = watchers
	}
	watchers[conn] = struct{}{}
	h.monitor.SetLiveFeedClients(h.countLocked())

	slog.Info("live feed client connected", "queue", queueID, "watchers", len(watchers))
}

// Unregister removes and closes a connection.
func (h *LiveHub) Unregister(queueID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(queueID, conn)
}

// Broadcast sends a snapshot to every watcher of the queue. Connections
// that fail to accept the write are dropped.
func (h *LiveHub) Broadcast(q *models.Queue) {
	data, err := json.Marshal(models.Snapshot{Type: models.SnapshotType, Queue: *q})
	if err != nil {
		slog.Error("marshal live snapshot", "queue", q.UID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns[q.UID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("live feed write failed, dropping client", "queue", q.UID, "error", err)
			h.drop(q.UID, conn)
		}
	}
}

// ClientCount reports how many connections are watching across all
// queues.
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

// countLocked must be called with the lock held.
func (h *LiveHub) countLocked() int {
	total := 0
	for _, watchers := range h.conns {
		total += len(watchers)
	}
	return total
}

// drop must be called with the write lock held.
func (h *LiveHub) drop(queueID string, conn *websocket.Conn) {
	if watchers, ok := h.conns[queueID]; ok {
		if _, ok := watchers[conn]; ok {
			delete(watchers, conn)
			conn.Close()
		}
		if len(watchers) == 0 {
			delete(h.conns, queueID)
		}
	}
	h.monitor.SetLiveFeedClients(h.countLocked())
}
