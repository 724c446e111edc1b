package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/cache"
	"fleetmetrics/internal/models"
)

// Hub pushes coordinator snapshots to widget shells connected over
// WebSocket. All connections watching one (kpi, range) share a single
// coordinator subscription; the hub fans snapshots out to each of them.
type Hub struct {
	coord  *cache.Coordinator
	logger *logrus.Logger
	mu     sync.Mutex
	groups map[models.Key]*group
}

type group struct {
	sub   *cache.Subscription
	conns map[*websocket.Conn]bool
}

// update is the wire shape of one pushed snapshot.
type update struct {
	KPIKey     string              `json:"kpi_key"`
	Range      string              `json:"range"`
	Payload    *models.SafePayload `json:"payload"`
	Validating bool                `json:"validating"`
	Stale      bool                `json:"stale"`
	Error      string              `json:"error,omitempty"`
	FetchedAt  time.Time           `json:"fetched_at"`
}

// NewHub constructs a Hub over the coordinator.
func NewHub(coord *cache.Coordinator, logger *logrus.Logger) *Hub {
	return &Hub{
		coord:  coord,
		logger: logger,
		groups: make(map[models.Key]*group),
	}
}

// Join registers a connection for a key. The first connection of a key
// subscribes to the coordinator and starts the fan-out pump.
func (h *Hub) Join(key models.Key, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[key]
	if !ok {
		g = &group{
			sub:   h.coord.Subscribe(key),
			conns: make(map[*websocket.Conn]bool),
		}
		h.groups[key] = g
		go h.pump(key, g)
	}
	g.conns[conn] = true
	h.logger.Infof("WebSocket joined %s (%d watchers)", key, len(g.conns))
}

// Leave removes a connection. The last connection of a key closes the
// shared subscription, which ends the pump.
func (h *Hub) Leave(key models.Key, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[key]
	if !ok {
		return
	}
	delete(g.conns, conn)
	if len(g.conns) == 0 {
		g.sub.Close()
		delete(h.groups, key)
	}
	h.logger.Infof("WebSocket left %s", key)
}

// pump forwards every snapshot of a key to its watchers until the shared
// subscription closes.
func (h *Hub) pump(key models.Key, g *group) {
	for snap := range g.sub.Updates() {
		h.broadcast(key, g, snap)
	}
}

func (h *Hub) broadcast(key models.Key, g *group, snap cache.Snapshot) {
	msg := update{
		KPIKey:     key.KPI,
		Range:      string(key.Range),
		Payload:    snap.Payload,
		Validating: snap.Loading || snap.Validating,
		Stale:      snap.Err != nil,
		FetchedAt:  snap.FetchedAt,
	}
	if snap.Err != nil {
		msg.Error = snap.Err.Error()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Failed to marshal snapshot for %s: %v", key, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range g.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warnf("Dropping dead WebSocket on %s: %v", key, err)
			conn.Close()
			delete(g.conns, conn)
		}
	}
}
