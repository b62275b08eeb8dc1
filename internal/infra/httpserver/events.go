package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub fans scan status events out to WebSocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ScanID]map[*subscriber]struct{}

	originPatterns []string
	logger         *slog.Logger
}

type subscriber struct {
	events chan domain.StatusEvent
}

// NewHub with no origin patterns accepts any origin, like the CORS default.
func NewHub(originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &Hub{
		clients:        make(map[domain.ScanID]map[*subscriber]struct{}),
		originPatterns: originPatterns,
		logger:         logger,
	}
}

func (h *Hub) subscribe(id domain.ScanID) *subscriber {
	sub := &subscriber{events: make(chan domain.StatusEvent, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[id] == nil {
		h.clients[id] = make(map[*subscriber]struct{})
	}
	h.clients[id][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(id domain.ScanID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[id]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.clients, id)
		}
	}
}

// Subscribers reports how many listeners a scan has.
func (h *Hub) Subscribers(id domain.ScanID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[id])
}

// Publish never blocks the scan pipeline: a subscriber with a full buffer
// misses the event.
func (h *Hub) Publish(e domain.StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients[e.ScanID] {
		select {
		case sub.events <- e:
		default:
			h.logger.Debug("ws subscriber lagging, event dropped", "scan_id", e.ScanID, "status", e.Status)
		}
	}
}

// Serve upgrades the request and streams events for one scan until it
// reaches a terminal status or the client goes away. current is read after
// subscribing so a transition between the caller's check and the upgrade is
// not lost.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, id domain.ScanID, current func(ctx context.Context) (domain.StatusEvent, error)) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := h.subscribe(id)
	defer h.unsubscribe(id, sub)

	// client messages are ignored; ctx ends when the peer closes
	ctx := conn.CloseRead(r.Context())

	first, err := current(ctx)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "scan lookup failed")
		return
	}
	if err := h.write(ctx, conn, first); err != nil {
		return
	}
	if terminal(first.Status) {
		conn.Close(websocket.StatusNormalClosure, "scan finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-sub.events:
			if err := h.write(ctx, conn, e); err != nil {
				return
			}
			if terminal(e.Status) {
				conn.Close(websocket.StatusNormalClosure, "scan finished")
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, e domain.StatusEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("ws write error", "scan_id", e.ScanID, "error", err)
		return err
	}
	return nil
}

func terminal(s domain.Status) bool {
	return s == domain.StatusCompleted || s == domain.StatusError
}
