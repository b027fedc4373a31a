package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secure via proxy in prod
}

// StreamHandler pushes expansion phase events to WebSocket subscribers.
type StreamHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes attaches the /stream/ws endpoint.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/ws", h.handleWS)
}

func (h *StreamHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("node_id")
	if nodeID == "" {
		http.Error(w, "node_id required", http.StatusBadRequest)
		return
	}
	var lastID uint64
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID = n
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.mgr.Subscribe(nodeID, 256)
	defer h.mgr.Unsubscribe(nodeID, ch)

	// replay the ring so a reconnect does not lose phase events
	for _, ev := range h.mgr.ReplaySince(nodeID, lastID) {
		if err := conn.WriteMessage(websocket.TextMessage, ev.Marshal()); err != nil {
			return
		}
	}

	// reader goroutine detects client close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, ev.Marshal()); err != nil {
				return
			}
		}
	}
}
