// Package realtime pushes game events to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stockgame/tradingsim/internal/events"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Message is the frame written to clients.
type Message struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected client. A client whose buffer is
// full is disconnected rather than slowing the others down.
type Hub struct {
	upgrader websocket.Upgrader
	types    map[string]bool
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub forwards events of the given types; with none it forwards
// prices.updated and trade.executed.
func NewHub(log *zap.Logger, types ...string) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if len(types) == 0 {
		types = []string{events.TypePricesUpdated, events.TypeTradeExecuted}
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		types:   make(map[string]bool, len(types)),
		log:     log,
		clients: make(map[*client]struct{}),
	}
	for _, t := range types {
		h.types[t] = true
	}
	return h
}

// Handle upgrades the request and serves the connection until it closes.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(cl)
	h.log.Debug("websocket client connected", zap.String("remote", c.ClientIP()))

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// readLoop discards client frames; it exists to notice disconnects and pongs.
func (h *Hub) readLoop(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(cl)
				return
			}
		}
	}
}

// Publish implements events.Publisher.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	if !h.types[e.Type] {
		return nil
	}
	msg, err := json.Marshal(Message{Type: e.Type, At: e.At, Payload: e.Payload})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", e.Type, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.log.Warn("dropping slow websocket client")
			h.dropLocked(cl)
		}
	}
	return nil
}

// Clients reports how many connections are open.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.dropLocked(cl)
	}
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	h.dropLocked(cl)
	h.mu.Unlock()
}

// dropLocked closes the send channel once; the write loop then closes the conn.
func (h *Hub) dropLocked(cl *client) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}
