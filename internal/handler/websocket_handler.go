package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/superhero-manager/backend/internal/broker"
	"github.com/superhero-manager/backend/internal/metrics"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 4 * 1024            // clients only send control frames
)

// LiveHandler streams hero events to WebSocket clients
type LiveHandler struct {
	broker   broker.HeroBroker
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	clients map[*websocket.Conn]*liveClient
	mu      sync.RWMutex
}

type liveClient struct {
	conn        *websocket.Conn
	ip          string
	connectedAt time.Time
}

// NewLiveHandler accepts connections from the given origins; an empty list
// or "*" accepts any origin.
func NewLiveHandler(b broker.HeroBroker, m *metrics.Metrics, allowedOrigins []string) *LiveHandler {
	h := &LiveHandler{
		broker:  b,
		metrics: m,
		clients: make(map[*websocket.Conn]*liveClient),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Handle handles GET /api/heroes/live
func (h *LiveHandler) Handle(c *gin.Context) {
	// Subscribe first so a broker failure is still a plain HTTP error
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		logger.Log.Error("Failed to subscribe to hero events", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &liveClient{
		conn:        conn,
		ip:          c.ClientIP(),
		connectedAt: time.Now(),
	}
	h.addClient(client)
	defer h.removeClient(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(client, events)
	}()

	h.readLoop(client)
	cancel()
	// Unblock a write stuck on a dead peer
	_ = conn.SetWriteDeadline(time.Now())
	<-done
}

// ClientCount reports the connected clients
func (h *LiveHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readLoop drains control frames until the peer goes away
func (h *LiveHandler) readLoop(client *liveClient) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("WebSocket read error", zap.String("ip", client.ip), zap.Error(err))
			}
			return
		}
	}
}

// writeLoop is the only writer on the connection. It closes the
// connection on exit so the read loop ends with it.
func (h *LiveHandler) writeLoop(client *liveClient, events <-chan broker.HeroEvent) {
	defer client.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				h.closeGracefully(client, "event stream closed")
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(event); err != nil {
				logger.Log.Debug("Failed to send hero event", zap.String("ip", client.ip), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Debug("Ping failed", zap.String("ip", client.ip), zap.Error(err))
				return
			}
		}
	}
}

func (h *LiveHandler) closeGracefully(client *liveClient, reason string) {
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
	); err != nil {
		logger.Log.Debug("Failed to send close frame", zap.Error(err))
	}
}

func (h *LiveHandler) addClient(client *liveClient) {
	h.mu.Lock()
	h.clients[client.conn] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.SubscriberDelta(1)
	logger.Log.Info("Live client connected", zap.String("ip", client.ip), zap.Int("total", total))
}

func (h *LiveHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	client, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	if !exists {
		return
	}
	_ = conn.Close()
	h.metrics.SubscriberDelta(-1)
	logger.Log.Info("Live client disconnected",
		zap.String("ip", client.ip),
		zap.Duration("session", time.Since(client.connectedAt).Round(time.Second)),
		zap.Int("remaining", remaining),
	)
}
