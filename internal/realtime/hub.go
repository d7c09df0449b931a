// Package realtime pushes equipment changes to connected browsers over
// WebSocket and optionally fans them out across processes through Redis.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/equipment"
	"github.com/kneutral-org/itconsole/internal/metrics"
)

// EventEquipmentUpdated is the only event the hub emits.
const EventEquipmentUpdated = "equipmentUpdated"

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	defaultWriteWait    = 10 * time.Second
	maxInboundMessage   = 512
)

// ErrHubStopped is returned by ServeWS after Stop.
var ErrHubStopped = errors.New("realtime hub stopped")

// Event is the JSON envelope sent to subscribers. Data holds a single record
// or, for bulk changes such as a liveness sweep, an array of records.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent builds the wire form of an equipmentUpdated event.
func EncodeEvent(records []*equipment.Record) ([]byte, error) {
	var data []byte
	var err error
	if len(records) == 1 {
		data, err = json.Marshal(records[0])
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: EventEquipmentUpdated, Data: data})
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
}

// Hub tracks WebSocket subscribers and broadcasts events to them. Connecting
// or disconnecting never changes any equipment state.
type Hub struct {
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	sendBuffer   int
	pingInterval time.Duration
	writeWait    time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	stopped bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts the Origin header accepted on upgrade. An empty
// list or a "*" entry accepts any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
}

// WithSendBuffer sets the per-subscriber queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewHub creates a hub with no subscribers.
func NewHub(logger zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		logger: logger.With().Str("component", "realtime").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(nil),
		},
		sendBuffer:   defaultSendBuffer,
		pingInterval: defaultPingInterval,
		writeWait:    defaultWriteWait,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// Publish implements equipment.Notifier.
func (h *Hub) Publish(_ context.Context, records []*equipment.Record) {
	if len(records) == 0 {
		return
	}
	payload, err := EncodeEvent(records)
	if err != nil {
		h.logger.Error().Err(err).Int("records", len(records)).Msg("failed to encode event")
		return
	}
	h.Broadcast(payload)
}

// Broadcast queues an encoded event for every subscriber. Subscribers whose
// queue is full miss the event.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			metrics.RecordEventDropped()
			h.logger.Warn().Str("remoteAddr", c.addr).Msg("subscriber queue full, event dropped")
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeWS(c *gin.Context) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "unavailable",
			"message": ErrHubStopped.Error(),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("remoteAddr", c.Request.RemoteAddr).
			Str("origin", c.Request.Header.Get("Origin")).
			Msg("websocket upgrade failed")
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		addr: c.Request.RemoteAddr,
	}
	if !h.register(cl) {
		_ = conn.Close()
		return
	}

	go h.writePump(cl)
	go h.readPump(cl)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetRealtimeSubscribers(n)
	h.logger.Debug().Str("remoteAddr", c.addr).Int("subscribers", n).Msg("subscriber connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetRealtimeSubscribers(n)
	h.logger.Debug().Str("remoteAddr", c.addr).Int("subscribers", n).Msg("subscriber disconnected")
}

// readPump drains inbound frames so control messages are processed. Browsers
// have nothing to say on this channel.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundMessage)
	readWait := h.pingInterval * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("remoteAddr", c.addr).Msg("subscriber read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug().Err(err).Str("remoteAddr", c.addr).Msg("subscriber write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Stop disconnects every subscriber and rejects new ones.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	metrics.SetRealtimeSubscribers(0)
	h.logger.Info().Msg("realtime hub stopped")
}
