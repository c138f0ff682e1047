package notify

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/internal/metrics"
	"github.com/chainscope/bridge-sentinel/pkg/auth"
	"github.com/chainscope/bridge-sentinel/pkg/config"
)

// CredentialVerifier authenticates handshake credentials.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (*auth.Identity, error)
}

// Hub owns every websocket connection and the channel rooms. Broadcasts
// never block on a slow client: a full per-client queue triggers that
// client's disconnect path and delivery to the rest continues.
type Hub struct {
	cfg    *config.HubConfig
	gate   CredentialVerifier
	logger *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewHub(cfg *config.HubConfig, gate CredentialVerifier, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		gate:   gate,
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the heartbeat sweep.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.sweepLoop()
	h.logger.Info("Notification hub started",
		zap.Duration("heartbeat_interval", h.cfg.HeartbeatInterval),
		zap.Duration("stale_timeout", h.cfg.StaleTimeout))
}

// Stop ends the sweep and closes every connection.
func (h *Hub) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Disconnect(c)
	}
	h.logger.Info("Notification hub stopped")
}

// ServeWS is the websocket handshake endpoint. The bearer credential
// comes from the token query parameter or the Authorization header; a
// missing or invalid credential closes the connection as unauthorized.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	identity, err := h.gate.VerifyCredential(r.Context(), credential)
	if err != nil {
		h.logger.Debug("Rejected websocket handshake", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !identity.HasPermission(auth.PermStreamSubscribe) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.New().String(), identity, conn, h)
	h.register(client)

	client.deliver(connectionEstablished(client.id))

	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	metrics.HubConnections.Set(float64(total))
	h.logger.Info("Client connected",
		zap.String("client_id", c.id),
		zap.String("user_id", c.identity.UserID),
		zap.String("role", string(c.identity.Role)))
}

// Disconnect removes the client from every room and releases its
// resources. Safe to call from any path, repeatedly.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, known := h.clients[c.id]; !known {
		h.mu.Unlock()
		c.close()
		return
	}
	delete(h.clients, c.id)
	for channel, room := range h.rooms {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, channel)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	metrics.HubConnections.Set(float64(total))
	h.logger.Info("Client disconnected", zap.String("client_id", c.id))
}

// Subscribe joins the client to each requested channel its role allows.
// Denied channels are skipped silently; the returned slice holds only the
// channels actually granted.
func (h *Hub) Subscribe(c *Client, channels []string) []string {
	granted := make([]string, 0, len(channels))

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, known := h.clients[c.id]; !known {
		return granted
	}
	for _, channel := range channels {
		if !CanSubscribe(c.identity.Role, channel) {
			continue
		}
		room := h.rooms[channel]
		if room == nil {
			room = make(map[string]*Client)
			h.rooms[channel] = room
		}
		room[c.id] = c
		granted = append(granted, channel)
	}
	return granted
}

// Unsubscribe removes the client from each named channel and returns the
// channels it actually left.
func (h *Hub) Unsubscribe(c *Client, channels []string) []string {
	removed := make([]string, 0, len(channels))

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, channel := range channels {
		room, ok := h.rooms[channel]
		if !ok {
			continue
		}
		if _, member := room[c.id]; !member {
			continue
		}
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, channel)
		}
		removed = append(removed, channel)
	}
	return removed
}

// SubscriptionsOf lists the channels the client currently belongs to.
func (h *Hub) SubscriptionsOf(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	channels := make([]string, 0, 4)
	for channel, room := range h.rooms {
		if _, member := room[c.id]; member {
			channels = append(channels, channel)
		}
	}
	return channels
}

// Broadcast delivers the payload, stamped with a delivery timestamp, to
// every open subscriber of the channel. A client whose queue is full is
// disconnected without holding up the rest.
func (h *Hub) Broadcast(channel string, msg Outbound) {
	if _, ok := msg["timestamp"]; !ok {
		msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.rooms[channel]))
	for _, c := range h.rooms[channel] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}
	metrics.HubBroadcasts.WithLabelValues(channel).Inc()

	for _, c := range subscribers {
		if !c.deliver(msg) {
			h.logger.Warn("Delivery failed, dropping client",
				zap.String("client_id", c.id),
				zap.String("channel", channel))
			h.Disconnect(c)
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sweepLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sweepStale(time.Now())
		}
	}
}

// sweepStale closes every connection whose last heartbeat exceeds the
// staleness threshold.
func (h *Hub) sweepStale(now time.Time) {
	h.mu.RLock()
	stale := make([]*Client, 0)
	for _, c := range h.clients {
		if c.heartbeatAge(now) > h.cfg.StaleTimeout {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Info("Evicting stale client",
			zap.String("client_id", c.id),
			zap.Duration("heartbeat_age", c.heartbeatAge(now)))
		metrics.HubEvictions.Inc()
		h.Disconnect(c)
	}
}
