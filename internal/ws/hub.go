package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sendTimeout = 5 * time.Second

// Conn is one live observer. The hub only needs to push messages; the
// WebSocket adapter and test fakes both satisfy this.
type Conn interface {
	Send(ctx context.Context, msg any) error
}

// ConnectedMessage confirms registration and carries the assigned id.
type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// Hub tracks live connections and their channel subscriptions and fans
// broadcasts out to them. A failed send is treated as a disconnect.
type Hub struct {
	log *zap.Logger

	mu    sync.RWMutex
	conns map[string]Conn
	subs  map[string]map[string]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:   log,
		conns: make(map[string]Conn),
		subs:  make(map[string]map[string]struct{}),
	}
}

// Register admits a connection, assigns it an id and sends the
// confirmation message.
func (h *Hub) Register(conn Conn) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.conns[id] = conn
	h.subs[id] = make(map[string]struct{})
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := conn.Send(ctx, ConnectedMessage{Type: "connected", ConnectionID: id}); err != nil {
		h.log.Warn("failed to send registration ack", zap.String("connection_id", id), zap.Error(err))
		h.Unregister(id)
	}

	return id
}

// Subscribe adds the connection to a channel. Subscribing twice is a no-op.
func (h *Hub) Subscribe(connID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[connID]; ok {
		subs[channel] = struct{}{}
	}
}

// Unsubscribe removes the connection from a channel. Unsubscribing a
// non-member is a no-op.
func (h *Hub) Unsubscribe(connID, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[connID]; ok {
		delete(subs, channel)
	}
}

// Unregister drops the connection and all of its subscriptions.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	delete(h.subs, connID)
}

// ConnectionCount reports the number of live observers.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// matches reports whether a subscription covers a broadcast channel. A
// subscription "job:*" covers every channel starting with "job:".
func matches(sub, channel string) bool {
	if sub == channel {
		return true
	}
	if strings.HasSuffix(sub, ":*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(sub, "*"))
	}
	return false
}

type recipient struct {
	id   string
	conn Conn
}

// Broadcast delivers message to every connection subscribed to channel,
// exactly or by wildcard. The recipient set is snapshotted up front so
// concurrent subscription changes cannot disturb the send loop; a failed
// send evicts that connection and never affects the others.
func (h *Hub) Broadcast(channel string, message any) {
	h.mu.RLock()
	var recipients []recipient
	for id, subs := range h.subs {
		for sub := range subs {
			if matches(sub, channel) {
				if conn, ok := h.conns[id]; ok {
					recipients = append(recipients, recipient{id: id, conn: conn})
				}
				break
			}
		}
	}
	h.mu.RUnlock()

	for _, r := range recipients {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := r.conn.Send(ctx, message)
		cancel()
		if err != nil {
			h.log.Warn("broadcast delivery failed, dropping connection",
				zap.String("connection_id", r.id),
				zap.String("channel", channel),
				zap.Error(err))
			h.Unregister(r.id)
		}
	}
}
