package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// statsWriteTimeout bounds the Redis writes done off the hub loop.
const statsWriteTimeout = 2 * time.Second

func NewHub(rc *pkgredis.Client, logger *zap.Logger) *Hub {
	h := &Hub{
		sidSession: make(map[string]string),
		broadcast:  make(chan Message, 256),
		register:   make(chan clientMeta, 256),
		unregister: make(chan clientMeta, 256),
		origin:     fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano()),
		rc:         rc,
		logger:     logger,
		engine:     socket.NewServer(nil, nil),
	}
	h.registerNamespace()
	return h
}

// Run pumps the hub channels until ctx ends. The Redis relay subscription
// runs alongside and feeds deliveries from other workers.
func (h *Hub) Run(ctx context.Context) {
	go h.relayFromPeers(ctx)

	for {
		select {
		case <-ctx.Done():
			h.engine.Close(nil)
			return

		case cm := <-h.register:
			h.registerClient(cm)

		case cm := <-h.unregister:
			h.unregisterClient(cm)

		case m := <-h.broadcast:
			h.deliver(m)
			h.publishToPeers(ctx, m)
		}
	}
}

// publishToPeers relays a locally produced message to the other workers over
// Redis. The origin tag keeps this worker from replaying its own message.
func (h *Hub) publishToPeers(ctx context.Context, msg Message) {
	if h.rc == nil {
		return
	}
	msg.Origin = h.origin
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.rc.Publish(ctx, redisChanPublic, string(data)); err != nil && h.logger != nil {
		h.logger.Warn("gateway publish failed", zap.String("channel", redisChanPublic), zap.Error(err))
	}
}

func (h *Hub) registerClient(cm clientMeta) {
	h.mu.Lock()
	_, known := h.sidSession[cm.sid]
	if !known {
		h.sidSession[cm.sid] = cm.sessionID
	}
	online := len(h.sidSession)
	h.mu.Unlock()

	if known {
		return
	}
	h.BroadcastPublic(eventVisitorOnline, newVisitorEventPayload(online, ""))
	h.updateDailyOnlineStats(online)
}

func (h *Hub) unregisterClient(cm clientMeta) {
	h.mu.Lock()
	stored, known := h.sidSession[cm.sid]
	if known {
		delete(h.sidSession, cm.sid)
	}
	online := len(h.sidSession)
	h.mu.Unlock()

	if !known {
		return
	}
	session := stored
	if session == "" {
		session = cm.sessionID
	}
	h.BroadcastPublic(eventVisitorOffline, newVisitorEventPayload(online, session))
}

// updateClientSession rebinds a connected socket to a new session id and
// reports whether anything changed, along with the current online count.
func (h *Hub) updateClientSession(sid, sessionID string) (string, bool, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	online := len(h.sidSession)
	current, connected := h.sidSession[sid]
	if !connected {
		return sessionID, false, online
	}
	if current == sessionID {
		return current, false, online
	}
	h.sidSession[sid] = sessionID
	return sessionID, true, online
}

func (h *Hub) updateDailyOnlineStats(online int) {
	if h.rc == nil || online < 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsWriteTimeout)
	defer cancel()
	day := shortDateKey(time.Now())

	if online > h.recordedMaxOnline(ctx, day) {
		if err := h.rc.Raw().HSet(ctx, redisKeyMaxOnlineCount, day, online).Err(); err != nil && h.logger != nil {
			h.logger.Warn("gateway record max online failed", zap.Error(err))
		}
	}

	if err := h.rc.Raw().HIncrBy(ctx, redisKeyMaxOnlineCountTotal, day, 1).Err(); err != nil && h.logger != nil {
		h.logger.Warn("gateway bump visit total failed", zap.Error(err))
	}
}

func (h *Hub) recordedMaxOnline(ctx context.Context, day string) int {
	raw, err := h.rc.Raw().HGet(ctx, redisKeyMaxOnlineCount, day).Result()
	if err != nil {
		if err != redis.Nil && h.logger != nil {
			h.logger.Warn("gateway get max online failed", zap.Error(err))
		}
		return 0
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil {
		return 0
	}
	return n
}

func shortDateKey(at time.Time) string {
	return at.Format("1-2-06")
}

func newVisitorEventPayload(online int, session string) map[string]interface{} {
	now := time.Now().UTC()
	ev := map[string]interface{}{
		"online":    online,
		"timestamp": now.Format(time.RFC3339Nano),
	}
	if session != "" {
		ev["sessionId"] = session
	}
	return ev
}

// BroadcastPublic sends an event to every connected client, on every worker.
func (h *Hub) BroadcastPublic(event string, data interface{}) {
	h.broadcast <- Message{Event: event, Payload: data}
}

// ClientCount returns the number of connected clients on this worker.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sidSession)
}

// Handler exposes the socket.io engine for mounting under /socket.io/.
func (h *Hub) Handler() http.Handler {
	return h.engine.ServeHandler(nil)
}
