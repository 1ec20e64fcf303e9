package gateway

import (
	"sync"

	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceWeb = "/web"

	redisChanPublic = "echo:gateway:public"

	redisKeyMaxOnlineCount      = "echo:gateway:max_online"
	redisKeyMaxOnlineCountTotal = "echo:gateway:max_online:total"

	// EventNodeCreated is broadcast whenever ingestion persists a new node.
	EventNodeCreated = "node_created"

	eventVisitorOnline  = "visitor_online"
	eventVisitorOffline = "visitor_offline"

	messageUpdateSID = "update_sid"
)

// Message is one gateway broadcast. It crosses the Redis wire between
// workers, so every field has to survive a JSON round trip.
// Origin never reaches socket.io clients; it only tags the Redis wire
// so a worker can skip messages it published itself.
type Message struct {
	Event   string      `json:"event"`          // client-visible event name
	Payload interface{} `json:"payload"`        // event body, must be JSON-safe
	Code    *int        `json:"code,omitempty"` // set on error frames
	Origin  string      `json:"origin,omitempty"`
}

// wirePayload is the frame socket.io clients receive: {type, data, code}.
type wirePayload struct {
	Type string      `json:"type"` // mirrors Message.Event
	Data interface{} `json:"data"` // mirrors Message.Payload
	Code *int        `json:"code,omitempty"`
}

type clientMeta struct {
	sid       string
	sessionID string
}

// Hub manages the public socket.io namespace and cluster fan-out.
type Hub struct {
	mu sync.RWMutex

	sidSession map[string]string

	broadcast  chan Message
	register   chan clientMeta // connect events, drained by Run
	unregister chan clientMeta // disconnect events

	origin string

	rc     *pkgredis.Client
	logger *zap.Logger
	engine *socket.Server
}
