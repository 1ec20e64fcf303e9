package gateway

import (
	"encoding/json"
	"strings"

	"github.com/zishang520/socket.io/v2/socket"
)

// inboundEvent is one client-to-server frame on the /web namespace.
type inboundEvent struct {
	Type    string                 `json:"type"`    // message kind, e.g. update_sid
	Payload map[string]interface{} `json:"payload"` // kind-specific fields
}

func (h *Hub) registerNamespace() {
	webNS := h.engine.Of(namespaceWeb, nil)
	_ = webNS.On("connection", func(clients ...any) {
		if client, ok := clients[0].(*socket.Socket); ok {
			h.attachWebClient(client)
		}
	})
}

// attachWebClient wires the lifecycle of one /web socket. The session id is
// mutable state shared by the message and disconnect handlers, so both close
// over it.
func (h *Hub) attachWebClient(client *socket.Socket) {
	sid := string(client.Id())
	sessionID := normalizeSessionID(extractSessionID(client, sid), sid)

	h.register <- clientMeta{sid: sid, sessionID: sessionID}
	_ = client.Emit("message", h.gatewayMessageFormat("GATEWAY_CONNECT", "WebSocket connected", nil))

	_ = client.On("message", func(frames ...any) {
		msg, ok := parseInboundEvent(frames...)
		if !ok || msg.Type != messageUpdateSID {
			return
		}
		next := sessionIDFromPayload(msg.Payload)
		if next == "" {
			return
		}
		effective, changed, online := h.updateClientSession(sid, next)
		sessionID = normalizeSessionID(effective, sid)
		if changed {
			h.BroadcastPublic(eventVisitorOnline, newVisitorEventPayload(online, ""))
			h.updateDailyOnlineStats(online)
		}
	})

	_ = client.On("disconnect", func(_ ...any) {
		h.unregister <- clientMeta{sid: sid, sessionID: sessionID}
	})
}

func sessionIDFromPayload(payload map[string]interface{}) string {
	return firstNonEmptyString(
		strFromAny(payload["sessionId"]),
		strFromAny(payload["session_id"]),
	)
}

func extractSessionID(client *socket.Socket, fallback string) string {
	hs := client.Handshake()
	if hs == nil {
		return fallback
	}
	sources := []struct {
		values map[string][]string
		key    string
	}{
		{hs.Query, "socket_session_id"},
		{hs.Headers, "x-socket-session-id"},
	}
	for _, src := range sources {
		if sid := firstValueFromMultiMap(src.values, src.key); sid != "" {
			return sid
		}
	}
	return fallback
}

// firstValueFromMultiMap matches the key case-insensitively, the way HTTP
// header maps arrive.
func firstValueFromMultiMap(m map[string][]string, key string) string {
	for name, vals := range m {
		if !strings.EqualFold(strings.TrimSpace(name), key) {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		if v := strings.TrimSpace(vals[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeSessionID(raw, fallback string) string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return fallback
}

// parseInboundEvent accepts whatever shape the socket.io client sent the
// event payload in. Frames without a type are dropped.
func parseInboundEvent(frames ...any) (inboundEvent, bool) {
	if len(frames) == 0 || frames[0] == nil {
		return inboundEvent{}, false
	}
	ev, ok := decodeInboundEvent(frames[0])
	if !ok {
		return inboundEvent{}, false
	}

	ev.Type = strings.TrimSpace(ev.Type)
	if ev.Type == "" {
		return inboundEvent{}, false
	}
	if ev.Payload == nil {
		ev.Payload = map[string]interface{}{}
	}
	return ev, true
}

func decodeInboundEvent(raw any) (inboundEvent, bool) {
	switch v := raw.(type) {
	case inboundEvent:
		return v, true
	case map[string]interface{}:
		return inboundEvent{Type: strFromAny(v["type"]), Payload: mapFromAny(v["payload"])}, true
	case string:
		return unmarshalInboundEvent([]byte(v))
	case []byte:
		return unmarshalInboundEvent(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return inboundEvent{}, false
		}
		return unmarshalInboundEvent(data)
	}
}

func unmarshalInboundEvent(data []byte) (inboundEvent, bool) {
	var msg inboundEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return inboundEvent{}, false
	}
	return msg, true
}

// mapFromAny coerces an arbitrary decoded value into a string-keyed map,
// returning an empty map rather than failing.
func mapFromAny(raw interface{}) map[string]interface{} {
	if m, ok := raw.(map[string]interface{}); ok {
		return m
	}
	out := map[string]interface{}{}
	if raw == nil {
		return out
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		out = map[string]interface{}{}
	}
	return out
}

func strFromAny(raw interface{}) string {
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonEmptyString(candidates ...string) string {
	for _, cand := range candidates {
		if trimmed := strings.TrimSpace(cand); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
