package gateway

import (
	"context"
	"encoding/json"
)

func (h *Hub) gatewayMessageFormat(event string, data interface{}, code *int) wirePayload {
	return wirePayload{Type: event, Data: data, Code: code}
}

func (h *Hub) deliver(m Message) {
	h.engine.Of(namespaceWeb, nil).Emit("message", h.gatewayMessageFormat(m.Event, m.Payload, m.Code))
}

// relayFromPeers feeds broadcasts published by other workers into this
// worker's sockets. Messages tagged with our own origin are skipped.
func (h *Hub) relayFromPeers(ctx context.Context) {
	if h.rc == nil {
		return
	}

	pubsub := h.rc.Subscribe(ctx, redisChanPublic)
	defer pubsub.Close()

	feed := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case in, ok := <-feed:
			if !ok {
				return
			}
			var m Message
			if err := json.Unmarshal([]byte(in.Payload), &m); err != nil {
				continue
			}
			if m.Origin == h.origin {
				continue
			}
			h.deliver(m)
		}
	}
}
