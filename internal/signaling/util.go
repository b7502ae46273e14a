package signaling

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fieldops/watchtower/internal/logging"
)

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// mustJSON marshals v for an outbound send. Marshal failures here mean a
// programmer error in one of this package's own payload types, not a
// client-triggerable condition, so this logs and returns an empty frame
// rather than propagating an error through every call site.
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "signaling: failed to marshal outbound payload", zap.Error(err))
		return []byte(`{"type":"error","code":"INTERNAL","message":"encode failure"}`)
	}
	return data
}

// errorEvent is the wire shape for the closed-set `error {code, message}`
// event (spec §6).
type errorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Hub) sendError(c *Client, code, message string) {
	c.Send(mustJSON(errorEvent{Type: "error", Code: code, Message: message}))
}
