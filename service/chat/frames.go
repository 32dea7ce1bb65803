package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Gateway-originated events. Operation events live with their handlers.
const (
	EventConnectionSuccess = "connection_success"
	EventValidationError   = "validation_error"
	EventException         = "exception"
	EventUserStatusUpdated = "user_status_updated"
)

// Frame is the wire envelope in both directions: {"event": ..., "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var errEmptyEvent = errors.New("frame has no event")

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, errEmptyEvent
	}
	return f, nil
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodeFrame marshals one outbound frame. data may already be a
// json.RawMessage.
func EncodeFrame(event string, data any) ([]byte, error) {
	b, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}

type ConnectionSuccess struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId"`
}

type UserStatus struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}
