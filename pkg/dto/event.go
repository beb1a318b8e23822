package dto

import "encoding/json"

// WSEvent is a WebSocket message for the live recognition feed. Data is the
// face event as published on the queue.
type WSEvent struct {
	Type string          `json:"type"` // enrolled, recognized, unknown, no_face
	Data json.RawMessage `json:"data"`
}
