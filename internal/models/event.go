package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceEvent is published to NATS after an enrollment or a recognition attempt.
type FaceEvent struct {
	Type      string     `json:"type"` // enrolled, recognized, unknown, no_face
	Timestamp time.Time  `json:"timestamp"`
	PersonID  *uuid.UUID `json:"person_id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Number    string     `json:"number,omitempty"`
	PhotoURL  string     `json:"photo_url,omitempty"`
	Faces     int        `json:"faces"`
	Embedded  bool       `json:"embedded"`
}

const (
	FaceEventEnrolled   = "enrolled"
	FaceEventRecognized = "recognized"
	FaceEventUnknown    = "unknown"
	FaceEventNoFace     = "no_face"
)
