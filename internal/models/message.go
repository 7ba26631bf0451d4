package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks a message through its lifecycle. The numeric values are part
// of the persisted and wire representations and must not be reordered.
type Status int

const (
	StatusCreated Status = iota
	StatusSent
	StatusReceived
	StatusProcessing
	StatusCompleted
	StatusFailed
)

// String returns the human readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusSent:
		return "Sent"
	case StatusReceived:
		return "Received"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Message is the unit of work flowing through the pipeline. The JSON field
// names are shared by the snapshot file and the broker wire format.
type Message struct {
	ID           uuid.UUID `json:"MessageId"`
	Timestamp    time.Time `json:"Timestamp"`
	SourceSystem string    `json:"SourceSystem"`
	Payload      string    `json:"Payload"`
	Status       Status    `json:"Status"`
}

// New builds a message with a fresh identifier and a UTC creation timestamp.
func New(source, payload string) *Message {
	return &Message{
		ID:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		SourceSystem: source,
		Payload:      payload,
		Status:       StatusCreated,
	}
}

// IsValid reports whether the message carries a usable source and payload.
// Whitespace-only values are rejected.
func (m *Message) IsValid() bool {
	return strings.TrimSpace(m.SourceSystem) != "" && strings.TrimSpace(m.Payload) != ""
}
