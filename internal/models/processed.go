package models

import "time"

// ProcessedRecord is the durable result of transforming a message. It carries
// every message field plus the instant the worker committed it.
type ProcessedRecord struct {
	Message
	ProcessedAt time.Time `json:"ProcessedAt"`
}
