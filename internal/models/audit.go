package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit status values persisted in the audit store.
const (
	AuditStatusProcessing = "Processing"
	AuditStatusCompleted  = "Completed"
	AuditStatusFailed     = "Failed"
)

// AuditRecord captures the timing and outcome of one processing attempt for a
// message. EndTime and DurationMs are nil while the message is in flight.
type AuditRecord struct {
	ID           int64
	MessageID    uuid.UUID
	StartTime    time.Time
	EndTime      *time.Time
	DurationMs   *float64
	Status       string
	ErrorMessage string
}

// AuditStatistics summarises completed audit rows, i.e. rows that carry a
// duration.
type AuditStatistics struct {
	Total         int
	Success       int
	Failure       int
	AvgDurationMs float64
	MinDurationMs float64
	MaxDurationMs float64
	SuccessRate   float64
}
