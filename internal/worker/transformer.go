package worker

import (
	"time"

	"github.com/example/message-pipeline/internal/models"
)

// processedPrefix is prepended to the payload of every committed record.
const processedPrefix = "PROCESSED_"

// Transformer maps an inbound message to its processed record. The mapping is
// deterministic for a fixed clock.
type Transformer struct {
	now func() time.Time
}

// NewTransformer constructs a transformer. A nil clock defaults to time.Now.
func NewTransformer(now func() time.Time) *Transformer {
	if now == nil {
		now = time.Now
	}
	return &Transformer{now: now}
}

// Transform copies the message into a record with the prefixed payload, the
// processing status and the current instant. The input message is not
// modified.
func (t *Transformer) Transform(msg *models.Message) *models.ProcessedRecord {
	rec := &models.ProcessedRecord{
		Message:     *msg,
		ProcessedAt: t.now().UTC(),
	}
	rec.Payload = processedPrefix + msg.Payload
	rec.Status = models.StatusProcessing
	return rec
}
