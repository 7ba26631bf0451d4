package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/message-pipeline/internal/models"
)

// Memory is a process-local, unbounded FIFO queue pair. Enqueue deduplicates
// on message id: an id stays reserved while its message is resident in the
// main queue and is released again when the message is dequeued. The DLQ has
// no dedup set.
type Memory struct {
	mu       sync.Mutex
	main     []*models.Message
	dlq      []*models.Message
	resident map[uuid.UUID]struct{}
}

// NewMemory constructs an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{resident: make(map[uuid.UUID]struct{})}
}

// Enqueue appends msg to the main queue and marks it sent. It fails with
// ErrDuplicateMessage when a message with the same id is already resident.
func (q *Memory) Enqueue(_ context.Context, msg *models.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.resident[msg.ID]; ok {
		return ErrDuplicateMessage
	}
	msg.Status = models.StatusSent
	q.resident[msg.ID] = struct{}{}
	q.main = append(q.main, msg)
	return nil
}

// Dequeue removes and returns the oldest message from the main queue, or
// (nil, nil) when the queue is empty. The message id leaves the dedup set so
// a later re-submission of the same id is accepted again.
func (q *Memory) Dequeue(_ context.Context) (*models.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.main) == 0 {
		return nil, nil
	}
	msg := q.main[0]
	q.main = q.main[1:]
	delete(q.resident, msg.ID)
	return msg, nil
}

// Depth returns the number of messages waiting in the main queue.
func (q *Memory) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.main), nil
}

// EnqueueDLQ appends msg to the dead-letter queue. Duplicates are accepted.
func (q *Memory) EnqueueDLQ(_ context.Context, msg *models.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dlq = append(q.dlq, msg)
	return nil
}

// DequeueDLQ removes and returns the oldest dead-lettered message, or
// (nil, nil) when the DLQ is empty.
func (q *Memory) DequeueDLQ(_ context.Context) (*models.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.dlq) == 0 {
		return nil, nil
	}
	msg := q.dlq[0]
	q.dlq = q.dlq[1:]
	return msg, nil
}

// DLQDepth returns the number of messages waiting in the dead-letter queue.
func (q *Memory) DLQDepth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq), nil
}

var _ Queue = (*Memory)(nil)
