package queue

import (
	"context"
	"errors"

	"github.com/example/message-pipeline/internal/models"
)

// ErrDuplicateMessage is returned by Enqueue when a message with the same id
// is already resident in the main queue. The queue is left unchanged.
var ErrDuplicateMessage = errors.New("queue: duplicate message")

// Queue is the transport abstraction the pipeline programs against. Both the
// in-memory implementation and the broker adapter provide a FIFO main queue
// and a sibling dead-letter queue.
//
// Dequeue and DequeueDLQ return (nil, nil) when the corresponding queue is
// empty.
type Queue interface {
	Enqueue(ctx context.Context, msg *models.Message) error
	Dequeue(ctx context.Context) (*models.Message, error)
	Depth(ctx context.Context) (int, error)

	EnqueueDLQ(ctx context.Context, msg *models.Message) error
	DequeueDLQ(ctx context.Context) (*models.Message, error)
	DLQDepth(ctx context.Context) (int, error)
}
