package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/queue"
)

// dlqSuffix is appended to the main queue name to derive the dead-letter
// queue.
const dlqSuffix = "-dlq"

// Queue implements the transport abstraction over a RabbitMQ broker. Both the
// main queue and its dead-letter sibling are declared durable on
// construction. Publishes run in confirm mode so Enqueue blocks until the
// broker has accepted the message. Deduplication is left to upstream
// publishers; the adapter never rejects a duplicate id.
type Queue struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	name    string
	dlqName string
	logger  zerolog.Logger
}

// New connects to the broker at url and declares the main queue and its DLQ.
func New(url, name string, logger zerolog.Logger) (*Queue, error) {
	if url == "" {
		return nil, errors.New("rabbit: broker url is required")
	}
	if name == "" {
		return nil, errors.New("rabbit: queue name is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "rabbit_queue").Str("queue", name).Logger()

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit: connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbit: open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbit: enable confirm mode: %w", err)
	}

	q := &Queue{
		conn:    conn,
		ch:      ch,
		name:    name,
		dlqName: name + dlqSuffix,
		logger:  logger,
	}

	for _, qn := range []string{q.name, q.dlqName} {
		if _, err := ch.QueueDeclare(qn, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("rabbit: declare queue %q: %w", qn, err)
		}
	}

	logger.Info().Str("dlq", q.dlqName).Msg("connected to broker")
	return q, nil
}

// Enqueue publishes msg to the main queue and marks it sent. The call blocks
// until the broker confirms the publish.
func (q *Queue) Enqueue(ctx context.Context, msg *models.Message) error {
	msg.Status = models.StatusSent
	return q.publish(ctx, q.name, msg)
}

// Dequeue fetches one message from the main queue, or (nil, nil) when the
// queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*models.Message, error) {
	return q.get(ctx, q.name)
}

// Depth returns the broker-reported number of messages ready on the main
// queue.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	return q.depth(ctx, q.name)
}

// EnqueueDLQ publishes msg to the dead-letter queue.
func (q *Queue) EnqueueDLQ(ctx context.Context, msg *models.Message) error {
	return q.publish(ctx, q.dlqName, msg)
}

// DequeueDLQ fetches one message from the dead-letter queue, or (nil, nil)
// when it is empty.
func (q *Queue) DequeueDLQ(ctx context.Context) (*models.Message, error) {
	return q.get(ctx, q.dlqName)
}

// DLQDepth returns the broker-reported number of messages ready on the
// dead-letter queue.
func (q *Queue) DLQDepth(ctx context.Context) (int, error) {
	return q.depth(ctx, q.dlqName)
}

// Close releases the channel and the connection.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return fmt.Errorf("rabbit: close channel: %w", err)
	}
	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("rabbit: close connection: %w", err)
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, queueName string, msg *models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbit: marshal message: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	confirm, err := q.ch.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID.String(),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbit: publish to %q: %w", queueName, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbit: await confirm for %q: %w", queueName, err)
	}
	if !acked {
		return fmt.Errorf("rabbit: broker rejected publish to %q", queueName)
	}
	return nil
}

func (q *Queue) get(_ context.Context, queueName string) (*models.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delivery, ok, err := q.ch.Get(queueName, true)
	if err != nil {
		return nil, fmt.Errorf("rabbit: get from %q: %w", queueName, err)
	}
	if !ok {
		return nil, nil
	}

	var msg models.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		return nil, fmt.Errorf("rabbit: unmarshal message body: %w", err)
	}
	return &msg, nil
}

func (q *Queue) depth(_ context.Context, queueName string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, err := q.ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("rabbit: inspect queue %q: %w", queueName, err)
	}
	return state.Messages, nil
}

var _ queue.Queue = (*Queue)(nil)
