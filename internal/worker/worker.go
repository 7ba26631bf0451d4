package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/breaker"
	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/queue"
	"github.com/example/message-pipeline/internal/retry"
)

// validationFailedMessage is the audit error text recorded for messages that
// never reach the sink.
const validationFailedMessage = "Validation failed"

// circuitOpenMessage is the audit error text recorded when the breaker
// refused the commit.
const circuitOpenMessage = "Circuit breaker open"

// Result describes the outcome of one ProcessOne invocation.
type Result int

const (
	// ResultNoWork means the main queue was empty.
	ResultNoWork Result = iota
	// ResultOk means the message was committed to the sink.
	ResultOk
	// ResultFailed means the message was moved to the dead-letter queue.
	ResultFailed
)

// String returns the human readable name of the result.
func (r Result) String() string {
	switch r {
	case ResultNoWork:
		return "NoWork"
	case ResultOk:
		return "Ok"
	case ResultFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Sink persists processed records.
type Sink interface {
	Save(ctx context.Context, rec *models.ProcessedRecord) error
}

// AuditLog records start and end timestamps per message.
type AuditLog interface {
	LogStart(ctx context.Context, id uuid.UUID) error
	LogEnd(ctx context.Context, id uuid.UUID, success bool, errorMessage string) error
}

// ErrorLog receives one entry per failed commit attempt, one per scheduled
// retry and one attempt-0 entry when a commit finally fails.
type ErrorLog interface {
	Write(id uuid.UUID, attempt int, cause error) error
}

// Dependencies collects the collaborators the worker orchestrates. Queue and
// Sink are required; Retry, Breaker, ErrorLog and Audit are optional and
// default to no-op behaviour when absent.
type Dependencies struct {
	Queue    queue.Queue
	Sink     Sink
	Retry    *retry.Policy
	Breaker  *breaker.Breaker
	ErrorLog ErrorLog
	Audit    AuditLog
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Worker drains the main queue one message at a time: validate, transform,
// commit to the sink behind the configured resilience policies, and account
// for the outcome in the audit store, the error log and the DLQ. A worker
// instance runs a single processing thread; the components it holds tolerate
// concurrent use by other workers.
type Worker struct {
	queue       queue.Queue
	sink        Sink
	retry       *retry.Policy
	breaker     *breaker.Breaker
	errorLog    ErrorLog
	audit       AuditLog
	transformer *Transformer
	logger      zerolog.Logger
}

// New constructs a worker from its dependencies.
func New(deps Dependencies) (*Worker, error) {
	if deps.Queue == nil {
		return nil, errors.New("worker: queue dependency is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("worker: sink dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker").Logger()

	errorLog := deps.ErrorLog
	if errorLog == nil {
		errorLog = nopErrorLog{}
	}
	audit := deps.Audit
	if audit == nil {
		audit = nopAudit{}
	}

	return &Worker{
		queue:       deps.Queue,
		sink:        deps.Sink,
		retry:       deps.Retry,
		breaker:     deps.Breaker,
		errorLog:    errorLog,
		audit:       audit,
		transformer: NewTransformer(deps.Now),
		logger:      logger,
	}, nil
}

// ProcessOne handles a single message from the main queue. It returns
// ResultNoWork when the queue is empty, ResultOk when the message reached the
// sink and ResultFailed when it was dead-lettered. A non-nil error indicates
// an infrastructure failure (queue or store) outside the per-message failure
// plan.
func (w *Worker) ProcessOne(ctx context.Context) (Result, error) {
	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		return ResultNoWork, fmt.Errorf("worker: dequeue: %w", err)
	}
	if msg == nil {
		return ResultNoWork, nil
	}

	log := w.logger.With().Str("message_id", msg.ID.String()).Logger()

	if !msg.IsValid() {
		log.Warn().Str("source", msg.SourceSystem).Msg("message failed validation")
		msg.Status = models.StatusFailed
		if err := w.queue.EnqueueDLQ(ctx, msg); err != nil {
			return ResultFailed, fmt.Errorf("worker: dead-letter invalid message: %w", err)
		}
		if err := w.audit.LogStart(ctx, msg.ID); err != nil {
			return ResultFailed, err
		}
		if err := w.audit.LogEnd(ctx, msg.ID, false, validationFailedMessage); err != nil {
			return ResultFailed, err
		}
		return ResultFailed, nil
	}

	msg.Status = models.StatusProcessing
	if err := w.audit.LogStart(ctx, msg.ID); err != nil {
		return ResultFailed, err
	}

	rec := w.transformer.Transform(msg)

	commitErr := w.commit(ctx, rec)
	if commitErr == nil {
		msg.Status = models.StatusCompleted
		if err := w.audit.LogEnd(ctx, msg.ID, true, ""); err != nil {
			return ResultOk, err
		}
		log.Info().Msg("message processed")
		return ResultOk, nil
	}

	msg.Status = models.StatusFailed
	if err := w.queue.EnqueueDLQ(ctx, msg); err != nil {
		return ResultFailed, fmt.Errorf("worker: dead-letter failed message: %w", err)
	}
	if err := w.errorLog.Write(msg.ID, 0, commitErr); err != nil {
		log.Error().Err(err).Msg("failed to write error log entry")
	}

	reason := commitErr.Error()
	if errors.Is(commitErr, breaker.ErrCircuitOpen) {
		reason = circuitOpenMessage
		log.Warn().Msg("commit refused, circuit open")
	} else {
		log.Warn().Err(commitErr).Msg("commit failed, message dead-lettered")
	}
	if err := w.audit.LogEnd(ctx, msg.ID, false, reason); err != nil {
		return ResultFailed, err
	}
	return ResultFailed, nil
}

// ProcessUpTo runs ProcessOne at most n times, stopping early once the main
// queue drains. It returns the results of the invocations that found work.
func (w *Worker) ProcessUpTo(ctx context.Context, n int) ([]Result, error) {
	var results []Result
	for i := 0; i < n; i++ {
		res, err := w.ProcessOne(ctx)
		if err != nil {
			return results, err
		}
		if res == ResultNoWork {
			break
		}
		results = append(results, res)
	}
	return results, nil
}

// ProcessAll reads the queue depth once and processes that many messages.
// Messages enqueued while the loop runs are left for the next drain.
func (w *Worker) ProcessAll(ctx context.Context) ([]Result, error) {
	depth, err := w.queue.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("worker: read queue depth: %w", err)
	}
	return w.ProcessUpTo(ctx, depth)
}

// commit writes the record to the sink behind the breaker (when configured)
// wrapped around the retry policy (when configured). Every failing attempt is
// error-logged with its zero-based attempt number before the policy decides
// whether to retry; scheduled retries are error-logged through the observer
// before each wait.
func (w *Worker) commit(ctx context.Context, rec *models.ProcessedRecord) error {
	attempt := 0
	save := func() error {
		rec.Status = models.StatusCompleted
		err := w.sink.Save(ctx, rec)
		if err != nil {
			if lerr := w.errorLog.Write(rec.ID, attempt, err); lerr != nil {
				w.logger.Error().Err(lerr).Msg("failed to write error log entry")
			}
			attempt++
		}
		return err
	}

	run := save
	if w.retry != nil {
		pol := w.retry.WithObserver(func(n int, delay time.Duration) {
			scheduled := fmt.Errorf("worker: retry %d scheduled after %s", n, delay)
			if lerr := w.errorLog.Write(rec.ID, n, scheduled); lerr != nil {
				w.logger.Error().Err(lerr).Msg("failed to write error log entry")
			}
		})
		run = func() error {
			return pol.ExecuteContext(ctx, save)
		}
	}

	if w.breaker != nil {
		return w.breaker.Execute(run)
	}
	return run()
}

type nopErrorLog struct{}

func (nopErrorLog) Write(uuid.UUID, int, error) error { return nil }

type nopAudit struct{}

func (nopAudit) LogStart(context.Context, uuid.UUID) error { return nil }

func (nopAudit) LogEnd(context.Context, uuid.UUID, bool, string) error { return nil }
