package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/breaker"
	"github.com/example/message-pipeline/internal/config"
	"github.com/example/message-pipeline/internal/errlog"
	"github.com/example/message-pipeline/internal/logger"
	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/queue"
	"github.com/example/message-pipeline/internal/rabbit"
	"github.com/example/message-pipeline/internal/retry"
	"github.com/example/message-pipeline/internal/snapshot"
	"github.com/example/message-pipeline/internal/store"
	"github.com/example/message-pipeline/internal/worker"
)

func main() {
	useRabbit := flag.Bool("rabbitmq", false, "drain the RabbitMQ transport instead of the local queue")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "processor").Logger()

	db, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	sink, err := store.NewProcessedStore(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create processed store")
	}
	audit, err := store.NewAuditStore(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create audit store")
	}

	errorLog, err := errlog.New(cfg.Store.ErrorLogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open error log")
	}
	defer errorLog.Close()

	snap, err := snapshot.New(cfg.Store.SnapshotPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot store")
	}

	var q queue.Queue
	if *useRabbit {
		rq, err := rabbit.New(cfg.Rabbit.URL, cfg.Queue.Name, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to broker")
		}
		defer func() {
			if err := rq.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close broker connection")
			}
		}()
		q = rq
	} else {
		q = queue.NewMemory()
		if err := recoverSnapshot(ctx, snap, q, log); err != nil {
			log.Fatal().Err(err).Msg("failed to recover snapshot")
		}
	}

	policy, err := retry.New(cfg.Retry.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create retry policy")
	}
	brk, err := breaker.New(cfg.Breaker.FailureThreshold, cfg.Breaker.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create circuit breaker")
	}

	w, err := worker.New(worker.Dependencies{
		Queue:    q,
		Sink:     sink,
		Retry:    policy,
		Breaker:  brk,
		ErrorLog: errorLog,
		Audit:    audit,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker")
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read queue depth")
	}
	log.Info().Int("depth", depth).Msg("draining queue")

	var ok, failed, faults int
drain:
	for i := 0; i < depth; i++ {
		res, err := w.ProcessOne(ctx)
		if err != nil {
			log.Error().Err(err).Msg("processing fault, continuing drain")
			faults++
			continue
		}
		switch res {
		case worker.ResultNoWork:
			break drain
		case worker.ResultOk:
			ok++
		case worker.ResultFailed:
			failed++
		}
	}

	if !*useRabbit {
		if err := saveLeftovers(ctx, snap, q, log); err != nil {
			log.Error().Err(err).Msg("failed to save leftover messages")
		}
	}

	dlqDepth, err := q.DLQDepth(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read DLQ depth")
	}

	log.Info().
		Int("processed", ok).
		Int("dead_lettered", failed).
		Int("faults", faults).
		Int("dlq_depth", dlqDepth).
		Msg("drain complete")

	stats, err := audit.Statistics(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read audit statistics")
		return
	}
	log.Info().
		Int("total", stats.Total).
		Int("success", stats.Success).
		Int("failure", stats.Failure).
		Float64("avg_duration_ms", stats.AvgDurationMs).
		Float64("min_duration_ms", stats.MinDurationMs).
		Float64("max_duration_ms", stats.MaxDurationMs).
		Float64("success_rate", stats.SuccessRate).
		Msg("audit summary")
}

// recoverSnapshot re-enqueues the messages a previous run left unprocessed.
func recoverSnapshot(ctx context.Context, snap *snapshot.Store, q queue.Queue, log zerolog.Logger) error {
	messages, err := snap.Load()
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := q.Enqueue(ctx, msg); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("skipping message from snapshot")
		}
	}
	log.Info().Int("count", len(messages)).Msg("snapshot recovered")
	return nil
}

// saveLeftovers snapshots whatever the drain loop did not reach.
func saveLeftovers(ctx context.Context, snap *snapshot.Store, q queue.Queue, log zerolog.Logger) error {
	var pending []*models.Message
	for {
		msg, err := q.Dequeue(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			break
		}
		pending = append(pending, msg)
	}
	if err := snap.Save(pending); err != nil {
		return err
	}
	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("leftover messages snapshotted")
	}
	return nil
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("processor init failed")
}
