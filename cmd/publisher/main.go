package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/message-pipeline/internal/config"
	"github.com/example/message-pipeline/internal/logger"
	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/queue"
	"github.com/example/message-pipeline/internal/rabbit"
	"github.com/example/message-pipeline/internal/snapshot"
)

const publishConcurrency = 4

// batch is the scripted set of messages every publisher run emits. The empty
// source is deliberate: it exercises the processor's validation path.
var batch = []struct {
	source  string
	payload string
}{
	{"OrderService", "Order 1001 created"},
	{"OrderService", "Order 1002 created"},
	{"BillingService", "Invoice 77 issued"},
	{"InventoryService", "SKU 9-P restocked"},
	{"", "Orphaned event without a source"},
}

func main() {
	useRabbit := flag.Bool("rabbitmq", false, "publish through the RabbitMQ transport instead of the local queue")
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
	log := baseLogger.With().Str("service", "publisher").Logger()

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
	}

	messages := make([]*models.Message, 0, len(batch))
	for _, item := range batch {
		messages = append(messages, models.New(item.source, item.payload))
	}

	sem := semaphore.NewWeighted(publishConcurrency)
	var wg sync.WaitGroup
	for _, msg := range messages {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Error().Err(err).Msg("publish interrupted")
			break
		}
		wg.Add(1)
		go func(msg *models.Message) {
			defer sem.Release(1)
			defer wg.Done()
			if err := q.Enqueue(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to publish message")
				return
			}
			log.Info().Str("message_id", msg.ID.String()).Str("source", msg.SourceSystem).Msg("message published")
		}(msg)
	}
	wg.Wait()

	// Re-publishing an id that is still resident demonstrates the dedup
	// contract of the local queue. The broker adapter accepts it.
	dup := *messages[0]
	if err := q.Enqueue(ctx, &dup); err != nil {
		if errors.Is(err, queue.ErrDuplicateMessage) {
			log.Warn().Str("message_id", dup.ID.String()).Msg("duplicate publish rejected by queue")
		} else {
			log.Error().Err(err).Str("message_id", dup.ID.String()).Msg("failed to publish duplicate")
		}
	} else {
		log.Info().Str("message_id", dup.ID.String()).Msg("duplicate accepted, dedup is delegated upstream")
	}

	// Without a broker the queue dies with this process; the snapshot file is
	// the hand-off to the processor.
	if !*useRabbit {
		if err := saveSnapshot(ctx, q, cfg.Store.SnapshotPath, log); err != nil {
			log.Fatal().Err(err).Msg("failed to snapshot published messages")
		}
	}

	log.Info().Int("count", len(messages)).Msg("batch published")
}

func saveSnapshot(ctx context.Context, q queue.Queue, path string, log zerolog.Logger) error {
	snap, err := snapshot.New(path, log)
	if err != nil {
		return err
	}

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

	log.Info().Int("count", len(pending)).Str("path", path).Msg("pending messages snapshotted")
	return nil
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("publisher init failed")
}
