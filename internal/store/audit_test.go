package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/store"
)

// stepClock advances by a fixed step on every read, so durations are
// deterministic.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func openAudit(t *testing.T, clock *stepClock) *store.AuditStore {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.NewAuditStore(db, zerolog.Nop(), store.WithAuditClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestLogStartCreatesProcessingRow(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(100*time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogStart(ctx, id))

	rec, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, models.AuditStatusProcessing, rec.Status)
	require.Nil(t, rec.EndTime)
	require.Nil(t, rec.DurationMs)
	require.Empty(t, rec.ErrorMessage)
}

func TestLogEndComputesDurationAndStatus(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(150*time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogStart(ctx, id))
	require.NoError(t, s.LogEnd(ctx, id, true, ""))

	rec, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, models.AuditStatusCompleted, rec.Status)
	require.NotNil(t, rec.EndTime)
	require.NotNil(t, rec.DurationMs)
	require.InDelta(t, 150.0, *rec.DurationMs, 0.001)
	require.Empty(t, rec.ErrorMessage)
}

func TestLogEndFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(10*time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogStart(ctx, id))
	require.NoError(t, s.LogEnd(ctx, id, false, "Validation failed"))

	rec, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, models.AuditStatusFailed, rec.Status)
	require.Equal(t, "Validation failed", rec.ErrorMessage)
}

func TestLogEndWithoutStartIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogEnd(ctx, id, true, ""))

	rec, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestLogStartDuplicateIsStoreError(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogStart(ctx, id))
	require.ErrorIs(t, s.LogStart(ctx, id), store.ErrDuplicateKey)
}

func TestLogStartLogEndAlternation(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(time.Millisecond))

	id := uuid.New()
	require.NoError(t, s.LogStart(ctx, id))
	require.NoError(t, s.LogEnd(ctx, id, false, "first failure"))
	require.NoError(t, s.LogEnd(ctx, id, true, ""))

	rec, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.AuditStatusCompleted, rec.Status)
}

func TestGetAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(time.Second))

	older := uuid.New()
	newer := uuid.New()
	require.NoError(t, s.LogStart(ctx, older))
	require.NoError(t, s.LogStart(ctx, newer))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, newer, all[0].MessageID)
	require.Equal(t, older, all[1].MessageID)
	require.True(t, all[0].StartTime.After(all[1].StartTime))
}

func TestStatisticsAggregatesFinishedRows(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(100*time.Millisecond))

	success := uuid.New()
	failure := uuid.New()
	inflight := uuid.New()

	require.NoError(t, s.LogStart(ctx, success))
	require.NoError(t, s.LogEnd(ctx, success, true, ""))
	require.NoError(t, s.LogStart(ctx, failure))
	require.NoError(t, s.LogEnd(ctx, failure, false, "boom"))
	require.NoError(t, s.LogStart(ctx, inflight))

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Success)
	require.Equal(t, 1, stats.Failure)
	require.InDelta(t, 100.0, stats.AvgDurationMs, 0.001)
	require.InDelta(t, 100.0, stats.MinDurationMs, 0.001)
	require.InDelta(t, 100.0, stats.MaxDurationMs, 0.001)
	require.InDelta(t, 50.0, stats.SuccessRate, 0.001)
}

func TestStatisticsEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := openAudit(t, newStepClock(time.Millisecond))

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Total)
	require.Zero(t, stats.SuccessRate)
}
