package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/models"
)

// AuditStore records the start time, end time, duration and outcome of every
// processing attempt in the AuditLogs table. One row per message id.
type AuditStore struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// AuditOption customises the audit store during construction.
type AuditOption func(*AuditStore)

// WithAuditClock overrides the time source. Intended for tests.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAuditStore constructs an audit store over an open database.
func NewAuditStore(db *sql.DB, logger zerolog.Logger, opts ...AuditOption) (*AuditStore, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	s := &AuditStore{
		db:     db,
		logger: logger.With().Str("component", "audit_store").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// LogStart records that processing of the message has begun. A row for the
// same id already exists is a store error surfaced to the caller.
func (s *AuditStore) LogStart(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO AuditLogs (MessageId, StartTime, Status)
		VALUES (?, ?, ?)`,
		id.String(), formatTime(s.now()), models.AuditStatusProcessing)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: audit row for message %s already exists", ErrDuplicateKey, id)
		}
		return fmt.Errorf("store: insert audit row: %w", err)
	}
	return nil
}

// LogEnd closes the audit row for the message, computing the duration from
// the recorded start time. When no row exists for the id the call silently
// returns.
func (s *AuditStore) LogEnd(ctx context.Context, id uuid.UUID, success bool, errorMessage string) error {
	var rawStart string
	err := s.db.QueryRowContext(ctx, `
		SELECT StartTime FROM AuditLogs WHERE MessageId = ?`, id.String()).Scan(&rawStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read audit start time: %w", err)
	}

	start, err := parseTime(rawStart)
	if err != nil {
		return err
	}

	end := s.now()
	durationMs := float64(end.Sub(start)) / float64(time.Millisecond)

	status := models.AuditStatusCompleted
	if !success {
		status = models.AuditStatusFailed
	}

	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE AuditLogs
		SET EndTime = ?, DurationMs = ?, Status = ?, ErrorMessage = ?
		WHERE MessageId = ?`,
		formatTime(end), durationMs, status, errMsg, id.String())
	if err != nil {
		return fmt.Errorf("store: update audit row: %w", err)
	}
	return nil
}

// GetByID returns the audit row for the message, or (nil, nil) when no row
// exists.
func (s *AuditStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT Id, MessageId, StartTime, EndTime, DurationMs, Status, ErrorMessage
		FROM AuditLogs
		WHERE MessageId = ?`, id.String())

	rec, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// GetAll returns every audit row, newest first by start time.
func (s *AuditStore) GetAll(ctx context.Context) ([]*models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT Id, MessageId, StartTime, EndTime, DurationMs, Status, ErrorMessage
		FROM AuditLogs
		ORDER BY Id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query audit rows: %w", err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("store: iterate audit rows: %w", err)
	}
	return records, nil
}

// Statistics aggregates the audit rows that carry a duration, i.e. rows whose
// processing has finished.
func (s *AuditStore) Statistics(ctx context.Context) (*models.AuditStatistics, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(DurationMs), 0),
			COALESCE(MIN(DurationMs), 0),
			COALESCE(MAX(DurationMs), 0)
		FROM AuditLogs
		WHERE DurationMs IS NOT NULL`,
		models.AuditStatusCompleted, models.AuditStatusFailed)

	stats := &models.AuditStatistics{}
	if err := row.Scan(&stats.Total, &stats.Success, &stats.Failure,
		&stats.AvgDurationMs, &stats.MinDurationMs, &stats.MaxDurationMs); err != nil {
		return nil, fmt.Errorf("store: aggregate audit rows: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = 100 * float64(stats.Success) / float64(stats.Total)
	}
	return stats, nil
}

func scanAudit(row rowScanner) (*models.AuditRecord, error) {
	var (
		rawID      string
		rawStart   string
		rawEnd     sql.NullString
		durationMs sql.NullFloat64
		errMsg     sql.NullString
		rec        models.AuditRecord
	)
	if err := row.Scan(&rec.ID, &rawID, &rawStart, &rawEnd, &durationMs, &rec.Status, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan audit row: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("store: parse message id %q: %w", rawID, err)
	}
	rec.MessageID = id

	if rec.StartTime, err = parseTime(rawStart); err != nil {
		return nil, err
	}
	if rawEnd.Valid {
		end, err := parseTime(rawEnd.String)
		if err != nil {
			return nil, err
		}
		rec.EndTime = &end
	}
	if durationMs.Valid {
		d := durationMs.Float64
		rec.DurationMs = &d
	}
	if errMsg.Valid {
		rec.ErrorMessage = errMsg.String
	}
	return &rec, nil
}
