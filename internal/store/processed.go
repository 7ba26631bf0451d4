package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/models"
)

// ProcessedStore persists processed records in the ProcessedMessages table,
// one row per message id.
type ProcessedStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewProcessedStore constructs a processed-record store over an open
// database.
func NewProcessedStore(db *sql.DB, logger zerolog.Logger) (*ProcessedStore, error) {
	if db == nil {
		return nil, errors.New("store: database handle is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ProcessedStore{
		db:     db,
		logger: logger.With().Str("component", "processed_store").Logger(),
	}, nil
}

// Save inserts the record. A second record with the same message id fails
// with ErrDuplicateKey.
func (s *ProcessedStore) Save(ctx context.Context, rec *models.ProcessedRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ProcessedMessages
			(MessageId, Timestamp, SourceSystem, Payload, Status, ProcessedAt)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), formatTime(rec.Timestamp), rec.SourceSystem,
		rec.Payload, int(rec.Status), formatTime(rec.ProcessedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: message %s", ErrDuplicateKey, rec.ID)
		}
		return fmt.Errorf("store: insert processed record: %w", err)
	}

	s.logger.Debug().Str("message_id", rec.ID.String()).Msg("processed record saved")
	return nil
}

// GetByID returns the record for the given message id, or (nil, nil) when no
// record exists.
func (s *ProcessedStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ProcessedRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MessageId, Timestamp, SourceSystem, Payload, Status, ProcessedAt
		FROM ProcessedMessages
		WHERE MessageId = ?`, id.String())

	rec, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// GetAll returns every stored record in insertion order.
func (s *ProcessedStore) GetAll(ctx context.Context) ([]*models.ProcessedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT MessageId, Timestamp, SourceSystem, Payload, Status, ProcessedAt
		FROM ProcessedMessages
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: query processed records: %w", err)
	}
	defer rows.Close()

	var records []*models.ProcessedRecord
	for rows.Next() {
		rec, err := scanProcessed(rows)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return records, fmt.Errorf("store: iterate processed records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessed(row rowScanner) (*models.ProcessedRecord, error) {
	var (
		rawID, rawTimestamp, rawProcessedAt string
		status                              int
		rec                                 models.ProcessedRecord
	)
	if err := row.Scan(&rawID, &rawTimestamp, &rec.SourceSystem, &rec.Payload, &status, &rawProcessedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan processed record: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("store: parse message id %q: %w", rawID, err)
	}
	rec.ID = id
	rec.Status = models.Status(status)

	if rec.Timestamp, err = parseTime(rawTimestamp); err != nil {
		return nil, err
	}
	if rec.ProcessedAt, err = parseTime(rawProcessedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
