package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/models"
)

// Store saves and restores the set of not-yet-processed messages as a JSON
// file, so a crashed or interrupted run can be resumed.
type Store struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// New constructs a snapshot store backed by the given file. The containing
// directory is created when absent.
func New(path string, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("snapshot: path must be provided")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("snapshot: create directory: %w", err)
		}
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &Store{
		path:   path,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}, nil
}

// Save serialises the messages, preserving order, replacing any previous
// snapshot.
func (s *Store) Save(messages []*models.Message) error {
	if messages == nil {
		messages = []*models.Message{}
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal messages: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write file: %w", err)
	}
	return nil
}

// Load returns the previously saved messages in their original order. A
// missing file or one that does not hold valid JSON yields an empty list
// rather than an error; any other read failure is returned as an error.
func (s *Store) Load() ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.Message{}, nil
		}
		return nil, fmt.Errorf("snapshot: read file: %w", err)
	}

	var messages []*models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("snapshot: file is not valid JSON, starting empty")
		return []*models.Message{}, nil
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}
