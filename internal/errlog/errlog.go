package errlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	placeholderType    = "Unknown"
	placeholderMessage = "No exception details"
	placeholderStack   = "No stack trace available"
)

var separator = strings.Repeat("-", 80)

// Log is an append-only human readable error sink. Writers serialise under a
// mutex so records never interleave.
type Log struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Option customises the log during construction.
type Option func(*Log)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// New opens (creating if necessary) the error log at path. The containing
// directory is created when absent.
func New(path string, opts ...Option) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("errlog: path must be provided")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("errlog: create directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("errlog: open file: %w", err)
	}

	l := &Log{
		file: f,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Write appends one record for the given message and attempt. A nil error is
// recorded with placeholder fields rather than rejected.
func (l *Log) Write(messageID uuid.UUID, attempt int, cause error) error {
	typ := placeholderType
	msg := placeholderMessage
	stack := placeholderStack
	if cause != nil {
		typ = fmt.Sprintf("%T", cause)
		msg = cause.Error()
		stack = strings.TrimSpace(string(debug.Stack()))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", l.now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Message ID: %s\n", messageID)
	fmt.Fprintf(&b, "Attempt: %d\n", attempt)
	fmt.Fprintf(&b, "Exception Type: %s\n", typ)
	fmt.Fprintf(&b, "Error Message: %s\n", msg)
	fmt.Fprintf(&b, "Stack Trace: %s\n", stack)
	b.WriteString(separator)
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("errlog: write record: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
