package errlog_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/message-pipeline/internal/errlog"
)

func TestWriteRecordFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	log, err := errlog.New(path, errlog.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer log.Close()

	id := uuid.New()
	cause := errors.New("sink unavailable")
	if err := log.Write(id, 2, cause); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"[2024-05-01T12:00:00Z]",
		"Message ID: " + id.String(),
		"Attempt: 2",
		"Exception Type: *errors.errorString",
		"Error Message: sink unavailable",
		"Stack Trace: goroutine",
		strings.Repeat("-", 80),
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("record missing %q:\n%s", want, content)
		}
	}
}

func TestWriteNilErrorUsesPlaceholders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	log, err := errlog.New(path)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer log.Close()

	if err := log.Write(uuid.New(), 0, nil); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"Exception Type: Unknown",
		"Error Message: No exception details",
		"Stack Trace: No stack trace available",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("record missing placeholder %q:\n%s", want, content)
		}
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "errors.log")
	log, err := errlog.New(path)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestConcurrentWritersDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	log, err := errlog.New(path)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer log.Close()

	const writers = 10
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := log.Write(uuid.New(), i, fmt.Errorf("writer %d failure %d", w, i)); err != nil {
					t.Errorf("write: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	content := string(data)

	separators := strings.Count(content, strings.Repeat("-", 80))
	if separators != writers*perWriter {
		t.Fatalf("found %d separators, want %d", separators, writers*perWriter)
	}

	// Every block between separators must contain exactly one full record.
	blocks := strings.Split(content, strings.Repeat("-", 80)+"\n")
	for _, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		if n := strings.Count(block, "Message ID: "); n != 1 {
			t.Fatalf("block contains %d message ids:\n%s", n, block)
		}
		if n := strings.Count(block, "Error Message: "); n != 1 {
			t.Fatalf("block contains %d error messages:\n%s", n, block)
		}
	}
}
