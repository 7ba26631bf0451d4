package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/message-pipeline/internal/models"
	"github.com/example/message-pipeline/internal/snapshot"
)

func newStore(t *testing.T) (*snapshot.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store, err := snapshot.New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := newStore(t)

	first := models.New("OrderService", "Order 1001 created")
	second := models.New("BillingService", "Invoice 77 issued")
	second.Status = models.StatusFailed
	third := models.New("", "missing source")

	saved := []*models.Message{first, second, third}
	if err := store.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(saved) {
		t.Fatalf("loaded %d messages, want %d", len(loaded), len(saved))
	}
	for i, want := range saved {
		got := loaded[i]
		if got.ID != want.ID {
			t.Fatalf("message %d id: got %s, want %s", i, got.ID, want.ID)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Fatalf("message %d timestamp: got %v, want %v", i, got.Timestamp, want.Timestamp)
		}
		if got.SourceSystem != want.SourceSystem || got.Payload != want.Payload || got.Status != want.Status {
			t.Fatalf("message %d mismatch: %+v vs %+v", i, got, want)
		}
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store, _ := newStore(t)

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty list, got %d messages", len(loaded))
	}
}

func TestLoadInvalidJSONReturnsEmpty(t *testing.T) {
	store, path := newStore(t)

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty list, got %d messages", len(loaded))
	}
}

func TestSaveEmptyListOverwrites(t *testing.T) {
	store, _ := newStore(t)

	if err := store.Save([]*models.Message{models.New("a", "b")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty list after overwrite, got %d", len(loaded))
	}
}
