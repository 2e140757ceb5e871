package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/database"
	_ "github.com/nerrad567/nikobus-core/migrations" // register embedded schema
)

func openTestLog(t *testing.T) *CommandLog {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewCommandLog(db)
}

func TestCommandLog_RecordAndRecent(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	entries := []DeliveryEntry{
		{Command: "15FF2A", Target: "cover-1", Source: "mqtt", Attempts: 1, Acknowledged: true, LatencyMS: 420},
		{Command: "15FF2B", Target: "cover-1", Source: "mqtt", Attempts: 3, Acknowledged: false, LatencyMS: 8700},
	}
	for _, e := range entries {
		if err := log.Record(ctx, e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	recent, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}

	// Newest first.
	if recent[0].Command != "15FF2B" {
		t.Errorf("recent[0].Command = %q, want newest entry first", recent[0].Command)
	}
	if recent[0].Acknowledged {
		t.Error("recent[0].Acknowledged = true, want false")
	}
	if recent[1].Attempts != 1 || !recent[1].Acknowledged {
		t.Errorf("recent[1] = %+v, want one acknowledged attempt", recent[1])
	}
	if recent[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestCommandLog_RecentLimit(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.Record(ctx, DeliveryEntry{Command: "15FF2A", Source: "mqtt", Attempts: 1}); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	recent, err := log.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("got %d entries, want 3", len(recent))
	}
}

func TestCommandLog_Prune(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	if err := log.Record(ctx, DeliveryEntry{Command: "15FF2A", Source: "mqtt", Attempts: 1}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	// Nothing is older than a day yet.
	deleted, err := log.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("pruned %d rows, want 0", deleted)
	}

	// A zero retention window prunes everything recorded before "now".
	time.Sleep(1100 * time.Millisecond) // created_at has second resolution
	deleted, err = log.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("pruned %d rows, want 1", deleted)
	}
}
