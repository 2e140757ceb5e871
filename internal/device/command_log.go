package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/database"
)

// CommandLog is the SQLite-backed delivery log repository.
// Every completed delivery operation is appended; old rows are pruned
// periodically to bound growth.
type CommandLog struct {
	db *database.DB
}

// NewCommandLog creates a repository over an open database.
// The command_log table is created by the embedded migrations.
func NewCommandLog(db *database.DB) *CommandLog {
	return &CommandLog{db: db}
}

// Record appends one delivery outcome to the log.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - entry: The delivery outcome; ID and CreatedAt are assigned here
//
// Returns:
//   - error: If the insert fails
func (l *CommandLog) Record(ctx context.Context, entry DeliveryEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO command_log (command, target, source, attempts, acknowledged, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Command,
		entry.Target,
		entry.Source,
		entry.Attempts,
		boolToInt(entry.Acknowledged),
		entry.LatencyMS,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

// Recent returns the most recent delivery entries, newest first.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - limit: Maximum rows to return (values < 1 return nothing)
func (l *CommandLog) Recent(ctx context.Context, limit int) ([]DeliveryEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, command, target, source, attempts, acknowledged, latency_ms, created_at
		FROM command_log
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}
	defer rows.Close()

	var entries []DeliveryEntry
	for rows.Next() {
		var e DeliveryEntry
		var acknowledged int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Command, &e.Target, &e.Source,
			&e.Attempts, &acknowledged, &e.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		e.Acknowledged = acknowledged != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery log: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: If the delete fails
func (l *CommandLog) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM command_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning delivery log: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return deleted, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
