package logs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/dbx"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// Timestamps are stored as RFC 3339 text with millisecond precision; the
// id column carries insertion order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, message string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO logs (message, timestamp) VALUES (?, ?)`,
		message, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, message, timestamp FROM logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, limit)
	for rows.Next() {
		var (
			e  models.LogEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log timestamp %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log rows: %w", err)
	}
	return entries, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Prune(ctx context.Context, max int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM logs WHERE id NOT IN (
			SELECT id FROM logs ORDER BY id DESC LIMIT ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	return n, nil
}
