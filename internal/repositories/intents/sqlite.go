package intents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/dbx"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Register(ctx context.Context, name string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO intents (name, registered_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, at.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to register intent %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to register intent %s: %w", name, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, name string) (*models.Intent, error) {
	var (
		in models.Intent
		ms int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, registered_at, attempts, last_error FROM intents WHERE name = ?
	`, name).Scan(&in.Name, &ms, &in.Attempts, &in.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent %s: %w", name, err)
	}
	in.RegisteredAt = time.UnixMilli(ms).UTC()
	return &in, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Intent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, registered_at, attempts, last_error FROM intents ORDER BY registered_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	defer rows.Close()

	var result []models.Intent
	for rows.Next() {
		var (
			in models.Intent
			ms int64
		)
		if err := rows.Scan(&in.Name, &ms, &in.Attempts, &in.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan intent row: %w", err)
		}
		in.RegisteredAt = time.UnixMilli(ms).UTC()
		result = append(result, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate intent rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) RecordAttempt(ctx context.Context, name, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE intents SET attempts = attempts + 1, last_error = ? WHERE name = ?
	`, lastError, name)
	if err != nil {
		return fmt.Errorf("failed to record attempt for intent %s: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) Resolve(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM intents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to resolve intent %s: %w", name, err)
	}
	return nil
}
