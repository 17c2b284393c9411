package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophbeat/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, domain, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE domain = ? AND key = ?`, domain, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", domain, key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, domain, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (domain, key, value) VALUES (?, ?, ?)
		ON CONFLICT(domain, key) DO UPDATE SET value = excluded.value
	`, domain, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s[%s]: %w", domain, key, err)
	}
	return nil
}

// SetIfAbsent inserts value only when the key does not exist yet and
// reports whether it did.
func (r *SQLiteRepository) SetIfAbsent(ctx context.Context, domain, key string, value []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO kv (domain, key, value) VALUES (?, ?, ?)
		ON CONFLICT(domain, key) DO NOTHING
	`, domain, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s[%s]: %w", domain, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert %s[%s]: %w", domain, key, err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, domain, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE domain = ? AND key = ?`, domain, key)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", domain, key, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, domain string) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE domain = ?`, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", domain, err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", domain, err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", domain, err)
	}
	return result, nil
}
