package peers

import (
	"context"
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

func (r *SQLiteRepository) Upsert(ctx context.Context, p models.Peer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO peers (id, role, addr, last_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, addr = excluded.addr, last_seen = excluded.last_seen
	`, p.ID, string(p.Role), p.Addr, p.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert peer %s: %w", p.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, role models.PeerRole) ([]models.Peer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, addr, last_seen FROM peers WHERE role = ? ORDER BY last_seen DESC
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s peers: %w", role, err)
	}
	defer rows.Close()

	var result []models.Peer
	for rows.Next() {
		var (
			p    models.Peer
			role string
			ms   int64
		)
		if err := rows.Scan(&p.ID, &role, &p.Addr, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan peer row: %w", err)
		}
		p.Role = models.PeerRole(role)
		p.LastSeen = time.UnixMilli(ms).UTC()
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate peer rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM peers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove peer %s: %w", id, err)
	}
	return nil
}
