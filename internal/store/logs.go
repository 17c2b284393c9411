package store

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// AppendLog adds an entry to the activity log. Now and then (with the
// configured probability) the log is trimmed back to its retention cap, so
// the number of rows settles at or below the cap without a DELETE per write.
func (s *Store) AppendLog(ctx context.Context, message string) error {
	if err := s.logs.Append(ctx, message, s.clock()); err != nil {
		return unavailable(err)
	}
	if s.random() < s.pruneChance {
		if err := s.PruneLogs(ctx, s.maxLogs); err != nil {
			s.logger.Warn(ctx, "log pruning failed", "error", err)
		}
	}
	return nil
}

// RecentLogs returns at most limit entries, most recent first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	entries, err := s.logs.Recent(ctx, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return entries, nil
}

func (s *Store) PruneLogs(ctx context.Context, maxRetained int) error {
	removed, err := s.logs.Prune(ctx, maxRetained)
	if err != nil {
		return unavailable(err)
	}
	if removed > 0 {
		s.logger.Debug(ctx, "pruned activity log", "removed", removed)
	}
	return nil
}

func (s *Store) LogCount(ctx context.Context) (int, error) {
	n, err := s.logs.Count(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
