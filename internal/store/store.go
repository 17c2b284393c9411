// Package store is the durable store shared by the foreground agent and the
// background worker: a SQLite file holding the configuration, statistics,
// key material, activity log, retry intents and channel peers.
//
// Both processes open the same file at the same time. The database runs in
// WAL mode with a busy timeout and every transaction starts with BEGIN
// IMMEDIATE, so read-modify-write sequences such as IncrementBeatCount are
// serialised by SQLite itself.
//
// Every error returned from this package wraps common.ErrStorageUnavailable.
// Callers are expected to log it and carry on.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/dbx"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/migrations"
	"github.com/dmitrijs2005/gophbeat/internal/repositories/intents"
	"github.com/dmitrijs2005/gophbeat/internal/repositories/kv"
	"github.com/dmitrijs2005/gophbeat/internal/repositories/logs"
	"github.com/dmitrijs2005/gophbeat/internal/repositories/peers"

	_ "modernc.org/sqlite"
)

// Domains of the key/value table.
const (
	DomainConfiguration = "configuration"
	DomainStatistics    = "statistics"
	DomainKeys          = "keys"
	DomainPush          = "push"
	DomainLeases        = "leases"
)

// Well-known keys of the statistics domain.
const (
	KeyBeatCount        = "beatCount"
	KeyLastActivity     = "lastActivity"
	KeyLastNotification = "lastNotification"
)

const (
	DefaultMaxLogs     = 50
	DefaultPruneChance = 0.05
)

// goose keeps its settings in package globals.
var migrateMu sync.Mutex

type Store struct {
	db      *sql.DB
	kv      kv.Repository
	logs    logs.Repository
	intents intents.Repository
	peers   peers.Repository

	logger      logging.Logger
	clock       func() time.Time
	random      func() float64
	maxLogs     int
	pruneChance float64
}

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithRandom replaces the source deciding whether an append prunes the log.
func WithRandom(random func() float64) Option {
	return func(s *Store) { s.random = random }
}

func WithLogRetention(maxLogs int, pruneChance float64) Option {
	return func(s *Store) {
		s.maxLogs = maxLogs
		s.pruneChance = pruneChance
	}
}

// DSN builds the modernc.org/sqlite connection string for a database file.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database file at path and brings its
// schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, unavailable(err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, unavailable(fmt.Errorf("failed to migrate %s: %w", path, err))
	}

	return New(db, opts...), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		kv:          kv.NewSQLiteRepository(db),
		logs:        logs.NewSQLiteRepository(db),
		intents:     intents.NewSQLiteRepository(db),
		peers:       peers.NewSQLiteRepository(db),
		logger:      logging.Nop(),
		clock:       time.Now,
		random:      rand.Float64,
		maxLogs:     DefaultMaxLogs,
		pruneChance: DefaultPruneChance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Close checkpoints the write-ahead log and closes the database.
func (s *Store) Close() error {
	var err error
	if _, cerr := s.db.Exec(`PRAGMA wal_checkpoint(PASSIVE)`); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	err = multierr.Append(err, s.db.Close())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, domain, key string) ([]byte, error) {
	v, err := s.kv.Get(ctx, domain, key)
	if err != nil {
		return nil, unavailable(err)
	}
	return v, nil
}

func (s *Store) Put(ctx context.Context, domain, key string, value []byte) error {
	if err := s.kv.Set(ctx, domain, key, value); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, domain, key string) error {
	if err := s.kv.Delete(ctx, domain, key); err != nil {
		return unavailable(err)
	}
	return nil
}

// Update runs fn on the current value of (domain, key) inside one
// transaction and stores what fn returns. A nil result deletes the key.
func (s *Store) Update(ctx context.Context, domain, key string, fn func(current []byte) ([]byte, error)) error {
	err := s.tx(ctx, func(ctx context.Context, r kv.Repository) error {
		current, err := r.Get(ctx, domain, key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return r.Delete(ctx, domain, key)
		}
		return r.Set(ctx, domain, key, next)
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) tx(ctx context.Context, fn func(ctx context.Context, r kv.Repository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, kv.NewSQLiteRepository(tx))
	})
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
}
