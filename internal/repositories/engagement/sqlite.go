package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS engagement_counts (
	viewer     TEXT    NOT NULL,
	seed       INTEGER NOT NULL,
	username   TEXT    NOT NULL,
	value      INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (viewer, seed, username)
);
CREATE INDEX IF NOT EXISTS engagement_counts_viewer_created ON engagement_counts (viewer, created_at);
`

// SQLiteStore persists engagement counts in a local SQLite file. Each viewer keeps at most
// perViewer rows; the oldest rows are dropped first.
type SQLiteStore struct {
	db        *sql.DB
	perViewer int
	clock     func() time.Time
	logger    *zap.Logger
}

var _ repositories.EngagementStore = (*SQLiteStore)(nil)

// SQLiteOption customises the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock injects the clock used to order rows for trimming.
func WithSQLiteClock(clock func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSQLiteLogger attaches a logger.
func WithSQLiteLogger(logger *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSQLite opens (creating if needed) the store at path. ":memory:" keeps it in process.
func OpenSQLite(ctx context.Context, path string, perViewer int, opts ...SQLiteOption) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("engagement sqlite store: path is required")
	}
	if perViewer <= 0 {
		return nil, errors.New("engagement sqlite store: per-viewer row cap must be positive")
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("engagement sqlite store: open: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:        db,
		perViewer: perViewer,
		clock:     time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engagement sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engagement sqlite store: migrate: %w", err)
	}
	store.logger.Info("engagement store opened", zap.String("path", path), zap.Int("per_viewer", perViewer))
	return store, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

// LoadOrStore returns the stored value for key, inserting value on a miss. The first value
// written for a key wins.
func (s *SQLiteStore) LoadOrStore(ctx context.Context, key domain.EngagementKey, value int64) (stored int64, loaded bool, err error) {
	const op = "engagement.sqlite.load_or_store"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, repositories.WrapError(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO engagement_counts (viewer, seed, username, value, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (viewer, seed, username) DO NOTHING`,
		key.Viewer, key.Seed, key.Username, value, s.clock().UnixNano(),
	)
	if err != nil {
		return 0, false, repositories.WrapError(op, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, repositories.WrapError(op, err)
	}

	if inserted == 0 {
		row := tx.QueryRowContext(ctx,
			`SELECT value FROM engagement_counts WHERE viewer = ? AND seed = ? AND username = ?`,
			key.Viewer, key.Seed, key.Username,
		)
		if err = row.Scan(&stored); err != nil {
			return 0, false, repositories.WrapError(op, err)
		}
		loaded = true
	} else {
		stored = value
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM engagement_counts WHERE rowid IN (
				SELECT rowid FROM engagement_counts WHERE viewer = ?
				ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
			)`,
			key.Viewer, s.perViewer,
		); err != nil {
			return 0, false, repositories.WrapError(op, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, false, repositories.WrapError(op, err)
	}
	return stored, loaded, nil
}

// CountForViewer reports how many rows the viewer currently holds.
func (s *SQLiteStore) CountForViewer(ctx context.Context, viewer string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM engagement_counts WHERE viewer = ?`, viewer).Scan(&count)
	if err != nil {
		return 0, repositories.WrapError("engagement.sqlite.count", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
