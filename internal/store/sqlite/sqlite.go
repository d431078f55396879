// Package sqlite implements the store.Store interface backed by an embedded
// SQLite database file.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// schema is applied on every new connection; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS posts (
	uri TEXT PRIMARY KEY,
	author TEXT NOT NULL,
	text TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON posts (timestamp);
CREATE INDEX IF NOT EXISTS idx_posts_text ON posts (text);
`

const postColumns = `uri, author, text, timestamp`

// Config holds the parameters for opening a SQLite store.
type Config struct {
	// Path is the database file. It is created if it does not exist.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4). SQLite serializes
	// writers regardless; extra connections serve concurrent readers.
	PoolSize int

	Logger *slog.Logger
}

// SQLiteStore implements store.Store on a pool of SQLite connections.
type SQLiteStore struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// New opens a connection pool on cfg.Path. Pragmas and the posts schema are
// applied lazily to each connection on first use.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "pool_size", poolSize)
	return &SQLiteStore{pool: pool, logger: logger, path: cfg.Path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// Close closes all connections in the pool.
func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)
	return nil
}

// InsertPosts writes the batch in one immediate transaction. INSERT OR IGNORE
// makes the duplicate check and the insert a single atomic step per row.
func (s *SQLiteStore) InsertPosts(ctx context.Context, posts []*model.Post) (inserted int, err error) {
	if len(posts) == 0 {
		return 0, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert posts: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("insert posts: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, p := range posts {
		err = sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{p.URI, p.Author, p.Text, p.TimestampMillis()}},
		)
		if err != nil {
			return 0, fmt.Errorf("insert post %s: %w", p.URI, err)
		}
		inserted += conn.Changes()
	}
	return inserted, nil
}

func (s *SQLiteStore) EvictOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("evict posts: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM posts WHERE timestamp < ?`,
		&sqlitex.ExecOptions{Args: []any{cutoff.UnixMilli()}})
	if err != nil {
		return 0, fmt.Errorf("evict posts: %w", err)
	}
	return int64(conn.Changes()), nil
}

func (s *SQLiteStore) QueryPosts(ctx context.Context, filter string, limit int) ([]*model.Post, error) {
	filter, limit = store.NormalizeQuery(filter, limit)

	// instr is case-sensitive, unlike LIKE under SQLite's default collation.
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY timestamp DESC, uri DESC LIMIT ?`
	args := []any{limit}
	if filter != "" {
		query = `SELECT ` + postColumns + ` FROM posts WHERE instr(text, ?) > 0 ORDER BY timestamp DESC, uri DESC LIMIT ?`
		args = []any{filter, limit}
	}
	return s.selectPosts(ctx, query, args)
}

func (s *SQLiteStore) CountPosts(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	defer s.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM posts`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListAllPosts(ctx context.Context) ([]*model.Post, error) {
	return s.selectPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY timestamp ASC, uri ASC`, nil)
}

func (s *SQLiteStore) selectPosts(ctx context.Context, query string, args []any) ([]*model.Post, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer s.pool.Put(conn)

	posts := []*model.Post{}
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			posts = append(posts, model.PostFromRow(
				stmt.ColumnText(0),
				stmt.ColumnText(1),
				stmt.ColumnText(2),
				stmt.ColumnInt64(3),
			))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return posts, nil
}
