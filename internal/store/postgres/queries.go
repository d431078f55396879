package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/skyfeed/internal/model"
	"github.com/alfredjeanlab/skyfeed/internal/store"
)

// postColumns is the column list used for SELECT statements on the posts table.
const postColumns = `uri, author, text, timestamp`

// insertChunkSize bounds the rows per INSERT statement so the bind parameter
// count stays well under the protocol limit of 65535.
const insertChunkSize = 500

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertPosts(ctx context.Context, db executor, posts []*model.Post) (int, error) {
	var inserted int
	for start := 0; start < len(posts); start += insertChunkSize {
		end := min(start+insertChunkSize, len(posts))
		n, err := insertChunk(ctx, db, posts[start:end])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func insertChunk(ctx context.Context, db executor, posts []*model.Post) (int, error) {
	var (
		values []string
		args   []any
	)
	for i, p := range posts {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, p.URI, p.Author, p.Text, p.TimestampMillis())
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES `+strings.Join(values, ", ")+
			` ON CONFLICT (uri) DO NOTHING`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("insert posts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert posts: rows affected: %w", err)
	}
	return int(n), nil
}

func queryEvictOlderThan(ctx context.Context, db executor, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE timestamp < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("evict posts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict posts: rows affected: %w", err)
	}
	return n, nil
}

func queryPosts(ctx context.Context, db executor, filter string, limit int) ([]*model.Post, error) {
	filter, limit = store.NormalizeQuery(filter, limit)

	var (
		rows *sql.Rows
		err  error
	)
	// strpos is a plain case-sensitive substring test; LIKE would treat
	// % and _ in user filters as wildcards.
	if filter == "" {
		rows, err = db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts ORDER BY timestamp DESC, uri DESC LIMIT $1`,
			limit)
	} else {
		rows, err = db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts WHERE strpos(text, $1) > 0 ORDER BY timestamp DESC, uri DESC LIMIT $2`,
			filter, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return scanPosts(rows)
}

func queryCountPosts(ctx context.Context, db executor) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func queryListAllPosts(ctx context.Context, db executor) ([]*model.Post, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY timestamp ASC, uri ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return scanPosts(rows)
}
