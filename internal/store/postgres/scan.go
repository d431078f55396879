package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/skyfeed/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanPost scans a single row into a model.Post.
// The row must contain columns in the order defined by postColumns.
func scanPost(row scannable) (*model.Post, error) {
	var (
		uri, author, text string
		timestamp         int64
	)
	if err := row.Scan(&uri, &author, &text, &timestamp); err != nil {
		return nil, err
	}
	return model.PostFromRow(uri, author, text, timestamp), nil
}

// scanPosts drains rows into a slice, closing rows when done.
func scanPosts(rows *sql.Rows) ([]*model.Post, error) {
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
