package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestParseDatabaseURL(t *testing.T) {
	for _, tc := range []struct {
		url     string
		kind    storeKind
		target  string
		wantErr bool
	}{
		{"sqlite:skyfeed.db", storeSQLite, "skyfeed.db", false},
		{"sqlite:///var/lib/skyfeed.db", storeSQLite, "/var/lib/skyfeed.db", false},
		{"file:/tmp/posts.db", storeSQLite, "/tmp/posts.db", false},
		{"postgres://u:p@localhost/skyfeed?sslmode=disable", storePostgres, "postgres://u:p@localhost/skyfeed?sslmode=disable", false},
		{"postgresql://localhost/skyfeed", storePostgres, "postgresql://localhost/skyfeed", false},
		{"sqlite:", 0, "", true},
		{"mysql://localhost/skyfeed", 0, "", true},
		{"skyfeed.db", 0, "", true},
	} {
		t.Run(tc.url, func(t *testing.T) {
			kind, target, err := parseDatabaseURL(tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tc.kind || target != tc.target {
				t.Fatalf("parseDatabaseURL(%q) = %v, %q; want %v, %q", tc.url, kind, target, tc.kind, tc.target)
			}
		})
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.db")
	st, err := openStore("sqlite:"+path, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()

	n, err := st.CountPosts(context.Background())
	if err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
	if n != 0 {
		t.Fatalf("new store has %d posts, want 0", n)
	}
}
