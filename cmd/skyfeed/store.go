package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/skyfeed/internal/store"
	"github.com/alfredjeanlab/skyfeed/internal/store/postgres"
	"github.com/alfredjeanlab/skyfeed/internal/store/sqlite"
)

type storeKind int

const (
	storeSQLite storeKind = iota
	storePostgres
)

// parseDatabaseURL picks the backend for a database URL. Postgres URLs are
// passed through whole; "sqlite:" and "file:" prefixes are stripped to
// leave the file path.
func parseDatabaseURL(raw string) (storeKind, string, error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return storePostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite:"):
		return sqlitePath(strings.TrimPrefix(raw, "sqlite:"))
	case strings.HasPrefix(raw, "file:"):
		return sqlitePath(strings.TrimPrefix(raw, "file:"))
	default:
		return 0, "", fmt.Errorf("unsupported database URL %q (want postgres://, sqlite: or file:)", raw)
	}
}

func sqlitePath(rest string) (storeKind, string, error) {
	// Accept both sqlite:path and sqlite://path.
	path := strings.TrimPrefix(rest, "//")
	if path == "" {
		return 0, "", fmt.Errorf("database URL has an empty sqlite path")
	}
	return storeSQLite, path, nil
}

// openStore opens the backend named by databaseURL.
func openStore(databaseURL string, logger *slog.Logger) (store.Store, error) {
	kind, target, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case storePostgres:
		s, err := postgres.New(target)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres store opened")
		return s, nil
	default:
		s, err := sqlite.New(sqlite.Config{Path: target, Logger: logger})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
