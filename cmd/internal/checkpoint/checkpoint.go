// Package checkpoint opens the SQLite store that scan runs checkpoint
// their per-bucket progress into.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/remora-tools/remora/pkg/scrub/sqlrepo"
)

// Open opens the checkpoint database at dbPath, creating it and applying
// the schema as needed. An empty dbPath opens an in-memory database: the
// run still gets checkpoint semantics, but nothing survives the process.
// The returned closer must be called when the run is over.
func Open(ctx context.Context, dbPath string) (*sqlrepo.Repo, func() error, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint database at %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqlrepo.Schema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("applying checkpoint schema: %w", err)
	}

	repo, err := sqlrepo.New(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
