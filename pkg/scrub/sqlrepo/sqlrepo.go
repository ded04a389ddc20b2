// Package sqlrepo persists scan checkpoints in SQLite. Every status change
// is committed durably before the write returns, so an interrupted run can
// pick up where it left off without trusting anything in memory.
package sqlrepo

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"

	"github.com/remora-tools/remora/pkg/bus"
)

//go:embed schema.sql
var Schema string

var log = logging.Logger("scrub/sqlrepo")

func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// TimestampScanner returns a [sql.Scanner] that scans a timestamp column (an
// integer of Unix time in seconds) into the given [time.Time] pointer.
func TimestampScanner(t *time.Time) tsScanner {
	return tsScanner{dst: t}
}

type tsScanner struct {
	dst *time.Time
}

var _ sql.Scanner = tsScanner{}

func (ts tsScanner) Scan(value any) error {
	if value == nil {
		*ts.dst = time.Time{}
		return nil
	}
	switch v := value.(type) {
	case int64:
		*ts.dst = time.Unix(v, 0).UTC()
	default:
		return fmt.Errorf("unsupported type for timestamp scanning: %T (%v)", v, v)
	}
	return nil
}

type Option func(*Repo)

// WithEventBus publishes a view of every bucket record change on the given
// bus, under the topics defined in [events].
func WithEventBus(bus bus.Bus) Option {
	return func(r *Repo) {
		r.bus = bus
	}
}

// DefaultCheckpointInterval is the default interval for automatic WAL
// checkpointing during long scans.
const DefaultCheckpointInterval = 5 * time.Minute

const DefaultPreparedStmtCacheSize = 64

// New creates a new Repo instance with the given database connection. The
// connection is expected to have the schema applied and be limited to a
// single open connection.
func New(db *sql.DB, opts ...Option) (*Repo, error) {
	cache, err := lru.NewWithEvict(DefaultPreparedStmtCacheSize, func(key string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	r := &Repo{db: db, bus: &bus.NoopBus{}, preparedStmts: cache}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Repo is a SQLite-backed checkpoint store.
type Repo struct {
	db             *sql.DB
	bus            bus.Publisher
	preparedStmts  *lru.Cache[string, *sql.Stmt]
	checkpointStop chan struct{}
}

func (r *Repo) prepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.preparedStmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	_ = r.preparedStmts.Add(query, stmt)
	return stmt, nil
}

// StartPeriodicCheckpoint starts a background goroutine that periodically
// checkpoints the WAL to prevent unbounded growth during long scans. Call
// StopPeriodicCheckpoint to stop it, or it will be stopped when Close is
// called.
func (r *Repo) StartPeriodicCheckpoint(ctx context.Context, interval time.Duration) {
	if r.checkpointStop != nil {
		return // already running
	}
	r.checkpointStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.checkpointStop:
				return
			case <-ticker.C:
				if err := r.Checkpoint(ctx); err != nil {
					log.Warnf("periodic WAL checkpoint failed: %v", err)
				} else {
					log.Debug("periodic WAL checkpoint completed")
				}
			}
		}
	}()
}

// StopPeriodicCheckpoint stops the background checkpoint goroutine if running.
func (r *Repo) StopPeriodicCheckpoint() {
	if r.checkpointStop != nil {
		close(r.checkpointStop)
		r.checkpointStop = nil
	}
}

// Checkpoint forces a WAL checkpoint to transfer data from the write-ahead
// log to the main database file. The RESTART mode runs until the WAL is
// fully checkpointed, so that writes can start from the beginning of the
// file.
func (r *Repo) Checkpoint(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)")
	return err
}

func (r *Repo) Close() error {
	r.StopPeriodicCheckpoint()
	r.preparedStmts.Purge()
	return r.db.Close()
}
