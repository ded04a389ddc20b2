// Package scrub implements the consistency scan engine: it differences the
// bucket index of an RGW zone against the RADOS objects actually present in
// a data pool, reports objects whose backing data is missing, and optionally
// repairs them with zero-filled placeholders and a bucket index rewrite.
//
// The engine is deliberately backend-agnostic. Everything it knows about a
// cluster goes through the [Backend] interface, checkpoints go through
// [Repo], and progress goes out on an event bus, so the same engine drives
// the real radosgw-admin adapter, the in-process fake cluster, and tests.
package scrub

import (
	"context"
	"fmt"
	"io"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"

	"github.com/remora-tools/remora/pkg/bus"
	"github.com/remora-tools/remora/pkg/scrub/model"
)

var (
	log    = logging.Logger("scrub")
	tracer = otel.Tracer("scrub")
)

// Repo is the engine's view of the checkpoint store.
type Repo interface {
	// FindOrCreateBucket returns the checkpoint record for the named bucket,
	// creating a pending one if none exists.
	FindOrCreateBucket(ctx context.Context, name string) (*model.Bucket, error)
	// GetBucketByName returns the checkpoint record for the named bucket, or
	// nil if no record exists.
	GetBucketByName(ctx context.Context, name string) (*model.Bucket, error)
	// ListBuckets returns all checkpoint records.
	ListBuckets(ctx context.Context) ([]*model.Bucket, error)
	// UpdateBucket durably writes the record back. It must not return before
	// the change has reached stable storage.
	UpdateBucket(ctx context.Context, bucket *model.Bucket) error
}

// API provides the consistency scan engine for one target pool.
type API struct {
	// Pool is the data pool being scanned. It scopes log lines, bus topics
	// and the report.
	Pool string
	// Repo is the checkpoint store for this run.
	Repo Repo
	// Backend reaches the cluster. The engine wraps it with the concurrency
	// gate itself; pass it ungated.
	Backend Backend
	// Bus receives worker and repair events. Defaults to a no-op bus.
	Bus bus.Bus
}

const (
	// DefaultWorkers is the default number of bucket scan workers.
	DefaultWorkers = 64
	// DefaultMaxConcurrentIOs is the default bound on backend operations in
	// flight across all workers.
	DefaultMaxConcurrentIOs = 512
	// DefaultMaxTries bounds attempts of a backend call that keeps failing
	// with transient errors.
	DefaultMaxTries = 3
)

type config struct {
	buckets          []string
	workers          int
	maxConcurrentIOs int64
	fix              bool
	fixIndex         bool
	dryRun           bool
	maxTries         uint
	statusWriter     io.Writer
	artifactName     string
}

// Option configures a scan run.
type Option func(*config)

// WithBuckets restricts the run to the named buckets instead of every bucket
// the backend lists.
func WithBuckets(buckets []string) Option {
	return func(c *config) {
		c.buckets = buckets
	}
}

// WithWorkers sets the number of bucket scan workers.
func WithWorkers(workers int) Option {
	return func(c *config) {
		c.workers = workers
	}
}

// WithMaxConcurrentIOs bounds the number of backend operations in flight
// across all workers.
func WithMaxConcurrentIOs(n int64) Option {
	return func(c *config) {
		c.maxConcurrentIOs = n
	}
}

// WithRepairs makes the run create zero-filled placeholders for missing
// RADOS objects.
func WithRepairs() Option {
	return func(c *config) {
		c.fix = true
	}
}

// WithIndexRepairs makes the run rewrite the bucket index entry of each
// incomplete object after its placeholders exist.
func WithIndexRepairs() Option {
	return func(c *config) {
		c.fixIndex = true
	}
}

// WithDryRun reports what every repair would do without changing the
// cluster. Detection runs in full either way.
func WithDryRun() Option {
	return func(c *config) {
		c.dryRun = true
	}
}

// WithMaxTries bounds attempts of backend calls failing transiently.
func WithMaxTries(tries uint) Option {
	return func(c *config) {
		c.maxTries = tries
	}
}

// WithStatusWriter directs progress lines to w instead of discarding them.
func WithStatusWriter(w io.Writer) Option {
	return func(c *config) {
		c.statusWriter = w
	}
}

// WithArtifactName stores the final report through the backend under the
// given name.
func WithArtifactName(name string) Option {
	return func(c *config) {
		c.artifactName = name
	}
}

func newConfig(opts []Option) (config, error) {
	c := config{
		workers:          DefaultWorkers,
		maxConcurrentIOs: DefaultMaxConcurrentIOs,
		maxTries:         DefaultMaxTries,
		statusWriter:     io.Discard,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.workers < 1 {
		return c, fmt.Errorf("workers must be at least 1, got %d", c.workers)
	}
	if c.maxConcurrentIOs < 1 {
		return c, fmt.Errorf("max concurrent IOs must be at least 1, got %d", c.maxConcurrentIOs)
	}
	if c.maxTries < 1 {
		return c, fmt.Errorf("max tries must be at least 1, got %d", c.maxTries)
	}
	return c, nil
}

// Summary aggregates the outcome of a run.
type Summary struct {
	// Selected is the number of buckets the run selected for scanning.
	Selected int
	// Skipped is the number of selected buckets already done in the
	// checkpoint store from an earlier run.
	Skipped int
	// Done is the number of buckets fully differenced by this run.
	Done int
	// Failed is the number of buckets whose scan failed.
	Failed int

	ObjectsScanned uint64
	MissingObjects uint64
	MissingChunks  uint64
	OrphanChunks   uint64

	Repaired     uint64
	WouldRepair  uint64
	RepairFailed uint64

	Elapsed time.Duration
}

// AllDone reports whether every selected bucket has reached done, counting
// buckets completed by earlier runs against the same checkpoint store.
func (s *Summary) AllDone() bool {
	return s.Failed == 0 && s.Done+s.Skipped == s.Selected
}
