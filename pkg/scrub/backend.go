package scrub

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/remora-tools/remora/pkg/rgw"
)

// Backend is everything the scan engine needs from an object storage
// cluster. The canonical implementation shells out to radosgw-admin and
// rados; tests and demos use an in-process fake. A Backend is bound to one
// target data pool at construction.
//
// The listing methods return lazy sequences. A sequence that yields a
// non-nil error terminates there; consumers must treat everything yielded
// before the error as a partial result and discard it.
type Backend interface {
	// ListBuckets enumerates the buckets known to the gateway.
	ListBuckets(ctx context.Context) iter.Seq2[rgw.BucketInfo, error]

	// ListObjects enumerates every object version recorded in the bucket
	// index, with the manifest of RADOS object names attached to each.
	// In-progress multipart upload entries are included; the engine filters
	// them.
	ListObjects(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[rgw.Object, error]

	// ListPool enumerates the RADOS object names present in the target pool
	// that belong to the bucket.
	ListPool(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[string, error]

	// CreatePlaceholder writes a zero-filled RADOS object of the given size
	// under the given name. Overwriting an existing object must be safe, so
	// repairs can be repeated.
	CreatePlaceholder(ctx context.Context, name string, size uint64) error

	// RepairIndexEntry rewrites the bucket index entry for the given object
	// version so the index agrees with the pool again.
	RepairIndexEntry(ctx context.Context, object rgw.Object) error

	// StoreArtifact persists content in the cluster under the given name.
	StoreArtifact(ctx context.Context, name string, content []byte) error
}

// BackendError wraps a failed backend operation. Transient errors are worth
// retrying with backoff; everything else fails the bucket being scanned.
type BackendError struct {
	Op        string
	Transient bool
	Err       error
}

func NewBackendError(op string, transient bool, err error) *BackendError {
	return &BackendError{Op: op, Transient: transient, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a backend error marked transient.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient
}

// retryBackend runs a backend call with bounded retries, backing off between
// attempts. Only transient backend errors are retried.
func retryBackend[T any](ctx context.Context, maxTries uint, fn func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithMaxTries(maxTries))
}

// collect drains a listing sequence into a slice, stopping at the first
// error. The partial slice is discarded on error so a half-listed bucket is
// never differenced.
func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Gate bounds the number of backend operations in flight across all workers
// of a run. Listings hold a slot for as long as they are being consumed.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting at most capacity concurrent operations.
func NewGate(capacity int64) *Gate {
	return &Gate{sem: semaphore.NewWeighted(capacity)}
}

// Do runs fn while holding a gate slot, waiting for one if the gate is full.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn()
}

// gated wraps a Backend so every operation passes through the gate.
type gated struct {
	inner Backend
	gate  *Gate
}

var _ Backend = gated{}

// gatedSeq holds a gate slot for the whole consumption of a listing. A
// listing the gate refuses (canceled context) yields exactly one error.
func gatedSeq[T any](ctx context.Context, g *Gate, op string, seq iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			var zero T
			yield(zero, NewBackendError(op, false, err))
			return
		}
		defer g.sem.Release(1)
		seq(yield)
	}
}

func (b gated) ListBuckets(ctx context.Context) iter.Seq2[rgw.BucketInfo, error] {
	return gatedSeq(ctx, b.gate, "list-buckets", b.inner.ListBuckets(ctx))
}

func (b gated) ListObjects(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[rgw.Object, error] {
	return gatedSeq(ctx, b.gate, "list-objects", b.inner.ListObjects(ctx, bucket))
}

func (b gated) ListPool(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[string, error] {
	return gatedSeq(ctx, b.gate, "list-pool", b.inner.ListPool(ctx, bucket))
}

func (b gated) CreatePlaceholder(ctx context.Context, name string, size uint64) error {
	return b.gate.Do(ctx, func() error {
		return b.inner.CreatePlaceholder(ctx, name, size)
	})
}

func (b gated) RepairIndexEntry(ctx context.Context, object rgw.Object) error {
	return b.gate.Do(ctx, func() error {
		return b.inner.RepairIndexEntry(ctx, object)
	})
}

func (b gated) StoreArtifact(ctx context.Context, name string, content []byte) error {
	return b.gate.Do(ctx, func() error {
		return b.inner.StoreArtifact(ctx, name, content)
	})
}
