package scrub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/remora-tools/remora/pkg/bus"
	"github.com/remora-tools/remora/pkg/bus/events"
)

// RepairState is the terminal state of a repair attempt on one
// [MissingRecord].
type RepairState string

const (
	// RepairStateDetected means the record was reported only; no repair was
	// requested for this run.
	RepairStateDetected RepairState = "detected"

	// RepairStateWouldRepair means the run was a dry run: the actions list
	// describes what a live run would have done.
	RepairStateWouldRepair RepairState = "would-repair"

	// RepairStateRepaired means every requested repair action succeeded.
	RepairStateRepaired RepairState = "repaired"

	// RepairStateFailed means at least one repair action failed. The record
	// remains detected but not repaired; the failed actions carry the error.
	RepairStateFailed RepairState = "repair-failed"
)

// Repair action operations, in the order they are attempted.
const (
	OpCreatePlaceholder = "create-placeholder"
	OpRewriteIndex      = "rewrite-index"
)

// RepairAction describes one mutating backend call the executor performed,
// or would perform under dry run.
type RepairAction struct {
	Op    string `json:"op"`
	Name  string `json:"name,omitempty"` // RADOS object name for placeholder creation
	Size  uint64 `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

// RepairResult is the outcome of running the repair executor over one
// MissingRecord.
type RepairResult struct {
	State   RepairState    `json:"state"`
	Actions []RepairAction `json:"actions,omitempty"`
}

// repairer applies the configured repair mode to missing records. Repairs
// run in two phases: first zero-filled placeholders are created for every
// missing RADOS object, then the bucket index entry is rewritten. When both
// repairs are requested the rewrite waits until the record's placeholders
// all exist, so the index is never repointed at still-missing data.
type repairer struct {
	backend  Backend
	bus      bus.Publisher
	fix      bool
	fixIndex bool
	dryRun   bool
	maxTries uint
}

func newRepairer(backend Backend, b bus.Publisher, cfg config) repairer {
	return repairer{
		backend:  backend,
		bus:      b,
		fix:      cfg.fix,
		fixIndex: cfg.fixIndex,
		dryRun:   cfg.dryRun,
		maxTries: cfg.maxTries,
	}
}

// enabled reports whether any repair mode is active.
func (r repairer) enabled() bool {
	return r.fix || r.fixIndex
}

// repairRecord runs the two-phase repair sequence for one record. Repairing
// an already-repaired record is a no-op from the cluster's perspective:
// placeholder creation overwrites like with like, and the index rewrite is
// idempotent.
func (r repairer) repairRecord(ctx context.Context, rec MissingRecord) RepairResult {
	if !r.enabled() {
		return RepairResult{State: RepairStateDetected}
	}

	ctx, span := tracer.Start(ctx, "scrub/repair-record", trace.WithAttributes(
		attribute.String("bucket", rec.Bucket),
		attribute.String("object", rec.object().VersionedKey()),
		attribute.Bool("dry_run", r.dryRun)))
	defer span.End()

	var result RepairResult
	placeholdersOK := true

	if r.fix {
		for _, name := range rec.Missing {
			action := RepairAction{Op: OpCreatePlaceholder, Name: name, Size: rec.Size}
			if !r.dryRun {
				if err := r.createPlaceholder(ctx, name, rec.Size); err != nil {
					log.Errorw("placeholder creation failed",
						"bucket", rec.Bucket, "object", rec.Key, "rados_object", name, "error", err)
					action.Error = err.Error()
					placeholdersOK = false
				}
			}
			r.publish(rec, name, action.Error)
			result.Actions = append(result.Actions, action)
		}
	}

	// The index rewrite happens only after every placeholder for this
	// record exists, so a record whose placeholders failed keeps its index
	// entry untouched.
	if r.fixIndex && placeholdersOK {
		action := RepairAction{Op: OpRewriteIndex}
		if !r.dryRun {
			if err := r.rewriteIndex(ctx, rec); err != nil {
				log.Errorw("bucket index repair failed",
					"bucket", rec.Bucket, "object", rec.Key, "error", err)
				action.Error = err.Error()
			}
		}
		r.publish(rec, "", action.Error)
		result.Actions = append(result.Actions, action)
	}

	result.State = RepairStateRepaired
	if r.dryRun {
		result.State = RepairStateWouldRepair
	}
	for _, action := range result.Actions {
		if action.Error != "" {
			result.State = RepairStateFailed
			break
		}
	}

	span.SetAttributes(attribute.String("repair.state", string(result.State)))
	return result
}

func (r repairer) createPlaceholder(ctx context.Context, name string, size uint64) error {
	_, err := retryBackend(ctx, r.maxTries, func() (struct{}, error) {
		return struct{}{}, r.backend.CreatePlaceholder(ctx, name, size)
	})
	if err != nil {
		return fmt.Errorf("creating placeholder %s: %w", name, err)
	}
	return nil
}

func (r repairer) rewriteIndex(ctx context.Context, rec MissingRecord) error {
	_, err := retryBackend(ctx, r.maxTries, func() (struct{}, error) {
		return struct{}{}, r.backend.RepairIndexEntry(ctx, rec.object())
	})
	if err != nil {
		return fmt.Errorf("rewriting index entry for %s: %w", rec.object(), err)
	}
	return nil
}

func (r repairer) publish(rec MissingRecord, radosName string, errMsg string) {
	var err error
	if errMsg != "" {
		err = fmt.Errorf("%s", errMsg)
	}
	r.bus.Publish(events.TopicRepair(rec.Bucket), events.RepairView{
		Bucket:    rec.Bucket,
		Object:    rec.object().VersionedKey(),
		RadosName: radosName,
		DryRun:    r.dryRun,
		Err:       err,
	})
}
