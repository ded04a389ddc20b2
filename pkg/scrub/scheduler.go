package scrub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/remora-tools/remora/pkg/bus"
	"github.com/remora-tools/remora/pkg/bus/events"
	"github.com/remora-tools/remora/pkg/rgw"
	"github.com/remora-tools/remora/pkg/scrub/model"
	"github.com/remora-tools/remora/pkg/scrub/workgroup"
)

// bucketWork pairs a bucket listed by the backend with its checkpoint record.
type bucketWork struct {
	info   rgw.BucketInfo
	record *model.Bucket
}

// run holds the state shared by the workers of one Run call.
type run struct {
	api     *API
	cfg     config
	backend Backend
	bus     bus.Bus
	repair  repairer
	report  *Report

	mu      sync.Mutex // guards summary
	summary Summary
}

// Run scans the pool. It lists buckets, differences each selected bucket
// against the pool contents using the configured number of workers, applies
// whatever repairs the options ask for, and returns a summary of the run.
//
// Buckets already done in the checkpoint store are skipped. A bucket whose
// scan fails is marked failed in the checkpoint store and does not stop the
// other buckets; Run then returns the summary together with a non-nil error,
// as it does when any repair fails. Cancelling the context stops the run and
// leaves unfinished buckets in-progress, so the next run against the same
// checkpoint store scans them again from the beginning.
func (a *API) Run(ctx context.Context, opts ...Option) (*Summary, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	// Progress reporting rides on the bus, so a silent default would lose
	// the status stream; an unset bus gets a private in-process one.
	b := a.Bus
	if b == nil {
		b = bus.New()
	}

	ctx, span := tracer.Start(ctx, "scrub/run",
		trace.WithAttributes(attribute.String("pool", a.Pool)))
	defer span.End()

	started := time.Now()

	r := &run{
		api:     a,
		cfg:     cfg,
		backend: gated{inner: a.Backend, gate: NewGate(cfg.maxConcurrentIOs)},
		bus:     b,
		report:  NewReport(a.Pool, cfg.dryRun),
	}
	r.repair = newRepairer(r.backend, b, cfg)

	work, err := r.selectBuckets(ctx)
	if err != nil {
		return nil, err
	}
	log.Infow("starting scan", "pool", a.Pool, "buckets", len(work), "skipped", r.summary.Skipped, "workers", cfg.workers, "dry_run", cfg.dryRun)

	progress, err := StartProgress(cfg.statusWriter, b, a.Pool, len(work))
	if err != nil {
		return nil, err
	}

	queue := make(chan bucketWork, len(work))
	for _, item := range work {
		queue <- item
	}
	close(queue)

	eg, gctx := workgroup.WithContext(ctx)
	for range min(cfg.workers, len(work)) {
		eg.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case item, ok := <-queue:
					if !ok {
						return nil
					}
					if err := r.scanBucket(gctx, item); err != nil {
						return err
					}
				}
			}
		})
	}

	runErr := eg.Wait()
	progress.Stop()
	r.summary.Elapsed = time.Since(started)

	// The report is flushed even when the run was cut short: a partial
	// finding list still tells the operator where the damage is.
	if cfg.artifactName != "" && r.report.Len() > 0 {
		if err := r.storeReport(context.WithoutCancel(ctx)); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	span.SetAttributes(
		attribute.Int("buckets_done", r.summary.Done),
		attribute.Int("buckets_failed", r.summary.Failed),
		attribute.Int64("objects_scanned", int64(r.summary.ObjectsScanned)),
		attribute.Int64("missing_objects", int64(r.summary.MissingObjects)),
	)

	if runErr != nil {
		return &r.summary, runErr
	}
	if r.summary.Failed > 0 {
		return &r.summary, fmt.Errorf("%d of %d buckets failed to scan", r.summary.Failed, r.summary.Selected)
	}
	if r.summary.RepairFailed > 0 {
		return &r.summary, fmt.Errorf("repairs failed for %d objects", r.summary.RepairFailed)
	}
	return &r.summary, nil
}

// selectBuckets lists the backend's buckets, applies the bucket filter, and
// loads or creates a checkpoint record for every selected bucket. Buckets
// already done are counted as skipped and excluded from the returned work.
func (r *run) selectBuckets(ctx context.Context) ([]bucketWork, error) {
	all, err := retryBackend(ctx, r.cfg.maxTries, func() ([]rgw.BucketInfo, error) {
		return collect(r.backend.ListBuckets(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	selected := all
	if len(r.cfg.buckets) > 0 {
		byName := make(map[string]rgw.BucketInfo, len(all))
		for _, info := range all {
			byName[info.Name] = info
		}
		seen := make(map[string]struct{}, len(r.cfg.buckets))
		var unknown []string
		selected = make([]rgw.BucketInfo, 0, len(r.cfg.buckets))
		for _, name := range r.cfg.buckets {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			info, ok := byName[name]
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			selected = append(selected, info)
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown buckets: %s", strings.Join(unknown, ", "))
		}
	}
	r.summary.Selected = len(selected)

	work := make([]bucketWork, 0, len(selected))
	for _, info := range selected {
		record, err := r.api.Repo.FindOrCreateBucket(ctx, info.Name)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint for bucket %s: %w", info.Name, err)
		}
		if record.Status() == model.BucketStatusDone {
			log.Debugf("skipping bucket %s, already done", info.Name)
			r.summary.Skipped++
			continue
		}
		work = append(work, bucketWork{info: info, record: record})
	}
	return work, nil
}

// scanBucket differences one bucket and repairs its findings. A scan failure
// marks the bucket failed and returns nil, so other buckets keep going; only
// cancellation and checkpoint store errors propagate. The done checkpoint is
// written before the completion event goes out, so a bucket reported done is
// durably done.
func (r *run) scanBucket(ctx context.Context, item bucketWork) error {
	ctx, span := tracer.Start(ctx, "scrub/scan-bucket",
		trace.WithAttributes(attribute.String("bucket", item.info.Name)))
	defer span.End()

	record := item.record
	if err := record.Start(); err != nil {
		return fmt.Errorf("starting bucket %s: %w", item.info.Name, err)
	}
	if err := r.api.Repo.UpdateBucket(ctx, record); err != nil {
		return fmt.Errorf("checkpointing bucket %s: %w", item.info.Name, err)
	}
	r.publish(events.WorkerEvent{Name: item.info.Name, Status: events.WorkerRunning})

	diff, err := differenceBucket(ctx, r.backend, item.info, r.cfg.maxTries)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted, not failed. The record stays in-progress and the
			// next run scans the bucket again from the beginning.
			return ctx.Err()
		}
		log.Errorw("bucket scan failed", "bucket", item.info.Name, "error", err)
		if failErr := record.Fail(err.Error()); failErr != nil {
			return fmt.Errorf("failing bucket %s: %w", item.info.Name, failErr)
		}
		if err := r.api.Repo.UpdateBucket(context.WithoutCancel(ctx), record); err != nil {
			return fmt.Errorf("checkpointing bucket %s after failure: %w", item.info.Name, err)
		}
		r.publish(events.WorkerEvent{Name: item.info.Name, Status: events.WorkerFailed, Error: err})
		r.mu.Lock()
		r.summary.Failed++
		r.mu.Unlock()
		return nil
	}

	entries := make([]ReportEntry, 0, len(diff.missing))
	for _, rec := range diff.missing {
		entries = append(entries, ReportEntry{
			MissingRecord: rec,
			Repair:        r.repair.repairRecord(ctx, rec),
		})
	}
	if ctx.Err() != nil {
		// Repairs were cut short. Leave the bucket in-progress so the next
		// run differences it again; placeholders already created stay valid.
		r.report.Append(entries)
		return ctx.Err()
	}
	r.report.Append(entries)

	if err := record.RecordResults(diff.objectsScanned, uint64(len(diff.missing)), diff.missingChunks(), diff.orphanChunks); err != nil {
		return fmt.Errorf("recording results for bucket %s: %w", item.info.Name, err)
	}
	if err := record.Complete(); err != nil {
		return fmt.Errorf("completing bucket %s: %w", item.info.Name, err)
	}
	if err := r.api.Repo.UpdateBucket(context.WithoutCancel(ctx), record); err != nil {
		return fmt.Errorf("checkpointing bucket %s: %w", item.info.Name, err)
	}

	r.tally(diff, entries)
	r.publish(events.WorkerEvent{
		Name:           item.info.Name,
		Status:         events.WorkerStopped,
		ObjectsScanned: diff.objectsScanned,
	})
	return nil
}

func (r *run) publish(event events.WorkerEvent) {
	r.bus.Publish(events.TopicWorker(r.api.Pool), event)
}

func (r *run) tally(diff bucketDiff, entries []ReportEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Done++
	r.summary.ObjectsScanned += diff.objectsScanned
	r.summary.MissingObjects += uint64(len(diff.missing))
	r.summary.MissingChunks += diff.missingChunks()
	r.summary.OrphanChunks += diff.orphanChunks
	for _, entry := range entries {
		switch entry.Repair.State {
		case RepairStateRepaired:
			r.summary.Repaired++
		case RepairStateWouldRepair:
			r.summary.WouldRepair++
		case RepairStateFailed:
			r.summary.RepairFailed++
		}
	}
}

func (r *run) storeReport(ctx context.Context) error {
	content, err := r.report.Bytes()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := r.backend.StoreArtifact(ctx, r.cfg.artifactName, content); err != nil {
		return fmt.Errorf("storing report %s: %w", r.cfg.artifactName, err)
	}
	log.Infow("stored report", "name", r.cfg.artifactName, "entries", r.report.Len())
	return nil
}
