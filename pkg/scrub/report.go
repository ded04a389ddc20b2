package scrub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReportHeader identifies the run a corruption report belongs to.
type ReportHeader struct {
	RunID     uuid.UUID `json:"run_id"`
	Pool      string    `json:"pool"`
	StartedAt time.Time `json:"started_at"`
	DryRun    bool      `json:"dry_run"`
}

// ReportEntry is one missing-object record together with the outcome of its
// repair attempt, if any.
type ReportEntry struct {
	MissingRecord
	Repair RepairResult `json:"repair"`
}

// Report is the corruption report accumulated over a run: every object
// version found with missing RADOS objects, in the order buckets completed.
// Entries of one bucket keep the order the differencer emitted them; the
// interleaving between buckets depends on scheduling.
//
// Appends are safe from multiple workers.
type Report struct {
	header ReportHeader

	mu      sync.Mutex
	entries []ReportEntry
}

// NewReport creates an empty report for a run against the given pool.
func NewReport(pool string, dryRun bool) *Report {
	return &Report{
		header: ReportHeader{
			RunID:     uuid.New(),
			Pool:      pool,
			StartedAt: time.Now().UTC(),
			DryRun:    dryRun,
		},
	}
}

// Header returns the run identification of the report.
func (r *Report) Header() ReportHeader {
	return r.header
}

// Append adds a bucket's records to the report, keeping their order.
func (r *Report) Append(entries []ReportEntry) {
	if len(entries) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
}

// Entries returns a snapshot of the report's entries.
func (r *Report) Entries() []ReportEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReportEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries in the report.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Encode writes the report as JSON lines: the header first, then one line
// per entry. The format streams and diffs well, and appending runs never
// have to rewrite earlier lines.
func (r *Report) Encode(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(w)
	if err := enc.Encode(r.header); err != nil {
		return fmt.Errorf("encoding report header: %w", err)
	}
	for i, entry := range r.entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encoding report entry %d: %w", i, err)
		}
	}
	return nil
}

// Bytes returns the encoded report, as stored by [Backend.StoreArtifact].
func (r *Report) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
