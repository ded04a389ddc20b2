package scrub_test

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remora-tools/remora/pkg/scrub"
)

func TestReport(t *testing.T) {
	t.Run("encodes as a header line followed by entry lines", func(t *testing.T) {
		report := scrub.NewReport("default.rgw.buckets.data", true)
		report.Append([]scrub.ReportEntry{
			{
				MissingRecord: scrub.MissingRecord{
					Bucket:     "photos",
					Key:        "archive/item-0001.bin",
					Size:       8 << 20,
					Missing:    []string{"photos-mk__shadow_archive/item-0001.bin.nQnAvy_1"},
					DetectedAt: time.Now().UTC(),
				},
				Repair: scrub.RepairResult{State: scrub.RepairStateWouldRepair},
			},
		})

		var buf bytes.Buffer
		require.NoError(t, report.Encode(&buf))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)

		var header scrub.ReportHeader
		require.NoError(t, json.Unmarshal(lines[0], &header))
		require.Equal(t, report.Header(), header)
		require.True(t, header.DryRun)

		var entry scrub.ReportEntry
		require.NoError(t, json.Unmarshal(lines[1], &entry))
		require.Equal(t, "photos", entry.Bucket)
		require.Equal(t, scrub.RepairStateWouldRepair, entry.Repair.State)
	})

	t.Run("appends from concurrent workers without losing entries", func(t *testing.T) {
		report := scrub.NewReport("default.rgw.buckets.data", false)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					report.Append([]scrub.ReportEntry{{
						MissingRecord: scrub.MissingRecord{Bucket: "photos", Key: "k"},
					}})
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 400, report.Len())
		require.Len(t, report.Entries(), 400)
	})

	t.Run("keeps per-bucket entry order", func(t *testing.T) {
		report := scrub.NewReport("default.rgw.buckets.data", false)
		report.Append([]scrub.ReportEntry{
			{MissingRecord: scrub.MissingRecord{Bucket: "photos", Key: "a"}},
			{MissingRecord: scrub.MissingRecord{Bucket: "photos", Key: "b"}},
		})

		entries := report.Entries()
		require.Equal(t, "a", entries[0].Key)
		require.Equal(t, "b", entries[1].Key)
	})
}
