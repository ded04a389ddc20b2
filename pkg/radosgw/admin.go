package radosgw

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/remora-tools/remora/pkg/rgw"
	"github.com/remora-tools/remora/pkg/scrub"
)

// bucketStats is the subset of radosgw-admin bucket stats output the scanner
// needs.
type bucketStats struct {
	Bucket string `json:"bucket"`
	ID     string `json:"id"`
	Marker string `json:"marker"`
}

// indexEntry is one bucket index record as radosgw-admin bucket list emits
// it.
type indexEntry struct {
	Name     string `json:"name"`
	Instance string `json:"instance"`
	Meta     struct {
		Size uint64 `json:"size"`
	} `json:"meta"`
}

// BucketNames lists the bucket names known to the gateway.
func (a *Admin) BucketNames(ctx context.Context) ([]string, error) {
	out, err := a.runner.Run(ctx, adminBinary, "bucket", "list")
	if err != nil {
		return nil, backendErr("list-buckets", err)
	}
	var names []string
	if err := json.Unmarshal(out, &names); err != nil {
		return nil, scrub.NewBackendError("list-buckets", false,
			fmt.Errorf("decoding bucket list: %w", err))
	}
	return names, nil
}

// ListBuckets enumerates the buckets known to the gateway, resolving the ID
// and marker of each.
func (a *Admin) ListBuckets(ctx context.Context) iter.Seq2[rgw.BucketInfo, error] {
	return func(yield func(rgw.BucketInfo, error) bool) {
		names, err := a.BucketNames(ctx)
		if err != nil {
			yield(rgw.BucketInfo{}, err)
			return
		}
		for _, name := range names {
			info, err := a.bucketInfo(ctx, name)
			if err != nil {
				yield(rgw.BucketInfo{}, err)
				return
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// bucketInfo resolves the bucket's ID and the marker that prefixes every
// RADOS object the bucket owns in the data pool.
func (a *Admin) bucketInfo(ctx context.Context, name string) (rgw.BucketInfo, error) {
	out, err := a.runner.Run(ctx, adminBinary, "bucket", "stats", "--bucket", name)
	if err != nil {
		return rgw.BucketInfo{}, backendErr("bucket-stats", err)
	}
	var stats bucketStats
	if err := json.Unmarshal(out, &stats); err != nil {
		return rgw.BucketInfo{}, scrub.NewBackendError("bucket-stats", false,
			fmt.Errorf("decoding stats of bucket %s: %w", name, err))
	}
	return rgw.BucketInfo{Name: name, ID: stats.ID, Marker: stats.Marker}, nil
}

// ListObjects enumerates every object version in the bucket index with the
// RADOS objects its manifest references attached. The manifests come from
// one radoslist pass over the bucket, joined to the index entries by object
// name.
func (a *Admin) ListObjects(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[rgw.Object, error] {
	return func(yield func(rgw.Object, error) bool) {
		manifests, err := a.manifests(ctx, bucket.Name)
		if err != nil {
			yield(rgw.Object{}, err)
			return
		}
		for entry, err := range a.indexEntries(ctx, bucket.Name) {
			if err != nil {
				yield(rgw.Object{}, err)
				return
			}
			obj := rgw.Object{
				Bucket:   bucket.Name,
				Key:      entry.Name,
				Instance: entry.Instance,
				Size:     entry.Meta.Size,
				Manifest: manifests[manifestKey(entry.Name)],
			}
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// indexEntries pages through the bucket index until an empty page comes
// back. A page whose marker does not advance would loop forever, so it
// fails the listing instead.
func (a *Admin) indexEntries(ctx context.Context, bucket string) iter.Seq2[indexEntry, error] {
	return func(yield func(indexEntry, error) bool) {
		marker := ""
		for {
			entries, err := a.indexPage(ctx, bucket, marker)
			if err != nil {
				yield(indexEntry{}, err)
				return
			}
			if len(entries) == 0 {
				return
			}
			for _, entry := range entries {
				if !yield(entry, nil) {
					return
				}
			}
			next := entries[len(entries)-1].Name
			if next == marker {
				yield(indexEntry{}, scrub.NewBackendError("bucket-index-list", false,
					fmt.Errorf("index listing of bucket %s is not advancing at marker %q", bucket, next)))
				return
			}
			marker = next
		}
	}
}

func (a *Admin) indexPage(ctx context.Context, bucket, marker string) ([]indexEntry, error) {
	args := []string{
		"bucket", "list",
		"--bucket", bucket,
		"--max-entries", strconv.Itoa(a.pageSize),
	}
	if marker != "" {
		args = append(args, "--marker", marker)
	}
	out, err := a.runner.Run(ctx, adminBinary, args...)
	if err != nil {
		return nil, backendErr("bucket-index-list", err)
	}
	var entries []indexEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, scrub.NewBackendError("bucket-index-list", false,
			fmt.Errorf("decoding index of bucket %s: %w", bucket, err))
	}
	return entries, nil
}

// manifests groups the RADOS objects the bucket references, keyed by the
// object name radoslist reports them under.
func (a *Admin) manifests(ctx context.Context, bucket string) (map[string][]string, error) {
	groups := map[string][]string{}
	lines := a.runner.Stream(ctx, adminBinary,
		"bucket", "radoslist", "--rgw-obj-fs", fieldSeparator, "--bucket", bucket)
	for line, err := range lines {
		if err != nil {
			return nil, backendErr("bucket-radoslist", err)
		}
		radosObj, name, ok := splitRadosListLine(line)
		if !ok {
			log.Debugw("skipping malformed radoslist line", "bucket", bucket, "line", line)
			continue
		}
		groups[name] = append(groups[name], radosObj)
	}
	return groups, nil
}

// splitRadosListLine splits one radoslist line into the columns the join
// needs: the RADOS object name and the object name it belongs to. The middle
// bucket column is not used.
func splitRadosListLine(line string) (radosObj, name string, ok bool) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// manifestKey maps an index entry name onto the object name column of
// radoslist output. In-progress multipart entries carry a _multipart_ prefix
// in the index that radoslist omits.
func manifestKey(name string) string {
	return strings.TrimPrefix(name, "_multipart_")
}

// RepairIndexEntry has the gateway rewrite the object, regenerating its
// index entry and manifest against the pool's current contents.
func (a *Admin) RepairIndexEntry(ctx context.Context, object rgw.Object) error {
	args := []string{
		"object", "rewrite",
		"--bucket", object.Bucket,
		"--object", object.Key,
	}
	if object.Instance != "" {
		args = append(args, "--object-version", object.Instance)
	}
	if _, err := a.runner.Run(ctx, adminBinary, args...); err != nil {
		return backendErr("object-rewrite", err)
	}
	return nil
}

// IncompleteUploads collects the in-progress multipart uploads recorded in
// the bucket index, optionally attributing the RADOS objects each upload has
// accumulated so far.
func (a *Admin) IncompleteUploads(ctx context.Context, bucket string, withRados bool) (*rgw.UploadSet, error) {
	set := rgw.NewUploadSet()
	for entry, err := range a.indexEntries(ctx, bucket) {
		if err != nil {
			return nil, err
		}
		set.AddIndexEntry(entry.Name)
	}
	if !withRados || set.Len() == 0 {
		return set, nil
	}

	lines := a.runner.Stream(ctx, adminBinary,
		"bucket", "radoslist", "--rgw-obj-fs", fieldSeparator, "--bucket", bucket)
	for line, err := range lines {
		if err != nil {
			return nil, backendErr("bucket-radoslist", err)
		}
		radosObj, name, ok := splitRadosListLine(line)
		if !ok {
			continue
		}
		set.AttributeRadosObject(radosObj, name)
	}
	return set, nil
}
