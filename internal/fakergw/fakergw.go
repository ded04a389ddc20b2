// fakergw provides a fake, pseudo-random RGW cluster implementing the scrub
// engine's storage backend. It is useful for demos and for exercising the
// scan pipeline without a cluster: a given seed always produces the same
// buckets, the same objects and the same damage.
package fakergw

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"strconv"
	"sync"

	"github.com/spf13/afero"
	"github.com/wordgen/wordlists/eff"

	"github.com/remora-tools/remora/pkg/rgw"
	"github.com/remora-tools/remora/pkg/scrub"
)

// stripe is the fake's RADOS chunk size. Objects larger than one stripe
// spill into shadow chunks, like the gateway's own layout.
const stripe = 4 << 20

type Cluster struct {
	r       Rand
	buckets int
	objects int
	damage  int // percent of non-empty objects missing one chunk
	broken  map[string]bool

	mu       sync.Mutex
	pool     afero.Fs // placeholder and artifact writes land here
	rewrites []string
}

var _ scrub.Backend = (*Cluster)(nil)

// Option is an option configuring a Cluster.
type Option func(*Cluster)

// WithBuckets sets the number of buckets the cluster serves.
func WithBuckets(n int) Option {
	return func(c *Cluster) { c.buckets = n }
}

// WithObjectsPerBucket sets the number of objects in each bucket.
func WithObjectsPerBucket(n int) Option {
	return func(c *Cluster) { c.objects = n }
}

// WithDamage sets the percentage of non-empty objects that are missing one
// of their chunks.
func WithDamage(percent int) Option {
	return func(c *Cluster) { c.damage = percent }
}

// WithBrokenBuckets makes listing the named buckets fail, the way a bucket
// with a lost index shard does.
func WithBrokenBuckets(names ...string) Option {
	return func(c *Cluster) {
		for _, name := range names {
			c.broken[name] = true
		}
	}
}

// New creates a fake cluster from the given seed. Different seeds produce
// different clusters; the same seed always produces the same cluster.
func New(seed uint64, options ...Option) *Cluster {
	c := &Cluster{
		r:       NewRand(seed),
		buckets: 8,
		objects: 40,
		damage:  10,
		broken:  map[string]bool{},
		pool:    afero.NewMemMapFs(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cluster) ListBuckets(context.Context) iter.Seq2[rgw.BucketInfo, error] {
	return func(yield func(rgw.BucketInfo, error) bool) {
		for i := range c.buckets {
			if !yield(c.bucketAt(i), nil) {
				return
			}
		}
	}
}

func (c *Cluster) ListObjects(_ context.Context, bucket rgw.BucketInfo) iter.Seq2[rgw.Object, error] {
	return func(yield func(rgw.Object, error) bool) {
		if c.broken[bucket.Name] {
			yield(rgw.Object{}, scrub.NewBackendError("list-objects", false,
				fmt.Errorf("bucket index unavailable for %s", bucket.Name)))
			return
		}
		objects, _ := c.bucketContents(bucket)
		for _, obj := range objects {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

func (c *Cluster) ListPool(_ context.Context, bucket rgw.BucketInfo) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_, present := c.bucketContents(bucket)

		stored, err := c.storedNames()
		if err != nil {
			yield("", scrub.NewBackendError("pool-list", false, err))
			return
		}

		prefix := bucket.Marker + "_"
		seen := map[string]struct{}{}
		for _, name := range append(present, stored...) {
			if len(name) < len(prefix) || name[:len(prefix)] != prefix {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			if !yield(name, nil) {
				return
			}
		}
	}
}

// CreatePlaceholder writes a zero-filled object into the in-memory pool, so
// later pool listings see the repaired chunk.
func (c *Cluster) CreatePlaceholder(_ context.Context, name string, size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := c.pool.Create(name)
	if err != nil {
		return scrub.NewBackendError("placeholder-put", false, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return scrub.NewBackendError("placeholder-put", false, err)
	}
	return f.Close()
}

func (c *Cluster) RepairIndexEntry(_ context.Context, object rgw.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewrites = append(c.rewrites, object.String())
	return nil
}

func (c *Cluster) StoreArtifact(_ context.Context, name string, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := afero.WriteFile(c.pool, name, content, 0o644); err != nil {
		return scrub.NewBackendError("artifact-put", false, err)
	}
	return nil
}

// Artifact reads back a stored artifact.
func (c *Cluster) Artifact(name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return afero.ReadFile(c.pool, name)
}

// IndexRewrites returns the objects whose index entries have been rewritten,
// in repair order.
func (c *Cluster) IndexRewrites() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.rewrites))
	copy(out, c.rewrites)
	return out
}

func (c *Cluster) bucketAt(i int) rgw.BucketInfo {
	name := Pick(c.r.NextString("Bucket-Name"), eff.Large, i)
	br := c.r.NextString(name)
	id := fmt.Sprintf("%x.%d", br.NextString("ID").Uint64(), i+1)
	return rgw.BucketInfo{Name: name, ID: id, Marker: id}
}

// bucketContents derives the bucket's index entries and the RADOS objects
// actually present for it, all from the cluster seed and the bucket name.
func (c *Cluster) bucketContents(bucket rgw.BucketInfo) (objects []rgw.Object, present []string) {
	br := c.r.NextString(bucket.Name)

	for j := range c.objects {
		jr := br.Next(uint64(j))
		dir := Pick(br.NextString("Object-Dir"), eff.Large, j%8)
		leaf := Pick(br.NextString("Object-Name"), eff.Large, j)
		key := dir + "/" + leaf + ".bin"

		var size uint64
		if jr.NextString("Empty").Uint64()%10 != 0 {
			size = (1 << 10) + jr.NextString("Size").Uint64()%(24<<20)
		}

		manifest := []string{bucket.Marker + "_" + key}
		if size > 0 {
			tag := strconv.FormatUint(jr.NextString("Tag").Uint64(), 36)
			shadows := int((size - 1) / stripe)
			for s := 1; s <= shadows; s++ {
				manifest = append(manifest,
					fmt.Sprintf("%s__shadow_%s.%s_%d", bucket.Marker, key, tag, s))
			}
		}

		missing := -1
		if size > 0 && c.damage > 0 && jr.NextString("Damaged").Uint64()%100 < uint64(c.damage) {
			missing = int(jr.NextString("Missing-Chunk").Uint64() % uint64(len(manifest)))
		}
		for idx, name := range manifest {
			if idx != missing {
				present = append(present, name)
			}
		}

		objects = append(objects, rgw.Object{
			Bucket:   bucket.Name,
			Key:      key,
			Size:     size,
			Manifest: manifest,
		})
	}

	if br.NextString("Uploads").Uint64()%3 == 0 {
		uname := Pick(br.NextString("Upload-Name"), eff.Large, 0) + ".iso"
		id := rgw.MultipartUploadIDPrefix + strconv.FormatUint(br.NextString("Upload-ID").Uint64(), 36)
		objects = append(objects, rgw.Object{
			Bucket: bucket.Name,
			Key:    fmt.Sprintf("_multipart_%s.%s.meta", uname, id),
		})
		for p := 1; p <= 2; p++ {
			radosName := fmt.Sprintf("%s__multipart_%s.%s.%d", bucket.Marker, uname, id, p)
			objects = append(objects, rgw.Object{
				Bucket:   bucket.Name,
				Key:      fmt.Sprintf("_multipart_%s.%s.%d", uname, id, p),
				Size:     5 << 20,
				Manifest: []string{radosName},
			})
			present = append(present, radosName)
		}
	}

	orphans := int(br.NextString("Orphans").Uint64() % 3)
	for k := range orphans {
		present = append(present, fmt.Sprintf("%s__shadow_%s_%d",
			bucket.Marker, Pick(br.NextString("Orphan-Name"), eff.Large, k), k))
	}

	return objects, present
}

// storedNames walks the in-memory pool for objects written after creation,
// placeholders and artifacts alike.
func (c *Cluster) storedNames() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	err := fs.WalkDir(afero.NewIOFS(c.pool), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking pool contents: %w", err)
	}
	return names, nil
}
