package radosgw_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remora-tools/remora/pkg/radosgw"
	"github.com/remora-tools/remora/pkg/rgw"
	"github.com/remora-tools/remora/pkg/scrub"
)

const (
	testPool = "default.rgw.buckets.data"
	fs       = "\x1f"
)

// fakeRunner serves canned command output keyed by the full command line.
type fakeRunner struct {
	mu    sync.Mutex
	out   map[string]string   // command -> stdout
	lines map[string][]string // command -> streamed stdout lines
	errs  map[string]error    // command -> failure
	puts  map[string][]byte   // command -> stdin consumed
	calls []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		out:   map[string]string{},
		lines: map[string][]string{},
		errs:  map[string]error{},
		puts:  map[string][]byte{},
	}
}

func cmdKey(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.RunInput(ctx, nil, name, args...)
}

func (f *fakeRunner) RunInput(_ context.Context, input io.Reader, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cmdKey(name, args)
	f.calls = append(f.calls, key)
	if input != nil {
		content, err := io.ReadAll(input)
		if err != nil {
			return nil, err
		}
		f.puts[key] = content
	}
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	out, ok := f.out[key]
	if !ok {
		return nil, fmt.Errorf("unexpected command: %s", key)
	}
	return []byte(out), nil
}

func (f *fakeRunner) Stream(_ context.Context, name string, args ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		key := cmdKey(name, args)
		f.calls = append(f.calls, key)
		lines, ok := f.lines[key]
		err := f.errs[key]
		f.mu.Unlock()
		if !ok && err == nil {
			yield("", fmt.Errorf("unexpected command: %s", key))
			return
		}
		for _, line := range lines {
			if !yield(line, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (f *fakeRunner) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, key)
}

func newTestClient(t *testing.T, f *fakeRunner, options ...radosgw.Option) *radosgw.Client {
	t.Helper()
	client, err := radosgw.New(testPool, append([]radosgw.Option{radosgw.WithRunner(f)}, options...)...)
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	t.Run("requires a pool name", func(t *testing.T) {
		_, err := radosgw.New("")
		require.ErrorContains(t, err, "pool name is empty")
	})

	t.Run("rejects a nonsense page size", func(t *testing.T) {
		_, err := radosgw.New(testPool, radosgw.WithPageSize(0))
		require.ErrorContains(t, err, "page size must be positive")
	})
}

func TestBucketNames(t *testing.T) {
	t.Run("decodes the gateway's bucket list", func(t *testing.T) {
		f := newFakeRunner()
		f.out["radosgw-admin bucket list"] = `["alpha","beta"]`
		client := newTestClient(t, f)

		names, err := client.BucketNames(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"alpha", "beta"}, names)
	})

	t.Run("rejects output that is not JSON", func(t *testing.T) {
		f := newFakeRunner()
		f.out["radosgw-admin bucket list"] = "could not contact the gateway"
		client := newTestClient(t, f)

		_, err := client.BucketNames(t.Context())
		require.ErrorContains(t, err, "decoding bucket list")
	})
}

func TestListBuckets(t *testing.T) {
	t.Run("resolves the marker of every bucket", func(t *testing.T) {
		f := newFakeRunner()
		f.out["radosgw-admin bucket list"] = `["alpha","beta"]`
		f.out["radosgw-admin bucket stats --bucket alpha"] = `{"bucket":"alpha","id":"alpha-id","marker":"alpha-mk"}`
		f.out["radosgw-admin bucket stats --bucket beta"] = `{"bucket":"beta","id":"beta-id","marker":"beta-mk"}`
		client := newTestClient(t, f)

		var infos []rgw.BucketInfo
		for info, err := range client.ListBuckets(t.Context()) {
			require.NoError(t, err)
			infos = append(infos, info)
		}
		require.Equal(t, []rgw.BucketInfo{
			{Name: "alpha", ID: "alpha-id", Marker: "alpha-mk"},
			{Name: "beta", ID: "beta-id", Marker: "beta-mk"},
		}, infos)
	})

	t.Run("surfaces a stats failure", func(t *testing.T) {
		f := newFakeRunner()
		f.out["radosgw-admin bucket list"] = `["alpha"]`
		f.errs["radosgw-admin bucket stats --bucket alpha"] = errors.New("boom")
		client := newTestClient(t, f)

		var last error
		for _, err := range client.ListBuckets(t.Context()) {
			last = err
		}
		require.ErrorContains(t, last, "boom")
	})
}

func TestListObjects(t *testing.T) {
	photos := rgw.BucketInfo{Name: "photos", ID: "photos-id", Marker: "photos-mk"}
	radoslistKey := "radosgw-admin bucket radoslist --rgw-obj-fs " + fs + " --bucket photos"

	t.Run("attaches manifests to index entries", func(t *testing.T) {
		f := newFakeRunner()
		f.lines[radoslistKey] = []string{
			"photos-mk_a.jpg" + fs + "photos" + fs + "a.jpg",
			"photos-mk__shadow_a.jpg.x_1" + fs + "photos" + fs + "a.jpg",
			"photos-mk_b.jpg" + fs + "photos" + fs + "b.jpg",
			"photos-mk__multipart_big.iso.2~abc.1" + fs + "photos" + fs + "big.iso.2~abc.1",
			"a line without separators",
		}
		f.out["radosgw-admin bucket list --bucket photos --max-entries 2"] = `[
			{"name":"_multipart_big.iso.2~abc.1","instance":"","meta":{"size":5242880}},
			{"name":"a.jpg","instance":"","meta":{"size":8388608}}
		]`
		f.out["radosgw-admin bucket list --bucket photos --max-entries 2 --marker a.jpg"] = `[
			{"name":"b.jpg","instance":"v1WvLk","meta":{"size":1024}}
		]`
		f.out["radosgw-admin bucket list --bucket photos --max-entries 2 --marker b.jpg"] = `[]`
		client := newTestClient(t, f, radosgw.WithPageSize(2))

		var objects []rgw.Object
		for obj, err := range client.ListObjects(t.Context(), photos) {
			require.NoError(t, err)
			objects = append(objects, obj)
		}
		require.Equal(t, []rgw.Object{
			{
				Bucket: "photos", Key: "_multipart_big.iso.2~abc.1", Size: 5242880,
				Manifest: []string{"photos-mk__multipart_big.iso.2~abc.1"},
			},
			{
				Bucket: "photos", Key: "a.jpg", Size: 8388608,
				Manifest: []string{"photos-mk_a.jpg", "photos-mk__shadow_a.jpg.x_1"},
			},
			{
				Bucket: "photos", Key: "b.jpg", Instance: "v1WvLk", Size: 1024,
				Manifest: []string{"photos-mk_b.jpg"},
			},
		}, objects)
	})

	t.Run("stops when the index marker does not advance", func(t *testing.T) {
		f := newFakeRunner()
		f.lines[radoslistKey] = []string{}
		f.out["radosgw-admin bucket list --bucket photos --max-entries 2"] = `[
			{"name":"dup","instance":"a","meta":{"size":1}},
			{"name":"dup","instance":"b","meta":{"size":1}}
		]`
		f.out["radosgw-admin bucket list --bucket photos --max-entries 2 --marker dup"] = `[
			{"name":"dup","instance":"c","meta":{"size":1}}
		]`
		client := newTestClient(t, f, radosgw.WithPageSize(2))

		var last error
		for _, err := range client.ListObjects(t.Context(), photos) {
			last = err
		}
		require.ErrorContains(t, last, "not advancing")
	})
}

func TestListPool(t *testing.T) {
	t.Run("keeps only the bucket's objects", func(t *testing.T) {
		f := newFakeRunner()
		f.lines["rados -p "+testPool+" ls"] = []string{
			"photos-mk_a.jpg",
			"photos-mk__shadow_a.jpg.x_1",
			"other-mk_b.jpg",
			"gc_chain_4",
		}
		client := newTestClient(t, f)

		var names []string
		bucket := rgw.BucketInfo{Name: "photos", ID: "photos-id", Marker: "photos-mk"}
		for name, err := range client.ListPool(t.Context(), bucket) {
			require.NoError(t, err)
			names = append(names, name)
		}
		require.Equal(t, []string{"photos-mk_a.jpg", "photos-mk__shadow_a.jpg.x_1"}, names)
	})

	t.Run("refuses a bucket without a marker", func(t *testing.T) {
		client := newTestClient(t, newFakeRunner())

		var last error
		for _, err := range client.ListPool(t.Context(), rgw.BucketInfo{Name: "ghost"}) {
			last = err
		}
		require.ErrorContains(t, last, "refusing to scan the whole pool")
	})
}

func TestCreatePlaceholder(t *testing.T) {
	f := newFakeRunner()
	key := "rados -p " + testPool + " put photos-mk_a.jpg -"
	f.out[key] = ""
	client := newTestClient(t, f)

	require.NoError(t, client.CreatePlaceholder(t.Context(), "photos-mk_a.jpg", 4096))
	require.Equal(t, make([]byte, 4096), f.puts[key])
}

func TestStoreArtifact(t *testing.T) {
	f := newFakeRunner()
	key := "rados -p " + testPool + " put scrub-report -"
	f.out[key] = ""
	client := newTestClient(t, f)

	require.NoError(t, client.StoreArtifact(t.Context(), "scrub-report", []byte("findings")))
	require.Equal(t, []byte("findings"), f.puts[key])
}

func TestRepairIndexEntry(t *testing.T) {
	t.Run("rewrites a plain object", func(t *testing.T) {
		f := newFakeRunner()
		key := "radosgw-admin object rewrite --bucket photos --object a.jpg"
		f.out[key] = ""
		client := newTestClient(t, f)

		err := client.RepairIndexEntry(t.Context(), rgw.Object{Bucket: "photos", Key: "a.jpg"})
		require.NoError(t, err)
		require.True(t, f.called(key))
	})

	t.Run("names the version on versioned objects", func(t *testing.T) {
		f := newFakeRunner()
		key := "radosgw-admin object rewrite --bucket photos --object a.jpg --object-version v1WvLk"
		f.out[key] = ""
		client := newTestClient(t, f)

		err := client.RepairIndexEntry(t.Context(), rgw.Object{Bucket: "photos", Key: "a.jpg", Instance: "v1WvLk"})
		require.NoError(t, err)
		require.True(t, f.called(key))
	})
}

func TestIncompleteUploads(t *testing.T) {
	indexKey := "radosgw-admin bucket list --bucket media --max-entries 1000"
	radoslistKey := "radosgw-admin bucket radoslist --rgw-obj-fs " + fs + " --bucket media"

	seedIndex := func(f *fakeRunner) {
		f.out[indexKey] = `[
			{"name":"_multipart_video.mp4.2~u1.meta","instance":"","meta":{"size":0}},
			{"name":"_multipart_video.mp4.2~u1.1","instance":"","meta":{"size":5242880}},
			{"name":"_multipart_video.mp4.2~u1.2","instance":"","meta":{"size":5242880}},
			{"name":"song.mp3","instance":"","meta":{"size":9000}}
		]`
		f.out[indexKey+" --marker song.mp3"] = `[]`
	}

	t.Run("groups index entries by upload", func(t *testing.T) {
		f := newFakeRunner()
		seedIndex(f)
		admin, err := radosgw.NewAdmin(radosgw.WithRunner(f))
		require.NoError(t, err)

		set, err := admin.IncompleteUploads(t.Context(), "media", false)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())

		upload := set.Uploads()[0]
		require.Equal(t, "2~u1", upload.UploadID)
		require.Equal(t, "video.mp4", upload.ObjectName)
		require.Equal(t, []string{"_multipart_video.mp4.2~u1.1", "_multipart_video.mp4.2~u1.2"}, upload.Parts)
		require.Empty(t, upload.RadosObjects)
		require.False(t, f.called(radoslistKey))
	})

	t.Run("attributes rados objects on request", func(t *testing.T) {
		f := newFakeRunner()
		seedIndex(f)
		f.lines[radoslistKey] = []string{
			"media-mk__multipart_video.mp4.2~u1.1" + fs + "media" + fs + "video.mp4.2~u1.1",
			"media-mk__shadow_video.mp4.2~u1.1_1" + fs + "media" + fs + "video.mp4.2~u1.1",
			"media-mk_song.mp3" + fs + "media" + fs + "song.mp3",
		}
		admin, err := radosgw.NewAdmin(radosgw.WithRunner(f))
		require.NoError(t, err)

		set, err := admin.IncompleteUploads(t.Context(), "media", true)
		require.NoError(t, err)
		require.Equal(t, 1, set.Len())
		require.Equal(t, []string{
			"media-mk__multipart_video.mp4.2~u1.1",
			"media-mk__shadow_video.mp4.2~u1.1_1",
		}, set.Uploads()[0].RadosObjects)
	})

	t.Run("skips the rados pass when nothing is incomplete", func(t *testing.T) {
		f := newFakeRunner()
		f.out[indexKey] = `[{"name":"song.mp3","instance":"","meta":{"size":9000}}]`
		f.out[indexKey+" --marker song.mp3"] = `[]`
		admin, err := radosgw.NewAdmin(radosgw.WithRunner(f))
		require.NoError(t, err)

		set, err := admin.IncompleteUploads(t.Context(), "media", true)
		require.NoError(t, err)
		require.Equal(t, 0, set.Len())
		require.False(t, f.called(radoslistKey))
	})
}

func TestErrorClassification(t *testing.T) {
	t.Run("connection trouble is transient", func(t *testing.T) {
		f := newFakeRunner()
		f.errs["radosgw-admin bucket list"] = errors.New("radosgw-admin bucket list: exit status 1: Connection refused")
		client := newTestClient(t, f)

		_, err := client.BucketNames(t.Context())
		require.Error(t, err)
		require.True(t, scrub.IsTransient(err))
	})

	t.Run("everything else is permanent", func(t *testing.T) {
		f := newFakeRunner()
		f.errs["radosgw-admin bucket list"] = errors.New("radosgw-admin bucket list: exit status 22: No such file or directory")
		client := newTestClient(t, f)

		_, err := client.BucketNames(t.Context())
		require.Error(t, err)
		require.False(t, scrub.IsTransient(err))
	})
}
