package rgw_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-tools/remora/pkg/rgw"
)

func TestParseMultipartEntry(t *testing.T) {
	t.Run("parses meta entries", func(t *testing.T) {
		entry, ok := rgw.ParseMultipartEntry("_multipart_videos/clip.mp4.2~D3sLkTqgpFHrkTeRNKnmpSnCzZzY5Hn.meta")
		require.True(t, ok)
		assert.Equal(t, "videos/clip.mp4", entry.ObjectName)
		assert.Equal(t, "2~D3sLkTqgpFHrkTeRNKnmpSnCzZzY5Hn", entry.UploadID)
		assert.True(t, entry.IsMeta())
	})

	t.Run("parses part entries", func(t *testing.T) {
		entry, ok := rgw.ParseMultipartEntry("_multipart_videos/clip.mp4.2~D3sLkTqgpFHrkTeRNKnmpSnCzZzY5Hn.7")
		require.True(t, ok)
		assert.Equal(t, "videos/clip.mp4", entry.ObjectName)
		assert.Equal(t, "2~D3sLkTqgpFHrkTeRNKnmpSnCzZzY5Hn", entry.UploadID)
		assert.Equal(t, "7", entry.Part)
		assert.False(t, entry.IsMeta())
	})

	t.Run("keeps dots in the object name", func(t *testing.T) {
		entry, ok := rgw.ParseMultipartEntry("_multipart_backups/db.tar.gz.2~abc123.1")
		require.True(t, ok)
		assert.Equal(t, "backups/db.tar.gz", entry.ObjectName)
		assert.Equal(t, "2~abc123", entry.UploadID)
	})

	t.Run("rejects committed object entries", func(t *testing.T) {
		_, ok := rgw.ParseMultipartEntry("videos/clip.mp4")
		assert.False(t, ok)
	})

	t.Run("rejects entries without the generated upload ID prefix", func(t *testing.T) {
		_, ok := rgw.ParseMultipartEntry("_multipart_videos/clip.mp4.customid.1")
		assert.False(t, ok)
	})
}

func TestUploadIDFromRadosName(t *testing.T) {
	id, ok := rgw.UploadIDFromRadosName("videos/clip.mp4.2~abc123.4")
	require.True(t, ok)
	assert.Equal(t, "2~abc123", id)

	_, ok = rgw.UploadIDFromRadosName("videos/clip.mp4")
	assert.False(t, ok)

	// Meta entries are not parts.
	_, ok = rgw.UploadIDFromRadosName("videos/clip.mp4.2~abc123.meta")
	assert.False(t, ok)
}

func TestUploadSet(t *testing.T) {
	t.Run("groups entries by upload ID, skipping meta from parts", func(t *testing.T) {
		set := rgw.NewUploadSet()

		require.True(t, set.AddIndexEntry("_multipart_a.bin.2~upload1.meta"))
		require.True(t, set.AddIndexEntry("_multipart_a.bin.2~upload1.1"))
		require.True(t, set.AddIndexEntry("_multipart_a.bin.2~upload1.2"))
		require.True(t, set.AddIndexEntry("_multipart_b.bin.2~upload2.1"))
		require.False(t, set.AddIndexEntry("a.bin"))

		require.Equal(t, 2, set.Len())

		uploads := set.Uploads()
		require.Len(t, uploads, 2)

		assert.Equal(t, "2~upload1", uploads[0].UploadID)
		assert.Equal(t, "a.bin", uploads[0].ObjectName)
		assert.Equal(t, []string{"_multipart_a.bin.2~upload1.1", "_multipart_a.bin.2~upload1.2"}, uploads[0].Parts)

		assert.Equal(t, "2~upload2", uploads[1].UploadID)
		assert.Equal(t, []string{"_multipart_b.bin.2~upload2.1"}, uploads[1].Parts)
	})

	t.Run("attributes RADOS objects to known uploads only", func(t *testing.T) {
		set := rgw.NewUploadSet()
		require.True(t, set.AddIndexEntry("_multipart_a.bin.2~upload1.meta"))

		assert.True(t, set.AttributeRadosObject("marker__multipart_a.bin.2~upload1.1", "a.bin.2~upload1.1"))
		assert.False(t, set.AttributeRadosObject("marker__multipart_a.bin.2~other.1", "a.bin.2~other.1"))
		assert.False(t, set.AttributeRadosObject("marker_a.bin", "a.bin"))

		uploads := set.Uploads()
		require.Len(t, uploads, 1)
		assert.Equal(t, []string{"marker__multipart_a.bin.2~upload1.1"}, uploads[0].RadosObjects)
	})
}

func TestObjectVersionedKey(t *testing.T) {
	obj := rgw.Object{Bucket: "photos", Key: "cat.jpg"}
	assert.Equal(t, "cat.jpg", obj.VersionedKey())
	assert.Equal(t, "photos/cat.jpg", obj.String())

	obj.Instance = "vX1q2"
	assert.Equal(t, "cat.jpg:vX1q2", obj.VersionedKey())
}
