package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remora-tools/remora/pkg/scrub/model"
)

func TestNewBucket(t *testing.T) {
	bucket, err := model.NewBucket("photos")
	require.NoError(t, err)

	assert.Equal(t, "photos", bucket.Name())
	assert.Equal(t, model.BucketStatusPending, bucket.Status())
	assert.NoError(t, bucket.Error())
	assert.False(t, bucket.CreatedAt().IsZero())

	_, err = model.NewBucket("")
	require.ErrorContains(t, err, "bucket name cannot be empty")
}

func TestBucketTransitions(t *testing.T) {
	t.Run("pending starts, completes", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)

		require.NoError(t, bucket.Start())
		assert.Equal(t, model.BucketStatusInProgress, bucket.Status())

		require.NoError(t, bucket.RecordResults(100, 2, 5, 1))
		require.NoError(t, bucket.Complete())
		assert.Equal(t, model.BucketStatusDone, bucket.Status())
		assert.EqualValues(t, 100, bucket.ObjectsScanned())
		assert.EqualValues(t, 2, bucket.MissingObjects())
		assert.EqualValues(t, 5, bucket.MissingChunks())
		assert.EqualValues(t, 1, bucket.OrphanChunks())
	})

	t.Run("done is terminal", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)
		require.NoError(t, bucket.Start())
		require.NoError(t, bucket.Complete())

		require.ErrorContains(t, bucket.Start(), "cannot start bucket photos in state done")
		require.ErrorContains(t, bucket.Fail("nope"), "cannot fail bucket photos in state done")
	})

	t.Run("failed buckets restart", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)
		require.NoError(t, bucket.Start())
		require.NoError(t, bucket.Fail("listing blew up"))

		assert.Equal(t, model.BucketStatusFailed, bucket.Status())
		require.ErrorContains(t, bucket.Error(), "listing blew up")

		require.NoError(t, bucket.Start())
		assert.Equal(t, model.BucketStatusInProgress, bucket.Status())
		assert.NoError(t, bucket.Error())
	})

	t.Run("restarting clears previous counts", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)
		require.NoError(t, bucket.Start())
		require.NoError(t, bucket.RecordResults(10, 1, 2, 0))
		require.NoError(t, bucket.Fail("interrupted"))

		require.NoError(t, bucket.Start())
		assert.EqualValues(t, 0, bucket.ObjectsScanned())
		assert.EqualValues(t, 0, bucket.MissingChunks())
	})

	t.Run("interrupted buckets restart", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)
		require.NoError(t, bucket.Start())

		// A crash leaves the record in-progress; a new run starts it again.
		require.NoError(t, bucket.Start())
		assert.Equal(t, model.BucketStatusInProgress, bucket.Status())
	})

	t.Run("results require an in-progress scan", func(t *testing.T) {
		bucket, err := model.NewBucket("photos")
		require.NoError(t, err)
		require.ErrorContains(t, bucket.RecordResults(1, 0, 0, 0), "cannot record results for bucket photos in state pending")
	})
}

func TestBucketDatabaseRoundTrip(t *testing.T) {
	bucket, err := model.NewBucket("photos")
	require.NoError(t, err)
	require.NoError(t, bucket.Start())
	require.NoError(t, bucket.RecordResults(100, 2, 5, 1))
	require.NoError(t, bucket.Fail("radoslist timed out"))

	var (
		rowName                   string
		rowStatus                 model.BucketStatus
		rowScanned, rowMissingObj uint64
		rowMissing, rowOrphans    uint64
		rowError                  *string
		rowCreated, rowUpdated    time.Time
	)

	err = model.WriteBucketToDatabase(func(name string, status model.BucketStatus, objectsScanned, missingObjects, missingChunks, orphanChunks uint64, errorMessage *string, createdAt, updatedAt time.Time) error {
		rowName = name
		rowStatus = status
		rowScanned = objectsScanned
		rowMissingObj = missingObjects
		rowMissing = missingChunks
		rowOrphans = orphanChunks
		rowError = errorMessage
		rowCreated = createdAt
		rowUpdated = updatedAt
		return nil
	}, bucket)
	require.NoError(t, err)

	readBucket, err := model.ReadBucketFromDatabase(func(name *string, status *model.BucketStatus, objectsScanned, missingObjects, missingChunks, orphanChunks *uint64, errorMessage **string, createdAt, updatedAt *time.Time) error {
		*name = rowName
		*status = rowStatus
		*objectsScanned = rowScanned
		*missingObjects = rowMissingObj
		*missingChunks = rowMissing
		*orphanChunks = rowOrphans
		*errorMessage = rowError
		*createdAt = rowCreated
		*updatedAt = rowUpdated
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, bucket, readBucket)
}

func TestReadBucketFromDatabaseValidates(t *testing.T) {
	_, err := model.ReadBucketFromDatabase(func(name *string, status *model.BucketStatus, objectsScanned, missingObjects, missingChunks, orphanChunks *uint64, errorMessage **string, createdAt, updatedAt *time.Time) error {
		*name = "photos"
		*status = "exploded"
		*createdAt = time.Now()
		*updatedAt = time.Now()
		return nil
	})
	require.ErrorContains(t, err, "invalid bucket status: exploded")
}
