// Package model defines the persistent state of a consistency scan: one
// record per bucket, tracking how far the scan got and what it found.
package model

import (
	"fmt"
	"time"
)

// BucketStatus represents the scan status of a single bucket.
type BucketStatus string

const (
	// BucketStatusPending indicates the bucket is known but its scan has not
	// started.
	BucketStatusPending BucketStatus = "pending"

	// BucketStatusInProgress indicates the scan of the bucket has started but
	// not reached a terminal state. A bucket found in this status when a run
	// starts was interrupted and is scanned again from the beginning.
	BucketStatusInProgress BucketStatus = "in-progress"

	// BucketStatusDone indicates the bucket was fully differenced. Done
	// buckets are skipped by later runs using the same checkpoint store.
	BucketStatusDone BucketStatus = "done"

	// BucketStatusFailed indicates the scan of the bucket failed. Failed
	// buckets are scanned again by later runs.
	BucketStatusFailed BucketStatus = "failed"
)

func validBucketStatus(status BucketStatus) bool {
	switch status {
	case BucketStatusPending, BucketStatusInProgress, BucketStatusDone, BucketStatusFailed:
		return true
	default:
		return false
	}
}

// ErrEmpty indicates a required field was empty.
type ErrEmpty struct {
	Field string
}

func (e ErrEmpty) Error() string {
	return fmt.Sprintf("%s cannot be empty", e.Field)
}

// Bucket is the checkpoint record of one bucket's scan.
type Bucket struct {
	name           string
	status         BucketStatus
	objectsScanned uint64  // logical object versions differenced
	missingObjects uint64  // object versions with at least one missing RADOS object
	missingChunks  uint64  // RADOS objects absent from the data pool
	orphanChunks   uint64  // RADOS objects present but unreferenced
	errorMessage   *string // set when the status is failed
	createdAt      time.Time
	updatedAt      time.Time
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Status returns the current scan status of the bucket.
func (b *Bucket) Status() BucketStatus {
	return b.status
}

// ObjectsScanned returns the number of logical object versions differenced.
func (b *Bucket) ObjectsScanned() uint64 {
	return b.objectsScanned
}

// MissingObjects returns the number of object versions found incomplete.
func (b *Bucket) MissingObjects() uint64 {
	return b.missingObjects
}

// MissingChunks returns the number of RADOS objects found absent.
func (b *Bucket) MissingChunks() uint64 {
	return b.missingChunks
}

// OrphanChunks returns the number of unreferenced RADOS objects observed.
func (b *Bucket) OrphanChunks() uint64 {
	return b.orphanChunks
}

// CreatedAt returns the time the record was created.
func (b *Bucket) CreatedAt() time.Time {
	return b.createdAt
}

// UpdatedAt returns the time the record last changed.
func (b *Bucket) UpdatedAt() time.Time {
	return b.updatedAt
}

// Error returns the failure recorded against the bucket, if any.
func (b *Bucket) Error() error {
	if b.errorMessage == nil {
		return nil
	}
	return fmt.Errorf("bucket %s: %s", b.name, *b.errorMessage)
}

// Start marks the bucket as being scanned. Starting is valid from every
// status except done: pending buckets start fresh, failed and interrupted
// buckets are scanned again.
func (b *Bucket) Start() error {
	if b.status == BucketStatusDone {
		return fmt.Errorf("cannot start bucket %s in state %s", b.name, b.status)
	}
	b.status = BucketStatusInProgress
	b.errorMessage = nil
	b.objectsScanned = 0
	b.missingObjects = 0
	b.missingChunks = 0
	b.orphanChunks = 0
	b.updatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// RecordResults stores the outcome counts of a completed difference pass.
func (b *Bucket) RecordResults(objectsScanned, missingObjects, missingChunks, orphanChunks uint64) error {
	if b.status != BucketStatusInProgress {
		return fmt.Errorf("cannot record results for bucket %s in state %s", b.name, b.status)
	}
	b.objectsScanned = objectsScanned
	b.missingObjects = missingObjects
	b.missingChunks = missingChunks
	b.orphanChunks = orphanChunks
	b.updatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// Complete marks the bucket as fully differenced.
func (b *Bucket) Complete() error {
	if b.status != BucketStatusInProgress {
		return fmt.Errorf("cannot complete bucket %s in state %s", b.name, b.status)
	}
	b.status = BucketStatusDone
	b.errorMessage = nil
	b.updatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// Fail marks the bucket's scan as failed with the given message.
func (b *Bucket) Fail(errorMessage string) error {
	if b.status == BucketStatusDone {
		return fmt.Errorf("cannot fail bucket %s in state %s", b.name, b.status)
	}
	b.status = BucketStatusFailed
	b.errorMessage = &errorMessage
	b.updatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

func validateBucket(bucket *Bucket) error {
	if bucket.name == "" {
		return ErrEmpty{Field: "bucket name"}
	}
	if !validBucketStatus(bucket.status) {
		return fmt.Errorf("invalid bucket status: %s", bucket.status)
	}
	if bucket.status == BucketStatusFailed && bucket.errorMessage == nil {
		return fmt.Errorf("failed bucket %s has no error message", bucket.name)
	}
	if bucket.status != BucketStatusFailed && bucket.errorMessage != nil {
		return fmt.Errorf("bucket %s has an error message but status %s", bucket.name, bucket.status)
	}
	if bucket.createdAt.IsZero() {
		return ErrEmpty{Field: "created at"}
	}
	if bucket.updatedAt.IsZero() {
		return ErrEmpty{Field: "updated at"}
	}
	return nil
}

// NewBucket creates a new pending checkpoint record for the named bucket.
func NewBucket(name string) (*Bucket, error) {
	bucket := &Bucket{
		name:      name,
		status:    BucketStatusPending,
		createdAt: time.Now().UTC().Truncate(time.Second),
		updatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := validateBucket(bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

// BucketWriter is a function type that defines the signature for writing a
// bucket record to a database row.
type BucketWriter func(name string, status BucketStatus, objectsScanned, missingObjects, missingChunks, orphanChunks uint64, errorMessage *string, createdAt, updatedAt time.Time) error

// WriteBucketToDatabase writes a bucket record using the provided writer function.
func WriteBucketToDatabase(writer BucketWriter, bucket *Bucket) error {
	return writer(bucket.name, bucket.status, bucket.objectsScanned, bucket.missingObjects, bucket.missingChunks, bucket.orphanChunks, bucket.errorMessage, bucket.createdAt, bucket.updatedAt)
}

// BucketScanner is a function type that defines the signature for scanning a
// bucket record from a database row.
type BucketScanner func(name *string, status *BucketStatus, objectsScanned, missingObjects, missingChunks, orphanChunks *uint64, errorMessage **string, createdAt, updatedAt *time.Time) error

// ReadBucketFromDatabase reads a bucket record using the provided scanner function.
func ReadBucketFromDatabase(scanner BucketScanner) (*Bucket, error) {
	var bucket Bucket

	if err := scanner(&bucket.name, &bucket.status, &bucket.objectsScanned, &bucket.missingObjects, &bucket.missingChunks, &bucket.orphanChunks, &bucket.errorMessage, &bucket.createdAt, &bucket.updatedAt); err != nil {
		return nil, err
	}

	if err := validateBucket(&bucket); err != nil {
		return nil, err
	}

	return &bucket, nil
}
