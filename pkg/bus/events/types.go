// Package events defines the topics and view types published on the bus
// during a consistency scan.
package events

import (
	"fmt"

	"github.com/remora-tools/remora/pkg/scrub/model"
)

const (
	bucketTopic = "event.bucket"
	repairTopic = "event.repair"
	workerTopic = "event.worker"
)

// TopicBucket is the topic for checkpoint changes of the named bucket.
func TopicBucket(bucket string) string {
	return fmt.Sprintf("%s:%s", bucketTopic, bucket)
}

// TopicRepair is the topic for repair attempts within the named bucket.
func TopicRepair(bucket string) string {
	return fmt.Sprintf("%s:%s", repairTopic, bucket)
}

// TopicWorker is the topic for scan worker lifecycle events of a run against
// the named pool.
func TopicWorker(pool string) string {
	return fmt.Sprintf("%s:%s", workerTopic, pool)
}

// BucketView is a snapshot of a bucket checkpoint record, published whenever
// the record changes.
type BucketView struct {
	Name           string
	Status         model.BucketStatus
	ObjectsScanned uint64
	MissingObjects uint64
	MissingChunks  uint64
	OrphanChunks   uint64
}

// RepairView reports one attempted repair of a missing RADOS object.
type RepairView struct {
	Bucket    string
	Object    string
	RadosName string
	DryRun    bool
	Err       error
}

type WorkerEventType string

const (
	WorkerRunning WorkerEventType = "Running"
	WorkerStopped WorkerEventType = "Stopped"
	WorkerFailed  WorkerEventType = "Failed"
)

// WorkerEvent reports a scan worker starting on a bucket, finishing it, or
// failing it. ObjectsScanned is set on terminal events.
type WorkerEvent struct {
	Name           string
	Status         WorkerEventType
	ObjectsScanned uint64
	Error          error
}
