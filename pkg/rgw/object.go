// Package rgw models RADOS Gateway object layout: how logical RGW objects,
// their versions and multipart uploads map onto RADOS objects in a data pool.
package rgw

import "fmt"

// BucketInfo identifies a bucket together with the marker prefix its RADOS
// objects carry in the data pool.
type BucketInfo struct {
	Name   string
	ID     string
	Marker string
}

// Object is a single logical RGW object version as recorded in the bucket
// index, together with the RADOS objects its manifest references.
type Object struct {
	Bucket   string
	Key      string
	Instance string // version instance; empty on unversioned buckets
	Size     uint64
	Manifest []string // RADOS object names backing this object, in manifest order
}

// VersionedKey returns the key with the version instance appended, the way
// radosgw-admin refers to a specific object version.
func (o Object) VersionedKey() string {
	if o.Instance == "" {
		return o.Key
	}
	return fmt.Sprintf("%s:%s", o.Key, o.Instance)
}

func (o Object) String() string {
	return fmt.Sprintf("%s/%s", o.Bucket, o.VersionedKey())
}
