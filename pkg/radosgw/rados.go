package radosgw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/remora-tools/remora/pkg/rgw"
	"github.com/remora-tools/remora/pkg/scrub"
)

// ListPool streams the names of RADOS objects in the data pool that carry
// the bucket's marker prefix. A bucket without a marker would match the
// whole pool and flood the difference with false positives, so it is
// refused.
func (c *Client) ListPool(ctx context.Context, bucket rgw.BucketInfo) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if bucket.Marker == "" {
			yield("", scrub.NewBackendError("pool-list", false,
				fmt.Errorf("bucket %s has no marker; refusing to scan the whole pool", bucket.Name)))
			return
		}
		prefix := bucket.Marker + "_"
		for line, err := range c.runner.Stream(ctx, radosBinary, "-p", c.pool, "ls") {
			if err != nil {
				yield("", backendErr("pool-list", err))
				return
			}
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// zeroReader yields an endless stream of zero bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// CreatePlaceholder writes size zero bytes under the given RADOS object
// name. rados put truncates any existing object, so repeating a repair
// converges on the same state.
func (c *Client) CreatePlaceholder(ctx context.Context, name string, size uint64) error {
	zeros := io.LimitReader(zeroReader{}, int64(size))
	if _, err := c.runner.RunInput(ctx, zeros, radosBinary, "-p", c.pool, "put", name, "-"); err != nil {
		return backendErr("placeholder-put", err)
	}
	return nil
}

// StoreArtifact persists content as a RADOS object in the data pool.
func (c *Client) StoreArtifact(ctx context.Context, name string, content []byte) error {
	if _, err := c.runner.RunInput(ctx, bytes.NewReader(content), radosBinary, "-p", c.pool, "put", name, "-"); err != nil {
		return backendErr("artifact-put", err)
	}
	return nil
}
