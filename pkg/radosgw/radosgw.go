// Package radosgw reaches a Ceph cluster through its standard admin command
// line tools. It implements the storage backend the scrub engine consumes by
// shelling out to radosgw-admin and rados, so it runs wherever those tools
// are already configured, with no librados binding required.
package radosgw

import (
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/remora-tools/remora/pkg/scrub"
)

var log = logging.Logger("radosgw")

const (
	adminBinary = "radosgw-admin"
	radosBinary = "rados"

	// fieldSeparator splits bucket radoslist lines. The default separator
	// is ambiguous for object names containing spaces, so listings ask for
	// the unit separator control character instead.
	fieldSeparator = "\x1f"

	// defaultPageSize bounds one bucket index listing request.
	defaultPageSize = 1000
)

// Admin issues radosgw-admin commands against the gateway.
type Admin struct {
	runner   Runner
	pageSize int
}

// Client is an Admin additionally bound to one data pool, which it reaches
// with the rados tool. It implements the full storage backend of the scrub
// engine.
type Client struct {
	Admin
	pool string
}

var _ scrub.Backend = (*Client)(nil)

// Option is an option configuring an Admin or a Client.
type Option func(*Admin) error

// WithRunner substitutes the command runner. Tests use this to serve canned
// command output.
func WithRunner(r Runner) Option {
	return func(a *Admin) error {
		a.runner = r
		return nil
	}
}

// WithPageSize overrides the number of index entries requested per bucket
// listing call.
func WithPageSize(n int) Option {
	return func(a *Admin) error {
		if n < 1 {
			return fmt.Errorf("page size must be positive, got %d", n)
		}
		a.pageSize = n
		return nil
	}
}

// NewAdmin creates an Admin for gateway-side operations that involve no data
// pool.
func NewAdmin(options ...Option) (*Admin, error) {
	a := &Admin{runner: ExecRunner{}, pageSize: defaultPageSize}
	for _, opt := range options {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// New creates a Client scanning the given data pool.
func New(pool string, options ...Option) (*Client, error) {
	if pool == "" {
		return nil, errors.New("data pool name is empty")
	}
	admin, err := NewAdmin(options...)
	if err != nil {
		return nil, err
	}
	return &Client{Admin: *admin, pool: pool}, nil
}

// backendErr wraps a command failure, classifying retryability from the
// cluster's own error text.
func backendErr(op string, err error) error {
	return scrub.NewBackendError(op, transient(err), err)
}
