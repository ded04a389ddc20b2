// Package workgroup provides the worker group scan workers run under: an
// [errgroup.Group] that additionally captures panics from its goroutines and
// reports them as errors with the panicking goroutine's stack trace. A plain
// [errgroup.Group] reports the stack of the Wait call, which points at the
// scheduler rather than at the scan that blew up.
package workgroup

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Group wraps [errgroup.Group] with panic capture. Use it exactly like the
// original; a panic in a goroutine surfaces from Wait as a [PanicError].
type Group struct {
	*errgroup.Group
}

func WithContext(ctx context.Context) (*Group, context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	return &Group{Group: group}, ctx
}

// PanicError is the error Wait returns when a goroutine panicked.
type PanicError struct {
	recovered any
	stack     string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.recovered, e.stack)
}

func (e PanicError) Unwrap() error {
	wrappedError, ok := e.recovered.(error)
	if !ok {
		return nil
	}
	return wrappedError
}

// Recovered returns the value the goroutine panicked with.
func (e PanicError) Recovered() any {
	return e.recovered
}

// Stack returns the stack trace captured at the panic site.
func (e PanicError) Stack() string {
	return e.stack
}

func (g *Group) Go(f func() error) {
	g.Group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = PanicError{recovered: r, stack: string(debug.Stack())}
			}
		}()
		return f()
	})
}
