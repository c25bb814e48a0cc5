package queue

import (
	"context"
	"sync"

	"github.com/hupe1980/genmesh/core"
)

// Handle is the pending result of a submitted generation. It is resolved or
// rejected exactly once.
type Handle struct {
	once sync.Once
	done chan struct{}
	res  core.Result
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(res core.Result) {
	h.once.Do(func() {
		h.res = res
		close(h.done)
	})
}

func (h *Handle) reject(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done is closed when the handle settles.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the generation settles or ctx ends. Returning early on
// ctx does not stop the underlying work.
func (h *Handle) Wait(ctx context.Context) (core.Result, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return core.Result{}, ctx.Err()
	}
}
