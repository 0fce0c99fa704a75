package step

import (
	"context"
	"sync"
)

// Handle is the completion of one step run.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

var completed = func() *Handle {
	h := newHandle()
	h.complete(nil)
	return h
}()

// Completed returns an already finished handle.
func Completed() *Handle { return completed }

func (h *Handle) complete(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finished or ctx is done, and returns the run's
// error or ctx.Err().
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run's error once Done is closed, nil before.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
