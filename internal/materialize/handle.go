package materialize

import (
	"io"
	"sync"
	"sync/atomic"
)

// Handle owns a backend context shared by aliased layouts. It starts with
// one reference; the context is closed exactly once, when the count drops to
// zero.
type Handle struct {
	refs   atomic.Int64
	closer io.Closer
	once   sync.Once
	err    error
}

func NewHandle(c io.Closer) *Handle {
	h := &Handle{closer: c}
	h.refs.Store(1)
	return h
}

func (h *Handle) Retain() {
	h.refs.Add(1)
}

// Release drops one reference and returns the close error of the last one.
func (h *Handle) Release() error {
	n := h.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		return ErrReleased
	}
	h.once.Do(func() {
		if h.closer != nil {
			h.err = h.closer.Close()
		}
	})
	return h.err
}

// Refs returns the live reference count.
func (h *Handle) Refs() int64 {
	return h.refs.Load()
}
