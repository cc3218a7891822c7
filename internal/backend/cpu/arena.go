package cpu

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// arena hands out sample buffers that live until the owning negative closes.
// Buffers come from anonymous mappings so they sit outside the Go heap; when
// mmap is unavailable it falls back to heap slices.
type arena struct {
	mu      sync.Mutex
	regions []region
	closed  bool
}

type region struct {
	data    []byte
	mmapped bool
}

func (a *arena) alloc(n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	data, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err == nil {
		a.regions = append(a.regions, region{data: data, mmapped: true})
		return data, nil
	}

	data = make([]byte, n)
	a.regions = append(a.regions, region{data: data})
	return data, nil
}

// mapped reports how many live regions are backed by mmap.
func (a *arena) mapped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.regions {
		if r.mmapped {
			n++
		}
	}
	return n
}

func (a *arena) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for _, r := range a.regions {
		if r.mmapped {
			if err := unix.Munmap(r.data); err != nil {
				errs = append(errs, err)
			}
		}
	}
	a.regions = nil
	return errors.Join(errs...)
}
