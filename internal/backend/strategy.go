package backend

import (
	"fmt"
	"io"
	"sync"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// Registry maps compression codes to alternate codecs. A code registered here
// is never decoded by the host.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint16]Codec
}

func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[uint16]Codec)}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codecs == nil {
		r.codecs = make(map[uint16]Codec)
	}
	r.codecs[c.Compression()] = c
}

func (r *Registry) Lookup(code uint16) (Codec, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[code]
	return c, ok
}

func (r *Registry) Has(code uint16) bool {
	_, ok := r.Lookup(code)
	return ok
}

// Strategy decodes one descriptor into a fresh image.
type Strategy interface {
	Name() string
	Decode(d *dng.Descriptor, r io.ReadSeeker) (*raster.Image, error)
}

// SelectStrategy picks the decoder for a compression code: the registered
// codec when there is one, otherwise the host's own reader. Both allocate the
// destination through neg so the buffer is backend-owned.
func SelectStrategy(code uint16, neg Negative, reg *Registry) Strategy {
	if c, ok := reg.Lookup(code); ok {
		return codecStrategy{neg: neg, codec: c}
	}
	return hostStrategy{neg: neg}
}

type hostStrategy struct {
	neg Negative
}

func (hostStrategy) Name() string { return "host" }

func (s hostStrategy) Decode(d *dng.Descriptor, r io.ReadSeeker) (*raster.Image, error) {
	dst, err := allocateFor(s.neg, d)
	if err != nil {
		return nil, err
	}
	if err := s.neg.ReadImage(r, d, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

type codecStrategy struct {
	neg   Negative
	codec Codec
}

func (s codecStrategy) Name() string { return fmt.Sprintf("codec-%d", s.codec.Compression()) }

func (s codecStrategy) Decode(d *dng.Descriptor, r io.ReadSeeker) (*raster.Image, error) {
	dst, err := allocateFor(s.neg, d)
	if err != nil {
		return nil, err
	}
	if err := s.codec.Read(d, r, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func allocateFor(neg Negative, d *dng.Descriptor) (*raster.Image, error) {
	img, err := neg.Allocate(int(d.Width), int(d.Height), d.Planes(), d.PixelType())
	if err != nil {
		return nil, fmt.Errorf("allocate %dx%d: %w", d.Width, d.Height, err)
	}
	return img, nil
}
