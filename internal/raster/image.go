// Package raster is the in-memory staged image shared by backends and the pipeline.
package raster

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/samcharles93/dngstage/pkg/dng"
)

// Owner records who owns an image's backing buffer.
type Owner int

const (
	// OwnerPipeline buffers are plain Go memory owned by the pipeline.
	OwnerPipeline Owner = iota
	// OwnerBackend buffers belong to a backend context and die with it.
	OwnerBackend
)

func (o Owner) String() string {
	if o == OwnerBackend {
		return "backend"
	}
	return "pipeline"
}

var ErrBadGeometry = errors.New("raster: invalid image geometry")

// Image is an interleaved sample buffer of Width*Height*Planes samples.
// Data is in host byte order.
type Image struct {
	Width  int
	Height int
	Planes int
	Type   dng.PixelType
	Data   []byte
	Owner  Owner
}

// Samples returns Width*Height*Planes.
func (m *Image) Samples() int {
	return m.Width * m.Height * m.Planes
}

// ByteSize returns the number of bytes the samples occupy.
func ByteSize(w, h, planes int, t dng.PixelType) (int, error) {
	if w <= 0 || h <= 0 || planes <= 0 || t.Size() == 0 {
		return 0, fmt.Errorf("%w: %dx%dx%d %s", ErrBadGeometry, w, h, planes, t)
	}
	maxInt := int(^uint(0) >> 1)
	n := w
	for _, d := range []int{h, planes, t.Size()} {
		if n > maxInt/d {
			return 0, fmt.Errorf("%w: image too large", ErrBadGeometry)
		}
		n *= d
	}
	return n, nil
}

// New allocates a pipeline-owned image.
func New(w, h, planes int, t dng.PixelType) (*Image, error) {
	n, err := ByteSize(w, h, planes, t)
	if err != nil {
		return nil, err
	}
	return &Image{Width: w, Height: h, Planes: planes, Type: t, Data: make([]byte, n)}, nil
}

// Wrap builds an image over an existing buffer.
func Wrap(w, h, planes int, t dng.PixelType, data []byte, owner Owner) (*Image, error) {
	n, err := ByteSize(w, h, planes, t)
	if err != nil {
		return nil, err
	}
	if len(data) < n {
		return nil, fmt.Errorf("%w: buffer %d bytes, need %d", ErrBadGeometry, len(data), n)
	}
	return &Image{Width: w, Height: h, Planes: planes, Type: t, Data: data[:n], Owner: owner}, nil
}

// Uint8 views the buffer as bytes.
func (m *Image) Uint8() []uint8 {
	if m.Type != dng.PixelByte {
		return nil
	}
	return m.Data
}

// Uint16 views the buffer as 16-bit samples without copying.
func (m *Image) Uint16() []uint16 {
	if m.Type != dng.PixelShort {
		return nil
	}
	return AsUint16(m.Data)
}

// Float32 views the buffer as float samples without copying.
func (m *Image) Float32() []float32 {
	if m.Type != dng.PixelFloat {
		return nil
	}
	return AsFloat32(m.Data)
}

// Clone returns a pipeline-owned deep copy.
func (m *Image) Clone() *Image {
	out := *m
	out.Data = append([]byte(nil), m.Data...)
	out.Owner = OwnerPipeline
	return &out
}

// AsUint16 reinterprets b as native-endian 16-bit samples.
func AsUint16(b []byte) []uint16 {
	if len(b) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/2)
}

// AsFloat32 reinterprets b as native-endian float samples.
func AsFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}

// BytesOf16 reinterprets 16-bit samples as bytes.
func BytesOf16(v []uint16) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*2)
}
