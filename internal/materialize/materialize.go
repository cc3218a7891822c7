// Package materialize turns a staged image into the published pixel layout.
//
// The layout either owns a fresh buffer (Copied) or aliases the backend's own
// sample buffer (Aliased). An aliased layout keeps the backend context alive
// through a reference-counted Handle until the last reference is closed.
package materialize

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/internal/stage"
	"github.com/samcharles93/dngstage/pkg/dng"
)

var (
	ErrPlanes   = errors.New("materialize: unsupported plane count")
	ErrType     = errors.New("materialize: unsupported pixel type")
	ErrReleased = errors.New("materialize: layout already released")
)

// Kind is the plane arrangement of a layout.
type Kind int

const (
	KindMono Kind = iota
	KindTriple
	KindQuad
)

func (k Kind) String() string {
	switch k {
	case KindMono:
		return "mono"
	case KindTriple:
		return "triple"
	case KindQuad:
		return "quad"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func kindOf(planes int) (Kind, error) {
	switch planes {
	case 1:
		return KindMono, nil
	case 3:
		return KindTriple, nil
	case 4:
		return KindQuad, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrPlanes, planes)
	}
}

// Ownership says whether Data belongs to the layout or to the backend.
type Ownership int

const (
	Copied Ownership = iota
	Aliased
)

func (o Ownership) String() string {
	if o == Aliased {
		return "aliased"
	}
	return "copied"
}

// Curve is a linearization lookup table indexed by the recorded sample value.
// A nil curve is the identity.
type Curve []uint16

// IsIdentity reports whether the curve maps every index to itself.
func (c Curve) IsIdentity() bool {
	for i, v := range c {
		if int(v) != i {
			return false
		}
	}
	return true
}

func (c Curve) lookup(v uint16) uint16 {
	if int(v) >= len(c) {
		if len(c) == 0 {
			return v
		}
		return c[len(c)-1]
	}
	return c[v]
}

// FloatToInt controls the float to 16-bit conversion. When the largest
// sample lies outside [DMin, DMax] the data is scaled so that it maps to
// DTarget; otherwise values are kept as they are.
type FloatToInt struct {
	DMin    float32
	DMax    float32
	DTarget float32
}

// DefaultFloatToInt returns the usual conversion bounds.
func DefaultFloatToInt() FloatToInt {
	return FloatToInt{DMin: 4096, DMax: 32767, DTarget: 16383}
}

type Options struct {
	// ZeroCopy lets the layout alias the backend buffer when possible.
	ZeroCopy bool
	// FloatToInt converts float data to 16-bit integers. It always yields a
	// copied layout.
	FloatToInt bool
	// FloatParams overrides the conversion bounds; the zero value means
	// DefaultFloatToInt.
	FloatParams FloatToInt
}

// Layout is the published pixel buffer.
type Layout struct {
	Kind       Kind
	Type       dng.PixelType
	Width      int
	Height     int
	Planes     int
	Pitch      int
	Ownership  Ownership
	Linearized bool
	// Max is the largest sample after float to integer conversion.
	Max  uint16
	Data []byte

	handle *Handle
}

// Uint16 views the samples of a 16-bit layout.
func (l *Layout) Uint16() []uint16 {
	if l.Type != dng.PixelShort {
		return nil
	}
	return raster.AsUint16(l.Data)
}

// Float32 views the samples of a float layout.
func (l *Layout) Float32() []float32 {
	if l.Type != dng.PixelFloat {
		return nil
	}
	return raster.AsFloat32(l.Data)
}

// Retain returns a new reference to the same buffer. Each reference must be
// closed once.
func (l *Layout) Retain() *Layout {
	out := *l
	if l.handle != nil {
		l.handle.Retain()
	}
	return &out
}

// Close drops this reference. The backend context behind an aliased layout
// is closed with the last reference.
func (l *Layout) Close() error {
	h := l.handle
	l.handle = nil
	l.Data = nil
	if h == nil {
		return nil
	}
	return h.Release()
}

// Materialize publishes img. When the result aliases img, the layout takes
// over owner and closes it with its last reference; in every other case
// owner is left to the caller.
func Materialize(img *raster.Image, st stage.Stage, curve Curve, opts Options, owner io.Closer) (*Layout, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrType)
	}
	kind, err := kindOf(img.Planes)
	if err != nil {
		return nil, err
	}
	l := &Layout{Kind: kind, Width: img.Width, Height: img.Height, Planes: img.Planes}
	identity := curve.IsIdentity()

	switch {
	case img.Type == dng.PixelFloat && opts.FloatToInt:
		p := opts.FloatParams
		if p == (FloatToInt{}) {
			p = DefaultFloatToInt()
		}
		l.Data, l.Max = floatToInt(img.Float32()[:img.Samples()], p)
		l.Type, l.Ownership = dng.PixelShort, Copied

	case img.Type == dng.PixelShort && !st.StoppedAtStage1() && !identity:
		src := img.Uint16()[:img.Samples()]
		dst := make([]uint16, len(src))
		for i, v := range src {
			dst[i] = curve.lookup(v)
		}
		l.Data = raster.BytesOf16(dst)
		l.Type, l.Ownership, l.Linearized = dng.PixelShort, Copied, true

	case img.Type == dng.PixelByte:
		src := img.Data[:img.Samples()]
		dst := make([]uint16, len(src))
		for i, v := range src {
			if identity {
				dst[i] = uint16(v)
			} else {
				dst[i] = curve.lookup(uint16(v))
			}
		}
		l.Data = raster.BytesOf16(dst)
		l.Type, l.Ownership, l.Linearized = dng.PixelShort, Copied, !identity

	case img.Type == dng.PixelShort || img.Type == dng.PixelFloat:
		l.Type = img.Type
		if opts.ZeroCopy && !st.StoppedAtStage1() && owner != nil && img.Owner == raster.OwnerBackend {
			l.Data, l.Ownership = img.Data, Aliased
			l.handle = NewHandle(owner)
		} else {
			l.Data, l.Ownership = append([]byte(nil), img.Data...), Copied
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrType, img.Type)
	}

	l.Pitch = l.Width * l.Planes * l.Type.Size()
	return l, nil
}

func floatToInt(src []float32, p FloatToInt) ([]byte, uint16) {
	var dataMax float32
	for _, v := range src {
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) && v > dataMax {
			dataMax = v
		}
	}
	mult := float32(1)
	if dataMax > 0 && (dataMax < p.DMin || dataMax > p.DMax) {
		mult = p.DTarget / dataMax
	}

	dst := make([]uint16, len(src))
	var outMax uint16
	for i, v := range src {
		f := float64(v * mult)
		var u uint16
		switch {
		case math.IsNaN(f) || f <= 0:
			u = 0
		case f >= 65535:
			u = 65535
		default:
			u = uint16(math.Round(f))
		}
		dst[i] = u
		outMax = max(outMax, u)
	}
	return raster.BytesOf16(dst), outMax
}
