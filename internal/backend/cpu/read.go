package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// ReadImage decodes the uncompressed strips or tiles of d into dst. The read
// cursor of r is left where it was.
func (n *Negative) ReadImage(r io.ReadSeeker, d *dng.Descriptor, dst *raster.Image) error {
	if n.closed {
		return ErrClosed
	}
	if d.Compression != dng.CompressionNone {
		return fmt.Errorf("%w: %d", ErrUnsupportedCompression, d.Compression)
	}
	if dst == nil || dst.Width != int(d.Width) || dst.Height != int(d.Height) ||
		dst.Planes != d.Planes() || dst.Type != d.PixelType() {
		return fmt.Errorf("%w: destination does not match %dx%d", raster.ErrBadGeometry, d.Width, d.Height)
	}
	dec, err := newRowDecoder(d, n.order)
	if err != nil {
		return err
	}

	offsets, counts, err := dng.ReadTileTable(r, n.order, d)
	if err != nil {
		return err
	}
	tw, tl := int(d.TileWidth), int(d.TileLength)
	if tw == 0 {
		tw = int(d.Width)
	}
	if tl == 0 {
		tl = int(d.Height)
	}
	across, down := d.TilesAcross(), d.TilesDown()
	if len(offsets) < across*down {
		return fmt.Errorf("%w: %d tiles for a %dx%d grid", dng.ErrCorrupt, len(offsets), across, down)
	}

	planes := d.Planes()
	rowBytes := dec.rowBytes(tw * planes)
	row := make([]sample, tw*planes)

	return dng.WithCursor(r, func() error {
		var buf []byte
		for t := 0; t < across*down; t++ {
			x0, y0 := (t%across)*tw, (t/across)*tl
			rows := min(tl, int(d.Height)-y0)
			cols := min(tw, int(d.Width)-x0)
			need := rows * rowBytes
			if counts[t] < uint64(need) {
				return fmt.Errorf("%w: tile %d holds %d bytes, need %d", dng.ErrTruncated, t, counts[t], need)
			}
			buf = grow(buf, need)
			if _, err := r.Seek(int64(offsets[t]), io.SeekStart); err != nil {
				return err
			}
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("tile %d: %w", t, err)
			}
			for y := 0; y < rows; y++ {
				dec.decode(buf[y*rowBytes:(y+1)*rowBytes], row)
				base := ((y0+y)*int(d.Width) + x0) * planes
				store(dst, base, row[:cols*planes])
			}
		}
		return nil
	})
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// sample holds one decoded value; i is used for integer data and f for float.
type sample struct {
	i uint32
	f float32
}

type rowDecoder struct {
	bits  int
	float bool
	order binary.ByteOrder
}

func newRowDecoder(d *dng.Descriptor, order binary.ByteOrder) (rowDecoder, error) {
	bps := int(d.BitsPerSample)
	if d.SampleFormat == dng.SampleFormatFloat {
		if bps != 16 && bps != 32 {
			return rowDecoder{}, fmt.Errorf("%w: %d-bit float", ErrUnsupportedDepth, bps)
		}
		return rowDecoder{bits: bps, float: true, order: order}, nil
	}
	if bps < 1 || bps > 16 {
		return rowDecoder{}, fmt.Errorf("%w: %d bits", ErrUnsupportedDepth, bps)
	}
	return rowDecoder{bits: bps, order: order}, nil
}

// rowBytes returns the byte length of a row of n samples. Rows start on a
// byte boundary.
func (rd rowDecoder) rowBytes(n int) int {
	return (n*rd.bits + 7) / 8
}

func (rd rowDecoder) decode(src []byte, out []sample) {
	switch {
	case rd.float && rd.bits == 32:
		for i := range out {
			out[i].f = math.Float32frombits(rd.order.Uint32(src[i*4:]))
		}
	case rd.float:
		for i := range out {
			out[i].f = halfToFloat(rd.order.Uint16(src[i*2:]))
		}
	case rd.bits == 8:
		for i := range out {
			out[i].i = uint32(src[i])
		}
	case rd.bits == 16:
		for i := range out {
			out[i].i = uint32(rd.order.Uint16(src[i*2:]))
		}
	default:
		// Packed samples are stored most significant bit first.
		var acc uint64
		var have int
		pos := 0
		mask := uint64(1)<<rd.bits - 1
		for i := range out {
			for have < rd.bits {
				acc = acc<<8 | uint64(src[pos])
				pos++
				have += 8
			}
			have -= rd.bits
			out[i].i = uint32(acc >> have & mask)
		}
	}
}

func store(dst *raster.Image, base int, row []sample) {
	switch dst.Type {
	case dng.PixelByte:
		out := dst.Data[base : base+len(row)]
		for i, s := range row {
			out[i] = uint8(s.i)
		}
	case dng.PixelShort:
		out := dst.Uint16()[base : base+len(row)]
		for i, s := range row {
			out[i] = uint16(s.i)
		}
	case dng.PixelFloat:
		out := dst.Float32()[base : base+len(row)]
		for i, s := range row {
			out[i] = s.f
		}
	}
}

// halfToFloat widens an IEEE 754 half precision value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
