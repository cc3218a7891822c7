package dng

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF field types (TIFF 6.0 p. 15-16, BigTIFF for the 8-byte types).
const (
	TypeByte      uint16 = 1
	TypeASCII     uint16 = 2
	TypeShort     uint16 = 3
	TypeLong      uint16 = 4
	TypeRational  uint16 = 5
	TypeSByte     uint16 = 6
	TypeUndefined uint16 = 7
	TypeSShort    uint16 = 8
	TypeSLong     uint16 = 9
	TypeSRational uint16 = 10
	TypeFloat     uint16 = 11
	TypeDouble    uint16 = 12
	TypeIFD       uint16 = 13
	TypeLong8     uint16 = 16
	TypeIFD8      uint16 = 18
)

// TypeSize returns the byte size of one value of a TIFF field type, or 0.
func TypeSize(typ uint16) int {
	switch typ {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4
	case TypeRational, TypeSRational, TypeDouble, TypeLong8, TypeIFD8:
		return 8
	default:
		return 0
	}
}

// Tags used by the parser.
const (
	tagNewSubFileType      = 254
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagMake                = 271
	tagModel               = 272
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSubIFDs             = 330
	tagSampleFormat        = 339
	tagCFARepeatPatternDim = 33421
	tagDNGVersion          = 50706
	tagLinearizationTable  = 50712
	tagBlackLevel          = 50714
	tagWhiteLevel          = 50717
	tagOpcodeList1         = 51008
	tagOpcodeList2         = 51009
	tagOpcodeList3         = 51022
)

// ReadTagUint reads one unsigned integer value of TIFF type typ from r.
func ReadTagUint(r io.Reader, order binary.ByteOrder, typ uint16) (uint64, error) {
	n := TypeSize(typ)
	switch typ {
	case TypeByte, TypeUndefined, TypeShort, TypeLong, TypeIFD, TypeLong8, TypeIFD8:
	default:
		return 0, fmt.Errorf("%w: %d", ErrTagType, typ)
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, err
	}
	return decodeUint(buf[:n], order, typ), nil
}

func decodeUint(b []byte, order binary.ByteOrder, typ uint16) uint64 {
	switch typ {
	case TypeByte, TypeUndefined, TypeASCII, TypeSByte:
		return uint64(b[0])
	case TypeShort, TypeSShort:
		return uint64(order.Uint16(b))
	case TypeLong, TypeSLong, TypeIFD:
		return uint64(order.Uint32(b))
	case TypeLong8, TypeIFD8:
		return order.Uint64(b)
	default:
		return 0
	}
}

func decodeFloat(b []byte, order binary.ByteOrder, typ uint16) float64 {
	switch typ {
	case TypeRational:
		num, den := order.Uint32(b), order.Uint32(b[4:])
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	case TypeSRational:
		num, den := int32(order.Uint32(b)), int32(order.Uint32(b[4:]))
		if den == 0 {
			return 0
		}
		return float64(num) / float64(den)
	case TypeFloat:
		return float64(math.Float32frombits(order.Uint32(b)))
	case TypeDouble:
		return math.Float64frombits(order.Uint64(b))
	case TypeSShort:
		return float64(int16(order.Uint16(b)))
	case TypeSLong:
		return float64(int32(order.Uint32(b)))
	default:
		return float64(decodeUint(b, order, typ))
	}
}

// ReadTileTable reads the complete tile offset and byte count tables of d,
// including tables too large to be kept inline. The read cursor of r is
// restored before returning.
func ReadTileTable(r io.ReadSeeker, order binary.ByteOrder, d *Descriptor) (offsets, counts []uint64, err error) {
	if d.TileOffsetsCount <= MaxTileInfo && len(d.TileOffsets) == int(d.TileOffsetsCount) &&
		len(d.TileByteCounts) == int(d.TileOffsetsCount) {
		return d.TileOffsets, d.TileByteCounts, nil
	}
	err = WithCursor(r, func() error {
		var rerr error
		offsets, rerr = readUintTable(r, order, d.TileOffsetsOffset, d.TileOffsetsType, d.TileOffsetsCount)
		if rerr != nil {
			return fmt.Errorf("tile offsets: %w", rerr)
		}
		counts, rerr = readUintTable(r, order, d.TileByteCountsOffset, d.TileByteCountsType, d.TileOffsetsCount)
		if rerr != nil {
			return fmt.Errorf("tile byte counts: %w", rerr)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return offsets, counts, nil
}

// WithCursor runs fn and then moves the read cursor of r back to where it
// was, whether or not fn succeeded.
func WithCursor(r io.Seeker, fn func() error) (err error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	defer func() {
		if _, serr := r.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()
	return fn()
}

func readUintTable(r io.ReadSeeker, order binary.ByteOrder, at uint64, typ uint16, count uint32) ([]uint64, error) {
	size := TypeSize(typ)
	if size == 0 {
		return nil, fmt.Errorf("%w: %d", ErrTagType, typ)
	}
	if _, err := r.Seek(int64(at), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, int(count)*size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = decodeUint(raw[i*size:], order, typ)
	}
	return out, nil
}
