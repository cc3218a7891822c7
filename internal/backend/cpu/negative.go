package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// maxOpcodeBytes bounds the size of one embedded opcode list.
const maxOpcodeBytes = 64 << 20

// Negative is the decode context of one request. Every image it hands out
// lives in its arena and is invalid after Close.
type Negative struct {
	arena arena
	order binary.ByteOrder

	desc   *dng.Descriptor
	stage1 *raster.Image
	stage2 *raster.Image
	stage3 *raster.Image
	lists  [3][]byte

	skipped []Skipped
	closed  bool
}

// Skipped records an opcode that was parsed but not executed.
type Skipped struct {
	List dng.OpcodeList
	ID   uint32
}

func newNegative(order binary.ByteOrder) *Negative {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Negative{order: order}
}

// ReadStage1 reads the samples of d and the bytes of every opcode list it
// references.
func (n *Negative) ReadStage1(r io.ReadSeeker, d *dng.Descriptor) error {
	if n.closed {
		return ErrClosed
	}
	img, err := n.Allocate(int(d.Width), int(d.Height), d.Planes(), d.PixelType())
	if err != nil {
		return err
	}
	if err := n.ReadImage(r, d, img); err != nil {
		return err
	}
	for _, l := range []dng.OpcodeList{dng.OpcodeList1, dng.OpcodeList2, dng.OpcodeList3} {
		b, err := readOpcodeBytes(r, d, l)
		if err != nil {
			return err
		}
		n.lists[l-1] = b
	}
	n.desc = d
	n.stage1 = img
	n.stage2, n.stage3 = nil, nil
	return nil
}

func readOpcodeBytes(r io.ReadSeeker, d *dng.Descriptor, l dng.OpcodeList) ([]byte, error) {
	rng, ok := d.OpcodeRange(l)
	if !ok {
		return nil, nil
	}
	if rng.Size > maxOpcodeBytes {
		return nil, fmt.Errorf("%w: list %d is %d bytes", ErrOpcodeList, l, rng.Size)
	}
	buf := make([]byte, rng.Size)
	err := dng.WithCursor(r, func() error {
		if _, err := r.Seek(int64(rng.Offset), io.SeekStart); err != nil {
			return err
		}
		_, err := io.ReadFull(r, buf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("opcode list %d: %w", l, err)
	}
	return buf, nil
}

func (n *Negative) Stage1() *raster.Image {
	return n.stage1
}

// ApplyOpcodeList walks the given list and validates every opcode header.
// Opcodes are recorded as skipped; none of them alter img.
func (n *Negative) ApplyOpcodeList(list dng.OpcodeList, img *raster.Image) error {
	if n.closed {
		return ErrClosed
	}
	if list < dng.OpcodeList1 || list > dng.OpcodeList3 {
		return fmt.Errorf("%w: unknown list %d", ErrOpcodeList, list)
	}
	if img == nil {
		return ErrNoStage1
	}
	ids, err := parseOpcodes(n.lists[list-1])
	if err != nil {
		return fmt.Errorf("list %d: %w", list, err)
	}
	for _, id := range ids {
		n.skipped = append(n.skipped, Skipped{List: list, ID: id})
	}
	return nil
}

// SkippedOpcodes returns how many opcodes were passed over so far.
func (n *Negative) SkippedOpcodes() int {
	return len(n.skipped)
}

// BuildStage2 applies opcode list 1 to the stage-1 image and produces the
// linear stage-2 image: linearization table, black subtraction and white
// scaling. Integer data becomes 16-bit, float data is normalized to [0,1].
func (n *Negative) BuildStage2() (*raster.Image, error) {
	if n.closed {
		return nil, ErrClosed
	}
	if n.stage1 == nil {
		return nil, ErrNoStage1
	}
	if err := n.ApplyOpcodeList(dng.OpcodeList1, n.stage1); err != nil {
		return nil, err
	}

	src := n.stage1
	outType := dng.PixelShort
	if src.Type == dng.PixelFloat {
		outType = dng.PixelFloat
	}
	dst, err := n.Allocate(src.Width, src.Height, src.Planes, outType)
	if err != nil {
		return nil, err
	}

	lv := newLevels(n.desc, src.Planes)
	total := src.Samples()
	switch src.Type {
	case dng.PixelFloat:
		in, out := src.Float32(), dst.Float32()
		for i := 0; i < total; i++ {
			out[i] = float32(lv.scale(float64(in[i]), i%src.Planes))
		}
	case dng.PixelByte, dng.PixelShort:
		out := dst.Uint16()
		for i := 0; i < total; i++ {
			v := lv.linearize(sampleAt(src, i))
			s := lv.scale(float64(v), i%src.Planes)
			out[i] = uint16(math.Round(s * 65535))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDepth, src.Type)
	}
	n.stage2 = dst
	return dst, nil
}

// BuildStage3 applies opcode lists 2 and 3 to a copy of the stage-2 image.
func (n *Negative) BuildStage3() (*raster.Image, error) {
	if n.closed {
		return nil, ErrClosed
	}
	if n.stage2 == nil {
		if _, err := n.BuildStage2(); err != nil {
			return nil, err
		}
	}
	src := n.stage2
	dst, err := n.Allocate(src.Width, src.Height, src.Planes, src.Type)
	if err != nil {
		return nil, err
	}
	copy(dst.Data, src.Data)
	if err := n.ApplyOpcodeList(dng.OpcodeList2, dst); err != nil {
		return nil, err
	}
	if err := n.ApplyOpcodeList(dng.OpcodeList3, dst); err != nil {
		return nil, err
	}
	n.stage3 = dst
	return dst, nil
}

// Allocate returns an arena-backed image owned by the negative.
func (n *Negative) Allocate(w, h, planes int, t dng.PixelType) (*raster.Image, error) {
	size, err := raster.ByteSize(w, h, planes, t)
	if err != nil {
		return nil, err
	}
	buf, err := n.arena.alloc(size)
	if err != nil {
		return nil, err
	}
	return raster.Wrap(w, h, planes, t, buf, raster.OwnerBackend)
}

// Close releases every buffer the negative handed out.
func (n *Negative) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	n.stage1, n.stage2, n.stage3 = nil, nil, nil
	return n.arena.close()
}

func sampleAt(img *raster.Image, i int) uint32 {
	if img.Type == dng.PixelByte {
		return uint32(img.Data[i])
	}
	return uint32(img.Uint16()[i])
}

type levels struct {
	lin   []uint16
	black []float64
	white []float64
}

func newLevels(d *dng.Descriptor, planes int) levels {
	lv := levels{black: make([]float64, planes), white: make([]float64, planes)}
	if d == nil {
		for p := range lv.white {
			lv.white[p] = 65535
		}
		return lv
	}
	lv.lin = d.Linearization

	defWhite := 1.0
	if d.SampleFormat != dng.SampleFormatFloat {
		bps := d.BitsPerSample
		if bps == 0 || bps > 16 {
			bps = 16
		}
		defWhite = float64(uint32(1)<<bps - 1)
		if len(lv.lin) > 0 {
			defWhite = 65535
		}
	}

	for p := 0; p < planes; p++ {
		switch {
		case len(d.BlackLevel) == planes:
			lv.black[p] = d.BlackLevel[p]
		case len(d.BlackLevel) > 0:
			lv.black[p] = mean(d.BlackLevel)
		}
		switch {
		case len(d.WhiteLevel) == planes:
			lv.white[p] = float64(d.WhiteLevel[p])
		case len(d.WhiteLevel) > 0:
			lv.white[p] = float64(d.WhiteLevel[0])
		default:
			lv.white[p] = defWhite
		}
	}
	return lv
}

func (lv levels) linearize(v uint32) uint32 {
	if len(lv.lin) == 0 {
		return v
	}
	if int(v) >= len(lv.lin) {
		return uint32(lv.lin[len(lv.lin)-1])
	}
	return uint32(lv.lin[v])
}

// scale maps v from [black, white] of plane p to [0,1].
func (lv levels) scale(v float64, p int) float64 {
	b, w := lv.black[p], lv.white[p]
	if w <= b {
		return 0
	}
	s := (v - b) / (w - b)
	return min(max(s, 0), 1)
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
