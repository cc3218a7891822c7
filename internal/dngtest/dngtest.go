// Package dngtest builds small little-endian DNG files in memory for tests.
package dngtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// IFD describes one image directory to write.
type IFD struct {
	Width, Height uint32
	BitsPerSample uint16
	Samples       uint16
	Compression   uint16
	Photometric   uint16
	SampleFormat  uint16
	SubfileType   uint32

	// Chunks holds the strip (or tile, when TileWidth is set) payloads.
	Chunks       [][]byte
	RowsPerStrip uint32
	TileWidth    uint32
	TileLength   uint32

	CFARepeat     [2]uint16
	Linearization []uint16
	BlackLevel    []uint32
	WhiteLevel    []uint32
	Opcodes       [3][]byte

	SubIFDs []*IFD

	// Offsets is filled by Build with the file position of every chunk.
	Offsets []uint32
	// Position is filled by Build with the file position of the IFD.
	Position uint32
}

// File describes a complete container.
type File struct {
	Make       string
	DNGVersion [4]byte
	IFD0       *IFD
	Chain      []*IFD
}

// Version14 is DNG version 1.4.0.0.
var Version14 = [4]byte{1, 4, 0, 0}

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

type writer struct {
	buf []byte
}

var le = binary.LittleEndian

// Build serializes f and returns the file bytes.
func Build(f File) []byte {
	w := &writer{buf: []byte("II\x2A\x00\x00\x00\x00\x00")}

	var extra []field
	if f.Make != "" {
		extra = append(extra, field{tag: 271, typ: 2, count: uint32(len(f.Make) + 1), data: append([]byte(f.Make), 0)})
	}
	if f.DNGVersion != [4]byte{} {
		extra = append(extra, field{tag: 50706, typ: 1, count: 4, data: f.DNGVersion[:]})
	}

	off, nextPos := w.writeIFD(f.IFD0, extra)
	le.PutUint32(w.buf[4:8], off)
	for _, c := range f.Chain {
		o, np := w.writeIFD(c, nil)
		le.PutUint32(w.buf[nextPos:], o)
		nextPos = np
	}
	return w.buf
}

// Reader wraps Build output in an io.ReadSeeker.
func Reader(f File) *bytes.Reader {
	return bytes.NewReader(Build(f))
}

func (w *writer) align() {
	if len(w.buf)%2 == 1 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) blob(b []byte) uint32 {
	w.align()
	off := uint32(len(w.buf))
	w.buf = append(w.buf, b...)
	return off
}

func (w *writer) writeIFD(ifd *IFD, extra []field) (uint32, int) {
	var subOffs []uint32
	for _, s := range ifd.SubIFDs {
		o, _ := w.writeIFD(s, nil)
		subOffs = append(subOffs, o)
	}

	ifd.Offsets = ifd.Offsets[:0]
	counts := make([]uint32, 0, len(ifd.Chunks))
	for _, c := range ifd.Chunks {
		ifd.Offsets = append(ifd.Offsets, w.blob(c))
		counts = append(counts, uint32(len(c)))
	}

	samples := ifd.Samples
	if samples == 0 {
		samples = 1
	}
	bps := make([]uint16, samples)
	for i := range bps {
		bps[i] = ifd.BitsPerSample
	}

	fields := append([]field(nil), extra...)
	if ifd.SubfileType != 0 {
		fields = append(fields, longs(254, ifd.SubfileType))
	}
	fields = append(fields,
		longs(256, ifd.Width),
		longs(257, ifd.Height),
		shorts(258, bps...),
		shorts(259, nonzero(ifd.Compression, 1)),
		shorts(262, ifd.Photometric),
		shorts(277, samples),
	)
	if ifd.TileWidth != 0 {
		fields = append(fields,
			longs(322, ifd.TileWidth),
			longs(323, ifd.TileLength),
			longs(324, ifd.Offsets...),
			longs(325, counts...),
		)
	} else {
		rps := ifd.RowsPerStrip
		if rps == 0 {
			rps = ifd.Height
		}
		fields = append(fields,
			longs(273, ifd.Offsets...),
			longs(278, rps),
			longs(279, counts...),
		)
	}
	if len(subOffs) > 0 {
		fields = append(fields, longs(330, subOffs...))
	}
	if ifd.SampleFormat != 0 {
		sf := make([]uint16, samples)
		for i := range sf {
			sf[i] = ifd.SampleFormat
		}
		fields = append(fields, shorts(339, sf...))
	}
	if ifd.CFARepeat != [2]uint16{} {
		fields = append(fields, shorts(33421, ifd.CFARepeat[0], ifd.CFARepeat[1]))
	}
	if len(ifd.Linearization) > 0 {
		fields = append(fields, shorts(50712, ifd.Linearization...))
	}
	if len(ifd.BlackLevel) > 0 {
		fields = append(fields, longs(50714, ifd.BlackLevel...))
	}
	if len(ifd.WhiteLevel) > 0 {
		fields = append(fields, longs(50717, ifd.WhiteLevel...))
	}
	for i, tag := range [...]uint16{51008, 51009, 51022} {
		if ifd.Opcodes[i] != nil {
			fields = append(fields, field{tag: tag, typ: 7, count: uint32(len(ifd.Opcodes[i])), data: ifd.Opcodes[i]})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	valueOffs := make([]uint32, len(fields))
	for i, fl := range fields {
		if len(fl.data) > 4 {
			valueOffs[i] = w.blob(fl.data)
		}
	}

	w.align()
	off := uint32(len(w.buf))
	ifd.Position = off
	var tmp [12]byte
	le.PutUint16(tmp[:2], uint16(len(fields)))
	w.buf = append(w.buf, tmp[:2]...)
	for i, fl := range fields {
		clear(tmp[:])
		le.PutUint16(tmp[0:2], fl.tag)
		le.PutUint16(tmp[2:4], fl.typ)
		le.PutUint32(tmp[4:8], fl.count)
		if len(fl.data) > 4 {
			le.PutUint32(tmp[8:12], valueOffs[i])
		} else {
			copy(tmp[8:12], fl.data)
		}
		w.buf = append(w.buf, tmp[:]...)
	}
	nextPos := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	return off, nextPos
}

func nonzero(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}

func shorts(tag uint16, v ...uint16) field {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(b[i*2:], x)
	}
	return field{tag: tag, typ: 3, count: uint32(len(v)), data: b}
}

func longs(tag uint16, v ...uint32) field {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(b[i*4:], x)
	}
	return field{tag: tag, typ: 4, count: uint32(len(v)), data: b}
}

// Uint16LE encodes samples as little-endian bytes.
func Uint16LE(v []uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		le.PutUint16(b[i*2:], x)
	}
	return b
}

// Float32LE encodes samples as little-endian IEEE floats.
func Float32LE(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		le.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

// Strips splits row-major data into strips of rowsPerStrip rows.
func Strips(data []byte, rowBytes, rowsPerStrip int) [][]byte {
	step := rowBytes * rowsPerStrip
	var out [][]byte
	for off := 0; off < len(data); off += step {
		end := min(off+step, len(data))
		out = append(out, data[off:end])
	}
	return out
}

// OpcodeList encodes a big-endian opcode list with the given opcode ids,
// each carrying a zero-length parameter block.
func OpcodeList(ids ...uint32) []byte {
	b := make([]byte, 4, 4+16*len(ids))
	binary.BigEndian.PutUint32(b, uint32(len(ids)))
	var op [16]byte
	for _, id := range ids {
		binary.BigEndian.PutUint32(op[0:4], id)
		binary.BigEndian.PutUint32(op[4:8], 0x01030000)
		binary.BigEndian.PutUint32(op[8:12], 1)
		binary.BigEndian.PutUint32(op[12:16], 0)
		b = append(b, op[:]...)
	}
	return b
}
