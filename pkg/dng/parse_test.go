package dng_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/samcharles93/dngstage/internal/dngtest"
	"github.com/samcharles93/dngstage/pkg/dng"
)

func rawIFD(w, h uint32, rowsPerStrip int) *dngtest.IFD {
	data := make([]uint16, int(w*h))
	for i := range data {
		data[i] = uint16(i)
	}
	return &dngtest.IFD{
		Width:         w,
		Height:        h,
		BitsPerSample: 16,
		Photometric:   dng.PhotometricCFA,
		CFARepeat:     [2]uint16{2, 2},
		RowsPerStrip:  uint32(rowsPerStrip),
		Chunks:        dngtest.Strips(dngtest.Uint16LE(data), int(w)*2, rowsPerStrip),
	}
}

func TestParseGroups(t *testing.T) {
	t.Parallel()

	raw := rawIFD(8, 4, 4)
	thumb := &dngtest.IFD{Width: 4, Height: 2, BitsPerSample: 8, Samples: 3, Photometric: dng.PhotometricRGB, SubfileType: 1, Chunks: [][]byte{make([]byte, 24)}}
	thumb.SubIFDs = []*dngtest.IFD{raw}
	chained := &dngtest.IFD{Width: 2, Height: 2, BitsPerSample: 8, Photometric: dng.PhotometricRGB, SubfileType: 1, Chunks: [][]byte{make([]byte, 4)}}
	chained.SubIFDs = []*dngtest.IFD{{Width: 1, Height: 1, BitsPerSample: 8, Photometric: dng.PhotometricRGB, SubfileType: 1, Chunks: [][]byte{{0}}}}

	r := dngtest.Reader(dngtest.File{
		Make:       "Acme",
		DNGVersion: dngtest.Version14,
		IFD0:       thumb,
		Chain:      []*dngtest.IFD{chained},
	})

	idx, err := dng.Parse(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !idx.IsValid() {
		t.Fatalf("expected valid index")
	}
	if idx.DNGVersion != 0x01040000 {
		t.Fatalf("dng version: got %#x", idx.DNGVersion)
	}
	if idx.Make != "Acme" {
		t.Fatalf("make: got %q", idx.Make)
	}
	if len(idx.IFDs) != 2 || len(idx.Chained) != 1 || len(idx.ChainedSub) != 1 || len(idx.ChainedSub[0]) != 1 {
		t.Fatalf("group sizes: ifds=%d chained=%d chainedSub=%v", len(idx.IFDs), len(idx.Chained), idx.ChainedSub)
	}
	if idx.MainIndex != 1 {
		t.Fatalf("main index: got %d want 1", idx.MainIndex)
	}
	main := idx.Main()
	if main.Width != 8 || main.Height != 4 || main.PixelType() != dng.PixelShort {
		t.Fatalf("main descriptor mismatch: %+v", main)
	}
	if main.TileOffsetsCount != 1 || len(main.TileOffsets) != 1 || main.TileOffsets[0] != uint64(raw.Offsets[0]) {
		t.Fatalf("tile offsets: %+v want %d", main.TileOffsets, raw.Offsets[0])
	}
	if main.CFARepeat != [2]uint16{2, 2} {
		t.Fatalf("cfa repeat: %v", main.CFARepeat)
	}
	if !idx.IFDs[0].IsPreview() {
		t.Fatalf("ifd0 should be a preview")
	}

	pos, _ := r.Seek(0, io.SeekCurrent)
	if pos != 0 {
		t.Fatalf("parse moved the cursor to %d", pos)
	}
}

func TestParseLargeTileTableKeptOutOfLine(t *testing.T) {
	t.Parallel()

	raw := rawIFD(4, dng.MaxTileInfo+8, 1)
	r := dngtest.Reader(dngtest.File{DNGVersion: dngtest.Version14, IFD0: raw})

	idx, err := dng.Parse(r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d := idx.IFDs[0]
	if d.TileOffsetsCount != dng.MaxTileInfo+8 {
		t.Fatalf("count: got %d", d.TileOffsetsCount)
	}
	if d.TileOffsets != nil {
		t.Fatalf("large tables must not be kept inline")
	}

	offs, counts, err := dng.ReadTileTable(r, idx.ByteOrder, d)
	if err != nil {
		t.Fatalf("read tile table: %v", err)
	}
	if len(offs) != len(raw.Offsets) || len(counts) != len(raw.Offsets) {
		t.Fatalf("table sizes: %d %d", len(offs), len(counts))
	}
	for i := range offs {
		if offs[i] != uint64(raw.Offsets[i]) || counts[i] != 8 {
			t.Fatalf("entry %d: offset %d count %d", i, offs[i], counts[i])
		}
	}
}

func TestParseOpcodePresence(t *testing.T) {
	t.Parallel()

	raw := rawIFD(2, 2, 2)
	raw.Opcodes[1] = dngtest.OpcodeList(1, 2)
	idx, err := dng.Parse(dngtest.Reader(dngtest.File{DNGVersion: dngtest.Version14, IFD0: raw}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d := idx.IFDs[0]
	if d.Opcodes.Has(dng.OpcodeList1) || !d.Opcodes.Has(dng.OpcodeList2) || d.Opcodes.Has(dng.OpcodeList3) {
		t.Fatalf("opcode presence: %b", d.Opcodes)
	}
	rng, ok := d.OpcodeRange(dng.OpcodeList2)
	if !ok || rng.Size != uint64(len(raw.Opcodes[1])) {
		t.Fatalf("opcode range: %+v %v", rng, ok)
	}
}

func TestParseWithoutDNGVersionIsInvalid(t *testing.T) {
	t.Parallel()

	idx, err := dng.Parse(dngtest.Reader(dngtest.File{IFD0: rawIFD(2, 2, 2)}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if idx.IsValid() {
		t.Fatalf("plain TIFF must not be a valid DNG")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := dng.Parse(bytes.NewReader([]byte("not a tiff at all")))
	if !errors.Is(err, dng.ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestParseDetectsIFDLoop(t *testing.T) {
	t.Parallel()

	b := dngtest.Build(dngtest.File{DNGVersion: dngtest.Version14, IFD0: rawIFD(2, 2, 2)})
	ifd0 := binary.LittleEndian.Uint32(b[4:8])
	n := binary.LittleEndian.Uint16(b[ifd0:])
	next := int(ifd0) + 2 + int(n)*12
	binary.LittleEndian.PutUint32(b[next:], ifd0)

	_, err := dng.Parse(bytes.NewReader(b))
	if !errors.Is(err, dng.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestReadTagUint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		typ   uint16
		order binary.ByteOrder
		in    []byte
		want  uint64
	}{
		{"short le", dng.TypeShort, binary.LittleEndian, []byte{0x34, 0x12}, 0x1234},
		{"long be", dng.TypeLong, binary.BigEndian, []byte{0, 0, 0x08, 0x00}, 2048},
		{"long8 le", dng.TypeLong8, binary.LittleEndian, []byte{1, 0, 0, 0, 0, 0, 0, 0}, 1},
	}
	for _, tc := range cases {
		got, err := dng.ReadTagUint(bytes.NewReader(tc.in), tc.order, tc.typ)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}

	if _, err := dng.ReadTagUint(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}), binary.LittleEndian, dng.TypeRational); !errors.Is(err, dng.ErrTagType) {
		t.Fatalf("expected ErrTagType, got %v", err)
	}
}
