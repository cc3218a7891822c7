package cpu

import (
	"errors"
	"testing"

	"github.com/samcharles93/dngstage/internal/dngtest"
	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/pkg/dng"
)

func openMain(t *testing.T, f dngtest.File) (*dng.Index, *Negative, *dng.Descriptor, func() *raster.Image) {
	t.Helper()
	r := dngtest.Reader(f)
	idx, neg, err := New().Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Cleanup(func() { _ = neg.Close() })
	d := idx.Main()
	if d == nil {
		t.Fatalf("no main image")
	}
	read := func() *raster.Image {
		if err := neg.ReadStage1(r, d); err != nil {
			t.Fatalf("ReadStage1: %v", err)
		}
		return neg.Stage1()
	}
	return idx, neg, d, read
}

func TestReadStage1Uint16Strips(t *testing.T) {
	t.Parallel()
	samples := []uint16{1, 2, 3, 4, 5, 6, 7, 8}
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 4, Height: 2, BitsPerSample: 16, Photometric: dng.PhotometricCFA,
		RowsPerStrip: 1, Chunks: dngtest.Strips(dngtest.Uint16LE(samples), 8, 1),
	}}
	_, _, _, read := openMain(t, f)
	img := read()
	if img.Owner != raster.OwnerBackend {
		t.Fatalf("owner = %s, want backend", img.Owner)
	}
	got := img.Uint16()
	for i, want := range samples {
		if got[i] != want {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want)
		}
	}
}

func TestReadStage1PackedTwelveBit(t *testing.T) {
	t.Parallel()
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 4, Height: 1, BitsPerSample: 12, Photometric: dng.PhotometricCFA,
		Chunks: [][]byte{{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}},
	}}
	_, _, _, read := openMain(t, f)
	got := read().Uint16()
	want := []uint16{0x123, 0x456, 0x789, 0xABC}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestReadStage1Tiles(t *testing.T) {
	t.Parallel()
	// 3x2 image in 2x2 tiles; the right tile is padded by one column.
	left := []byte{1, 2, 4, 5}
	right := []byte{3, 0, 6, 0}
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 3, Height: 2, BitsPerSample: 8, Photometric: dng.PhotometricCFA,
		TileWidth: 2, TileLength: 2, Chunks: [][]byte{left, right},
	}}
	_, _, _, read := openMain(t, f)
	got := read().Uint8()
	want := []byte{1, 2, 3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d (%v)", i, got[i], want[i], got)
		}
	}
}

func TestReadStage1Float(t *testing.T) {
	t.Parallel()
	vals := []float32{0.25, 0.5, 1, 2}
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 2, Height: 2, BitsPerSample: 32, SampleFormat: dng.SampleFormatFloat,
		Photometric: dng.PhotometricCFA, Chunks: [][]byte{dngtest.Float32LE(vals)},
	}}
	_, _, _, read := openMain(t, f)
	got := read().Float32()
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], vals[i])
		}
	}
}

func TestReadImageRejectsCompressed(t *testing.T) {
	t.Parallel()
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 2, Height: 1, BitsPerSample: 16, Compression: dng.CompressionDeflate,
		Photometric: dng.PhotometricCFA, Chunks: [][]byte{{0, 0, 0, 0}},
	}}
	r := dngtest.Reader(f)
	idx, neg, err := New().Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer neg.Close()
	if err := neg.ReadStage1(r, idx.Main()); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("ReadStage1 err = %v, want ErrUnsupportedCompression", err)
	}
}

func TestBuildStage2ScalesToSixteenBits(t *testing.T) {
	t.Parallel()
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 4, Height: 1, BitsPerSample: 16, Photometric: dng.PhotometricCFA,
		BlackLevel: []uint32{100}, WhiteLevel: []uint32{1100},
		Chunks: [][]byte{dngtest.Uint16LE([]uint16{50, 100, 600, 1100})},
	}}
	_, neg, _, read := openMain(t, f)
	read()
	img, err := neg.BuildStage2()
	if err != nil {
		t.Fatalf("BuildStage2: %v", err)
	}
	if img.Type != dng.PixelShort {
		t.Fatalf("type = %s, want uint16", img.Type)
	}
	want := []uint16{0, 0, 32768, 65535}
	got := img.Uint16()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBuildStage2AppliesLinearization(t *testing.T) {
	t.Parallel()
	f := dngtest.File{DNGVersion: dngtest.Version14, IFD0: &dngtest.IFD{
		Width: 2, Height: 1, BitsPerSample: 8, Photometric: dng.PhotometricCFA,
		Linearization: []uint16{0, 65535},
		Chunks:        [][]byte{{0, 5}},
	}}
	_, neg, _, read := openMain(t, f)
	read()
	img, err := neg.BuildStage2()
	if err != nil {
		t.Fatalf("BuildStage2: %v", err)
	}
	got := img.Uint16()
	if got[0] != 0 || got[1] != 65535 {
		t.Fatalf("samples = %v, want [0 65535]", got)
	}
}

func TestBuildStage3SkipsOpcodes(t *testing.T) {
	t.Parallel()
	ifd := &dngtest.IFD{
		Width: 2, Height: 1, BitsPerSample: 16, Photometric: dng.PhotometricCFA,
		Chunks: [][]byte{dngtest.Uint16LE([]uint16{10, 20})},
	}
	ifd.Opcodes[0] = dngtest.OpcodeList(4)
	ifd.Opcodes[1] = dngtest.OpcodeList(9, 10)
	ifd.Opcodes[2] = dngtest.OpcodeList(1)
	_, neg, _, read := openMain(t, dngtest.File{DNGVersion: dngtest.Version14, IFD0: ifd})
	read()
	s2, err := neg.BuildStage2()
	if err != nil {
		t.Fatalf("BuildStage2: %v", err)
	}
	s3, err := neg.BuildStage3()
	if err != nil {
		t.Fatalf("BuildStage3: %v", err)
	}
	if &s3.Data[0] == &s2.Data[0] {
		t.Fatalf("stage 3 shares the stage 2 buffer")
	}
	if s3.Uint16()[1] != s2.Uint16()[1] {
		t.Fatalf("stage 3 changed samples without opcode support")
	}
	if got := neg.SkippedOpcodes(); got != 4 {
		t.Fatalf("SkippedOpcodes = %d, want 4", got)
	}
	skipped := neg.skipped
	want := []Skipped{{dng.OpcodeList1, 4}, {dng.OpcodeList2, 9}, {dng.OpcodeList2, 10}, {dng.OpcodeList3, 1}}
	if len(skipped) != len(want) {
		t.Fatalf("skipped = %v, want %v", skipped, want)
	}
	for i := range want {
		if skipped[i] != want[i] {
			t.Fatalf("skipped[%d] = %v, want %v", i, skipped[i], want[i])
		}
	}
}

func TestBuildStage2WithoutStage1(t *testing.T) {
	t.Parallel()
	neg := newNegative(nil)
	if _, err := neg.BuildStage2(); !errors.Is(err, ErrNoStage1) {
		t.Fatalf("err = %v, want ErrNoStage1", err)
	}
}

func TestCloseInvalidatesNegative(t *testing.T) {
	t.Parallel()
	neg := newNegative(nil)
	img, err := neg.Allocate(4, 4, 1, dng.PixelShort)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(img.Data) != 32 {
		t.Fatalf("len = %d, want 32", len(img.Data))
	}
	if err := neg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := neg.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := neg.Allocate(1, 1, 1, dng.PixelByte); !errors.Is(err, ErrClosed) {
		t.Fatalf("Allocate after Close err = %v, want ErrClosed", err)
	}
}

func TestParseOpcodes(t *testing.T) {
	t.Parallel()
	good := dngtest.OpcodeList(1, 2, 3)
	ids, err := parseOpcodes(good)
	if err != nil {
		t.Fatalf("parseOpcodes: %v", err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}

	bad := map[string][]byte{
		"short header":     {0, 0},
		"count too large":  {0, 0, 0, 9, 0, 0, 0, 1},
		"truncated params": append(dngtest.OpcodeList(1)[:16], 0, 0, 0, 8),
	}
	for name, b := range bad {
		if _, err := parseOpcodes(b); !errors.Is(err, ErrOpcodeList) {
			t.Fatalf("%s: err = %v, want ErrOpcodeList", name, err)
		}
	}
}

func TestHalfToFloat(t *testing.T) {
	t.Parallel()
	cases := map[uint16]float32{0x0000: 0, 0x3C00: 1, 0xC000: -2, 0x3800: 0.5}
	for h, want := range cases {
		if got := halfToFloat(h); got != want {
			t.Fatalf("halfToFloat(%#x) = %v, want %v", h, got, want)
		}
	}
}
