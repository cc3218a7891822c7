package locate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/samcharles93/dngstage/internal/dngtest"
	"github.com/samcharles93/dngstage/pkg/dng"
)

func desc(offset uint64, w, h uint32) *dng.Descriptor {
	return &dng.Descriptor{Width: w, Height: h, TileOffsetsOffset: offset, TileOffsetsCount: 1, TileOffsets: []uint64{offset + 64}}
}

func TestLocatePrefersGeometryMatchInGroupOrder(t *testing.T) {
	t.Parallel()
	idx := &dng.Index{
		IFDs:      []*dng.Descriptor{desc(8, 256, 171), desc(2048, 6000, 4000)},
		Chained:   []*dng.Descriptor{desc(2048, 100, 100)},
		ByteOrder: binary.LittleEndian,
	}

	m, err := Locate(idx, nil, 2048, 6000, 4000)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if m.Group != dng.GroupPrimary || m.Index != 1 || !m.Primary() {
		t.Fatalf("match = %s[%d], want primary[1]", m.Group, m.Index)
	}

	m, err = Locate(idx, nil, 2048, 100, 100)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if m.Group != dng.GroupChained || m.Index != -1 || m.Primary() {
		t.Fatalf("match = %s[%d], want chained[-1]", m.Group, m.Index)
	}
}

func TestLocateSearchesNestedGroups(t *testing.T) {
	t.Parallel()
	want := desc(4096, 640, 480)
	idx := &dng.Index{
		IFDs:       []*dng.Descriptor{desc(4096, 6000, 4000)},
		Chained:    []*dng.Descriptor{desc(4096, 320, 240)},
		ChainedSub: [][]*dng.Descriptor{{desc(10, 1, 1)}, {want}},
	}
	m, err := Locate(idx, nil, 4096, 640, 480)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if m.Descriptor != want || m.Group != dng.GroupChainedSub {
		t.Fatalf("match = %+v", m)
	}
}

func TestLocateMatchesSingleTileOffset(t *testing.T) {
	t.Parallel()
	d := desc(300, 16, 16)
	idx := &dng.Index{IFDs: []*dng.Descriptor{d}}
	m, err := Locate(idx, nil, 364, 16, 16)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if m.Descriptor != d {
		t.Fatalf("wrong descriptor")
	}
}

func TestLocateNotFound(t *testing.T) {
	t.Parallel()
	idx := &dng.Index{IFDs: []*dng.Descriptor{desc(2048, 100, 100)}}
	if _, err := Locate(idx, nil, 2048, 200, 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := Locate(nil, nil, 0, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nil index err = %v, want ErrNotFound", err)
	}
}

func TestLocateOutOfLineTableRestoresCursor(t *testing.T) {
	t.Parallel()
	const rows = 40
	data := make([]byte, 2*rows)
	ifd := &dngtest.IFD{
		Width: 2, Height: rows, BitsPerSample: 8, Photometric: dng.PhotometricCFA,
		RowsPerStrip: 1, Chunks: dngtest.Strips(data, 2, 1),
	}
	r := dngtest.Reader(dngtest.File{DNGVersion: dngtest.Version14, IFD0: ifd})
	idx, err := dng.Parse(r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if idx.IFDs[0].TileOffsetsCount <= dng.MaxTileInfo {
		t.Fatalf("fixture has %d strips, want more than %d", idx.IFDs[0].TileOffsetsCount, dng.MaxTileInfo)
	}

	for _, tc := range []struct {
		name   string
		offset uint64
		found  bool
	}{
		{"match", uint64(ifd.Offsets[0]), true},
		{"miss", uint64(ifd.Offsets[1]), false},
	} {
		if _, err := r.Seek(5, io.SeekStart); err != nil {
			t.Fatalf("seek: %v", err)
		}
		_, err := Locate(idx, r, tc.offset, 2, rows)
		if tc.found && err != nil {
			t.Fatalf("%s: Locate: %v", tc.name, err)
		}
		if !tc.found && !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: err = %v, want ErrNotFound", tc.name, err)
		}
		pos, _ := r.Seek(0, io.SeekCurrent)
		if pos != 5 {
			t.Fatalf("%s: cursor = %d, want 5", tc.name, pos)
		}
	}
}

func TestLocateOutOfLineReadFailure(t *testing.T) {
	t.Parallel()
	d := &dng.Descriptor{
		Width: 2, Height: 2, TileOffsetsOffset: 1 << 20,
		TileOffsetsType: dng.TypeLong, TileOffsetsCount: dng.MaxTileInfo + 1,
	}
	idx := &dng.Index{IFDs: []*dng.Descriptor{d}, ByteOrder: binary.LittleEndian}
	r := bytes.NewReader(make([]byte, 64))
	if _, err := r.Seek(7, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, err := Locate(idx, r, 1, 2, 2)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want read failure", err)
	}
	if pos, _ := r.Seek(0, io.SeekCurrent); pos != 7 {
		t.Fatalf("cursor = %d, want 7", pos)
	}
}
