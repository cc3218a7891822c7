// Package locate finds the sub-image of a DNG container that a decode
// request refers to.
package locate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/samcharles93/dngstage/pkg/dng"
)

var ErrNotFound = errors.New("locate: no sub-image matches the request")

// Match is a located descriptor and where it was found.
type Match struct {
	Descriptor *dng.Descriptor
	Group      dng.Group
	// Index is the position inside the primary group, or -1 when the
	// descriptor came from a chained group.
	Index int
}

// Primary reports whether the match came from IFD0 or its SubIFDs.
func (m Match) Primary() bool {
	return m.Index >= 0
}

// Locate searches the groups of idx in priority order for the descriptor
// whose data starts at offset and whose geometry is width x height. A
// descriptor that matches by offset but not by geometry is skipped.
//
// r is only read when a descriptor's tile table is too large to be kept
// inline; its cursor is restored before Locate returns.
func Locate(idx *dng.Index, r io.ReadSeeker, offset uint64, width, height uint32) (Match, error) {
	if idx == nil {
		return Match{}, ErrNotFound
	}
	for _, g := range idx.Groups() {
		for i, d := range g.Descriptors {
			if d == nil {
				continue
			}
			ok, err := identity(d, r, idx.ByteOrder, offset)
			if err != nil {
				return Match{}, fmt.Errorf("locate %s[%d]: %w", g.Group, i, err)
			}
			if !ok || d.Width != width || d.Height != height {
				continue
			}
			m := Match{Descriptor: d, Group: g.Group, Index: -1}
			if g.Group == dng.GroupPrimary {
				m.Index = i
			}
			return m, nil
		}
	}
	return Match{}, ErrNotFound
}

func identity(d *dng.Descriptor, r io.ReadSeeker, order binary.ByteOrder, offset uint64) (bool, error) {
	if d.TileOffsetsOffset == offset {
		return true, nil
	}
	if d.TileOffsetsCount == 1 && len(d.TileOffsets) == 1 && d.TileOffsets[0] == offset {
		return true, nil
	}
	if d.TileOffsetsCount > dng.MaxTileInfo {
		first, err := firstTileOffset(d, r, order)
		if err != nil {
			return false, err
		}
		return first == offset, nil
	}
	return false, nil
}

// firstTileOffset reads the first entry of an out-of-line tile offset table.
func firstTileOffset(d *dng.Descriptor, r io.ReadSeeker, order binary.ByteOrder) (uint64, error) {
	if r == nil {
		return 0, errors.New("locate: no stream for out-of-line tile table")
	}
	if order == nil {
		order = binary.LittleEndian
	}
	var v uint64
	err := dng.WithCursor(r, func() error {
		if _, err := r.Seek(int64(d.TileOffsetsOffset), io.SeekStart); err != nil {
			return err
		}
		var rerr error
		v, rerr = dng.ReadTagUint(r, order, d.TileOffsetsType)
		return rerr
	})
	if err != nil {
		return 0, fmt.Errorf("first tile offset at %d: %w", d.TileOffsetsOffset, err)
	}
	return v, nil
}
