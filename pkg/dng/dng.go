// Package dng models the sub-image layout of a DNG container.
//
// A DNG file is a TIFF file whose IFDs describe the raw image, its reduced
// previews and any auxiliary images. The package only records what a raw
// extraction pipeline needs to pick one of those IFDs and read its samples:
// geometry, sample layout, tile tables and the presence of opcode lists.
package dng

import (
	"encoding/binary"
	"image"
)

// Compression codes seen in DNG files. Only some of them are decodable by a
// given backend; the values themselves never change.
const (
	CompressionNone      uint16 = 1
	CompressionJPEG      uint16 = 7
	CompressionDeflate   uint16 = 8
	CompressionVC5       uint16 = 9
	CompressionLossyJPEG uint16 = 34892
	CompressionJXL       uint16 = 52546
)

// MaxTileInfo is the number of tile offsets kept inline in a Descriptor.
// Larger tables are only referenced by file position.
const MaxTileInfo = 32

// SubfileType values for the NewSubFileType tag.
const (
	SubfileMain    uint32 = 0
	SubfilePreview uint32 = 1
)

// Photometric interpretations relevant to raw data.
const (
	PhotometricRGB       uint16 = 2
	PhotometricCFA       uint16 = 32803
	PhotometricLinearRaw uint16 = 34892
)

// Sample formats (tag 339).
const (
	SampleFormatUint  uint16 = 1
	SampleFormatFloat uint16 = 3
)

// PixelType is the in-memory sample type of a decoded image plane.
type PixelType uint8

const (
	PixelUnknown PixelType = iota
	PixelByte
	PixelShort
	PixelFloat
)

// Size returns the byte size of one sample.
func (p PixelType) Size() int {
	switch p {
	case PixelByte:
		return 1
	case PixelShort:
		return 2
	case PixelFloat:
		return 4
	default:
		return 0
	}
}

func (p PixelType) String() string {
	switch p {
	case PixelByte:
		return "uint8"
	case PixelShort:
		return "uint16"
	case PixelFloat:
		return "float32"
	default:
		return "unknown"
	}
}

// OpcodeList identifies one of the three embedded opcode lists.
type OpcodeList int

const (
	OpcodeList1 OpcodeList = 1
	OpcodeList2 OpcodeList = 2
	OpcodeList3 OpcodeList = 3
)

// OpcodeSet is a presence bitset of opcode lists.
type OpcodeSet uint8

func opcodeBit(l OpcodeList) OpcodeSet {
	if l < OpcodeList1 || l > OpcodeList3 {
		return 0
	}
	return 1 << (l - 1)
}

// Has reports whether list l is present.
func (s OpcodeSet) Has(l OpcodeList) bool {
	b := opcodeBit(l)
	return b != 0 && s&b != 0
}

// Range is a byte range inside the file.
type Range struct {
	Offset uint64
	Size   uint64
}

// Descriptor describes one decodable image region.
type Descriptor struct {
	Width           uint32
	Height          uint32
	SamplesPerPixel uint32
	BitsPerSample   uint32
	Compression     uint16
	Photometric     uint16
	SampleFormat    uint16
	NewSubFileType  uint32

	// Strips are recorded as tiles spanning the full width.
	TileWidth  uint32
	TileLength uint32

	// TileOffsetsOffset is the file position of the offset table. For a
	// table that fits in the IFD entry it is the position of the entry value.
	TileOffsetsOffset uint64
	TileOffsetsType   uint16
	TileOffsetsCount  uint32
	TileOffsets       []uint64

	TileByteCountsOffset uint64
	TileByteCountsType   uint16
	TileByteCounts       []uint64

	CFARepeat     [2]uint16
	Linearization []uint16
	BlackLevel    []float64
	WhiteLevel    []uint32

	Opcodes      OpcodeSet
	opcodeRanges [3]Range
}

// IsPreview reports whether the descriptor is a reduced-resolution image.
func (d *Descriptor) IsPreview() bool {
	return d.NewSubFileType == SubfilePreview
}

// Bounds returns the image rectangle anchored at the origin.
func (d *Descriptor) Bounds() image.Rectangle {
	return image.Rect(0, 0, int(d.Width), int(d.Height))
}

// Planes returns the number of interleaved samples per pixel.
func (d *Descriptor) Planes() int {
	if d.SamplesPerPixel == 0 {
		return 1
	}
	return int(d.SamplesPerPixel)
}

// PixelType derives the decoded sample type from the bit depth and format.
func (d *Descriptor) PixelType() PixelType {
	switch {
	case d.SampleFormat == SampleFormatFloat:
		return PixelFloat
	case d.BitsPerSample <= 8:
		return PixelByte
	case d.BitsPerSample <= 16:
		return PixelShort
	default:
		return PixelUnknown
	}
}

// TilesAcross returns the number of tile columns.
func (d *Descriptor) TilesAcross() int {
	if d.TileWidth == 0 {
		return 1
	}
	return int((d.Width + d.TileWidth - 1) / d.TileWidth)
}

// TilesDown returns the number of tile rows.
func (d *Descriptor) TilesDown() int {
	if d.TileLength == 0 {
		return 1
	}
	return int((d.Height + d.TileLength - 1) / d.TileLength)
}

// OpcodeRange returns the byte range of an embedded opcode list.
func (d *Descriptor) OpcodeRange(l OpcodeList) (Range, bool) {
	if !d.Opcodes.Has(l) {
		return Range{}, false
	}
	return d.opcodeRanges[l-1], true
}

// SetOpcodeRange records an opcode list's location and marks it present.
func (d *Descriptor) SetOpcodeRange(l OpcodeList, r Range) {
	b := opcodeBit(l)
	if b == 0 {
		return
	}
	d.Opcodes |= b
	d.opcodeRanges[l-1] = r
}

// Group identifies one of the descriptor groups of an Index.
type Group int

const (
	GroupPrimary Group = iota
	GroupChained
	GroupChainedSub
)

func (g Group) String() string {
	switch g {
	case GroupPrimary:
		return "primary"
	case GroupChained:
		return "chained"
	case GroupChainedSub:
		return "chained-sub"
	default:
		return "unknown"
	}
}

// Index is the parsed set of descriptors, grouped by their relation to IFD0.
// It is immutable once returned by Parse.
type Index struct {
	// IFDs holds IFD0 followed by its SubIFDs in file order.
	IFDs []*Descriptor
	// Chained holds IFDs reached through next-IFD links after IFD0.
	Chained []*Descriptor
	// ChainedSub holds the SubIFDs of each chained IFD.
	ChainedSub [][]*Descriptor

	MainIndex  int
	DNGVersion uint32
	Make       string
	Model      string
	ByteOrder  binary.ByteOrder
}

// IsValid reports whether the index describes a usable DNG: a DNG version
// tag was present and a main raw image with non-zero geometry was found.
func (x *Index) IsValid() bool {
	if x == nil || x.DNGVersion == 0 {
		return false
	}
	if x.MainIndex < 0 || x.MainIndex >= len(x.IFDs) {
		return false
	}
	m := x.IFDs[x.MainIndex]
	return m != nil && m.Width > 0 && m.Height > 0
}

// Main returns the main raw descriptor, or nil.
func (x *Index) Main() *Descriptor {
	if x == nil || x.MainIndex < 0 || x.MainIndex >= len(x.IFDs) {
		return nil
	}
	return x.IFDs[x.MainIndex]
}

// Groups returns every group in search priority order.
func (x *Index) Groups() []GroupView {
	out := make([]GroupView, 0, 2+len(x.ChainedSub))
	out = append(out, GroupView{Group: GroupPrimary, Descriptors: x.IFDs})
	out = append(out, GroupView{Group: GroupChained, Descriptors: x.Chained})
	for _, g := range x.ChainedSub {
		out = append(out, GroupView{Group: GroupChainedSub, Descriptors: g})
	}
	return out
}

// GroupView pairs a group tag with its descriptors.
type GroupView struct {
	Group       Group
	Descriptors []*Descriptor
}
