package dng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	leHeader = "II\x2A\x00"
	beHeader = "MM\x00\x2A"

	ifdEntryLen = 12

	// Upper bounds that keep a hostile file from exhausting memory.
	maxIFDs          = 256
	maxIFDEntries    = 4096
	maxSubIFDDepth   = 4
	maxBlackLevels   = 64
	maxLinearization = 1 << 16
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	// pos is the absolute file position of the value bytes.
	pos int64
}

type parser struct {
	r     io.ReadSeeker
	order binary.ByteOrder
	size  int64
	seen  map[int64]bool
}

// Parse walks the IFD structure of a TIFF/DNG stream and returns the grouped
// descriptors. The read cursor of r is restored before Parse returns.
// A TIFF without a DNGVersion tag parses successfully but is not valid.
func Parse(r io.ReadSeeker) (idx *Index, err error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, serr := r.Seek(start, io.SeekStart); serr != nil && err == nil {
			idx, err = nil, serr
		}
	}()

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	p := &parser{r: r, size: size, seen: make(map[int64]bool)}

	var hdr [8]byte
	if err := p.readAt(0, hdr[:]); err != nil {
		return nil, ErrInvalidHeader
	}
	switch string(hdr[:4]) {
	case leHeader:
		p.order = binary.LittleEndian
	case beHeader:
		p.order = binary.BigEndian
	default:
		return nil, ErrInvalidHeader
	}

	idx = &Index{MainIndex: -1, ByteOrder: p.order}

	ifd0 := int64(p.order.Uint32(hdr[4:8]))
	entries, next, err := p.readIFD(ifd0)
	if err != nil {
		return nil, fmt.Errorf("ifd0: %w", err)
	}
	d0, err := p.descriptor(entries)
	if err != nil {
		return nil, fmt.Errorf("ifd0: %w", err)
	}
	idx.IFDs = append(idx.IFDs, d0)
	if idx.IFDs, err = p.appendSubIFDs(idx.IFDs, entries, 0); err != nil {
		return nil, err
	}

	if e, ok := entries[tagDNGVersion]; ok && e.count >= 4 {
		var v [4]byte
		if err := p.readAt(e.pos, v[:]); err != nil {
			return nil, err
		}
		idx.DNGVersion = binary.BigEndian.Uint32(v[:])
	}
	if idx.Make, err = p.ascii(entries, tagMake); err != nil {
		return nil, err
	}
	if idx.Model, err = p.ascii(entries, tagModel); err != nil {
		return nil, err
	}

	for next != 0 {
		var chained map[uint16]entry
		chained, next, err = p.readIFD(next)
		if err != nil {
			return nil, fmt.Errorf("chained ifd %d: %w", len(idx.Chained), err)
		}
		d, err := p.descriptor(chained)
		if err != nil {
			return nil, fmt.Errorf("chained ifd %d: %w", len(idx.Chained), err)
		}
		idx.Chained = append(idx.Chained, d)
		subs, err := p.appendSubIFDs(nil, chained, 0)
		if err != nil {
			return nil, err
		}
		idx.ChainedSub = append(idx.ChainedSub, subs)
	}

	idx.MainIndex = findMain(idx.IFDs)
	return idx, nil
}

func findMain(ifds []*Descriptor) int {
	for i, d := range ifds {
		if d.NewSubFileType != SubfileMain {
			continue
		}
		if d.Photometric == PhotometricCFA || d.Photometric == PhotometricLinearRaw {
			return i
		}
	}
	return -1
}

func (p *parser) readAt(off int64, buf []byte) error {
	if off < 0 || off+int64(len(buf)) > p.size {
		return ErrTruncated
	}
	if _, err := p.r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return nil
}

func (p *parser) readIFD(off int64) (map[uint16]entry, int64, error) {
	if p.seen[off] {
		return nil, 0, fmt.Errorf("%w: IFD loop at %d", ErrCorrupt, off)
	}
	if len(p.seen) >= maxIFDs {
		return nil, 0, fmt.Errorf("%w: too many IFDs", ErrCorrupt)
	}
	p.seen[off] = true

	var cnt [2]byte
	if err := p.readAt(off, cnt[:]); err != nil {
		return nil, 0, err
	}
	n := int(p.order.Uint16(cnt[:]))
	if n == 0 || n > maxIFDEntries {
		return nil, 0, fmt.Errorf("%w: %d entries", ErrCorrupt, n)
	}
	raw := make([]byte, n*ifdEntryLen+4)
	if err := p.readAt(off+2, raw); err != nil {
		return nil, 0, err
	}

	entries := make(map[uint16]entry, n)
	for i := 0; i < n; i++ {
		b := raw[i*ifdEntryLen:]
		e := entry{
			tag:   p.order.Uint16(b[0:2]),
			typ:   p.order.Uint16(b[2:4]),
			count: p.order.Uint32(b[4:8]),
		}
		size := TypeSize(e.typ)
		if size == 0 {
			// Unknown types are skipped, as TIFF readers must.
			continue
		}
		total := int64(size) * int64(e.count)
		if total <= 4 {
			e.pos = off + 2 + int64(i*ifdEntryLen) + 8
		} else {
			e.pos = int64(p.order.Uint32(b[8:12]))
			if e.pos+total > p.size {
				return nil, 0, fmt.Errorf("%w: tag %d value out of bounds", ErrCorrupt, e.tag)
			}
		}
		entries[e.tag] = e
	}
	next := int64(p.order.Uint32(raw[n*ifdEntryLen:]))
	return entries, next, nil
}

func (p *parser) uints(e entry, limit int) ([]uint64, error) {
	size := TypeSize(e.typ)
	n := int(e.count)
	if n > limit {
		n = limit
	}
	raw := make([]byte, n*size)
	if err := p.readAt(e.pos, raw); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = decodeUint(raw[i*size:], p.order, e.typ)
	}
	return out, nil
}

func (p *parser) floats(e entry, limit int) ([]float64, error) {
	size := TypeSize(e.typ)
	n := int(e.count)
	if n > limit {
		n = limit
	}
	raw := make([]byte, n*size)
	if err := p.readAt(e.pos, raw); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = decodeFloat(raw[i*size:], p.order, e.typ)
	}
	return out, nil
}

func (p *parser) first(entries map[uint16]entry, tag uint16, def uint64) (uint64, error) {
	e, ok := entries[tag]
	if !ok || e.count == 0 {
		return def, nil
	}
	v, err := p.uints(e, 1)
	if err != nil {
		return 0, fmt.Errorf("tag %d: %w", tag, err)
	}
	return v[0], nil
}

func (p *parser) ascii(entries map[uint16]entry, tag uint16) (string, error) {
	e, ok := entries[tag]
	if !ok || e.count == 0 {
		return "", nil
	}
	raw := make([]byte, e.count)
	if err := p.readAt(e.pos, raw); err != nil {
		return "", err
	}
	for i, c := range raw {
		if c == 0 {
			raw = raw[:i]
			break
		}
	}
	return string(raw), nil
}

func (p *parser) appendSubIFDs(dst []*Descriptor, entries map[uint16]entry, depth int) ([]*Descriptor, error) {
	e, ok := entries[tagSubIFDs]
	if !ok {
		return dst, nil
	}
	if depth >= maxSubIFDDepth {
		return nil, fmt.Errorf("%w: SubIFD nesting too deep", ErrCorrupt)
	}
	offs, err := p.uints(e, maxIFDs)
	if err != nil {
		return nil, fmt.Errorf("subifds: %w", err)
	}
	for _, off := range offs {
		sub, _, err := p.readIFD(int64(off))
		if err != nil {
			return nil, fmt.Errorf("subifd at %d: %w", off, err)
		}
		d, err := p.descriptor(sub)
		if err != nil {
			return nil, fmt.Errorf("subifd at %d: %w", off, err)
		}
		dst = append(dst, d)
		if dst, err = p.appendSubIFDs(dst, sub, depth+1); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (p *parser) descriptor(entries map[uint16]entry) (*Descriptor, error) {
	d := &Descriptor{}
	var errs []error
	get := func(tag uint16, def uint64) uint64 {
		v, err := p.first(entries, tag, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	d.NewSubFileType = uint32(get(tagNewSubFileType, 0))
	d.Width = uint32(get(tagImageWidth, 0))
	d.Height = uint32(get(tagImageLength, 0))
	d.BitsPerSample = uint32(get(tagBitsPerSample, 1))
	d.Compression = uint16(get(tagCompression, uint64(CompressionNone)))
	d.Photometric = uint16(get(tagPhotometric, 0))
	d.SamplesPerPixel = uint32(get(tagSamplesPerPixel, 1))
	d.SampleFormat = uint16(get(tagSampleFormat, uint64(SampleFormatUint)))

	offTag, cntTag := uint16(tagStripOffsets), uint16(tagStripByteCounts)
	if _, tiled := entries[tagTileOffsets]; tiled {
		offTag, cntTag = tagTileOffsets, tagTileByteCounts
		d.TileWidth = uint32(get(tagTileWidth, 0))
		d.TileLength = uint32(get(tagTileLength, 0))
	} else {
		d.TileWidth = d.Width
		d.TileLength = uint32(get(tagRowsPerStrip, uint64(d.Height)))
		if d.TileLength == 0 || d.TileLength > d.Height {
			d.TileLength = d.Height
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if e, ok := entries[offTag]; ok {
		d.TileOffsetsOffset = uint64(e.pos)
		d.TileOffsetsType = e.typ
		d.TileOffsetsCount = e.count
		if e.count <= MaxTileInfo {
			v, err := p.uints(e, MaxTileInfo)
			if err != nil {
				return nil, fmt.Errorf("tile offsets: %w", err)
			}
			d.TileOffsets = v
		}
	}
	if e, ok := entries[cntTag]; ok {
		d.TileByteCountsOffset = uint64(e.pos)
		d.TileByteCountsType = e.typ
		if e.count <= MaxTileInfo {
			v, err := p.uints(e, MaxTileInfo)
			if err != nil {
				return nil, fmt.Errorf("tile byte counts: %w", err)
			}
			d.TileByteCounts = v
		}
	}

	if e, ok := entries[tagCFARepeatPatternDim]; ok && e.count >= 2 {
		v, err := p.uints(e, 2)
		if err != nil {
			return nil, err
		}
		d.CFARepeat = [2]uint16{uint16(v[0]), uint16(v[1])}
	}
	if e, ok := entries[tagLinearizationTable]; ok {
		v, err := p.uints(e, maxLinearization)
		if err != nil {
			return nil, fmt.Errorf("linearization: %w", err)
		}
		d.Linearization = make([]uint16, len(v))
		for i, x := range v {
			d.Linearization[i] = uint16(x)
		}
	}
	if e, ok := entries[tagBlackLevel]; ok {
		v, err := p.floats(e, maxBlackLevels)
		if err != nil {
			return nil, fmt.Errorf("black level: %w", err)
		}
		d.BlackLevel = v
	}
	if e, ok := entries[tagWhiteLevel]; ok {
		v, err := p.uints(e, maxBlackLevels)
		if err != nil {
			return nil, fmt.Errorf("white level: %w", err)
		}
		d.WhiteLevel = make([]uint32, len(v))
		for i, x := range v {
			d.WhiteLevel[i] = uint32(x)
		}
	}

	for l, tag := range [...]uint16{tagOpcodeList1, tagOpcodeList2, tagOpcodeList3} {
		if e, ok := entries[tag]; ok && e.count > 0 {
			d.SetOpcodeRange(OpcodeList(l+1), Range{Offset: uint64(e.pos), Size: uint64(e.count)})
		}
	}
	return d, nil
}
