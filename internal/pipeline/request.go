package pipeline

import (
	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/materialize"
	"github.com/samcharles93/dngstage/internal/reconcile"
	"github.com/samcharles93/dngstage/internal/stage"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// Request is one extraction attempt. The pipeline never modifies it; the
// reconciled geometry and color come back in the Result.
type Request struct {
	// Offset identifies the sub-image: the position of its tile offset
	// table or of its first tile.
	Offset   uint64
	Geometry reconcile.Geometry
	Meta     classify.Meta
	Color    reconcile.Color
	Options  Options
}

// Options gathers the caller's switches for every pipeline step.
type Options struct {
	Classify        classify.Options
	Stage           stage.Options
	Materialize     materialize.Options
	AllowSizeChange bool
	// Curve is the linearization applied while publishing; nil is identity.
	Curve materialize.Curve
}

// DefaultOptions enables the default categories and nothing else.
func DefaultOptions() Options {
	return Options{Classify: classify.Options{Categories: classify.DefaultCategories}}
}

// mosaicFilters marks a Bayer-like CFA. Only zero (linear) and the X-Trans
// value carry meaning for the classifier.
const mosaicFilters uint32 = 0x94949494

// RequestFromIndex builds the request a container-geometry parser would hand
// over for the main image of idx. It returns false when idx has no main
// image.
func RequestFromIndex(idx *dng.Index, fileSize int64) (Request, bool) {
	d := idx.Main()
	if d == nil {
		return Request{}, false
	}
	req := RequestFor(idx, d, fileSize)
	return req, true
}

// RequestFor builds a request for any descriptor of idx.
func RequestFor(idx *dng.Index, d *dng.Descriptor, fileSize int64) Request {
	offset := d.TileOffsetsOffset
	if len(d.TileOffsets) == 1 {
		offset = d.TileOffsets[0]
	}

	filters := classify.FiltersNone
	colors := d.Planes()
	if d.Photometric == dng.PhotometricCFA {
		filters = mosaicFilters
		if d.CFARepeat == [2]uint16{6, 6} {
			filters = classify.FiltersXTrans
		}
		colors = 3
	}

	unpacker := classify.UnpackerOther
	if d.Compression == dng.CompressionLossyJPEG {
		unpacker = classify.UnpackerLossyDNG
	}

	maximum := uint32(1)<<min(d.BitsPerSample, 16) - 1
	if len(d.WhiteLevel) > 0 {
		maximum = d.WhiteLevel[0]
	}
	var black uint32
	cblack := make([]uint32, len(d.BlackLevel))
	for i, v := range d.BlackLevel {
		cblack[i] = uint32(v)
	}
	if len(d.BlackLevel) == 1 {
		black, cblack = uint32(d.BlackLevel[0]), nil
	}

	return Request{
		Offset: offset,
		Geometry: reconcile.Geometry{
			RawWidth:  d.Width,
			RawHeight: d.Height,
			Width:     d.Width,
			Height:    d.Height,
		},
		Meta: classify.Meta{
			DNGVersion:    idx.DNGVersion,
			Compression:   d.Compression,
			BitsPerSample: int(d.BitsPerSample),
			Samples:       d.Planes(),
			Make:          idx.Make,
			FileSize:      fileSize,
			Filters:       filters,
			FloatingPoint: d.SampleFormat == dng.SampleFormatFloat,
			Unpacker:      unpacker,
		},
		Color: reconcile.Color{
			Filters: filters,
			Colors:  colors,
			Black:   black,
			CBlack:  cblack,
			Maximum: maximum,
		},
		Options: DefaultOptions(),
	}
}
