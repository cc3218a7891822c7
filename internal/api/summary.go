package api

import (
	"fmt"

	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/internal/diag"
	"github.com/samcharles93/dngstage/internal/pipeline"
	"github.com/samcharles93/dngstage/pkg/dng"
)

// Meta converts the client's metadata into classifier input.
func (m MetaInput) Meta() classify.Meta {
	out := classify.Meta{
		DNGVersion:    m.DNGVersion,
		Compression:   m.Compression,
		BitsPerSample: m.BitsPerSample,
		Samples:       m.Samples,
		Make:          m.Make,
		FileSize:      m.FileSize,
		Filters:       m.Filters,
		FloatingPoint: m.FloatingPoint,
		FujiRotated:   m.FujiRotated,
	}
	if m.LossyUnpacker {
		out.Unpacker = classify.UnpackerLossyDNG
	}
	return out
}

// DNGVersionString renders the four version bytes as "1.4.0.0".
func DNGVersionString(v uint32) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", v>>24, v>>16&0xff, v>>8&0xff, v&0xff)
}

// SummarizeIndex lists every group of idx in search order.
func SummarizeIndex(idx *dng.Index) IndexSummary {
	out := IndexSummary{
		Object:     "dng.index",
		DNGVersion: DNGVersionString(idx.DNGVersion),
		Make:       idx.Make,
		Model:      idx.Model,
		MainIndex:  idx.MainIndex,
		Valid:      idx.IsValid(),
	}
	if idx.ByteOrder != nil {
		out.ByteOrder = idx.ByteOrder.String()
	}
	for _, g := range idx.Groups() {
		gs := GroupSummary{Group: g.Group.String(), Descriptors: make([]DescriptorSummary, 0, len(g.Descriptors))}
		for i, d := range g.Descriptors {
			ds := SummarizeDescriptor(d, i)
			ds.Main = g.Group == dng.GroupPrimary && i == idx.MainIndex
			gs.Descriptors = append(gs.Descriptors, ds)
		}
		out.Groups = append(out.Groups, gs)
	}
	return out
}

func SummarizeDescriptor(d *dng.Descriptor, i int) DescriptorSummary {
	out := DescriptorSummary{
		Index:         i,
		Preview:       d.IsPreview(),
		Width:         d.Width,
		Height:        d.Height,
		Samples:       d.Planes(),
		BitsPerSample: d.BitsPerSample,
		Compression:   d.Compression,
		Photometric:   d.Photometric,
		PixelType:     d.PixelType().String(),
		Tiled:         d.TileWidth > 0 && d.TileLength > 0,
		TileWidth:     d.TileWidth,
		TileLength:    d.TileLength,
		Tiles:         d.TileOffsetsCount,
		Offset:        d.TileOffsetsOffset,
		BlackLevel:    d.BlackLevel,
		WhiteLevel:    d.WhiteLevel,
	}
	for _, l := range []dng.OpcodeList{dng.OpcodeList1, dng.OpcodeList2, dng.OpcodeList3} {
		if d.Opcodes.Has(l) {
			out.Opcodes = append(out.Opcodes, int(l))
		}
	}
	return out
}

func SummarizeVerdict(v classify.Verdict, d *diag.Set) VerdictResponse {
	return VerdictResponse{
		Object:      "verdict",
		Decision:    v.Decision.String(),
		Rule:        v.Rule,
		Diagnostics: diagNames(d),
	}
}

// SummarizeExtraction describes an extraction attempt without its pixels.
// res may be nil when err is set.
func SummarizeExtraction(res *pipeline.Result, v classify.Verdict, d *diag.Set, err error) ExtractionResponse {
	out := ExtractionResponse{
		Object:      "extraction",
		Code:        pipeline.CodeOf(err).String(),
		Verdict:     SummarizeVerdict(v, d),
		Diagnostics: diagNames(d),
	}
	if err != nil {
		out.Error = &ResponseError{
			Message: err.Error(),
			Type:    errorType(err),
			Code:    out.Code,
			Step:    pipeline.StepOf(err),
		}
	}
	if res == nil {
		return out
	}
	out.ID = res.ID
	out.Stage = res.Stage.String()
	out.Strategy = res.Strategy
	out.Group = res.Group.String()
	out.Skipped = res.SkippedOpcodes
	if l := res.Layout; l != nil {
		out.Layout = &LayoutSummary{
			Kind:       l.Kind.String(),
			Type:       l.Type.String(),
			Width:      l.Width,
			Height:     l.Height,
			Planes:     l.Planes,
			Pitch:      l.Pitch,
			Ownership:  l.Ownership.String(),
			Linearized: l.Linearized,
			Max:        l.Max,
			Bytes:      len(l.Data),
		}
	}
	g := res.Geometry
	out.Geometry = &GeometrySummary{
		RawWidth:   g.RawWidth,
		RawHeight:  g.RawHeight,
		Width:      g.Width,
		Height:     g.Height,
		LeftMargin: g.LeftMargin,
		TopMargin:  g.TopMargin,
	}
	c := res.Color
	out.Color = &ColorSummary{
		Filters: c.Filters,
		Colors:  c.Colors,
		Black:   c.Black,
		CBlack:  c.CBlack,
		Maximum: c.Maximum,
	}
	return out
}

func diagNames(d *diag.Set) []string {
	names := d.Names()
	if names == nil {
		return []string{}
	}
	return names
}
