package pipeline

import (
	"testing"

	"github.com/samcharles93/dngstage/internal/classify"
	"github.com/samcharles93/dngstage/pkg/dng"
)

func TestRequestFor(t *testing.T) {
	t.Parallel()
	idx := &dng.Index{DNGVersion: 0x01040000, Make: "Fujifilm"}
	d := &dng.Descriptor{
		Width:             6000,
		Height:            4000,
		SamplesPerPixel:   1,
		BitsPerSample:     14,
		Compression:       dng.CompressionNone,
		Photometric:       dng.PhotometricCFA,
		CFARepeat:         [2]uint16{6, 6},
		TileOffsetsOffset: 2048,
		TileOffsetsCount:  40,
		BlackLevel:        []float64{1024, 1024, 1024, 1024},
	}
	req := RequestFor(idx, d, 1<<20)
	if req.Offset != 2048 {
		t.Fatalf("offset = %d, want table position 2048", req.Offset)
	}
	if req.Meta.Filters != classify.FiltersXTrans || req.Color.Colors != 3 {
		t.Fatalf("filters %d colors %d", req.Meta.Filters, req.Color.Colors)
	}
	if req.Color.Maximum != 1<<14-1 {
		t.Fatalf("maximum = %d", req.Color.Maximum)
	}
	if len(req.Color.CBlack) != 4 || req.Color.CBlack[2] != 1024 || req.Color.Black != 0 {
		t.Fatalf("black = %d cblack = %v", req.Color.Black, req.Color.CBlack)
	}
	if req.Options.Classify.Categories != classify.DefaultCategories {
		t.Fatalf("categories = %b", req.Options.Classify.Categories)
	}
}

func TestRequestFromIndexWithoutMain(t *testing.T) {
	t.Parallel()
	if _, ok := RequestFromIndex(&dng.Index{MainIndex: -1}, 0); ok {
		t.Fatal("expected no request without a main image")
	}
}
