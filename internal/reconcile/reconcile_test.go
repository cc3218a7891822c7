package reconcile

import (
	"errors"
	"testing"
)

func TestBounds(t *testing.T) {
	t.Parallel()
	g := Geometry{RawWidth: 6000, RawHeight: 4000, Width: 5976, Height: 3992, LeftMargin: 12, TopMargin: 8}

	got, err := Bounds(g, 6000, 4000, false)
	if err != nil || got != g {
		t.Fatalf("equal bounds: got %+v, %v", got, err)
	}

	if _, err := Bounds(g, 3000, 2000, false); !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("err = %v, want ErrGeometryMismatch", err)
	}

	got, err = Bounds(g, 3000, 2000, true)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	want := Geometry{RawWidth: 3000, RawHeight: 2000, Width: 3000, Height: 2000}
	if got != want {
		t.Fatalf("resize: got %+v, want %+v", got, want)
	}
}

func TestAfterLift(t *testing.T) {
	t.Parallel()
	c := Color{Filters: 0x94949494, Colors: 3, Black: 256, CBlack: []uint32{1, 2, 3, 4}, LinearMax: [4]uint32{9, 9, 9, 9}, Maximum: 4095}

	mono := AfterLift(c, 1)
	if mono.Filters != c.Filters || mono.Colors != 3 {
		t.Fatalf("single plane must keep the mosaic: %+v", mono)
	}
	if mono.Black != 0 || mono.Maximum != 0xffff || mono.LinearMax != [4]uint32{} {
		t.Fatalf("levels not reset: %+v", mono)
	}
	for _, v := range mono.CBlack {
		if v != 0 {
			t.Fatalf("cblack not reset: %v", mono.CBlack)
		}
	}

	rgb := AfterLift(c, 3)
	if rgb.Filters != 0 || rgb.Colors != 3 {
		t.Fatalf("three planes: %+v", rgb)
	}
	if c.CBlack[0] != 1 {
		t.Fatalf("input color record was modified")
	}
}
