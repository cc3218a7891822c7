// Package reconcile aligns the caller's geometry and color metadata with a
// staged result.
package reconcile

import (
	"errors"
	"fmt"
)

var ErrGeometryMismatch = errors.New("reconcile: staged image size differs from the request")

// Geometry is the caller's view of the raw frame.
type Geometry struct {
	RawWidth   uint32
	RawHeight  uint32
	Width      uint32
	Height     uint32
	LeftMargin uint32
	TopMargin  uint32
}

// Bounds checks a staged w x h against g. With allowResize the staged size
// becomes the new geometry and the margins are dropped.
func Bounds(g Geometry, w, h uint32, allowResize bool) (Geometry, error) {
	if g.RawWidth == w && g.RawHeight == h {
		return g, nil
	}
	if !allowResize {
		return g, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrGeometryMismatch, w, h, g.RawWidth, g.RawHeight)
	}
	return Geometry{RawWidth: w, RawHeight: h, Width: w, Height: h}, nil
}

// Color is the calibration metadata that depends on the sample layout.
type Color struct {
	Filters   uint32
	Colors    int
	Black     uint32
	CBlack    []uint32
	LinearMax [4]uint32
	Maximum   uint32
}

// AfterLift resets the mosaic calibration once samples have been linearized.
// A multi-plane result is no longer mosaiced.
func AfterLift(c Color, planes int) Color {
	if planes > 1 {
		c.Filters = 0
		c.Colors = planes
	}
	c.Black = 0
	c.CBlack = make([]uint32, len(c.CBlack))
	c.LinearMax = [4]uint32{}
	c.Maximum = 0xffff
	return c
}
