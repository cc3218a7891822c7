package materialize

import (
	"errors"
	"testing"

	"github.com/samcharles93/dngstage/internal/raster"
	"github.com/samcharles93/dngstage/internal/stage"
	"github.com/samcharles93/dngstage/pkg/dng"
)

type closeCounter struct {
	n int
}

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

func backendImage(t *testing.T, w, h, planes int, typ dng.PixelType) *raster.Image {
	t.Helper()
	img, err := raster.New(w, h, planes, typ)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	img.Owner = raster.OwnerBackend
	return img
}

func squareCurve() Curve {
	c := make(Curve, 256)
	for i := range c {
		c[i] = uint16(i * i)
	}
	return c
}

func TestEightBitAlwaysWidens(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 4, 2, 1, dng.PixelByte)
	for i := range img.Data {
		img.Data[i] = byte(i * 30)
	}
	curve := squareCurve()
	for _, tc := range []struct {
		name  string
		curve Curve
	}{{"identity", nil}, {"curve", curve}} {
		l, err := Materialize(img, stage.StagePlain, tc.curve, Options{ZeroCopy: true}, &closeCounter{})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if l.Type != dng.PixelShort || l.Ownership != Copied {
			t.Fatalf("%s: type %s ownership %s", tc.name, l.Type, l.Ownership)
		}
		got := l.Uint16()
		for i, v := range img.Data {
			want := uint16(v)
			if tc.curve != nil {
				want = curve[v]
			}
			if got[i] != want {
				t.Fatalf("%s: dst[%d] = %d, want %d", tc.name, i, got[i], want)
			}
		}
		if l.Linearized != (tc.curve != nil) {
			t.Fatalf("%s: linearized = %v", tc.name, l.Linearized)
		}
		if l.Pitch != 4*1*2 {
			t.Fatalf("%s: pitch = %d, want 8", tc.name, l.Pitch)
		}
	}
}

func TestShortCurveCopies(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 2, 2, 3, dng.PixelShort)
	src := img.Uint16()
	for i := range src {
		src[i] = uint16(i)
	}
	l, err := Materialize(img, stage.StagePlain, squareCurve(), Options{ZeroCopy: true}, &closeCounter{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if l.Ownership != Copied || !l.Linearized || l.Kind != KindTriple {
		t.Fatalf("layout = %+v", l)
	}
	for i, v := range l.Uint16() {
		if v != uint16(i*i) {
			t.Fatalf("dst[%d] = %d, want %d", i, v, i*i)
		}
	}
	if l.Pitch != 2*3*2 {
		t.Fatalf("pitch = %d, want 12", l.Pitch)
	}
}

func TestStageOnePreviewIgnoresCurveAndZeroCopy(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 2, 1, 1, dng.PixelShort)
	img.Uint16()[1] = 3
	owner := &closeCounter{}
	l, err := Materialize(img, stage.StagePreview1, squareCurve(), Options{ZeroCopy: true}, owner)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if l.Ownership != Copied || l.Linearized {
		t.Fatalf("ownership %s linearized %v", l.Ownership, l.Linearized)
	}
	if &l.Data[0] == &img.Data[0] {
		t.Fatalf("stage-1 preview aliased the backend buffer")
	}
	if l.Uint16()[1] != 3 {
		t.Fatalf("sample changed: %d", l.Uint16()[1])
	}
}

func TestZeroCopyAliasesBackendBuffer(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 3, 2, 4, dng.PixelFloat)
	owner := &closeCounter{}
	l, err := Materialize(img, stage.StageMain3, nil, Options{ZeroCopy: true}, owner)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if l.Ownership != Aliased || l.Kind != KindQuad {
		t.Fatalf("ownership %s kind %s", l.Ownership, l.Kind)
	}
	if &l.Data[0] != &img.Data[0] {
		t.Fatalf("aliased layout does not share the backend buffer")
	}
	if l.Pitch != 3*4*4 {
		t.Fatalf("pitch = %d, want 48", l.Pitch)
	}

	extra := l.Retain()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if owner.n != 0 {
		t.Fatalf("backend closed while a reference is live")
	}
	if err := extra.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := extra.Close(); err != nil {
		t.Fatalf("second Close of the same reference: %v", err)
	}
	if owner.n != 1 {
		t.Fatalf("backend closed %d times, want 1", owner.n)
	}
}

func TestCopyWithoutZeroCopy(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 2, 2, 1, dng.PixelShort)
	owner := &closeCounter{}
	l, err := Materialize(img, stage.StageMain2, nil, Options{}, owner)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if l.Ownership != Copied || &l.Data[0] == &img.Data[0] {
		t.Fatalf("expected an owned copy")
	}
	if err := l.Close(); err != nil || owner.n != 0 {
		t.Fatalf("copied layout must not close the backend (err %v, closes %d)", err, owner.n)
	}
}

func TestFloatToIntOverridesZeroCopy(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 2, 1, 1, dng.PixelFloat)
	f := img.Float32()
	f[0], f[1] = 0.5, 1.0

	l, err := Materialize(img, stage.StageMain2, nil, Options{ZeroCopy: true, FloatToInt: true}, &closeCounter{})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if l.Ownership != Copied || l.Type != dng.PixelShort {
		t.Fatalf("ownership %s type %s", l.Ownership, l.Type)
	}
	got := l.Uint16()
	if got[1] != 16383 || got[0] != 8192 {
		t.Fatalf("samples = %v, want [8192 16383]", got)
	}
	if l.Max != 16383 {
		t.Fatalf("max = %d, want 16383", l.Max)
	}
}

func TestFloatToIntKeepsInRangeData(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 2, 1, 1, dng.PixelFloat)
	f := img.Float32()
	f[0], f[1] = 100, 20000
	l, err := Materialize(img, stage.StagePlain, nil, Options{FloatToInt: true}, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got := l.Uint16(); got[0] != 100 || got[1] != 20000 {
		t.Fatalf("samples = %v", got)
	}
}

func TestMaterializeRejectsTwoPlanes(t *testing.T) {
	t.Parallel()
	img := backendImage(t, 1, 1, 2, dng.PixelShort)
	if _, err := Materialize(img, stage.StagePlain, nil, Options{}, nil); !errors.Is(err, ErrPlanes) {
		t.Fatalf("err = %v, want ErrPlanes", err)
	}
}

func TestHandleOverRelease(t *testing.T) {
	t.Parallel()
	c := &closeCounter{}
	h := NewHandle(c)
	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(); !errors.Is(err, ErrReleased) {
		t.Fatalf("err = %v, want ErrReleased", err)
	}
	if c.n != 1 {
		t.Fatalf("closed %d times", c.n)
	}
}

func TestCurveIdentity(t *testing.T) {
	t.Parallel()
	if !Curve(nil).IsIdentity() || !(Curve{0, 1, 2}).IsIdentity() {
		t.Fatalf("identity curve not detected")
	}
	if (Curve{0, 2}).IsIdentity() {
		t.Fatalf("non-identity curve reported as identity")
	}
}
