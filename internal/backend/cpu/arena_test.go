package cpu

import (
	"errors"
	"testing"

	"github.com/samcharles93/dngstage/pkg/dng"
)

func TestAllocateUsesMappedRegions(t *testing.T) {
	t.Parallel()
	neg := newNegative(nil)
	for range 2 {
		img, err := neg.Allocate(16, 8, 3, dng.PixelShort)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		img.Data[len(img.Data)-1] = 0xff
	}
	if got := neg.arena.mapped(); got != 2 {
		t.Fatalf("mapped regions = %d, want 2", got)
	}
	if err := neg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := neg.arena.mapped(); got != 0 {
		t.Fatalf("mapped regions after Close = %d, want 0", got)
	}
}

func TestArenaFallsBackToHeap(t *testing.T) {
	t.Parallel()
	var a arena
	// A zero-length mapping is refused by the kernel.
	data, err := a.alloc(0)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if data == nil || len(data) != 0 {
		t.Fatalf("alloc(0) = %v, want empty heap slice", data)
	}
	if got := a.mapped(); got != 0 {
		t.Fatalf("mapped regions = %d, want 0", got)
	}
	if err := a.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.alloc(8); !errors.Is(err, ErrClosed) {
		t.Fatalf("alloc after close err = %v, want ErrClosed", err)
	}
}
