package tracer

import (
	"testing"

	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

func TestFrameCounterAccumulates(t *testing.T) {
	var fs FrameState
	view := types.Ident4()

	if got := fs.Update(view, 65); got != FrameResetSentinel {
		t.Fatalf("expected first update to return the sentinel; got %d", got)
	}

	// Identical camera state: strictly increasing by 1.
	for want := int32(0); want < 5; want++ {
		if got := fs.Update(view, 65); got != want {
			t.Fatalf("expected counter %d; got %d", want, got)
		}
	}
}

func TestFrameCounterResetsOnCameraMove(t *testing.T) {
	var fs FrameState
	view := types.Ident4()

	fs.Update(view, 65)
	fs.Update(view, 65)
	fs.Update(view, 65)

	moved := view
	moved[12] = 1.5

	if got := fs.Update(moved, 65); got != FrameResetSentinel {
		t.Fatalf("expected counter reset after camera move; got %d", got)
	}
	if got := fs.Update(moved, 65); got != 0 {
		t.Fatalf("expected counter to resume from the sentinel; got %d", got)
	}
}

func TestFrameCounterResetsOnFovChange(t *testing.T) {
	var fs FrameState
	view := types.Ident4()

	fs.Update(view, 65)
	fs.Update(view, 65)

	if got := fs.Update(view, 70); got != FrameResetSentinel {
		t.Fatalf("expected counter reset after fov change; got %d", got)
	}
}

func TestFrameCounterForcedReset(t *testing.T) {
	var fs FrameState
	view := types.Ident4()

	fs.Update(view, 65)
	fs.Update(view, 65)
	fs.Reset()

	if got := fs.Update(view, 65); got != FrameResetSentinel {
		t.Fatalf("expected counter reset after forced reset; got %d", got)
	}
}
