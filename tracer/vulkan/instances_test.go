package vulkan

import (
	"testing"
	"unsafe"

	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

func TestPackedInstanceSize(t *testing.T) {
	if size := unsafe.Sizeof(packedInstance{}); size != packedInstanceSize {
		t.Fatalf("expected packed instance size %d; got %d", packedInstanceSize, size)
	}
}

func TestPackTransform(t *testing.T) {
	// Column-major translation by (1, 2, 3).
	m := types.Translate4(types.Vec3{1, 2, 3})

	got := packTransform(m)
	want := [12]float32{
		1, 0, 0, 1,
		0, 1, 0, 2,
		0, 0, 1, 3,
	}
	if got != want {
		t.Fatalf("expected row-major transform %v; got %v", want, got)
	}
}

func TestPackInstanceFields(t *testing.T) {
	inst := tracer.Instance{
		Transform:   types.Ident4(),
		CustomIndex: 0x123456,
		HitGroup:    1,
		Mask:        0xff,
		Flags:       tracer.TriangleFacingCullDisable,
	}

	packed := packInstance(inst, 0xdeadbeef)

	if packed.customIndexAndMask != 0xff123456 {
		t.Fatalf("expected packed custom index 0xff123456; got %#x", packed.customIndexAndMask)
	}
	if packed.hitGroupAndFlags != 0x01000001 {
		t.Fatalf("expected packed hit group 0x01000001; got %#x", packed.hitGroupAndFlags)
	}
	if packed.blasReference != 0xdeadbeef {
		t.Fatalf("expected blas reference 0xdeadbeef; got %#x", packed.blasReference)
	}
}

// The flags byte travels to the device untranslated, so the adapter flag
// values must be the device bit values.
func TestPackInstanceForceOpaque(t *testing.T) {
	inst := tracer.Instance{
		Transform: types.Ident4(),
		Mask:      0xff,
		Flags:     tracer.ForceOpaque,
	}

	packed := packInstance(inst, 0)
	if packed.hitGroupAndFlags != 0x04000000 {
		t.Fatalf("expected force-opaque bit 0x04 in the flags byte; got %#x", packed.hitGroupAndFlags)
	}
}

func TestPackInstanceTruncatesTo24Bits(t *testing.T) {
	inst := tracer.Instance{
		Transform:   types.Ident4(),
		CustomIndex: 0xff000001,
		Mask:        1,
	}

	packed := packInstance(inst, 0)
	if packed.customIndexAndMask != 0x01000001 {
		t.Fatalf("expected custom index truncated to 24 bits; got %#x", packed.customIndexAndMask)
	}
}
