package tracer

import (
	"testing"
	"unsafe"
)

// The shaders read the push constant block with std430-style packing so
// the Go layout must line up byte for byte.
func TestPushConstantsLayout(t *testing.T) {
	var pc PushConstants

	offsets := []struct {
		field    string
		got      uintptr
		expected uintptr
	}{
		{"ClearColor", unsafe.Offsetof(pc.ClearColor), 0},
		{"LightPosition", unsafe.Offsetof(pc.LightPosition), 16},
		{"LightIntensity", unsafe.Offsetof(pc.LightIntensity), 28},
		{"LightDirection", unsafe.Offsetof(pc.LightDirection), 32},
		{"LightSpotCutoff", unsafe.Offsetof(pc.LightSpotCutoff), 44},
		{"LightSpotOuterCutoff", unsafe.Offsetof(pc.LightSpotOuterCutoff), 48},
		{"LightType", unsafe.Offsetof(pc.LightType), 52},
		{"Frame", unsafe.Offsetof(pc.Frame), 56},
	}
	for _, tc := range offsets {
		if tc.got != tc.expected {
			t.Fatalf("expected %s at offset %d; got %d", tc.field, tc.expected, tc.got)
		}
	}

	if size := unsafe.Sizeof(pc); size != PushConstantsSize {
		t.Fatalf("expected push constant block size %d; got %d", PushConstantsSize, size)
	}
}
