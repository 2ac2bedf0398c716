package vulkan

import (
	"testing"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
)

// Releasing a never-created structure must be a no-op that touches no
// device state. Failed batch builds release every slot, created or not.
func TestAccelStructReleaseZeroValue(t *testing.T) {
	var as accelStruct
	as.release(nil)
	as.release(nil)

	if as.handle != nil || as.buffer != nil || as.address != 0 {
		t.Fatalf("expected released structure to stay empty; got %+v", as)
	}
}

func TestBuildFlagBits(t *testing.T) {
	cases := []struct {
		flags    tracer.BuildFlags
		expected uint32
	}{
		{0, 0},
		{tracer.PreferFastTrace, buildAccelerationStructurePreferFastTraceBit},
		{tracer.PreferFastBuild, buildAccelerationStructurePreferFastBuildBit},
		{tracer.AllowCompaction, buildAccelerationStructureAllowCompactionBit},
		{tracer.PreferFastTrace | tracer.AllowCompaction,
			buildAccelerationStructurePreferFastTraceBit | buildAccelerationStructureAllowCompactionBit},
	}
	for _, tc := range cases {
		if got := buildFlagBits(tc.flags); got != tc.expected {
			t.Fatalf("expected flags %#x to map to %#x; got %#x", tc.flags, tc.expected, got)
		}
	}
}

func TestAsGeometryTriangles(t *testing.T) {
	input := tracer.GeometryInput{
		Kind:          tracer.GeometryTriangles,
		VertexAddress: 0x1000,
		VertexStride:  32,
		MaxVertex:     99,
		IndexAddress:  0x2000,
	}

	geom := asGeometry(input)
	if geom.GeometryType != geometryTypeTriangles {
		t.Fatalf("expected triangles geometry type; got %d", geom.GeometryType)
	}
	if geom.Flags != 0 {
		t.Fatalf("expected no geometry flags; got %#x", geom.Flags)
	}

	triangles := *(*accelerationStructureGeometryTrianglesData)(unsafe.Pointer(&geom.Geometry))
	if triangles.VertexData != 0x1000 || triangles.IndexData != 0x2000 {
		t.Fatalf("expected vertex/index addresses 0x1000/0x2000; got %#x/%#x", triangles.VertexData, triangles.IndexData)
	}
	if triangles.VertexStride != 32 || triangles.MaxVertex != 99 {
		t.Fatalf("expected stride 32 and max vertex 99; got %d and %d", triangles.VertexStride, triangles.MaxVertex)
	}
	if triangles.IndexType != uint32(vk.IndexTypeUint32) {
		t.Fatalf("expected 32 bit indices; got index type %d", triangles.IndexType)
	}
}

func TestAsGeometryAabbs(t *testing.T) {
	input := tracer.GeometryInput{
		Kind:              tracer.GeometryAABBs,
		AABBAddress:       0x3000,
		AABBStride:        24,
		NoDuplicateAnyHit: true,
	}

	geom := asGeometry(input)
	if geom.GeometryType != geometryTypeAabbs {
		t.Fatalf("expected aabbs geometry type; got %d", geom.GeometryType)
	}
	if geom.Flags != geometryNoDuplicateAnyHitInvocationBit {
		t.Fatalf("expected no-duplicate-any-hit flag; got %#x", geom.Flags)
	}

	aabbs := *(*accelerationStructureGeometryAabbsData)(unsafe.Pointer(&geom.Geometry))
	if aabbs.Data != 0x3000 || aabbs.Stride != 24 {
		t.Fatalf("expected aabb address 0x3000 stride 24; got %#x stride %d", aabbs.Data, aabbs.Stride)
	}
}

func TestAsBuildRange(t *testing.T) {
	rng := asBuildRange(tracer.BuildRange{
		PrimitiveCount:  12,
		PrimitiveOffset: 64,
		FirstVertex:     3,
	})
	want := accelerationStructureBuildRangeInfo{PrimitiveCount: 12, PrimitiveOffset: 64, FirstVertex: 3}
	if rng != want {
		t.Fatalf("expected build range %+v; got %+v", want, rng)
	}
}
