package tracer

import "testing"

func TestTriangleGeometry(t *testing.T) {
	input := TriangleGeometry(0x1000, 32, 100, 0x2000, 300)

	if len(input.Geometries) != 1 || len(input.Ranges) != 1 {
		t.Fatalf("expected 1 geometry and 1 range; got %d and %d", len(input.Geometries), len(input.Ranges))
	}

	geom := input.Geometries[0]
	if geom.Kind != GeometryTriangles {
		t.Fatalf("expected triangle geometry kind; got %d", geom.Kind)
	}
	if geom.VertexAddress != 0x1000 || geom.IndexAddress != 0x2000 {
		t.Fatalf("unexpected buffer addresses: %#x, %#x", geom.VertexAddress, geom.IndexAddress)
	}
	if geom.VertexStride != 32 || geom.MaxVertex != 100 {
		t.Fatalf("unexpected vertex layout: stride %d, max vertex %d", geom.VertexStride, geom.MaxVertex)
	}
	if !geom.NoDuplicateAnyHit {
		t.Fatal("expected the no-duplicate-any-hit flag to be set")
	}

	rng := input.Ranges[0]
	if rng.PrimitiveCount != 100 {
		t.Fatalf("expected 100 triangles for 300 indices; got %d", rng.PrimitiveCount)
	}
	if rng.PrimitiveOffset != 0 || rng.FirstVertex != 0 || rng.TransformOffset != 0 {
		t.Fatalf("expected zero offsets; got %+v", rng)
	}
}

func TestAABBGeometry(t *testing.T) {
	input := AABBGeometry(0x3000, 24, 10)

	geom := input.Geometries[0]
	if geom.Kind != GeometryAABBs {
		t.Fatalf("expected aabb geometry kind; got %d", geom.Kind)
	}
	if geom.AABBAddress != 0x3000 || geom.AABBStride != 24 {
		t.Fatalf("unexpected aabb buffer layout: %#x stride %d", geom.AABBAddress, geom.AABBStride)
	}
	if !geom.NoDuplicateAnyHit {
		t.Fatal("expected the no-duplicate-any-hit flag to be set")
	}

	if input.Ranges[0].PrimitiveCount != 10 {
		t.Fatalf("expected 10 primitives; got %d", input.Ranges[0].PrimitiveCount)
	}
}
