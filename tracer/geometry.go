package tracer

// The kind of geometry described by a GeometryInput.
type GeometryKind uint8

const (
	// Indexed triangle mesh geometry.
	GeometryTriangles GeometryKind = iota

	// Procedural geometry described by a list of axis-aligned bounding
	// boxes; intersections are resolved by an intersection shader.
	GeometryAABBs
)

// Flags controlling how the device builds an acceleration structure.
type BuildFlags uint8

const (
	PreferFastTrace BuildFlags = 1 << iota
	PreferFastBuild
	AllowCompaction
)

// GeometryInput describes one geometry record that is fed into a bottom
// level acceleration structure build. All buffer references are device
// addresses; the referenced buffers must outlive the build.
type GeometryInput struct {
	Kind GeometryKind

	// Triangle mesh fields. Indices are 32-bit.
	VertexAddress uint64
	VertexStride  uint64
	MaxVertex     uint32
	IndexAddress  uint64

	// AABB fields. Each element is a pair of min/max corners.
	AABBAddress uint64
	AABBStride  uint64

	// Suppress duplicate any-hit invocations for the same ray/primitive
	// pair. Always set by the adapter constructors.
	NoDuplicateAnyHit bool
}

// BuildRange selects the primitives of a GeometryInput that participate in
// a build.
type BuildRange struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

// BlasInput groups the geometry records that are built together into a
// single bottom level acceleration structure.
type BlasInput struct {
	Geometries []GeometryInput
	Ranges     []BuildRange
}

// Convert an indexed triangle mesh into a BLAS input. indexCount must be a
// multiple of 3; this is a caller contract and is not validated here.
func TriangleGeometry(vertexAddress, vertexStride uint64, maxVertex uint32, indexAddress uint64, indexCount uint32) BlasInput {
	geom := GeometryInput{
		Kind:              GeometryTriangles,
		VertexAddress:     vertexAddress,
		VertexStride:      vertexStride,
		MaxVertex:         maxVertex,
		IndexAddress:      indexAddress,
		NoDuplicateAnyHit: true,
	}

	rng := BuildRange{
		PrimitiveCount: indexCount / 3,
	}

	return BlasInput{
		Geometries: []GeometryInput{geom},
		Ranges:     []BuildRange{rng},
	}
}

// Convert a buffer of axis-aligned bounding boxes into a BLAS input for
// procedural geometry.
func AABBGeometry(dataAddress, stride uint64, count uint32) BlasInput {
	geom := GeometryInput{
		Kind:              GeometryAABBs,
		AABBAddress:       dataAddress,
		AABBStride:        stride,
		NoDuplicateAnyHit: true,
	}

	rng := BuildRange{
		PrimitiveCount: count,
	}

	return BlasInput{
		Geometries: []GeometryInput{geom},
		Ranges:     []BuildRange{rng},
	}
}
