package scene

import (
	"unsafe"

	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// Vertex is the per-vertex layout shared by the rasterized and ray traced
// paths. Hit shaders re-read vertices through the buffer device address, so
// the stride must match the shader-side declaration.
type Vertex struct {
	Position types.Vec3
	Normal   types.Vec3
	Color    types.Vec3
}

// Per-vertex stride in bytes.
const VertexStride = uint64(unsafe.Sizeof(Vertex{}))

// Mesh holds indexed triangle geometry. Indices are 32-bit and their count
// is always a multiple of 3.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Aabb is one procedural primitive bound: min and max corners of an
// axis-aligned box. The intersection shader resolves the actual surface.
type Aabb struct {
	Min types.Vec3
	Max types.Vec3
}

// Per-element stride of the procedural primitive buffer in bytes.
const AabbStride = uint64(unsafe.Sizeof(Aabb{}))

// Instance places a mesh into the scene.
type Instance struct {
	// Index into Scene.Meshes.
	MeshIndex uint32

	Transform types.Mat4
}

// Light parameters shared with the shaders through push constants.
type Light struct {
	Position        types.Vec3
	Intensity       float32
	Direction       types.Vec3
	Type            int32
	SpotCutoff      float32
	SpotOuterCutoff float32
}

// Scene is the upstream contract consumed by the renderer: raw triangle
// meshes, instance placements and an optional set of procedural primitives.
type Scene struct {
	Meshes    []Mesh
	Instances []Instance

	// Procedural primitives; may be empty, in which case no procedural
	// BLAS or instance is created.
	Aabbs []Aabb

	Camera     *Camera
	Light      Light
	ClearColor types.Vec4
}

func cube(name string, color types.Vec3) Mesh {
	corners := []types.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	faces := [][5]int{
		// four corner indices plus the dominant normal axis
		{0, 3, 2, 1, 2}, {4, 5, 6, 7, 2},
		{0, 1, 5, 4, 1}, {3, 7, 6, 2, 1},
		{0, 4, 7, 3, 0}, {1, 2, 6, 5, 0},
	}
	normals := []types.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	mesh := Mesh{Name: name}
	for _, face := range faces {
		base := uint32(len(mesh.Vertices))
		normal := normals[face[4]]
		if corners[face[0]][face[4]] < 0 {
			normal = normal.Mul(-1)
		}
		for _, ci := range face[:4] {
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Position: corners[ci],
				Normal:   normal,
				Color:    color,
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return mesh
}

func plane(name string, halfSize float32, color types.Vec3) Mesh {
	return Mesh{
		Name: name,
		Vertices: []Vertex{
			{Position: types.Vec3{-halfSize, 0, -halfSize}, Normal: types.Vec3{0, 1, 0}, Color: color},
			{Position: types.Vec3{halfSize, 0, -halfSize}, Normal: types.Vec3{0, 1, 0}, Color: color},
			{Position: types.Vec3{halfSize, 0, halfSize}, Normal: types.Vec3{0, 1, 0}, Color: color},
			{Position: types.Vec3{-halfSize, 0, halfSize}, Normal: types.Vec3{0, 1, 0}, Color: color},
		},
		Indices: []uint32{0, 2, 1, 0, 3, 2},
	}
}

// Demo builds the default scene: a ground plane, two cubes and a grid of
// procedural spheres expressed as AABBs.
func Demo(fov float32) *Scene {
	sc := &Scene{
		Meshes: []Mesh{
			plane("ground", 12, types.Vec3{0.7, 0.7, 0.7}),
			cube("cube", types.Vec3{0.8, 0.2, 0.2}),
		},
		Instances: []Instance{
			{MeshIndex: 0, Transform: types.Ident4()},
			{MeshIndex: 1, Transform: types.Translate4(types.Vec3{-2.5, 1, 0})},
			{MeshIndex: 1, Transform: types.Translate4(types.Vec3{2.5, 1, 0}).Mul4(types.Scale4(0.5))},
		},
		Camera:     NewCamera(65),
		ClearColor: types.XYZW(0.53, 0.81, 0.92, 1),
		Light: Light{
			Position:  types.Vec3{6, 10, 4},
			Intensity: 100,
			Direction: types.Vec3{0, -1, 0},
			Type:      tracer.LightTypePoint,
		},
	}
	sc.Camera.FOV = fov
	sc.Camera.Position = types.Vec3{0, 4, 12}
	sc.Camera.LookAt = types.Vec3{0, 1, 0}

	// Sphere grid as procedural primitives.
	for x := 0; x < 5; x++ {
		for z := 0; z < 2; z++ {
			center := types.Vec3{float32(x)*2 - 4, 0.5, float32(z)*2 + 3}
			radius := float32(0.4)
			sc.Aabbs = append(sc.Aabbs, Aabb{
				Min: center.Sub(types.Vec3{radius, radius, radius}),
				Max: center.Add(types.Vec3{radius, radius, radius}),
			})
		}
	}

	return sc
}
