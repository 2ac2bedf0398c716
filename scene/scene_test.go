package scene

import (
	"testing"

	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

func TestDemoScene(t *testing.T) {
	sc := Demo(65)

	if len(sc.Meshes) == 0 {
		t.Fatal("expected demo scene to contain meshes")
	}
	if len(sc.Instances) == 0 {
		t.Fatal("expected demo scene to contain instances")
	}
	if len(sc.Aabbs) == 0 {
		t.Fatal("expected demo scene to contain procedural primitives")
	}
	if sc.Camera == nil {
		t.Fatal("expected demo scene to define a camera")
	}

	for idx, inst := range sc.Instances {
		if int(inst.MeshIndex) >= len(sc.Meshes) {
			t.Fatalf("instance %d references unknown mesh %d", idx, inst.MeshIndex)
		}
	}

	for idx, aabb := range sc.Aabbs {
		for axis := 0; axis < 3; axis++ {
			if aabb.Min[axis] >= aabb.Max[axis] {
				t.Fatalf("aabb %d has inverted bounds on axis %d", idx, axis)
			}
		}
	}
}

func TestMeshIndicesInRange(t *testing.T) {
	sc := Demo(65)

	for _, mesh := range sc.Meshes {
		if len(mesh.Indices)%3 != 0 {
			t.Fatalf("mesh %q index count %d is not a multiple of 3", mesh.Name, len(mesh.Indices))
		}
		for _, index := range mesh.Indices {
			if int(index) >= len(mesh.Vertices) {
				t.Fatalf("mesh %q references vertex %d out of %d", mesh.Name, index, len(mesh.Vertices))
			}
		}
	}
}

func TestCameraUpdateClearsDeltas(t *testing.T) {
	cam := NewCamera(65)
	cam.Position = types.Vec3{0, 1, 5}
	cam.LookAt = types.Vec3{0, 0, 0}

	cam.Pitch = 0.1
	cam.Yaw = -0.2
	cam.Update()

	if cam.Pitch != 0 || cam.Yaw != 0 {
		t.Fatalf("expected pitch/yaw deltas to be cleared after update; got %f/%f", cam.Pitch, cam.Yaw)
	}
}
