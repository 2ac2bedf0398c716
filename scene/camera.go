package scene

import (
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// The camera type controls the scene viewpoint. The view matrix together
// with the field of view is what the frame dispatcher compares each frame
// to decide whether progressive accumulation must restart.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3
	Pitch    float32
	Yaw      float32

	ViewMat types.Mat4
	ProjMat types.Mat4

	// Camera FOV in degrees.
	FOV float32
}

func NewCamera(fov float32) *Camera {
	return &Camera{
		ViewMat:  types.Ident4(),
		ProjMat:  types.Ident4(),
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
	}
}

// Setup camera projection matrix.
func (c *Camera) SetupProjection(aspect float32) {
	c.ProjMat = types.Perspective4(c.FOV, aspect, 0.1, 1000)
	c.Update()
}

// Update camera matrices after a position or orientation change. Pending
// yaw/pitch deltas are folded into the look-at direction and cleared.
func (c *Camera) Update() {
	dir := c.LookAt.Sub(c.Position).Normalize()
	pitchAxis := dir.Cross(c.Up)
	pitchQuat := types.QuatFromAxisAngle(pitchAxis, c.Pitch)
	yawQuat := types.QuatFromAxisAngle(c.Up, c.Yaw)

	orientQuat := pitchQuat.Mul(yawQuat).Normalize()

	dir = orientQuat.Rotate(dir)
	c.LookAt = c.Position.Add(dir)
	c.Pitch = 0
	c.Yaw = 0

	c.ViewMat = types.LookAtV(c.Position, c.LookAt, c.Up)
}

// Move the camera along its local axes.
func (c *Camera) Move(forward, right float32) {
	dir := c.LookAt.Sub(c.Position).Normalize()
	side := dir.Cross(c.Up).Normalize()

	delta := dir.Mul(forward).Add(side.Mul(right))
	c.Position = c.Position.Add(delta)
	c.LookAt = c.LookAt.Add(delta)
	c.Update()
}
