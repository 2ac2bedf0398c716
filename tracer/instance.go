package tracer

import "github.com/skanti/vk-raytracing-tutorial-KHR/types"

// Per-instance flags. Values match the device instance flag bits.
type InstanceFlags uint8

const (
	// Disable back-face culling for rays hitting this instance.
	TriangleFacingCullDisable InstanceFlags = 0x1

	// Force all geometry in the instance to be treated as opaque.
	ForceOpaque InstanceFlags = 0x4
)

// Instance places one bottom level acceleration structure into the scene.
type Instance struct {
	// Index of the BLAS this instance references, as returned by the
	// bottom level build.
	BlasIndex uint32

	// Instance-to-world transform.
	Transform types.Mat4

	// Application-defined index surfaced to hit shaders for resolving
	// per-instance metadata. Truncated to 24 bits on the device.
	CustomIndex uint32

	// Index of the hit group (within the hit region of the shader
	// binding table) that handles intersections on this instance.
	HitGroup uint32

	// Visibility mask; instances with a zero mask are never hit.
	Mask uint8

	Flags InstanceFlags
}
