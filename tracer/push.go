package tracer

import "github.com/skanti/vk-raytracing-tutorial-KHR/types"

// Light types understood by the shaders. The value selects the callable
// shader evaluated per sample.
const (
	LightTypePoint int32 = iota
	LightTypeSpot
	LightTypeInfinite
)

// PushConstants is the per-dispatch record copied to the device right
// before each trace call. The field order and sizes are the wire contract
// with the raygen, closest-hit, miss and callable stages; changing it
// requires a matching shader-side change.
type PushConstants struct {
	ClearColor           types.Vec4
	LightPosition        types.Vec3
	LightIntensity       float32
	LightDirection       types.Vec3
	LightSpotCutoff      float32
	LightSpotOuterCutoff float32
	LightType            int32
	Frame                int32
}

// Size in bytes of the PushConstants record as laid out on the device.
const PushConstantsSize = 60
