package vulkan

import (
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// packedInstance mirrors the 64-byte device instance record consumed by
// top level builds: a row-major 3x4 transform, two packed words (24-bit
// custom index + 8-bit mask, 24-bit SBT offset + 8-bit flags) and the BLAS
// device address.
type packedInstance struct {
	transform          [12]float32
	customIndexAndMask uint32
	hitGroupAndFlags   uint32
	blasReference      uint64
}

const packedInstanceSize = 64

// Convert a column-major 4x4 transform to the row-major 3x4 device layout.
func packTransform(m types.Mat4) [12]float32 {
	var out [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = m[col*4+row]
		}
	}
	return out
}

// Pack an instance for the device. The custom index and hit group are
// truncated to their 24-bit device fields.
func packInstance(inst tracer.Instance, blasAddress uint64) packedInstance {
	return packedInstance{
		transform:          packTransform(inst.Transform),
		customIndexAndMask: inst.CustomIndex&0x00ffffff | uint32(inst.Mask)<<24,
		hitGroupAndFlags:   inst.HitGroup&0x00ffffff | uint32(inst.Flags)<<24,
		blasReference:      blasAddress,
	}
}
