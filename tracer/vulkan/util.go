package vulkan

import "unsafe"

// Reinterpret SPIR-V bytecode as the uint32 word slice the device expects.
// The byte length must be a multiple of 4, which holds for any valid
// SPIR-V blob.
func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}
