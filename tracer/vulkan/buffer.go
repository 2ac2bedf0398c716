package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Buffer wraps a device buffer and its memory allocation.
type Buffer struct {
	device *Device

	// A name for identifying the buffer in diagnostics.
	name string

	handle vk.Buffer
	memory vk.DeviceMemory

	// Allocated size.
	size int

	hostVisible bool
}

// Create an unallocated buffer handle bound to this device.
func (d *Device) NewBuffer(name string) *Buffer {
	return &Buffer{device: d, name: name}
}

// Get buffer size.
func (b *Buffer) Size() int {
	return b.size
}

// Get the native buffer handle.
func (b *Buffer) Handle() vk.Buffer {
	return b.handle
}

// Get the buffer device address. The buffer must have been allocated with
// the shader-device-address usage bit.
func (b *Buffer) DeviceAddress() uint64 {
	return khrGetBufferDeviceAddress(b.device, b.handle)
}

// Allocate a buffer with the given size, usage and memory property flags.
// Any previous allocation is released first.
func (b *Buffer) Allocate(size int, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) error {
	b.Release()

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if ret := vk.CreateBuffer(b.device.handle, &createInfo, nil, &handle); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create buffer %s of size %d: %s", b.device.Name, b.name, size, vk.Error(ret))
	}
	b.handle = handle

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device.handle, b.handle, &memReq)
	memReq.Deref()

	typeIndex, err := b.device.MemoryTypeIndex(memReq.MemoryTypeBits, props)
	if err != nil {
		b.Release()
		return err
	}

	// Buffers that hand out device addresses need the allocation flag as
	// well as the buffer usage bit.
	allocFlags := vk.MemoryAllocateFlagsInfo{
		SType: vk.StructureTypeMemoryAllocateFlagsInfo,
	}
	if usage&vk.BufferUsageFlags(vk.BufferUsageShaderDeviceAddressBit) != 0 {
		allocFlags.Flags = vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(&allocFlags),
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if ret := vk.AllocateMemory(b.device.handle, &allocInfo, nil, &memory); ret != vk.Success {
		b.Release()
		return fmt.Errorf("vulkan device (%s): could not allocate %d bytes for buffer %s: %s", b.device.Name, memReq.Size, b.name, vk.Error(ret))
	}
	b.memory = memory

	if ret := vk.BindBufferMemory(b.device.handle, b.handle, b.memory, 0); ret != vk.Success {
		b.Release()
		return fmt.Errorf("vulkan device (%s): could not bind memory for buffer %s: %s", b.device.Name, b.name, vk.Error(ret))
	}

	b.size = size
	b.hostVisible = props&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0

	return nil
}

// Write data to a host-visible buffer at the given byte offset.
func (b *Buffer) WriteData(data []byte, offset int) error {
	if !b.hostVisible {
		return fmt.Errorf("vulkan device (%s): buffer %s is not host visible", b.device.Name, b.name)
	}
	if offset+len(data) > b.size {
		return fmt.Errorf("vulkan device (%s): insufficient buffer space (%d) in %s for copying data of length %d", b.device.Name, b.size, b.name, len(data))
	}

	var ptr unsafe.Pointer
	if ret := vk.MapMemory(b.device.handle, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not map buffer %s: %s", b.device.Name, b.name, vk.Error(ret))
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(b.device.handle, b.memory)

	return nil
}

// Allocate a device-local buffer with the given usage and upload the data
// through a transient staging buffer. Blocks until the copy completes.
func (b *Buffer) AllocateAndWriteData(data []byte, usage vk.BufferUsageFlags) error {
	err := b.Allocate(len(data),
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}

	staging := b.device.NewBuffer(b.name + "-staging")
	defer staging.Release()

	err = staging.Allocate(len(data),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return err
	}
	if err = staging.WriteData(data, 0); err != nil {
		return err
	}

	return b.device.OneShot(func(cmd vk.CommandBuffer) error {
		region := vk.BufferCopy{Size: vk.DeviceSize(len(data))}
		vk.CmdCopyBuffer(cmd, staging.handle, b.handle, 1, []vk.BufferCopy{region})
		return nil
	})
}

// Release the buffer and its memory. Idempotent.
func (b *Buffer) Release() {
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.device.handle, b.handle, nil)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.device.handle, b.memory, nil)
		b.memory = vk.NullDeviceMemory
	}
	b.size = 0
}
