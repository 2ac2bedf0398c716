package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Descriptors owns the ray tracing descriptor set: binding 0 holds the top
// level acceleration structure, binding 1 the storage image rays write to.
type Descriptors struct {
	device *Device

	pool   vk.DescriptorPool
	layout vk.DescriptorSetLayout
	set    vk.DescriptorSet
}

// Create the descriptor pool, layout and set, then point them at the given
// top level structure and output image view.
func NewDescriptors(device *Device, tlas vk.AccelerationStructure, outputView vk.ImageView) (*Descriptors, error) {
	d := &Descriptors{device: device}

	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeAccelerationStructure,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageRaygenBit | vk.ShaderStageClosestHitBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageRaygenBit),
		},
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if ret := vk.CreateDescriptorSetLayout(device.handle, &layoutInfo, nil, &d.layout); ret != vk.Success {
		return nil, fmt.Errorf("vulkan device (%s): could not create rt descriptor layout: %s", device.Name, vk.Error(ret))
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeAccelerationStructure, DescriptorCount: 1},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 1},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if ret := vk.CreateDescriptorPool(device.handle, &poolInfo, nil, &d.pool); ret != vk.Success {
		d.Destroy()
		return nil, fmt.Errorf("vulkan device (%s): could not create rt descriptor pool: %s", device.Name, vk.Error(ret))
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if ret := vk.AllocateDescriptorSets(device.handle, &allocInfo, &sets[0]); ret != vk.Success {
		d.Destroy()
		return nil, fmt.Errorf("vulkan device (%s): could not allocate rt descriptor set: %s", device.Name, vk.Error(ret))
	}
	d.set = sets[0]

	d.writeAccelerationStructure(tlas)
	d.UpdateOutputImage(outputView)

	return d, nil
}

func (d *Descriptors) writeAccelerationStructure(tlas vk.AccelerationStructure) {
	structs := []vk.AccelerationStructure{tlas}
	asInfo := writeDescriptorSetAccelerationStructure{
		SType:                      uint32(vk.StructureTypeWriteDescriptorSetAccelerationStructure),
		AccelerationStructureCount: 1,
		PAccelerationStructures:    &structs[0],
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		PNext:           unsafe.Pointer(&asInfo),
		DstSet:          d.set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeAccelerationStructure,
	}
	vk.UpdateDescriptorSets(d.device.handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// Point binding 1 at the given output image view. Called at creation and
// again whenever the window is resized; rewriting the same view is a no-op
// as the write fully replaces the previous descriptor content.
func (d *Descriptors) UpdateOutputImage(outputView vk.ImageView) {
	imageInfo := vk.DescriptorImageInfo{
		ImageView:   outputView,
		ImageLayout: vk.ImageLayoutGeneral,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          d.set,
		DstBinding:      1,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}
	vk.UpdateDescriptorSets(d.device.handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// Rewrite binding 0 after a top level rebuild replaced the structure.
func (d *Descriptors) UpdateAccelerationStructure(tlas vk.AccelerationStructure) {
	d.writeAccelerationStructure(tlas)
}

// Layout returns the descriptor set layout.
func (d *Descriptors) Layout() vk.DescriptorSetLayout {
	return d.layout
}

// Set returns the descriptor set.
func (d *Descriptors) Set() vk.DescriptorSet {
	return d.set
}

// Release pool and layout. Idempotent.
func (d *Descriptors) Destroy() {
	if d.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.device.handle, d.pool, nil)
		d.pool = vk.NullDescriptorPool
	}
	if d.layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(d.device.handle, d.layout, nil)
		d.layout = vk.NullDescriptorSetLayout
	}
	d.set = vk.NullDescriptorSet
}
