package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// cameraUniforms is the GPU layout of the camera matrices. The inverses
// let the raygen shader unproject pixel coordinates into world rays.
type cameraUniforms struct {
	View        types.Mat4
	Proj        types.Mat4
	ViewInverse types.Mat4
	ProjInverse types.Mat4
}

const cameraUniformsSize = int(unsafe.Sizeof(cameraUniforms{}))

// instanceData is the per-instance record the hit shaders index with the
// instance custom index. Geometry is reached through buffer device
// addresses so the descriptor set stays fixed no matter how many meshes
// the scene holds.
type instanceData struct {
	Transform     types.Mat4
	VertexAddress uint64
	IndexAddress  uint64
}

const instanceDataSize = int(unsafe.Sizeof(instanceData{}))

// SceneResources owns the device copies of the scene: one vertex and one
// index buffer per mesh, the procedural primitive buffer, the camera
// uniform buffer and the per-instance data buffer, plus the descriptor
// set that exposes the latter two to both render paths.
type SceneResources struct {
	device *Device
	logger log.Logger

	Meshes    []MeshBuffers
	AabbBuf   *Buffer
	AabbCount uint32

	cameraBuf   *Buffer
	instanceBuf *Buffer

	pool   vk.DescriptorPool
	layout vk.DescriptorSetLayout
	set    vk.DescriptorSet
}

// Upload the scene to the device and build its descriptor set. Geometry
// buffers carry acceleration structure input usage so bottom level builds
// can read them directly.
func NewSceneResources(device *Device, sc *scene.Scene) (*SceneResources, error) {
	r := &SceneResources{
		device: device,
		logger: log.New("scene"),
	}

	geomUsage := vk.BufferUsageFlags(
		vk.BufferUsageStorageBufferBit |
			vk.BufferUsageShaderDeviceAddressBit |
			vk.BufferUsageAccelerationStructureBuildInputReadOnlyBit)

	for idx, mesh := range sc.Meshes {
		vbuf := device.NewBuffer(fmt.Sprintf("vertices/%d", idx))
		vdata := unsafe.Slice((*byte)(unsafe.Pointer(&mesh.Vertices[0])), len(mesh.Vertices)*int(scene.VertexStride))
		if err := vbuf.AllocateAndWriteData(vdata, geomUsage|vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)); err != nil {
			r.Destroy()
			return nil, err
		}

		ibuf := device.NewBuffer(fmt.Sprintf("indices/%d", idx))
		idata := unsafe.Slice((*byte)(unsafe.Pointer(&mesh.Indices[0])), len(mesh.Indices)*4)
		if err := ibuf.AllocateAndWriteData(idata, geomUsage|vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)); err != nil {
			vbuf.Release()
			r.Destroy()
			return nil, err
		}

		r.Meshes = append(r.Meshes, MeshBuffers{
			Vertex:      vbuf,
			Index:       ibuf,
			VertexCount: uint32(len(mesh.Vertices)),
			IndexCount:  uint32(len(mesh.Indices)),
		})
	}

	if len(sc.Aabbs) > 0 {
		r.AabbBuf = device.NewBuffer("aabbs")
		adata := unsafe.Slice((*byte)(unsafe.Pointer(&sc.Aabbs[0])), len(sc.Aabbs)*int(scene.AabbStride))
		if err := r.AabbBuf.AllocateAndWriteData(adata, geomUsage); err != nil {
			r.Destroy()
			return nil, err
		}
		r.AabbCount = uint32(len(sc.Aabbs))
	}

	// The camera buffer is host visible since it is rewritten every frame.
	r.cameraBuf = device.NewBuffer("camera")
	err := r.cameraBuf.Allocate(cameraUniformsSize,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		r.Destroy()
		return nil, err
	}

	records := make([]instanceData, len(sc.Instances))
	for idx, inst := range sc.Instances {
		records[idx] = instanceData{
			Transform:     inst.Transform,
			VertexAddress: r.Meshes[inst.MeshIndex].Vertex.DeviceAddress(),
			IndexAddress:  r.Meshes[inst.MeshIndex].Index.DeviceAddress(),
		}
	}
	r.instanceBuf = device.NewBuffer("instances")
	rdata := unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), len(records)*instanceDataSize)
	if err = r.instanceBuf.AllocateAndWriteData(rdata, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)); err != nil {
		r.Destroy()
		return nil, err
	}

	if err = r.createDescriptors(); err != nil {
		r.Destroy()
		return nil, err
	}

	r.logger.Infof("uploaded scene: %d meshes, %d instances, %d procedural primitives", len(sc.Meshes), len(sc.Instances), r.AabbCount)
	return r, nil
}

func (r *SceneResources) createDescriptors() error {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit |
				vk.ShaderStageRaygenBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit |
				vk.ShaderStageFragmentBit |
				vk.ShaderStageClosestHitBit |
				vk.ShaderStageAnyHitBit |
				vk.ShaderStageIntersectionBit),
		},
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if ret := vk.CreateDescriptorSetLayout(r.device.handle, &layoutInfo, nil, &r.layout); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create scene descriptor layout: %s", r.device.Name, vk.Error(ret))
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if ret := vk.CreateDescriptorPool(r.device.handle, &poolInfo, nil, &r.pool); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create scene descriptor pool: %s", r.device.Name, vk.Error(ret))
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{r.layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if ret := vk.AllocateDescriptorSets(r.device.handle, &allocInfo, &sets[0]); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not allocate scene descriptor set: %s", r.device.Name, vk.Error(ret))
	}
	r.set = sets[0]

	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          r.set,
			DstBinding:      0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: r.cameraBuf.Handle(),
				Range:  vk.DeviceSize(cameraUniformsSize),
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          r.set,
			DstBinding:      1,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: r.instanceBuf.Handle(),
				Range:  vk.DeviceSize(r.instanceBuf.Size()),
			}},
		},
	}
	vk.UpdateDescriptorSets(r.device.handle, uint32(len(writes)), writes, 0, nil)

	return nil
}

// Push the current camera matrices to the uniform buffer. Called once per
// frame before recording either render path.
func (r *SceneResources) UpdateCamera(cam *scene.Camera) error {
	u := cameraUniforms{
		View:        cam.ViewMat,
		Proj:        cam.ProjMat,
		ViewInverse: cam.ViewMat.Inv(),
		ProjInverse: cam.ProjMat.Inv(),
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&u)), cameraUniformsSize)
	return r.cameraBuf.WriteData(data, 0)
}

// Layout returns the scene descriptor set layout shared by both paths.
func (r *SceneResources) Layout() vk.DescriptorSetLayout {
	return r.layout
}

// Set returns the scene descriptor set.
func (r *SceneResources) Set() vk.DescriptorSet {
	return r.set
}

// Release all scene buffers and descriptors. Idempotent.
func (r *SceneResources) Destroy() {
	if r.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(r.device.handle, r.pool, nil)
		r.pool = vk.NullDescriptorPool
	}
	if r.layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(r.device.handle, r.layout, nil)
		r.layout = vk.NullDescriptorSetLayout
	}
	r.set = vk.NullDescriptorSet

	for _, mesh := range r.Meshes {
		mesh.Vertex.Release()
		mesh.Index.Release()
	}
	r.Meshes = nil
	if r.AabbBuf != nil {
		r.AabbBuf.Release()
		r.AabbBuf = nil
	}
	if r.cameraBuf != nil {
		r.cameraBuf.Release()
		r.cameraBuf = nil
	}
	if r.instanceBuf != nil {
		r.instanceBuf.Release()
		r.instanceBuf = nil
	}
}
