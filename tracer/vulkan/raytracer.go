package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// MeshBuffers references the device-resident geometry of one mesh. The
// buffers are owned by the caller and must outlive the acceleration
// structures built over them.
type MeshBuffers struct {
	Vertex *Buffer
	Index  *Buffer

	VertexCount uint32
	IndexCount  uint32
}

// Raytracer ties the acceleration structure builder, pipeline, shader
// binding table and frame dispatcher together into the ray traced render
// path.
type Raytracer struct {
	device *Device
	logger log.Logger

	builder    *Builder
	desc       *Descriptors
	pipeline   *Pipeline
	table      *ShaderBindingTable
	dispatcher *Dispatcher

	// BLAS index of the procedural primitive set; -1 when the scene has
	// none.
	aabbBlasIndex int
}

func NewRaytracer(device *Device) *Raytracer {
	return &Raytracer{
		device:        device,
		logger:        log.New("raytracer"),
		builder:       NewBuilder(device),
		table:         NewShaderBindingTable(device),
		aabbBlasIndex: -1,
	}
}

// Build one bottom level structure per mesh, in mesh order, plus one for
// the procedural primitive set when it is non-empty. Bottom level
// structures are built once and reused for the lifetime of the scene.
func (r *Raytracer) CreateBottomLevelAS(meshes []MeshBuffers, aabbs *Buffer, aabbCount uint32) error {
	inputs := make([]tracer.BlasInput, 0, len(meshes)+1)
	for _, mesh := range meshes {
		inputs = append(inputs, tracer.TriangleGeometry(
			mesh.Vertex.DeviceAddress(), scene.VertexStride, mesh.VertexCount,
			mesh.Index.DeviceAddress(), mesh.IndexCount))
	}

	// Empty procedural sets add neither a BLAS nor an instance.
	if aabbCount > 0 {
		inputs = append(inputs, tracer.AABBGeometry(
			aabbs.DeviceAddress(), scene.AabbStride, aabbCount))
	}

	indices, err := r.builder.BuildBottomLevel(inputs, tracer.PreferFastTrace|tracer.AllowCompaction)
	if err != nil {
		return err
	}
	if aabbCount > 0 {
		r.aabbBlasIndex = indices[len(indices)-1]
	}
	return nil
}

// Build the top level structure over the scene instances; the procedural
// BLAS, when present, is appended as one extra instance routed to hit
// group 1. A rebuild fully replaces the previous structure and rewrites
// the acceleration structure descriptor.
func (r *Raytracer) CreateTopLevelAS(instances []scene.Instance) error {
	tlasInstances := make([]tracer.Instance, 0, len(instances)+1)
	for idx, inst := range instances {
		tlasInstances = append(tlasInstances, tracer.Instance{
			BlasIndex:   inst.MeshIndex,
			Transform:   inst.Transform,
			CustomIndex: uint32(idx),
			HitGroup:    0,
			Mask:        0xff,
			Flags:       tracer.TriangleFacingCullDisable,
		})
	}

	if r.aabbBlasIndex >= 0 {
		tlasInstances = append(tlasInstances, tracer.Instance{
			BlasIndex:   uint32(r.aabbBlasIndex),
			Transform:   types.Ident4(),
			CustomIndex: uint32(r.aabbBlasIndex),
			HitGroup:    1,
			Mask:        0xff,
			Flags:       tracer.TriangleFacingCullDisable,
		})
	}

	if err := r.builder.BuildTopLevel(tlasInstances, tracer.PreferFastTrace); err != nil {
		return err
	}

	if r.desc != nil {
		tlas, err := r.builder.TopLevelHandle()
		if err != nil {
			return err
		}
		r.desc.UpdateAccelerationStructure(tlas)
	}
	return nil
}

// Create the ray tracing descriptor set binding the top level structure
// and the output image. Must follow the top level build.
func (r *Raytracer) CreateDescriptorSet(outputView vk.ImageView) error {
	tlas, err := r.builder.TopLevelHandle()
	if err != nil {
		return err
	}

	desc, err := NewDescriptors(r.device, tlas, outputView)
	if err != nil {
		return err
	}
	r.desc = desc
	return nil
}

// Rewrite the output image descriptor after a resize recreated the image.
func (r *Raytracer) UpdateDescriptorSet(outputView vk.ImageView) {
	r.desc.UpdateOutputImage(outputView)
	r.dispatcher.ResetAccumulation()
}

// Assemble the ray tracing pipeline and build the shader binding table
// over its group ordering. The scene descriptor layout is shared with the
// rasterized path.
func (r *Raytracer) CreatePipeline(sceneLayout vk.DescriptorSetLayout, cfg PipelineConfig) error {
	pipeline, err := NewPipeline(r.device, r.desc.Layout(), sceneLayout, cfg)
	if err != nil {
		return err
	}

	if err = r.table.Build(pipeline); err != nil {
		pipeline.Destroy()
		return err
	}

	r.pipeline = pipeline
	r.dispatcher = NewDispatcher(pipeline, r.table, r.desc)
	return nil
}

// Record the trace dispatch for the current frame.
func (r *Raytracer) Raytrace(cmd vk.CommandBuffer, extent vk.Extent2D, cam *scene.Camera, light scene.Light, clearColor types.Vec4, sceneSet vk.DescriptorSet) {
	r.dispatcher.Dispatch(cmd, extent, cam, light, clearColor, sceneSet)
}

// Restart progressive accumulation on the next dispatch.
func (r *Raytracer) ResetAccumulation() {
	if r.dispatcher != nil {
		r.dispatcher.ResetAccumulation()
	}
}

// The accumulation counter of the most recent dispatch.
func (r *Raytracer) FrameCounter() int32 {
	return r.dispatcher.FrameCounter()
}

// Release everything in dependency order: shader binding table and
// pipeline before the descriptor layout, acceleration structures before
// their buffers. Idempotent.
func (r *Raytracer) Destroy() {
	r.table.Destroy()
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.desc != nil {
		r.desc.Destroy()
		r.desc = nil
	}
	r.builder.Destroy()
}
