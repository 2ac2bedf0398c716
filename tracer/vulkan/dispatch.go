package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

// Dispatcher records the per-frame trace call. It owns the progressive
// accumulation state; camera motion between dispatches restarts
// accumulation via the frame counter sentinel.
type Dispatcher struct {
	pipeline *Pipeline
	table    *ShaderBindingTable
	desc     *Descriptors

	frame tracer.FrameState
	push  tracer.PushConstants
}

func NewDispatcher(pipeline *Pipeline, table *ShaderBindingTable, desc *Descriptors) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		table:    table,
		desc:     desc,
	}
}

// Force the next dispatch to restart accumulation. Called when lighting or
// clear color change without the camera moving.
func (disp *Dispatcher) ResetAccumulation() {
	disp.frame.Reset()
}

// The accumulation counter used by the most recent dispatch.
func (disp *Dispatcher) FrameCounter() int32 {
	return disp.frame.Counter()
}

// Record a trace dispatch covering the full output extent into cmd. The
// scene descriptor set is owned by the caller and bound alongside the ray
// tracing set. Any device-level failure here is fatal and surfaces when
// the command buffer is submitted.
func (disp *Dispatcher) Dispatch(cmd vk.CommandBuffer, extent vk.Extent2D, cam *scene.Camera, light scene.Light, clearColor types.Vec4, sceneSet vk.DescriptorSet) {
	counter := disp.frame.Update(cam.ViewMat, cam.FOV)

	disp.push = tracer.PushConstants{
		ClearColor:           clearColor,
		LightPosition:        light.Position,
		LightIntensity:       light.Intensity,
		LightDirection:       light.Direction,
		LightSpotCutoff:      light.SpotCutoff,
		LightSpotOuterCutoff: light.SpotOuterCutoff,
		LightType:            light.Type,
		Frame:                counter,
	}

	vk.CmdBindPipeline(cmd, vk.PipelineBindPointRayTracing, disp.pipeline.Handle())
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointRayTracing, disp.pipeline.Layout(),
		0, 2, []vk.DescriptorSet{disp.desc.Set(), sceneSet}, 0, nil)
	vk.CmdPushConstants(cmd, disp.pipeline.Layout(), pushConstantStages,
		0, tracer.PushConstantsSize, unsafe.Pointer(&disp.push))

	regions, err := disp.table.GetRegions()
	if err != nil {
		// Dispatch without a built table is a programming error upstream.
		panic(err)
	}
	khrCmdTraceRays(disp.pipeline.device, cmd, &regions, extent.Width, extent.Height)
}
