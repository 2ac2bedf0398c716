package vulkan

import (
	"fmt"
	"path/filepath"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

const depthFormat = vk.FormatD32Sfloat

// rasterPush is the per-draw push constant block of the rasterized path.
// The instance index selects the per-instance record in the scene
// descriptor set.
type rasterPush struct {
	Transform      types.Mat4
	LightPosition  types.Vec3
	LightIntensity float32
	LightType      int32
	InstanceIndex  uint32
}

const rasterPushSize = uint32(unsafe.Sizeof(rasterPush{}))

// Raster renders the scene through the conventional graphics pipeline.
// It draws into the same offscreen image the ray traced path writes to
// and shares the scene descriptor set with it.
type Raster struct {
	device *Device
	logger log.Logger

	renderPass  vk.RenderPass
	layout      vk.PipelineLayout
	pipeline    vk.Pipeline
	framebuffer vk.Framebuffer

	depthImage  vk.Image
	depthMemory vk.DeviceMemory
	depthView   vk.ImageView

	extent vk.Extent2D
}

// Create the render pass and graphics pipeline for the rasterized path.
// colorFormat must match the offscreen image both paths render into.
func NewRaster(device *Device, sceneLayout vk.DescriptorSetLayout, colorFormat vk.Format, shaderDir string) (*Raster, error) {
	r := &Raster{
		device: device,
		logger: log.New("raster"),
	}

	if err := r.createRenderPass(colorFormat); err != nil {
		return nil, err
	}
	if err := r.createPipeline(sceneLayout, shaderDir); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *Raster) createRenderPass(colorFormat vk.Format) error {
	attachments := []vk.AttachmentDescription{
		{
			Format:        colorFormat,
			Samples:       vk.SampleCount1Bit,
			LoadOp:        vk.AttachmentLoadOpClear,
			StoreOp:       vk.AttachmentStoreOpStore,
			InitialLayout: vk.ImageLayoutUndefined,
			FinalLayout:   vk.ImageLayoutGeneral,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}
	depthRef := vk.AttachmentReference{Attachment: 1, Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       []vk.AttachmentReference{colorRef},
		PDepthStencilAttachment: &depthRef,
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	if ret := vk.CreateRenderPass(r.device.handle, &createInfo, nil, &r.renderPass); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create raster render pass: %s", r.device.Name, vk.Error(ret))
	}
	return nil
}

func (r *Raster) createPipeline(sceneLayout vk.DescriptorSetLayout, shaderDir string) error {
	vertModule, err := loadShaderModule(r.device, filepath.Join(shaderDir, "vert_shader.vert.spv"))
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(r.device.handle, vertModule, nil)

	fragModule, err := loadShaderModule(r.device, filepath.Join(shaderDir, "frag_shader.frag.spv"))
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(r.device.handle, fragModule, nil)

	pushRange := vk.PushConstantRange{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		Size:       rasterPushSize,
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{sceneLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushRange},
	}
	if ret := vk.CreatePipelineLayout(r.device.handle, &layoutInfo, nil, &r.layout); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create raster pipeline layout: %s", r.device.Name, vk.Error(ret))
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  "main\x00",
		},
	}

	vertexBinding := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(scene.VertexStride),
		InputRate: vk.VertexInputRateVertex,
	}
	vertexAttrs := []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(scene.Vertex{}.Position))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(scene.Vertex{}.Normal))},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(scene.Vertex{}.Color))},
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{vertexBinding},
		VertexAttributeDescriptionCount: uint32(len(vertexAttrs)),
		PVertexAttributeDescriptions:    vertexAttrs,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	// Viewport and scissor are dynamic so a resize does not rebuild the
	// pipeline.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.True,
		DepthWriteEnable: vk.True,
		DepthCompareOp:   vk.CompareOpLessOrEqual,
	}
	blendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
			vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendAttachment},
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              r.layout,
		RenderPass:          r.renderPass,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(r.device.handle, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines)
	if ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create raster pipeline: %s", r.device.Name, vk.Error(ret))
	}
	r.pipeline = pipelines[0]
	return nil
}

// Recreate the depth attachment and framebuffer for a new output extent.
// Called at startup and after every resize.
func (r *Raster) Resize(extent vk.Extent2D, colorView vk.ImageView) error {
	r.releaseFramebuffer()

	imageInfo := vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		ImageType:   vk.ImageType2d,
		Format:      depthFormat,
		Extent:      vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	}
	if ret := vk.CreateImage(r.device.handle, &imageInfo, nil, &r.depthImage); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create depth image: %s", r.device.Name, vk.Error(ret))
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(r.device.handle, r.depthImage, &memReq)
	memReq.Deref()

	typeIndex, err := r.device.MemoryTypeIndex(memReq.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	if ret := vk.AllocateMemory(r.device.handle, &allocInfo, nil, &r.depthMemory); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not allocate depth image memory: %s", r.device.Name, vk.Error(ret))
	}
	if ret := vk.BindImageMemory(r.device.handle, r.depthImage, r.depthMemory, 0); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not bind depth image memory: %s", r.device.Name, vk.Error(ret))
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    r.depthImage,
		ViewType: vk.ImageViewType2d,
		Format:   depthFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if ret := vk.CreateImageView(r.device.handle, &viewInfo, nil, &r.depthView); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create depth image view: %s", r.device.Name, vk.Error(ret))
	}

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      r.renderPass,
		AttachmentCount: 2,
		PAttachments:    []vk.ImageView{colorView, r.depthView},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	if ret := vk.CreateFramebuffer(r.device.handle, &fbInfo, nil, &r.framebuffer); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create raster framebuffer: %s", r.device.Name, vk.Error(ret))
	}

	r.extent = extent
	return nil
}

// Record one rasterized frame: a render pass over the offscreen image
// with one indexed draw per scene instance.
func (r *Raster) Draw(cmd vk.CommandBuffer, res *SceneResources, instances []scene.Instance, light scene.Light, clearColor types.Vec4) {
	var clear [2]vk.ClearValue
	clear[0].SetColor(clearColor[:])
	clear[1].SetDepthStencil(1, 0)

	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      r.renderPass,
		Framebuffer:     r.framebuffer,
		RenderArea:      vk.Rect2D{Extent: r.extent},
		ClearValueCount: 2,
		PClearValues:    clear[:],
	}
	vk.CmdBeginRenderPass(cmd, &beginInfo, vk.SubpassContentsInline)

	viewport := vk.Viewport{
		Width:    float32(r.extent.Width),
		Height:   float32(r.extent.Height),
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: r.extent}})

	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, r.pipeline)
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, r.layout,
		0, 1, []vk.DescriptorSet{res.Set()}, 0, nil)

	for idx, inst := range instances {
		mesh := res.Meshes[inst.MeshIndex]

		push := rasterPush{
			Transform:      inst.Transform,
			LightPosition:  light.Position,
			LightIntensity: light.Intensity,
			LightType:      light.Type,
			InstanceIndex:  uint32(idx),
		}
		vk.CmdPushConstants(cmd, r.layout,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
			0, rasterPushSize, unsafe.Pointer(&push))

		vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{mesh.Vertex.Handle()}, []vk.DeviceSize{0})
		vk.CmdBindIndexBuffer(cmd, mesh.Index.Handle(), 0, vk.IndexTypeUint32)
		vk.CmdDrawIndexed(cmd, mesh.IndexCount, 1, 0, 0, 0)
	}

	vk.CmdEndRenderPass(cmd)
}

func (r *Raster) releaseFramebuffer() {
	if r.framebuffer != vk.NullFramebuffer {
		vk.DestroyFramebuffer(r.device.handle, r.framebuffer, nil)
		r.framebuffer = vk.NullFramebuffer
	}
	if r.depthView != vk.NullImageView {
		vk.DestroyImageView(r.device.handle, r.depthView, nil)
		r.depthView = vk.NullImageView
	}
	if r.depthImage != vk.NullImage {
		vk.DestroyImage(r.device.handle, r.depthImage, nil)
		r.depthImage = vk.NullImage
	}
	if r.depthMemory != vk.NullDeviceMemory {
		vk.FreeMemory(r.device.handle, r.depthMemory, nil)
		r.depthMemory = vk.NullDeviceMemory
	}
}

// Release the framebuffer, pipeline and render pass. Idempotent.
func (r *Raster) Destroy() {
	r.releaseFramebuffer()
	if r.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(r.device.handle, r.pipeline, nil)
		r.pipeline = vk.NullPipeline
	}
	if r.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(r.device.handle, r.layout, nil)
		r.layout = vk.NullPipelineLayout
	}
	if r.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(r.device.handle, r.renderPass, nil)
		r.renderPass = vk.NullRenderPass
	}
}
