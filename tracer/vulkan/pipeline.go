package vulkan

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
)

// Shadow rays spawned from primary hits need one extra recursion level;
// deeper recursion is handled iteratively in the shaders.
const maxRecursionDepth = 2

// PipelineConfig names the compiled shader stages assembled into the ray
// tracing pipeline. Paths are relative to ShaderDir. An empty AnyHit path
// leaves the any-hit slot of the corresponding hit group unused.
type PipelineConfig struct {
	ShaderDir string

	Raygen     string
	Miss       string
	ShadowMiss string

	ClosestHit string
	AnyHit     string

	ProceduralClosestHit string
	ProceduralAnyHit     string
	Intersection         string

	// Callable light shaders in light-type order: point, spot, infinite.
	Callables []string
}

// DefaultPipelineConfig returns the stage file names produced by the
// shader build.
func DefaultPipelineConfig(shaderDir string) PipelineConfig {
	return PipelineConfig{
		ShaderDir:            shaderDir,
		Raygen:               "raytrace.rgen.spv",
		Miss:                 "raytrace.rmiss.spv",
		ShadowMiss:           "raytrace_shadow.rmiss.spv",
		ClosestHit:           "raytrace.rchit.spv",
		AnyHit:               "raytrace.rahit.spv",
		ProceduralClosestHit: "raytrace2.rchit.spv",
		ProceduralAnyHit:     "raytrace2.rahit.spv",
		Intersection:         "raytrace.rint.spv",
		Callables: []string{
			"light_point.rcall.spv",
			"light_spot.rcall.spv",
			"light_inf.rcall.spv",
		},
	}
}

// Pipeline holds the assembled ray tracing pipeline, its layout and the
// ordered shader group list shared with the shader binding table.
type Pipeline struct {
	device *Device
	logger log.Logger

	handle vk.Pipeline
	layout vk.PipelineLayout

	// Flat group sequence in declaration order.
	Groups []tracer.ShaderGroup
}

// Shader stages that can read the push constant record.
const pushConstantStages = vk.ShaderStageFlags(vk.ShaderStageRaygenBit |
	vk.ShaderStageClosestHitBit | vk.ShaderStageMissBit | vk.ShaderStageCallableBit)

func loadShaderModule(device *Device, path string) (vk.ShaderModule, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return vk.NullShaderModule, fmt.Errorf("vulkan device (%s): could not load shader %s: %v", device.Name, path, err)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if ret := vk.CreateShaderModule(device.handle, &createInfo, nil, &module); ret != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("vulkan device (%s): could not create shader module %s: %s", device.Name, path, vk.Error(ret))
	}
	return module, nil
}

// stageBuilder accumulates shader stages and the matching group records.
// Shader modules are transient; they are destroyed once the pipeline holds
// everything it needs.
type stageBuilder struct {
	device  *Device
	baseDir string

	stages  []pipelineShaderStageCreateInfo
	modules []vk.ShaderModule
	err     error
}

// Entry point shared by every stage; the create info wants a C string.
var shaderEntryPoint = []byte("main\x00")

func (sb *stageBuilder) add(file string, stage vk.ShaderStageFlagBits) uint32 {
	if sb.err != nil {
		return tracer.ShaderUnused
	}
	if file == "" {
		return tracer.ShaderUnused
	}

	module, err := loadShaderModule(sb.device, filepath.Join(sb.baseDir, file))
	if err != nil {
		sb.err = err
		return tracer.ShaderUnused
	}
	sb.modules = append(sb.modules, module)

	index := uint32(len(sb.stages))
	sb.stages = append(sb.stages, pipelineShaderStageCreateInfo{
		SType:  uint32(vk.StructureTypePipelineShaderStageCreateInfo),
		Stage:  uint32(stage),
		Module: module,
		PName:  unsafe.Pointer(&shaderEntryPoint[0]),
	})
	return index
}

func (sb *stageBuilder) destroyModules() {
	for _, module := range sb.modules {
		vk.DestroyShaderModule(sb.device.handle, module, nil)
	}
	sb.modules = nil
}

func groupCreateInfo(group ShaderGroupInfo) rayTracingShaderGroupCreateInfo {
	return rayTracingShaderGroupCreateInfo{
		SType:              uint32(vk.StructureTypeRayTracingShaderGroupCreateInfo),
		Type:               group.kind,
		GeneralShader:      group.general,
		ClosestHitShader:   group.closestHit,
		AnyHitShader:       group.anyHit,
		IntersectionShader: group.intersection,
	}
}

type ShaderGroupInfo struct {
	kind         uint32
	general      uint32
	closestHit   uint32
	anyHit       uint32
	intersection uint32
}

func vkGroup(group tracer.ShaderGroup) ShaderGroupInfo {
	info := ShaderGroupInfo{
		general:      group.General,
		closestHit:   group.ClosestHit,
		anyHit:       group.AnyHit,
		intersection: group.Intersection,
	}
	switch group.Kind {
	case tracer.GroupGeneral:
		info.kind = rayTracingShaderGroupTypeGeneral
	case tracer.GroupTrianglesHit:
		info.kind = rayTracingShaderGroupTypeTrianglesHitGroup
	case tracer.GroupProceduralHit:
		info.kind = rayTracingShaderGroupTypeProceduralHitGroup
	}
	return info
}

// Assemble the ray tracing pipeline: load the shader stages, wire them
// into the fixed group sequence (raygen, miss, shadow miss, triangle hit,
// procedural hit, callables), and create the pipeline layout from the ray
// tracing descriptor set layout plus the externally owned scene layout.
// Any missing shader bytecode is fatal; no partial pipeline is created.
func NewPipeline(device *Device, rtLayout, sceneLayout vk.DescriptorSetLayout, cfg PipelineConfig) (*Pipeline, error) {
	sb := &stageBuilder{device: device, baseDir: cfg.ShaderDir}
	defer sb.destroyModules()

	var groups []tracer.ShaderGroup

	groups = append(groups, tracer.RaygenGroup(sb.add(cfg.Raygen, vk.ShaderStageRaygenBit)))
	groups = append(groups, tracer.MissGroup(sb.add(cfg.Miss, vk.ShaderStageMissBit)))
	groups = append(groups, tracer.MissGroup(sb.add(cfg.ShadowMiss, vk.ShaderStageMissBit)))

	groups = append(groups, tracer.TriangleHitGroup(
		sb.add(cfg.ClosestHit, vk.ShaderStageClosestHitBit),
		sb.add(cfg.AnyHit, vk.ShaderStageAnyHitBit)))

	procGroup, err := tracer.ProceduralHitGroup(
		sb.add(cfg.ProceduralClosestHit, vk.ShaderStageClosestHitBit),
		sb.add(cfg.ProceduralAnyHit, vk.ShaderStageAnyHitBit),
		sb.add(cfg.Intersection, vk.ShaderStageIntersectionBit))
	if sb.err != nil {
		return nil, sb.err
	}
	if err != nil {
		return nil, err
	}
	groups = append(groups, procGroup)

	for _, callable := range cfg.Callables {
		groups = append(groups, tracer.CallableGroup(sb.add(callable, vk.ShaderStageCallableBit)))
	}
	if sb.err != nil {
		return nil, sb.err
	}

	if _, err = tracer.CountGroups(groups); err != nil {
		return nil, err
	}

	vkGroups := make([]rayTracingShaderGroupCreateInfo, len(groups))
	for idx, group := range groups {
		vkGroups[idx] = groupCreateInfo(vkGroup(group))
	}

	pushRange := vk.PushConstantRange{
		StageFlags: pushConstantStages,
		Offset:     0,
		Size:       tracer.PushConstantsSize,
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         2,
		PSetLayouts:            []vk.DescriptorSetLayout{rtLayout, sceneLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushRange},
	}
	var layout vk.PipelineLayout
	if ret := vk.CreatePipelineLayout(device.handle, &layoutInfo, nil, &layout); ret != vk.Success {
		return nil, fmt.Errorf("vulkan device (%s): could not create ray tracing pipeline layout: %s", device.Name, vk.Error(ret))
	}

	pipelineInfo := rayTracingPipelineCreateInfo{
		SType:                        uint32(vk.StructureTypeRayTracingPipelineCreateInfo),
		StageCount:                   uint32(len(sb.stages)),
		PStages:                      &sb.stages[0],
		GroupCount:                   uint32(len(vkGroups)),
		PGroups:                      &vkGroups[0],
		MaxPipelineRayRecursionDepth: maxRecursionDepth,
		Layout:                       layout,
	}

	var pipeline vk.Pipeline
	ret := khrCreateRayTracingPipelines(device, &pipelineInfo, &pipeline)
	if ret != vk.Success {
		vk.DestroyPipelineLayout(device.handle, layout, nil)
		return nil, fmt.Errorf("vulkan device (%s): could not create ray tracing pipeline: %s", device.Name, vk.Error(ret))
	}

	p := &Pipeline{
		device: device,
		logger: log.New("rtpipeline"),
		handle: pipeline,
		layout: layout,
		Groups: groups,
	}
	p.logger.Infof("assembled ray tracing pipeline with %d stages in %d groups", len(sb.stages), len(groups))

	return p, nil
}

// Handle returns the pipeline handle.
func (p *Pipeline) Handle() vk.Pipeline {
	return p.handle
}

// Layout returns the pipeline layout.
func (p *Pipeline) Layout() vk.PipelineLayout {
	return p.layout
}

// Release the pipeline and then its layout. Idempotent.
func (p *Pipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device.handle, p.handle, nil)
		p.handle = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device.handle, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
}
