package vulkan

/*
#include <stdint.h>
#include <stdlib.h>

// The binding stops at the core 1.1 command surface, so the
// VK_KHR_acceleration_structure, VK_KHR_ray_tracing_pipeline and
// VK_KHR_buffer_device_address entry points are fetched from the loader and
// dispatched through these trampolines, volk style. Handles and struct
// pointers travel as uintptr_t so the structs can stay in Go memory.

typedef void (*vktVoidFn)(void);
typedef vktVoidFn (*vktGetProcAddrFn)(uintptr_t, const char*);

static uintptr_t vktGetProcAddr(uintptr_t fp, uintptr_t handle, const char* name) {
	return (uintptr_t)((vktGetProcAddrFn)fp)(handle, name);
}

static int32_t vktCreateAccelerationStructure(uintptr_t fp, uintptr_t device, uintptr_t info, uintptr_t out) {
	return ((int32_t (*)(uintptr_t, uintptr_t, uintptr_t, uintptr_t))fp)(device, info, 0, out);
}

static void vktDestroyAccelerationStructure(uintptr_t fp, uintptr_t device, uintptr_t as) {
	((void (*)(uintptr_t, uintptr_t, uintptr_t))fp)(device, as, 0);
}

static void vktGetAccelerationStructureBuildSizes(uintptr_t fp, uintptr_t device, int32_t buildType, uintptr_t info, uintptr_t primCounts, uintptr_t sizes) {
	((void (*)(uintptr_t, int32_t, uintptr_t, uintptr_t, uintptr_t))fp)(device, buildType, info, primCounts, sizes);
}

static uint64_t vktGetAccelerationStructureDeviceAddress(uintptr_t fp, uintptr_t device, uintptr_t info) {
	return ((uint64_t (*)(uintptr_t, uintptr_t))fp)(device, info);
}

static void vktCmdBuildAccelerationStructures(uintptr_t fp, uintptr_t cmd, uint32_t count, uintptr_t infos, uintptr_t rangePtrs) {
	((void (*)(uintptr_t, uint32_t, uintptr_t, uintptr_t))fp)(cmd, count, infos, rangePtrs);
}

static void vktCmdCopyAccelerationStructure(uintptr_t fp, uintptr_t cmd, uintptr_t info) {
	((void (*)(uintptr_t, uintptr_t))fp)(cmd, info);
}

static void vktCmdWriteAccelerationStructuresProperties(uintptr_t fp, uintptr_t cmd, uint32_t count, uintptr_t structs, int32_t queryType, uintptr_t pool, uint32_t first) {
	((void (*)(uintptr_t, uint32_t, uintptr_t, int32_t, uintptr_t, uint32_t))fp)(cmd, count, structs, queryType, pool, first);
}

static int32_t vktCreateRayTracingPipelines(uintptr_t fp, uintptr_t device, uint32_t count, uintptr_t infos, uintptr_t pipelines) {
	return ((int32_t (*)(uintptr_t, uintptr_t, uintptr_t, uint32_t, uintptr_t, uintptr_t, uintptr_t))fp)(device, 0, 0, count, infos, 0, pipelines);
}

static int32_t vktGetRayTracingShaderGroupHandles(uintptr_t fp, uintptr_t device, uintptr_t pipeline, uint32_t first, uint32_t count, size_t size, uintptr_t data) {
	return ((int32_t (*)(uintptr_t, uintptr_t, uint32_t, uint32_t, size_t, uintptr_t))fp)(device, pipeline, first, count, size, data);
}

static void vktCmdTraceRays(uintptr_t fp, uintptr_t cmd, uintptr_t rgen, uintptr_t miss, uintptr_t hit, uintptr_t call, uint32_t w, uint32_t h, uint32_t d) {
	((void (*)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uint32_t, uint32_t, uint32_t))fp)(cmd, rgen, miss, hit, call, w, h, d);
}

static uint64_t vktGetBufferDeviceAddress(uintptr_t fp, uintptr_t device, uintptr_t info) {
	return ((uint64_t (*)(uintptr_t, uintptr_t))fp)(device, info);
}

static void vktGetPhysicalDeviceProperties2(uintptr_t fp, uintptr_t pd, uintptr_t props) {
	((void (*)(uintptr_t, uintptr_t))fp)(pd, props);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Extension enum values the binding does not carry.
const (
	geometryTypeTriangles = 0
	geometryTypeAabbs     = 1
	geometryTypeInstances = 2

	accelerationStructureTypeTopLevel    = 0
	accelerationStructureTypeBottomLevel = 1

	buildAccelerationStructureModeBuild  = 0
	accelerationStructureBuildTypeDevice = 1

	buildAccelerationStructureAllowCompactionBit = 0x2
	buildAccelerationStructurePreferFastTraceBit = 0x4
	buildAccelerationStructurePreferFastBuildBit = 0x8

	geometryOpaqueBit                      = 0x1
	geometryNoDuplicateAnyHitInvocationBit = 0x2

	copyAccelerationStructureModeCompact = 1

	rayTracingShaderGroupTypeGeneral            = 0
	rayTracingShaderGroupTypeTrianglesHitGroup  = 1
	rayTracingShaderGroupTypeProceduralHitGroup = 2
)

// Mirrors of the extension structs the dispatched commands consume. Field
// order, padding and sizes follow the C declarations; the layouts are
// pinned by tests. Handle fields assume 64-bit handles, which every device
// carrying the ray tracing extensions satisfies.

type accelerationStructureGeometryTrianglesData struct {
	SType         uint32
	_             uint32
	PNext         unsafe.Pointer
	VertexFormat  uint32
	_             uint32
	VertexData    uint64
	VertexStride  vk.DeviceSize
	MaxVertex     uint32
	IndexType     uint32
	IndexData     uint64
	TransformData uint64
}

type accelerationStructureGeometryAabbsData struct {
	SType  uint32
	_      uint32
	PNext  unsafe.Pointer
	Data   uint64
	Stride vk.DeviceSize
}

type accelerationStructureGeometryInstancesData struct {
	SType           uint32
	_               uint32
	PNext           unsafe.Pointer
	ArrayOfPointers vk.Bool32
	_               uint32
	Data            uint64
}

type accelerationStructureGeometry struct {
	SType        uint32
	_            uint32
	PNext        unsafe.Pointer
	GeometryType uint32
	_            uint32
	// Union of the three geometry data records, sized for the largest.
	Geometry [64]byte
	Flags    uint32
	_        uint32
}

func (g *accelerationStructureGeometry) setTriangles(data accelerationStructureGeometryTrianglesData) {
	*(*accelerationStructureGeometryTrianglesData)(unsafe.Pointer(&g.Geometry)) = data
}

func (g *accelerationStructureGeometry) setAabbs(data accelerationStructureGeometryAabbsData) {
	*(*accelerationStructureGeometryAabbsData)(unsafe.Pointer(&g.Geometry)) = data
}

func (g *accelerationStructureGeometry) setInstances(data accelerationStructureGeometryInstancesData) {
	*(*accelerationStructureGeometryInstancesData)(unsafe.Pointer(&g.Geometry)) = data
}

type accelerationStructureBuildGeometryInfo struct {
	SType         uint32
	_             uint32
	PNext         unsafe.Pointer
	Type          uint32
	Flags         uint32
	Mode          uint32
	_             uint32
	Src           vk.AccelerationStructure
	Dst           vk.AccelerationStructure
	GeometryCount uint32
	_             uint32
	PGeometries   *accelerationStructureGeometry
	PpGeometries  unsafe.Pointer
	ScratchData   uint64
}

type accelerationStructureBuildRangeInfo struct {
	PrimitiveCount  uint32
	PrimitiveOffset uint32
	FirstVertex     uint32
	TransformOffset uint32
}

type accelerationStructureBuildSizesInfo struct {
	SType                     uint32
	_                         uint32
	PNext                     unsafe.Pointer
	AccelerationStructureSize vk.DeviceSize
	UpdateScratchSize         vk.DeviceSize
	BuildScratchSize          vk.DeviceSize
}

type accelerationStructureCreateInfo struct {
	SType         uint32
	_             uint32
	PNext         unsafe.Pointer
	CreateFlags   uint32
	_             uint32
	Buffer        vk.Buffer
	Offset        vk.DeviceSize
	Size          vk.DeviceSize
	Type          uint32
	_             uint32
	DeviceAddress uint64
}

type accelerationStructureDeviceAddressInfo struct {
	SType                 uint32
	_                     uint32
	PNext                 unsafe.Pointer
	AccelerationStructure vk.AccelerationStructure
}

type copyAccelerationStructureInfo struct {
	SType uint32
	_     uint32
	PNext unsafe.Pointer
	Src   vk.AccelerationStructure
	Dst   vk.AccelerationStructure
	Mode  uint32
	_     uint32
}

type writeDescriptorSetAccelerationStructure struct {
	SType                      uint32
	_                          uint32
	PNext                      unsafe.Pointer
	AccelerationStructureCount uint32
	_                          uint32
	PAccelerationStructures    *vk.AccelerationStructure
}

type stridedDeviceAddressRegion struct {
	DeviceAddress uint64
	Stride        vk.DeviceSize
	Size          vk.DeviceSize
}

type pipelineShaderStageCreateInfo struct {
	SType               uint32
	_                   uint32
	PNext               unsafe.Pointer
	Flags               uint32
	Stage               uint32
	Module              vk.ShaderModule
	PName               unsafe.Pointer
	PSpecializationInfo unsafe.Pointer
}

type rayTracingShaderGroupCreateInfo struct {
	SType                          uint32
	_                              uint32
	PNext                          unsafe.Pointer
	Type                           uint32
	GeneralShader                  uint32
	ClosestHitShader               uint32
	AnyHitShader                   uint32
	IntersectionShader             uint32
	_                              uint32
	ShaderGroupCaptureReplayHandle unsafe.Pointer
}

type rayTracingPipelineCreateInfo struct {
	SType                        uint32
	_                            uint32
	PNext                        unsafe.Pointer
	Flags                        uint32
	StageCount                   uint32
	PStages                      *pipelineShaderStageCreateInfo
	GroupCount                   uint32
	_                            uint32
	PGroups                      *rayTracingShaderGroupCreateInfo
	MaxPipelineRayRecursionDepth uint32
	_                            uint32
	PLibraryInfo                 unsafe.Pointer
	PLibraryInterface            unsafe.Pointer
	PDynamicState                unsafe.Pointer
	Layout                       vk.PipelineLayout
	BasePipelineHandle           vk.Pipeline
	BasePipelineIndex            int32
	_                            uint32
}

type bufferDeviceAddressInfo struct {
	SType  uint32
	_      uint32
	PNext  unsafe.Pointer
	Buffer vk.Buffer
}

// Feature structs chained into device creation.

type physicalDeviceBufferDeviceAddressFeatures struct {
	SType                            uint32
	_                                uint32
	PNext                            unsafe.Pointer
	BufferDeviceAddress              vk.Bool32
	BufferDeviceAddressCaptureReplay vk.Bool32
	BufferDeviceAddressMultiDevice   vk.Bool32
	_                                uint32
}

type physicalDeviceAccelerationStructureFeatures struct {
	SType                                                 uint32
	_                                                     uint32
	PNext                                                 unsafe.Pointer
	AccelerationStructure                                 vk.Bool32
	AccelerationStructureCaptureReplay                    vk.Bool32
	AccelerationStructureIndirectBuild                    vk.Bool32
	AccelerationStructureHostCommands                     vk.Bool32
	DescriptorBindingAccelerationStructureUpdateAfterBind vk.Bool32
	_                                                     uint32
}

type physicalDeviceRayTracingPipelineFeatures struct {
	SType                                                 uint32
	_                                                     uint32
	PNext                                                 unsafe.Pointer
	RayTracingPipeline                                    vk.Bool32
	RayTracingPipelineShaderGroupHandleCaptureReplay      vk.Bool32
	RayTracingPipelineShaderGroupHandleCaptureReplayMixed vk.Bool32
	RayTracingPipelineTraceRaysIndirect                   vk.Bool32
	RayTraversalPrimitiveCulling                          vk.Bool32
	_                                                     uint32
}

type physicalDeviceRayTracingPipelineProperties struct {
	SType                              uint32
	_                                  uint32
	PNext                              unsafe.Pointer
	ShaderGroupHandleSize              uint32
	MaxRayRecursionDepth               uint32
	MaxShaderGroupStride               uint32
	ShaderGroupBaseAlignment           uint32
	ShaderGroupHandleCaptureReplaySize uint32
	MaxRayDispatchInvocationCount      uint32
	ShaderGroupHandleAlignment         uint32
	MaxRayHitAttributeSize             uint32
}

// Header of a properties2 query. The driver writes the core properties into
// the tail; only the chained extension structs are read back here, so the
// tail is an oversized opaque block.
type physicalDeviceProperties2 struct {
	SType uint32
	_     uint32
	PNext unsafe.Pointer
	_     [1024]byte
}

// Loader entry points that exist per instance rather than per device.
var loader struct {
	getInstanceProcAddr          uintptr
	getDeviceProcAddr            uintptr
	getPhysicalDeviceProperties2 uintptr
}

// Bootstrap points both the binding and the extension dispatch at the
// loader's vkGetInstanceProcAddr. Must be called once before any instance
// is created.
func Bootstrap(getProcAddr unsafe.Pointer) error {
	if getProcAddr == nil {
		return errors.New("vulkan: window system did not provide vkGetInstanceProcAddr")
	}
	vk.SetGetInstanceProcAddr(getProcAddr)
	loader.getInstanceProcAddr = uintptr(getProcAddr)
	return vk.Init()
}

func resolveProc(getter, handle uintptr, name string) uintptr {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return uintptr(C.vktGetProcAddr(C.uintptr_t(getter), C.uintptr_t(handle), cname))
}

func loadInstanceProcs(instance vk.Instance) error {
	handle := uintptr(unsafe.Pointer(instance))
	loader.getDeviceProcAddr = resolveProc(loader.getInstanceProcAddr, handle, "vkGetDeviceProcAddr")
	loader.getPhysicalDeviceProperties2 = resolveProc(loader.getInstanceProcAddr, handle, "vkGetPhysicalDeviceProperties2")
	if loader.getDeviceProcAddr == 0 || loader.getPhysicalDeviceProperties2 == 0 {
		return errors.New("vulkan: loader does not expose the core 1.1 entry points")
	}
	return nil
}

// Per-device dispatch table for the ray tracing extensions.
type rayTracingProcs struct {
	createAccelerationStructure              uintptr
	destroyAccelerationStructure             uintptr
	getAccelerationStructureBuildSizes       uintptr
	getAccelerationStructureDeviceAddress    uintptr
	cmdBuildAccelerationStructures           uintptr
	cmdCopyAccelerationStructure             uintptr
	cmdWriteAccelerationStructuresProperties uintptr
	createRayTracingPipelines                uintptr
	getRayTracingShaderGroupHandles          uintptr
	cmdTraceRays                             uintptr
	getBufferDeviceAddress                   uintptr
}

func (d *Device) loadRayTracingProcs() error {
	handle := uintptr(unsafe.Pointer(d.handle))
	wanted := []struct {
		name string
		dst  *uintptr
	}{
		{"vkCreateAccelerationStructureKHR", &d.procs.createAccelerationStructure},
		{"vkDestroyAccelerationStructureKHR", &d.procs.destroyAccelerationStructure},
		{"vkGetAccelerationStructureBuildSizesKHR", &d.procs.getAccelerationStructureBuildSizes},
		{"vkGetAccelerationStructureDeviceAddressKHR", &d.procs.getAccelerationStructureDeviceAddress},
		{"vkCmdBuildAccelerationStructuresKHR", &d.procs.cmdBuildAccelerationStructures},
		{"vkCmdCopyAccelerationStructureKHR", &d.procs.cmdCopyAccelerationStructure},
		{"vkCmdWriteAccelerationStructuresPropertiesKHR", &d.procs.cmdWriteAccelerationStructuresProperties},
		{"vkCreateRayTracingPipelinesKHR", &d.procs.createRayTracingPipelines},
		{"vkGetRayTracingShaderGroupHandlesKHR", &d.procs.getRayTracingShaderGroupHandles},
		{"vkCmdTraceRaysKHR", &d.procs.cmdTraceRays},
		{"vkGetBufferDeviceAddressKHR", &d.procs.getBufferDeviceAddress},
	}
	for _, proc := range wanted {
		*proc.dst = resolveProc(loader.getDeviceProcAddr, handle, proc.name)
		if *proc.dst == 0 {
			return fmt.Errorf("vulkan device (%s): loader has no %s", d.Name, proc.name)
		}
	}
	return nil
}

func khrCreateAccelerationStructure(d *Device, info *accelerationStructureCreateInfo, out *vk.AccelerationStructure) vk.Result {
	ret := C.vktCreateAccelerationStructure(C.uintptr_t(d.procs.createAccelerationStructure),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		C.uintptr_t(uintptr(unsafe.Pointer(info))),
		C.uintptr_t(uintptr(unsafe.Pointer(out))))
	runtime.KeepAlive(info)
	return vk.Result(ret)
}

func khrDestroyAccelerationStructure(d *Device, as vk.AccelerationStructure) {
	C.vktDestroyAccelerationStructure(C.uintptr_t(d.procs.destroyAccelerationStructure),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		C.uintptr_t(uintptr(unsafe.Pointer(as))))
}

func khrGetAccelerationStructureBuildSizes(d *Device, info *accelerationStructureBuildGeometryInfo, primCounts []uint32, sizes *accelerationStructureBuildSizesInfo) {
	C.vktGetAccelerationStructureBuildSizes(C.uintptr_t(d.procs.getAccelerationStructureBuildSizes),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		accelerationStructureBuildTypeDevice,
		C.uintptr_t(uintptr(unsafe.Pointer(info))),
		C.uintptr_t(uintptr(unsafe.Pointer(&primCounts[0]))),
		C.uintptr_t(uintptr(unsafe.Pointer(sizes))))
	runtime.KeepAlive(info)
	runtime.KeepAlive(primCounts)
}

func khrGetAccelerationStructureDeviceAddress(d *Device, as vk.AccelerationStructure) uint64 {
	info := accelerationStructureDeviceAddressInfo{
		SType:                 uint32(vk.StructureTypeAccelerationStructureDeviceAddressInfo),
		AccelerationStructure: as,
	}
	addr := C.vktGetAccelerationStructureDeviceAddress(C.uintptr_t(d.procs.getAccelerationStructureDeviceAddress),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		C.uintptr_t(uintptr(unsafe.Pointer(&info))))
	runtime.KeepAlive(&info)
	return uint64(addr)
}

func khrCmdBuildAccelerationStructure(d *Device, cmd vk.CommandBuffer, info *accelerationStructureBuildGeometryInfo, ranges []accelerationStructureBuildRangeInfo) {
	rangePtr := &ranges[0]
	C.vktCmdBuildAccelerationStructures(C.uintptr_t(d.procs.cmdBuildAccelerationStructures),
		C.uintptr_t(uintptr(unsafe.Pointer(cmd))), 1,
		C.uintptr_t(uintptr(unsafe.Pointer(info))),
		C.uintptr_t(uintptr(unsafe.Pointer(&rangePtr))))
	runtime.KeepAlive(info)
	runtime.KeepAlive(rangePtr)
}

func khrCmdCopyAccelerationStructure(d *Device, cmd vk.CommandBuffer, info *copyAccelerationStructureInfo) {
	C.vktCmdCopyAccelerationStructure(C.uintptr_t(d.procs.cmdCopyAccelerationStructure),
		C.uintptr_t(uintptr(unsafe.Pointer(cmd))),
		C.uintptr_t(uintptr(unsafe.Pointer(info))))
	runtime.KeepAlive(info)
}

func khrCmdWriteCompactedSizes(d *Device, cmd vk.CommandBuffer, structs []vk.AccelerationStructure, pool vk.QueryPool, firstQuery uint32) {
	C.vktCmdWriteAccelerationStructuresProperties(C.uintptr_t(d.procs.cmdWriteAccelerationStructuresProperties),
		C.uintptr_t(uintptr(unsafe.Pointer(cmd))), C.uint32_t(len(structs)),
		C.uintptr_t(uintptr(unsafe.Pointer(&structs[0]))),
		C.int32_t(vk.QueryTypeAccelerationStructureCompactedSize),
		C.uintptr_t(uintptr(unsafe.Pointer(pool))), C.uint32_t(firstQuery))
	runtime.KeepAlive(structs)
}

func khrCreateRayTracingPipelines(d *Device, info *rayTracingPipelineCreateInfo, out *vk.Pipeline) vk.Result {
	ret := C.vktCreateRayTracingPipelines(C.uintptr_t(d.procs.createRayTracingPipelines),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))), 1,
		C.uintptr_t(uintptr(unsafe.Pointer(info))),
		C.uintptr_t(uintptr(unsafe.Pointer(out))))
	runtime.KeepAlive(info)
	return vk.Result(ret)
}

func khrGetRayTracingShaderGroupHandles(d *Device, pipeline vk.Pipeline, firstGroup, groupCount uint32, data []byte) vk.Result {
	ret := C.vktGetRayTracingShaderGroupHandles(C.uintptr_t(d.procs.getRayTracingShaderGroupHandles),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		C.uintptr_t(uintptr(unsafe.Pointer(pipeline))),
		C.uint32_t(firstGroup), C.uint32_t(groupCount),
		C.size_t(len(data)),
		C.uintptr_t(uintptr(unsafe.Pointer(&data[0]))))
	runtime.KeepAlive(data)
	return vk.Result(ret)
}

func khrCmdTraceRays(d *Device, cmd vk.CommandBuffer, regions *Regions, width, height uint32) {
	C.vktCmdTraceRays(C.uintptr_t(d.procs.cmdTraceRays),
		C.uintptr_t(uintptr(unsafe.Pointer(cmd))),
		C.uintptr_t(uintptr(unsafe.Pointer(&regions.Raygen))),
		C.uintptr_t(uintptr(unsafe.Pointer(&regions.Miss))),
		C.uintptr_t(uintptr(unsafe.Pointer(&regions.Hit))),
		C.uintptr_t(uintptr(unsafe.Pointer(&regions.Callable))),
		C.uint32_t(width), C.uint32_t(height), 1)
	runtime.KeepAlive(regions)
}

func khrGetBufferDeviceAddress(d *Device, buffer vk.Buffer) uint64 {
	info := bufferDeviceAddressInfo{
		SType:  uint32(vk.StructureTypeBufferDeviceAddressInfo),
		Buffer: buffer,
	}
	addr := C.vktGetBufferDeviceAddress(C.uintptr_t(d.procs.getBufferDeviceAddress),
		C.uintptr_t(uintptr(unsafe.Pointer(d.handle))),
		C.uintptr_t(uintptr(unsafe.Pointer(&info))))
	runtime.KeepAlive(&info)
	return uint64(addr)
}

func khrGetPhysicalDeviceProperties2(pd vk.PhysicalDevice, props *physicalDeviceProperties2) {
	C.vktGetPhysicalDeviceProperties2(C.uintptr_t(loader.getPhysicalDeviceProperties2),
		C.uintptr_t(uintptr(unsafe.Pointer(pd))),
		C.uintptr_t(uintptr(unsafe.Pointer(props))))
	runtime.KeepAlive(props)
}
