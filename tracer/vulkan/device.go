package vulkan

import (
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
)

// Device extensions required by the ray traced path. Missing support is a
// setup-fatal condition.
var requiredExtensions = []string{
	"VK_KHR_swapchain",
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
	"VK_KHR_buffer_device_address",
}

// Device wraps the selected physical device, its logical device and the
// single queue all builds and dispatches are submitted to.
type Device struct {
	Name string

	physical vk.PhysicalDevice
	handle   vk.Device

	queue       vk.Queue
	queueFamily uint32
	cmdPool     vk.CommandPool

	procs  rayTracingProcs
	limits tracer.DeviceLimits

	logger log.Logger
}

// Summary of an enumerated physical device.
type DeviceInfo struct {
	Name       string
	Type       string
	APIVersion string
	RayTracing bool
}

func deviceTypeString(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete GPU"
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated GPU"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual GPU"
	case vk.PhysicalDeviceTypeCpu:
		return "CPU"
	}
	return "other"
}

func physicalDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var count uint32
	if ret := vk.EnumeratePhysicalDevices(instance, &count, nil); ret != vk.Success {
		return nil, fmt.Errorf("vulkan: could not enumerate physical devices: %s", vk.Error(ret))
	}
	if count == 0 {
		return nil, ErrNoSuitableDevice
	}

	devices := make([]vk.PhysicalDevice, count)
	if ret := vk.EnumeratePhysicalDevices(instance, &count, devices); ret != vk.Success {
		return nil, fmt.Errorf("vulkan: could not enumerate physical devices: %s", vk.Error(ret))
	}
	return devices, nil
}

func supportedExtensions(pd vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if ret := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); ret != vk.Success {
		return nil, fmt.Errorf("vulkan: could not enumerate device extensions: %s", vk.Error(ret))
	}
	props := make([]vk.ExtensionProperties, count)
	if ret := vk.EnumerateDeviceExtensionProperties(pd, "", &count, props); ret != vk.Success {
		return nil, fmt.Errorf("vulkan: could not enumerate device extensions: %s", vk.Error(ret))
	}

	names := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		names[vk.ToString(props[i].ExtensionName[:])] = true
	}
	return names, nil
}

func hasRequiredExtensions(available map[string]bool) bool {
	for _, name := range requiredExtensions {
		if !available[name] {
			return false
		}
	}
	return true
}

// Enumerate all physical devices visible through the instance. Used by the
// list-devices command.
func EnumerateDevices(instance vk.Instance) ([]DeviceInfo, error) {
	devices, err := physicalDevices(instance)
	if err != nil {
		return nil, err
	}

	var out []DeviceInfo
	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		available, err := supportedExtensions(pd)
		if err != nil {
			return nil, err
		}

		version := props.ApiVersion
		out = append(out, DeviceInfo{
			Name: vk.ToString(props.DeviceName[:]),
			Type: deviceTypeString(props.DeviceType),
			APIVersion: fmt.Sprintf("%d.%d.%d",
				version>>22, (version>>12)&0x3ff, version&0xfff),
			RayTracing: hasRequiredExtensions(available),
		})
	}
	return out, nil
}

// Select a physical device that supports the required ray tracing
// extensions and can present to the given surface, then create the logical
// device, queue and command pool. A non-empty forceName restricts the
// selection to devices whose name contains it.
func NewDevice(instance vk.Instance, surface vk.Surface, forceName string) (*Device, error) {
	devices, err := physicalDevices(instance)
	if err != nil {
		return nil, err
	}

	logger := log.New("vulkan")

	for _, pd := range devices {
		available, err := supportedExtensions(pd)
		if err != nil {
			return nil, err
		}
		if !hasRequiredExtensions(available) {
			continue
		}

		family, ok := findQueueFamily(pd, surface)
		if !ok {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		name := vk.ToString(props.DeviceName[:])
		if forceName != "" && !strings.Contains(name, forceName) {
			continue
		}

		d := &Device{
			Name:        name,
			physical:    pd,
			queueFamily: family,
			logger:      logger,
		}
		if err = d.createLogicalDevice(); err != nil {
			return nil, err
		}
		d.queryRayTracingLimits()

		logger.Infof("using device %q (queue family %d)", d.Name, family)
		return d, nil
	}

	return nil, ErrNoSuitableDevice
}

func findQueueFamily(pd vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	for idx := range families {
		families[idx].Deref()
		if families[idx].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}

		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(idx), surface, &supported)
		if supported == vk.True {
			return uint32(idx), true
		}
	}
	return 0, false
}

func (d *Device) createLogicalDevice() error {
	// Feature chain for acceleration structure builds and ray tracing
	// pipelines; all three must be present on the selected device.
	bdaFeatures := physicalDeviceBufferDeviceAddressFeatures{
		SType:               uint32(vk.StructureTypePhysicalDeviceBufferDeviceAddressFeatures),
		BufferDeviceAddress: vk.True,
	}
	asFeatures := physicalDeviceAccelerationStructureFeatures{
		SType:                 uint32(vk.StructureTypePhysicalDeviceAccelerationStructureFeatures),
		PNext:                 unsafe.Pointer(&bdaFeatures),
		AccelerationStructure: vk.True,
	}
	rtFeatures := physicalDeviceRayTracingPipelineFeatures{
		SType:              uint32(vk.StructureTypePhysicalDeviceRayTracingPipelineFeatures),
		PNext:              unsafe.Pointer(&asFeatures),
		RayTracingPipeline: vk.True,
	}

	extensions := make([]string, len(requiredExtensions))
	for idx, name := range requiredExtensions {
		extensions[idx] = name + "\x00"
	}

	queuePriorities := []float32{1.0}
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: queuePriorities,
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(&rtFeatures),
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vk.Device
	if ret := vk.CreateDevice(d.physical, &createInfo, nil, &device); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create logical device: %s", d.Name, vk.Error(ret))
	}
	d.handle = device

	if err := d.loadRayTracingProcs(); err != nil {
		vk.DestroyDevice(d.handle, nil)
		d.handle = nil
		return err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(d.handle, d.queueFamily, 0, &queue)
	d.queue = queue

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.queueFamily,
	}
	var pool vk.CommandPool
	if ret := vk.CreateCommandPool(d.handle, &poolInfo, nil, &pool); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create command pool: %s", d.Name, vk.Error(ret))
	}
	d.cmdPool = pool

	return nil
}

func (d *Device) queryRayTracingLimits() {
	rtProps := physicalDeviceRayTracingPipelineProperties{
		SType: uint32(vk.StructureTypePhysicalDeviceRayTracingPipelineProperties),
	}
	props2 := physicalDeviceProperties2{
		SType: uint32(vk.StructureTypePhysicalDeviceProperties2),
		PNext: unsafe.Pointer(&rtProps),
	}
	khrGetPhysicalDeviceProperties2(d.physical, &props2)

	d.limits = tracer.DeviceLimits{
		HandleSize:      rtProps.ShaderGroupHandleSize,
		HandleAlignment: rtProps.ShaderGroupHandleAlignment,
		BaseAlignment:   rtProps.ShaderGroupBaseAlignment,
	}
	d.logger.Debugf("handle size %d, handle alignment %d, base alignment %d",
		d.limits.HandleSize, d.limits.HandleAlignment, d.limits.BaseAlignment)
}

// The device limits relevant to shader binding table layout.
func (d *Device) Limits() tracer.DeviceLimits {
	return d.limits
}

// Handle returns the logical device handle.
func (d *Device) Handle() vk.Device {
	return d.handle
}

// Physical returns the physical device handle.
func (d *Device) Physical() vk.PhysicalDevice {
	return d.physical
}

// Queue returns the device queue all work is submitted to.
func (d *Device) Queue() vk.Queue {
	return d.queue
}

// QueueFamily returns the queue family index of the device queue.
func (d *Device) QueueFamily() uint32 {
	return d.queueFamily
}

// Find a memory type satisfying the given requirements.
func (d *Device) MemoryTypeIndex(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &memProps)
	memProps.Deref()

	for idx := uint32(0); idx < memProps.MemoryTypeCount; idx++ {
		memProps.MemoryTypes[idx].Deref()
		if typeBits&(1<<idx) != 0 && memProps.MemoryTypes[idx].PropertyFlags&props == props {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("vulkan device (%s): no memory type matches bits %#x with flags %#x", d.Name, typeBits, props)
}

// Record and submit a one-shot command buffer, blocking until the device
// has executed it. Acceleration structure builds and buffer uploads go
// through this path so they appear synchronous to the caller.
func (d *Device) OneShot(record func(cmd vk.CommandBuffer) error) error {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBufs := make([]vk.CommandBuffer, 1)
	if ret := vk.AllocateCommandBuffers(d.handle, &allocInfo, cmdBufs); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not allocate command buffer: %s", d.Name, vk.Error(ret))
	}
	cmd := cmdBufs[0]
	defer vk.FreeCommandBuffers(d.handle, d.cmdPool, 1, cmdBufs)

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if ret := vk.BeginCommandBuffer(cmd, &beginInfo); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not begin command buffer: %s", d.Name, vk.Error(ret))
	}

	if err := record(cmd); err != nil {
		return err
	}

	if ret := vk.EndCommandBuffer(cmd); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not end command buffer: %s", d.Name, vk.Error(ret))
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if ret := vk.CreateFence(d.handle, &fenceInfo, nil, &fence); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create fence: %s", d.Name, vk.Error(ret))
	}
	defer vk.DestroyFence(d.handle, fence, nil)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmdBufs,
	}
	if ret := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submitInfo}, fence); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not submit command buffer: %s", d.Name, vk.Error(ret))
	}
	if ret := vk.WaitForFences(d.handle, 1, []vk.Fence{fence}, vk.True, ^uint64(0)); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): wait for submission failed: %s", d.Name, vk.Error(ret))
	}

	return nil
}

// Allocate primary command buffers from the device pool. The renderer
// records one per swapchain image and reuses them across frames.
func (d *Device) NewCommandBuffers(count uint32) ([]vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	cmdBufs := make([]vk.CommandBuffer, count)
	if ret := vk.AllocateCommandBuffers(d.handle, &allocInfo, cmdBufs); ret != vk.Success {
		return nil, fmt.Errorf("vulkan device (%s): could not allocate command buffers: %s", d.Name, vk.Error(ret))
	}
	return cmdBufs, nil
}

// FreeCommandBuffers returns command buffers to the device pool.
func (d *Device) FreeCommandBuffers(cmdBufs []vk.CommandBuffer) {
	if len(cmdBufs) > 0 {
		vk.FreeCommandBuffers(d.handle, d.cmdPool, uint32(len(cmdBufs)), cmdBufs)
	}
}

// Block until the device queue drains.
func (d *Device) WaitIdle() {
	if d.handle != nil {
		vk.DeviceWaitIdle(d.handle)
	}
}

// Release the command pool and logical device. Idempotent.
func (d *Device) Close() {
	if d.handle == nil {
		return
	}
	vk.DeviceWaitIdle(d.handle)
	if d.cmdPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.handle, d.cmdPool, nil)
		d.cmdPool = vk.NullCommandPool
	}
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
}
