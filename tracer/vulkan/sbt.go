package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
)

// The four addressable shader binding table regions handed to each trace
// dispatch, in raygen, miss, hit, callable order.
type Regions struct {
	Raygen   stridedDeviceAddressRegion
	Miss     stridedDeviceAddressRegion
	Hit      stridedDeviceAddressRegion
	Callable stridedDeviceAddressRegion
}

// ShaderBindingTable owns the GPU buffer mapping shader groups to their
// executable handles. The table must be rebuilt whenever the pipeline is.
type ShaderBindingTable struct {
	device *Device
	logger log.Logger

	limits tracer.DeviceLimits

	buffer  *Buffer
	regions Regions
	built   bool
}

// Create a shader binding table manager, capturing the device limits that
// drive the table layout.
func NewShaderBindingTable(device *Device) *ShaderBindingTable {
	return &ShaderBindingTable{
		device: device,
		logger: log.New("sbt"),
		limits: device.Limits(),
	}
}

// Build the table for the given pipeline: compute the region layout from
// the pipeline's group ordering, fetch all group handles and write each at
// its aligned slot in a single device buffer.
func (t *ShaderBindingTable) Build(pipeline *Pipeline) error {
	// A failed rebuild must not leave stale regions addressing a buffer
	// that has already been released.
	t.built = false

	counts, err := tracer.CountGroups(pipeline.Groups)
	if err != nil {
		return err
	}
	layout, err := tracer.NewLayout(counts, t.limits)
	if err != nil {
		return err
	}

	groupCount := counts.Total()
	handleData := make([]byte, groupCount*t.limits.HandleSize)
	ret := khrGetRayTracingShaderGroupHandles(t.device, pipeline.Handle(),
		0, groupCount, handleData)
	if ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not fetch %d shader group handles: %s", t.device.Name, groupCount, vk.Error(ret))
	}

	// Scatter the tightly packed handles into their aligned slots.
	table := make([]byte, layout.TotalSize)
	for group := uint32(0); group < groupCount; group++ {
		offset, err := layout.HandleOffset(group)
		if err != nil {
			return err
		}
		src := handleData[group*t.limits.HandleSize : (group+1)*t.limits.HandleSize]
		copy(table[offset:], src)
	}

	if t.buffer != nil {
		t.buffer.Release()
	}
	t.buffer = t.device.NewBuffer("sbt")
	err = t.buffer.AllocateAndWriteData(table,
		vk.BufferUsageFlags(vk.BufferUsageShaderBindingTableBit|vk.BufferUsageShaderDeviceAddressBit))
	if err != nil {
		return err
	}

	base := t.buffer.DeviceAddress()
	toRegion := func(r tracer.Region) stridedDeviceAddressRegion {
		region := stridedDeviceAddressRegion{
			Stride: vk.DeviceSize(r.Stride),
			Size:   vk.DeviceSize(r.Size),
		}
		if r.Size != 0 {
			region.DeviceAddress = base + r.Offset
		}
		return region
	}
	t.regions = Regions{
		Raygen:   toRegion(layout.Raygen),
		Miss:     toRegion(layout.Miss),
		Hit:      toRegion(layout.Hit),
		Callable: toRegion(layout.Callable),
	}
	t.built = true

	t.logger.Infof("built shader binding table: %d groups, %d bytes", groupCount, layout.TotalSize)
	return nil
}

// The regions of the most recent build, consumed verbatim by the trace
// dispatch.
func (t *ShaderBindingTable) GetRegions() (Regions, error) {
	if !t.built {
		return Regions{}, ErrTableNotBuilt
	}
	return t.regions, nil
}

// Release the table buffer. Idempotent.
func (t *ShaderBindingTable) Destroy() {
	if t.buffer != nil {
		t.buffer.Release()
		t.buffer = nil
	}
	t.built = false
}
