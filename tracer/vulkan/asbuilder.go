package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer"
)

// One acceleration structure and the buffer backing it.
type accelStruct struct {
	handle  vk.AccelerationStructure
	buffer  *Buffer
	address uint64
}

func (as *accelStruct) release(device *Device) {
	if as.handle != nil {
		khrDestroyAccelerationStructure(device, as.handle)
		as.handle = nil
	}
	if as.buffer != nil {
		as.buffer.Release()
		as.buffer = nil
	}
	as.address = 0
}

// Builder owns the bottom and top level acceleration structures for one
// scene. Bottom level structures are built once per distinct geometry and
// reused across frames; the top level structure is fully rebuilt on any
// scene change, superseding the previous one.
type Builder struct {
	device *Device
	logger log.Logger

	blas []accelStruct

	tlas        accelStruct
	instanceBuf *Buffer
	hasTopLevel bool
}

func NewBuilder(device *Device) *Builder {
	return &Builder{
		device: device,
		logger: log.New("asbuilder"),
	}
}

func buildFlagBits(flags tracer.BuildFlags) uint32 {
	var out uint32
	if flags&tracer.PreferFastTrace != 0 {
		out |= buildAccelerationStructurePreferFastTraceBit
	}
	if flags&tracer.PreferFastBuild != 0 {
		out |= buildAccelerationStructurePreferFastBuildBit
	}
	if flags&tracer.AllowCompaction != 0 {
		out |= buildAccelerationStructureAllowCompactionBit
	}
	return out
}

// Convert an adapter geometry record into the device build descriptor.
func asGeometry(input tracer.GeometryInput) accelerationStructureGeometry {
	geom := accelerationStructureGeometry{
		SType: uint32(vk.StructureTypeAccelerationStructureGeometry),
	}
	if input.NoDuplicateAnyHit {
		geom.Flags = geometryNoDuplicateAnyHitInvocationBit
	}

	switch input.Kind {
	case tracer.GeometryTriangles:
		triangles := accelerationStructureGeometryTrianglesData{
			SType:        uint32(vk.StructureTypeAccelerationStructureGeometryTrianglesData),
			VertexFormat: uint32(vk.FormatR32g32b32Sfloat),
			VertexData:   input.VertexAddress,
			VertexStride: vk.DeviceSize(input.VertexStride),
			MaxVertex:    input.MaxVertex,
			IndexType:    uint32(vk.IndexTypeUint32),
			IndexData:    input.IndexAddress,
		}

		geom.GeometryType = geometryTypeTriangles
		geom.setTriangles(triangles)

	case tracer.GeometryAABBs:
		aabbs := accelerationStructureGeometryAabbsData{
			SType:  uint32(vk.StructureTypeAccelerationStructureGeometryAabbsData),
			Data:   input.AABBAddress,
			Stride: vk.DeviceSize(input.AABBStride),
		}

		geom.GeometryType = geometryTypeAabbs
		geom.setAabbs(aabbs)
	}

	return geom
}

func asBuildRange(rng tracer.BuildRange) accelerationStructureBuildRangeInfo {
	return accelerationStructureBuildRangeInfo{
		PrimitiveCount:  rng.PrimitiveCount,
		PrimitiveOffset: rng.PrimitiveOffset,
		FirstVertex:     rng.FirstVertex,
		TransformOffset: rng.TransformOffset,
	}
}

// Create the buffer and acceleration structure object for a build of the
// given type and size.
func (b *Builder) createAccelStruct(asType uint32, size vk.DeviceSize, name string) (accelStruct, error) {
	var as accelStruct

	as.buffer = b.device.NewBuffer(name)
	err := as.buffer.Allocate(int(size),
		vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureStorageBit|vk.BufferUsageShaderDeviceAddressBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return as, err
	}

	createInfo := accelerationStructureCreateInfo{
		SType:  uint32(vk.StructureTypeAccelerationStructureCreateInfo),
		Buffer: as.buffer.Handle(),
		Size:   size,
		Type:   asType,
	}
	var handle vk.AccelerationStructure
	if ret := khrCreateAccelerationStructure(b.device, &createInfo, &handle); ret != vk.Success {
		as.release(b.device)
		return as, fmt.Errorf("vulkan device (%s): could not create %s: %s", b.device.Name, name, vk.Error(ret))
	}
	as.handle = handle

	as.address = khrGetAccelerationStructureDeviceAddress(b.device, handle)

	return as, nil
}

// Barrier ordering one acceleration structure build against the next; they
// share a scratch buffer.
func buildBarrier(cmd vk.CommandBuffer) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessAccelerationStructureWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessAccelerationStructureReadBit),
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBit),
		vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

// Build one bottom level acceleration structure per input group, in input
// order, and return their indices. The call blocks until the device work
// completes. When the allow-compaction flag is set each structure is
// compacted into a smaller allocation right after the build. On error no
// structure from the batch is retained.
func (b *Builder) BuildBottomLevel(inputs []tracer.BlasInput, flags tracer.BuildFlags) ([]int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("vulkan device (%s): bottom level build requires at least one input group", b.device.Name)
	}

	firstIndex := len(b.blas)
	vkFlags := buildFlagBits(flags)
	compact := flags&tracer.AllowCompaction != 0

	type pendingBuild struct {
		geometries []accelerationStructureGeometry
		ranges     []accelerationStructureBuildRangeInfo
		buildInfo  accelerationStructureBuildGeometryInfo
		as         accelStruct
	}

	builds := make([]pendingBuild, len(inputs))
	var maxScratch vk.DeviceSize

	// Structures created so far belong to the failed batch, not to the
	// builder; reclaim them before surfacing an error.
	releaseBatch := func() {
		for idx := range builds {
			builds[idx].as.release(b.device)
		}
	}

	for idx, input := range inputs {
		pb := &builds[idx]
		primCounts := make([]uint32, len(input.Ranges))
		for gi, rng := range input.Ranges {
			pb.ranges = append(pb.ranges, asBuildRange(rng))
			primCounts[gi] = rng.PrimitiveCount
		}
		for _, geom := range input.Geometries {
			pb.geometries = append(pb.geometries, asGeometry(geom))
		}

		pb.buildInfo = accelerationStructureBuildGeometryInfo{
			SType:         uint32(vk.StructureTypeAccelerationStructureBuildGeometryInfo),
			Type:          accelerationStructureTypeBottomLevel,
			Flags:         vkFlags,
			Mode:          buildAccelerationStructureModeBuild,
			GeometryCount: uint32(len(pb.geometries)),
			PGeometries:   &pb.geometries[0],
		}

		sizeInfo := accelerationStructureBuildSizesInfo{
			SType: uint32(vk.StructureTypeAccelerationStructureBuildSizesInfo),
		}
		khrGetAccelerationStructureBuildSizes(b.device, &pb.buildInfo, primCounts, &sizeInfo)

		as, err := b.createAccelStruct(accelerationStructureTypeBottomLevel,
			sizeInfo.AccelerationStructureSize, fmt.Sprintf("blas-%d", firstIndex+idx))
		if err != nil {
			releaseBatch()
			return nil, err
		}
		pb.as = as
		pb.buildInfo.Dst = as.handle

		if sizeInfo.BuildScratchSize > maxScratch {
			maxScratch = sizeInfo.BuildScratchSize
		}
	}

	// All builds run back to back against a single scratch allocation
	// sized for the largest structure.
	scratch := b.device.NewBuffer("blas-scratch")
	defer scratch.Release()
	err := scratch.Allocate(int(maxScratch),
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageShaderDeviceAddressBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		releaseBatch()
		return nil, err
	}
	scratchAddress := scratch.DeviceAddress()

	var queryPool vk.QueryPool
	if compact {
		queryInfo := vk.QueryPoolCreateInfo{
			SType:      vk.StructureTypeQueryPoolCreateInfo,
			QueryType:  vk.QueryTypeAccelerationStructureCompactedSize,
			QueryCount: uint32(len(builds)),
		}
		if ret := vk.CreateQueryPool(b.device.handle, &queryInfo, nil, &queryPool); ret != vk.Success {
			releaseBatch()
			return nil, fmt.Errorf("vulkan device (%s): could not create compaction query pool: %s", b.device.Name, vk.Error(ret))
		}
		defer vk.DestroyQueryPool(b.device.handle, queryPool, nil)
	}

	err = b.device.OneShot(func(cmd vk.CommandBuffer) error {
		if compact {
			vk.CmdResetQueryPool(cmd, queryPool, 0, uint32(len(builds)))
		}
		for idx := range builds {
			pb := &builds[idx]
			pb.buildInfo.ScratchData = scratchAddress

			khrCmdBuildAccelerationStructure(b.device, cmd, &pb.buildInfo, pb.ranges)
			buildBarrier(cmd)

			if compact {
				khrCmdWriteCompactedSizes(b.device, cmd,
					[]vk.AccelerationStructure{pb.as.handle}, queryPool, uint32(idx))
			}
		}
		return nil
	})
	if err != nil {
		releaseBatch()
		return nil, err
	}

	if compact {
		pending := make([]*accelStruct, len(builds))
		for idx := range builds {
			pending[idx] = &builds[idx].as
		}
		if err = b.compactBottomLevel(pending, queryPool); err != nil {
			releaseBatch()
			return nil, err
		}
	}

	indices := make([]int, len(builds))
	for idx := range builds {
		b.blas = append(b.blas, builds[idx].as)
		indices[idx] = firstIndex + idx
	}

	b.logger.Infof("built %d bottom level structure(s)", len(builds))
	return indices, nil
}

// Replace each freshly built structure with a compacted copy using the
// sizes recorded in the query pool. On error the caller still owns every
// entry, compacted or not.
func (b *Builder) compactBottomLevel(structs []*accelStruct, queryPool vk.QueryPool) error {
	sizes := make([]vk.DeviceSize, len(structs))
	ret := vk.GetQueryPoolResults(b.device.handle, queryPool, 0, uint32(len(structs)),
		uint64(len(sizes))*uint64(unsafe.Sizeof(sizes[0])), unsafe.Pointer(&sizes[0]),
		vk.DeviceSize(unsafe.Sizeof(sizes[0])), vk.QueryResultFlags(vk.QueryResult64Bit|vk.QueryResultWaitBit))
	if ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not read compacted sizes: %s", b.device.Name, vk.Error(ret))
	}

	for idx, src := range structs {
		compacted, err := b.createAccelStruct(accelerationStructureTypeBottomLevel,
			sizes[idx], fmt.Sprintf("blas-%d-compact", idx))
		if err != nil {
			return err
		}

		err = b.device.OneShot(func(cmd vk.CommandBuffer) error {
			copyInfo := copyAccelerationStructureInfo{
				SType: uint32(vk.StructureTypeCopyAccelerationStructureInfo),
				Src:   src.handle,
				Dst:   compacted.handle,
				Mode:  copyAccelerationStructureModeCompact,
			}
			khrCmdCopyAccelerationStructure(b.device, cmd, &copyInfo)
			return nil
		})
		if err != nil {
			compacted.release(b.device)
			return err
		}

		b.logger.Debugf("compacted blas %d: %d -> %d bytes", idx, src.buffer.Size(), sizes[idx])
		src.release(b.device)
		*src = compacted
	}

	return nil
}

// Build the top level acceleration structure from the given instance
// sequence, replacing any previous one. All referenced bottom level
// structures must have been built. The call blocks until the device work
// completes.
func (b *Builder) BuildTopLevel(instances []tracer.Instance, flags tracer.BuildFlags) error {
	if len(instances) == 0 {
		return ErrEmptyInstanceList
	}
	if len(b.blas) == 0 {
		return ErrNoBottomLevel
	}

	packed := make([]packedInstance, len(instances))
	for idx, inst := range instances {
		if int(inst.BlasIndex) >= len(b.blas) {
			return fmt.Errorf("%w (instance %d references blas %d of %d)", ErrUnknownBlas, idx, inst.BlasIndex, len(b.blas))
		}
		packed[idx] = packInstance(inst, b.blas[inst.BlasIndex].address)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(&packed[0])), len(packed)*packedInstanceSize)
	instanceBuf := b.device.NewBuffer("tlas-instances")
	err := instanceBuf.AllocateAndWriteData(data,
		vk.BufferUsageFlags(vk.BufferUsageShaderDeviceAddressBit|vk.BufferUsageAccelerationStructureBuildInputReadOnlyBit))
	if err != nil {
		return err
	}

	instancesData := accelerationStructureGeometryInstancesData{
		SType:           uint32(vk.StructureTypeAccelerationStructureGeometryInstancesData),
		ArrayOfPointers: vk.False,
		Data:            instanceBuf.DeviceAddress(),
	}

	geom := accelerationStructureGeometry{
		SType:        uint32(vk.StructureTypeAccelerationStructureGeometry),
		GeometryType: geometryTypeInstances,
	}
	geom.setInstances(instancesData)

	buildInfo := accelerationStructureBuildGeometryInfo{
		SType:         uint32(vk.StructureTypeAccelerationStructureBuildGeometryInfo),
		Type:          accelerationStructureTypeTopLevel,
		Flags:         buildFlagBits(flags),
		Mode:          buildAccelerationStructureModeBuild,
		GeometryCount: 1,
		PGeometries:   &geom,
	}

	sizeInfo := accelerationStructureBuildSizesInfo{
		SType: uint32(vk.StructureTypeAccelerationStructureBuildSizesInfo),
	}
	khrGetAccelerationStructureBuildSizes(b.device, &buildInfo, []uint32{uint32(len(instances))}, &sizeInfo)

	tlas, err := b.createAccelStruct(accelerationStructureTypeTopLevel,
		sizeInfo.AccelerationStructureSize, "tlas")
	if err != nil {
		instanceBuf.Release()
		return err
	}
	buildInfo.Dst = tlas.handle

	scratch := b.device.NewBuffer("tlas-scratch")
	defer scratch.Release()
	err = scratch.Allocate(int(sizeInfo.BuildScratchSize),
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageShaderDeviceAddressBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		tlas.release(b.device)
		instanceBuf.Release()
		return err
	}
	buildInfo.ScratchData = scratch.DeviceAddress()

	ranges := []accelerationStructureBuildRangeInfo{{PrimitiveCount: uint32(len(instances))}}
	err = b.device.OneShot(func(cmd vk.CommandBuffer) error {
		khrCmdBuildAccelerationStructure(b.device, cmd, &buildInfo, ranges)
		return nil
	})
	if err != nil {
		tlas.release(b.device)
		instanceBuf.Release()
		return err
	}

	// The new structure supersedes the previous one; the old handle is
	// invalid from here on.
	b.tlas.release(b.device)
	if b.instanceBuf != nil {
		b.instanceBuf.Release()
	}
	b.tlas = tlas
	b.instanceBuf = instanceBuf
	b.hasTopLevel = true

	b.logger.Infof("built top level structure over %d instance(s)", len(instances))
	return nil
}

// The current top level structure handle. Calling this before any top
// level build is a programming error.
func (b *Builder) TopLevelHandle() (vk.AccelerationStructure, error) {
	if !b.hasTopLevel {
		return nil, ErrNoTopLevel
	}
	return b.tlas.handle, nil
}

// Number of bottom level structures built so far.
func (b *Builder) BottomLevelCount() int {
	return len(b.blas)
}

// Release all acceleration structures and their buffers. Structures are
// destroyed before their backing buffers; idempotent.
func (b *Builder) Destroy() {
	b.tlas.release(b.device)
	if b.instanceBuf != nil {
		b.instanceBuf.Release()
		b.instanceBuf = nil
	}
	for idx := range b.blas {
		b.blas[idx].release(b.device)
	}
	b.blas = nil
	b.hasTopLevel = false
}
