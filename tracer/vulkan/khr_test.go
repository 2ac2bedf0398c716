package vulkan

import (
	"testing"
	"unsafe"
)

// The extension structs are handed to the driver as raw memory, so the Go
// mirrors must match the C declarations byte for byte.
func TestExtensionStructSizes(t *testing.T) {
	sizes := []struct {
		name     string
		got      uintptr
		expected uintptr
	}{
		{"accelerationStructureGeometryTrianglesData", unsafe.Sizeof(accelerationStructureGeometryTrianglesData{}), 64},
		{"accelerationStructureGeometryAabbsData", unsafe.Sizeof(accelerationStructureGeometryAabbsData{}), 32},
		{"accelerationStructureGeometryInstancesData", unsafe.Sizeof(accelerationStructureGeometryInstancesData{}), 32},
		{"accelerationStructureGeometry", unsafe.Sizeof(accelerationStructureGeometry{}), 96},
		{"accelerationStructureBuildGeometryInfo", unsafe.Sizeof(accelerationStructureBuildGeometryInfo{}), 80},
		{"accelerationStructureBuildRangeInfo", unsafe.Sizeof(accelerationStructureBuildRangeInfo{}), 16},
		{"accelerationStructureBuildSizesInfo", unsafe.Sizeof(accelerationStructureBuildSizesInfo{}), 40},
		{"accelerationStructureCreateInfo", unsafe.Sizeof(accelerationStructureCreateInfo{}), 64},
		{"accelerationStructureDeviceAddressInfo", unsafe.Sizeof(accelerationStructureDeviceAddressInfo{}), 24},
		{"copyAccelerationStructureInfo", unsafe.Sizeof(copyAccelerationStructureInfo{}), 40},
		{"writeDescriptorSetAccelerationStructure", unsafe.Sizeof(writeDescriptorSetAccelerationStructure{}), 32},
		{"stridedDeviceAddressRegion", unsafe.Sizeof(stridedDeviceAddressRegion{}), 24},
		{"pipelineShaderStageCreateInfo", unsafe.Sizeof(pipelineShaderStageCreateInfo{}), 48},
		{"rayTracingShaderGroupCreateInfo", unsafe.Sizeof(rayTracingShaderGroupCreateInfo{}), 48},
		{"rayTracingPipelineCreateInfo", unsafe.Sizeof(rayTracingPipelineCreateInfo{}), 104},
		{"bufferDeviceAddressInfo", unsafe.Sizeof(bufferDeviceAddressInfo{}), 24},
		{"physicalDeviceBufferDeviceAddressFeatures", unsafe.Sizeof(physicalDeviceBufferDeviceAddressFeatures{}), 32},
		{"physicalDeviceAccelerationStructureFeatures", unsafe.Sizeof(physicalDeviceAccelerationStructureFeatures{}), 40},
		{"physicalDeviceRayTracingPipelineFeatures", unsafe.Sizeof(physicalDeviceRayTracingPipelineFeatures{}), 40},
		{"physicalDeviceRayTracingPipelineProperties", unsafe.Sizeof(physicalDeviceRayTracingPipelineProperties{}), 48},
	}
	for _, tc := range sizes {
		if tc.got != tc.expected {
			t.Fatalf("expected %s size %d; got %d", tc.name, tc.expected, tc.got)
		}
	}
}

func TestBuildGeometryInfoLayout(t *testing.T) {
	var info accelerationStructureBuildGeometryInfo

	offsets := []struct {
		field    string
		got      uintptr
		expected uintptr
	}{
		{"PNext", unsafe.Offsetof(info.PNext), 8},
		{"Type", unsafe.Offsetof(info.Type), 16},
		{"Flags", unsafe.Offsetof(info.Flags), 20},
		{"Mode", unsafe.Offsetof(info.Mode), 24},
		{"Src", unsafe.Offsetof(info.Src), 32},
		{"Dst", unsafe.Offsetof(info.Dst), 40},
		{"GeometryCount", unsafe.Offsetof(info.GeometryCount), 48},
		{"PGeometries", unsafe.Offsetof(info.PGeometries), 56},
		{"PpGeometries", unsafe.Offsetof(info.PpGeometries), 64},
		{"ScratchData", unsafe.Offsetof(info.ScratchData), 72},
	}
	for _, tc := range offsets {
		if tc.got != tc.expected {
			t.Fatalf("expected %s at offset %d; got %d", tc.field, tc.expected, tc.got)
		}
	}
}

func TestRayTracingPipelineCreateInfoLayout(t *testing.T) {
	var info rayTracingPipelineCreateInfo

	offsets := []struct {
		field    string
		got      uintptr
		expected uintptr
	}{
		{"Flags", unsafe.Offsetof(info.Flags), 16},
		{"StageCount", unsafe.Offsetof(info.StageCount), 20},
		{"PStages", unsafe.Offsetof(info.PStages), 24},
		{"GroupCount", unsafe.Offsetof(info.GroupCount), 32},
		{"PGroups", unsafe.Offsetof(info.PGroups), 40},
		{"MaxPipelineRayRecursionDepth", unsafe.Offsetof(info.MaxPipelineRayRecursionDepth), 48},
		{"PLibraryInfo", unsafe.Offsetof(info.PLibraryInfo), 56},
		{"Layout", unsafe.Offsetof(info.Layout), 80},
		{"BasePipelineIndex", unsafe.Offsetof(info.BasePipelineIndex), 96},
	}
	for _, tc := range offsets {
		if tc.got != tc.expected {
			t.Fatalf("expected %s at offset %d; got %d", tc.field, tc.expected, tc.got)
		}
	}
}

// The geometry union must fit each of its three member records.
func TestGeometryUnionHoldsMembers(t *testing.T) {
	var g accelerationStructureGeometry
	union := unsafe.Sizeof(g.Geometry)

	if s := unsafe.Sizeof(accelerationStructureGeometryTrianglesData{}); s > union {
		t.Fatalf("expected triangles data (%d bytes) to fit in the %d byte union", s, union)
	}
	if s := unsafe.Sizeof(accelerationStructureGeometryAabbsData{}); s > union {
		t.Fatalf("expected aabbs data (%d bytes) to fit in the %d byte union", s, union)
	}
	if s := unsafe.Sizeof(accelerationStructureGeometryInstancesData{}); s > union {
		t.Fatalf("expected instances data (%d bytes) to fit in the %d byte union", s, union)
	}
	if off := unsafe.Offsetof(g.Geometry); off != 24 {
		t.Fatalf("expected union at offset 24; got %d", off)
	}
}
