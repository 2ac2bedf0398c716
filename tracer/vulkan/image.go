package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// OffscreenFormat is the format of the image both render paths produce.
// A float format keeps the progressive accumulation of the ray traced
// path lossless across frames.
const OffscreenFormat = vk.FormatR32g32b32a32Sfloat

// OffscreenImage is the render target shared by the rasterized and ray
// traced paths. Rays write it as a storage image, the render pass draws
// into it, and every frame ends with a blit to the swapchain.
type OffscreenImage struct {
	device *Device

	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	extent vk.Extent2D
}

// Create the offscreen image in general layout so the first frame can use
// it with either path.
func NewOffscreenImage(device *Device, extent vk.Extent2D) (*OffscreenImage, error) {
	img := &OffscreenImage{device: device, extent: extent}

	imageInfo := vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		ImageType:   vk.ImageType2d,
		Format:      OffscreenFormat,
		Extent:      vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage: vk.ImageUsageFlags(vk.ImageUsageStorageBit |
			vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
	}
	if ret := vk.CreateImage(device.handle, &imageInfo, nil, &img.handle); ret != vk.Success {
		return nil, fmt.Errorf("vulkan device (%s): could not create offscreen image: %s", device.Name, vk.Error(ret))
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device.handle, img.handle, &memReq)
	memReq.Deref()

	typeIndex, err := device.MemoryTypeIndex(memReq.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.Destroy()
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	if ret := vk.AllocateMemory(device.handle, &allocInfo, nil, &img.memory); ret != vk.Success {
		img.Destroy()
		return nil, fmt.Errorf("vulkan device (%s): could not allocate offscreen image memory: %s", device.Name, vk.Error(ret))
	}
	if ret := vk.BindImageMemory(device.handle, img.handle, img.memory, 0); ret != vk.Success {
		img.Destroy()
		return nil, fmt.Errorf("vulkan device (%s): could not bind offscreen image memory: %s", device.Name, vk.Error(ret))
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   OffscreenFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if ret := vk.CreateImageView(device.handle, &viewInfo, nil, &img.view); ret != vk.Success {
		img.Destroy()
		return nil, fmt.Errorf("vulkan device (%s): could not create offscreen image view: %s", device.Name, vk.Error(ret))
	}

	err = device.OneShot(func(cmd vk.CommandBuffer) error {
		transitionImage(cmd, img.handle, vk.ImageLayoutUndefined, vk.ImageLayoutGeneral)
		return nil
	})
	if err != nil {
		img.Destroy()
		return nil, err
	}

	return img, nil
}

// Handle returns the image handle.
func (img *OffscreenImage) Handle() vk.Image {
	return img.handle
}

// View returns the image view bound to the render path descriptors.
func (img *OffscreenImage) View() vk.ImageView {
	return img.view
}

// Extent returns the image dimensions.
func (img *OffscreenImage) Extent() vk.Extent2D {
	return img.extent
}

// CopyTo records a blit of the offscreen image into a swapchain image,
// handling the layout round trip. The destination ends up ready for
// present and the offscreen image back in general layout. The blit also
// converts from the float offscreen format to the surface format.
func (img *OffscreenImage) CopyTo(cmd vk.CommandBuffer, dst vk.Image, dstExtent vk.Extent2D) {
	transitionImage(cmd, img.handle, vk.ImageLayoutGeneral, vk.ImageLayoutTransferSrcOptimal)
	transitionImage(cmd, dst, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(img.extent.Width), Y: int32(img.extent.Height), Z: 1},
		},
		DstSubresource: layers,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cmd,
		img.handle, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterNearest)

	transitionImage(cmd, dst, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc)
	transitionImage(cmd, img.handle, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutGeneral)
}

// Release view, image and memory. Idempotent.
func (img *OffscreenImage) Destroy() {
	if img.view != vk.NullImageView {
		vk.DestroyImageView(img.device.handle, img.view, nil)
		img.view = vk.NullImageView
	}
	if img.handle != vk.NullImage {
		vk.DestroyImage(img.device.handle, img.handle, nil)
		img.handle = vk.NullImage
	}
	if img.memory != vk.NullDeviceMemory {
		vk.FreeMemory(img.device.handle, img.memory, nil)
		img.memory = vk.NullDeviceMemory
	}
}

// Record a full-image layout transition with a heavyweight barrier. Frame
// recording uses a handful of these per frame so precision buys nothing.
func transitionImage(cmd vk.CommandBuffer, image vk.Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
