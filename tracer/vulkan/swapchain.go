package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
)

// Swapchain owns the presentation chain and its per-image views. It
// reports when the surface has gone stale so the renderer can trigger a
// rebuild of everything sized to the window.
type Swapchain struct {
	device  *Device
	surface vk.Surface
	logger  log.Logger

	handle vk.Swapchain
	images []vk.Image
	format vk.Format
	extent vk.Extent2D
}

func NewSwapchain(device *Device, surface vk.Surface, extent vk.Extent2D) (*Swapchain, error) {
	sc := &Swapchain{
		device:  device,
		surface: surface,
		logger:  log.New("swapchain"),
	}
	if err := sc.create(extent); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) create(extent vk.Extent2D) error {
	var caps vk.SurfaceCapabilities
	if ret := vk.GetPhysicalDeviceSurfaceCapabilities(sc.device.physical, sc.surface, &caps); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not query surface capabilities: %s", sc.device.Name, vk.Error(ret))
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	// The surface dictates the extent unless it leaves it open.
	if caps.CurrentExtent.Width != ^uint32(0) {
		extent = caps.CurrentExtent
	} else {
		extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
		extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	}

	format, colorSpace, err := sc.pickSurfaceFormat()
	if err != nil {
		return err
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	oldHandle := sc.handle
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format,
		ImageColorSpace:  colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}

	var handle vk.Swapchain
	if ret := vk.CreateSwapchain(sc.device.handle, &createInfo, nil, &handle); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not create swapchain: %s", sc.device.Name, vk.Error(ret))
	}
	if oldHandle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device.handle, oldHandle, nil)
	}
	sc.handle = handle
	sc.format = format
	sc.extent = extent

	var count uint32
	if ret := vk.GetSwapchainImages(sc.device.handle, sc.handle, &count, nil); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not count swapchain images: %s", sc.device.Name, vk.Error(ret))
	}
	sc.images = make([]vk.Image, count)
	if ret := vk.GetSwapchainImages(sc.device.handle, sc.handle, &count, sc.images); ret != vk.Success {
		return fmt.Errorf("vulkan device (%s): could not fetch swapchain images: %s", sc.device.Name, vk.Error(ret))
	}

	sc.logger.Debugf("created %dx%d swapchain with %d images", extent.Width, extent.Height, count)
	return nil
}

func (sc *Swapchain) pickSurfaceFormat() (vk.Format, vk.ColorSpace, error) {
	var count uint32
	if ret := vk.GetPhysicalDeviceSurfaceFormats(sc.device.physical, sc.surface, &count, nil); ret != vk.Success || count == 0 {
		return 0, 0, fmt.Errorf("vulkan device (%s): could not query surface formats: %s", sc.device.Name, vk.Error(ret))
	}
	formats := make([]vk.SurfaceFormat, count)
	if ret := vk.GetPhysicalDeviceSurfaceFormats(sc.device.physical, sc.surface, &count, formats); ret != vk.Success {
		return 0, 0, fmt.Errorf("vulkan device (%s): could not query surface formats: %s", sc.device.Name, vk.Error(ret))
	}

	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm {
			return formats[i].Format, formats[i].ColorSpace, nil
		}
	}
	return formats[0].Format, formats[0].ColorSpace, nil
}

// Recreate rebuilds the chain for a new window size, reusing the old
// chain as the resource donor.
func (sc *Swapchain) Recreate(extent vk.Extent2D) error {
	sc.device.WaitIdle()
	return sc.create(extent)
}

// AcquireNext grabs the next presentable image, signalling the given
// semaphore when it is ready. The second return value reports a stale
// surface that requires a Recreate.
func (sc *Swapchain) AcquireNext(signal vk.Semaphore) (uint32, bool, error) {
	var index uint32
	ret := vk.AcquireNextImage(sc.device.handle, sc.handle, ^uint64(0), signal, vk.NullFence, &index)
	switch ret {
	case vk.Success, vk.Suboptimal:
		return index, false, nil
	case vk.ErrorOutOfDate:
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("vulkan device (%s): could not acquire swapchain image: %s", sc.device.Name, vk.Error(ret))
	}
}

// Present queues the image for display once the wait semaphore fires.
// The boolean reports a stale surface, mirroring AcquireNext.
func (sc *Swapchain) Present(index uint32, wait vk.Semaphore) (bool, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{index},
	}
	ret := vk.QueuePresent(sc.device.queue, &presentInfo)
	switch ret {
	case vk.Success:
		return false, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return true, nil
	default:
		return false, fmt.Errorf("vulkan device (%s): could not present swapchain image: %s", sc.device.Name, vk.Error(ret))
	}
}

// Image returns the swapchain image at the given index.
func (sc *Swapchain) Image(index uint32) vk.Image {
	return sc.images[index]
}

// ImageCount returns the number of images in the chain.
func (sc *Swapchain) ImageCount() int {
	return len(sc.images)
}

// Extent returns the current chain dimensions.
func (sc *Swapchain) Extent() vk.Extent2D {
	return sc.extent
}

// Destroy releases the chain. The surface belongs to the caller.
func (sc *Swapchain) Destroy() {
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
	sc.images = nil
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
