package renderer

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/skanti/vk-raytracing-tutorial-KHR/log"
	"github.com/skanti/vk-raytracing-tutorial-KHR/scene"
	"github.com/skanti/vk-raytracing-tutorial-KHR/tracer/vulkan"
	"github.com/skanti/vk-raytracing-tutorial-KHR/types"
)

const (
	// Coefficients for converting delta cursor movements to yaw/pitch camera angles.
	mouseSensitivityX float32 = 0.005
	mouseSensitivityY float32 = 0.005

	// Camera movement speed
	cameraMoveSpeed float32 = 0.25
)

const windowTitle = "vk-raytracing"

// An interactive window renderer. Each frame it records either the ray
// traced or the rasterized path into a shared offscreen image and blits
// the result to the swapchain. The R key switches between the two paths
// at runtime.
type interactiveRenderer struct {
	logger log.Logger

	sc     *scene.Scene
	camera *scene.Camera

	window   *glfw.Window
	instance vk.Instance
	surface  vk.Surface

	device    *vulkan.Device
	swapchain *vulkan.Swapchain
	offscreen *vulkan.OffscreenImage
	sceneRes  *vulkan.SceneResources
	rt        *vulkan.Raytracer
	raster    *vulkan.Raster

	cmdBufs        []vk.CommandBuffer
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence

	// state
	rasterized    bool
	resized       bool
	lastCursorPos types.Vec2
	mousePressed  bool

	stats FrameStats

	// mutex for synchronizing camera updates with frame recording
	sync.Mutex
}

// Create a new interactive renderer displaying the given scene.
func NewInteractive(sc *scene.Scene, opts Options) (Renderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}

	r := &interactiveRenderer{
		logger:     log.New("renderer"),
		sc:         sc,
		camera:     sc.Camera,
		rasterized: opts.StartRasterized,
	}

	if err := r.initWindow(opts); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.initVulkan(opts); err != nil {
		r.Close()
		return nil, err
	}

	r.camera.SetupProjection(float32(opts.FrameW) / float32(opts.FrameH))

	r.window.SetKeyCallback(r.onKeyEvent)
	r.window.SetMouseButtonCallback(r.onMouseEvent)
	r.window.SetCursorPosCallback(r.onCursorPosEvent)
	r.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		r.resized = true
	})

	return r, nil
}

func (r *interactiveRenderer) initWindow(opts Options) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("renderer: could not initialize glfw: %v", err)
	}
	if !glfw.VulkanSupported() {
		return fmt.Errorf("renderer: no vulkan loader available")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(int(opts.FrameW), int(opts.FrameH), windowTitle, nil, nil)
	if err != nil {
		return fmt.Errorf("renderer: could not create window: %v", err)
	}
	r.window = window

	if err = vulkan.Bootstrap(glfw.GetVulkanGetInstanceProcAddress()); err != nil {
		return fmt.Errorf("renderer: could not initialize vulkan loader: %v", err)
	}
	return nil
}

func (r *interactiveRenderer) initVulkan(opts Options) error {
	instance, err := vulkan.NewInstance(windowTitle, r.window.GetRequiredInstanceExtensions())
	if err != nil {
		return err
	}
	r.instance = instance

	surfacePtr, err := r.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return fmt.Errorf("renderer: could not create window surface: %v", err)
	}
	r.surface = vk.SurfaceFromPointer(surfacePtr)

	if r.device, err = vulkan.NewDevice(instance, r.surface, opts.ForceDevice); err != nil {
		return err
	}

	extent := vk.Extent2D{Width: opts.FrameW, Height: opts.FrameH}
	if r.swapchain, err = vulkan.NewSwapchain(r.device, r.surface, extent); err != nil {
		return err
	}
	extent = r.swapchain.Extent()

	if r.offscreen, err = vulkan.NewOffscreenImage(r.device, extent); err != nil {
		return err
	}
	if r.sceneRes, err = vulkan.NewSceneResources(r.device, r.sc); err != nil {
		return err
	}

	r.rt = vulkan.NewRaytracer(r.device)
	aabbCount := r.sceneRes.AabbCount
	if err = r.rt.CreateBottomLevelAS(r.sceneRes.Meshes, r.sceneRes.AabbBuf, aabbCount); err != nil {
		return err
	}
	if err = r.rt.CreateTopLevelAS(r.sc.Instances); err != nil {
		return err
	}
	if err = r.rt.CreateDescriptorSet(r.offscreen.View()); err != nil {
		return err
	}
	if err = r.rt.CreatePipeline(r.sceneRes.Layout(), vulkan.DefaultPipelineConfig(opts.ShaderDir)); err != nil {
		return err
	}

	if r.raster, err = vulkan.NewRaster(r.device, r.sceneRes.Layout(), vulkan.OffscreenFormat, opts.ShaderDir); err != nil {
		return err
	}
	if err = r.raster.Resize(extent, r.offscreen.View()); err != nil {
		return err
	}

	if r.cmdBufs, err = r.device.NewCommandBuffers(uint32(r.swapchain.ImageCount())); err != nil {
		return err
	}
	return r.createSyncObjects()
}

func (r *interactiveRenderer) createSyncObjects() error {
	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if ret := vk.CreateSemaphore(r.device.Handle(), &semInfo, nil, &r.imageAvailable); ret != vk.Success {
		return fmt.Errorf("renderer: could not create semaphore: %s", vk.Error(ret))
	}
	if ret := vk.CreateSemaphore(r.device.Handle(), &semInfo, nil, &r.renderFinished); ret != vk.Success {
		return fmt.Errorf("renderer: could not create semaphore: %s", vk.Error(ret))
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	if ret := vk.CreateFence(r.device.Handle(), &fenceInfo, nil, &r.inFlight); ret != vk.Success {
		return fmt.Errorf("renderer: could not create fence: %s", vk.Error(ret))
	}
	return nil
}

func (r *interactiveRenderer) Render() error {
	for !r.window.ShouldClose() {
		glfw.PollEvents()

		// Skip frames while minimized.
		if w, h := r.window.GetFramebufferSize(); w == 0 || h == 0 {
			glfw.WaitEvents()
			continue
		}

		if r.resized {
			if err := r.recreateSize(); err != nil {
				return err
			}
			r.resized = false
		}

		if err := r.renderFrame(); err != nil {
			return err
		}
	}

	r.device.WaitIdle()
	return nil
}

func (r *interactiveRenderer) renderFrame() error {
	start := time.Now()
	device := r.device.Handle()

	vk.WaitForFences(device, 1, []vk.Fence{r.inFlight}, vk.True, ^uint64(0))

	imageIndex, stale, err := r.swapchain.AcquireNext(r.imageAvailable)
	if err != nil {
		return err
	}
	if stale {
		r.resized = true
		return nil
	}

	vk.ResetFences(device, 1, []vk.Fence{r.inFlight})

	r.Lock()
	if err = r.sceneRes.UpdateCamera(r.camera); err != nil {
		r.Unlock()
		return err
	}

	cmd := r.cmdBufs[imageIndex]
	vk.ResetCommandBuffer(cmd, 0)

	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if ret := vk.BeginCommandBuffer(cmd, &beginInfo); ret != vk.Success {
		r.Unlock()
		return fmt.Errorf("renderer: could not begin command buffer: %s", vk.Error(ret))
	}

	if r.rasterized {
		r.raster.Draw(cmd, r.sceneRes, r.sc.Instances, r.sc.Light, r.sc.ClearColor)
	} else {
		r.rt.Raytrace(cmd, r.offscreen.Extent(), r.camera, r.sc.Light, r.sc.ClearColor, r.sceneRes.Set())
	}
	r.offscreen.CopyTo(cmd, r.swapchain.Image(imageIndex), r.swapchain.Extent())

	if ret := vk.EndCommandBuffer(cmd); ret != vk.Success {
		r.Unlock()
		return fmt.Errorf("renderer: could not end command buffer: %s", vk.Error(ret))
	}
	r.Unlock()

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{r.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{r.renderFinished},
	}
	if ret := vk.QueueSubmit(r.device.Queue(), 1, []vk.SubmitInfo{submitInfo}, r.inFlight); ret != vk.Success {
		return fmt.Errorf("renderer: could not submit frame: %s", vk.Error(ret))
	}

	stale, err = r.swapchain.Present(imageIndex, r.renderFinished)
	if err != nil {
		return err
	}
	if stale {
		r.resized = true
	}

	r.stats.FrameTime = time.Since(start)
	r.stats.Rasterized = r.rasterized
	if r.rasterized {
		r.stats.AccumulatedFrames = 0
	} else if counter := r.rt.FrameCounter(); counter >= 0 {
		r.stats.AccumulatedFrames = uint32(counter) + 1
	} else {
		r.stats.AccumulatedFrames = 0
	}
	return nil
}

// Rebuild everything sized to the window after a resize.
func (r *interactiveRenderer) recreateSize() error {
	w, h := r.window.GetFramebufferSize()

	r.device.WaitIdle()
	if err := r.swapchain.Recreate(vk.Extent2D{Width: uint32(w), Height: uint32(h)}); err != nil {
		return err
	}
	extent := r.swapchain.Extent()

	r.offscreen.Destroy()
	offscreen, err := vulkan.NewOffscreenImage(r.device, extent)
	if err != nil {
		return err
	}
	r.offscreen = offscreen

	if err = r.raster.Resize(extent, r.offscreen.View()); err != nil {
		return err
	}
	r.rt.UpdateDescriptorSet(r.offscreen.View())

	r.device.FreeCommandBuffers(r.cmdBufs)
	if r.cmdBufs, err = r.device.NewCommandBuffers(uint32(r.swapchain.ImageCount())); err != nil {
		return err
	}

	r.camera.SetupProjection(float32(extent.Width) / float32(extent.Height))
	r.logger.Debugf("resized to %dx%d", extent.Width, extent.Height)
	return nil
}

func (r *interactiveRenderer) onKeyEvent(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}

	var forward, right float32
	switch key {
	case glfw.KeyEscape:
		r.window.SetShouldClose(true)
		return
	case glfw.KeyR:
		if action == glfw.Press {
			r.Lock()
			r.rasterized = !r.rasterized
			if !r.rasterized {
				r.rt.ResetAccumulation()
			}
			r.Unlock()
		}
		return
	case glfw.KeyW, glfw.KeyUp:
		forward = cameraMoveSpeed
	case glfw.KeyS, glfw.KeyDown:
		forward = -cameraMoveSpeed
	case glfw.KeyA, glfw.KeyLeft:
		right = -cameraMoveSpeed
	case glfw.KeyD, glfw.KeyRight:
		right = cameraMoveSpeed
	default:
		return
	}

	// Double speed if shift is pressed
	var speedScaler float32 = 1.0
	if (mods & glfw.ModShift) == glfw.ModShift {
		speedScaler = 2.0
	}

	r.Lock()
	r.camera.Move(speedScaler*forward, speedScaler*right)
	r.Unlock()
}

func (r *interactiveRenderer) onMouseEvent(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mod glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}

	r.mousePressed = action == glfw.Press
	if r.mousePressed {
		xPos, yPos := w.GetCursorPos()
		r.lastCursorPos[0], r.lastCursorPos[1] = float32(xPos), float32(yPos)
	}
}

func (r *interactiveRenderer) onCursorPosEvent(w *glfw.Window, xPos, yPos float64) {
	if !r.mousePressed {
		return
	}

	// Calculate delta movement and apply mouse sensitivity
	newPos := types.XY(float32(xPos), float32(yPos))
	delta := r.lastCursorPos.Sub(newPos)
	r.lastCursorPos = newPos

	r.Lock()
	r.camera.Yaw = delta[0] * mouseSensitivityX
	r.camera.Pitch = delta[1] * mouseSensitivityY
	r.camera.Update()
	r.Unlock()
}

func (r *interactiveRenderer) Stats() FrameStats {
	return r.stats
}

// Release all resources in reverse creation order.
func (r *interactiveRenderer) Close() {
	if r.device != nil {
		r.device.WaitIdle()

		device := r.device.Handle()
		if r.inFlight != vk.NullFence {
			vk.DestroyFence(device, r.inFlight, nil)
			r.inFlight = vk.NullFence
		}
		if r.renderFinished != vk.NullSemaphore {
			vk.DestroySemaphore(device, r.renderFinished, nil)
			r.renderFinished = vk.NullSemaphore
		}
		if r.imageAvailable != vk.NullSemaphore {
			vk.DestroySemaphore(device, r.imageAvailable, nil)
			r.imageAvailable = vk.NullSemaphore
		}

		if r.raster != nil {
			r.raster.Destroy()
		}
		if r.rt != nil {
			r.rt.Destroy()
		}
		if r.sceneRes != nil {
			r.sceneRes.Destroy()
		}
		if r.offscreen != nil {
			r.offscreen.Destroy()
		}
		if r.swapchain != nil {
			r.swapchain.Destroy()
		}
		r.device.Close()
		r.device = nil
	}

	if r.instance != nil {
		if r.surface != vk.NullSurface {
			vk.DestroySurface(r.instance, r.surface, nil)
			r.surface = vk.NullSurface
		}
		vk.DestroyInstance(r.instance, nil)
		r.instance = nil
	}

	if r.window != nil {
		r.window.Destroy()
		r.window = nil
		glfw.Terminate()
	}
}
