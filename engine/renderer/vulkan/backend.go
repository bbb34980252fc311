package vulkan

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/renderer"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// SurfaceProvider is the window the backend presents to.
type SurfaceProvider interface {
	GetRequiredExtensionNames() []string
	// CreateWindowSurface returns the VkSurfaceKHR handle for instance.
	CreateWindowSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (uint32, uint32)
}

// VulkanRenderer implements renderer.RendererBackend on top of one device,
// one combined queue and one swapchain.
type VulkanRenderer struct {
	surface      SurfaceProvider
	config       metadata.RendererBackendConfig
	fenceTimeout time.Duration

	context  *VulkanContext
	releases *core.ReleaseStack

	vertexCount uint32

	// Guards the cached extent, read from other goroutines.
	mu           sync.RWMutex
	extentWidth  uint32
	extentHeight uint32
}

var _ renderer.RendererBackend = (*VulkanRenderer)(nil)

func New(surface SurfaceProvider, config metadata.RendererBackendConfig) (*VulkanRenderer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout, err := config.FenceTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return &VulkanRenderer{
		surface:      surface,
		config:       config,
		fenceTimeout: timeout,
		context:      NewVulkanContext(),
		releases:     core.NewReleaseStack(),
	}, nil
}

// Initialize creates every GPU object needed to render. On failure whatever
// was created is released again.
func (vr *VulkanRenderer) Initialize(appName string, vertexShader, fragmentShader []byte) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("%w: GetInstanceProcAddress is nil", core.ErrInstanceCreationFailed)
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return fmt.Errorf("%w: %s", core.ErrInstanceCreationFailed, err)
	}

	if err := vr.initialize(appName, vertexShader, fragmentShader); err != nil {
		if rerr := vr.releases.Release(); rerr != nil {
			core.LogError("release after failed initialization: %s", rerr)
		}
		return err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) initialize(appName string, vertexShader, fragmentShader []byte) error {
	ctx := vr.context
	ctx.FramebufferWidth, ctx.FramebufferHeight = vr.surface.FramebufferSize()

	// Setup Vulkan instance.
	if err := InstanceCreate(ctx, appName, vr.surface.GetRequiredExtensionNames(), vr.config); err != nil {
		return err
	}
	vr.releases.Push("instance", func() error {
		InstanceDestroy(ctx)
		return nil
	})
	vr.releases.Push("debug report", func() error {
		debugReportDestroy(ctx)
		return nil
	})

	// Surface
	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.surface.CreateWindowSurface(ctx.Instance)
	if err != nil || surface == 0 {
		err = fmt.Errorf("%w: %v", core.ErrSurfaceCreationFailed, err)
		core.LogError(err.Error())
		return err
	}
	ctx.Surface = vk.SurfaceFromPointer(surface)
	vr.releases.Push("surface", func() error {
		if ctx.Surface != vk.NullSurface {
			vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
			ctx.Surface = vk.NullSurface
		}
		return nil
	})
	core.LogDebug("Vulkan surface created.")

	// Device creation
	if err := DeviceCreate(ctx, NewPhysicalDeviceRequirements(vr.config.DeviceExtensions)); err != nil {
		return err
	}
	vr.releases.Push("device", func() error {
		DeviceDestroy(ctx)
		return nil
	})
	// Released before the device it was allocated from.
	vr.releases.Push("vertex buffer", func() error {
		if ctx.VertexBuffer != nil {
			ctx.VertexBuffer.Destroy(ctx)
			ctx.VertexBuffer = nil
		}
		return nil
	})

	// Swapchain
	settings, err := ComputeSettings(ctx.Device.SwapchainSupport, ctx.FramebufferWidth, ctx.FramebufferHeight, vr.config.PreferMailbox)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrSwapchainCreationFailed, err)
	}
	sc, err := SwapchainCreate(ctx, settings)
	if err != nil {
		return err
	}
	ctx.Swapchain = sc
	vr.setExtent(sc.Settings.Extent)
	vr.releases.Push("swapchain", func() error {
		if ctx.Swapchain != nil {
			ctx.Swapchain.SwapchainDestroy(ctx)
		}
		return nil
	})

	rp, err := RenderpassCreate(ctx, sc.Settings.Format.Format, vr.config.ClearColour)
	if err != nil {
		return err
	}
	ctx.MainRenderpass = rp
	vr.releases.Push("renderpass", func() error {
		if ctx.MainRenderpass != nil {
			ctx.MainRenderpass.RenderpassDestroy(ctx)
		}
		return nil
	})

	// Shaders
	vr.releases.Push("shaders", func() error {
		if ctx.VertexStage != nil {
			ctx.VertexStage.Destroy(ctx)
		}
		if ctx.FragmentStage != nil {
			ctx.FragmentStage.Destroy(ctx)
		}
		return nil
	})
	if ctx.VertexStage, err = NewShaderModule(ctx, vk.ShaderStageVertexBit, vertexShader); err != nil {
		return fmt.Errorf("vertex stage: %w", err)
	}
	if ctx.FragmentStage, err = NewShaderModule(ctx, vk.ShaderStageFragmentBit, fragmentShader); err != nil {
		return fmt.Errorf("fragment stage: %w", err)
	}

	if ctx.Pipeline, err = NewGraphicsPipeline(ctx, NewPipelineConfig(ctx.MainRenderpass, ctx.VertexStage, ctx.FragmentStage)); err != nil {
		return err
	}
	vr.releases.Push("pipeline", func() error {
		if ctx.Pipeline != nil {
			ctx.Pipeline.Destroy(ctx)
		}
		return nil
	})

	// Swapchain framebuffers.
	if err := regenerateFramebuffers(ctx); err != nil {
		return err
	}
	vr.releases.Push("framebuffers", func() error {
		destroyFramebuffers(ctx)
		return nil
	})

	// Command pool and one command buffer per slot.
	pool, err := CommandPoolCreate(ctx)
	if err != nil {
		return err
	}
	ctx.Device.GraphicsCommandPool = pool
	vr.releases.Push("command pool", func() error {
		for _, cb := range ctx.GraphicsCommandBuffers {
			cb.Free(ctx, ctx.Device.GraphicsCommandPool)
		}
		ctx.GraphicsCommandBuffers = nil
		CommandPoolDestroy(ctx, ctx.Device.GraphicsCommandPool)
		ctx.Device.GraphicsCommandPool = vk.NullCommandPool
		return nil
	})
	if err := vr.createCommandBuffers(); err != nil {
		return err
	}

	// Create sync objects.
	if err := createSyncObjects(ctx, int(vr.config.SlotCount)); err != nil {
		return err
	}
	vr.releases.Push("sync objects", func() error {
		destroySyncObjects(ctx)
		return nil
	})
	return nil
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	ctx := vr.context
	ctx.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, 0, vr.config.SlotCount)
	for i := uint32(0); i < vr.config.SlotCount; i++ {
		cb, err := NewVulkanCommandBuffer(ctx, ctx.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		ctx.GraphicsCommandBuffers = append(ctx.GraphicsCommandBuffers, cb)
	}
	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func (vr *VulkanRenderer) SlotCount() uint32 {
	return vr.config.SlotCount
}

func (vr *VulkanRenderer) WaitForSlot(slot uint32) error {
	return vr.context.FrameSync[slot].InFlight.FenceWait(vr.context, vr.fenceTimeout)
}

func (vr *VulkanRenderer) AcquireNextImage(slot uint32) (uint32, renderer.SurfaceStatus, error) {
	ctx := vr.context
	var imageIndex uint32
	res := vk.AcquireNextImage(ctx.Device.LogicalDevice, ctx.Swapchain.Handle, math.MaxUint64,
		ctx.FrameSync[slot].ImageAvailable, vk.NullFence, &imageIndex)
	if status, ok := surfaceStatus(res); ok {
		return imageIndex, status, nil
	}
	switch res {
	case vk.ErrorDeviceLost:
		return 0, renderer.SurfaceOptimal, core.ErrDeviceLost
	case vk.ErrorSurfaceLost:
		return 0, renderer.SurfaceOptimal, fmt.Errorf("%w: %s", core.ErrSurfaceCreationFailed, VulkanResultString(res, true))
	default:
		return 0, renderer.SurfaceOptimal, fmt.Errorf("%w: acquire: %s", core.ErrUnknown, VulkanResultString(res, true))
	}
}

func (vr *VulkanRenderer) ResetSlot(slot uint32) error {
	return vr.context.FrameSync[slot].InFlight.FenceReset(vr.context)
}

func (vr *VulkanRenderer) RecordFrame(slot, imageIndex uint32, pushConstants metadata.PushConstants) error {
	ctx := vr.context
	return recordFrame(ctx, ctx.GraphicsCommandBuffers[slot], ctx.Swapchain.Framebuffers[imageIndex], vr.vertexCount, pushConstants)
}

func (vr *VulkanRenderer) Submit(slot uint32) (renderer.SurfaceStatus, error) {
	ctx := vr.context
	commandBuffer := ctx.GraphicsCommandBuffers[slot]
	frameSync := ctx.FrameSync[slot]

	// Wait on the acquire semaphore before writing colour, signal
	// RenderFinished for the present.
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{frameSync.ImageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{frameSync.RenderFinished},
	}

	var res vk.Result
	_ = ctx.locks.SafeQueueCall(ctx.Device.QueueFamilyIndex, func() error {
		res = vk.QueueSubmit(ctx.Device.Queue, 1, []vk.SubmitInfo{submitInfo}, frameSync.InFlight.Handle)
		return nil
	})
	if status, ok := surfaceStatus(res); ok {
		if status != renderer.SurfaceOutOfDate {
			commandBuffer.UpdateSubmitted()
		}
		return status, nil
	}
	if res == vk.ErrorDeviceLost {
		return renderer.SurfaceOptimal, core.ErrDeviceLost
	}
	err := fmt.Errorf("%w: %s", core.ErrSubmitFailed, VulkanResultString(res, true))
	core.LogError(err.Error())
	return renderer.SurfaceOptimal, err
}

func (vr *VulkanRenderer) Present(slot, imageIndex uint32) (renderer.SurfaceStatus, error) {
	ctx := vr.context
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{ctx.FrameSync[slot].RenderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{ctx.Swapchain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	var res vk.Result
	_ = ctx.locks.SafeQueueCall(ctx.Device.QueueFamilyIndex, func() error {
		res = vk.QueuePresent(ctx.Device.Queue, &presentInfo)
		return nil
	})
	if status, ok := surfaceStatus(res); ok {
		return status, nil
	}
	if res == vk.ErrorDeviceLost {
		return renderer.SurfaceOptimal, core.ErrDeviceLost
	}
	err := fmt.Errorf("%w: %s", core.ErrPresentFailed, VulkanResultString(res, true))
	core.LogError(err.Error())
	return renderer.SurfaceOptimal, err
}

func (vr *VulkanRenderer) RestoreSlot(slot uint32) error {
	if err := vr.WaitIdle(); err != nil {
		return err
	}
	core.LogDebug("Restoring sync objects of slot %d.", slot)
	return vr.context.FrameSync[slot].Restore(vr.context)
}

// RecreateSwapchain rebuilds the swapchain, its views and framebuffers for a
// width x height framebuffer. Command buffers and sync objects are kept.
func (vr *VulkanRenderer) RecreateSwapchain(width, height uint32) error {
	ctx := vr.context
	if err := vr.WaitIdle(); err != nil {
		return err
	}
	ctx.FramebufferWidth, ctx.FramebufferHeight = width, height

	// Requery support
	support, err := DeviceQuerySwapchainSupport(ctx.Device.PhysicalDevice, ctx.Surface)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrSwapchainCreationFailed, err)
	}
	ctx.Device.SwapchainSupport = support

	settings, err := ComputeSettings(support, width, height, vr.config.PreferMailbox)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrSwapchainCreationFailed, err)
	}

	destroyFramebuffers(ctx)
	oldFormat := ctx.Swapchain.Settings.Format.Format
	sc, err := ctx.Swapchain.SwapchainRecreate(ctx, settings)
	if err != nil {
		return err
	}
	ctx.Swapchain = sc

	if sc.Settings.Format.Format != oldFormat {
		core.LogInfo("Surface format changed, rebuilding render pass and pipeline.")
		if err := vr.rebuildPipeline(sc.Settings.Format.Format); err != nil {
			return err
		}
	}

	if err := regenerateFramebuffers(ctx); err != nil {
		return err
	}
	vr.setExtent(sc.Settings.Extent)
	core.LogDebug("Swapchain recreated at %dx%d.", sc.Settings.Extent.Width, sc.Settings.Extent.Height)
	return nil
}

func (vr *VulkanRenderer) rebuildPipeline(format vk.Format) error {
	ctx := vr.context
	ctx.Pipeline.Destroy(ctx)
	ctx.MainRenderpass.RenderpassDestroy(ctx)

	rp, err := RenderpassCreate(ctx, format, vr.config.ClearColour)
	if err != nil {
		return err
	}
	ctx.MainRenderpass = rp
	pipeline, err := NewGraphicsPipeline(ctx, NewPipelineConfig(rp, ctx.VertexStage, ctx.FragmentStage))
	if err != nil {
		return err
	}
	ctx.Pipeline = pipeline
	return nil
}

func (vr *VulkanRenderer) setExtent(extent vk.Extent2D) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.extentWidth, vr.extentHeight = extent.Width, extent.Height
}

func (vr *VulkanRenderer) Extent() (uint32, uint32) {
	vr.mu.RLock()
	defer vr.mu.RUnlock()
	return vr.extentWidth, vr.extentHeight
}

// UploadVertices copies vertices into a new vertex buffer. An empty list
// leaves no buffer bound and nothing is drawn.
func (vr *VulkanRenderer) UploadVertices(vertices []metadata.Vertex) error {
	ctx := vr.context
	if ctx.VertexBuffer != nil {
		if err := vr.WaitIdle(); err != nil {
			return err
		}
		ctx.VertexBuffer.Destroy(ctx)
		ctx.VertexBuffer = nil
		vr.vertexCount = 0
	}
	if len(vertices) == 0 {
		return nil
	}
	buffer, err := NewVertexBuffer(ctx, metadata.VertexBytes(vertices))
	if err != nil {
		return err
	}
	ctx.VertexBuffer = buffer
	vr.vertexCount = uint32(len(vertices))
	return nil
}

func (vr *VulkanRenderer) VertexCount() uint32 {
	return vr.vertexCount
}

func (vr *VulkanRenderer) WaitIdle() error {
	return DeviceWaitIdle(vr.context)
}

// Shutdown waits for the device and destroys everything in reverse creation
// order.
func (vr *VulkanRenderer) Shutdown() error {
	if err := vr.WaitIdle(); err != nil {
		// Still release, the handles are no longer usable anyway.
		core.LogError("device wait idle before shutdown: %s", err)
	}
	return vr.releases.Release()
}
