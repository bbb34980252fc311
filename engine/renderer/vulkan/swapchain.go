package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/math"
)

// Reported as the current extent width when the surface lets the swapchain
// pick its own size.
const undefinedExtent = ^uint32(0)

// SurfaceSupport is what a surface reports for one physical device.
type SurfaceSupport struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// SurfaceChainSettings is derived again at every swapchain creation and
// replaced as a whole, never patched.
type SurfaceChainSettings struct {
	ImageCount   uint32
	PreTransform vk.SurfaceTransformFlagBits
	Format       vk.SurfaceFormat
	PresentMode  vk.PresentMode
	Extent       vk.Extent2D
}

var errNoSurfaceFormats = errors.New("surface reports no formats")

// ComputeSettings chooses the swapchain configuration for a framebuffer of
// width x height pixels.
func ComputeSettings(support *SurfaceSupport, width, height uint32, preferMailbox bool) (SurfaceChainSettings, error) {
	if len(support.Formats) == 0 {
		return SurfaceChainSettings{}, errNoSurfaceFormats
	}
	caps := support.Capabilities

	// Choose a swap surface format.
	format := support.Formats[0]
	for _, f := range support.Formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			format = f
			break
		}
	}

	// FIFO is the only mode every surface must offer.
	presentMode := vk.PresentModeFifo
	if preferMailbox {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := caps.CurrentExtent
	if extent.Width == undefinedExtent {
		// Clamp to the value allowed by the GPU.
		extent = vk.Extent2D{
			Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	return SurfaceChainSettings{
		ImageCount:   imageCount,
		PreTransform: caps.CurrentTransform,
		Format:       format,
		PresentMode:  presentMode,
		Extent:       extent,
	}, nil
}

type VulkanSwapchain struct {
	Handle   vk.Swapchain
	Settings SurfaceChainSettings
	Images   []vk.Image
	Views    []vk.ImageView

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer
}

func SwapchainCreate(context *VulkanContext, settings SurfaceChainSettings) (*VulkanSwapchain, error) {
	return createSwapchain(context, settings, vk.NullSwapchain)
}

// SwapchainRecreate replaces vs with a swapchain built from settings. The
// caller must have destroyed the framebuffers and waited for the device to
// go idle.
func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, settings SurfaceChainSettings) (*VulkanSwapchain, error) {
	vs.destroyViews(context)
	sc, err := createSwapchain(context, settings, vs.Handle)
	// The old handle is retired either way.
	vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	vs.Handle = vk.NullSwapchain
	return sc, err
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	// Views first, the images belong to the swapchain.
	vs.destroyViews(context)
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
	vs.Images = nil
}

func createSwapchain(context *VulkanContext, settings SurfaceChainSettings, old vk.Swapchain) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{Settings: settings}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    settings.ImageCount,
		ImageFormat:      settings.Format.Format,
		ImageColorSpace:  settings.Format.ColorSpace,
		ImageExtent:      settings.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		// Graphics and present share one family.
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     settings.PreTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      settings.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("%w: %s", core.ErrSwapchainCreationFailed, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = handle

	// Images
	var imageCount uint32
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &imageCount, nil); res != vk.Success {
		swapchain.SwapchainDestroy(context)
		return nil, fmt.Errorf("%w: get images: %s", core.ErrSwapchainCreationFailed, VulkanResultString(res, false))
	}
	swapchain.Images = make([]vk.Image, imageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &imageCount, swapchain.Images); res != vk.Success {
		swapchain.SwapchainDestroy(context)
		return nil, fmt.Errorf("%w: get images: %s", core.ErrSwapchainCreationFailed, VulkanResultString(res, false))
	}
	// The driver may hand out more images than requested.
	swapchain.Settings.ImageCount = imageCount

	// Views
	swapchain.Views = make([]vk.ImageView, 0, imageCount)
	for _, image := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   settings.Format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		var view vk.ImageView
		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
			swapchain.SwapchainDestroy(context)
			return nil, fmt.Errorf("%w: image view: %s", core.ErrSwapchainCreationFailed, VulkanResultString(res, false))
		}
		swapchain.Views = append(swapchain.Views, view)
	}

	core.LogInfo("Swapchain created: %dx%d, %d images, present mode %d.",
		settings.Extent.Width, settings.Extent.Height, imageCount, settings.PresentMode)
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroyViews(context *VulkanContext) {
	for _, view := range vs.Views {
		vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
	}
	vs.Views = nil
}
