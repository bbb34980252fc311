package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	// Take a copy of the attachments.
	outFramebuffer := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer); res != vk.Success {
		err := fmt.Errorf("%w: framebuffer: %s", core.ErrSwapchainCreationFailed, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = vk.NullFramebuffer
	vfb.Renderpass = nil
}

// regenerateFramebuffers builds one framebuffer per swapchain image view.
func regenerateFramebuffers(context *VulkanContext) error {
	sc := context.Swapchain
	extent := sc.Settings.Extent
	sc.Framebuffers = make([]*VulkanFramebuffer, 0, len(sc.Views))
	for _, view := range sc.Views {
		fb, err := FramebufferCreate(context, context.MainRenderpass, extent.Width, extent.Height, []vk.ImageView{view})
		if err != nil {
			destroyFramebuffers(context)
			return err
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}
	return nil
}

func destroyFramebuffers(context *VulkanContext) {
	if context.Swapchain == nil {
		return
	}
	for _, fb := range context.Swapchain.Framebuffers {
		fb.Destroy(context)
	}
	context.Swapchain.Framebuffers = nil
}
