package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

// VulkanContext holds every handle owned by one backend instance.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugReport vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain      *VulkanSwapchain
	MainRenderpass *VulkanRenderpass
	Pipeline       *VulkanPipeline
	VertexStage    *VulkanShaderStage
	FragmentStage  *VulkanShaderStage

	// One per in-flight slot.
	GraphicsCommandBuffers []*VulkanCommandBuffer
	// One per in-flight slot.
	FrameSync []*PerFrameSync

	VertexBuffer *VulkanBuffer

	locks *VulkanLockPool
}

func NewVulkanContext() *VulkanContext {
	return &VulkanContext{
		Allocator: nil,
		locks:     NewVulkanLockPool(),
	}
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, fmt.Errorf("filter %#x, flags %#x: %w", typeFilter, uint32(propertyFlags), core.ErrNoSuitableMemoryType)
}
