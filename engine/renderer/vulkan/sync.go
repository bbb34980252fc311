package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

// PerFrameSync is the synchronization owned by one in-flight slot.
type PerFrameSync struct {
	// Signaled by the presentation engine when the acquired image is ready.
	ImageAvailable vk.Semaphore
	// Signaled when rendering to the image completes.
	RenderFinished vk.Semaphore
	// Signaled when the slot's last submission retired.
	InFlight *VulkanFence
}

func newSemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &semaphore); res != vk.Success {
		err := fmt.Errorf("%w: semaphore: %s", core.ErrDeviceCreationFailed, VulkanResultString(res, false))
		core.LogError(err.Error())
		return vk.NullSemaphore, err
	}
	return semaphore, nil
}

// NewPerFrameSync creates the slot's semaphores and a fence that starts
// signaled, so the first wait on an unused slot returns at once.
func NewPerFrameSync(context *VulkanContext) (*PerFrameSync, error) {
	s := &PerFrameSync{}
	var err error
	if s.ImageAvailable, err = newSemaphore(context); err != nil {
		return nil, err
	}
	if s.RenderFinished, err = newSemaphore(context); err != nil {
		s.Destroy(context)
		return nil, err
	}
	if s.InFlight, err = NewFence(context, true); err != nil {
		s.Destroy(context)
		return nil, err
	}
	return s, nil
}

func (s *PerFrameSync) Destroy(context *VulkanContext) {
	if s.ImageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, s.ImageAvailable, context.Allocator)
		s.ImageAvailable = vk.NullSemaphore
	}
	if s.RenderFinished != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, s.RenderFinished, context.Allocator)
		s.RenderFinished = vk.NullSemaphore
	}
	if s.InFlight != nil {
		s.InFlight.FenceDestroy(context)
		s.InFlight = nil
	}
}

// Restore returns the slot to its initial state after its fence was reset
// but nothing was submitted. The acquire semaphore is replaced as well since
// its pending signal was never consumed. The device must be idle.
func (s *PerFrameSync) Restore(context *VulkanContext) error {
	fresh, err := NewPerFrameSync(context)
	if err != nil {
		return err
	}
	s.Destroy(context)
	*s = *fresh
	return nil
}

func createSyncObjects(context *VulkanContext, slots int) error {
	context.FrameSync = make([]*PerFrameSync, 0, slots)
	for i := 0; i < slots; i++ {
		s, err := NewPerFrameSync(context)
		if err != nil {
			destroySyncObjects(context)
			return err
		}
		context.FrameSync = append(context.FrameSync, s)
	}
	core.LogDebug("Created sync objects for %d slots.", slots)
	return nil
}

func destroySyncObjects(context *VulkanContext) {
	for _, s := range context.FrameSync {
		s.Destroy(context)
	}
	context.FrameSync = nil
}
