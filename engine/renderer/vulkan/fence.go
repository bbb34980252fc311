package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("%w: fence: %s", core.ErrDeviceCreationFailed, VulkanResultString(res, false))
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// fenceTimeoutNs converts a wait bound to the driver's unit. Zero waits
// forever.
func fenceTimeoutNs(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// FenceWait blocks until the fence is signaled or timeout elapses.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeout time.Duration) error {
	if vf.IsSignaled {
		// If already signaled, do not wait.
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, fenceTimeoutNs(timeout))
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("%w after %s", core.ErrFenceTimeout, timeout)
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
		return core.ErrDeviceLost
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result, true))
		return fmt.Errorf("%w: fence wait: %s", core.ErrUnknown, VulkanResultString(result, false))
	}
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := fmt.Errorf("%w: reset fence: %s", core.ErrUnknown, VulkanResultString(res, false))
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}
