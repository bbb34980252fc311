package vulkan

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/renderer"
)

type resultInfo struct {
	name        string
	description string
}

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultInfos = map[vk.Result]resultInfo{
	// Success codes
	vk.Success:    {"VK_SUCCESS", "Command successfully completed"},
	vk.NotReady:   {"VK_NOT_READY", "A fence or query has not yet completed"},
	vk.Timeout:    {"VK_TIMEOUT", "A wait operation has not completed in the specified time"},
	vk.EventSet:   {"VK_EVENT_SET", "An event is signaled"},
	vk.EventReset: {"VK_EVENT_RESET", "An event is unsignaled"},
	vk.Incomplete: {"VK_INCOMPLETE", "A return array was too small for the result"},
	vk.Suboptimal: {"VK_SUBOPTIMAL_KHR", "A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully."},

	// Error codes
	vk.ErrorOutOfHostMemory:      {"VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed."},
	vk.ErrorOutOfDeviceMemory:    {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed."},
	vk.ErrorInitializationFailed: {"VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed for implementation-specific reasons."},
	vk.ErrorDeviceLost:           {"VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost."},
	vk.ErrorMemoryMapFailed:      {"VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed."},
	vk.ErrorLayerNotPresent:      {"VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded."},
	vk.ErrorExtensionNotPresent:  {"VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported."},
	vk.ErrorFeatureNotPresent:    {"VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported."},
	vk.ErrorIncompatibleDriver:   {"VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver or is otherwise incompatible."},
	vk.ErrorTooManyObjects:       {"VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created."},
	vk.ErrorFormatNotSupported:   {"VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device."},
	vk.ErrorFragmentedPool:       {"VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation of the pool's memory."},
	vk.ErrorSurfaceLost:          {"VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available."},
	vk.ErrorNativeWindowInUse:    {"VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use by Vulkan or another API."},
	vk.ErrorOutOfDate:            {"VK_ERROR_OUT_OF_DATE_KHR", "A surface has changed in such a way that it is no longer compatible with the swapchain."},
	vk.ErrorIncompatibleDisplay:  {"VK_ERROR_INCOMPATIBLE_DISPLAY_KHR", "The display used by a swapchain does not use the same presentable image layout."},
	vk.ErrorInvalidShaderNv:      {"VK_ERROR_INVALID_SHADER_NV", "One or more shaders failed to compile or link."},
	vk.ErrorOutOfPoolMemory:      {"VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed."},
}

// VulkanResultString returns the name of result, followed by a description
// when getExtended is set.
func VulkanResultString(result vk.Result, getExtended bool) string {
	info, ok := resultInfos[result]
	if !ok {
		return fmt.Sprintf("VK_RESULT(%d)", int32(result))
	}
	if !getExtended {
		return info.name
	}
	return info.name + " " + info.description
}

// VulkanResultIsSuccess reports whether result is one of the success codes.
// Error codes are always negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// surfaceStatus classifies the results an acquire, submit or present may
// return without failing. ok is false for any other result.
func surfaceStatus(result vk.Result) (status renderer.SurfaceStatus, ok bool) {
	switch result {
	case vk.Success:
		return renderer.SurfaceOptimal, true
	case vk.Suboptimal:
		return renderer.SurfaceSuboptimal, true
	case vk.ErrorOutOfDate:
		return renderer.SurfaceOutOfDate, true
	default:
		return renderer.SurfaceOptimal, false
	}
}

const nulTerminator = "\x00"

// VulkanSafeString terminates s with a NUL byte as the C API expects.
func VulkanSafeString(s string) string {
	if strings.HasSuffix(s, nulTerminator) {
		return s
	}
	return s + nulTerminator
}

// VulkanSafeStrings returns NUL-terminated copies of list.
func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// missingNames returns the entries of required not present in available.
// Both sides are compared without NUL terminators.
func missingNames(available, required []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[strings.TrimRight(name, nulTerminator)] = struct{}{}
	}
	var missing []string
	for _, name := range required {
		name = strings.TrimRight(name, nulTerminator)
		if _, ok := set[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if strings.TrimRight(n, nulTerminator) == name {
			return true
		}
	}
	return false
}
