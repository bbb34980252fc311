package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	LogicalDevice    vk.Device
	SwapchainSupport *SurfaceSupport
	// A single family serves both graphics and present.
	QueueFamilyIndex uint32
	Queue            vk.Queue

	GraphicsCommandPool vk.CommandPool

	Name       string
	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	// Extensions enabled on the logical device.
	Extensions []string
}

type VulkanPhysicalDeviceRequirements struct {
	// Always includes the swapchain extension.
	DeviceExtensionNames []string
}

func NewPhysicalDeviceRequirements(extra []string) VulkanPhysicalDeviceRequirements {
	names := []string{vk.KhrSwapchainExtensionName}
	for _, ext := range extra {
		if !containsName(names, ext) {
			names = append(names, ext)
		}
	}
	return VulkanPhysicalDeviceRequirements{DeviceExtensionNames: names}
}

// SelectPhysicalDevice picks the first enumerated device that has every
// required extension, a combined graphics and present queue family and at
// least one surface format and present mode. Devices are not scored, so a
// machine with several adapters may not get its fastest one.
func SelectPhysicalDevice(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("%w: %s", core.ErrNoSuitableDevice, VulkanResultString(res, false))
	}
	if physicalDeviceCount == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return fmt.Errorf("%w: no Vulkan devices", core.ErrNoSuitableDevice)
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("%w: %s", core.ErrNoSuitableDevice, VulkanResultString(res, false))
	}

	var lastErr error
	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		name := vk.ToString(properties.DeviceName[:])

		available, err := deviceExtensionNames(physicalDevice)
		if err != nil {
			lastErr = err
			continue
		}
		if missing := missingNames(available, requirements.DeviceExtensionNames); len(missing) > 0 {
			core.LogInfo("Device '%s' lacks extensions %v, skipping.", name, missing)
			continue
		}

		queueFamily, err := FindCombinedQueueFamily(physicalDevice, context.Surface)
		if err != nil {
			core.LogInfo("Device '%s': %s, skipping.", name, err)
			lastErr = err
			continue
		}

		support, err := DeviceQuerySwapchainSupport(physicalDevice, context.Surface)
		if err != nil {
			lastErr = err
			continue
		}
		if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			core.LogInfo("Required swapchain support not present on '%s', skipping device.", name)
			continue
		}

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		logDeviceInfo(name, properties)

		extensions := append([]string(nil), requirements.DeviceExtensionNames...)
		if containsName(available, portabilitySubsetExtension) {
			core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
			extensions = append(extensions, portabilitySubsetExtension)
		}

		context.Device = &VulkanDevice{
			PhysicalDevice:   physicalDevice,
			SwapchainSupport: support,
			QueueFamilyIndex: queueFamily,
			Name:             name,
			Properties:       properties,
			Memory:           memory,
			Extensions:       extensions,
		}
		core.LogInfo("Physical device selected.")
		return nil
	}

	core.LogError("No physical devices were found which meet the requirements.")
	if errors.Is(lastErr, core.ErrNoSuitableQueue) {
		return lastErr
	}
	return core.ErrNoSuitableDevice
}

func logDeviceInfo(name string, properties vk.PhysicalDeviceProperties) {
	core.LogInfo("Selected device: '%s'.", name)
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
}

func deviceExtensionNames(physicalDevice vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil); res != vk.Success {
		return nil, fmt.Errorf("enumerate device extensions: %s", VulkanResultString(res, false))
	}
	properties := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, properties); res != vk.Success {
		return nil, fmt.Errorf("enumerate device extensions: %s", VulkanResultString(res, false))
	}
	names := make([]string, 0, count)
	for _, ext := range properties {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// FindCombinedQueueFamily returns the first queue family of physicalDevice
// that supports graphics and can present to surface.
func FindCombinedQueueFamily(physicalDevice vk.PhysicalDevice, surface vk.Surface) (uint32, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &queueFamilyCount, queueFamilies)

	flags := make([]vk.QueueFlags, queueFamilyCount)
	present := make([]bool, queueFamilyCount)
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags[i] = queueFamilies[i].QueueFlags

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(physicalDevice, uint32(i), surface, &supportsPresent); res != vk.Success {
			return 0, fmt.Errorf("%w: %s", core.ErrNoSuitableQueue, VulkanResultString(res, false))
		}
		present[i] = supportsPresent == vk.True
	}

	index, ok := selectCombinedQueueFamily(flags, present)
	if !ok {
		return 0, core.ErrNoSuitableQueue
	}
	return index, nil
}

func selectCombinedQueueFamily(flags []vk.QueueFlags, present []bool) (uint32, bool) {
	for i := range flags {
		if flags[i]&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && i < len(present) && present[i] {
			return uint32(i), true
		}
	}
	return 0, false
}

// DeviceCreate selects a physical device and creates the logical device with
// one queue from the combined family.
func DeviceCreate(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	if err := SelectPhysicalDevice(context, requirements); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: context.Device.QueueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(context.Device.Extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(context.Device.Extensions),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		err := fmt.Errorf("%w: %s", core.ErrDeviceCreationFailed, VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device, context.Device.QueueFamilyIndex, 0, &queue)
	context.Device.Queue = queue
	context.locks.SetQueueFamily(context.Device.QueueFamilyIndex)
	core.LogInfo("Queue obtained.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.Queue = nil

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = nil
}

// DeviceWaitIdle blocks until every queue of the device is idle.
func DeviceWaitIdle(context *VulkanContext) error {
	if context.Device == nil || context.Device.LogicalDevice == nil {
		return nil
	}
	return context.locks.SafeQueueCall(context.Device.QueueFamilyIndex, func() error {
		res := vk.DeviceWaitIdle(context.Device.LogicalDevice)
		if res == vk.ErrorDeviceLost {
			return core.ErrDeviceLost
		}
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("vkDeviceWaitIdle failed: %s", VulkanResultString(res, true))
		}
		return nil
	})
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*SurfaceSupport, error) {
	support := &SurfaceSupport{}

	// Surface capabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &support.Capabilities); res != vk.Success {
		return nil, fmt.Errorf("failed to get surface capabilities: %s", VulkanResultString(res, false))
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res, false))
	}
	if formatCount != 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, support.Formats); res != vk.Success {
			return nil, fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res, false))
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	// Present modes
	var presentModeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to get physical device surface present modes: %s", VulkanResultString(res, false))
	}
	if presentModeCount != 0 {
		support.PresentModes = make([]vk.PresentMode, presentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, support.PresentModes); res != vk.Success {
			return nil, fmt.Errorf("failed to get physical device surface present modes: %s", VulkanResultString(res, false))
		}
	}
	return support, nil
}
