package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

const (
	portabilityEnumerationExtension = "VK_KHR_portability_enumeration"
	physicalDeviceProperties2       = "VK_KHR_get_physical_device_properties2"
	// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	instanceCreateEnumeratePortabilityBit = 0x00000001
)

// requiredInstanceExtensions lists the instance extensions to enable on goos.
func requiredInstanceExtensions(platformExtensions []string, goos string, validation bool) []string {
	extensions := []string{"VK_KHR_surface"} // Generic surface extension
	for _, ext := range platformExtensions {
		if !containsName(extensions, ext) {
			extensions = append(extensions, ext)
		}
	}
	if goos == "darwin" {
		extensions = append(extensions, portabilityEnumerationExtension, physicalDeviceProperties2)
	}
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	return extensions
}

func InstanceCreate(context *VulkanContext, appName string, platformExtensions []string, config metadata.RendererBackendConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("DAW Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := requiredInstanceExtensions(platformExtensions, runtime.GOOS, config.EnableValidation)
	if runtime.GOOS == "darwin" {
		createInfo.Flags |= vk.InstanceCreateFlags(instanceCreateEnumeratePortabilityBit)
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	// Validation layers should only be enabled on non-release builds.
	var layers []string
	if config.EnableValidation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		if err := checkValidationLayers(config.ValidationLayers); err != nil {
			return err
		}
		layers = config.ValidationLayers
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, context.Allocator, &context.Instance); res != vk.Success {
		err := fmt.Errorf("%w: %s", core.ErrInstanceCreationFailed, VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError(err.Error())
		return fmt.Errorf("%w: %s", core.ErrInstanceCreationFailed, err)
	}
	core.LogInfo("Vulkan Instance created.")

	if config.EnableValidation {
		if err := debugReportCreate(context); err != nil {
			return err
		}
	}
	return nil
}

func checkValidationLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return fmt.Errorf("%w: %s", core.ErrValidationUnavailable, VulkanResultString(res, false))
	}
	availableLayers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, availableLayers); res != vk.Success {
		return fmt.Errorf("%w: %s", core.ErrValidationUnavailable, VulkanResultString(res, false))
	}

	available := make([]string, 0, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available = append(available, vk.ToString(layer.LayerName[:]))
	}
	core.LogDebug("Available layers: %v", available)

	if missing := missingNames(available, required); len(missing) > 0 {
		core.LogError("Required validation layers are missing: %v", missing)
		return fmt.Errorf("%w: %v", core.ErrValidationUnavailable, missing)
	}
	return nil
}

func debugReportCreate(context *VulkanContext) error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return fmt.Errorf("%w: debug report: %s", core.ErrInstanceCreationFailed, err)
	}
	context.debugReport = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func debugReportDestroy(context *VulkanContext) {
	if context.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(context.Instance, context.debugReport, context.Allocator)
		context.debugReport = vk.NullDebugReportCallback
	}
}

func InstanceDestroy(context *VulkanContext) {
	if context.Instance != nil {
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
