package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// bytesToBytecode reinterprets SPIR-V bytes as the words the driver expects.
func bytesToBytecode(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: bytecode length %d is not a positive multiple of 4", core.ErrShaderModuleFailed, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// NewShaderModule wraps SPIR-V code into a module for the given stage. The
// entry point is always main.
func NewShaderModule(context *VulkanContext, stage vk.ShaderStageFlagBits, code []byte) (*VulkanShaderStage, error) {
	words, err := bytesToBytecode(code)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}

	shaderStage := &VulkanShaderStage{}
	if err := context.locks.SafeCall(ShaderManagement, func() error {
		if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &shaderStage.Handle); res != vk.Success {
			return fmt.Errorf("%w: %s", core.ErrShaderModuleFailed, VulkanResultString(res, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	// Shader stage info
	shaderStage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: shaderStage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return shaderStage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
