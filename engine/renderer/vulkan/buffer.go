package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/core"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	Usage  vk.BufferUsageFlags
}

func BufferCreate(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	outBuffer := &VulkanBuffer{Size: size, Usage: usage}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &outBuffer.Handle); res != vk.Success {
		return nil, fmt.Errorf("%w: %s", core.ErrBufferCreationFailed, VulkanResultString(res, true))
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, outBuffer.Handle, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := context.FindMemoryIndex(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		outBuffer.Destroy(context)
		return nil, fmt.Errorf("%w: %w", core.ErrBufferCreationFailed, err)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &outBuffer.Memory); res != vk.Success {
		outBuffer.Destroy(context)
		return nil, fmt.Errorf("%w: allocate memory: %s", core.ErrBufferCreationFailed, VulkanResultString(res, true))
	}

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, outBuffer.Handle, outBuffer.Memory, 0); res != vk.Success {
		outBuffer.Destroy(context)
		return nil, fmt.Errorf("%w: bind memory: %s", core.ErrBufferCreationFailed, VulkanResultString(res, true))
	}
	return outBuffer, nil
}

// LoadData copies data into host visible memory at offset.
func (b *VulkanBuffer) LoadData(context *VulkanContext, offset vk.DeviceSize, data []byte) error {
	if vk.DeviceSize(len(data))+offset > b.Size {
		return fmt.Errorf("%w: %d bytes at offset %d exceed size %d", core.ErrBufferCreationFailed, len(data), offset, b.Size)
	}
	return context.locks.SafeCall(MemoryManagement, func() error {
		var pData unsafe.Pointer
		if res := vk.MapMemory(context.Device.LogicalDevice, b.Memory, offset, vk.DeviceSize(len(data)), 0, &pData); res != vk.Success {
			return fmt.Errorf("%w: map memory: %s", core.ErrBufferCreationFailed, VulkanResultString(res, false))
		}
		vk.Memcopy(pData, data)
		vk.UnmapMemory(context.Device.LogicalDevice, b.Memory)
		return nil
	})
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	b.Size = 0
}

// NewVertexBuffer uploads data once into a host visible, coherent buffer.
// The contents never change afterwards, so no staging copy is made.
func NewVertexBuffer(context *VulkanContext, data []byte) (*VulkanBuffer, error) {
	buffer, err := BufferCreate(context,
		vk.DeviceSize(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := buffer.LoadData(context, 0, data); err != nil {
		buffer.Destroy(context)
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Vertex buffer created: %d bytes.", len(data))
	return buffer, nil
}
