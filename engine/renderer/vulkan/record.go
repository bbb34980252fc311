package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// recordFrame writes the single draw of the frame into commandBuffer. The
// buffer must not be pending execution.
func recordFrame(context *VulkanContext, commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, vertexCount uint32, pushConstants metadata.PushConstants) error {
	if err := commandBuffer.Reset(); err != nil {
		return err
	}
	if err := commandBuffer.Begin(false, false, false); err != nil {
		return err
	}

	extent := context.Swapchain.Settings.Extent
	context.MainRenderpass.RenderpassBegin(commandBuffer, framebuffer.Handle, extent)
	context.Pipeline.Bind(commandBuffer, vk.PipelineBindPointGraphics)

	// Dynamic state
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}
	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{scissor})

	vk.CmdPushConstants(commandBuffer.Handle, context.Pipeline.PipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0, metadata.PushConstantsSize, unsafe.Pointer(&pushConstants))

	if vertexCount > 0 && context.VertexBuffer != nil {
		vk.CmdBindVertexBuffers(commandBuffer.Handle, 0, 1, []vk.Buffer{context.VertexBuffer.Handle}, []vk.DeviceSize{0})
		vk.CmdDraw(commandBuffer.Handle, vertexCount, 1, 0, 0)
	}

	context.MainRenderpass.RenderpassEnd(commandBuffer)
	return commandBuffer.End()
}
