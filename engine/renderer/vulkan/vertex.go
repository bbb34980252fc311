package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

func vertexBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0, // Binding index
		Stride:    metadata.VertexSize,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}
}

func vertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		// position
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   0,
		},
	}
}
