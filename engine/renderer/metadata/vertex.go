package metadata

import (
	"unsafe"

	"github.com/spaghettifunk/daw/engine/math"
)

// Vertex is a single 2D position in framebuffer pixels.
type Vertex struct {
	Position math.Vec2
}

// VertexSize is the stride of one Vertex in a vertex buffer.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// PushConstants is pushed to the vertex stage before every draw.
type PushConstants struct {
	Resolution math.Vec2
}

const PushConstantsSize = uint32(unsafe.Sizeof(PushConstants{}))

func NewVertex(x, y float32) Vertex {
	return Vertex{Position: math.NewVec2(x, y)}
}

// VertexBytes views the vertices as raw bytes. The result aliases the input.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(VertexSize))
}
