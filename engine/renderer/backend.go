package renderer

import (
	"time"

	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// SurfaceStatus classifies an acquire, submit or present result that did not
// fail outright.
type SurfaceStatus uint8

const (
	SurfaceOptimal SurfaceStatus = iota
	// The image is still presentable but no longer matches the surface.
	SurfaceSuboptimal
	// The swapchain must be recreated before it can be used again.
	SurfaceOutOfDate
)

func (s SurfaceStatus) String() string {
	switch s {
	case SurfaceOptimal:
		return "optimal"
	case SurfaceSuboptimal:
		return "suboptimal"
	case SurfaceOutOfDate:
		return "out-of-date"
	default:
		return "unknown"
	}
}

// RendererBackend is the set of GPU operations the frame loop drives. All
// methods except Extent and SlotCount are called from the loop goroutine only.
type RendererBackend interface {
	SlotCount() uint32
	// WaitForSlot blocks until the in-flight fence of slot is signaled.
	WaitForSlot(slot uint32) error
	AcquireNextImage(slot uint32) (uint32, SurfaceStatus, error)
	// ResetSlot unsignals the in-flight fence of slot.
	ResetSlot(slot uint32) error
	RecordFrame(slot, imageIndex uint32, pushConstants metadata.PushConstants) error
	Submit(slot uint32) (SurfaceStatus, error)
	Present(slot, imageIndex uint32) (SurfaceStatus, error)
	// RestoreSlot brings the sync objects of slot back to their initial
	// state after a submit that never reached the queue.
	RestoreSlot(slot uint32) error
	RecreateSwapchain(width, height uint32) error
	Extent() (uint32, uint32)
	UploadVertices(vertices []metadata.Vertex) error
	VertexCount() uint32
	WaitIdle() error
	Shutdown() error
}

// Window is the part of the platform window the renderer needs.
type Window interface {
	FramebufferSize() (uint32, uint32)
	ShouldClose() bool
	PollEvents()
	WaitEvents()
	WaitEventsTimeout(timeout time.Duration)
	// PostEmptyEvent wakes a WaitEvents call. Safe from any goroutine.
	PostEmptyEvent()
}
