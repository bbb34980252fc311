package renderer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/math"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

type FrameState uint8

const (
	StateIdle FrameState = iota
	StateWaitingOnFence
	StateAcquiring
	StateRecording
	StateSubmitting
	StatePresenting
	StateSwapchainStale
	StateStopped
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingOnFence:
		return "waiting-on-fence"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateSubmitting:
		return "submitting"
	case StatePresenting:
		return "presenting"
	case StateSwapchainStale:
		return "swapchain-stale"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FrameLoop drives one frame slot at a time through
// fence wait, acquire, record, submit and present.
type FrameLoop struct {
	backend RendererBackend
	window  Window
	mailbox *core.ResizeMailbox
	running *atomic.Bool
	// idle is called while the framebuffer has no area.
	idle func()
	log  *log.Logger

	state         FrameState
	slot          uint32
	frames        uint64
	recreations   uint64
	resizePending bool

	clock   *core.Clock
	metrics *core.FrameMetrics
}

func NewFrameLoop(backend RendererBackend, window Window, mailbox *core.ResizeMailbox, running *atomic.Bool, idle func(), logger *log.Logger) *FrameLoop {
	if idle == nil {
		idle = func() { time.Sleep(10 * time.Millisecond) }
	}
	if logger == nil {
		logger = core.WithPrefix("frame")
	}
	return &FrameLoop{
		backend: backend,
		window:  window,
		mailbox: mailbox,
		running: running,
		idle:    idle,
		log:     logger,
		state:   StateIdle,
		clock:   core.NewClock(),
		metrics: core.NewFrameMetrics(),
	}
}

// Run iterates until the running flag is cleared. The iteration in progress
// when the flag drops is always completed.
func (fl *FrameLoop) Run() error {
	fl.clock.Start()
	defer fl.clock.Stop()
	for fl.running.Load() {
		if err := fl.Iterate(); err != nil {
			fl.state = StateStopped
			return err
		}
	}
	fl.state = StateStopped
	fps, ms := fl.metrics.Frame()
	fl.log.Info("frame loop stopped", "frames", fl.frames, "recreations", fl.recreations, "fps", fps, "frame_ms", ms)
	return nil
}

// Iterate runs a single frame. It returns early, without presenting, when
// the swapchain had to be recreated.
func (fl *FrameLoop) Iterate() error {
	slot := fl.slot

	fl.state = StateWaitingOnFence
	if err := fl.backend.WaitForSlot(slot); err != nil {
		return err
	}

	fl.state = StateAcquiring
	for {
		ev, ok := fl.mailbox.TryReceive()
		if !ok {
			break
		}
		fl.log.Debug("resize received", "width", ev.Width, "height", ev.Height)
		fl.resizePending = true
	}
	if fl.resizePending {
		return fl.recreate()
	}

	imageIndex, status, err := fl.backend.AcquireNextImage(slot)
	if err != nil {
		return err
	}
	if status == SurfaceOutOfDate {
		return fl.recreate()
	}

	if err := fl.backend.ResetSlot(slot); err != nil {
		return err
	}

	fl.state = StateRecording
	w, h := fl.backend.Extent()
	pc := metadata.PushConstants{Resolution: math.NewVec2(float32(w), float32(h))}
	if err := fl.backend.RecordFrame(slot, imageIndex, pc); err != nil {
		return err
	}

	fl.state = StateSubmitting
	status, err = fl.backend.Submit(slot)
	if err != nil {
		return err
	}
	if status == SurfaceOutOfDate {
		if err := fl.backend.RestoreSlot(slot); err != nil {
			return err
		}
		return fl.recreate()
	}

	fl.state = StatePresenting
	status, err = fl.backend.Present(slot, imageIndex)
	if err != nil {
		return err
	}
	if status != SurfaceOptimal {
		fl.log.Debug("present reported a stale surface", "status", status)
		fl.resizePending = true
	}

	fl.slot = (slot + 1) % fl.backend.SlotCount()
	fl.frames++
	fl.clock.Update()
	fl.metrics.Update(fl.clock.Elapsed())
	fl.clock.Start()
	return nil
}

// recreate waits for a drawable framebuffer and rebuilds the swapchain. The
// slot counter is left untouched.
func (fl *FrameLoop) recreate() error {
	fl.state = StateSwapchainStale
	w, h := fl.window.FramebufferSize()
	for w == 0 || h == 0 {
		if !fl.running.Load() {
			return nil
		}
		fl.idle()
		w, h = fl.window.FramebufferSize()
	}
	if err := fl.backend.RecreateSwapchain(w, h); err != nil {
		return fmt.Errorf("recreate swapchain %dx%d: %w", w, h, err)
	}
	fl.resizePending = false
	fl.recreations++
	fl.log.Debug("swapchain recreated", "width", w, "height", h)
	return nil
}

func (fl *FrameLoop) Slot() uint32 {
	return fl.slot
}

func (fl *FrameLoop) State() FrameState {
	return fl.state
}

func (fl *FrameLoop) Frames() uint64 {
	return fl.frames
}

func (fl *FrameLoop) Recreations() uint64 {
	return fl.recreations
}

func (fl *FrameLoop) Metrics() *core.FrameMetrics {
	return fl.metrics
}
