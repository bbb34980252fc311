package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// Poll interval of the main thread in dual mode. Bounds how long a stop
// request takes to be noticed when no window event arrives.
const eventWaitTimeout = 50 * time.Millisecond

// Renderer owns a backend and the loop presenting frames from it.
type Renderer struct {
	id      string
	config  metadata.RendererBackendConfig
	window  Window
	backend RendererBackend
	mailbox *core.ResizeMailbox
	loop    *FrameLoop
	log     *log.Logger

	running   atomic.Bool
	destroyed atomic.Bool

	mu    sync.Mutex
	group *errgroup.Group
}

// New uploads the vertices that will be drawn every frame and prepares the
// frame loop. The backend must already be initialized against window.
func New(window Window, backend RendererBackend, mailbox *core.ResizeMailbox, config metadata.RendererBackendConfig, vertices []metadata.Vertex) (*Renderer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if mailbox == nil {
		mailbox = core.NewResizeMailbox()
	}
	id := core.NewInstanceID()
	r := &Renderer{
		id:      id,
		config:  config,
		window:  window,
		backend: backend,
		mailbox: mailbox,
		log:     core.WithPrefix("renderer " + id),
	}

	if err := backend.UploadVertices(vertices); err != nil {
		return nil, fmt.Errorf("upload %d vertices: %w", len(vertices), err)
	}
	r.log.Info("vertices uploaded", "count", backend.VertexCount(), "bytes", len(vertices)*int(metadata.VertexSize))

	var idle func()
	switch config.Threading {
	case metadata.ThreadingSingle:
		// Nothing else pumps the window while the loop waits for a size.
		idle = func() {
			window.WaitEvents()
			if window.ShouldClose() {
				r.running.Store(false)
			}
		}
	default:
		idle = func() { time.Sleep(eventWaitTimeout) }
	}
	r.loop = NewFrameLoop(backend, window, mailbox, &r.running, idle, r.log)
	return r, nil
}

func (r *Renderer) ID() string {
	return r.id
}

func (r *Renderer) Mailbox() *core.ResizeMailbox {
	return r.mailbox
}

func (r *Renderer) Loop() *FrameLoop {
	return r.loop
}

func (r *Renderer) Running() bool {
	return r.running.Load()
}

// Run presents frames until the window asks to close, Stop is called or a
// frame fails. It returns the first frame error.
func (r *Renderer) Run() error {
	if r.destroyed.Load() {
		return core.ErrRendererDestroyed
	}
	r.running.Store(true)
	r.log.Info("renderer running", "threading", r.config.Threading, "slots", r.backend.SlotCount())

	if r.config.Threading == metadata.ThreadingSingle {
		return r.runSingle()
	}
	return r.runDual()
}

func (r *Renderer) runSingle() error {
	defer r.running.Store(false)
	for r.running.Load() {
		r.window.PollEvents()
		if r.window.ShouldClose() {
			break
		}
		if err := r.loop.Iterate(); err != nil {
			r.log.Error("frame failed", "err", err)
			return err
		}
	}
	r.loop.state = StateStopped
	return nil
}

func (r *Renderer) runDual() error {
	g := new(errgroup.Group)
	r.mu.Lock()
	r.group = g
	r.mu.Unlock()

	g.Go(func() error {
		// Wake the main thread so it notices the loop is gone.
		defer r.window.PostEmptyEvent()
		defer r.running.Store(false)
		if err := r.loop.Run(); err != nil {
			r.log.Error("frame loop failed", "err", err)
			return err
		}
		return nil
	})

	for r.running.Load() {
		r.window.WaitEventsTimeout(eventWaitTimeout)
		if r.window.ShouldClose() {
			r.running.Store(false)
		}
	}
	return g.Wait()
}

// Stop asks the loop to finish its current frame and return. Safe from any
// goroutine.
func (r *Renderer) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.log.Debug("stop requested")
	}
	r.window.PostEmptyEvent()
}

// Destroy stops the loop, waits for the GPU to go idle and releases every
// backend resource. It may be called once.
func (r *Renderer) Destroy() error {
	if !r.destroyed.CompareAndSwap(false, true) {
		return core.ErrRendererDestroyed
	}
	r.running.Store(false)

	r.mu.Lock()
	g := r.group
	r.mu.Unlock()
	if g != nil {
		// Already reported by Run.
		_ = g.Wait()
	}

	if err := r.backend.WaitIdle(); err != nil {
		r.log.Error("device did not go idle", "err", err)
		return err
	}
	if err := r.backend.Shutdown(); err != nil {
		return err
	}
	r.log.Info("renderer destroyed", "frames", r.loop.Frames())
	return nil
}
