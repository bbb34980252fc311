package platform

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/daw/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the glfw window. Event pumping must happen on the main
// goroutine; FramebufferSize, ShouldClose, RequestClose and PostEmptyEvent
// are safe from any goroutine.
type Platform struct {
	Window *glfw.Window

	events *core.EventBus
	input  *core.Input

	// Last framebuffer size reported by glfw.
	width  atomic.Uint32
	height atomic.Uint32
}

func New(events *core.EventBus, input *core.Input) (*Platform, error) {
	return &Platform{
		Window: nil,
		events: events,
		input:  input,
	}, nil
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))

	fbWidth, fbHeight := p.Window.GetFramebufferSize()
	p.storeSize(fbWidth, fbHeight)

	p.Window.Show()
	core.LogInfo("Window created: %dx%d (framebuffer %dx%d).", width, height, fbWidth, fbHeight)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates the VkSurfaceKHR for the window.
func (p *Platform) CreateWindowSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	return p.width.Load(), p.height.Load()
}

func (p *Platform) ShouldClose() bool {
	if p.Window == nil {
		return true
	}
	return p.Window.ShouldClose()
}

// RequestClose flags the window for closing and wakes the event pump.
func (p *Platform) RequestClose() {
	if p.Window == nil {
		return
	}
	p.Window.SetShouldClose(true)
	glfw.PostEmptyEvent()
}

func (p *Platform) PollEvents() {
	glfw.PollEvents()
}

func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

func (p *Platform) WaitEventsTimeout(timeout time.Duration) {
	glfw.WaitEventsTimeout(timeout.Seconds())
}

func (p *Platform) PostEmptyEvent() {
	glfw.PostEmptyEvent()
}

func (p *Platform) storeSize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	p.width.Store(uint32(width))
	p.height.Store(uint32(height))
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	code, ok := translateKey(key)
	if !ok || p.input == nil {
		return
	}
	p.input.ProcessKey(code, action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.storeSize(width, height)
	if p.events == nil {
		return
	}
	p.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{
			WindowWidth:  p.width.Load(),
			WindowHeight: p.height.Load(),
		},
	})
}

var namedKeys = map[glfw.Key]core.KeyCode{
	glfw.KeyBackspace: core.KEY_BACKSPACE,
	glfw.KeyTab:       core.KEY_TAB,
	glfw.KeyEnter:     core.KEY_ENTER,
	glfw.KeyEscape:    core.KEY_ESCAPE,
	glfw.KeySpace:     core.KEY_SPACE,
	glfw.KeyLeft:      core.KEY_LEFT,
	glfw.KeyUp:        core.KEY_UP,
	glfw.KeyRight:     core.KEY_RIGHT,
	glfw.KeyDown:      core.KEY_DOWN,
}

// translateKey maps a glfw key onto the engine key codes. Letters and digits
// share their ASCII values in both.
func translateKey(key glfw.Key) (core.KeyCode, bool) {
	if code, ok := namedKeys[key]; ok {
		return code, true
	}
	switch {
	case key >= glfw.Key0 && key <= glfw.Key9:
		return core.KEY_0 + core.KeyCode(key-glfw.Key0), true
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KEY_A + core.KeyCode(key-glfw.KeyA), true
	case key >= glfw.KeyF1 && key <= glfw.KeyF12:
		return core.KEY_F1 + core.KeyCode(key-glfw.KeyF1), true
	default:
		return 0, false
	}
}
