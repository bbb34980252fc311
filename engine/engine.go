package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/daw/engine/assets"
	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/platform"
	"github.com/spaghettifunk/daw/engine/renderer"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
	"github.com/spaghettifunk/daw/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageBootComplete:
		return "boot complete"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

var ErrWrongStage = errors.New("engine is not in the expected stage")

type Engine struct {
	mu           sync.Mutex
	currentStage Stage
	gameInstance *Game
	config       Config

	events       *core.EventBus
	input        *core.Input
	platform     *platform.Platform
	assetManager *assets.AssetManager
	backend      *vulkan.VulkanRenderer
	renderer     *renderer.Renderer
	mailbox      *core.ResizeMailbox
	clock        *core.Clock
	releases     *core.ReleaseStack

	// Last size seen by the resize handler. Touched on the main thread only.
	width  uint32
	height uint32

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(g *Game) (*Engine, error) {
	if g == nil {
		return nil, errors.New("game instance is required")
	}
	if g.Config == nil {
		cfg := DefaultConfig()
		g.Config = &cfg
	}
	cfg := *g.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := core.SetLogLevel(cfg.Application.LogLevel); err != nil {
		return nil, err
	}
	cfg.Renderer.ApplicationName = cfg.Application.Name

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventBus(),
		mailbox:      core.NewResizeMailbox(),
		clock:        core.NewClock(),
		releases:     core.NewReleaseStack(),
		width:        cfg.Application.StartWidth,
		height:       cfg.Application.StartHeight,
	}
	e.input = core.NewInput(e.events)

	p, err := platform.New(e.events, e.input)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.platform = p

	am, err := assets.NewAssetManager(cfg.Assets.Dir)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.assetManager = am

	backend, err := vulkan.New(p, cfg.Renderer)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.backend = backend

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentStage = s
}

// Initialize opens the window and brings up every subsystem. Whatever was
// started before a failure is torn down again by Shutdown.
func (e *Engine) Initialize() error {
	if e.Stage() != EngineStageBootComplete {
		return fmt.Errorf("%w: initialize from %s", ErrWrongStage, e.Stage())
	}
	e.setStage(EngineStageInitializing)

	e.registerEvents()
	e.releases.Push("events", func() error {
		e.events.Shutdown()
		return nil
	})

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}
	e.releases.Push("platform", e.platform.Shutdown)
	e.width, e.height = e.platform.FramebufferSize()

	if err := e.assetManager.Initialize(e.config.Assets.Watch); err != nil {
		return err
	}
	e.releases.Push("assets", e.assetManager.Shutdown)
	e.assetManager.OnChange(func(info assets.AssetInfo) {
		if info.Stale {
			core.LogWarn("Asset %s changed on disk; restart to pick it up.", info.Path)
		}
	})

	vertexShader, err := e.loadShader(e.config.Assets.VertexShader)
	if err != nil {
		return err
	}
	fragmentShader, err := e.loadShader(e.config.Assets.FragmentShader)
	if err != nil {
		return err
	}
	if err := e.backend.Initialize(app.Name, vertexShader, fragmentShader); err != nil {
		return err
	}
	e.releases.Push("renderer", func() error {
		if e.renderer != nil {
			return e.renderer.Destroy()
		}
		return e.backend.Shutdown()
	})

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}
	if e.gameInstance.FnShutdown != nil {
		e.releases.Push("game", e.gameInstance.FnShutdown)
	}

	var vertices []metadata.Vertex
	if e.gameInstance.FnBuildGeometry != nil {
		vertices = e.gameInstance.FnBuildGeometry(e.width, e.height)
	}
	r, err := renderer.New(e.platform, e.backend, e.mailbox, e.config.Renderer, vertices)
	if err != nil {
		return err
	}
	e.renderer = r

	e.setStage(EngineStageInitialized)
	core.LogInfo("Engine initialized: renderer %s, %d vertices.", r.ID(), e.backend.VertexCount())
	return nil
}

// loadShader reads a compiled shader and releases the asset once its bytes
// are copied out.
func (e *Engine) loadShader(name string) ([]byte, error) {
	res, err := e.assetManager.LoadAsset(name, metadata.ResourceTypeShader)
	if err != nil {
		return nil, fmt.Errorf("load shader %s: %w", name, err)
	}
	code := append([]byte(nil), res.Data...)
	if err := e.assetManager.UnloadAsset(res); err != nil {
		core.LogWarn("failed to unload shader %s: %s", name, err)
	}
	return code, nil
}

// Run blocks until the window closes, Stop is called or a frame fails. It
// must be called from the main goroutine.
func (e *Engine) Run() error {
	if e.Stage() != EngineStageInitialized {
		return fmt.Errorf("%w: run from %s", ErrWrongStage, e.Stage())
	}
	e.setStage(EngineStageRunning)

	e.clock.Start()
	err := e.renderer.Run()
	e.clock.Update()

	loop := e.renderer.Loop()
	fps, ms := loop.Metrics().Frame()
	core.LogInfo("Ran for %s: %d frames, %d swapchain recreations, %.1f fps (%.2f ms).",
		e.clock.Elapsed(), loop.Frames(), loop.Recreations(), fps, ms)
	return err
}

// Stop asks a running engine to return from Run. Safe from any goroutine.
func (e *Engine) Stop() {
	if e.renderer != nil {
		e.renderer.Stop()
	}
	e.platform.RequestClose()
}

// Shutdown releases everything Initialize created, newest first. Only the
// first call does any work.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.setStage(EngineStageShuttingDown)
		e.shutdownErr = e.releases.Release()
		if e.shutdownErr != nil {
			core.LogError("shutdown: %s", e.shutdownErr)
		}
		e.setStage(EngineStageUninitialized)
	})
	return e.shutdownErr
}

// GetFramebufferSize returns the width and height (in this order) of the
// window framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.platform.FramebufferSize()
}

func (e *Engine) registerEvents() {
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Stop()
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	if context.Type == core.EVENT_CODE_KEY_PRESSED {
		if ke.KeyCode == core.KEY_ESCAPE {
			// Technically firing an event to itself, but there may be other listeners.
			e.events.Fire(core.EventContext{
				Type: core.EVENT_CODE_APPLICATION_QUIT,
			})
			// Block anything else from processing this.
			return true
		}
		core.LogDebug("'%c' key pressed in window.", rune(ke.KeyCode))
	} else {
		core.LogDebug("'%c' key released in window.", rune(ke.KeyCode))
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width, height := se.WindowWidth, se.WindowHeight
	if width == e.width && height == e.height {
		return false
	}
	wasMinimized := e.width == 0 || e.height == 0
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// The frame loop idles on its own while the framebuffer is empty.
	e.mailbox.Send(core.ResizeEvent{Width: width, Height: height})

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, waiting for it to be restored.")
		return false
	}
	if wasMinimized {
		core.LogInfo("Window restored, resuming.")
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
	return false
}
