package engine

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/daw/engine/core"
)

func newTestEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Assets.Dir = t.TempDir()
	cfg.Application.LogLevel = core.ErrorLevel
	g.Config = &cfg

	e, err := New(g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.SlotCount = 0
	if _, err := New(&Game{Config: &cfg}); err == nil {
		t.Fatalf("expected an invalid config to be rejected")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected a nil game to be rejected")
	}
}

func TestNewUsesDefaultConfig(t *testing.T) {
	g := &Game{}
	e, err := New(g)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Config == nil || g.Config.Application.Name != "DAW" {
		t.Fatalf("default config not installed: %+v", g.Config)
	}
	if e.config.Renderer.ApplicationName != "DAW" {
		t.Fatalf("have renderer application name %q", e.config.Renderer.ApplicationName)
	}
	if e.Stage() != EngineStageBootComplete {
		t.Fatalf("have stage %s, want boot complete", e.Stage())
	}
}

func TestRunBeforeInitialize(t *testing.T) {
	e := newTestEngine(t, &Game{})
	if err := e.Run(); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("have %v, want ErrWrongStage", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	e := newTestEngine(t, &Game{})
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if e.Stage() != EngineStageUninitialized {
		t.Fatalf("have stage %s", e.Stage())
	}
}

func TestEscapeFiresQuit(t *testing.T) {
	e := newTestEngine(t, &Game{})

	quits := 0
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, func(core.EventContext) bool {
		quits++
		return false
	})
	e.registerEvents()

	e.input.ProcessKey(core.KEY_A, true)
	if quits != 0 {
		t.Fatalf("A must not quit")
	}
	e.input.ProcessKey(core.KEY_ESCAPE, true)
	if quits != 1 {
		t.Fatalf("have %d quit events, want 1", quits)
	}
	// Releasing escape does nothing.
	e.input.ProcessKey(core.KEY_ESCAPE, false)
	if quits != 1 {
		t.Fatalf("have %d quit events, want 1", quits)
	}
}

func TestResizeForwardsToMailbox(t *testing.T) {
	var resized [][2]uint32
	e := newTestEngine(t, &Game{
		FnOnResize: func(w, h uint32) error {
			resized = append(resized, [2]uint32{w, h})
			return nil
		},
	})
	e.registerEvents()

	fire := func(w, h uint32) {
		e.events.Fire(core.EventContext{
			Type: core.EVENT_CODE_RESIZED,
			Data: &core.SystemEvent{WindowWidth: w, WindowHeight: h},
		})
	}

	// Same as the start size.
	fire(640, 480)
	if e.mailbox.Sent() != 0 {
		t.Fatalf("unchanged size must not be forwarded")
	}

	fire(800, 600)
	fire(1024, 768)
	ev, ok := e.mailbox.TryReceive()
	if !ok || ev.Width != 1024 || ev.Height != 768 {
		t.Fatalf("have %+v (%v), want latest 1024x768", ev, ok)
	}

	// Minimized: the loop is told, the game is not.
	fire(0, 0)
	if ev, _ := e.mailbox.TryReceive(); ev.Width != 0 || ev.Height != 0 {
		t.Fatalf("have %+v, want 0x0", ev)
	}
	fire(1024, 768)

	want := [][2]uint32{{800, 600}, {1024, 768}, {1024, 768}}
	if len(resized) != len(want) {
		t.Fatalf("have %v, want %v", resized, want)
	}
	for i := range want {
		if resized[i] != want[i] {
			t.Fatalf("have %v, want %v", resized, want)
		}
	}
	if e.mailbox.Sent() != 4 {
		t.Fatalf("have %d sends, want 4", e.mailbox.Sent())
	}
}

func TestResizeIgnoresWrongPayload(t *testing.T) {
	e := newTestEngine(t, &Game{})
	e.registerEvents()
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: "nope"})
	if e.mailbox.Sent() != 0 {
		t.Fatalf("bad payload forwarded")
	}
}

func TestStageString(t *testing.T) {
	if EngineStageRunning.String() != "running" || Stage(99).String() != "unknown" {
		t.Fatalf("unexpected stage names")
	}
}
