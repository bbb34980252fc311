package core

import "sync"

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_0         KeyCode = 0x30
	KEY_9         KeyCode = 0x39
	KEY_A         KeyCode = 0x41
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F12       KeyCode = 0x7B
	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS + 1]bool
}

// Input holds current and previous keyboard states. Key changes are
// forwarded to the event bus as key pressed/released events.
type Input struct {
	mu       sync.RWMutex
	events   *EventBus
	current  KeyboardState
	previous KeyboardState
}

func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update copies current states to previous states.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.current.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.previous.Keys[key]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.WasKeyDown(key)
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	in.mu.Lock()
	// Only handle this if the state actually changed.
	if in.current.Keys[key] == pressed {
		in.mu.Unlock()
		return
	}
	in.current.Keys[key] = pressed
	in.mu.Unlock()

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}

	// Fire off an event for immediate processing.
	if in.events != nil {
		in.events.Fire(EventContext{
			Type: code,
			Data: &KeyEvent{
				KeyCode: key,
			},
		})
	}
}
