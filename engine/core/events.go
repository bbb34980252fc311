package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01
	// Keyboard key pressed. Data is a *KeyEvent.
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data is a *KeyEvent.
	EVENT_CODE_KEY_RELEASED EventCode = 0x03
	// Resized/resolution changed from the OS. Data is a *SystemEvent.
	EVENT_CODE_RESIZED EventCode = 0x08

	MAX_EVENT_CODE EventCode = 0xFF
)

type EventContext struct {
	Type EventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

// EventBus dispatches events synchronously to the listeners registered for
// a code, in registration order.
type EventBus struct {
	mu         sync.RWMutex
	nextID     uint64
	registered map[EventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[EventCode][]registeredEvent),
	}
}

// Register adds a listener for code and returns a handle usable with Unregister.
func (eb *EventBus) Register(code EventCode, onEvent FnOnEvent) uint64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	eb.registered[code] = append(eb.registered[code], registeredEvent{
		id:       eb.nextID,
		callback: onEvent,
	})
	return eb.nextID
}

// Unregister removes a listener. Returns false if it was not registered.
func (eb *EventBus) Unregister(code EventCode, id uint64) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	events := eb.registered[code]
	for i, e := range events {
		if e.id == id {
			eb.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers the event to listeners of its code. If a handler returns
// true the event is considered handled and not passed on.
func (eb *EventBus) Fire(context EventContext) bool {
	eb.mu.RLock()
	events := eb.registered[context.Type]
	eb.mu.RUnlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}

// Shutdown drops every listener.
func (eb *EventBus) Shutdown() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.registered = make(map[EventCode][]registeredEvent)
}
