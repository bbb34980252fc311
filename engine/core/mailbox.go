package core

import "sync"

// ResizeEvent carries a new framebuffer size in pixels.
type ResizeEvent struct {
	Width  uint32
	Height uint32
}

// ResizeMailbox hands framebuffer size changes from the window thread to the
// frame loop. Only the most recent event is kept.
type ResizeMailbox struct {
	mu      sync.Mutex
	pending ResizeEvent
	full    bool
	sent    uint64
}

func NewResizeMailbox() *ResizeMailbox {
	return &ResizeMailbox{}
}

// Send stores ev, replacing any event that has not been received yet.
func (m *ResizeMailbox) Send(ev ResizeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = ev
	m.full = true
	m.sent++
}

// TryReceive returns the pending event, if any, and empties the mailbox.
func (m *ResizeMailbox) TryReceive() (ResizeEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		return ResizeEvent{}, false
	}
	ev := m.pending
	m.pending = ResizeEvent{}
	m.full = false
	return ev, true
}

// Sent reports how many events were ever sent, received or not.
func (m *ResizeMailbox) Sent() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}
