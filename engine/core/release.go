package core

import (
	"errors"
	"fmt"
	"sync"
)

type releaseEntry struct {
	name    string
	release func() error
}

// ReleaseStack records how to destroy resources as they are created and
// destroys them in reverse creation order.
type ReleaseStack struct {
	mu      sync.Mutex
	entries []releaseEntry
}

func NewReleaseStack() *ReleaseStack {
	return &ReleaseStack{}
}

// Push registers the release function of a freshly created resource.
func (rs *ReleaseStack) Push(name string, release func() error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.entries = append(rs.entries, releaseEntry{name: name, release: release})
}

func (rs *ReleaseStack) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.entries)
}

// Release runs every registered function, newest first. A failing release
// does not stop the ones after it; all errors are joined.
func (rs *ReleaseStack) Release() error {
	rs.mu.Lock()
	entries := rs.entries
	rs.entries = nil
	rs.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		LogDebug("Releasing %s...", entries[i].name)
		if err := entries[i].release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", entries[i].name, err))
		}
	}
	return errors.Join(errs...)
}
