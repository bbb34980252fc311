package core

import "github.com/google/uuid"

// NewInstanceID returns a short random identifier used to tag log lines of
// one renderer instance.
func NewInstanceID() string {
	id := uuid.New().String()
	return id[:8]
}
