package engine

import (
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

type Game struct {
	Config *Config
	State  interface{}

	FnInitialize    Initialize
	FnBuildGeometry BuildGeometry
	FnOnResize      OnResize
	FnShutdown      Shutdown
}

type Initialize func() error

// BuildGeometry returns the vertices drawn every frame, laid out for a
// framebuffer of width x height pixels. It is called once.
type BuildGeometry func(width, height uint32) []metadata.Vertex
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
