package testbed

import (
	"github.com/spaghettifunk/daw/engine"
	"github.com/spaghettifunk/daw/engine/core"
	"github.com/spaghettifunk/daw/engine/math"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

const (
	transportHeight = 48
	browserWidth    = 200
	mixerHeight     = 140
	trackHeight     = 64
	trackCount      = 6
	channelWidth    = 56
	gap             = 4
)

// Rect is an axis aligned rectangle in framebuffer pixels, origin top-left.
type Rect struct {
	X, Y, W, H float32
}

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32
	layout []Rect
}

func NewTestGame(config *engine.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: config,
			State:  &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnBuildGeometry = tg.BuildGeometry
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")
	return nil
}

// BuildGeometry lays out the DAW panels for the initial framebuffer.
func (g *TestGame) BuildGeometry(width, height uint32) []metadata.Vertex {
	state := g.State.(*gameState)
	state.width, state.height = width, height
	state.layout = Layout(float32(width), float32(height))

	vertices := make([]metadata.Vertex, 0, len(state.layout)*6)
	for _, r := range state.layout {
		vertices = append(vertices, r.Quad()...)
	}
	core.LogInfo("Testbed layout: %d panels, %d vertices for %dx%d.", len(state.layout), len(vertices), width, height)
	return vertices
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	state.layout = nil
	return nil
}

// Layout returns the panels of the main window: transport bar, browser,
// track lanes with a clip each, and the mixer channel strips. Panels that
// do not fit are clipped or dropped.
func Layout(width, height float32) []Rect {
	bounds := Rect{0, 0, width, height}
	var rects []Rect
	add := func(r Rect) {
		if c, ok := r.Intersect(bounds); ok {
			rects = append(rects, c)
		}
	}

	// Transport bar with play and stop buttons.
	add(Rect{0, 0, width, transportHeight})
	add(Rect{gap * 2, gap * 2, transportHeight - gap*4, transportHeight - gap*4})
	add(Rect{transportHeight, gap * 2, transportHeight - gap*4, transportHeight - gap*4})

	top := float32(transportHeight + gap)
	mixerTop := height - mixerHeight
	add(Rect{0, top, browserWidth, mixerTop - gap - top})

	// Track lanes; every track gets a clip whose length depends on its index.
	arrangeX := float32(browserWidth + gap)
	arrangeW := width - arrangeX
	for i := 0; i < trackCount; i++ {
		y := top + float32(i)*(trackHeight+gap)
		if y+trackHeight > mixerTop-gap {
			break
		}
		add(Rect{arrangeX, y, arrangeW, trackHeight})
		clipX := arrangeX + float32(i%3)*40 + gap
		clipW := math.Clamp(arrangeW*float32(i+2)/10, 0, arrangeW-clipX+arrangeX-gap)
		add(Rect{clipX, y + gap, clipW, trackHeight - gap*2})
	}

	// Mixer channels with a fader each.
	add(Rect{0, mixerTop, width, mixerHeight})
	for x := float32(gap); x+channelWidth <= width; x += channelWidth + gap {
		add(Rect{x + channelWidth/2 - 3, mixerTop + gap*2, 6, mixerHeight - gap*4})
	}
	return rects
}

func (r Rect) Extents() math.Extents2D {
	return math.Extents2D{
		Min: math.NewVec2(r.X, r.Y),
		Max: math.NewVec2(r.X+r.W, r.Y+r.H),
	}
}

// Intersect clips r to o. ok is false when nothing is left.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	a, b := r.Extents(), o.Extents()
	e := math.Extents2D{
		Min: math.NewVec2(max(a.Min[0], b.Min[0]), max(a.Min[1], b.Min[1])),
		Max: math.NewVec2(min(a.Max[0], b.Max[0]), min(a.Max[1], b.Max[1])),
	}
	if e.Width() <= 0 || e.Height() <= 0 {
		return Rect{}, false
	}
	return Rect{e.Min[0], e.Min[1], e.Width(), e.Height()}, true
}

// Quad returns the two triangles covering r, both wound clockwise on screen.
func (r Rect) Quad() []metadata.Vertex {
	tl := metadata.NewVertex(r.X, r.Y)
	tr := metadata.NewVertex(r.X+r.W, r.Y)
	br := metadata.NewVertex(r.X+r.W, r.Y+r.H)
	bl := metadata.NewVertex(r.X, r.Y+r.H)
	return []metadata.Vertex{tl, tr, br, br, bl, tl}
}
