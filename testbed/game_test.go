package testbed

import (
	"testing"

	"github.com/spaghettifunk/daw/engine"
	"github.com/spaghettifunk/daw/engine/renderer/metadata"
)

// signedArea is positive for triangles wound clockwise with y pointing down.
func signedArea(a, b, c metadata.Vertex) float32 {
	return (b.Position[0]-a.Position[0])*(c.Position[1]-a.Position[1]) -
		(b.Position[1]-a.Position[1])*(c.Position[0]-a.Position[0])
}

func TestQuadIsClockwise(t *testing.T) {
	q := Rect{10, 20, 30, 40}.Quad()
	if len(q) != 6 {
		t.Fatalf("have %d vertices, want 6", len(q))
	}
	for i := 0; i < 6; i += 3 {
		if a := signedArea(q[i], q[i+1], q[i+2]); a <= 0 {
			t.Fatalf("triangle %d: have signed area %v, want > 0", i/3, a)
		}
	}
	if q[0] != metadata.NewVertex(10, 20) || q[2] != metadata.NewVertex(40, 60) {
		t.Fatalf("have corners %v %v", q[0], q[2])
	}
}

func TestIntersect(t *testing.T) {
	bounds := Rect{0, 0, 100, 50}
	tests := []struct {
		name string
		in   Rect
		want Rect
		ok   bool
	}{
		{"inside", Rect{10, 10, 20, 20}, Rect{10, 10, 20, 20}, true},
		{"overhang", Rect{90, 40, 20, 20}, Rect{90, 40, 10, 10}, true},
		{"outside", Rect{120, 0, 10, 10}, Rect{}, false},
		{"empty", Rect{10, 10, 0, 5}, Rect{}, false},
		{"negative", Rect{10, 10, -5, 5}, Rect{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			have, ok := tt.in.Intersect(bounds)
			if ok != tt.ok || have != tt.want {
				t.Fatalf("have %v (%v), want %v (%v)", have, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLayoutStaysInBounds(t *testing.T) {
	sizes := [][2]float32{{640, 480}, {1920, 1080}, {300, 200}, {10, 10}, {0, 0}}
	for _, s := range sizes {
		window := Rect{0, 0, s[0], s[1]}.Extents()
		rects := Layout(s[0], s[1])
		for _, r := range rects {
			if r.W <= 0 || r.H <= 0 {
				t.Fatalf("%vx%v: empty rect %v", s[0], s[1], r)
			}
			e := r.Extents()
			if !window.Contains(e.Min) || !window.Contains(e.Max) {
				t.Fatalf("%vx%v: rect %v out of bounds", s[0], s[1], r)
			}
		}
		if s[0] == 0 && len(rects) != 0 {
			t.Fatalf("have %d rects for an empty window", len(rects))
		}
	}
}

func TestBuildGeometry(t *testing.T) {
	cfg := engine.DefaultConfig()
	g := NewTestGame(&cfg)

	vertices := g.FnBuildGeometry(640, 480)
	if len(vertices) == 0 || len(vertices)%6 != 0 {
		t.Fatalf("have %d vertices, want a non-zero multiple of 6", len(vertices))
	}
	for i := 0; i < len(vertices); i += 3 {
		if a := signedArea(vertices[i], vertices[i+1], vertices[i+2]); a <= 0 {
			t.Fatalf("triangle %d is not clockwise", i/3)
		}
	}

	state := g.State.(*gameState)
	if len(state.layout)*6 != len(vertices) || state.width != 640 || state.height != 480 {
		t.Fatalf("state not updated: %d panels, %dx%d", len(state.layout), state.width, state.height)
	}

	if err := g.FnOnResize(800, 600); err != nil || state.width != 800 {
		t.Fatalf("OnResize: %v, width %d", err, state.width)
	}
	if err := g.FnShutdown(); err != nil || state.layout != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
