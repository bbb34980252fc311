package math

import "golang.org/x/image/math/f32"

// Vec2 represents a 2D vector, laid out as two consecutive float32.
type Vec2 = f32.Vec2

func NewVec2(x, y float32) Vec2 {
	return Vec2{x, y}
}

/**
 * @brief Represents the extents of a 2d object.
 */
type Extents2D struct {
	/** @brief The minimum extents of the object. */
	Min Vec2
	/** @brief The maximum extents of the object. */
	Max Vec2
}

func (e Extents2D) Width() float32 {
	return e.Max[0] - e.Min[0]
}

func (e Extents2D) Height() float32 {
	return e.Max[1] - e.Min[1]
}

// Contains reports whether p lies inside the extents, edges included.
func (e Extents2D) Contains(p Vec2) bool {
	return p[0] >= e.Min[0] && p[0] <= e.Max[0] && p[1] >= e.Min[1] && p[1] <= e.Max[1]
}
