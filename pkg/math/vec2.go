// Package math provides the vector, matrix and rectangle types shared by the
// compositor and the effect renderer.
package math

// Vec2 is a 2D point in output-logical coordinates.
type Vec2 struct {
	X, Y float32
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{v.X - other.X, v.Y - other.Y}
}
