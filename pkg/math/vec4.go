package math

// Vec4 is a 4-component vector.
// Margin vectors use the order left, top, right, bottom.
type Vec4 [4]float32

// Scale returns the vector multiplied by s.
func (v Vec4) Scale(s float32) Vec4 {
	return Vec4{v[0] * s, v[1] * s, v[2] * s, v[3] * s}
}

// Add returns the component-wise sum.
func (v Vec4) Add(other Vec4) Vec4 {
	return Vec4{v[0] + other[0], v[1] + other[1], v[2] + other[2], v[3] + other[3]}
}
