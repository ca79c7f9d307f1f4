package math

// Box is an integer rectangle with origin at the top-left corner.
type Box struct {
	X, Y          int32
	Width, Height int32
}

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Right returns the exclusive right edge.
func (b Box) Right() int32 { return b.X + b.Width }

// Bottom returns the exclusive bottom edge.
func (b Box) Bottom() int32 { return b.Y + b.Height }

// Intersect returns the overlap of two boxes. The result is empty when they
// do not overlap.
func (b Box) Intersect(other Box) Box {
	x1 := max(b.X, other.X)
	y1 := max(b.Y, other.Y)
	x2 := min(b.Right(), other.Right())
	y2 := min(b.Bottom(), other.Bottom())
	if x2 <= x1 || y2 <= y1 {
		return Box{}
	}
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// ContainsPoint reports whether the point lies within b.
func (b Box) ContainsPoint(p Vec2) bool {
	return p.X >= float32(b.X) && p.Y >= float32(b.Y) &&
		p.X < float32(b.Right()) && p.Y < float32(b.Bottom())
}

// Translate returns the box moved by dx, dy.
func (b Box) Translate(dx, dy int32) Box {
	b.X += dx
	b.Y += dy
	return b
}

// ScaleBy returns the box with all edges multiplied by s, rounded outwards.
func (b Box) ScaleBy(s float32) Box {
	if s == 1 {
		return b
	}
	x1 := floor(float32(b.X) * s)
	y1 := floor(float32(b.Y) * s)
	x2 := ceil(float32(b.Right()) * s)
	y2 := ceil(float32(b.Bottom()) * s)
	return Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func floor(v float32) int32 {
	i := int32(v)
	if float32(i) > v {
		i--
	}
	return i
}

func ceil(v float32) int32 {
	i := int32(v)
	if float32(i) < v {
		i++
	}
	return i
}
