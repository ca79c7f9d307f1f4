package math

// Region is a set of non-overlapping boxes.
type Region []Box

// RegionOf builds a region from a single box.
func RegionOf(b Box) Region {
	if b.Empty() {
		return nil
	}
	return Region{b}
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	for _, b := range r {
		if !b.Empty() {
			return false
		}
	}
	return true
}

// Intersect clips every box of the region to b.
func (r Region) Intersect(b Box) Region {
	var out Region
	for _, rb := range r {
		if clipped := rb.Intersect(b); !clipped.Empty() {
			out = append(out, clipped)
		}
	}
	return out
}

// Union returns r with b added. Parts of b already covered by r are not
// duplicated, so the result stays non-overlapping.
func (r Region) Union(b Box) Region {
	if b.Empty() {
		return r
	}
	pieces := []Box{b}
	for _, existing := range r {
		var next []Box
		for _, p := range pieces {
			next = append(next, subtract(p, existing)...)
		}
		pieces = next
		if len(pieces) == 0 {
			return r
		}
	}
	out := make(Region, 0, len(r)+len(pieces))
	out = append(out, r...)
	return append(out, pieces...)
}

// UnionRegion merges other into r.
func (r Region) UnionRegion(other Region) Region {
	for _, b := range other {
		r = r.Union(b)
	}
	return r
}

// subtract returns the parts of a not covered by b as up to four boxes.
func subtract(a, b Box) []Box {
	in := a.Intersect(b)
	if in.Empty() {
		return []Box{a}
	}
	var out []Box
	if in.Y > a.Y {
		out = append(out, Box{X: a.X, Y: a.Y, Width: a.Width, Height: in.Y - a.Y})
	}
	if in.Bottom() < a.Bottom() {
		out = append(out, Box{X: a.X, Y: in.Bottom(), Width: a.Width, Height: a.Bottom() - in.Bottom()})
	}
	if in.X > a.X {
		out = append(out, Box{X: a.X, Y: in.Y, Width: in.X - a.X, Height: in.Height})
	}
	if in.Right() < a.Right() {
		out = append(out, Box{X: in.Right(), Y: in.Y, Width: a.Right() - in.Right(), Height: in.Height})
	}
	return out
}
