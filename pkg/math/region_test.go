package math

import "testing"

func area(r Region) int64 {
	var n int64
	for _, b := range r {
		n += int64(b.Width) * int64(b.Height)
	}
	return n
}

func assertDisjoint(t *testing.T, r Region) {
	t.Helper()
	for i := range r {
		for j := i + 1; j < len(r); j++ {
			if !r[i].Intersect(r[j]).Empty() {
				t.Errorf("boxes %v and %v overlap", r[i], r[j])
			}
		}
	}
}

func TestRegionUnionNoOverlap(t *testing.T) {
	var r Region
	r = r.Union(Box{0, 0, 10, 10})
	r = r.Union(Box{5, 5, 10, 10})

	// 100 + 100 - 25 shared
	if got := area(r); got != 175 {
		t.Errorf("area = %d, want 175", got)
	}
	assertDisjoint(t, r)
}

func TestRegionUnionCovered(t *testing.T) {
	r := RegionOf(Box{0, 0, 100, 100})
	r = r.Union(Box{10, 10, 5, 5})
	if len(r) != 1 {
		t.Errorf("expected covered box to be dropped, got %v", r)
	}
}

func TestRegionUnionRegion(t *testing.T) {
	r := RegionOf(Box{0, 0, 10, 10})
	r = r.UnionRegion(Region{{5, 0, 10, 10}, {0, 20, 5, 5}, {2, 2, 2, 2}})

	if got := area(r); got != 150+25 {
		t.Errorf("area = %d, want 175", got)
	}
	assertDisjoint(t, r)
}

func TestRegionIntersect(t *testing.T) {
	r := Region{{0, 0, 10, 10}, {20, 0, 10, 10}}
	got := r.Intersect(Box{5, 0, 20, 5})
	if area(got) != 50 {
		t.Errorf("area = %d, want 50", area(got))
	}
	if !r.Intersect(Box{100, 100, 1, 1}).Empty() {
		t.Error("intersection with a disjoint box should be empty")
	}
}

func TestRegionOfEmpty(t *testing.T) {
	if RegionOf(Box{}) != nil {
		t.Error("RegionOf(empty) should be nil")
	}
}
