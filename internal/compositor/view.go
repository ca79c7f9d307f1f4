package compositor

import (
	"fmt"

	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// ViewSpec describes a view to add to a scene.
type ViewSpec struct {
	Title  string
	Output string
	// Geometry is the drawable content box in layout coordinates.
	Geometry math.Box
	// Buffer is the backing buffer box. Zero means the same as Geometry.
	Buffer math.Box
	// Decoration holds margins registered by a decorator (left, top, right, bottom).
	Decoration math.Vec4
	Texture    gpu.Texture
}

type namedTransformer struct {
	name string
	node Transformer
}

// View is one on-screen surface.
type View struct {
	scene      *Scene
	id         uint64
	title      string
	output     *Output
	geometry   math.Box
	buffer     math.Box
	decoration math.Vec4
	texture    gpu.Texture

	mapped       bool
	destroyed    bool
	transformers []namedTransformer
}

// ID returns the view's stable identifier.
func (v *View) ID() uint64 { return v.id }

func (v *View) String() string { return fmt.Sprintf("view %d (%s)", v.id, v.title) }

// Title returns the view title.
func (v *View) Title() string { return v.title }

// Output returns the output the view is shown on, nil if it has none.
func (v *View) Output() *Output { return v.output }

// Mapped reports whether the view is visible.
func (v *View) Mapped() bool { return v.mapped && !v.destroyed }

// Destroyed reports whether the view was destroyed.
func (v *View) Destroyed() bool { return v.destroyed }

// Geometry returns the drawable content box.
func (v *View) Geometry() math.Box { return v.geometry }

// BufferBox returns the backing buffer box.
func (v *View) BufferBox() math.Box { return v.buffer }

// Texture returns the view's rendered buffer.
func (v *View) Texture() gpu.Texture { return v.texture }

// DecorationMargins returns the margins registered by a decorator.
func (v *View) DecorationMargins() math.Vec4 { return v.decoration }

// SetDecorationMargins replaces the decorator margins and damages the view.
func (v *View) SetDecorationMargins(m math.Vec4) {
	v.decoration = m
	v.Damage()
}

// Move places the content box at x, y keeping the buffer offset.
func (v *View) Move(x, y int32) {
	v.Damage()
	dx, dy := x-v.geometry.X, y-v.geometry.Y
	v.geometry = v.geometry.Translate(dx, dy)
	v.buffer = v.buffer.Translate(dx, dy)
	v.Damage()
}

// ContentInsets returns how far the content box is inset from the buffer
// box on each side (left, top, right, bottom).
func (v *View) ContentInsets() math.Vec4 {
	return math.Vec4{
		float32(v.geometry.X - v.buffer.X),
		float32(v.geometry.Y - v.buffer.Y),
		float32(v.buffer.Right() - v.geometry.Right()),
		float32(v.buffer.Bottom() - v.geometry.Bottom()),
	}
}

// Damage reports the whole buffer box as damaged. The damage passes
// through the view's transformers before reaching the output.
func (v *View) Damage() {
	v.DamageRegion(math.RegionOf(v.buffer))
}

// DamageRegion reports r as damaged.
func (v *View) DamageRegion(r math.Region) {
	if v.output == nil || v.destroyed {
		return
	}
	for _, t := range v.transformers {
		r = t.node.ChildDamaged(r)
	}
	v.output.DamageRegion(r)
}

// AddTransformer registers node under name. A view holds at most one node
// per name.
func (v *View) AddTransformer(name string, node Transformer) error {
	if v.destroyed {
		return fmt.Errorf("%s: destroyed", v)
	}
	if v.Transformer(name) != nil {
		return fmt.Errorf("%s: transformer %q already registered", v, name)
	}
	v.transformers = append(v.transformers, namedTransformer{name: name, node: node})
	return nil
}

// RemoveTransformer unregisters the node under name.
func (v *View) RemoveTransformer(name string) bool {
	for i, t := range v.transformers {
		if t.name == name {
			v.transformers = append(v.transformers[:i], v.transformers[i+1:]...)
			return true
		}
	}
	return false
}

// Transformer returns the node registered under name, nil if none.
func (v *View) Transformer(name string) Transformer {
	for _, t := range v.transformers {
		if t.name == name {
			return t.node
		}
	}
	return nil
}

// TransformerCount returns the number of registered nodes.
func (v *View) TransformerCount() int {
	return len(v.transformers)
}

// outermost returns the node that draws the view. The scene has no
// intermediate buffers, so only the last registered node draws.
func (v *View) outermost() Transformer {
	if len(v.transformers) == 0 {
		return nil
	}
	return v.transformers[len(v.transformers)-1].node
}

// Map makes the view visible.
func (v *View) Map() {
	if v.mapped || v.destroyed {
		return
	}
	v.mapped = true
	v.Damage()
}

// Unmap hides the view. Unmapped listeners run before the view stops
// being drawn.
func (v *View) Unmap() {
	if !v.mapped || v.destroyed {
		return
	}
	v.Damage()
	v.scene.unmapped.each(func(fn ViewSignal) { fn(v) })
	v.mapped = false
	v.Damage()
}

// Destroy unmaps the view, notifies listeners and removes it from the scene.
func (v *View) Destroy() {
	if v.destroyed {
		return
	}
	v.Unmap()
	v.scene.destroyed.each(func(fn ViewSignal) { fn(v) })
	v.transformers = nil
	v.destroyed = true
	v.scene.dropView(v)
}
