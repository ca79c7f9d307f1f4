package compositor

import (
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// RenderTarget is an output framebuffer together with its layout mapping.
type RenderTarget struct {
	gpu.Target
	Geometry  math.Box
	Scale     float32
	Transform math.Mat4
}

// FramebufferBox converts a layout box to framebuffer pixels.
func (rt RenderTarget) FramebufferBox(b math.Box) math.Box {
	scale := rt.Scale
	if scale == 0 {
		scale = 1
	}
	return b.Translate(-rt.Geometry.X, -rt.Geometry.Y).ScaleBy(scale)
}

// Transformer is a render node that intercepts a view's texture before it
// reaches the output.
type Transformer interface {
	// BoundingBox is the layout area the node draws into.
	BoundingBox() math.Box
	// Schedule returns the part of damage the node will render this frame.
	Schedule(target RenderTarget, damage math.Region) math.Region
	// Render draws source onto target restricted to region.
	Render(target RenderTarget, source gpu.Texture, region math.Region)
	// ChildDamaged receives damage reported by the view and returns the
	// region pushed on to the output.
	ChildDamaged(r math.Region) math.Region
}
