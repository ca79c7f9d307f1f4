package compositor

import (
	"time"

	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// OutputSpec describes an output to add to a scene.
type OutputSpec struct {
	Name string
	// Geometry is the output's place in the global layout, in logical pixels.
	Geometry math.Box
	// Scale maps logical pixels to framebuffer pixels. Zero means 1.
	Scale float32
	// Final receives the frames that are presented.
	Final gpu.Target
	// Aux receives the composited scene while post hooks are registered.
	Aux gpu.Target
}

// Output is a display the scene composites onto.
type Output struct {
	scene    *Scene
	name     string
	geometry math.Box
	scale    float32
	final    gpu.Target
	aux      gpu.Target

	damage  math.Region
	pre     hookList[FrameHook]
	post    hookList[PostHook]
	frames  uint64
	removed bool
}

// Name returns the output's connector name.
func (o *Output) Name() string { return o.name }

func (o *Output) String() string { return o.name }

// Geometry returns the output's layout box.
func (o *Output) Geometry() math.Box { return o.geometry }

// Scale returns the logical to framebuffer scale.
func (o *Output) Scale() float32 { return o.scale }

// Final returns the presented framebuffer.
func (o *Output) Final() gpu.Target { return o.final }

// Frames returns how many frames were painted.
func (o *Output) Frames() uint64 { return o.frames }

// Removed reports whether the output was removed from its scene.
func (o *Output) Removed() bool { return o.removed }

// Damage schedules a repaint of box, in layout coordinates.
func (o *Output) Damage(box math.Box) {
	o.damage = o.damage.Union(box.Intersect(o.geometry))
}

// DamageRegion schedules a repaint of every box in r.
func (o *Output) DamageRegion(r math.Region) {
	o.damage = o.damage.UnionRegion(r.Intersect(o.geometry))
}

// DamageWhole schedules a full repaint.
func (o *Output) DamageWhole() {
	o.damage = math.RegionOf(o.geometry)
}

// PendingDamage returns the damage that the next frame will repaint.
func (o *Output) PendingDamage() math.Region {
	return o.damage
}

// AddPreHook registers fn to run before this output is painted.
func (o *Output) AddPreHook(fn FrameHook) *Hook {
	return o.pre.add(fn)
}

// AddPostHook registers fn to post-process the composited frame.
func (o *Output) AddPostHook(fn PostHook) *Hook {
	return o.post.add(fn)
}

// HookCount returns the number of registered pre and post hooks.
func (o *Output) HookCount() (pre, post int) {
	return o.pre.len(), o.post.len()
}

// RenderTarget returns the target the scene paints into for this output:
// the aux buffer while post hooks exist, the final buffer otherwise.
func (o *Output) RenderTarget() RenderTarget {
	target := o.final
	if o.post.len() > 0 {
		target = o.aux
	}
	return RenderTarget{
		Target:    target,
		Geometry:  o.geometry,
		Scale:     o.scale,
		Transform: math.Identity(),
	}
}

func (o *Output) runPreHooks(now time.Time) {
	o.pre.each(func(fn FrameHook) { fn(now) })
}

func (o *Output) runPostHooks() {
	o.post.each(func(fn PostHook) { fn(o.aux, o.final) })
}
