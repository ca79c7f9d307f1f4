package effect

import (
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/engine/shader"
	"github.com/Faultbox/wf-filters/internal/fade"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// NodeName is the transformer name view effects register under.
const NodeName = "filters"

// DefaultMinMargin is the pad used for content margins that are exactly zero.
const DefaultMinMargin = 2

// ViewEffect is a shader effect bound to one view. It is a render node in
// the view's transformer chain and ticks its fade from a scene frame hook.
type ViewEffect struct {
	base
	scene     *compositor.Scene
	view      *compositor.View
	minMargin float32
	log       *zap.Logger

	frameHook *compositor.Hook
	onFaded   func(*ViewEffect)
	destroyed bool
}

func newViewEffect(scene *compositor.Scene, view *compositor.View, path string, opts Options, log *zap.Logger) *ViewEffect {
	dev := scene.Device()
	return &ViewEffect{
		base: base{
			dev:     dev,
			program: NewProgram(dev, shader.KindView),
			fade:    fade.New(opts.FadeDuration),
			path:    path,
		},
		scene:     scene,
		view:      view,
		minMargin: opts.MinMargin,
		log:       log.With(zap.Uint64("view", view.ID())),
	}
}

// View returns the view the effect is bound to.
func (e *ViewEffect) View() *compositor.View { return e.view }

// attach compiles body and hooks the effect into the view. On failure
// nothing stays registered.
func (e *ViewEffect) attach(body string, now time.Time) error {
	if err := e.Compile(body); err != nil {
		return err
	}
	if err := e.view.AddTransformer(NodeName, e); err != nil {
		e.program.Release()
		return err
	}
	e.frameHook = e.scene.AddFrameHook(e.frame)
	e.fade.Animate(1, now)
	e.view.Damage()
	return nil
}

// Detach starts the fade toward 0. The node keeps rendering until the fade
// finishes.
func (e *ViewEffect) Detach(now time.Time) {
	if e.destroyed || (e.fade.Target() == 0 && e.fade.Running()) {
		return
	}
	e.fade.Animate(0, now)
	e.view.Damage()
}

// FadingOut reports whether a detach is in progress.
func (e *ViewEffect) FadingOut() bool {
	return e.fade.Running() && e.fade.Target() == 0
}

// Step implements Contributor.
func (e *ViewEffect) Step(now time.Time) bool {
	return e.fade.Tick(now)
}

func (e *ViewEffect) frame(now time.Time) {
	wasRunning := e.fade.Running()
	running := e.Step(now)
	if running || wasRunning {
		// the effect's pixels change every frame, so everything on screen
		// has to be redrawn
		e.scene.DamageAll()
	}
	if e.fade.FinishedAtZero() {
		e.log.Debug("fade-out finished")
		if e.onFaded != nil {
			e.onFaded(e)
		} else {
			e.Destroy()
		}
	}
}

// Destroy implements Contributor. The node and frame hook are removed
// before the program is released.
func (e *ViewEffect) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.frameHook.Remove()
	if node := e.view.Transformer(NodeName); node == compositor.Transformer(e) {
		e.view.RemoveTransformer(NodeName)
		e.view.Damage()
	}
	e.program.Release()
}

// Margins returns how far the view's content is inset from its buffer,
// including decoration margins, in framebuffer pixels. Components that are
// exactly zero are padded to the minimum margin.
func (e *ViewEffect) Margins(scale float32) math.Vec4 {
	m := e.view.ContentInsets().Add(e.view.DecorationMargins())
	for i := range m {
		if m[i] == 0 {
			m[i] = e.minMargin
		}
	}
	if scale == 0 {
		scale = 1
	}
	return m.Scale(scale)
}

// BoundingBox implements compositor.Transformer.
func (e *ViewEffect) BoundingBox() math.Box {
	return e.view.BufferBox()
}

// Schedule implements compositor.Transformer. The node renders only the
// damage inside its own box.
func (e *ViewEffect) Schedule(_ compositor.RenderTarget, damage math.Region) math.Region {
	return damage.Intersect(e.BoundingBox())
}

// ChildDamaged implements compositor.Transformer. Damage passes to the
// parent unmodified.
func (e *ViewEffect) ChildDamaged(r math.Region) math.Region {
	return r
}

// Render implements compositor.Transformer. It issues one quad per damaged
// box, scissored to that box.
func (e *ViewEffect) Render(target compositor.RenderTarget, source gpu.Texture, region math.Region) {
	if !e.program.Valid() {
		return
	}
	viewport := target.FramebufferBox(e.BoundingBox())
	margins := e.Margins(target.Scale)
	progress := e.fade.Progress()

	gpu.With(e.dev, target.Target, func() {
		for _, box := range region {
			scissor := target.FramebufferBox(box)
			e.dev.DrawQuad(gpu.Quad{
				Program:  e.program.ID(),
				Texture:  source.ID,
				MVP:      target.Transform,
				Progress: progress,
				Margins:  &margins,
				Viewport: viewport,
				Scissor:  &scissor,
				Blend:    gpu.BlendPremultiplied,
			})
		}
	})
}
