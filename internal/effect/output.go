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

// OutputEffect is a shader effect over an output's composited frame. One
// instance lives per output and survives shader replacement.
type OutputEffect struct {
	base
	scene  *compositor.Scene
	output *compositor.Output
	log    *zap.Logger

	active  bool
	pre     *compositor.Hook
	post    *compositor.Hook
	onFaded func(*OutputEffect)
}

func newOutputEffect(scene *compositor.Scene, output *compositor.Output, opts Options, log *zap.Logger) *OutputEffect {
	dev := scene.Device()
	return &OutputEffect{
		base: base{
			dev:     dev,
			program: NewProgram(dev, shader.KindOutput),
			fade:    fade.New(opts.FadeDuration),
		},
		scene:  scene,
		output: output,
		log:    log.With(zap.String("output", output.Name())),
	}
}

// Output returns the output the effect is bound to.
func (e *OutputEffect) Output() *compositor.Output { return e.output }

// Active reports whether the effect currently contributes to rendering.
func (e *OutputEffect) Active() bool { return e.active }

// SetShader recompiles the program in place. On failure the effect is left
// inactive with no hooks registered.
func (e *OutputEffect) SetShader(body, path string, now time.Time) error {
	if err := e.Compile(body); err != nil {
		e.deactivate()
		return err
	}
	e.path = path

	if e.active {
		if e.fade.Target() < 1 {
			e.fade.Animate(1, now)
		}
		e.output.DamageWhole()
		return nil
	}

	e.post = e.output.AddPostHook(e.render)
	e.pre = e.output.AddPreHook(e.frame)
	e.fade.Animate(1, now)
	e.active = true
	e.output.DamageWhole()
	return nil
}

// Unset starts the fade toward 0. Hooks stay registered until it finishes.
func (e *OutputEffect) Unset(now time.Time) {
	if !e.active || (e.fade.Target() == 0 && e.fade.Running()) {
		return
	}
	e.fade.Animate(0, now)
	e.output.DamageWhole()
}

// Step implements Contributor.
func (e *OutputEffect) Step(now time.Time) bool {
	return e.fade.Tick(now)
}

func (e *OutputEffect) frame(now time.Time) {
	wasRunning := e.fade.Running()
	running := e.Step(now)
	if running || wasRunning {
		e.output.DamageWhole()
		for _, v := range e.scene.Views() {
			if v.Output() == e.output {
				v.Damage()
			}
		}
	}
	if e.fade.FinishedAtZero() {
		e.log.Debug("fade-out finished")
		e.deactivate()
		if e.onFaded != nil {
			e.onFaded(e)
		}
	}
}

// render draws the composited frame through the program. It covers the
// whole output every frame it runs.
func (e *OutputEffect) render(src, dst gpu.Target) {
	if !e.program.Valid() {
		return
	}
	progress := e.fade.Progress()
	gpu.With(e.dev, dst, func() {
		e.dev.DrawQuad(gpu.Quad{
			Program:  e.program.ID(),
			Texture:  src.Texture,
			MVP:      math.Identity(),
			Progress: progress,
			Viewport: dst.Bounds(),
			Blend:    gpu.BlendNone,
		})
	})
}

func (e *OutputEffect) deactivate() {
	e.pre.Remove()
	e.post.Remove()
	e.pre, e.post = nil, nil
	e.program.Release()
	if e.active {
		e.active = false
		e.output.DamageWhole()
	}
}

// Destroy implements Contributor.
func (e *OutputEffect) Destroy() {
	e.deactivate()
}
