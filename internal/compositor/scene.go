// Package compositor models the host the effects plug into: views, outputs,
// a frame scheduler with pre and post hooks, and a call queue that runs
// work on the render thread between frames.
package compositor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/internal/logger"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// DefaultBackground is the color painted behind views.
var DefaultBackground = [4]float32{0.1, 0.1, 0.15, 1.0}

const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

type call struct {
	fn    func()
	done  chan struct{}
	state *atomic.Int32
}

// Scene owns every view and output. Apart from Invoke, all methods must be
// called from the render thread.
type Scene struct {
	dev        gpu.Device
	log        *zap.Logger
	background [4]float32

	outputs []*Output
	// views are ordered bottom to top
	views  []*View
	nextID uint64

	frameHooks    hookList[FrameHook]
	unmapped      hookList[ViewSignal]
	destroyed     hookList[ViewSignal]
	outputRemoved hookList[OutputSignal]

	calls chan call
}

// NewScene creates an empty scene that paints through dev.
func NewScene(dev gpu.Device) *Scene {
	return &Scene{
		dev:        dev,
		log:        logger.Named("scene"),
		background: DefaultBackground,
		calls:      make(chan call, 64),
	}
}

// Device returns the scene's GPU device.
func (s *Scene) Device() gpu.Device { return s.dev }

// SetBackground sets the color painted behind views.
func (s *Scene) SetBackground(c [4]float32) {
	s.background = c
	s.DamageAll()
}

// AddOutput adds an output. Names must be unique.
func (s *Scene) AddOutput(spec OutputSpec) (*Output, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("output name is empty")
	}
	if s.FindOutput(spec.Name) != nil {
		return nil, fmt.Errorf("output %q already exists", spec.Name)
	}
	if spec.Scale == 0 {
		spec.Scale = 1
	}
	o := &Output{
		scene:    s,
		name:     spec.Name,
		geometry: spec.Geometry,
		scale:    spec.Scale,
		final:    spec.Final,
		aux:      spec.Aux,
	}
	o.DamageWhole()
	s.outputs = append(s.outputs, o)
	s.log.Info("output added", zap.String("output", o.name), zap.Int32("width", o.geometry.Width), zap.Int32("height", o.geometry.Height))
	return o, nil
}

// RemoveOutput notifies listeners, drops every hook registered on the
// output and detaches its views.
func (s *Scene) RemoveOutput(name string) bool {
	o := s.FindOutput(name)
	if o == nil {
		return false
	}
	s.outputRemoved.each(func(fn OutputSignal) { fn(o) })
	o.pre.clear()
	o.post.clear()
	o.removed = true
	for i, cur := range s.outputs {
		if cur == o {
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			break
		}
	}
	for _, v := range s.views {
		if v.output == o {
			v.output = nil
		}
	}
	s.log.Info("output removed", zap.String("output", name))
	return true
}

// FindOutput returns the output with the given name, nil if none.
func (s *Scene) FindOutput(name string) *Output {
	for _, o := range s.outputs {
		if o.name == name {
			return o
		}
	}
	return nil
}

// Outputs returns the outputs in the order they were added.
func (s *Scene) Outputs() []*Output {
	return append([]*Output(nil), s.outputs...)
}

// AddView adds an unmapped view on top of the stack.
func (s *Scene) AddView(spec ViewSpec) (*View, error) {
	var out *Output
	if spec.Output != "" {
		out = s.FindOutput(spec.Output)
		if out == nil {
			return nil, fmt.Errorf("output %q not found", spec.Output)
		}
	} else if len(s.outputs) > 0 {
		out = s.outputs[0]
	}
	if spec.Geometry.Empty() {
		return nil, fmt.Errorf("view %q has empty geometry", spec.Title)
	}
	buffer := spec.Buffer
	if buffer.Empty() {
		buffer = spec.Geometry
	}
	s.nextID++
	v := &View{
		scene:      s,
		id:         s.nextID,
		title:      spec.Title,
		output:     out,
		geometry:   spec.Geometry,
		buffer:     buffer,
		decoration: spec.Decoration,
		texture:    spec.Texture,
	}
	s.views = append(s.views, v)
	s.log.Debug("view added", zap.Uint64("view", v.id), zap.String("title", v.title))
	return v, nil
}

// FindView returns the view with the given id, nil if none.
func (s *Scene) FindView(id uint64) *View {
	for _, v := range s.views {
		if v.id == id {
			return v
		}
	}
	return nil
}

// Views returns the views from bottom to top.
func (s *Scene) Views() []*View {
	return append([]*View(nil), s.views...)
}

// ViewAt returns the topmost mapped view whose buffer contains p.
func (s *Scene) ViewAt(p math.Vec2) *View {
	for i := len(s.views) - 1; i >= 0; i-- {
		v := s.views[i]
		if v.Mapped() && v.buffer.ContainsPoint(p) {
			return v
		}
	}
	return nil
}

func (s *Scene) dropView(v *View) {
	for i, cur := range s.views {
		if cur == v {
			s.views = append(s.views[:i], s.views[i+1:]...)
			break
		}
	}
	s.log.Debug("view destroyed", zap.Uint64("view", v.id))
}

// AddFrameHook registers fn to run at the start of every frame.
func (s *Scene) AddFrameHook(fn FrameHook) *Hook {
	return s.frameHooks.add(fn)
}

// OnViewUnmapped registers fn to run when a view is about to be hidden.
func (s *Scene) OnViewUnmapped(fn ViewSignal) *Hook {
	return s.unmapped.add(fn)
}

// OnViewDestroyed registers fn to run when a view is destroyed.
func (s *Scene) OnViewDestroyed(fn ViewSignal) *Hook {
	return s.destroyed.add(fn)
}

// OnOutputRemoved registers fn to run before an output is removed.
func (s *Scene) OnOutputRemoved(fn OutputSignal) *Hook {
	return s.outputRemoved.add(fn)
}

// DamageAll schedules a full repaint of every output.
func (s *Scene) DamageAll() {
	for _, o := range s.outputs {
		o.DamageWhole()
	}
}

// Invoke queues fn to run on the render thread and waits until it ran or
// ctx is done. When Invoke returns an error, fn has not run and never will.
// It is safe to call from any goroutine.
func (s *Scene) Invoke(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{}), state: new(atomic.Int32)}
	select {
	case s.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		if c.state.CompareAndSwap(callPending, callAbandoned) {
			return ctx.Err()
		}
		// Already claimed by the render thread.
		<-c.done
		return nil
	}
}

// RunPending runs every queued call and returns how many ran. Calls whose
// caller gave up are dropped.
func (s *Scene) RunPending() int {
	n := 0
	for {
		select {
		case c := <-s.calls:
			if !c.state.CompareAndSwap(callPending, callRunning) {
				s.log.Debug("dropping abandoned call")
				continue
			}
			s.run(c)
			n++
		default:
			return n
		}
	}
}

func (s *Scene) run(c call) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("queued call panicked", zap.Any("panic", r))
		}
	}()
	c.fn()
}

// Frame runs one frame: queued calls, frame hooks, then for each output its
// pre hooks, a repaint of its damage and its post hooks.
func (s *Scene) Frame(now time.Time) {
	s.RunPending()
	s.frameHooks.each(func(fn FrameHook) { fn(now) })

	for _, o := range s.Outputs() {
		if o.removed {
			continue
		}
		o.runPreHooks(now)
		if o.damage.Empty() {
			continue
		}
		s.paint(o)
	}
}

func (s *Scene) paint(o *Output) {
	damage := o.damage.Intersect(o.geometry)
	o.damage = nil
	rt := o.RenderTarget()

	gpu.With(s.dev, rt.Target, func() {
		for _, b := range damage {
			scissor := rt.FramebufferBox(b)
			s.dev.Clear(s.background, &scissor)
		}
	})

	for _, v := range s.views {
		if !v.Mapped() || v.output != o {
			continue
		}
		if node := v.outermost(); node != nil {
			if own := node.Schedule(rt, damage); !own.Empty() {
				node.Render(rt, v.texture, own)
			}
			continue
		}
		if own := damage.Intersect(v.buffer); !own.Empty() {
			s.drawView(rt, v, own)
		}
	}

	if o.post.len() > 0 {
		o.runPostHooks()
	}
	o.frames++
}

func (s *Scene) drawView(rt RenderTarget, v *View, region math.Region) {
	viewport := rt.FramebufferBox(v.buffer)
	gpu.With(s.dev, rt.Target, func() {
		for _, b := range region {
			scissor := rt.FramebufferBox(b)
			s.dev.DrawQuad(gpu.Quad{
				Texture:  v.texture.ID,
				MVP:      rt.Transform,
				Progress: 1,
				Viewport: viewport,
				Scissor:  &scissor,
				Blend:    gpu.BlendPremultiplied,
			})
		}
	})
}
