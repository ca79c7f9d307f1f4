// Package daemon runs the compositor loop: it presents the scene through an
// SDL2 window and serves the control socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/config"
	"github.com/Faultbox/wf-filters/internal/control"
	"github.com/Faultbox/wf-filters/internal/effect"
	"github.com/Faultbox/wf-filters/internal/engine/debug"
	"github.com/Faultbox/wf-filters/internal/engine/framebuffer"
	"github.com/Faultbox/wf-filters/internal/engine/input"
	"github.com/Faultbox/wf-filters/internal/engine/renderer"
	"github.com/Faultbox/wf-filters/internal/engine/window"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/internal/ipc"
	"github.com/Faultbox/wf-filters/internal/logger"
	"github.com/Faultbox/wf-filters/internal/watch"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// presented is one output and the buffers it renders into.
type presented struct {
	output *compositor.Output
	final  *framebuffer.Framebuffer
	aux    *framebuffer.Framebuffer
	x      int32
}

// Daemon is the running compositor.
type Daemon struct {
	cfg *config.Config
	log *zap.Logger

	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input

	scene   *compositor.Scene
	manager *effect.Manager
	server  *ipc.Server
	binding *control.Binding
	watcher *watch.Watcher
	shots   *debug.ScreenshotCapture

	outputs  []*presented
	textures []gpu.Texture
	height   int32
	drag     *drag
	mouseX   int32
	mouseY   int32
}

// New creates the window, the GL device, the scene described by cfg and
// the control socket. Nothing runs until Run.
func New(cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:   cfg,
		log:   logger.Named("daemon"),
		shots: debug.NewScreenshotCapture("screenshots", "wf-filters"),
	}
	d.log.Info("initializing daemon",
		zap.Int("outputs", len(cfg.Outputs)),
		zap.Int("views", len(cfg.Views)),
	)

	layout := layoutOutputs(cfg.Outputs)
	d.height = layout.height

	// Create window (this also creates OpenGL context)
	var err error
	d.window, err = window.New(window.Config{
		Title:  "wf-filters",
		Width:  layout.width,
		Height: layout.height,
		VSync:  cfg.Display.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// Create renderer (AFTER window, since OpenGL context must exist)
	d.renderer, err = renderer.New()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	d.input = input.New()

	d.scene = compositor.NewScene(d.renderer)
	d.scene.SetBackground(cfg.Display.Background)
	if err := d.addOutputs(layout); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.addViews(layout); err != nil {
		d.Close()
		return nil, err
	}

	opts := effect.Options{
		FadeDuration: cfg.Effects.FadeDuration,
		MinMargin:    cfg.Effects.MinMargin,
	}
	if cfg.Effects.WatchShaders {
		d.watcher, err = watch.New(0)
		if err != nil {
			d.log.Warn("shader hot reload unavailable", zap.Error(err))
		} else {
			opts.Watcher = d.watcher
		}
	}
	d.manager = effect.NewManager(d.scene, opts)

	d.server = ipc.NewServer(cfg.SocketPath(), d.scene, ipc.Options{
		MaxMessageSize: cfg.IPC.MaxMessageSize,
		RequestTimeout: cfg.IPC.RequestTimeout,
	})
	d.binding = control.Register(d.server, d.manager, d.screenshot)

	d.log.Info("daemon initialized successfully")
	return d, nil
}

func (d *Daemon) addOutputs(layout outputLayout) error {
	for i, oc := range d.cfg.Outputs {
		size := layout.sizes[i]
		var final, aux *framebuffer.Framebuffer
		var err error
		gpu.With(d.renderer, gpu.Target{}, func() {
			if final, err = framebuffer.New(size.Width, size.Height); err != nil {
				return
			}
			if aux, err = framebuffer.New(size.Width, size.Height); err != nil {
				final.Destroy()
			}
		})
		if err != nil {
			return fmt.Errorf("output %s: %w", oc.Name, err)
		}
		p := &presented{final: final, aux: aux, x: layout.offsets[i]}
		p.output, err = d.scene.AddOutput(compositor.OutputSpec{
			Name:     oc.Name,
			Geometry: layout.logical[i],
			Scale:    oc.Scale,
			Final:    final.Target(),
			Aux:      aux.Target(),
		})
		if err != nil {
			d.destroyBuffers(p)
			return err
		}
		d.outputs = append(d.outputs, p)
	}
	return nil
}

func (d *Daemon) destroyBuffers(ps ...*presented) {
	gpu.With(d.renderer, gpu.Target{}, func() {
		for _, p := range ps {
			p.final.Destroy()
			p.aux.Destroy()
		}
	})
}

func (d *Daemon) addViews(layout outputLayout) error {
	textures, err := uploadViews(d.renderer, d.log, d.cfg.Views)
	d.textures = textures
	if err != nil {
		return err
	}

	for i, vc := range d.cfg.Views {
		v, err := d.scene.AddView(compositor.ViewSpec{
			Title:      vc.Title,
			Output:     vc.Output,
			Geometry:   viewBox(vc, layout, d.cfg.Outputs),
			Decoration: viewMargins(vc),
			Texture:    textures[i],
		})
		if err != nil {
			return err
		}
		v.Map()
		d.log.Info("view mapped", zap.Uint64("view", v.ID()), zap.String("title", v.Title()))
	}
	return nil
}

// Run serves the control socket and runs the frame loop until the window is
// closed, Escape is pressed or ctx is done. It must be called on the main
// thread.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.server.Serve(gctx)
	})
	if d.watcher != nil {
		g.Go(func() error {
			return d.watcher.Run(gctx, func(path string) {
				err := d.scene.Invoke(gctx, func() { d.manager.Reload(path) })
				if err != nil && !errors.Is(err, context.Canceled) {
					d.log.Warn("reload not applied", zap.String("path", path), zap.Error(err))
				}
			})
		})
	}

	loopErr := d.loop(gctx)

	// Stop accepting requests, then keep draining queued calls until the
	// server and watcher goroutines are gone.
	d.binding.Close()
	cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	for {
		select {
		case err := <-done:
			if loopErr != nil {
				return loopErr
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-time.After(5 * time.Millisecond):
			d.scene.RunPending()
		}
	}
}

func (d *Daemon) loop(ctx context.Context) error {
	var frameBudget time.Duration
	if !d.cfg.Display.VSync && d.cfg.Display.FPSLimit > 0 {
		frameBudget = time.Second / time.Duration(d.cfg.Display.FPSLimit)
	}

	frameCount := 0
	fpsTimer := time.Now()

	d.log.Info("starting frame loop", zap.String("socket", d.server.Addr()))

	for {
		start := time.Now()
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// 1. Process input
		if d.input.Update() {
			return nil
		}
		if d.handleEvents() {
			return nil
		}

		// 2. Requests, effect fades and repaint
		d.scene.Frame(start)

		// 3. Present
		d.present()
		d.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			d.log.Debug("fps", zap.Int("count", frameCount))
			frameCount = 0
			fpsTimer = time.Now()
		}

		if frameBudget > 0 {
			if left := frameBudget - time.Since(start); left > 0 {
				time.Sleep(left)
			}
		}
	}
}

func (d *Daemon) present() {
	gpu.With(d.renderer, gpu.Target{}, func() {
		for _, p := range d.outputs {
			d.renderer.Present(p.final.Target(), p.x, 0, d.height)
		}
	})
}

// handleEvents reacts to input. It returns true when the daemon should quit.
func (d *Daemon) handleEvents() bool {
	for _, ev := range d.input.Events() {
		switch ev.Type {
		case input.EventKeyDown:
			switch ev.Key {
			case sdl.SCANCODE_ESCAPE:
				return true
			case sdl.SCANCODE_DELETE:
				if _, v := d.viewAt(d.mouseX, d.mouseY); v != nil {
					d.log.Info("destroying view", zap.Uint64("view", v.ID()))
					v.Destroy()
				}
			case sdl.SCANCODE_F12:
				for _, p := range d.outputs {
					if _, err := d.screenshot(p.output.Name(), ""); err != nil {
						d.log.Error("screenshot failed", zap.Error(err))
					}
				}
			}
		case input.EventMouseDown:
			p, v := d.viewAt(ev.MouseX, ev.MouseY)
			if v == nil {
				continue
			}
			d.log.Info("view selected",
				zap.Uint64("view", v.ID()),
				zap.String("title", v.Title()),
				zap.String("output", p.output.Name()))
			if ev.Button == sdl.BUTTON_LEFT {
				d.drag = startDrag(v, d.local(p, ev.MouseX, ev.MouseY))
			}
		case input.EventMouseMove:
			d.mouseX, d.mouseY = ev.MouseX, ev.MouseY
			if d.drag != nil {
				if p := d.outputAt(ev.MouseX); p != nil {
					d.drag.update(d.local(p, ev.MouseX, ev.MouseY))
				}
			}
		case input.EventMouseUp:
			d.drag = nil
		}
	}
	return false
}

func (d *Daemon) outputAt(x int32) *presented {
	for _, p := range d.outputs {
		w, _ := p.final.Size()
		if x >= p.x && x < p.x+w {
			return p
		}
	}
	return nil
}

// local converts window pixels over p to layout coordinates.
func (d *Daemon) local(p *presented, x, y int32) math.Vec2 {
	s := p.output.Scale()
	g := p.output.Geometry()
	return math.Vec2{
		X: float32(g.X) + float32(x-p.x)/s,
		Y: float32(g.Y) + float32(y)/s,
	}
}

func (d *Daemon) viewAt(x, y int32) (*presented, *compositor.View) {
	p := d.outputAt(x)
	if p == nil {
		return nil, nil
	}
	return p, d.scene.ViewAt(d.local(p, x, y))
}

// screenshot writes an output's last presented frame to a PNG. It runs on
// the render thread.
func (d *Daemon) screenshot(name, path string) (string, error) {
	for _, p := range d.outputs {
		if p.output.Name() != name {
			continue
		}
		w, h := p.final.Size()
		var pixels []byte
		gpu.With(d.renderer, gpu.Target{}, func() {
			pixels = p.final.ReadPixels()
		})
		written, err := d.shots.CaptureFromPixels(path, pixels, int(w), int(h))
		if err != nil {
			return "", err
		}
		d.log.Info("screenshot saved", zap.String("output", name), zap.String("path", written))
		return written, nil
	}
	return "", fmt.Errorf("%w: %q", effect.ErrOutputNotFound, name)
}

// Close releases every effect, GPU resource and the window.
func (d *Daemon) Close() {
	d.log.Info("closing daemon")

	if d.manager != nil {
		d.manager.Close()
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if d.renderer != nil {
		releaseTextures(d.renderer, d.textures)
		d.destroyBuffers(d.outputs...)
		d.renderer.Close()
	}
	if d.window != nil {
		d.window.Close()
	}
}
