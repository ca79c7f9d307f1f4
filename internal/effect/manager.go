package effect

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/fade"
	"github.com/Faultbox/wf-filters/internal/logger"
)

// PathWatcher is notified about the shader files active effects use.
type PathWatcher interface {
	Add(path string) error
	Remove(path string) error
}

// Options configures a Manager.
type Options struct {
	FadeDuration time.Duration
	MinMargin    float32
	// Clock defaults to time.Now. Frame times passed to the scene should
	// come from the same clock.
	Clock func() time.Time
	// Watcher is optional.
	Watcher PathWatcher
}

// DefaultOptions returns the stock fade duration and margin pad.
func DefaultOptions() Options {
	return Options{
		FadeDuration: fade.DefaultDuration,
		MinMargin:    DefaultMinMargin,
	}
}

// ViewStatus describes one view for listing.
type ViewStatus struct {
	ID        uint64
	Title     string
	Mapped    bool
	Output    string
	HasShader bool
	Shader    string
}

// OutputStatus describes one output for listing.
type OutputStatus struct {
	Name      string
	Width     int32
	Height    int32
	HasShader bool
	Shader    string
}

// Manager maps views and outputs to at most one active effect each. Every
// method must run on the render thread.
type Manager struct {
	scene *compositor.Scene
	opts  Options
	log   *zap.Logger

	views   map[uint64]*ViewEffect
	outputs map[string]*OutputEffect
	signals []*compositor.Hook
	closed  bool
}

// NewManager creates a manager bound to scene. It follows view and output
// removal so effects are torn down with their target.
func NewManager(scene *compositor.Scene, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.FadeDuration < 0 {
		opts.FadeDuration = 0
	}
	m := &Manager{
		scene:   scene,
		opts:    opts,
		log:     logger.Named("effect"),
		views:   make(map[uint64]*ViewEffect),
		outputs: make(map[string]*OutputEffect),
	}
	m.signals = append(m.signals,
		scene.OnViewUnmapped(m.viewGone),
		scene.OnViewDestroyed(m.viewGone),
		scene.OnOutputRemoved(m.outputGone),
	)
	return m
}

// SetViewShader attaches the shader at path to a mapped view, replacing
// any effect the view already has.
func (m *Manager) SetViewShader(id uint64, path string) error {
	if m.closed {
		return ErrClosed
	}
	view := m.scene.FindView(id)
	if view == nil || !view.Mapped() {
		m.log.Error("failed to find view with given id, maybe it isn't mapped?", zap.Uint64("view", id))
		return fmt.Errorf("%w: %d (maybe it isn't mapped?)", ErrViewNotFound, id)
	}
	body, err := LoadShaderSource(path)
	if err != nil {
		m.log.Error("failed to load shader", zap.Uint64("view", id), zap.Error(err))
		return err
	}

	if old := m.views[id]; old != nil {
		m.log.Debug("replacing view effect", zap.Uint64("view", id), zap.Bool("fading_out", old.FadingOut()))
		m.dropView(old)
	}

	e := newViewEffect(m.scene, view, path, m.opts, m.log)
	e.onFaded = m.dropView
	if err := e.attach(body, m.opts.Clock()); err != nil {
		m.log.Error("failed to compile shader", zap.Uint64("view", id), zap.String("path", path), zap.Error(err))
		return err
	}
	m.views[id] = e
	m.watch(path)

	m.log.Info("applied view shader", zap.Uint64("view", id), zap.String("path", path))
	return nil
}

// UnsetViewShader starts fading out the view's effect. Unknown views and
// views without an effect are a no-op.
func (m *Manager) UnsetViewShader(id uint64) error {
	if e := m.views[id]; e != nil {
		e.Detach(m.opts.Clock())
		m.log.Info("removing view shader", zap.Uint64("view", id))
	}
	return nil
}

// ViewHasShader reports whether the view has an effect registered,
// including one that is fading out.
func (m *Manager) ViewHasShader(id uint64) (bool, error) {
	if m.scene.FindView(id) == nil {
		return false, fmt.Errorf("%w: %d", ErrViewNotFound, id)
	}
	_, ok := m.views[id]
	return ok, nil
}

// ViewEffect returns the effect attached to the view, nil if none.
func (m *Manager) ViewEffect(id uint64) *ViewEffect {
	return m.views[id]
}

// SetOutputShader compiles the shader at path for the named output. The
// output's effect is created on first use and recompiled in place after.
func (m *Manager) SetOutputShader(name, path string) error {
	if m.closed {
		return ErrClosed
	}
	output := m.scene.FindOutput(name)
	if output == nil {
		m.log.Error("failed to find output", zap.String("output", name))
		return fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	body, err := LoadShaderSource(path)
	if err != nil {
		m.log.Error("failed to load fullscreen shader", zap.String("output", name), zap.Error(err))
		return err
	}

	e := m.outputs[name]
	if e == nil {
		e = newOutputEffect(m.scene, output, m.opts, m.log)
		e.onFaded = m.dropOutput
		m.outputs[name] = e
	}
	prev := e.path

	if err := e.SetShader(body, path, m.opts.Clock()); err != nil {
		m.log.Error("failed to compile fullscreen shader", zap.String("output", name), zap.String("path", path), zap.Error(err))
		m.dropOutput(e)
		return err
	}
	if prev != path {
		m.unwatch(prev)
		m.watch(path)
	}

	m.log.Info("applied fullscreen shader", zap.String("output", name), zap.String("path", path))
	return nil
}

// UnsetOutputShader starts fading out the output's effect.
func (m *Manager) UnsetOutputShader(name string) error {
	if m.scene.FindOutput(name) == nil {
		return fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	if e := m.outputs[name]; e != nil {
		e.Unset(m.opts.Clock())
		m.log.Info("removing fullscreen shader", zap.String("output", name))
	}
	return nil
}

// OutputHasShader reports whether the output's effect currently
// contributes to rendering.
func (m *Manager) OutputHasShader(name string) (bool, error) {
	if m.scene.FindOutput(name) == nil {
		return false, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	e := m.outputs[name]
	return e != nil && e.Active(), nil
}

// OutputEffect returns the output's effect, nil if none.
func (m *Manager) OutputEffect(name string) *OutputEffect {
	return m.outputs[name]
}

// Reload re-applies every effect built from path.
func (m *Manager) Reload(path string) {
	var ids []uint64
	for id, e := range m.views {
		if e.path == path && !e.FadingOut() {
			ids = append(ids, id)
		}
	}
	var names []string
	for name, e := range m.outputs {
		if e.path == path && e.Active() && e.fade.Target() == 1 {
			names = append(names, name)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sort.Strings(names)

	m.log.Info("shader changed", zap.String("path", path), zap.Int("views", len(ids)), zap.Int("outputs", len(names)))
	for _, id := range ids {
		_ = m.SetViewShader(id, path)
	}
	for _, name := range names {
		_ = m.SetOutputShader(name, path)
	}
}

// Views lists every view in stacking order.
func (m *Manager) Views() []ViewStatus {
	var out []ViewStatus
	for _, v := range m.scene.Views() {
		st := ViewStatus{
			ID:     v.ID(),
			Title:  v.Title(),
			Mapped: v.Mapped(),
		}
		if o := v.Output(); o != nil {
			st.Output = o.Name()
		}
		if e := m.views[v.ID()]; e != nil {
			st.HasShader = true
			st.Shader = e.path
		}
		out = append(out, st)
	}
	return out
}

// Outputs lists every output.
func (m *Manager) Outputs() []OutputStatus {
	var out []OutputStatus
	for _, o := range m.scene.Outputs() {
		st := OutputStatus{
			Name:   o.Name(),
			Width:  o.Geometry().Width,
			Height: o.Geometry().Height,
		}
		if e := m.outputs[o.Name()]; e != nil && e.Active() {
			st.HasShader = true
			st.Shader = e.path
		}
		out = append(out, st)
	}
	return out
}

// Close tears every effect down immediately, without fading, and stops
// following the scene.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	for _, h := range m.signals {
		h.Remove()
	}
	m.signals = nil

	effects := m.effects()
	m.views = make(map[uint64]*ViewEffect)
	m.outputs = make(map[string]*OutputEffect)
	for _, c := range effects {
		m.release(c)
	}
	m.log.Info("effect manager closed", zap.Int("released", len(effects)))
}

// effects returns every registered effect, views first.
func (m *Manager) effects() []Contributor {
	out := make([]Contributor, 0, len(m.views)+len(m.outputs))
	for _, e := range m.views {
		out = append(out, e)
	}
	for _, e := range m.outputs {
		out = append(out, e)
	}
	return out
}

// release tears c down immediately. It must already be out of the registry.
func (m *Manager) release(c Contributor) {
	c.Destroy()
	m.unwatch(c.Path())
}

func (m *Manager) dropView(e *ViewEffect) {
	if id := e.view.ID(); m.views[id] == e {
		delete(m.views, id)
	}
	m.release(e)
}

func (m *Manager) dropOutput(e *OutputEffect) {
	if name := e.output.Name(); m.outputs[name] == e {
		delete(m.outputs, name)
	}
	m.release(e)
}

func (m *Manager) viewGone(v *compositor.View) {
	if e := m.views[v.ID()]; e != nil {
		m.log.Info("view went away, releasing effect", zap.Uint64("view", v.ID()))
		m.dropView(e)
	}
}

func (m *Manager) outputGone(o *compositor.Output) {
	if e := m.outputs[o.Name()]; e != nil {
		m.log.Info("output removed, releasing effect", zap.String("output", o.Name()))
		m.dropOutput(e)
	}
}

func (m *Manager) watch(path string) {
	if m.opts.Watcher == nil || path == "" {
		return
	}
	if err := m.opts.Watcher.Add(path); err != nil {
		m.log.Warn("failed to watch shader", zap.String("path", path), zap.Error(err))
	}
}

func (m *Manager) unwatch(path string) {
	if m.opts.Watcher == nil || path == "" {
		return
	}
	if err := m.opts.Watcher.Remove(path); err != nil {
		m.log.Debug("failed to unwatch shader", zap.String("path", path), zap.Error(err))
	}
}
