package effect

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/internal/gpu/gputest"
	"github.com/Faultbox/wf-filters/pkg/math"
)

const (
	invertBody = `#version 100
@builtin_ext@
@builtin@
precision mediump float;
varying mediump vec2 uvpos;
uniform sampler2D in_tex;
uniform float progress;
void main() {
    vec4 c = get_pixel(uvpos);
    gl_FragColor = mix(c, vec4(1.0 - c.rgb, c.a), progress);
}
`
	brokenBody = "#error broken\nvoid main() {}\n"
)

var (
	finalTarget = gpu.Target{FBO: 1, Texture: 11, Width: 1280, Height: 720}
	auxTarget   = gpu.Target{FBO: 2, Texture: 12, Width: 1280, Height: 720}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

type recordingWatcher struct {
	added   []string
	removed []string
}

func (w *recordingWatcher) Add(path string) error {
	w.added = append(w.added, path)
	return nil
}

func (w *recordingWatcher) Remove(path string) error {
	w.removed = append(w.removed, path)
	return nil
}

type fixture struct {
	scene   *compositor.Scene
	dev     *gputest.Device
	output  *compositor.Output
	view    *compositor.View
	mgr     *Manager
	clock   *clock
	watcher *recordingWatcher
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := gputest.New()
	scene := compositor.NewScene(dev)
	output, err := scene.AddOutput(compositor.OutputSpec{
		Name:     "SDL-1",
		Geometry: math.Box{Width: 1280, Height: 720},
		Final:    finalTarget,
		Aux:      auxTarget,
	})
	require.NoError(t, err)
	view, err := scene.AddView(compositor.ViewSpec{
		Title:    "term",
		Geometry: math.Box{X: 100, Y: 100, Width: 400, Height: 300},
		Texture:  gpu.Texture{ID: 100, Width: 400, Height: 300},
	})
	require.NoError(t, err)
	view.Map()

	c := &clock{now: time.Unix(1000, 0)}
	w := &recordingWatcher{}
	mgr := NewManager(scene, Options{
		FadeDuration: 700 * time.Millisecond,
		MinMargin:    DefaultMinMargin,
		Clock:        c.Now,
		Watcher:      w,
	})
	f := &fixture{
		scene:   scene,
		dev:     dev,
		output:  output,
		view:    view,
		mgr:     mgr,
		clock:   c,
		watcher: w,
		dir:     t.TempDir(),
	}
	scene.Frame(c.now)
	return f
}

func (f *fixture) shader(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (f *fixture) frame(d time.Duration) {
	f.scene.Frame(f.clock.advance(d))
}

func (f *fixture) hasViewShader(t *testing.T) bool {
	t.Helper()
	ok, err := f.mgr.ViewHasShader(f.view.ID())
	require.NoError(t, err)
	return ok
}

func (f *fixture) hasOutputShader(t *testing.T) bool {
	t.Helper()
	ok, err := f.mgr.OutputHasShader("SDL-1")
	require.NoError(t, err)
	return ok
}

func TestSetViewShaderAttachesImmediately(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)

	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	assert.True(t, f.hasViewShader(t))
	require.NotNil(t, f.view.Transformer(NodeName))
	assert.Len(t, f.dev.Live, 1)
	assert.Equal(t, []string{path}, f.watcher.added)

	e := f.mgr.ViewEffect(f.view.ID())
	require.NotNil(t, e)
	assert.Equal(t, path, e.Path())

	f.dev.Reset()
	f.frame(350 * time.Millisecond)
	draws := f.dev.DrawsWith(e.Program().ID())
	require.NotEmpty(t, draws)
	q := draws[0].Quad
	assert.InDelta(t, 0.5, q.Progress, 0.01)
	require.NotNil(t, q.Margins)
	assert.Equal(t, math.Vec4{2, 2, 2, 2}, *q.Margins)
	assert.Equal(t, gpu.BlendPremultiplied, q.Blend)
	assert.Equal(t, finalTarget, draws[0].Target)
	assert.Empty(t, f.dev.Violations)
}

func TestUnsetViewShaderFadesOutThenReleases(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	f.frame(800 * time.Millisecond)

	require.NoError(t, f.mgr.UnsetViewShader(f.view.ID()))
	assert.True(t, f.hasViewShader(t), "effect stays registered while fading out")
	assert.True(t, f.mgr.ViewEffect(f.view.ID()).FadingOut())

	f.frame(350 * time.Millisecond)
	assert.True(t, f.hasViewShader(t))
	assert.NotNil(t, f.view.Transformer(NodeName))

	f.frame(400 * time.Millisecond)
	assert.False(t, f.hasViewShader(t))
	assert.Nil(t, f.view.Transformer(NodeName))
	assert.Empty(t, f.dev.Live, "program released after fade-out")
	assert.Equal(t, []string{path}, f.watcher.removed)

	f.dev.Reset()
	f.view.Damage()
	f.frame(16 * time.Millisecond)
	for _, d := range f.dev.Draws {
		assert.Zero(t, d.Quad.Program, "view draws plainly after detach")
	}
	assert.Empty(t, f.dev.Violations)
}

func TestUnsetViewShaderWithoutEffectIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.mgr.UnsetViewShader(f.view.ID()))
	assert.NoError(t, f.mgr.UnsetViewShader(9999))
	assert.False(t, f.hasViewShader(t))
}

func TestSetViewShaderTwiceKeepsOneNode(t *testing.T) {
	f := newFixture(t)
	first := f.shader(t, "a.frag", invertBody)
	second := f.shader(t, "b.frag", invertBody)

	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), first))
	old := f.mgr.ViewEffect(f.view.ID())
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), second))

	assert.Equal(t, 1, f.view.TransformerCount())
	assert.Len(t, f.dev.Live, 1)
	assert.NotSame(t, old, f.mgr.ViewEffect(f.view.ID()))
	assert.Equal(t, second, f.mgr.ViewEffect(f.view.ID()).Path())

	f.frame(16 * time.Millisecond)
	assert.Empty(t, f.dev.Violations)
}

func TestSetViewShaderDuringFadeOutRestarts(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	f.frame(800 * time.Millisecond)
	require.NoError(t, f.mgr.UnsetViewShader(f.view.ID()))
	f.frame(200 * time.Millisecond)

	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	e := f.mgr.ViewEffect(f.view.ID())
	assert.False(t, e.FadingOut())
	assert.Equal(t, 1, f.view.TransformerCount())

	f.frame(time.Second)
	assert.True(t, f.hasViewShader(t))
	assert.InDelta(t, 1.0, e.Progress(), 1e-6)
}

func TestSetViewShaderCompileFailure(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "broken.frag", brokenBody)

	err := f.mgr.SetViewShader(f.view.ID(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompile)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "view", ce.Kind)
	assert.NotEmpty(t, ce.Log)

	assert.False(t, f.hasViewShader(t))
	assert.Zero(t, f.view.TransformerCount())
	assert.Empty(t, f.dev.Live)
	assert.Empty(t, f.watcher.added)

	f.view.Damage()
	f.frame(16 * time.Millisecond)
	for _, d := range f.dev.Draws {
		assert.Zero(t, d.Quad.Program)
	}
	assert.Empty(t, f.dev.Violations)
}

func TestSetViewShaderUnknownView(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)

	assert.ErrorIs(t, f.mgr.SetViewShader(4242, path), ErrViewNotFound)

	f.view.Unmap()
	assert.ErrorIs(t, f.mgr.SetViewShader(f.view.ID(), path), ErrViewNotFound)
	assert.Empty(t, f.dev.Live)

	_, err := f.mgr.ViewHasShader(4242)
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestSetViewShaderUnreadableKeepsExistingEffect(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	e := f.mgr.ViewEffect(f.view.ID())

	err := f.mgr.SetViewShader(f.view.ID(), filepath.Join(f.dir, "missing.frag"))
	assert.ErrorIs(t, err, ErrShaderSource)
	assert.Same(t, e, f.mgr.ViewEffect(f.view.ID()))
	assert.True(t, f.hasViewShader(t))
}

func TestDestroyViewMidFadeReleasesImmediately(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	f.frame(800 * time.Millisecond)
	require.NoError(t, f.mgr.UnsetViewShader(f.view.ID()))
	f.frame(100 * time.Millisecond)

	id := f.view.ID()
	f.view.Destroy()
	assert.Empty(t, f.dev.Live)
	assert.Nil(t, f.mgr.ViewEffect(id))

	f.frame(time.Second)
	assert.Empty(t, f.dev.Violations)
}

func TestUnmapViewDropsEffect(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))

	f.view.Unmap()
	assert.False(t, f.hasViewShader(t))
	assert.Empty(t, f.dev.Live)
	f.frame(16 * time.Millisecond)
	assert.Empty(t, f.dev.Violations)
}

func TestViewFadeIsMonotonic(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	e := f.mgr.ViewEffect(f.view.ID())

	last := e.Progress()
	for i := 0; i < 50; i++ {
		f.frame(16 * time.Millisecond)
		p := e.Progress()
		assert.GreaterOrEqual(t, p, last)
		assert.LessOrEqual(t, p, float32(1))
		last = p
	}
	assert.Equal(t, float32(1), last)

	require.NoError(t, f.mgr.UnsetViewShader(f.view.ID()))
	for i := 0; i < 30; i++ {
		f.frame(16 * time.Millisecond)
		p := e.Progress()
		assert.LessOrEqual(t, p, last)
		assert.GreaterOrEqual(t, p, float32(0))
		last = p
	}
}

func TestMarginsPadZeroComponents(t *testing.T) {
	f := newFixture(t)
	f.view.SetDecorationMargins(math.Vec4{0, 30, 0, 0})
	e := newViewEffect(f.scene, f.view, "", DefaultOptions(), f.mgr.log)

	assert.Equal(t, math.Vec4{2, 30, 2, 2}, e.Margins(1))
	assert.Equal(t, math.Vec4{4, 60, 4, 4}, e.Margins(2))
}

func TestViewEffectScheduleClipsToBounds(t *testing.T) {
	f := newFixture(t)
	e := newViewEffect(f.scene, f.view, "", DefaultOptions(), f.mgr.log)

	damage := math.RegionOf(math.Box{X: 0, Y: 0, Width: 200, Height: 200})
	got := e.Schedule(f.output.RenderTarget(), damage)
	assert.Equal(t, math.Region{{X: 100, Y: 100, Width: 100, Height: 100}}, got)
	assert.Equal(t, damage, e.ChildDamaged(damage))
}

func TestSetOutputShaderUnknownOutput(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)

	assert.ErrorIs(t, f.mgr.SetOutputShader("HDMI-A-9", path), ErrOutputNotFound)
	pre, post := f.output.HookCount()
	assert.Zero(t, pre)
	assert.Zero(t, post)
	assert.Empty(t, f.dev.Live)

	_, err := f.mgr.OutputHasShader("HDMI-A-9")
	assert.ErrorIs(t, err, ErrOutputNotFound)
	assert.ErrorIs(t, f.mgr.UnsetOutputShader("HDMI-A-9"), ErrOutputNotFound)
}

func TestSetOutputShaderRedirectsPainting(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)

	require.NoError(t, f.mgr.SetOutputShader("SDL-1", path))
	assert.True(t, f.hasOutputShader(t))
	pre, post := f.output.HookCount()
	assert.Equal(t, 1, pre)
	assert.Equal(t, 1, post)

	e := f.mgr.OutputEffect("SDL-1")
	f.dev.Reset()
	f.frame(350 * time.Millisecond)

	effectDraws := f.dev.DrawsWith(e.Program().ID())
	require.Len(t, effectDraws, 1)
	assert.Equal(t, finalTarget, effectDraws[0].Target)
	assert.Equal(t, auxTarget.Texture, effectDraws[0].Quad.Texture)
	assert.Equal(t, finalTarget.Bounds(), effectDraws[0].Quad.Viewport)
	assert.Nil(t, effectDraws[0].Quad.Margins)
	assert.InDelta(t, 0.5, effectDraws[0].Quad.Progress, 0.01)

	for _, d := range f.dev.DrawsWith(0) {
		assert.Equal(t, auxTarget, d.Target, "views go to the aux buffer")
	}
	assert.Empty(t, f.dev.Violations)
}

func TestSetOutputShaderReplaceKeepsInstance(t *testing.T) {
	f := newFixture(t)
	first := f.shader(t, "a.frag", invertBody)
	second := f.shader(t, "b.frag", invertBody)

	require.NoError(t, f.mgr.SetOutputShader("SDL-1", first))
	e := f.mgr.OutputEffect("SDL-1")
	f.frame(350 * time.Millisecond)
	before := e.Progress()

	require.NoError(t, f.mgr.SetOutputShader("SDL-1", second))
	assert.Same(t, e, f.mgr.OutputEffect("SDL-1"))
	assert.GreaterOrEqual(t, e.Progress(), before)
	assert.Len(t, f.dev.Live, 1)
	pre, post := f.output.HookCount()
	assert.Equal(t, 1, pre)
	assert.Equal(t, 1, post)
	assert.Equal(t, []string{first}, f.watcher.removed)
	assert.Equal(t, []string{first, second}, f.watcher.added)
}

func TestSetOutputShaderFailureUnhooks(t *testing.T) {
	f := newFixture(t)
	good := f.shader(t, "invert.frag", invertBody)
	bad := f.shader(t, "broken.frag", brokenBody)

	require.NoError(t, f.mgr.SetOutputShader("SDL-1", good))
	err := f.mgr.SetOutputShader("SDL-1", bad)
	assert.ErrorIs(t, err, ErrCompile)

	assert.False(t, f.hasOutputShader(t))
	pre, post := f.output.HookCount()
	assert.Zero(t, pre)
	assert.Zero(t, post)
	assert.Empty(t, f.dev.Live)

	f.dev.Reset()
	f.frame(16 * time.Millisecond)
	for _, d := range f.dev.Draws {
		assert.Equal(t, finalTarget, d.Target)
		assert.Zero(t, d.Quad.Program)
	}
	assert.Empty(t, f.dev.Violations)
}

func TestSetOutputShaderFailureWithoutEffect(t *testing.T) {
	f := newFixture(t)
	bad := f.shader(t, "broken.frag", brokenBody)

	assert.ErrorIs(t, f.mgr.SetOutputShader("SDL-1", bad), ErrCompile)
	assert.False(t, f.hasOutputShader(t))
	assert.Nil(t, f.mgr.OutputEffect("SDL-1"))
}

func TestUnsetOutputShaderFadesOut(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetOutputShader("SDL-1", path))
	f.frame(800 * time.Millisecond)

	require.NoError(t, f.mgr.UnsetOutputShader("SDL-1"))
	f.frame(350 * time.Millisecond)
	assert.True(t, f.hasOutputShader(t), "still active while fading out")

	f.frame(400 * time.Millisecond)
	assert.False(t, f.hasOutputShader(t))
	assert.Nil(t, f.mgr.OutputEffect("SDL-1"))
	pre, post := f.output.HookCount()
	assert.Zero(t, pre)
	assert.Zero(t, post)
	assert.Empty(t, f.dev.Live)
	assert.Empty(t, f.dev.Violations)
}

func TestUnsetOutputShaderWithoutEffect(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.mgr.UnsetOutputShader("SDL-1"))
	assert.False(t, f.hasOutputShader(t))
}

func TestRemoveOutputDropsEffect(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetOutputShader("SDL-1", path))

	require.True(t, f.scene.RemoveOutput("SDL-1"))
	assert.Nil(t, f.mgr.OutputEffect("SDL-1"))
	assert.Empty(t, f.dev.Live)
	f.frame(16 * time.Millisecond)
	assert.Empty(t, f.dev.Violations)
}

func TestReloadRecompilesEffectsUsingPath(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	other := f.shader(t, "other.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	require.NoError(t, f.mgr.SetOutputShader("SDL-1", other))
	viewBefore := f.mgr.ViewEffect(f.view.ID())
	compiled := f.dev.Compiled

	f.mgr.Reload(path)
	assert.NotSame(t, viewBefore, f.mgr.ViewEffect(f.view.ID()))
	assert.Equal(t, compiled+1, f.dev.Compiled, "only effects using the path rebuild")

	f.mgr.Reload(other)
	assert.Equal(t, compiled+2, f.dev.Compiled)
	assert.Len(t, f.dev.Live, 2)
}

func TestListing(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))

	views := f.mgr.Views()
	require.Len(t, views, 1)
	assert.Equal(t, ViewStatus{
		ID:        f.view.ID(),
		Title:     "term",
		Mapped:    true,
		Output:    "SDL-1",
		HasShader: true,
		Shader:    path,
	}, views[0])

	outputs := f.mgr.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, OutputStatus{Name: "SDL-1", Width: 1280, Height: 720}, outputs[0])
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	require.NoError(t, f.mgr.SetOutputShader("SDL-1", path))

	require.Len(t, f.mgr.effects(), 2)

	f.mgr.Close()
	f.mgr.Close()
	assert.Empty(t, f.mgr.effects())
	assert.Equal(t, []string{path, path}, f.watcher.removed)
	assert.Empty(t, f.dev.Live)
	assert.Zero(t, f.view.TransformerCount())
	pre, post := f.output.HookCount()
	assert.Zero(t, pre)
	assert.Zero(t, post)

	assert.ErrorIs(t, f.mgr.SetViewShader(f.view.ID(), path), ErrClosed)
	assert.ErrorIs(t, f.mgr.SetOutputShader("SDL-1", path), ErrClosed)

	f.frame(16 * time.Millisecond)
	assert.Empty(t, f.dev.Violations)
}

func TestContributorsStepTheirFades(t *testing.T) {
	f := newFixture(t)
	path := f.shader(t, "invert.frag", invertBody)
	require.NoError(t, f.mgr.SetViewShader(f.view.ID(), path))
	require.NoError(t, f.mgr.SetOutputShader("SDL-1", path))

	start := f.clock.now
	for _, c := range f.mgr.effects() {
		assert.Equal(t, path, c.Path())
		assert.True(t, c.Step(start.Add(350*time.Millisecond)))
		assert.InDelta(t, 0.5, c.Progress(), 1e-3)
		assert.False(t, c.Step(start.Add(time.Second)))
		assert.Equal(t, float32(1), c.Progress())
	}
}

func TestLoadShaderSource(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadShaderSource("")
	assert.ErrorIs(t, err, ErrShaderSource)

	_, err = LoadShaderSource(filepath.Join(dir, "nope.frag"))
	assert.ErrorIs(t, err, ErrShaderSource)

	bin := filepath.Join(dir, "bin.frag")
	require.NoError(t, os.WriteFile(bin, []byte{0xff, 0xfe, 0x00}, 0o644))
	_, err = LoadShaderSource(bin)
	assert.ErrorIs(t, err, ErrShaderSource)

	ok := filepath.Join(dir, "ok.frag")
	require.NoError(t, os.WriteFile(ok, []byte(invertBody), 0o644))
	body, err := LoadShaderSource(ok)
	require.NoError(t, err)
	assert.Equal(t, invertBody, body)
}
