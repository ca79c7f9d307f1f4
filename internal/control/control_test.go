package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/wf-filters/internal/compositor"
	"github.com/Faultbox/wf-filters/internal/effect"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/internal/gpu/gputest"
	"github.com/Faultbox/wf-filters/internal/ipc"
	"github.com/Faultbox/wf-filters/pkg/math"
)

const body = `void main() { out_color = get_pixel(uvpos) * progress; }`

type inline struct{}

func (inline) Invoke(_ context.Context, fn func()) error {
	fn()
	return nil
}

type env struct {
	scene  *compositor.Scene
	dev    *gputest.Device
	view   *compositor.View
	mgr    *effect.Manager
	srv    *ipc.Server
	client *ipc.Client
	bind   *Binding
	shader string
	shots  []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dev := gputest.New()
	scene := compositor.NewScene(dev)
	_, err := scene.AddOutput(compositor.OutputSpec{
		Name:     "SDL-1",
		Geometry: math.Box{Width: 640, Height: 480},
		Final:    gpu.Target{FBO: 1, Texture: 1, Width: 640, Height: 480},
		Aux:      gpu.Target{FBO: 2, Texture: 2, Width: 640, Height: 480},
	})
	require.NoError(t, err)
	view, err := scene.AddView(compositor.ViewSpec{
		Title:    "editor",
		Geometry: math.Box{X: 10, Y: 10, Width: 200, Height: 100},
	})
	require.NoError(t, err)
	view.Map()

	dir := t.TempDir()
	shader := filepath.Join(dir, "dim.frag")
	require.NoError(t, os.WriteFile(shader, []byte(body), 0o644))

	e := &env{scene: scene, dev: dev, view: view, shader: shader}
	e.mgr = effect.NewManager(scene, effect.DefaultOptions())
	e.srv = ipc.NewServer(filepath.Join(dir, "c.sock"), inline{}, ipc.Options{})
	e.bind = Register(e.srv, e.mgr, func(output, path string) (string, error) {
		if output != "SDL-1" {
			return "", errors.New("no such output")
		}
		if path == "" {
			path = "/tmp/shot.png"
		}
		e.shots = append(e.shots, path)
		return path, nil
	})
	require.NoError(t, e.srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.srv.Stop(ctx)
	})

	e.client, err = ipc.Dial(e.srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.client.Close() })
	return e
}

func (e *env) call(t *testing.T, method string, data map[string]any) (ipc.Response, error) {
	t.Helper()
	return e.client.Call(method, data)
}

func TestViewShaderMethods(t *testing.T) {
	e := newEnv(t)
	id := e.view.ID()

	resp, err := e.call(t, MethodViewHasShader, map[string]any{FieldViewID: id})
	require.NoError(t, err)
	has, _ := resp.Bool(FieldHasShader)
	assert.False(t, has)

	resp, err = e.call(t, MethodSetViewShader, map[string]any{FieldViewID: id, FieldShaderPath: e.shader})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["result"])

	resp, err = e.call(t, MethodViewHasShader, map[string]any{FieldViewID: id})
	require.NoError(t, err)
	has, _ = resp.Bool(FieldHasShader)
	assert.True(t, has)

	_, err = e.call(t, MethodUnsetViewShader, map[string]any{FieldViewID: id})
	require.NoError(t, err)
	_, err = e.call(t, MethodUnsetViewShader, map[string]any{FieldViewID: 999})
	assert.NoError(t, err, "unknown view is a no-op")
}

func TestViewShaderErrors(t *testing.T) {
	e := newEnv(t)

	resp, err := e.call(t, MethodSetViewShader, map[string]any{FieldViewID: 999, FieldShaderPath: e.shader})
	require.Error(t, err)
	assert.Contains(t, resp.Err(), "failed to find view with given id")

	resp, err = e.call(t, MethodSetViewShader, map[string]any{FieldViewID: "one", FieldShaderPath: e.shader})
	require.Error(t, err)
	assert.Equal(t, `Field "view-id" is not of type number_unsigned`, resp.Err())

	resp, err = e.call(t, MethodSetViewShader, map[string]any{FieldViewID: e.view.ID()})
	require.Error(t, err)
	assert.Equal(t, `Missing "shader-path"`, resp.Err())

	_, err = e.call(t, MethodViewHasShader, map[string]any{FieldViewID: 999})
	assert.Error(t, err)

	broken := filepath.Join(t.TempDir(), "broken.frag")
	require.NoError(t, os.WriteFile(broken, []byte("#error nope\n"), 0o644))
	resp, err = e.call(t, MethodSetViewShader, map[string]any{FieldViewID: e.view.ID(), FieldShaderPath: broken})
	require.Error(t, err)
	assert.Contains(t, resp.Err(), "failed to compile shader")
	assert.Empty(t, e.dev.Live)
}

func TestFullscreenShaderMethods(t *testing.T) {
	e := newEnv(t)

	_, err := e.call(t, MethodSetFSShader, map[string]any{FieldOutputName: "HDMI-A-1", FieldShaderPath: e.shader})
	require.Error(t, err)
	pre, post := e.scene.FindOutput("SDL-1").HookCount()
	assert.Zero(t, pre+post)

	_, err = e.call(t, MethodSetFSShader, map[string]any{FieldOutputName: "SDL-1", FieldShaderPath: e.shader})
	require.NoError(t, err)

	resp, err := e.call(t, MethodFSHasShader, map[string]any{FieldOutputName: "SDL-1"})
	require.NoError(t, err)
	has, _ := resp.Bool(FieldHasShader)
	assert.True(t, has)

	_, err = e.call(t, MethodUnsetFSShader, map[string]any{FieldOutputName: "SDL-1"})
	require.NoError(t, err)
	_, err = e.call(t, MethodUnsetFSShader, map[string]any{FieldOutputName: "HDMI-A-1"})
	assert.Error(t, err)
	_, err = e.call(t, MethodFSHasShader, map[string]any{FieldOutputName: "HDMI-A-1"})
	assert.Error(t, err)
}

func TestListMethods(t *testing.T) {
	e := newEnv(t)
	_, err := e.call(t, MethodSetViewShader, map[string]any{FieldViewID: e.view.ID(), FieldShaderPath: e.shader})
	require.NoError(t, err)

	resp, err := e.call(t, MethodListViews, nil)
	require.NoError(t, err)
	views, ok := resp[FieldViews].([]any)
	require.True(t, ok)
	require.Len(t, views, 1)
	v := views[0].(map[string]any)
	assert.EqualValues(t, e.view.ID(), v["id"])
	assert.Equal(t, "editor", v["title"])
	assert.Equal(t, "SDL-1", v["output"])
	assert.Equal(t, true, v["has-shader"])
	assert.Equal(t, e.shader, v["shader-path"])

	resp, err = e.call(t, MethodListOutputs, nil)
	require.NoError(t, err)
	outputs, ok := resp[FieldOutputs].([]any)
	require.True(t, ok)
	require.Len(t, outputs, 1)
	o := outputs[0].(map[string]any)
	assert.Equal(t, "SDL-1", o["name"])
	assert.EqualValues(t, 640, o["width"])
	assert.Equal(t, false, o["has-shader"])
}

func TestScreenshotMethod(t *testing.T) {
	e := newEnv(t)

	resp, err := e.call(t, MethodScreenshot, map[string]any{FieldOutputName: "SDL-1"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shot.png", resp[FieldPath])

	_, err = e.call(t, MethodScreenshot, map[string]any{FieldOutputName: "SDL-1", FieldPath: "/tmp/a.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/shot.png", "/tmp/a.png"}, e.shots)

	resp, err = e.call(t, MethodScreenshot, map[string]any{FieldOutputName: "DP-2"})
	require.Error(t, err)
	assert.Contains(t, resp.Err(), "no such output")
}

func TestCloseUnregistersMethods(t *testing.T) {
	e := newEnv(t)
	assert.Len(t, e.srv.Methods(), 9)

	e.bind.Close()
	assert.Empty(t, e.srv.Methods())

	resp, err := e.call(t, MethodFSHasShader, map[string]any{FieldOutputName: "SDL-1"})
	require.Error(t, err)
	assert.Equal(t, "No such method found!", resp.Err())
}

func TestRegisterWithoutCapturer(t *testing.T) {
	srv := ipc.NewServer("unused.sock", nil, ipc.Options{})
	mgr := effect.NewManager(compositor.NewScene(gputest.New()), effect.DefaultOptions())
	b := Register(srv, mgr, nil)
	assert.NotContains(t, b.Methods(), MethodScreenshot)
	assert.Len(t, b.Methods(), 8)
}
