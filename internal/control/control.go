// Package control binds the effect manager to control-plane methods.
package control

import (
	"fmt"

	"github.com/Faultbox/wf-filters/internal/effect"
	"github.com/Faultbox/wf-filters/internal/ipc"
)

// Method names.
const (
	MethodSetViewShader   = "wf/filters/set-view-shader"
	MethodUnsetViewShader = "wf/filters/unset-view-shader"
	MethodViewHasShader   = "wf/filters/view-has-shader"
	MethodSetFSShader     = "wf/filters/set-fs-shader"
	MethodUnsetFSShader   = "wf/filters/unset-fs-shader"
	MethodFSHasShader     = "wf/filters/fs-has-shader"
	MethodListViews       = "wf/filters/list-views"
	MethodListOutputs     = "wf/filters/list-outputs"
	MethodScreenshot      = "wf/filters/screenshot"
)

// Request and reply field names.
const (
	FieldViewID     = "view-id"
	FieldOutputName = "output-name"
	FieldShaderPath = "shader-path"
	FieldHasShader  = "has-shader"
	FieldPath       = "path"
	FieldViews      = "views"
	FieldOutputs    = "outputs"
)

// Registrar is the method table of an ipc.Server.
type Registrar interface {
	Register(method string, h ipc.Handler)
	Unregister(method string)
}

// Capturer writes the named output's current frame to a PNG. An empty path
// lets it pick one; the written path is returned.
type Capturer func(output, path string) (string, error)

// Binding is the set of methods registered for one manager.
type Binding struct {
	srv     Registrar
	mgr     *effect.Manager
	capture Capturer
	methods []string
}

// Register installs every method on srv. capture may be nil, in which case
// the screenshot method is not offered.
func Register(srv Registrar, mgr *effect.Manager, capture Capturer) *Binding {
	b := &Binding{srv: srv, mgr: mgr, capture: capture}
	b.add(MethodSetViewShader, b.setViewShader)
	b.add(MethodUnsetViewShader, b.unsetViewShader)
	b.add(MethodViewHasShader, b.viewHasShader)
	b.add(MethodSetFSShader, b.setFSShader)
	b.add(MethodUnsetFSShader, b.unsetFSShader)
	b.add(MethodFSHasShader, b.fsHasShader)
	b.add(MethodListViews, b.listViews)
	b.add(MethodListOutputs, b.listOutputs)
	if capture != nil {
		b.add(MethodScreenshot, b.screenshot)
	}
	return b
}

func (b *Binding) add(method string, h ipc.Handler) {
	b.srv.Register(method, h)
	b.methods = append(b.methods, method)
}

// Methods returns the registered method names in registration order.
func (b *Binding) Methods() []string {
	return append([]string(nil), b.methods...)
}

// Close unregisters every method.
func (b *Binding) Close() {
	for _, m := range b.methods {
		b.srv.Unregister(m)
	}
	b.methods = nil
}

func (b *Binding) setViewShader(p ipc.Params) (ipc.Response, error) {
	id, err := p.Uint(FieldViewID)
	if err != nil {
		return nil, err
	}
	path, err := p.String(FieldShaderPath)
	if err != nil {
		return nil, err
	}
	if err := b.mgr.SetViewShader(id, path); err != nil {
		return nil, err
	}
	return ipc.OK(), nil
}

func (b *Binding) unsetViewShader(p ipc.Params) (ipc.Response, error) {
	id, err := p.Uint(FieldViewID)
	if err != nil {
		return nil, err
	}
	if err := b.mgr.UnsetViewShader(id); err != nil {
		return nil, err
	}
	return ipc.OK(), nil
}

func (b *Binding) viewHasShader(p ipc.Params) (ipc.Response, error) {
	id, err := p.Uint(FieldViewID)
	if err != nil {
		return nil, err
	}
	has, err := b.mgr.ViewHasShader(id)
	if err != nil {
		return nil, err
	}
	resp := ipc.OK()
	resp[FieldHasShader] = has
	return resp, nil
}

func (b *Binding) setFSShader(p ipc.Params) (ipc.Response, error) {
	name, err := p.String(FieldOutputName)
	if err != nil {
		return nil, err
	}
	path, err := p.String(FieldShaderPath)
	if err != nil {
		return nil, err
	}
	if err := b.mgr.SetOutputShader(name, path); err != nil {
		return nil, err
	}
	return ipc.OK(), nil
}

func (b *Binding) unsetFSShader(p ipc.Params) (ipc.Response, error) {
	name, err := p.String(FieldOutputName)
	if err != nil {
		return nil, err
	}
	if err := b.mgr.UnsetOutputShader(name); err != nil {
		return nil, err
	}
	return ipc.OK(), nil
}

func (b *Binding) fsHasShader(p ipc.Params) (ipc.Response, error) {
	name, err := p.String(FieldOutputName)
	if err != nil {
		return nil, err
	}
	has, err := b.mgr.OutputHasShader(name)
	if err != nil {
		return nil, err
	}
	resp := ipc.OK()
	resp[FieldHasShader] = has
	return resp, nil
}

// ViewInfo is one entry of a list-views reply.
type ViewInfo struct {
	ID        uint64 `json:"id"`
	Title     string `json:"title"`
	Mapped    bool   `json:"mapped"`
	Output    string `json:"output,omitempty"`
	HasShader bool   `json:"has-shader"`
	Shader    string `json:"shader-path,omitempty"`
}

// OutputInfo is one entry of a list-outputs reply.
type OutputInfo struct {
	Name      string `json:"name"`
	Width     int32  `json:"width"`
	Height    int32  `json:"height"`
	HasShader bool   `json:"has-shader"`
	Shader    string `json:"shader-path,omitempty"`
}

func (b *Binding) listViews(ipc.Params) (ipc.Response, error) {
	views := []ViewInfo{}
	for _, v := range b.mgr.Views() {
		views = append(views, ViewInfo{
			ID:        v.ID,
			Title:     v.Title,
			Mapped:    v.Mapped,
			Output:    v.Output,
			HasShader: v.HasShader,
			Shader:    v.Shader,
		})
	}
	resp := ipc.OK()
	resp[FieldViews] = views
	return resp, nil
}

func (b *Binding) listOutputs(ipc.Params) (ipc.Response, error) {
	outputs := []OutputInfo{}
	for _, o := range b.mgr.Outputs() {
		outputs = append(outputs, OutputInfo{
			Name:      o.Name,
			Width:     o.Width,
			Height:    o.Height,
			HasShader: o.HasShader,
			Shader:    o.Shader,
		})
	}
	resp := ipc.OK()
	resp[FieldOutputs] = outputs
	return resp, nil
}

func (b *Binding) screenshot(p ipc.Params) (ipc.Response, error) {
	name, err := p.String(FieldOutputName)
	if err != nil {
		return nil, err
	}
	var path string
	if _, ok := p[FieldPath]; ok {
		if path, err = p.String(FieldPath); err != nil {
			return nil, err
		}
	}
	written, err := b.capture(name, path)
	if err != nil {
		return nil, fmt.Errorf("screenshot of %q: %w", name, err)
	}
	resp := ipc.OK()
	resp[FieldPath] = written
	return resp, nil
}
