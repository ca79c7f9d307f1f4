// Package gpu defines the device contract the compositor and the effects
// render through. The OpenGL implementation lives in engine/renderer.
package gpu

import (
	"github.com/Faultbox/wf-filters/pkg/math"
)

// Target is a framebuffer that draws are directed to.
// Texture is the color attachment, 0 for the default framebuffer.
type Target struct {
	FBO     uint32
	Texture uint32
	Width   int32
	Height  int32
}

// Bounds returns the full framebuffer box.
func (t Target) Bounds() math.Box {
	return math.Box{Width: t.Width, Height: t.Height}
}

// Texture is a sampled image, usually a view's rendered buffer.
type Texture struct {
	ID     uint32
	Width  int32
	Height int32
}

// BlendMode selects how a draw is combined with the framebuffer.
type BlendMode int

const (
	// BlendNone overwrites the destination.
	BlendNone BlendMode = iota
	// BlendPremultiplied is ONE, ONE_MINUS_SRC_ALPHA.
	BlendPremultiplied
)

// Quad describes one full-screen-quad draw. Boxes are in framebuffer pixels
// with the origin at the top-left; the device flips them for GL.
type Quad struct {
	// Program 0 selects the device's built-in passthrough program.
	Program  uint32
	Texture  uint32
	MVP      math.Mat4
	Progress float32
	// Margins is left unset when nil.
	Margins  *math.Vec4
	Viewport math.Box
	// Scissor is disabled when nil.
	Scissor *math.Box
	Blend   BlendMode
}

// Device issues GPU work. Every call other than Begin must happen between
// Begin and End.
type Device interface {
	// Begin makes the rendering context current and binds target.
	// A zero Target only makes the context current.
	Begin(target Target)
	End()

	CompileProgram(vertex, fragment string) (uint32, error)
	DeleteProgram(id uint32)

	// UploadRGBA creates a texture from premultiplied RGBA rows, top row
	// first.
	UploadRGBA(width, height int32, pixels []byte) (Texture, error)
	DeleteTexture(t Texture)

	Clear(color [4]float32, scissor *math.Box)
	DrawQuad(q Quad)
}

// With runs fn inside a Begin/End scope on dev. End runs on every exit path.
func With(dev Device, target Target, fn func()) {
	dev.Begin(target)
	defer dev.End()
	fn()
}
