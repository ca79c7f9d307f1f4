// Package renderer provides the OpenGL implementation of gpu.Device.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/wf-filters/internal/engine/shader"
	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/internal/logger"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// passthroughBody draws a texture unchanged. It is used for views without
// an effect.
const passthroughBody = "void main() {\n    out_color = get_pixel(uvpos);\n}\n"

type uniforms struct {
	mvp      int32
	progress int32
	margins  int32
	texture  int32
}

// Renderer issues the compositor's draws through OpenGL. All methods must
// be called on the thread that owns the GL context.
type Renderer struct {
	log *zap.Logger

	quadVAO     uint32
	quadVBO     uint32
	passthrough uint32

	uniforms map[uint32]uniforms
	depth    int
	target   gpu.Target
}

var _ gpu.Device = (*Renderer)(nil)

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New() (*Renderer, error) {
	r := &Renderer{
		log:      logger.Named("renderer"),
		uniforms: make(map[uint32]uniforms),
	}

	// Initialize OpenGL
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	// Log OpenGL info
	version := gl.GoStr(gl.GetString(gl.VERSION))
	rendererName := gl.GoStr(gl.GetString(gl.RENDERER))
	r.log.Info("OpenGL initialized",
		zap.String("version", version),
		zap.String("renderer", rendererName),
	)

	// Compositing is 2D
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)

	var err error
	r.passthrough, err = shader.CompileProgram(shader.Vertex, shader.Fragment(passthroughBody, shader.KindOutput))
	if err != nil {
		return nil, fmt.Errorf("failed to create passthrough program: %w", err)
	}
	r.createQuad()

	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	if r.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &r.quadVAO)
	}
	if r.quadVBO != 0 {
		gl.DeleteBuffers(1, &r.quadVBO)
	}
	if r.passthrough != 0 {
		gl.DeleteProgram(r.passthrough)
	}
}

// Begin implements gpu.Device.
func (r *Renderer) Begin(target gpu.Target) {
	if r.depth > 0 {
		r.log.Warn("nested render scope")
	}
	r.depth++
	r.target = target
	if target.Width > 0 && target.Height > 0 {
		gl.BindFramebuffer(gl.FRAMEBUFFER, target.FBO)
		gl.Viewport(0, 0, target.Width, target.Height)
	}
}

// End implements gpu.Device. It restores the default state.
func (r *Renderer) End() {
	if r.depth == 0 {
		r.log.Warn("render scope ended twice")
		return
	}
	r.depth--
	gl.Disable(gl.SCISSOR_TEST)
	gl.Disable(gl.BLEND)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	r.target = gpu.Target{}
}

func (r *Renderer) inScope(call string) bool {
	if r.depth == 0 {
		r.log.Error("GPU call outside render scope", zap.String("call", call))
		return false
	}
	return true
}

// CompileProgram implements gpu.Device.
func (r *Renderer) CompileProgram(vertex, fragment string) (uint32, error) {
	if !r.inScope("CompileProgram") {
		return 0, ErrOutOfScope
	}
	id, err := shader.CompileProgram(vertex, fragment)
	if err != nil {
		return 0, err
	}
	r.uniforms[id] = lookupUniforms(id)
	r.log.Debug("program compiled", zap.Uint32("program", id))
	return id, nil
}

// DeleteProgram implements gpu.Device.
func (r *Renderer) DeleteProgram(id uint32) {
	if !r.inScope("DeleteProgram") || id == 0 {
		return
	}
	gl.DeleteProgram(id)
	delete(r.uniforms, id)
	r.log.Debug("program deleted", zap.Uint32("program", id))
}

// Clear implements gpu.Device.
func (r *Renderer) Clear(color [4]float32, scissor *math.Box) {
	if !r.inScope("Clear") {
		return
	}
	r.setScissor(scissor)
	gl.ClearColor(color[0], color[1], color[2], color[3])
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// DrawQuad implements gpu.Device.
func (r *Renderer) DrawQuad(q gpu.Quad) {
	if !r.inScope("DrawQuad") {
		return
	}
	program := q.Program
	if program == 0 {
		program = r.passthrough
	}
	u, ok := r.uniforms[program]
	if !ok {
		u = lookupUniforms(program)
		r.uniforms[program] = u
	}

	vp := r.flip(q.Viewport)
	gl.Viewport(vp.X, vp.Y, vp.Width, vp.Height)
	r.setScissor(q.Scissor)

	switch q.Blend {
	case gpu.BlendPremultiplied:
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
	default:
		gl.Disable(gl.BLEND)
	}

	gl.UseProgram(program)
	mvp := q.MVP
	if u.mvp >= 0 {
		gl.UniformMatrix4fv(u.mvp, 1, false, mvp.Ptr())
	}
	if u.progress >= 0 {
		gl.Uniform1f(u.progress, q.Progress)
	}
	if u.margins >= 0 && q.Margins != nil {
		m := *q.Margins
		gl.Uniform4f(u.margins, m[0], m[1], m[2], m[3])
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, q.Texture)
	if u.texture >= 0 {
		gl.Uniform1i(u.texture, 0)
	}

	gl.BindVertexArray(r.quadVAO)
	gl.DrawArrays(gl.TRIANGLE_FAN, 0, 4)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.UseProgram(0)
}

func (r *Renderer) setScissor(b *math.Box) {
	if b == nil {
		gl.Disable(gl.SCISSOR_TEST)
		return
	}
	s := r.flip(*b)
	gl.Enable(gl.SCISSOR_TEST)
	gl.Scissor(s.X, s.Y, s.Width, s.Height)
}

// flip converts a top-left origin box into GL window coordinates.
func (r *Renderer) flip(b math.Box) math.Box {
	b.Y = r.target.Height - b.Y - b.Height
	return b
}

func lookupUniforms(program uint32) uniforms {
	return uniforms{
		mvp:      shader.GetUniform(program, shader.UniformMVP),
		progress: shader.GetUniform(program, shader.UniformProgress),
		margins:  shader.GetUniform(program, shader.UniformMargins),
		texture:  shader.GetUniform(program, shader.UniformTexture),
	}
}

// createQuad creates the full-viewport quad every draw uses.
func (r *Renderer) createQuad() {
	// Position (x, y) + texcoord (u, v), drawn as a triangle fan
	vertices := []float32{
		-1, -1, 0, 0,
		1, -1, 1, 0,
		1, 1, 1, 1,
		-1, 1, 0, 1,
	}

	gl.GenVertexArrays(1, &r.quadVAO)
	gl.BindVertexArray(r.quadVAO)

	gl.GenBuffers(1, &r.quadVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, unsafe.Pointer(&vertices[0]), gl.STATIC_DRAW)

	gl.VertexAttribPointer(shader.AttribPosition, 2, gl.FLOAT, false, 4*4, nil)
	gl.EnableVertexAttribArray(shader.AttribPosition)

	gl.VertexAttribPointer(shader.AttribTexcoord, 2, gl.FLOAT, false, 4*4, unsafe.Pointer(uintptr(2*4)))
	gl.EnableVertexAttribArray(shader.AttribTexcoord)

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	r.log.Debug("quad created",
		zap.Uint32("vao", r.quadVAO),
		zap.Uint32("vbo", r.quadVBO),
	)
}
