// Package gputest provides a recording gpu.Device for tests.
package gputest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/wf-filters/internal/gpu"
	"github.com/Faultbox/wf-filters/pkg/math"
)

// ErrCompile is returned for fragment sources containing "#error".
var ErrCompile = errors.New("0:1(1): error: syntax error")

// Draw is one recorded DrawQuad call and the target it went to.
type Draw struct {
	Target gpu.Target
	Quad   gpu.Quad
}

// Clear is one recorded Clear call.
type Clear struct {
	Target  gpu.Target
	Color   [4]float32
	Scissor *math.Box
}

// Device records GPU calls and flags misuse instead of touching a GPU.
type Device struct {
	// Fail decides whether a compile fails. Defaults to failing on "#error".
	Fail func(vertex, fragment string) error

	Live     map[uint32]string
	Compiled int
	Deleted  int
	Textures map[uint32]gpu.Texture
	Draws    []Draw
	Clears   []Clear

	// Violations lists every call made outside a Begin/End scope, every
	// nested Begin, double delete, or draw with a released program.
	Violations []string

	depth  int
	target gpu.Target
	nextID uint32
}

// New returns an empty device.
func New() *Device {
	return &Device{
		Live:     make(map[uint32]string),
		Textures: make(map[uint32]gpu.Texture),
	}
}

func (d *Device) violate(format string, args ...any) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

func (d *Device) requireScope(call string) {
	if d.depth == 0 {
		d.violate("%s outside render scope", call)
	}
}

// Begin implements gpu.Device.
func (d *Device) Begin(target gpu.Target) {
	if d.depth > 0 {
		d.violate("nested Begin")
	}
	d.depth++
	d.target = target
}

// End implements gpu.Device.
func (d *Device) End() {
	if d.depth == 0 {
		d.violate("End without Begin")
		return
	}
	d.depth--
	d.target = gpu.Target{}
}

// CompileProgram implements gpu.Device.
func (d *Device) CompileProgram(vertex, fragment string) (uint32, error) {
	d.requireScope("CompileProgram")
	fail := d.Fail
	if fail == nil {
		fail = failOnErrorDirective
	}
	if err := fail(vertex, fragment); err != nil {
		return 0, err
	}
	d.nextID++
	d.Compiled++
	d.Live[d.nextID] = fragment
	return d.nextID, nil
}

// DeleteProgram implements gpu.Device.
func (d *Device) DeleteProgram(id uint32) {
	d.requireScope("DeleteProgram")
	if _, ok := d.Live[id]; !ok {
		d.violate("delete of unknown program %d", id)
		return
	}
	delete(d.Live, id)
	d.Deleted++
}

// UploadRGBA implements gpu.Device.
func (d *Device) UploadRGBA(width, height int32, pixels []byte) (gpu.Texture, error) {
	d.requireScope("UploadRGBA")
	if width <= 0 || height <= 0 || len(pixels) != int(width*height*4) {
		return gpu.Texture{}, fmt.Errorf("bad texture %dx%d with %d bytes", width, height, len(pixels))
	}
	d.nextID++
	t := gpu.Texture{ID: d.nextID, Width: width, Height: height}
	d.Textures[t.ID] = t
	return t, nil
}

// DeleteTexture implements gpu.Device.
func (d *Device) DeleteTexture(t gpu.Texture) {
	d.requireScope("DeleteTexture")
	if _, ok := d.Textures[t.ID]; !ok {
		d.violate("delete of unknown texture %d", t.ID)
		return
	}
	delete(d.Textures, t.ID)
}

// Clear implements gpu.Device.
func (d *Device) Clear(color [4]float32, scissor *math.Box) {
	d.requireScope("Clear")
	d.Clears = append(d.Clears, Clear{Target: d.target, Color: color, Scissor: scissor})
}

// DrawQuad implements gpu.Device.
func (d *Device) DrawQuad(q gpu.Quad) {
	d.requireScope("DrawQuad")
	if q.Program != 0 {
		if _, ok := d.Live[q.Program]; !ok {
			d.violate("draw with released program %d", q.Program)
		}
	}
	d.Draws = append(d.Draws, Draw{Target: d.target, Quad: q})
}

// DrawsWith returns the recorded draws that used program id.
func (d *Device) DrawsWith(id uint32) []Draw {
	var out []Draw
	for _, dr := range d.Draws {
		if dr.Quad.Program == id {
			out = append(out, dr)
		}
	}
	return out
}

// Reset forgets recorded draws and clears, keeping live programs.
func (d *Device) Reset() {
	d.Draws = nil
	d.Clears = nil
}

func failOnErrorDirective(_, fragment string) error {
	if strings.Contains(fragment, "#error") {
		return ErrCompile
	}
	return nil
}
