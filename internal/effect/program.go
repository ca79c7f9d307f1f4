package effect

import (
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/Faultbox/wf-filters/internal/engine/shader"
	"github.com/Faultbox/wf-filters/internal/gpu"
)

// LoadShaderSource reads a fragment body from path.
func LoadShaderSource(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrShaderSource)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrShaderSource, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", ErrShaderSource, path)
	}
	return string(data), nil
}

// Program owns one compiled GPU program built from the fixed vertex stage
// and a fragment body. An id of 0 means no valid program.
type Program struct {
	dev  gpu.Device
	kind shader.Kind
	id   uint32
}

// NewProgram returns an empty program for kind.
func NewProgram(dev gpu.Device, kind shader.Kind) *Program {
	return &Program{dev: dev, kind: kind}
}

// ID returns the program id, 0 if none is compiled.
func (p *Program) ID() uint32 { return p.id }

// Valid reports whether the program can be drawn with.
func (p *Program) Valid() bool { return p.id != 0 }

// Compile releases any previous program, then builds body. On failure the
// id stays 0.
func (p *Program) Compile(body string) error {
	fragment := shader.Fragment(body, p.kind)

	var err error
	gpu.With(p.dev, gpu.Target{}, func() {
		p.release()
		var id uint32
		id, err = p.dev.CompileProgram(shader.Vertex, fragment)
		if err == nil {
			p.id = id
		}
	})
	if err != nil {
		return &CompileError{Kind: p.kind.String(), Log: err.Error()}
	}
	return nil
}

// Release frees the GPU program. It is idempotent.
func (p *Program) Release() {
	if p.id == 0 {
		return
	}
	gpu.With(p.dev, gpu.Target{}, p.release)
}

func (p *Program) release() {
	if p.id == 0 {
		return
	}
	p.dev.DeleteProgram(p.id)
	p.id = 0
}
