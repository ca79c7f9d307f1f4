// Package effect owns shader effect instances: their programs, their fade
// state, their registration with the frame pipeline, and the registry that
// maps views and outputs to at most one effect each.
package effect

import (
	"time"

	"github.com/Faultbox/wf-filters/internal/fade"
	"github.com/Faultbox/wf-filters/internal/gpu"
)

// Contributor is the capability shared by view and output effects.
type Contributor interface {
	// Compile builds body into the effect's program.
	Compile(body string) error
	// Step advances the fade to now and reports whether it is still running.
	Step(now time.Time) bool
	// Progress returns the current fade value.
	Progress() float32
	// Destroy unregisters every hook and releases the program immediately.
	Destroy()
	// Path returns the shader file the effect was built from.
	Path() string
}

var (
	_ Contributor = (*ViewEffect)(nil)
	_ Contributor = (*OutputEffect)(nil)
)

// base holds what both effect kinds share.
type base struct {
	dev     gpu.Device
	program *Program
	fade    *fade.Controller
	path    string
}

func (b *base) Compile(body string) error {
	return b.program.Compile(body)
}

func (b *base) Progress() float32 {
	return b.fade.Progress()
}

// Path returns the shader file the effect was built from.
func (b *base) Path() string {
	return b.path
}

// Program returns the effect's GPU program.
func (b *base) Program() *Program {
	return b.program
}

// FadeState returns the coarse fade phase.
func (b *base) FadeState() fade.State {
	return b.fade.State()
}
