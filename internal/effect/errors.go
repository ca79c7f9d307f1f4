package effect

import (
	"errors"
	"fmt"
)

var (
	// ErrViewNotFound is returned for unknown or unmapped views.
	ErrViewNotFound = errors.New("failed to find view with given id")
	// ErrOutputNotFound is returned for unknown output names.
	ErrOutputNotFound = errors.New("failed to find output")
	// ErrCompile is returned when a shader does not build into a program.
	ErrCompile = errors.New("failed to compile shader")
	// ErrShaderSource is returned when the shader file cannot be read.
	ErrShaderSource = errors.New("failed to read shader source")
	// ErrClosed is returned after the manager shut down.
	ErrClosed = errors.New("effect manager closed")
)

// CompileError carries the driver's info log for a failed compile.
type CompileError struct {
	Kind string
	Log  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s shader: %s", ErrCompile, e.Kind, e.Log)
}

func (e *CompileError) Unwrap() error {
	return ErrCompile
}
