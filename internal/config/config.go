// Package config handles daemon configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all daemon settings.
type Config struct {
	Effects EffectsConfig  `yaml:"effects"`
	IPC     IPCConfig      `yaml:"ipc"`
	Outputs []OutputConfig `yaml:"outputs"`
	Views   []ViewConfig   `yaml:"views"`
	Display DisplayConfig  `yaml:"display"`
	Logging LoggingConfig  `yaml:"logging"`
}

// EffectsConfig holds shader effect settings.
type EffectsConfig struct {
	FadeDuration time.Duration `yaml:"fade_duration"`
	WatchShaders bool          `yaml:"watch_shaders"` // Rebuild effects when their shader file changes
	MinMargin    float32       `yaml:"min_margin"`    // Pad for content margins that are zero
}

// IPCConfig holds control socket settings.
type IPCConfig struct {
	Socket         string        `yaml:"socket"` // Environment variables are expanded
	MaxMessageSize uint32        `yaml:"max_message_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OutputConfig describes one output. Outputs are laid out left to right
// and presented side by side in a single window.
type OutputConfig struct {
	Name   string  `yaml:"name"`
	Width  int32   `yaml:"width"`
	Height int32   `yaml:"height"`
	Scale  float32 `yaml:"scale"`
}

// ViewConfig describes one view placed at startup.
type ViewConfig struct {
	Title   string        `yaml:"title"`
	Output  string        `yaml:"output"` // Empty means the first output
	X       int32         `yaml:"x"`
	Y       int32         `yaml:"y"`
	Width   int32         `yaml:"width"`
	Height  int32         `yaml:"height"`
	Color   [4]float32    `yaml:"color"`   // RGBA fill of the view's buffer
	Image   string        `yaml:"image"`   // Optional PNG, JPEG, BMP or TGA content
	Margins MarginsConfig `yaml:"margins"` // Server-side decoration
}

// MarginsConfig holds decoration margins in logical pixels.
type MarginsConfig struct {
	Left   float32 `yaml:"left"`
	Top    float32 `yaml:"top"`
	Right  float32 `yaml:"right"`
	Bottom float32 `yaml:"bottom"`
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	VSync      bool       `yaml:"vsync"`
	FPSLimit   int        `yaml:"fps_limit"`
	Background [4]float32 `yaml:"background"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Effects: EffectsConfig{
			FadeDuration: 700 * time.Millisecond,
			WatchShaders: false,
			MinMargin:    2,
		},
		IPC: IPCConfig{
			Socket:         "$XDG_RUNTIME_DIR/wf-filters.sock",
			MaxMessageSize: 1 << 20,
			RequestTimeout: 5 * time.Second,
		},
		Outputs: []OutputConfig{
			{Name: "SDL-1", Width: 1280, Height: 720, Scale: 1},
		},
		Views: []ViewConfig{
			{
				Title: "terminal", X: 80, Y: 80, Width: 560, Height: 360,
				Color:   [4]float32{0.12, 0.14, 0.17, 1},
				Margins: MarginsConfig{Top: 24},
			},
			{
				Title: "browser", X: 520, Y: 220, Width: 640, Height: 420,
				Color:   [4]float32{0.85, 0.87, 0.9, 1},
				Margins: MarginsConfig{Top: 24},
			},
		},
		Display: DisplayConfig{
			VSync:      true,
			FPSLimit:   60,
			Background: [4]float32{0.2, 0.2, 0.25, 1},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// SocketPath returns the control socket path with environment variables
// expanded. An unset $XDG_RUNTIME_DIR falls back to the temp dir.
func (c *Config) SocketPath() string {
	return os.Expand(c.IPC.Socket, func(name string) string {
		v := os.Getenv(name)
		if v == "" && name == "XDG_RUNTIME_DIR" {
			return strings.TrimSuffix(os.TempDir(), string(filepath.Separator))
		}
		return v
	})
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Effects.FadeDuration <= 0 {
		errs = append(errs, fmt.Errorf("effects.fade_duration must be positive, got %v", c.Effects.FadeDuration))
	}
	if c.Effects.MinMargin < 0 {
		errs = append(errs, fmt.Errorf("effects.min_margin must not be negative"))
	}
	if strings.TrimSpace(c.IPC.Socket) == "" {
		errs = append(errs, errors.New("ipc.socket is empty"))
	}
	if c.IPC.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ipc.request_timeout must be positive, got %v", c.IPC.RequestTimeout))
	}
	if len(c.Outputs) == 0 {
		errs = append(errs, errors.New("no outputs configured"))
	}

	names := make(map[string]bool)
	for i, o := range c.Outputs {
		switch {
		case o.Name == "":
			errs = append(errs, fmt.Errorf("outputs[%d]: name is empty", i))
		case names[o.Name]:
			errs = append(errs, fmt.Errorf("outputs[%d]: duplicate name %q", i, o.Name))
		}
		names[o.Name] = true
		if o.Width <= 0 || o.Height <= 0 {
			errs = append(errs, fmt.Errorf("outputs[%d]: size %dx%d is empty", i, o.Width, o.Height))
		}
		if o.Scale < 0 {
			errs = append(errs, fmt.Errorf("outputs[%d]: scale must not be negative", i))
		}
	}
	for i, v := range c.Views {
		if v.Width <= 0 || v.Height <= 0 {
			errs = append(errs, fmt.Errorf("views[%d] %q: size %dx%d is empty", i, v.Title, v.Width, v.Height))
		}
		if v.Output != "" && !names[v.Output] {
			errs = append(errs, fmt.Errorf("views[%d] %q: unknown output %q", i, v.Title, v.Output))
		}
	}
	return errors.Join(errs...)
}
