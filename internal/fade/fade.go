// Package fade implements the time-driven progress value that drives effect
// blend strength and effect lifetime.
package fade

import "time"

// DefaultDuration is the time a full 0 to 1 transition takes.
const DefaultDuration = 700 * time.Millisecond

// State is the coarse phase of a Controller.
type State int

const (
	// StateIdle holds progress at 0.
	StateIdle State = iota
	// StateRunning is moving toward its target.
	StateRunning
	// StateHolding holds progress at 1.
	StateHolding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateHolding:
		return "holding"
	default:
		return "unknown"
	}
}

// Controller advances a progress value in [0,1] linearly toward a target.
// A full transition takes the configured duration; partial transitions
// (after a reversal mid-flight) take the proportional share of it.
type Controller struct {
	duration  time.Duration
	start     float32
	end       float32
	progress  float32
	startTime time.Time
	span      time.Duration
	running   bool
	animated  bool
}

// New creates a controller idle at progress 0.
func New(duration time.Duration) *Controller {
	if duration < 0 {
		duration = 0
	}
	return &Controller{duration: duration}
}

// Duration returns the configured full-transition duration.
func (c *Controller) Duration() time.Duration {
	return c.duration
}

// Animate starts moving from the current progress toward target.
// target is clamped to [0,1].
func (c *Controller) Animate(target float32, now time.Time) {
	target = clamp(target)
	c.animated = true
	c.start = c.progress
	c.end = target
	c.startTime = now

	dist := c.end - c.start
	if dist < 0 {
		dist = -dist
	}
	c.span = time.Duration(float64(c.duration) * float64(dist))
	if c.span <= 0 {
		c.progress = c.end
		c.running = false
		return
	}
	c.running = true
}

// Tick advances progress to the value at now and reports whether the
// controller is still running.
func (c *Controller) Tick(now time.Time) bool {
	if !c.running {
		return false
	}
	elapsed := now.Sub(c.startTime)
	if elapsed >= c.span {
		c.progress = c.end
		c.running = false
		return false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	t := float32(float64(elapsed) / float64(c.span))
	next := clamp(c.start + (c.end-c.start)*t)
	// keep progress monotonic in the current direction
	if (c.end > c.start && next > c.progress) || (c.end < c.start && next < c.progress) {
		c.progress = next
	}
	return true
}

// Running reports whether progress has not yet reached its target.
func (c *Controller) Running() bool {
	return c.running
}

// Progress returns the current value.
func (c *Controller) Progress() float32 {
	return c.progress
}

// Target returns the value being animated toward.
func (c *Controller) Target() float32 {
	return c.end
}

// State returns the coarse phase.
func (c *Controller) State() State {
	switch {
	case c.running:
		return StateRunning
	case c.progress >= 1:
		return StateHolding
	default:
		return StateIdle
	}
}

// FinishedAtZero reports whether an animation toward 0 has completed. This
// is the signal for the owner to tear itself down.
func (c *Controller) FinishedAtZero() bool {
	return c.animated && !c.running && c.end == 0 && c.progress == 0
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
