package fade

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFadeInMonotonicAndClamped(t *testing.T) {
	c := New(700 * time.Millisecond)
	c.Animate(1, epoch)

	if c.State() != StateRunning {
		t.Fatalf("expected running after Animate, got %v", c.State())
	}

	prev := c.Progress()
	for ms := 0; ms <= 1000; ms += 16 {
		c.Tick(epoch.Add(time.Duration(ms) * time.Millisecond))
		p := c.Progress()
		if p < prev {
			t.Fatalf("progress went backwards at %dms: %f < %f", ms, p, prev)
		}
		if p < 0 || p > 1 {
			t.Fatalf("progress out of range at %dms: %f", ms, p)
		}
		prev = p
	}

	if c.Progress() != 1 {
		t.Errorf("expected progress clamped at exactly 1, got %f", c.Progress())
	}
	if c.Running() {
		t.Error("expected controller finished after duration")
	}
	if c.State() != StateHolding {
		t.Errorf("expected holding, got %v", c.State())
	}
	if c.FinishedAtZero() {
		t.Error("finishing at one must not signal teardown")
	}
}

func TestFadeOutFinishesAtZero(t *testing.T) {
	c := New(700 * time.Millisecond)
	c.Animate(1, epoch)
	c.Tick(epoch.Add(time.Second))

	out := epoch.Add(2 * time.Second)
	c.Animate(0, out)

	prev := c.Progress()
	for ms := 0; ms <= 800; ms += 10 {
		c.Tick(out.Add(time.Duration(ms) * time.Millisecond))
		if c.Progress() > prev {
			t.Fatalf("fade-out progress increased at %dms", ms)
		}
		prev = c.Progress()
	}

	if c.Progress() != 0 {
		t.Errorf("expected progress clamped at exactly 0, got %f", c.Progress())
	}
	if !c.FinishedAtZero() {
		t.Error("expected FinishedAtZero after completed fade-out")
	}
}

func TestHalfway(t *testing.T) {
	c := New(time.Second)
	c.Animate(1, epoch)
	c.Tick(epoch.Add(500 * time.Millisecond))

	if p := c.Progress(); p < 0.49 || p > 0.51 {
		t.Errorf("expected ~0.5 at half duration, got %f", p)
	}
}

func TestReverseMidFlight(t *testing.T) {
	c := New(time.Second)
	c.Animate(1, epoch)
	c.Tick(epoch.Add(400 * time.Millisecond))
	mid := c.Progress()

	rev := epoch.Add(400 * time.Millisecond)
	c.Animate(0, rev)
	if c.Progress() != mid {
		t.Fatalf("reversal must start from current progress: got %f, want %f", c.Progress(), mid)
	}

	// the way back covers 0.4 of the range, so it takes 0.4s
	if !c.Tick(rev.Add(300 * time.Millisecond)) {
		t.Error("expected still running before the proportional span elapsed")
	}
	if c.Tick(rev.Add(401 * time.Millisecond)) {
		t.Error("expected finished after the proportional span")
	}
	if !c.FinishedAtZero() {
		t.Error("expected FinishedAtZero")
	}
}

func TestZeroDurationIsInstant(t *testing.T) {
	c := New(0)
	c.Animate(1, epoch)
	if c.Running() || c.Progress() != 1 {
		t.Errorf("zero duration should jump to target, got running=%v progress=%f", c.Running(), c.Progress())
	}
}

func TestIdleIsNotFinished(t *testing.T) {
	c := New(DefaultDuration)
	if c.FinishedAtZero() {
		t.Error("a controller that never animated must not signal teardown")
	}
	if c.State() != StateIdle {
		t.Errorf("expected idle, got %v", c.State())
	}
}

func TestAnimateClampsTarget(t *testing.T) {
	c := New(0)
	c.Animate(5, epoch)
	if c.Progress() != 1 || c.Target() != 1 {
		t.Errorf("target should clamp to 1, got progress=%f target=%f", c.Progress(), c.Target())
	}
}
