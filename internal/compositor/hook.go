package compositor

import (
	"time"

	"github.com/Faultbox/wf-filters/internal/gpu"
)

// FrameHook runs once per frame before anything is painted.
type FrameHook func(now time.Time)

// PostHook receives the fully composited frame in src and writes the frame
// that reaches the output into dst.
type PostHook func(src, dst gpu.Target)

// ViewSignal is emitted for view lifecycle changes.
type ViewSignal func(v *View)

// OutputSignal is emitted for output lifecycle changes.
type OutputSignal func(o *Output)

// Hook is the registration handle for a callback added to a frame source or
// signal. Remove is idempotent and safe to call from inside the callback.
type Hook struct {
	remove  func()
	removed bool
}

// Remove unregisters the callback.
func (h *Hook) Remove() {
	if h == nil || h.removed {
		return
	}
	h.removed = true
	if h.remove != nil {
		h.remove()
	}
}

// Active reports whether the callback is still registered.
func (h *Hook) Active() bool {
	return h != nil && !h.removed
}

type hookEntry[F any] struct {
	fn   F
	hook *Hook
}

// hookList keeps callbacks in registration order.
type hookList[F any] struct {
	entries []*hookEntry[F]
}

func (l *hookList[F]) add(fn F) *Hook {
	e := &hookEntry[F]{fn: fn}
	e.hook = &Hook{remove: func() { l.drop(e) }}
	l.entries = append(l.entries, e)
	return e.hook
}

func (l *hookList[F]) drop(e *hookEntry[F]) {
	for i, cur := range l.entries {
		if cur == e {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// each calls fn for every entry registered when the walk started, skipping
// entries removed along the way.
func (l *hookList[F]) each(call func(F)) {
	snapshot := append([]*hookEntry[F](nil), l.entries...)
	for _, e := range snapshot {
		if e.hook.removed {
			continue
		}
		call(e.fn)
	}
}

func (l *hookList[F]) len() int {
	return len(l.entries)
}

func (l *hookList[F]) clear() {
	for _, e := range l.entries {
		e.hook.removed = true
	}
	l.entries = nil
}
