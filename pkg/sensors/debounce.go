package sensors

import (
	"sync/atomic"
	"time"
)

// Debouncer lets an event through at most once per cooloff, and never
// within the settling window after it is armed.
type Debouncer struct {
	settle      time.Duration
	cooloff     time.Duration
	armedAt     time.Time
	armed       bool
	lastTrigger time.Time
	triggered   bool
}

func NewDebouncer(settle, cooloff time.Duration) *Debouncer {
	return &Debouncer{settle: settle, cooloff: cooloff}
}

func (d *Debouncer) Arm(now time.Time) {
	d.armedAt = now
	d.armed = true
	d.triggered = false
}

func (d *Debouncer) Armed() bool {
	return d.armed
}

// Settling reports whether the post-arm window is still open.
func (d *Debouncer) Settling(now time.Time) bool {
	return !d.armed || now.Sub(d.armedAt) < d.settle
}

func (d *Debouncer) Cooling(now time.Time) bool {
	return d.triggered && now.Sub(d.lastTrigger) < d.cooloff
}

// Trigger records a detection and reports whether it should be notified.
// Suppressed detections do not extend the cooloff.
func (d *Debouncer) Trigger(now time.Time) bool {
	if d.Settling(now) || d.Cooling(now) {
		return false
	}
	d.lastTrigger = now
	d.triggered = true
	return true
}

// MotionFlag is the only state shared with interrupt context. The interrupt
// side calls Set; the main loop calls Take.
type MotionFlag struct {
	raised atomic.Bool
}

func (f *MotionFlag) Set() {
	f.raised.Store(true)
}

// Take reads and clears the flag in one step.
func (f *MotionFlag) Take() bool {
	return f.raised.Swap(false)
}
