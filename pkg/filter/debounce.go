package filter

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period required after the last keystroke.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces rapid search changes into a single call of fn carrying
// the most recent state. Flush bypasses the delay for discrete widgets.
type Debouncer struct {
	delay time.Duration
	fn    func(State)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer builds a debouncer; a non-positive delay uses DefaultDebounce.
func NewDebouncer(delay time.Duration, fn func(State)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn(state) after the quiet period, cancelling any pending call.
func (d *Debouncer) Trigger(state State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	state = state.Clone()
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(state)
	})
}

// Flush cancels any pending call and runs fn(state) immediately.
func (d *Debouncer) Flush(state State) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fn(state.Clone())
}

// Pending reports whether a debounced call is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels pending work; later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
