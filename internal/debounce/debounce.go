// Package debounce schedules delayed tasks that collapse bursts of triggers into one run.
//
// Every Schedule bumps a generation counter and hands the new generation to the task. A task
// whose generation is no longer current when it runs is stale; the timer is stopped on
// reschedule as well, but a task that already fired cannot be recalled, so callers compare the
// generation they were given against Current before acting.
package debounce

import (
	"sync"
	"time"
)

type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule arranges for fn to run once the delay elapses without another Schedule call.
// It returns the generation passed to fn.
func (d *Debouncer) Schedule(fn func(gen uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { fn(gen) })
	return gen
}

// Invalidate makes any scheduled or in-flight task stale without scheduling a new one.
func (d *Debouncer) Invalidate() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	return d.gen
}

func (d *Debouncer) Current() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

// IsCurrent reports whether gen is still the latest generation.
func (d *Debouncer) IsCurrent(gen uint64) bool {
	return d.Current() == gen
}

// Stop is Invalidate for shutdown paths.
func (d *Debouncer) Stop() {
	d.Invalidate()
}
