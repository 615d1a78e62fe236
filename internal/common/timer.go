// Package common holds small helpers shared by the pipeline and its shells.
package common

import (
	"fmt"
	"time"
)

// Timer measures one end-to-end span. The zero value is not usable; create
// timers with NewTimer or NewNamedTimer.
type Timer struct {
	name     string
	start    time.Time
	duration time.Duration
	stopped  bool
}

// NewTimer starts an unnamed timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer starts a timer labelled name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop freezes the timer and returns the elapsed duration. Later calls
// return the frozen value.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = time.Since(t.start)
		t.stopped = true
	}
	return t.duration
}

// Elapsed returns the running duration, or the frozen one after Stop.
func (t *Timer) Elapsed() time.Duration {
	if t.stopped {
		return t.duration
	}
	return time.Since(t.start)
}

// Duration returns the frozen duration; zero before Stop.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the label, empty for unnamed timers.
func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.Elapsed())
	}
	return t.Elapsed().String()
}

// Measure runs fn and returns its duration.
func Measure(fn func()) time.Duration {
	t := NewTimer()
	fn()
	return t.Stop()
}
