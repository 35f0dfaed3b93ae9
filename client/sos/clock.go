package sos

import "time"

// Clock schedules the debounce timer. It exists so the single/double tap
// race can be driven deterministically.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	// Stop reports whether the timer was stopped before it fired
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
