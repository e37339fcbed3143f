package discovery

import "time"

// ScheduledTask is a handle to a pending scheduled function.
type ScheduledTask interface {
	// Cancel stops the task from running. It reports whether the task
	// was cancelled before it fired.
	Cancel() bool
}

// Scheduler defers a function call by a delay. Services use it to schedule
// the automatic scan stop; injecting it keeps timeout behaviour testable.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) ScheduledTask
}

// NewScheduler returns the system scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

type timerScheduler struct{}

func (timerScheduler) Schedule(delay time.Duration, fn func()) ScheduledTask {
	return timerTask{timer: time.AfterFunc(delay, fn)}
}

type timerTask struct {
	timer *time.Timer
}

func (t timerTask) Cancel() bool {
	return t.timer.Stop()
}
