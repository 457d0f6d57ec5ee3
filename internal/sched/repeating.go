// Package sched provides the repeating-task primitive used for progress
// ticks, fast-poll bursts and the polling fallback when a push channel is
// down.
package sched

import (
	"sync"
	"time"
)

// RepeatingTask runs fn every interval until stopped. Stop is idempotent
// and safe from any goroutine, including fn itself.
type RepeatingTask struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	done    chan struct{}
}

// NewRepeatingTask creates a task; it does not start until Start is called.
func NewRepeatingTask(interval time.Duration, fn func()) *RepeatingTask {
	return &RepeatingTask{interval: interval, fn: fn}
}

// Start launches the tick loop. Calling Start on a running or stopped task
// is a no-op.
func (t *RepeatingTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh != nil || t.stopped {
		return
	}
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})

	go func(stopCh, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				t.fn()
			}
		}
	}(t.stopCh, t.done)
}

// Stop halts the loop. The first call wins; later calls return immediately.
func (t *RepeatingTask) Stop() {
	t.mu.Lock()
	if t.stopped || t.stopCh == nil {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.stopCh)
	t.mu.Unlock()
}

// Wait blocks until the loop goroutine has exited. Returns immediately for
// a task that never started.
func (t *RepeatingTask) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}
