// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dispose defers destruction of GPU objects to the render goroutine.
//
// Resource wrappers may be released from any goroutine: explicitly through
// Dispose, or from a runtime cleanup after the wrapper became unreachable.
// Native destruction calls must only happen on the render goroutine, so the
// release path schedules an action here and the renderer drains the queue
// once per frame at a fixed point of its reset sequence.
//
// A queue that has not been attached to a host (headless tools, unit tests
// that never start a frame loop) runs actions immediately instead.
package dispose

import (
	"sync"
	"sync/atomic"
)

// Queue is a goroutine-safe FIFO of deferred actions.
//
// Schedule may be called from any goroutine. Drain and RunNext must be called
// from the render goroutine only.
type Queue struct {
	mu      sync.Mutex
	pending []func()

	attached atomic.Bool

	scheduled atomic.Uint64
	executed  atomic.Uint64
}

// NewQueue creates an empty, detached queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Attach marks a host context as active. From now on scheduled actions are
// queued until the next Drain instead of running immediately.
func (q *Queue) Attach() {
	q.attached.Store(true)
}

// Detach reverts the queue to immediate execution. Actions already queued
// stay queued until drained.
func (q *Queue) Detach() {
	q.attached.Store(false)
}

// Attached reports whether actions are deferred to Drain.
func (q *Queue) Attached() bool {
	return q != nil && q.attached.Load()
}

// Schedule enqueues action for the next Drain. On a nil or detached queue the
// action runs immediately on the calling goroutine.
func (q *Queue) Schedule(action func()) {
	if action == nil {
		return
	}
	if !q.Attached() {
		if q != nil {
			q.scheduled.Add(1)
			q.executed.Add(1)
		}
		action()
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, action)
	q.mu.Unlock()
	q.scheduled.Add(1)
}

// ScheduleDisposal enqueues action(target). The target is captured at
// scheduling time.
func ScheduleDisposal[T any](q *Queue, target T, action func(T)) {
	if action == nil {
		return
	}
	q.Schedule(func() { action(target) })
}

// Drain runs every action queued before the call, in FIFO order, and
// returns how many ran. Actions scheduled while draining run on the next
// Drain.
//
// A panicking action propagates to the caller. Actions queued after it are
// kept for the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for i, action := range batch {
		ran := false
		func() {
			defer func() {
				if !ran {
					q.requeueFront(batch[i+1:])
				}
			}()
			q.executed.Add(1)
			action()
			ran = true
		}()
	}
	return len(batch)
}

// RunNext runs the oldest queued action, if any, and reports whether one
// ran.
func (q *Queue) RunNext() bool {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return false
	}
	action := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.mu.Unlock()

	q.executed.Add(1)
	action()
	return true
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Counts returns how many actions were scheduled and executed so far.
func (q *Queue) Counts() (scheduled, executed uint64) {
	return q.scheduled.Load(), q.executed.Load()
}

func (q *Queue) requeueFront(rest []func()) {
	if len(rest) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(append([]func(){}, rest...), q.pending...)
	q.mu.Unlock()
}
