// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package upload implements the throttled cross-goroutine texture upload
// queue.
//
// Producers enqueue items from any goroutine. Once per frame the render
// goroutine services a bounded number of them: at least one, about half of
// the queue, never more than a per-frame cap, and stopping early once the
// pixel budget is spent. The pixel bound is checked after each item, so a
// frame may overshoot it by at most one item.
package upload

import (
	"sync"
	"sync/atomic"
)

// DefaultMaxPixelsPerFrame is about 8 MiB of RGBA8 data.
const DefaultMaxPixelsPerFrame = 2048 * 1024

// DefaultMaxItemsPerFrame caps the items serviced in one frame.
const DefaultMaxItemsPerFrame = 16

// Limits bounds the work done by one Process call.
type Limits struct {
	// MaxItems caps the number of items dequeued. Values < 1 mean 1.
	MaxItems int

	// MaxPixels stops processing once the cumulative pixel count exceeds
	// it. Zero disables the bound.
	MaxPixels int
}

// Result summarizes one Process call.
type Result struct {
	// Target is the number of items the call aimed to service.
	Target int

	// Dequeued counts items removed from the queue.
	Dequeued int

	// Performed counts items whose upload succeeded.
	Performed int

	// Pixels is the cumulative pixel count of successful uploads.
	Pixels int
}

// Target returns clamp(queueLen/2, 1, maxItems) for a non-empty queue and 0
// for an empty one.
func Target(queueLen, maxItems int) int {
	if queueLen <= 0 {
		return 0
	}
	return min(max(queueLen/2, 1), max(maxItems, 1))
}

// UploadFunc services one item and returns the uploaded pixel count. ok is
// false when the item could not be uploaded; such items are dropped.
type UploadFunc[T any] func(item T) (pixels int, ok bool)

// Queue is a goroutine-safe FIFO of items awaiting upload.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T

	enqueued  atomic.Uint64
	dequeued  atomic.Uint64
	performed atomic.Uint64
}

// Enqueue appends item. Deduplication is the caller's responsibility.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.enqueued.Add(1)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Process services queued items with upload under limits. It must only be
// called from the render goroutine. Items enqueued during the call may be
// serviced by it.
func (q *Queue[T]) Process(limits Limits, upload UploadFunc[T]) Result {
	res := Result{Target: Target(q.Len(), limits.MaxItems)}

	for res.Dequeued < res.Target {
		item, ok := q.pop()
		if !ok {
			break
		}
		res.Dequeued++
		q.dequeued.Add(1)

		pixels, ok := upload(item)
		if !ok {
			continue
		}
		res.Performed++
		res.Pixels += pixels
		q.performed.Add(1)

		if limits.MaxPixels > 0 && res.Pixels > limits.MaxPixels {
			break
		}
	}
	return res
}

// Counts returns the lifetime enqueue, dequeue and successful upload counts.
func (q *Queue[T]) Counts() (enqueued, dequeued, performed uint64) {
	return q.enqueued.Load(), q.dequeued.Load(), q.performed.Load()
}
