// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"github.com/gogpu/gputypes"
)

// VertexBatch accumulates vertices and draws them in as few calls as
// possible.
//
// Vertices are written linearly into a set of vertex buffers that starts
// over at the first buffer every frame, so a buffer region is never
// rewritten within a frame while a draw still reads it. Pending vertices
// are drawn when the batch fills a buffer, when Draw is called, and before
// any renderer state change (shader, texture, uniform, blend or stack
// push/pop).
type VertexBatch[T Vertex] struct {
	r          *Renderer
	size       int
	maxBuffers int
	topology   gputypes.PrimitiveTopology

	buffers   []*VertexBuffer[T]
	current   int
	index     int
	drawStart int
}

// NewVertexBatch creates a batch of vertex buffers holding size vertices
// each. maxBuffers is the number of buffers a frame is expected to fill; a
// frame that needs more grows the set and logs a warning.
func NewVertexBatch[T Vertex](r *Renderer, size, maxBuffers int, topology gputypes.PrimitiveTopology) *VertexBatch[T] {
	b := &VertexBatch[T]{
		r:          r,
		size:       max(size, 1),
		maxBuffers: max(maxBuffers, 1),
		topology:   topology,
	}
	r.batches.add(weakRef(b, func(v *VertexBatch[T]) batchRef { return v }))
	return b
}

// Add appends v, drawing the pending vertices first if the current buffer
// is full.
func (b *VertexBatch[T]) Add(v T) error {
	defer b.r.enter()()
	if b.r.activeBatch != batchFlusher(b) {
		b.r.flushBatch()
		b.r.activeBatch = b
	}
	if b.index == b.size {
		if err := b.flush(); err != nil {
			return err
		}
		b.advance()
	}
	b.buffer().SetVertex(b.index, v)
	b.index++
	return nil
}

// Draw draws the pending vertices.
func (b *VertexBatch[T]) Draw() error {
	defer b.r.enter()()
	if b.r.activeBatch == batchFlusher(b) {
		b.r.activeBatch = nil
	}
	return b.flush()
}

// Pending returns the number of vertices added but not yet drawn.
func (b *VertexBatch[T]) Pending() int {
	return b.index - b.drawStart
}

// Buffers returns the number of vertex buffers allocated by the batch.
func (b *VertexBatch[T]) Buffers() int {
	return len(b.buffers)
}

func (b *VertexBatch[T]) buffer() *VertexBuffer[T] {
	if b.current == len(b.buffers) {
		b.buffers = append(b.buffers, NewVertexBuffer[T](b.r, b.size, b.topology))
	}
	return b.buffers[b.current]
}

func (b *VertexBatch[T]) advance() {
	b.current++
	b.index, b.drawStart = 0, 0
	if b.current == len(b.buffers) && b.current >= b.maxBuffers {
		Logger().Warn("gfx: vertex batch exceeded its buffer limit",
			"limit", b.maxBuffers, "buffers", b.current+1)
	}
}

func (b *VertexBatch[T]) flush() error {
	if b.index == b.drawStart {
		return nil
	}
	start, end := b.drawStart, b.index
	b.drawStart = b.index

	buf := b.buffers[b.current]
	if err := buf.updateRange(start, end); err != nil {
		return err
	}
	return buf.drawRange(start, end)
}

func (b *VertexBatch[T]) resetCounters() {
	b.current, b.index, b.drawStart = 0, 0, 0
}

// Dispose disposes every buffer of the batch.
func (b *VertexBatch[T]) Dispose() {
	if b.r.activeBatch == batchFlusher(b) {
		b.r.activeBatch = nil
	}
	for _, vb := range b.buffers {
		vb.Dispose()
	}
	b.buffers = nil
	b.resetCounters()
}
