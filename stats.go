// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stats is a snapshot of renderer counters. All counters are cumulative
// since the renderer was created.
type Stats struct {
	Frames    uint64
	DrawCalls uint64

	PipelinesCreated  uint64
	PipelineCacheHits uint64

	TextureUploadsQueued    uint64
	TextureUploadsDequeued  uint64
	TextureUploadsPerformed uint64

	VertexBufferBinds uint64
	TextureBinds      uint64
	ShaderBinds       uint64

	// VertexBuffersFreed counts buffers released by the staleness sweep.
	VertexBuffersFreed uint64

	DisposalsExecuted uint64
}

var statsPrinter = message.NewPrinter(language.English)

// String formats the counters with digit grouping.
func (s Stats) String() string {
	return statsPrinter.Sprintf(
		"frames=%d draws=%d pipelines=%d (hits %d) uploads queued=%d dequeued=%d performed=%d binds vb=%d tex=%d shader=%d vb freed=%d disposals=%d",
		s.Frames, s.DrawCalls,
		s.PipelinesCreated, s.PipelineCacheHits,
		s.TextureUploadsQueued, s.TextureUploadsDequeued, s.TextureUploadsPerformed,
		s.VertexBufferBinds, s.TextureBinds, s.ShaderBinds,
		s.VertexBuffersFreed, s.DisposalsExecuted,
	)
}

// counters are the live atomic counterparts of Stats.
type counters struct {
	frames             atomic.Uint64
	drawCalls          atomic.Uint64
	pipelinesCreated   atomic.Uint64
	pipelineHits       atomic.Uint64
	vertexBufferBinds  atomic.Uint64
	textureBinds       atomic.Uint64
	shaderBinds        atomic.Uint64
	vertexBuffersFreed atomic.Uint64
}

// Stats returns a snapshot of the renderer counters. It is safe to call from
// any goroutine.
func (r *Renderer) Stats() Stats {
	queued, dequeued, performed := r.uploads.Counts()
	_, executed := r.disposals.Counts()
	return Stats{
		Frames:                  r.counters.frames.Load(),
		DrawCalls:               r.counters.drawCalls.Load(),
		PipelinesCreated:        r.counters.pipelinesCreated.Load(),
		PipelineCacheHits:       r.counters.pipelineHits.Load(),
		TextureUploadsQueued:    queued,
		TextureUploadsDequeued:  dequeued,
		TextureUploadsPerformed: performed,
		VertexBufferBinds:       r.counters.vertexBufferBinds.Load(),
		TextureBinds:            r.counters.textureBinds.Load(),
		ShaderBinds:             r.counters.shaderBinds.Load(),
		VertexBuffersFreed:      r.counters.vertexBuffersFreed.Load(),
		DisposalsExecuted:       executed,
	}
}
