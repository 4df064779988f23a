// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var errFrameFinished = errors.New("wgpu: frame already finished")

// target is a set of render pass attachments.
type target struct {
	color         hal.TextureView
	depth         hal.TextureView
	width, height uint32
}

// encoder records one frame into a HAL command encoder.
//
// State setters only record what is bound. The render pass is begun by the
// first Draw after a target change or clear, and the recorded state is
// replayed into it before drawing.
type encoder struct {
	dev           *Device
	cmd           hal.CommandEncoder
	width, height uint32

	backbuffer target
	target     target
	pass       hal.RenderPassEncoder
	clear      *backend.ClearInfo

	viewport image.Rectangle
	scissor  image.Rectangle
	pipeline *Pipeline
	vertices *Buffer
	sets     []*ResourceSet

	// dirty is set for state that has not reached the current pass.
	dirtyViewport bool
	dirtyScissor  bool
	dirtyPipeline bool
	dirtyVertices bool
	dirtySets     []bool

	draws    int
	err      error
	finished bool
}

var _ backend.Encoder = (*encoder)(nil)

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) endPass() {
	if e.pass != nil {
		e.pass.End()
		e.pass = nil
	}
}

// resetBindings drops bound pipeline and resources; callers bind again
// after a target change or clear.
func (e *encoder) resetBindings() {
	e.pipeline = nil
	e.vertices = nil
	clear(e.sets)
	e.sets = e.sets[:0]
	e.dirtySets = e.dirtySets[:0]
}

func (e *encoder) SetRenderTarget(color, depth backend.Texture) {
	if e.finished {
		return
	}
	e.endPass()
	e.resetBindings()
	e.clear = nil

	if color == nil {
		e.target = e.backbuffer
		return
	}
	c, err := own[*Texture](e.dev, color)
	if err != nil {
		e.fail(err)
		return
	}
	t := target{color: c.view, width: c.width, height: c.height}
	if depth != nil {
		dt, err := own[*Texture](e.dev, depth)
		if err != nil {
			e.fail(err)
			return
		}
		t.depth = dt.view
	}
	e.target = t
}

func (e *encoder) Clear(info backend.ClearInfo) {
	if e.finished {
		return
	}
	e.endPass()
	e.resetBindings()
	e.clear = &info
}

func (e *encoder) SetViewport(r image.Rectangle) {
	e.viewport = r
	e.dirtyViewport = true
}

func (e *encoder) SetScissor(r image.Rectangle) {
	e.scissor = r
	e.dirtyScissor = true
}

func (e *encoder) SetPipeline(p backend.Pipeline) {
	pl, err := own[*Pipeline](e.dev, p)
	if err != nil {
		e.fail(err)
		return
	}
	if pl.scissor != e.pipeline.scissorEnabled() {
		e.dirtyScissor = true
	}
	e.pipeline = pl
	e.dirtyPipeline = true
}

func (e *encoder) SetVertexBuffer(buf backend.Buffer) {
	b, err := own[*Buffer](e.dev, buf)
	if err != nil {
		e.fail(err)
		return
	}
	e.vertices = b
	e.dirtyVertices = true
}

func (e *encoder) SetResourceSet(group uint32, set backend.ResourceSet) {
	rs, err := own[*ResourceSet](e.dev, set)
	if err != nil {
		e.fail(err)
		return
	}
	for uint32(len(e.sets)) <= group {
		e.sets = append(e.sets, nil)
		e.dirtySets = append(e.dirtySets, false)
	}
	e.sets[group] = rs
	e.dirtySets[group] = true
}

func (p *Pipeline) scissorEnabled() bool { return p != nil && p.scissor }

// beginPass opens a render pass on the current target, clearing the
// aspects requested by the pending clear and loading the rest.
func (e *encoder) beginPass() {
	loadOp := func(cleared bool) gputypes.LoadOp {
		if cleared {
			return gputypes.LoadOpClear
		}
		return gputypes.LoadOpLoad
	}

	var info backend.ClearInfo
	if e.clear != nil {
		info = *e.clear
		e.clear = nil
	}
	desc := &hal.RenderPassDescriptor{
		Label: "gfx pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       e.target.color,
			LoadOp:     loadOp(info.ClearColour),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: info.Colour,
		}},
	}
	if e.target.depth != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              e.target.depth,
			DepthLoadOp:       loadOp(info.ClearDepth),
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   info.Depth,
			StencilLoadOp:     loadOp(info.ClearStencil),
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: info.Stencil,
		}
	}
	e.pass = e.cmd.BeginRenderPass(desc)

	e.dirtyViewport = true
	e.dirtyScissor = true
	e.dirtyPipeline = e.pipeline != nil
	e.dirtyVertices = e.vertices != nil
	for i := range e.dirtySets {
		e.dirtySets[i] = e.sets[i] != nil
	}
}

// flushState replays state that has not reached the current pass.
func (e *encoder) flushState() {
	if e.dirtyViewport {
		v := e.viewport
		if v.Empty() {
			v = image.Rect(0, 0, int(e.target.width), int(e.target.height))
		}
		e.pass.SetViewport(float32(v.Min.X), float32(v.Min.Y), float32(v.Dx()), float32(v.Dy()), 0, 1)
		e.dirtyViewport = false
	}
	if e.dirtyScissor {
		full := image.Rect(0, 0, int(e.target.width), int(e.target.height))
		s := full
		if e.pipeline.scissorEnabled() {
			s = e.scissor.Intersect(full)
		}
		e.pass.SetScissorRect(uint32(s.Min.X), uint32(s.Min.Y), uint32(s.Dx()), uint32(s.Dy()))
		e.dirtyScissor = false
	}
	if e.dirtyPipeline {
		e.pass.SetPipeline(e.pipeline.pipeline)
		e.dirtyPipeline = false
	}
	if e.dirtyVertices {
		e.pass.SetVertexBuffer(0, e.vertices.buf, 0)
		e.dirtyVertices = false
	}
	for i, dirty := range e.dirtySets {
		if dirty {
			e.pass.SetBindGroup(uint32(i), e.sets[i].group, nil)
			e.dirtySets[i] = false
		}
	}
}

func (e *encoder) Draw(first, count uint32) {
	if e.finished || e.err != nil || count == 0 {
		return
	}
	if e.pipeline == nil {
		e.fail(errors.New("wgpu: draw without pipeline"))
		return
	}
	if e.target.color == nil {
		e.fail(errors.New("wgpu: draw without color target"))
		return
	}
	if e.pass == nil {
		e.beginPass()
	}
	e.flushState()
	e.pass.Draw(count, 1, first, 0)
	e.draws++
}

// Finish ends the frame, runs a pending clear that no draw consumed and
// submits the command buffer.
func (e *encoder) Finish() error {
	if e.finished {
		return errFrameFinished
	}
	e.finished = true

	if e.pass == nil && e.clear != nil && e.target.color != nil {
		e.beginPass()
	}
	e.endPass()

	cmdBuf, err := e.cmd.EndEncoding()

	d := e.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.recording = false
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	if e.err != nil {
		d.recording = false
		d.device.FreeCommandBuffer(cmdBuf)
		return e.err
	}
	if err := d.submit(cmdBuf); err != nil {
		return err
	}
	d.log().Debug("wgpu: frame submitted", "frame", d.submitted, "draws", e.draws)
	return nil
}
