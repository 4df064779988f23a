// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package headless

import (
	"errors"
	"image"

	"github.com/gogpu/gfx/backend"
)

// Op identifies a recorded command.
type Op uint8

// Recorded command kinds.
const (
	OpSetRenderTarget Op = iota + 1
	OpClear
	OpSetViewport
	OpSetScissor
	OpSetPipeline
	OpSetVertexBuffer
	OpSetResourceSet
	OpDraw
)

var opNames = map[Op]string{
	OpSetRenderTarget: "SetRenderTarget",
	OpClear:           "Clear",
	OpSetViewport:     "SetViewport",
	OpSetScissor:      "SetScissor",
	OpSetPipeline:     "SetPipeline",
	OpSetVertexBuffer: "SetVertexBuffer",
	OpSetResourceSet:  "SetResourceSet",
	OpDraw:            "Draw",
}

// String returns the command name.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "Unknown"
}

// Command is one recorded encoder call.
type Command struct {
	Op Op

	// Rect is the viewport or scissor rectangle.
	Rect image.Rectangle

	// Clear is set for OpClear.
	Clear backend.ClearInfo

	// Label names the bound resource (target, pipeline, buffer, set).
	Label string

	// Group is the resource set index for OpSetResourceSet.
	Group uint32

	// First and Count describe an OpDraw.
	First, Count uint32

	// Pipeline is the pipeline bound when an OpDraw was recorded.
	Pipeline *Pipeline

	// Sets are the resource sets bound when an OpDraw was recorded.
	Sets []*ResourceSet
}

var errFrameFinished = errors.New("headless: frame already finished")

type encoder struct {
	dev           *Device
	width, height uint32
	commands      []Command
	pipeline      *Pipeline
	sets          []*ResourceSet
	finished      bool
}

var _ backend.Encoder = (*encoder)(nil)

func (e *encoder) record(c Command) {
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	if e.finished {
		return
	}
	e.commands = append(e.commands, c)
}

func (e *encoder) SetRenderTarget(color, depth backend.Texture) {
	label := "backbuffer"
	if color != nil {
		label = color.Label()
	}
	e.pipeline = nil
	e.sets = nil
	e.record(Command{Op: OpSetRenderTarget, Label: label})
}

func (e *encoder) Clear(info backend.ClearInfo) {
	e.pipeline = nil
	e.sets = nil
	e.record(Command{Op: OpClear, Clear: info})
}

func (e *encoder) SetViewport(r image.Rectangle) {
	e.record(Command{Op: OpSetViewport, Rect: r})
}

func (e *encoder) SetScissor(r image.Rectangle) {
	e.record(Command{Op: OpSetScissor, Rect: r})
}

func (e *encoder) SetPipeline(p backend.Pipeline) {
	pl, _ := p.(*Pipeline)
	e.pipeline = pl
	e.record(Command{Op: OpSetPipeline, Label: p.Label(), Pipeline: pl})
}

func (e *encoder) SetVertexBuffer(buf backend.Buffer) {
	e.record(Command{Op: OpSetVertexBuffer, Label: buf.Label()})
}

func (e *encoder) SetResourceSet(group uint32, set backend.ResourceSet) {
	rs, _ := set.(*ResourceSet)
	for uint32(len(e.sets)) <= group {
		e.sets = append(e.sets, nil)
	}
	e.sets[group] = rs
	e.record(Command{Op: OpSetResourceSet, Group: group, Label: set.Label()})
}

func (e *encoder) Draw(first, count uint32) {
	e.record(Command{
		Op:       OpDraw,
		First:    first,
		Count:    count,
		Pipeline: e.pipeline,
		Sets:     append([]*ResourceSet(nil), e.sets...),
	})
}

func (e *encoder) Finish() error {
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	if e.finished {
		return errFrameFinished
	}
	e.finished = true
	if e.dev.active == e {
		e.dev.active = nil
	}
	if err := e.dev.takeFailure("Finish"); err != nil {
		return err
	}
	e.dev.frames = append(e.dev.frames, Frame{Width: e.width, Height: e.height, Commands: e.commands})
	return nil
}

// Draws returns the OpDraw commands of f.
func (f Frame) Draws() []Command {
	var out []Command
	for _, c := range f.Commands {
		if c.Op == OpDraw {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many commands of kind op f contains.
func (f Frame) Count(op Op) int {
	n := 0
	for _, c := range f.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}
