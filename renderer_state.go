// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/gogpu/gfx/state"
	"github.com/gogpu/gputypes"
)

// RectF is a float32 rectangle in pixels.
type RectF struct {
	X, Y          float32
	Width, Height float32
}

// RectFromImage converts an integer rectangle.
func RectFromImage(r image.Rectangle) RectF {
	return RectF{
		X:      float32(r.Min.X),
		Y:      float32(r.Min.Y),
		Width:  float32(r.Dx()),
		Height: float32(r.Dy()),
	}
}

// AABB returns the smallest integer rectangle covering r.
func (r RectF) AABB() image.Rectangle {
	return image.Rect(
		int(math32.Floor(r.X)),
		int(math32.Floor(r.Y)),
		int(math32.Ceil(r.X+r.Width)),
		int(math32.Ceil(r.Y+r.Height)),
	)
}

// Ortho returns the column-major orthographic projection mapping r to clip
// space, with Y pointing down.
func (r RectF) Ortho() [16]float32 {
	left, right := r.X, r.X+r.Width
	top, bottom := r.Y, r.Y+r.Height

	var m [16]float32
	if right == left || bottom == top {
		m[0], m[5], m[10], m[15] = 1, 1, 1, 1
		return m
	}
	m[0] = 2 / (right - left)
	m[5] = -2 / (bottom - top)
	m[10] = 1
	m[12] = -(right + left) / (right - left)
	m[13] = (bottom + top) / (bottom - top)
	m[15] = 1
	return m
}

// MaskingInfo describes a rounded-rectangle mask applied by the shaders.
type MaskingInfo struct {
	// ScreenSpaceAABB bounds the mask on screen; it is also pushed as the
	// scissor rectangle.
	ScreenSpaceAABB image.Rectangle

	// MaskingRect is the mask rectangle in pixels.
	MaskingRect RectF

	CornerRadius float32

	// CornerExponent shapes the corners: 2 is circular, larger values
	// approach a square.
	CornerExponent float32

	BorderThickness float32
	BorderColour    [4]float32

	// BlendRange is the width of the antialiased mask edge.
	BlendRange float32

	AlphaExponent float32
}

// DepthInfo describes the depth test.
type DepthInfo struct {
	DepthTest  bool
	WriteDepth bool
	Function   gputypes.CompareFunction
}

// DefaultDepthInfo disables depth testing and writes.
func DefaultDepthInfo() DepthInfo {
	return DepthInfo{Function: gputypes.CompareFunctionLess}
}

// GlobalUniforms is the uniform block bound at group 0 of every shader.
type GlobalUniforms struct {
	Projection [16]float32

	// MaskingRect is x, y, width, height.
	MaskingRect  [4]float32
	BorderColour [4]float32

	// Masking is corner radius, corner exponent, border thickness and a
	// masking flag (0 or 1).
	Masking [4]float32

	// Params is alpha exponent, blend range and two unused lanes.
	Params [4]float32
}

func defaultMasking(size image.Rectangle) MaskingInfo {
	return MaskingInfo{
		ScreenSpaceAABB: size,
		MaskingRect:     RectFromImage(size),
		CornerExponent:  2,
		BlendRange:      1,
		AlphaExponent:   1,
	}
}

// stacks holds the nested render state.
type stacks struct {
	viewport      *state.Stack[image.Rectangle]
	ortho         *state.Stack[RectF]
	scissor       *state.Stack[image.Rectangle]
	scissorState  *state.Stack[bool]
	scissorOffset *state.Stack[image.Point]
	masking       *state.Stack[MaskingInfo]
	depth         *state.Stack[DepthInfo]
}

func (r *Renderer) initStacks() {
	full := image.Rectangle{}
	globals := func() { r.updateGlobals() }

	r.stacks = stacks{
		viewport:      state.New(full, nil),
		ortho:         state.New(RectF{}, func(RectF, bool) { globals() }),
		scissor:       state.New(full, nil),
		scissorState:  state.New(true, nil),
		scissorOffset: state.New(image.Point{}, nil),
		masking:       state.New(defaultMasking(full), func(MaskingInfo, bool) { globals() }),
		depth:         state.New(DefaultDepthInfo(), nil),
	}
}

// resetStacks clears every stack and pushes the frame defaults for a window
// of the given size.
func (r *Renderer) resetStacks(size image.Rectangle) {
	r.stacks.viewport.Reset(size)
	r.stacks.ortho.Reset(RectFromImage(size))
	r.stacks.scissor.Reset(size)
	r.stacks.scissorState.Reset(true)
	r.stacks.scissorOffset.Reset(image.Point{})
	r.stacks.masking.Reset(defaultMasking(size))
	r.stacks.depth.Reset(DefaultDepthInfo())
}

func (r *Renderer) updateGlobals() {
	if r.globals == nil {
		return
	}
	m := r.stacks.masking.Value()
	g := GlobalUniforms{
		Projection:   r.stacks.ortho.Value().Ortho(),
		MaskingRect:  [4]float32{m.MaskingRect.X, m.MaskingRect.Y, m.MaskingRect.Width, m.MaskingRect.Height},
		BorderColour: m.BorderColour,
		Masking:      [4]float32{m.CornerRadius, m.CornerExponent, m.BorderThickness, 0},
		Params:       [4]float32{m.AlphaExponent, m.BlendRange, 0, 0},
	}
	if r.stacks.masking.Depth() > 1 {
		g.Masking[3] = 1
	}
	r.globals.SetData(g)
}

// PushViewport sets the viewport rectangle in target pixels.
func (r *Renderer) PushViewport(v image.Rectangle) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.viewport.Push(v)
}

// PopViewport restores the previous viewport. It panics when only the frame
// default remains.
func (r *Renderer) PopViewport() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.viewport.MustPop()
}

// PushOrtho sets the rectangle mapped onto the viewport by the projection.
func (r *Renderer) PushOrtho(o RectF) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.ortho.Push(o)
}

// PopOrtho restores the previous projection.
func (r *Renderer) PopOrtho() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.ortho.MustPop()
}

// PushScissor sets the scissor rectangle, before the scissor offset is
// applied.
func (r *Renderer) PushScissor(s image.Rectangle) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissor.Push(s)
}

// PopScissor restores the previous scissor rectangle.
func (r *Renderer) PopScissor() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissor.MustPop()
}

// PushScissorState enables or disables the scissor test.
func (r *Renderer) PushScissorState(enabled bool) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissorState.Push(enabled)
}

// PopScissorState restores the previous scissor test state.
func (r *Renderer) PopScissorState() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissorState.MustPop()
}

// PushScissorOffset translates subsequent scissor rectangles.
func (r *Renderer) PushScissorOffset(offset image.Point) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissorOffset.Push(offset)
}

// PopScissorOffset restores the previous scissor offset.
func (r *Renderer) PopScissorOffset() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.scissorOffset.MustPop()
}

// PushMaskingInfo applies a mask and scissors to its bounds. Unless
// overwritePrevious is set, the mask bounds are intersected with the
// enclosing mask.
func (r *Renderer) PushMaskingInfo(info MaskingInfo, overwritePrevious bool) {
	defer r.enter()()
	r.flushBatch()
	if !overwritePrevious {
		info.ScreenSpaceAABB = info.ScreenSpaceAABB.Intersect(r.stacks.masking.Value().ScreenSpaceAABB)
	}
	r.stacks.masking.Push(info)
	r.stacks.scissor.Push(info.ScreenSpaceAABB)
}

// PopMaskingInfo removes the innermost mask and its scissor.
func (r *Renderer) PopMaskingInfo() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.masking.MustPop()
	r.stacks.scissor.MustPop()
}

// PushDepthInfo sets the depth test state.
func (r *Renderer) PushDepthInfo(d DepthInfo) {
	defer r.enter()()
	r.flushBatch()
	r.stacks.depth.Push(d)
}

// PopDepthInfo restores the previous depth test state.
func (r *Renderer) PopDepthInfo() {
	defer r.enter()()
	r.flushBatch()
	r.stacks.depth.MustPop()
}

// Viewport returns the current viewport.
func (r *Renderer) Viewport() image.Rectangle { return r.stacks.viewport.Value() }

// Ortho returns the current projection rectangle.
func (r *Renderer) Ortho() RectF { return r.stacks.ortho.Value() }

// Scissor returns the current scissor rectangle before offset.
func (r *Renderer) Scissor() image.Rectangle { return r.stacks.scissor.Value() }

// ScissorEnabled reports whether the scissor test is enabled.
func (r *Renderer) ScissorEnabled() bool { return r.stacks.scissorState.Value() }

// ScissorOffset returns the current scissor offset.
func (r *Renderer) ScissorOffset() image.Point { return r.stacks.scissorOffset.Value() }

// MaskingInfo returns the innermost mask.
func (r *Renderer) MaskingInfo() MaskingInfo { return r.stacks.masking.Value() }

// DepthInfo returns the current depth state.
func (r *Renderer) DepthInfo() DepthInfo { return r.stacks.depth.Value() }

// SetBlend sets the blend state of subsequent draws.
func (r *Renderer) SetBlend(b BlendState) {
	defer r.enter()()
	if r.blend == b {
		return
	}
	r.flushBatch()
	r.blend = b
}

// SetDrawDepth sets the depth tag stored with vertices written from now on.
func (r *Renderer) SetDrawDepth(depth float32) {
	r.drawDepth = depth
}

// DrawDepth returns the current draw depth.
func (r *Renderer) DrawDepth() float32 { return r.drawDepth }

// effectiveScissor is the scissor rectangle sent to the backend: the
// offset scissor clipped to the target, or the whole target when the
// scissor test is disabled.
func (r *Renderer) effectiveScissor() image.Rectangle {
	target := r.targetBounds()
	if !r.stacks.scissorState.Value() {
		return target
	}
	return r.stacks.scissor.Value().Add(r.stacks.scissorOffset.Value()).Intersect(target)
}

// applyState sends viewport and scissor changes to the encoder.
func (r *Renderer) applyState() {
	if vp := r.stacks.viewport.Value(); !r.applied.viewportValid || vp != r.applied.viewport {
		r.encoder.SetViewport(vp)
		r.applied.viewport = vp
	}
	r.applied.viewportValid = true

	if sc := r.effectiveScissor(); !r.applied.scissorValid || sc != r.applied.scissor {
		r.encoder.SetScissor(sc)
		r.applied.scissor = sc
	}
	r.applied.scissorValid = true
}
