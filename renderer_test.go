// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"errors"
	"image"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/backend/headless"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gfx/state"
	"github.com/gogpu/gputypes"
)

func newTestRenderer(t *testing.T, opts ...Option) (*Renderer, *headless.Device) {
	t.Helper()
	dev := headless.New()
	opts = append([]Option{WithShaderValidation(false)}, opts...)
	r, err := New(dev, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, dev
}

// recoverError runs fn and returns the error it panicked with.
func recoverError(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		rec := recover()
		require.NotNil(t, rec, "expected a panic")
		e, ok := rec.(error)
		require.True(t, ok, "panic value %v is not an error", rec)
		err = e
	}()
	fn()
	return nil
}

func texturedQuad(r *Renderer) *VertexBuffer[TexturedVertex2D] {
	vb := NewVertexBuffer[TexturedVertex2D](r, 6, gputypes.PrimitiveTopologyTriangleList)
	for i := range 6 {
		vb.SetVertex(i, TexturedVertex2D{
			Position: [2]float32{float32(i), float32(i)},
			Colour:   [4]float32{1, 1, 1, 1},
		})
	}
	return vb
}

func mustShader(t *testing.T, r *Renderer, src ShaderSource) *Shader {
	t.Helper()
	s, err := r.NewShader(src)
	require.NoError(t, err)
	return s
}

func lastFrame(t *testing.T, dev *headless.Device) headless.Frame {
	t.Helper()
	f, ok := dev.LastFrame()
	require.True(t, ok, "no frame submitted")
	return f
}

func TestNewNilDevice(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilDevice)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VertexBufferSweepInterval = 0
	_, err := New(headless.New(), WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewWithBackend(t *testing.T) {
	r, err := NewWithBackend(backend.BackendHeadless, WithShaderValidation(false))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, backend.BackendHeadless, r.Device().Name())

	_, err = NewWithBackend("no-such-backend")
	assert.Error(t, err)
}

func TestResetBeginsFrameWithClear(t *testing.T) {
	r, dev := newTestRenderer(t)

	require.NoError(t, r.Reset(800, 600))
	assert.True(t, r.FrameActive())
	assert.Equal(t, uint64(1), r.FrameID())
	assert.Equal(t, image.Rect(0, 0, 800, 600), r.Size())

	cmds := dev.PendingCommands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, headless.OpClear, cmds[0].Op)
	assert.True(t, cmds[0].Clear.ClearColour)
	assert.True(t, cmds[0].Clear.ClearDepth)
	assert.Equal(t, float32(1), cmds[0].Clear.Depth)

	assert.Equal(t, image.Rect(0, 0, 800, 600), r.Viewport())
	assert.Equal(t, image.Rect(0, 0, 800, 600), r.Scissor())
	assert.True(t, r.ScissorEnabled())
	assert.Equal(t, RectF{Width: 800, Height: 600}, r.Ortho())
	assert.Equal(t, DefaultDepthInfo(), r.DepthInfo())

	require.NoError(t, r.Reset(800, 600))
	assert.Len(t, dev.Frames(), 1, "second Reset finishes the first frame")
	assert.Equal(t, uint64(2), r.Stats().Frames)
}

func TestResetNegativeSize(t *testing.T) {
	r, _ := newTestRenderer(t)
	err := r.Reset(-1, 10)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.False(t, r.FrameActive())
}

func TestResetPanicsOnUnbalancedShader(t *testing.T) {
	r, _ := newTestRenderer(t)
	s := mustShader(t, r, ColouredShaderSource())

	require.NoError(t, r.Reset(100, 100))
	require.NoError(t, r.BindShader(s))

	err := recoverError(t, func() { _ = r.Reset(100, 100) })
	assert.ErrorIs(t, err, ErrUnbalancedState)
	assert.ErrorIs(t, err, ErrPrecondition)

	require.NoError(t, r.UnbindShader(s))
	assert.NoError(t, r.Reset(100, 100))
}

func TestResetPanicsOnUnbalancedFrameBuffer(t *testing.T) {
	r, _ := newTestRenderer(t)
	fb := r.NewFrameBuffer(32, 32, false)

	require.NoError(t, r.Reset(100, 100))
	require.NoError(t, r.BindFrameBuffer(fb))

	err := recoverError(t, func() { _ = r.Reset(100, 100) })
	assert.ErrorIs(t, err, ErrUnbalancedState)
}

func TestFinishFrameWithoutFrame(t *testing.T) {
	r, _ := newTestRenderer(t)
	assert.ErrorIs(t, r.FinishFrame(), ErrNoFrame)
	assert.ErrorIs(t, r.Clear(ClearInfo{ClearColour: true}), ErrNoFrame)
}

func TestFinishFrameSubmits(t *testing.T) {
	r, dev := newTestRenderer(t)
	require.NoError(t, r.Reset(64, 32))
	require.NoError(t, r.FinishFrame())
	assert.False(t, r.FrameActive())

	f := lastFrame(t, dev)
	assert.Equal(t, uint32(64), f.Width)
	assert.Equal(t, uint32(32), f.Height)
}

func TestDrawPreconditions(t *testing.T) {
	r, _ := newTestRenderer(t)
	tri := gputypes.PrimitiveTopologyTriangleList

	assert.ErrorIs(t, r.DrawVertices(tri, 0, 3), ErrNoFrame)

	require.NoError(t, r.Reset(100, 100))
	assert.ErrorIs(t, r.DrawVertices(tri, 0, 3), ErrNoShader)
	assert.ErrorIs(t, r.DrawVertices(tri, -1, 3), ErrIndexOutOfRange)
	assert.NoError(t, r.DrawVertices(tri, 0, 0), "empty draws are a no-op")

	s := mustShader(t, r, TexturedShaderSource())
	require.NoError(t, r.BindShader(s))
	assert.ErrorIs(t, r.DrawVertices(tri, 0, 3), ErrNoVertexBuffer)
	require.NoError(t, r.UnbindShader(s))
}

func TestDrawBindsGlobalsAndWhitePixel(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	require.NoError(t, r.Reset(800, 600))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 6))
	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	draws := lastFrame(t, dev).Draws()
	require.Len(t, draws, 1)
	d := draws[0]
	assert.Equal(t, uint32(0), d.First)
	assert.Equal(t, uint32(6), d.Count)

	require.Len(t, d.Sets, 2)
	assert.Equal(t, pipeline.ResourceUniform, d.Sets[0].Kind())
	assert.Equal(t, "globals #0", d.Sets[0].Label())
	assert.Equal(t, pipeline.ResourceTexture, d.Sets[1].Kind())
	assert.Equal(t, "white pixel", d.Sets[1].Label())

	require.NotNil(t, d.Pipeline)
	desc := d.Pipeline.Description()
	assert.Equal(t, "textured", desc.Label)
	assert.Equal(t, s.ID(), desc.Shader)
	assert.Equal(t, VertexLayoutOf[TexturedVertex2D](), desc.VertexLayout)
	assert.Equal(t, pipeline.AlphaBlend(), desc.Blend)
	assert.True(t, desc.Rasterizer.ScissorTest)
	assert.True(t, d.Sets[0].Buffer() != nil)
	runtime.KeepAlive(vb)
}

func TestPipelineCacheReuse(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	for range 3 {
		require.NoError(t, r.Reset(100, 100))
		require.NoError(t, r.BindShader(s))
		require.NoError(t, vb.DrawRange(0, 3))
		require.NoError(t, vb.DrawRange(3, 6))
		require.NoError(t, r.UnbindShader(s))
	}
	require.NoError(t, r.FinishFrame())

	st := r.Stats()
	assert.Equal(t, uint64(1), st.PipelinesCreated)
	assert.Equal(t, uint64(5), st.PipelineCacheHits)
	assert.Equal(t, uint64(6), st.DrawCalls)
	assert.Equal(t, 1, dev.Live().Pipelines)

	r.SetBlend(pipeline.Opaque())
	require.NoError(t, r.Reset(100, 100))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	assert.Equal(t, uint64(1), r.Stats().PipelinesCreated, "Reset restores alpha blending")

	r.SetBlend(pipeline.Opaque())
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	assert.Equal(t, uint64(2), r.Stats().PipelinesCreated)
}

func TestStateSentOnce(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	require.NoError(t, r.Reset(200, 100))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, vb.DrawRange(3, 6))

	r.PushViewport(image.Rect(0, 0, 200, 100))
	require.NoError(t, vb.DrawRange(0, 3))
	r.PopViewport()

	r.PushViewport(image.Rect(0, 0, 50, 50))
	require.NoError(t, vb.DrawRange(0, 3))
	r.PopViewport()
	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	f := lastFrame(t, dev)
	assert.Equal(t, 2, f.Count(headless.OpSetViewport), "an equal viewport is not resent")
	assert.Equal(t, 1, f.Count(headless.OpSetPipeline))
	assert.Equal(t, 1, f.Count(headless.OpSetVertexBuffer))
	assert.Equal(t, 4, f.Count(headless.OpDraw))
}

func TestClearInvalidatesAppliedState(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	require.NoError(t, r.Reset(100, 100))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.Clear(ClearInfo{ClearColour: true}))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	f := lastFrame(t, dev)
	assert.Equal(t, 2, f.Count(headless.OpClear))
	assert.Equal(t, 2, f.Count(headless.OpSetPipeline))
	assert.Equal(t, 2, f.Count(headless.OpSetViewport))
	for _, d := range f.Draws() {
		assert.Len(t, d.Sets, 2, "sets are rebound after a clear")
	}
}

func TestScissorOffsetAndState(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	require.NoError(t, r.Reset(200, 200))
	require.NoError(t, r.BindShader(s))

	r.PushScissor(image.Rect(10, 10, 50, 50))
	r.PushScissorOffset(image.Pt(5, 5))
	require.NoError(t, vb.DrawRange(0, 3))
	assert.Equal(t, image.Rect(15, 15, 55, 55), r.effectiveScissor())

	r.PushScissorState(false)
	require.NoError(t, vb.DrawRange(0, 3))
	assert.Equal(t, image.Rect(0, 0, 200, 200), r.effectiveScissor())
	r.PopScissorState()
	r.PopScissorOffset()
	r.PopScissor()

	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	var scissors []image.Rectangle
	for _, c := range lastFrame(t, dev).Commands {
		if c.Op == headless.OpSetScissor {
			scissors = append(scissors, c.Rect)
		}
	}
	assert.Equal(t, []image.Rectangle{image.Rect(15, 15, 55, 55), image.Rect(0, 0, 200, 200)}, scissors)

	draws := lastFrame(t, dev).Draws()
	require.Len(t, draws, 2)
	assert.True(t, draws[0].Pipeline.Description().Rasterizer.ScissorTest)
	assert.False(t, draws[1].Pipeline.Description().Rasterizer.ScissorTest)
}

func TestScissorClippedToTarget(t *testing.T) {
	r, _ := newTestRenderer(t)
	require.NoError(t, r.Reset(100, 100))
	r.PushScissor(image.Rect(50, 50, 300, 300))
	assert.Equal(t, image.Rect(50, 50, 100, 100), r.effectiveScissor())
	r.PopScissor()
}

func TestMaskingInfo(t *testing.T) {
	r, _ := newTestRenderer(t)
	require.NoError(t, r.Reset(400, 300))
	assert.Equal(t, float32(0), r.globals.Data().Masking[3])

	outer := MaskingInfo{
		ScreenSpaceAABB: image.Rect(10, 10, 200, 200),
		MaskingRect:     RectF{X: 10, Y: 10, Width: 190, Height: 190},
		CornerRadius:    8,
		CornerExponent:  2,
		BlendRange:      1,
		AlphaExponent:   1,
	}
	r.PushMaskingInfo(outer, false)
	assert.Equal(t, float32(1), r.globals.Data().Masking[3])
	assert.Equal(t, float32(8), r.globals.Data().Masking[0])
	assert.Equal(t, image.Rect(10, 10, 200, 200), r.Scissor())

	inner := outer
	inner.ScreenSpaceAABB = image.Rect(100, 100, 300, 300)
	r.PushMaskingInfo(inner, false)
	assert.Equal(t, image.Rect(100, 100, 200, 200), r.MaskingInfo().ScreenSpaceAABB)
	assert.Equal(t, image.Rect(100, 100, 200, 200), r.Scissor())
	r.PopMaskingInfo()

	r.PushMaskingInfo(inner, true)
	assert.Equal(t, image.Rect(100, 100, 300, 300), r.MaskingInfo().ScreenSpaceAABB)
	r.PopMaskingInfo()

	r.PopMaskingInfo()
	assert.Equal(t, float32(0), r.globals.Data().Masking[3])
	assert.Equal(t, image.Rect(0, 0, 400, 300), r.Scissor())
}

func TestOrthoUpdatesProjection(t *testing.T) {
	r, _ := newTestRenderer(t)
	require.NoError(t, r.Reset(100, 100))
	base := r.globals.Data().Projection

	r.PushOrtho(RectF{Width: 50, Height: 50})
	assert.Equal(t, RectF{Width: 50, Height: 50}.Ortho(), r.globals.Data().Projection)
	r.PopOrtho()
	assert.Equal(t, base, r.globals.Data().Projection)
}

func TestPopLastValuePanics(t *testing.T) {
	r, _ := newTestRenderer(t)
	require.NoError(t, r.Reset(100, 100))

	tests := []struct {
		name string
		pop  func()
	}{
		{"viewport", r.PopViewport},
		{"ortho", r.PopOrtho},
		{"scissor", r.PopScissor},
		{"scissor state", r.PopScissorState},
		{"scissor offset", r.PopScissorOffset},
		{"masking", r.PopMaskingInfo},
		{"depth", r.PopDepthInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recoverError(t, tt.pop)
			assert.ErrorIs(t, err, state.ErrPopLastValue)
		})
	}
}

func TestDepthStateInPipeline(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	require.NoError(t, r.Reset(100, 100))
	require.NoError(t, r.BindShader(s))
	r.PushDepthInfo(DepthInfo{DepthTest: true, WriteDepth: true, Function: gputypes.CompareFunctionLess})
	require.NoError(t, vb.DrawRange(0, 3))
	r.PopDepthInfo()
	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	desc := lastFrame(t, dev).Draws()[0].Pipeline.Description()
	assert.True(t, desc.DepthStencil.DepthTest)
	assert.True(t, desc.DepthStencil.DepthWrite)
	assert.Equal(t, gputypes.CompareFunctionLess, desc.DepthStencil.DepthCompare)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, desc.Output.DepthFormat)
}

func TestUnbindShaderNotCurrent(t *testing.T) {
	r, _ := newTestRenderer(t)
	a := mustShader(t, r, TexturedShaderSource())
	b := mustShader(t, r, ColouredShaderSource())

	require.NoError(t, r.Reset(10, 10))
	require.NoError(t, r.BindShader(a))
	require.NoError(t, r.BindShader(b))
	assert.ErrorIs(t, r.UnbindShader(a), ErrNotBound)
	require.NoError(t, r.UnbindShader(b))
	require.NoError(t, r.UnbindShader(a))
	assert.Equal(t, uint64(3), r.Stats().ShaderBinds)
}

func TestFrameBufferRedirectsDraws(t *testing.T) {
	r, dev := newTestRenderer(t)
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)
	fb := r.NewFrameBuffer(64, 32, true)

	require.NoError(t, r.Reset(800, 600))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, fb.BindTarget())
	assert.Equal(t, image.Rect(0, 0, 64, 32), r.effectiveScissor())
	require.NoError(t, vb.DrawRange(0, 3))

	_, err := fb.Bind(0)
	assert.ErrorIs(t, err, ErrFeedbackLoop)
	assert.ErrorIs(t, fb.Resize(10, 10), ErrPrecondition)

	require.NoError(t, fb.UnbindTarget())
	assert.ErrorIs(t, fb.UnbindTarget(), ErrNotBound)

	changed, err := fb.Bind(0)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	require.NoError(t, r.FinishFrame())

	f := lastFrame(t, dev)
	var targets []string
	for _, c := range f.Commands {
		if c.Op == headless.OpSetRenderTarget {
			targets = append(targets, c.Label)
		}
	}
	assert.Equal(t, []string{"frame buffer 64x32", "backbuffer"}, targets)

	draws := f.Draws()
	require.Len(t, draws, 2)
	offscreen := draws[0].Pipeline.Description()
	assert.Equal(t, []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm}, offscreen.Output.ColorFormats)
	assert.Equal(t, "frame buffer 64x32", draws[1].Sets[1].Label())
	assert.True(t, draws[1].Sets[1].Texture().RenderTarget())
}

func TestFrameBufferRequiresFrame(t *testing.T) {
	r, _ := newTestRenderer(t)
	fb := r.NewFrameBuffer(8, 8, false)
	assert.ErrorIs(t, r.BindFrameBuffer(fb), ErrNoFrame)
}

func TestFrameBufferResize(t *testing.T) {
	r, dev := newTestRenderer(t)
	fb := r.NewFrameBuffer(8, 8, true)

	require.NoError(t, r.Reset(10, 10))
	require.NoError(t, fb.BindTarget())
	require.NoError(t, fb.UnbindTarget())
	live := dev.Live().Textures

	require.NoError(t, fb.Resize(16, 4))
	assert.Equal(t, image.Pt(16, 4), fb.Size())
	assert.Equal(t, live-2, dev.Live().Textures, "colour and depth storage are freed")

	require.NoError(t, fb.BindTarget())
	require.NoError(t, fb.UnbindTarget())
	assert.Equal(t, live, dev.Live().Textures)
}

type blockingDevice struct {
	*headless.Device
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDevice) BeginFrame(width, height uint32) (backend.Encoder, error) {
	d.entered <- struct{}{}
	<-d.release
	return d.Device.BeginFrame(width, height)
}

func TestConcurrentUsePanics(t *testing.T) {
	dev := &blockingDevice{
		Device:  headless.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r, err := New(dev, WithShaderValidation(false))
	require.NoError(t, err)
	defer r.Close()

	done := make(chan error, 1)
	go func() { done <- r.Reset(10, 10) }()
	<-dev.entered

	assert.PanicsWithValue(t, ErrConcurrentUse, func() { _ = r.FinishFrame() })

	close(dev.release)
	require.NoError(t, <-done)
	assert.NoError(t, r.FinishFrame())
}

func TestConcurrentUseAtBindSites(t *testing.T) {
	dev := &blockingDevice{
		Device:  headless.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r, err := New(dev, WithShaderValidation(false))
	require.NoError(t, err)
	defer r.Close()

	s := mustShader(t, r, ColouredShaderSource())
	tex := r.NewTexture(4, 4, DefaultTextureOptions())
	fb := r.NewFrameBuffer(4, 4, false)
	vb := colouredTriangle(r)
	batch := NewVertexBatch[ColouredVertex2D](r, 3, 1, gputypes.PrimitiveTopologyTriangleList)

	done := make(chan error, 1)
	go func() { done <- r.Reset(10, 10) }()
	<-dev.entered

	calls := []struct {
		name string
		fn   func()
	}{
		{"BindShader", func() { _ = r.BindShader(s) }},
		{"UnbindShader", func() { _ = r.UnbindShader(s) }},
		{"BindFrameBuffer", func() { _ = r.BindFrameBuffer(fb) }},
		{"UnbindFrameBuffer", func() { _ = r.UnbindFrameBuffer(fb) }},
		{"BindTexture", func() { _, _ = r.BindTexture(tex, 0) }},
		{"Texture.Bind", func() { _, _ = tex.Bind(0) }},
		{"VertexBuffer.Bind", func() { _ = vb.Bind() }},
		{"VertexBuffer.DrawRange", func() { _ = vb.DrawRange(0, 3) }},
		{"VertexBuffer.UpdateRange", func() { _ = vb.UpdateRange(0, 3) }},
		{"VertexBatch.Add", func() { _ = batch.Add(ColouredVertex2D{}) }},
		{"VertexBatch.Draw", func() { _ = batch.Draw() }},
		{"PushViewport", func() { r.PushViewport(image.Rect(0, 0, 1, 1)) }},
		{"PopScissor", func() { r.PopScissor() }},
		{"PushMaskingInfo", func() { r.PushMaskingInfo(MaskingInfo{}, true) }},
		{"SetBlend", func() { r.SetBlend(pipeline.Opaque()) }},
	}
	for _, c := range calls {
		assert.PanicsWithValue(t, ErrConcurrentUse, c.fn, c.name)
	}

	close(dev.release)
	require.NoError(t, <-done)

	// Sequential use from the render goroutine is unaffected.
	require.NoError(t, r.BindShader(s))
	_, err = tex.Bind(0)
	require.NoError(t, err)
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, batch.Add(ColouredVertex2D{}))
	require.NoError(t, batch.Draw())
	r.PushViewport(image.Rect(0, 0, 5, 5))
	r.PopViewport()
	require.NoError(t, r.UnbindShader(s))
	assert.NoError(t, r.FinishFrame())
}

func TestBeginFrameFailure(t *testing.T) {
	r, dev := newTestRenderer(t)
	injected := errors.New("device lost")
	dev.FailNext("BeginFrame", injected)

	err := r.Reset(10, 10)
	assert.ErrorIs(t, err, injected)
	assert.False(t, r.FrameActive())
	assert.NoError(t, r.Reset(10, 10))
}

func TestScheduledWorkRunsDuringReset(t *testing.T) {
	r, _ := newTestRenderer(t)
	require.NoError(t, r.Reset(10, 10))

	var order []string
	r.ScheduleDisposal(func() { order = append(order, "dispose 1") })
	r.ScheduleDisposal(func() { order = append(order, "dispose 2") })
	r.ScheduleExpensiveOperation(func() { order = append(order, "expensive 1") })
	r.ScheduleExpensiveOperation(func() { order = append(order, "expensive 2") })
	assert.Empty(t, order)

	require.NoError(t, r.Reset(10, 10))
	assert.Equal(t, []string{"dispose 1", "dispose 2", "expensive 1"}, order)

	require.NoError(t, r.Reset(10, 10))
	assert.Equal(t, []string{"dispose 1", "dispose 2", "expensive 1", "expensive 2"}, order)
}

func TestCloseReleasesEverything(t *testing.T) {
	dev := headless.New()
	r, err := New(dev, WithShaderValidation(false))
	require.NoError(t, err)

	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)
	tex := r.NewTexture(4, 4, DefaultTextureOptions())
	fb := r.NewFrameBuffer(8, 8, true)
	ub := NewUniformBuffer[[4]float32](r, "tint")

	require.NoError(t, r.Reset(100, 100))
	_, err = tex.Bind(0)
	require.NoError(t, err)
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 6))
	require.NoError(t, fb.BindTarget())
	require.NoError(t, vb.DrawRange(0, 6))
	require.NoError(t, fb.UnbindTarget())
	require.NoError(t, r.UnbindShader(s))
	_, err = ub.ResourceSet()
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.Equal(t, headless.Counts{}, dev.Live())
	assert.Zero(t, dev.DoubleDestroys())
	assert.ErrorIs(t, r.Reset(10, 10), ErrClosed)
	assert.NoError(t, r.Close(), "Close is idempotent")

	runtime.KeepAlive(s)
	runtime.KeepAlive(vb)
	runtime.KeepAlive(tex)
	runtime.KeepAlive(fb)
	runtime.KeepAlive(ub)
}

func TestStatsString(t *testing.T) {
	s := Stats{Frames: 12345, DrawCalls: 7}
	out := s.String()
	assert.True(t, strings.HasPrefix(out, "frames=12,345 draws=7"), out)
	assert.Contains(t, out, "disposals=0")
}
