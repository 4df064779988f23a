// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/dispose"
	"github.com/gogpu/gfx/internal/upload"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
)

// MaxTextureUnits is the number of texture units a shader may sample from.
const MaxTextureUnits = 4

// BlendState describes colour blending. See pipeline.AlphaBlend and
// pipeline.Opaque.
type BlendState = pipeline.BlendState

// ClearInfo describes which aspects of the render target Clear resets.
type ClearInfo = backend.ClearInfo

// applied mirrors what has been sent to the current encoder, so unchanged
// state is not sent twice. It is invalidated whenever the encoder drops its
// bindings.
type applied struct {
	viewport      image.Rectangle
	viewportValid bool
	scissor       image.Rectangle
	scissorValid  bool

	pipeline     backend.Pipeline
	vertexBuffer backend.Buffer
	sets         []backend.ResourceSet
}

// batchFlusher is implemented by VertexBatch.
type batchFlusher interface {
	flush() error
}

// Renderer turns drawing operations into backend commands while tracking
// nested render state and the lifetime of GPU resources.
//
// A Renderer belongs to one render goroutine. Frame entry points (Reset,
// FinishFrame, Clear, DrawVertices, WaitIdle, Close) and bind sites (shader,
// frame buffer, texture and vertex buffer binds, vertex batches, state
// push/pop, SetBlend) panic with ErrConcurrentUse when they overlap. Other
// goroutines may only call Texture.SetData, Dispose methods,
// ScheduleDisposal, ScheduleExpensiveOperation, Stats and Memory.
//
// Frame lifecycle:
//
//	r.Reset(w, h)        // begin frame, drain disposals, upload textures
//	r.BindShader(s)
//	vb.DrawRange(0, n)
//	r.UnbindShader(s)
//	r.FinishFrame()      // submit
type Renderer struct {
	cfg    Config
	device backend.Device

	backbufferColors []gputypes.TextureFormat
	backbufferDepth  gputypes.TextureFormat

	busy   atomic.Bool
	closed atomic.Bool

	encoder     backend.Encoder
	frameActive bool
	frameID     uint64
	size        image.Rectangle

	disposals *dispose.Queue
	expensive *dispose.Queue
	uploads   upload.Queue[*Texture]

	pipelines      *pipeline.Cache[backend.Pipeline]
	pipelineShader backend.Shader
	desc           pipeline.Description

	stacks       stacks
	shaders      []*Shader
	frameBuffers []*FrameBuffer
	blend        BlendState
	drawDepth    float32

	applied      applied
	vertexBuffer backend.Buffer
	vertexLayout pipeline.VertexLayout
	textures     [MaxTextureUnits]*Texture
	activeBatch  batchFlusher

	globals    *UniformBuffer[GlobalUniforms]
	whitePixel *Texture

	vertexBuffers liveSet[vertexBufferRef]
	uniforms      liveSet[uniformRef]
	batches       liveSet[batchRef]
	resources     liveSet[releaser]

	counters counters
	memory   *memoryTracker
}

// vertexBufferRef is the untyped view of a VertexBuffer.
type vertexBufferRef interface {
	releaser
	sweep(frameID, interval uint64) bool
}

// uniformRef is the untyped view of a UniformBuffer.
type uniformRef interface {
	releaser
	ResetCounters()
}

type batchRef interface {
	resetCounters()
}

// releaser frees native resources immediately. It is called on the render
// goroutine when the renderer closes.
type releaser interface {
	release()
}

// New creates a renderer drawing through device. The renderer owns device
// and destroys it on Close.
func New(device backend.Device, opts ...Option) (*Renderer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	r := &Renderer{
		cfg:       o.config,
		device:    device,
		disposals: o.disposals,
		expensive: dispose.NewQueue(),
		blend:     pipeline.AlphaBlend(),
		memory:    newMemoryTracker(o.config.MemoryBudgetMB),
	}
	if r.disposals == nil {
		r.disposals = dispose.NewQueue()
	}
	if !o.detached {
		r.disposals.Attach()
	}
	r.expensive.Attach()

	color, depth := device.BackbufferFormats()
	r.backbufferColors = []gputypes.TextureFormat{color}
	r.backbufferDepth = depth

	r.pipelines = pipeline.NewCache(r.createPipeline)
	r.initStacks()
	r.globals = NewUniformBuffer[GlobalUniforms](r, "globals")
	r.updateGlobals()

	white := DefaultTextureOptions()
	white.Label = "white pixel"
	r.whitePixel = r.newTexture(1, 1, white, TextureKindWhitePixel)
	r.whitePixel.SetData(TextureUpload{
		Bounds: image.Rect(0, 0, 1, 1),
		Pixels: []byte{0xff, 0xff, 0xff, 0xff},
	})

	trackDeviceLogger(device)
	Logger().Info("gfx: renderer created", "backend", device.Name())
	return r, nil
}

// NewWithBackend opens the named backend (see backend.Available) and
// creates a renderer on it. An empty name selects backend.Default.
func NewWithBackend(name string, opts ...Option) (*Renderer, error) {
	var (
		dev backend.Device
		err error
	)
	if name == "" {
		dev, err = backend.Default()
	} else {
		dev, err = backend.Open(name)
	}
	if err != nil {
		return nil, fmt.Errorf("gfx: open backend: %w", err)
	}
	r, err := New(dev, opts...)
	if err != nil {
		dev.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) enter() func() {
	if !r.busy.CompareAndSwap(false, true) {
		panic(ErrConcurrentUse)
	}
	return r.leave
}

func (r *Renderer) leave() {
	r.busy.Store(false)
}

// Device returns the backend device.
func (r *Renderer) Device() backend.Device { return r.device }

// Config returns the renderer configuration.
func (r *Renderer) Config() Config { return r.cfg }

// FrameID returns the frame counter. It is zero before the first Reset.
func (r *Renderer) FrameID() uint64 { return r.frameID }

// Size returns the window rectangle of the current frame.
func (r *Renderer) Size() image.Rectangle { return r.size }

// FrameActive reports whether a frame is being recorded.
func (r *Renderer) FrameActive() bool { return r.frameActive }

// Reset begins a frame for a width x height window.
//
// In order, Reset checks that no shader or frame buffer is still bound
// (panicking with ErrUnbalancedState otherwise), finishes the previous
// frame, advances the frame counter, drains the disposal queue, runs at most
// one expensive operation, resets uniform buffers, begins a backend frame
// with default state, clears the backbuffer, periodically frees stale
// vertex buffers and uploads queued textures.
func (r *Renderer) Reset(width, height int) error {
	defer r.enter()()
	if r.closed.Load() {
		return ErrClosed
	}
	if len(r.shaders) > 0 || len(r.frameBuffers) > 0 {
		panic(fmt.Errorf("%w: %d shaders, %d frame buffers bound",
			ErrUnbalancedState, len(r.shaders), len(r.frameBuffers)))
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: negative frame size %dx%d", ErrPrecondition, width, height)
	}

	if r.frameActive {
		if err := r.finishFrame(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}

	r.frameID++
	r.counters.frames.Add(1)

	if n := r.disposals.Drain(); n > 0 {
		Logger().Debug("gfx: disposals drained", "frame", r.frameID, "count", n)
	}
	r.expensive.RunNext()

	r.uniforms.each(func(u uniformRef) { u.ResetCounters() })
	r.batches.each(func(b batchRef) { b.resetCounters() })

	enc, err := r.device.BeginFrame(uint32(width), uint32(height))
	if err != nil {
		return fmt.Errorf("reset: begin frame: %w", err)
	}
	r.encoder = enc
	r.frameActive = true
	r.size = image.Rect(0, 0, width, height)

	r.applied = applied{}
	r.vertexBuffer = nil
	r.vertexLayout = pipeline.VertexLayout{}
	r.textures = [MaxTextureUnits]*Texture{}
	r.blend = pipeline.AlphaBlend()
	r.drawDepth = 0
	r.resetStacks(r.size)

	c := r.cfg.ClearColour
	r.encoder.Clear(ClearInfo{
		Colour:       gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]},
		Depth:        1,
		ClearColour:  true,
		ClearDepth:   true,
		ClearStencil: true,
	})

	if r.frameID%r.cfg.VertexBufferSweepInterval == 0 {
		r.sweepVertexBuffers()
	}
	r.processUploads()
	return nil
}

func (r *Renderer) sweepVertexBuffers() {
	freed := 0
	r.vertexBuffers.each(func(vb vertexBufferRef) {
		if vb.sweep(r.frameID, r.cfg.VertexBufferSweepInterval) {
			freed++
		}
	})
	if freed > 0 {
		r.counters.vertexBuffersFreed.Add(uint64(freed))
		Logger().Debug("gfx: stale vertex buffers freed", "frame", r.frameID, "count", freed)
	}
}

func (r *Renderer) processUploads() {
	limits := upload.Limits{
		MaxItems:  r.cfg.MaxTexturesUploadedPerFrame,
		MaxPixels: r.cfg.MaxPixelsUploadedPerFrame,
	}
	res := r.uploads.Process(limits, func(t *Texture) (int, bool) {
		t.queued.Store(false)
		return t.Upload()
	})
	if res.Dequeued > 0 {
		Logger().Debug("gfx: textures uploaded",
			"frame", r.frameID,
			"target", res.Target,
			"dequeued", res.Dequeued,
			"performed", res.Performed,
			"pixels", res.Pixels)
	}
}

// FinishFrame submits the current frame.
func (r *Renderer) FinishFrame() error {
	defer r.enter()()
	if !r.frameActive {
		return ErrNoFrame
	}
	return r.finishFrame()
}

func (r *Renderer) finishFrame() error {
	r.flushBatch()
	enc := r.encoder
	r.encoder = nil
	r.frameActive = false
	r.textures = [MaxTextureUnits]*Texture{}
	if err := enc.Finish(); err != nil {
		return fmt.Errorf("finish frame %d: %w", r.frameID, err)
	}
	return nil
}

// Clear clears the current render target.
func (r *Renderer) Clear(info ClearInfo) error {
	defer r.enter()()
	if !r.frameActive {
		return ErrNoFrame
	}
	r.flushBatch()
	r.encoder.Clear(info)
	r.applied = applied{}
	return nil
}

// DrawVertices draws count vertices starting at start from the bound vertex
// buffer with the bound shader.
func (r *Renderer) DrawVertices(topology gputypes.PrimitiveTopology, start, count int) error {
	defer r.enter()()
	return r.drawVertices(topology, start, count)
}

func (r *Renderer) drawVertices(topology gputypes.PrimitiveTopology, start, count int) error {
	if !r.frameActive {
		return ErrNoFrame
	}
	if start < 0 {
		return fmt.Errorf("%w: draw start %d", ErrIndexOutOfRange, start)
	}
	if count <= 0 {
		return nil
	}
	sh := r.currentShader()
	if sh == nil {
		return ErrNoShader
	}
	if r.vertexBuffer == nil {
		return ErrNoVertexBuffer
	}
	native, err := sh.ensureCompiled()
	if err != nil {
		return err
	}

	r.applyState()

	p, err := r.fetchPipeline(sh, native, topology)
	if err != nil {
		return err
	}
	if p != r.applied.pipeline {
		r.encoder.SetPipeline(p)
		r.applied.pipeline = p
	}
	if r.vertexBuffer != r.applied.vertexBuffer {
		r.encoder.SetVertexBuffer(r.vertexBuffer)
		r.applied.vertexBuffer = r.vertexBuffer
	}
	if err := r.bindResourceSets(sh); err != nil {
		return err
	}

	r.encoder.Draw(uint32(start), uint32(count))
	r.counters.drawCalls.Add(1)
	return nil
}

func (r *Renderer) createPipeline(desc *pipeline.Description) (backend.Pipeline, error) {
	return r.device.CreatePipeline(desc, r.pipelineShader)
}

// fetchPipeline fills the reusable description from the current state and
// resolves it through the cache.
func (r *Renderer) fetchPipeline(sh *Shader, native backend.Shader, topology gputypes.PrimitiveTopology) (backend.Pipeline, error) {
	colors, depth := r.targetFormats()

	d := &r.desc
	d.Label = sh.Name()
	d.Shader = sh.ID()
	d.ResourceSets = sh.layout
	d.Topology = topology
	d.Blend = r.blend
	d.DepthStencil = pipeline.DepthStencilState{}
	if depth != gputypes.TextureFormatUndefined {
		di := r.stacks.depth.Value()
		d.DepthStencil = pipeline.DepthStencilState{
			DepthTest:      di.DepthTest,
			DepthWrite:     di.WriteDepth,
			DepthCompare:   di.Function,
			StencilCompare: gputypes.CompareFunctionAlways,
		}
	}
	d.Rasterizer = pipeline.RasterizerState{
		CullMode:    gputypes.CullModeNone,
		FrontFace:   gputypes.FrontFaceCCW,
		ScissorTest: r.stacks.scissorState.Value(),
	}
	d.VertexLayout = r.vertexLayout
	d.Output = pipeline.OutputState{ColorFormats: colors, DepthFormat: depth, SampleCount: 1}

	r.pipelineShader = native
	p, err := r.pipelines.FetchOrCreate(d)
	r.pipelineShader = nil

	hits, created := r.pipelines.Stats()
	r.counters.pipelineHits.Store(hits)
	r.counters.pipelinesCreated.Store(created)
	return p, err
}

func (r *Renderer) bindResourceSets(sh *Shader) error {
	unit := 0
	for i, kind := range sh.layout {
		group := uint32(i)

		var (
			set backend.ResourceSet
			err error
		)
		switch kind {
		case pipeline.ResourceUniform:
			block := sh.uniformBlock(group)
			if group == 0 {
				block = r.globals
			}
			if block == nil {
				return fmt.Errorf("%w: shader %q has no uniform block for group %d", ErrNotBound, sh.Name(), group)
			}
			set, err = block.ResourceSet()
		case pipeline.ResourceTexture:
			set, err = r.textureSet(unit)
			unit++
		default:
			err = fmt.Errorf("gfx: shader %q: unknown resource kind %d", sh.Name(), kind)
		}
		if err != nil {
			return err
		}

		for len(r.applied.sets) <= i {
			r.applied.sets = append(r.applied.sets, nil)
		}
		if r.applied.sets[i] == set {
			continue
		}
		r.encoder.SetResourceSet(group, set)
		r.applied.sets[i] = set
	}
	return nil
}

// textureSet returns the resource set of the texture bound at unit, or of
// the white pixel when nothing usable is bound.
func (r *Renderer) textureSet(unit int) (backend.ResourceSet, error) {
	var t *Texture
	if unit < MaxTextureUnits {
		t = r.textures[unit]
	}
	if t == nil || t.disposed.Load() {
		t = r.whitePixel
	}
	n, err := t.ensureNative()
	if err != nil {
		return nil, err
	}
	return n.set, nil
}

func (r *Renderer) flushBatch() {
	b := r.activeBatch
	if b == nil {
		return
	}
	r.activeBatch = nil
	if err := b.flush(); err != nil {
		Logger().Warn("gfx: batch flush failed", "err", err)
	}
}

// bindVertexBuffer records buf as the vertex source of subsequent draws and
// reports whether the binding changed.
func (r *Renderer) bindVertexBuffer(buf backend.Buffer, layout pipeline.VertexLayout) bool {
	if r.vertexBuffer == buf {
		return false
	}
	r.vertexBuffer = buf
	r.vertexLayout = layout
	r.counters.vertexBufferBinds.Add(1)
	return true
}

func (r *Renderer) unbindVertexBuffer(buf backend.Buffer) {
	if r.vertexBuffer == buf {
		r.vertexBuffer = nil
		r.vertexLayout = pipeline.VertexLayout{}
	}
	if r.applied.vertexBuffer == buf {
		r.applied.vertexBuffer = nil
	}
}

// bindTextureUnit binds t at unit and reports whether the binding changed.
func (r *Renderer) bindTextureUnit(unit int, t *Texture) bool {
	if r.textures[unit] == t {
		return false
	}
	r.flushBatch()
	r.textures[unit] = t
	r.counters.textureBinds.Add(1)
	return true
}

// BindTexture binds t to a texture unit and reports whether the binding
// changed.
func (r *Renderer) BindTexture(t Bindable, unit int) (bool, error) {
	return t.Bind(unit)
}

func (r *Renderer) currentShader() *Shader {
	if len(r.shaders) == 0 {
		return nil
	}
	return r.shaders[len(r.shaders)-1]
}

// BindShader makes s the shader of subsequent draws. Every BindShader must
// be matched by an UnbindShader before the next Reset.
func (r *Renderer) BindShader(s *Shader) error {
	defer r.enter()()
	if s.disposed.Load() {
		return ErrDisposed
	}
	r.flushBatch()
	prev := r.currentShader()
	r.shaders = append(r.shaders, s)
	if prev != s {
		r.counters.shaderBinds.Add(1)
	}
	return nil
}

// UnbindShader restores the shader bound before s. s must be the current
// shader.
func (r *Renderer) UnbindShader(s *Shader) error {
	defer r.enter()()
	if r.currentShader() != s {
		return fmt.Errorf("%w: shader %q is not the current shader", ErrNotBound, s.Name())
	}
	r.flushBatch()
	r.shaders = r.shaders[:len(r.shaders)-1]
	if next := r.currentShader(); next != nil && next != s {
		r.counters.shaderBinds.Add(1)
	}
	return nil
}

func (r *Renderer) currentFrameBuffer() *FrameBuffer {
	if len(r.frameBuffers) == 0 {
		return nil
	}
	return r.frameBuffers[len(r.frameBuffers)-1]
}

// BindFrameBuffer redirects subsequent draws into fb. Every BindFrameBuffer
// must be matched by an UnbindFrameBuffer before the next Reset.
func (r *Renderer) BindFrameBuffer(fb *FrameBuffer) error {
	defer r.enter()()
	if fb.disposed.Load() {
		return ErrDisposed
	}
	if !r.frameActive {
		return ErrNoFrame
	}
	if err := fb.ensureNative(); err != nil {
		return err
	}
	r.flushBatch()
	r.frameBuffers = append(r.frameBuffers, fb)
	r.setRenderTarget(fb)
	return nil
}

// UnbindFrameBuffer restores the render target bound before fb. fb must be
// the current frame buffer.
func (r *Renderer) UnbindFrameBuffer(fb *FrameBuffer) error {
	defer r.enter()()
	if r.currentFrameBuffer() != fb {
		return fmt.Errorf("%w: frame buffer is not the current render target", ErrNotBound)
	}
	r.flushBatch()
	r.frameBuffers = r.frameBuffers[:len(r.frameBuffers)-1]
	r.setRenderTarget(r.currentFrameBuffer())
	return nil
}

func (r *Renderer) setRenderTarget(fb *FrameBuffer) {
	if fb == nil {
		r.encoder.SetRenderTarget(nil, nil)
	} else {
		r.encoder.SetRenderTarget(fb.colour.native.tex, fb.depthTarget())
	}
	r.applied = applied{}
}

// targetBounds returns the extent of the current render target.
func (r *Renderer) targetBounds() image.Rectangle {
	if fb := r.currentFrameBuffer(); fb != nil {
		return image.Rectangle{Max: fb.Size()}
	}
	return r.size
}

func (r *Renderer) targetFormats() ([]gputypes.TextureFormat, gputypes.TextureFormat) {
	if fb := r.currentFrameBuffer(); fb != nil {
		return fb.colorFormats, fb.depthFormat
	}
	return r.backbufferColors, r.backbufferDepth
}

// ScheduleExpensiveOperation defers fn to a later Reset. At most one
// expensive operation runs per frame. It may be called from any goroutine.
func (r *Renderer) ScheduleExpensiveOperation(fn func()) {
	r.expensive.Schedule(fn)
}

// ScheduleDisposal runs fn on the render goroutine during the next Reset.
// It may be called from any goroutine.
func (r *Renderer) ScheduleDisposal(fn func()) {
	r.disposals.Schedule(fn)
}

// WaitIdle blocks until the device has finished all submitted work. Use it
// only at shutdown or before reading back results.
func (r *Renderer) WaitIdle(ctx context.Context) error {
	defer r.enter()()
	if r.closed.Load() {
		return ErrClosed
	}
	return r.device.WaitIdle(ctx)
}

// Close finishes any active frame, releases every native resource the
// renderer knows of and destroys the device. Resources created by the
// renderer must not be used afterwards.
func (r *Renderer) Close() error {
	defer r.enter()()
	if r.closed.Load() {
		return nil
	}

	var errs []error
	if r.frameActive {
		errs = append(errs, r.finishFrame())
	}
	r.shaders = nil
	r.frameBuffers = nil

	r.disposals.Drain()
	r.expensive.Drain()

	r.vertexBuffers.each(func(vb vertexBufferRef) { vb.release() })
	r.uniforms.each(func(u uniformRef) { u.release() })
	r.resources.each(func(res releaser) { res.release() })
	r.pipelines.DestroyAll(r.device.DestroyPipeline)

	r.closed.Store(true)
	r.disposals.Detach()
	r.disposals.Drain()

	if err := r.device.WaitIdle(context.Background()); err != nil {
		errs = append(errs, err)
	}
	untrackDeviceLogger(r.device)
	r.device.Destroy()
	Logger().Info("gfx: renderer closed", "frames", r.frameID)
	return errors.Join(errs...)
}
