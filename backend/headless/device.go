// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package headless provides an in-memory backend that records every command
// it receives.
//
// The headless device keeps buffer and texture contents in CPU memory and
// stores each submitted frame as a list of commands. It is used by tests,
// by command line tooling that runs the renderer without a GPU, and as the
// fallback backend when no GPU adapter is available.
//
// Failures can be injected per method with FailNext to exercise error paths.
package headless

import (
	"context"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.BackendHeadless, func() (backend.Device, error) {
		return New(), nil
	})
}

// bytesPerPixel is the texel size assumed for every color format.
const bytesPerPixel = 4

// Counts is the number of live resources per kind.
type Counts struct {
	Buffers      int
	Textures     int
	Samplers     int
	Shaders      int
	Pipelines    int
	ResourceSets int
}

// Frame is one submitted frame.
type Frame struct {
	Width, Height uint32
	Commands      []Command
}

// TextureWrite records one texture upload.
type TextureWrite struct {
	Texture string
	Region  backend.TextureRegion
	Bytes   int
}

// Device is a backend.Device that records commands in memory.
//
// Device is safe for concurrent inspection; recording happens on the render
// goroutine.
type Device struct {
	mu sync.Mutex

	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat

	live           Counts
	doubleDestroys int
	failures       map[string]error

	frames        []Frame
	active        *encoder
	textureWrites []TextureWrite

	destroyed bool
}

var _ backend.Device = (*Device)(nil)

// New creates a headless device with an RGBA8 backbuffer and a
// depth-stencil attachment.
func New() *Device {
	return &Device{
		colorFormat: gputypes.TextureFormatRGBA8Unorm,
		depthFormat: gputypes.TextureFormatDepth24PlusStencil8,
		failures:    make(map[string]error),
	}
}

// Name returns "headless".
func (d *Device) Name() string { return backend.BackendHeadless }

// BackbufferFormats returns the backbuffer color and depth formats.
func (d *Device) BackbufferFormats() (color, depth gputypes.TextureFormat) {
	return d.colorFormat, d.depthFormat
}

// FailNext makes the next call to method (e.g. "CreateTexture") fail with err.
func (d *Device) FailNext(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = err
}

func (d *Device) takeFailure(method string) error {
	if d.destroyed {
		return backend.ErrDestroyed
	}
	err, ok := d.failures[method]
	if !ok {
		return nil
	}
	delete(d.failures, method)
	return err
}

// Live returns the number of live resources per kind.
func (d *Device) Live() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// DoubleDestroys returns how many Destroy calls targeted an already
// destroyed resource.
func (d *Device) DoubleDestroys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doubleDestroys
}

// Frames returns a copy of every submitted frame.
func (d *Device) Frames() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.frames)
}

// LastFrame returns the most recently submitted frame.
func (d *Device) LastFrame() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return Frame{}, false
	}
	return d.frames[len(d.frames)-1], true
}

// PendingCommands returns the commands recorded in the frame being encoded.
func (d *Device) PendingCommands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	return slices.Clone(d.active.commands)
}

// TextureWrites returns every texture upload in call order.
func (d *Device) TextureWrites() []TextureWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.textureWrites)
}

func (d *Device) release(kind *int, destroyed *bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if *destroyed {
		d.doubleDestroys++
		return
	}
	*destroyed = true
	*kind--
}

// CreateBuffer allocates zeroed CPU memory of desc.Size bytes.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateBuffer"); err != nil {
		return nil, err
	}
	d.live.Buffers++
	return &Buffer{dev: d, label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}, nil
}

// WriteBuffer copies data into buf at offset.
func (d *Device) WriteBuffer(buf backend.Buffer, offset uint64, data []byte) error {
	b, err := own[*Buffer](d, buf)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("WriteBuffer"); err != nil {
		return err
	}
	if b.destroyed {
		return fmt.Errorf("write buffer %q: %w", b.label, backend.ErrDestroyed)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write buffer %q: %w", b.label, backend.ErrOutOfBounds)
	}
	copy(b.data[offset:], data)
	b.writes++
	return nil
}

// DestroyBuffer releases buf.
func (d *Device) DestroyBuffer(buf backend.Buffer) {
	if b, err := own[*Buffer](d, buf); err == nil {
		d.release(&d.live.Buffers, &b.destroyed)
	}
}

// CreateTexture allocates zeroed storage for every mip level.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateTexture"); err != nil {
		return nil, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create texture %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	mips := max(desc.MipLevels, 1)
	t := &Texture{
		dev:          d,
		label:        desc.Label,
		width:        desc.Width,
		height:       desc.Height,
		format:       desc.Format,
		renderTarget: desc.RenderTarget,
	}
	for level := range mips {
		w, h := levelSize(desc.Width, desc.Height, level)
		t.levels = append(t.levels, make([]byte, int(w*h)*bytesPerPixel))
	}
	d.live.Textures++
	return t, nil
}

func levelSize(w, h, level uint32) (uint32, uint32) {
	return max(w>>level, 1), max(h>>level, 1)
}

// WriteTexture copies tightly packed RGBA rows into region.
func (d *Device) WriteTexture(tex backend.Texture, region backend.TextureRegion, data []byte) error {
	t, err := own[*Texture](d, tex)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("WriteTexture"); err != nil {
		return err
	}
	if t.destroyed {
		return fmt.Errorf("write texture %q: %w", t.label, backend.ErrDestroyed)
	}
	if int(region.MipLevel) >= len(t.levels) {
		return fmt.Errorf("write texture %q level %d: %w", t.label, region.MipLevel, backend.ErrOutOfBounds)
	}
	lw, lh := levelSize(t.width, t.height, region.MipLevel)
	if region.X+region.Width > lw || region.Y+region.Height > lh {
		return fmt.Errorf("write texture %q: region %+v exceeds %dx%d: %w",
			t.label, region, lw, lh, backend.ErrOutOfBounds)
	}
	rowBytes := int(region.Width) * bytesPerPixel
	if len(data) < rowBytes*int(region.Height) {
		return fmt.Errorf("write texture %q: %d bytes for %dx%d region", t.label, len(data), region.Width, region.Height)
	}

	level := t.levels[region.MipLevel]
	stride := int(lw) * bytesPerPixel
	for row := range int(region.Height) {
		dst := (int(region.Y)+row)*stride + int(region.X)*bytesPerPixel
		copy(level[dst:dst+rowBytes], data[row*rowBytes:(row+1)*rowBytes])
	}
	d.textureWrites = append(d.textureWrites, TextureWrite{Texture: t.label, Region: region, Bytes: len(data)})
	return nil
}

// DestroyTexture releases tex.
func (d *Device) DestroyTexture(tex backend.Texture) {
	if t, err := own[*Texture](d, tex); err == nil {
		d.release(&d.live.Textures, &t.destroyed)
	}
}

// CreateSampler creates a sampler record.
func (d *Device) CreateSampler(desc *backend.SamplerDescriptor) (backend.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateSampler"); err != nil {
		return nil, err
	}
	d.live.Samplers++
	return &Sampler{dev: d, label: desc.Label, desc: *desc}, nil
}

// DestroySampler releases s.
func (d *Device) DestroySampler(s backend.Sampler) {
	if sm, err := own[*Sampler](d, s); err == nil {
		d.release(&d.live.Samplers, &sm.destroyed)
	}
}

// CreateShader records the shader descriptor.
func (d *Device) CreateShader(desc *backend.ShaderDescriptor) (backend.Shader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateShader"); err != nil {
		return nil, err
	}
	if desc.WGSL == "" && len(desc.SPIRV) == 0 {
		return nil, fmt.Errorf("create shader %q: empty source", desc.Label)
	}
	d.live.Shaders++
	return &Shader{dev: d, label: desc.Label, desc: *desc}, nil
}

// DestroyShader releases s.
func (d *Device) DestroyShader(s backend.Shader) {
	if sh, err := own[*Shader](d, s); err == nil {
		d.release(&d.live.Shaders, &sh.destroyed)
	}
}

// CreatePipeline records a copy of desc.
func (d *Device) CreatePipeline(desc *pipeline.Description, shader backend.Shader) (backend.Pipeline, error) {
	sh, err := own[*Shader](d, shader)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreatePipeline"); err != nil {
		return nil, err
	}
	if sh.destroyed {
		return nil, fmt.Errorf("create pipeline %q: shader %q: %w", desc.Label, sh.label, backend.ErrDestroyed)
	}
	d.live.Pipelines++
	return &Pipeline{dev: d, label: desc.Label, desc: *desc, shader: sh}, nil
}

// DestroyPipeline releases p.
func (d *Device) DestroyPipeline(p backend.Pipeline) {
	if pl, err := own[*Pipeline](d, p); err == nil {
		d.release(&d.live.Pipelines, &pl.destroyed)
	}
}

// CreateUniformSet creates a resource set referencing buf.
func (d *Device) CreateUniformSet(buf backend.Buffer) (backend.ResourceSet, error) {
	b, err := own[*Buffer](d, buf)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateUniformSet"); err != nil {
		return nil, err
	}
	d.live.ResourceSets++
	return &ResourceSet{dev: d, label: b.label, kind: pipeline.ResourceUniform, buffer: b}, nil
}

// CreateTextureSet creates a resource set referencing tex and sampler.
func (d *Device) CreateTextureSet(tex backend.Texture, sampler backend.Sampler) (backend.ResourceSet, error) {
	t, err := own[*Texture](d, tex)
	if err != nil {
		return nil, err
	}
	s, err := own[*Sampler](d, sampler)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("CreateTextureSet"); err != nil {
		return nil, err
	}
	d.live.ResourceSets++
	return &ResourceSet{dev: d, label: t.label, kind: pipeline.ResourceTexture, texture: t, sampler: s}, nil
}

// DestroyResourceSet releases set.
func (d *Device) DestroyResourceSet(set backend.ResourceSet) {
	if rs, err := own[*ResourceSet](d, set); err == nil {
		d.release(&d.live.ResourceSets, &rs.destroyed)
	}
}

// BeginFrame starts recording a new frame.
func (d *Device) BeginFrame(width, height uint32) (backend.Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailure("BeginFrame"); err != nil {
		return nil, err
	}
	if d.active != nil {
		return nil, fmt.Errorf("begin frame: previous frame not finished")
	}
	d.active = &encoder{dev: d, width: width, height: height}
	return d.active, nil
}

// WaitIdle returns immediately: headless work completes synchronously.
func (d *Device) WaitIdle(ctx context.Context) error {
	return ctx.Err()
}

// Destroy marks the device destroyed. Later creation calls fail.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// own checks that r is a resource of type T created by d.
func own[T interface {
	backend.Resource
	device() *Device
}](d *Device, r backend.Resource) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("headless: nil resource: %w", backend.ErrForeignResource)
	}
	v, ok := r.(T)
	if !ok || v.device() != d {
		return zero, fmt.Errorf("headless: %s: %w", r.Label(), backend.ErrForeignResource)
	}
	return v, nil
}

// Region returns the rectangle covered by a texture region.
func Region(r backend.TextureRegion) image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))
}
