// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (backend.Device, error) {
		return New()
	})
}

const (
	// frameTimeout bounds the wait for the previous frame in BeginFrame.
	frameTimeout = 5 * time.Second

	// idlePoll is the fence wait slice used by WaitIdle between context
	// checks.
	idlePoll = 10 * time.Millisecond

	bytesPerPixel = 4
)

var (
	// ErrNoAdapter is returned when the HAL reports no usable adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose HAL objects.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrSurfaceSize is returned by BeginFrame when the requested size does
	// not match the installed surface target.
	ErrSurfaceSize = errors.New("wgpu: frame size does not match surface")
)

// halProvider is implemented by device providers that share their HAL
// device and queue.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// grave is a destroy deferred until the submission with the given fence
// value has completed.
type grave struct {
	value   uint64
	destroy func()
}

// Device implements backend.Device on a HAL device and queue.
//
// Resource creation and destruction are safe for concurrent use. Frames are
// recorded on one goroutine at a time.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	name     string

	logger atomic.Pointer[slog.Logger]

	colorFormat gputypes.TextureFormat
	depthFormat gputypes.TextureFormat

	// layouts caches one bind group layout per resource set kind.
	layouts map[pipeline.ResourceKind]hal.BindGroupLayout

	fence     hal.Fence
	submitted uint64
	completed uint64
	inFlight  hal.CommandBuffer
	graveyard []grave

	backbuffer *Texture
	depth      *Texture

	surfaceView        hal.TextureView
	surfaceW, surfaceH uint32
	recording          bool
	destroyed          bool
}

var _ backend.Device = (*Device)(nil)

// New opens a standalone device on the first discrete or integrated Vulkan
// adapter, falling back to the first adapter reported.
func New() (*Device, error) {
	return NewWithBackend(gputypes.BackendVulkan)
}

// NewWithBackend opens a standalone device on the given HAL backend.
func NewWithBackend(b gputypes.Backend) (*Device, error) {
	api, ok := hal.GetBackend(b)
	if !ok {
		return nil, fmt.Errorf("%w: HAL backend %v", backend.ErrBackendNotAvailable, b)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	d, err := openInstance(instance)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

// openInstance opens a device on the preferred adapter of instance. The
// returned device owns instance.
func openInstance(instance hal.Instance) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	open, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d, err := newDevice(open.Device, open.Queue, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		open.Device.Destroy()
		return nil, err
	}
	d.instance = instance
	d.name = selected.Info.Name
	d.log().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// NewFromProvider wraps the HAL device and queue shared by provider. The
// backbuffer color format follows provider.SurfaceFormat. Destroy releases
// only what the Device created; the shared device stays open.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrNoHAL
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}

	format := provider.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}
	d, err := newDevice(device, queue, format)
	if err != nil {
		return nil, err
	}
	d.external = true
	d.log().Info("wgpu: using shared device", "format", format)
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, color gputypes.TextureFormat) (*Device, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	d := &Device{
		device:      device,
		queue:       queue,
		fence:       fence,
		colorFormat: color,
		depthFormat: gputypes.TextureFormatDepth24PlusStencil8,
		layouts:     make(map[pipeline.ResourceKind]hal.BindGroupLayout),
	}
	d.logger.Store(slog.New(nopHandler{}))
	return d, nil
}

// SetLogger sets the logger used by the device. A nil logger disables
// logging.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	d.logger.Store(l)
}

func (d *Device) log() *slog.Logger { return d.logger.Load() }

// Name returns "wgpu".
func (d *Device) Name() string { return backend.BackendWGPU }

// AdapterName returns the name of the adapter the device was opened on,
// or "" for a shared device.
func (d *Device) AdapterName() string { return d.name }

// BackbufferFormats returns the backbuffer color and depth formats.
func (d *Device) BackbufferFormats() (color, depth gputypes.TextureFormat) {
	return d.colorFormat, d.depthFormat
}

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() any { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() any { return d.queue }

// SetSurfaceTarget makes subsequent frames render into view instead of the
// offscreen backbuffer. A nil view restores the offscreen backbuffer.
func (d *Device) SetSurfaceTarget(view hal.TextureView, width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surfaceView = view
	d.surfaceW, d.surfaceH = width, height
}

func (d *Device) checkAlive() error {
	if d.destroyed {
		return backend.ErrDestroyed
	}
	return nil
}

// bury defers destroy until every submission that may reference the
// object has completed: the last submitted frame, or the frame being
// recorded. d.mu must be held.
func (d *Device) bury(destroy func()) {
	if d.destroyed {
		return
	}
	value := d.submitted
	if d.recording {
		value++
	}
	d.graveyard = append(d.graveyard, grave{value: value, destroy: destroy})
}

// collect runs every deferred destroy whose submission has completed.
// d.mu must be held.
func (d *Device) collect() {
	kept := d.graveyard[:0]
	for _, g := range d.graveyard {
		if g.value <= d.completed {
			g.destroy()
			continue
		}
		kept = append(kept, g)
	}
	clear(d.graveyard[len(kept):])
	d.graveyard = kept
}

// CreateBuffer creates a GPU buffer writable from the CPU.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}

	usage := gputypes.BufferUsageCopyDst
	switch desc.Usage {
	case backend.BufferUsageUniform:
		usage |= gputypes.BufferUsageUniform
	default:
		usage |= gputypes.BufferUsageVertex
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  align4(desc.Size),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	return &Buffer{dev: d, label: desc.Label, size: desc.Size, usage: desc.Usage, buf: buf}, nil
}

// WriteBuffer schedules a write of data into buf at offset.
func (d *Device) WriteBuffer(buf backend.Buffer, offset uint64, data []byte) error {
	b, err := own[*Buffer](d, buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.label, backend.ErrOutOfBounds)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if b.buf == nil {
		return fmt.Errorf("wgpu: write buffer %q: %w", b.label, backend.ErrDestroyed)
	}
	// Queue writes must be 4-byte sized.
	if n := len(data); n%4 != 0 {
		padded := make([]byte, align4(uint64(n)))
		copy(padded, data)
		if offset+uint64(len(padded)) > align4(b.size) {
			return fmt.Errorf("wgpu: write buffer %q: %w", b.label, backend.ErrOutOfBounds)
		}
		data = padded
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// DestroyBuffer releases buf once no submitted frame references it.
func (d *Device) DestroyBuffer(buf backend.Buffer) {
	b, err := own[*Buffer](d, buf)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.buf == nil {
		return
	}
	native := b.buf
	b.buf = nil
	d.bury(func() { d.device.DestroyBuffer(native) })
}

// CreateTexture creates a sampled 2D texture, or a render attachment when
// desc.RenderTarget is set.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	return d.createTexture(desc)
}

// createTexture requires d.mu.
func (d *Device) createTexture(desc *backend.TextureDescriptor) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("wgpu: create texture %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	mips := max(desc.MipLevels, 1)
	format := desc.Format
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatRGBA8Unorm
	}

	var usage gputypes.TextureUsage
	switch {
	case isDepthFormat(format):
		usage = gputypes.TextureUsageRenderAttachment
	case desc.RenderTarget:
		usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	default:
		usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + " view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: mips,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("wgpu: create texture view %q: %w", desc.Label, err)
	}
	return &Texture{
		dev:       d,
		label:     desc.Label,
		width:     desc.Width,
		height:    desc.Height,
		mipLevels: mips,
		format:    format,
		tex:       tex,
		view:      view,
	}, nil
}

// WriteTexture uploads tightly packed RGBA rows into region.
func (d *Device) WriteTexture(tex backend.Texture, region backend.TextureRegion, data []byte) error {
	t, err := own[*Texture](d, tex)
	if err != nil {
		return err
	}
	if region.MipLevel >= t.mipLevels {
		return fmt.Errorf("wgpu: write texture %q level %d: %w", t.label, region.MipLevel, backend.ErrOutOfBounds)
	}
	lw, lh := max(t.width>>region.MipLevel, 1), max(t.height>>region.MipLevel, 1)
	if region.X+region.Width > lw || region.Y+region.Height > lh {
		return fmt.Errorf("wgpu: write texture %q: region %+v exceeds %dx%d: %w",
			t.label, region, lw, lh, backend.ErrOutOfBounds)
	}
	rowBytes := region.Width * bytesPerPixel
	if uint64(len(data)) < uint64(rowBytes)*uint64(region.Height) {
		return fmt.Errorf("wgpu: write texture %q: %d bytes for %dx%d region", t.label, len(data), region.Width, region.Height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	if t.tex == nil {
		return fmt.Errorf("wgpu: write texture %q: %w", t.label, backend.ErrDestroyed)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: region.MipLevel,
			Origin:   hal.Origin3D{X: region.X, Y: region.Y, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  rowBytes,
			RowsPerImage: region.Height,
		},
		&hal.Extent3D{Width: region.Width, Height: region.Height, DepthOrArrayLayers: 1},
	)
	return nil
}

// DestroyTexture releases tex once no submitted frame references it.
func (d *Device) DestroyTexture(tex backend.Texture) {
	t, err := own[*Texture](d, tex)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.tex == nil {
		return
	}
	native, view := t.tex, t.view
	t.tex, t.view = nil, nil
	d.bury(func() {
		d.device.DestroyTextureView(view)
		d.device.DestroyTexture(native)
	})
}

// CreateSampler creates a sampler with the same filter for magnification,
// minification and, when mipmapped, between mip levels.
func (d *Device) CreateSampler(desc *backend.SamplerDescriptor) (backend.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	mipFilter := gputypes.FilterModeNearest
	if desc.Mipmapped {
		mipFilter = desc.Filter
	}
	s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.Wrap,
		AddressModeV: desc.Wrap,
		AddressModeW: desc.Wrap,
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		MipmapFilter: mipFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler %q: %w", desc.Label, err)
	}
	return &Sampler{dev: d, label: desc.Label, sampler: s}, nil
}

// DestroySampler releases s once no submitted frame references it.
func (d *Device) DestroySampler(s backend.Sampler) {
	sm, err := own[*Sampler](d, s)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if sm.sampler == nil {
		return
	}
	native := sm.sampler
	sm.sampler = nil
	d.bury(func() { d.device.DestroySampler(native) })
}

// CreateShader creates a shader module from SPIR-V when present, otherwise
// from WGSL.
func (d *Device) CreateShader(desc *backend.ShaderDescriptor) (backend.Shader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	var src hal.ShaderSource
	switch {
	case len(desc.SPIRV) > 0:
		src.SPIRV = desc.SPIRV
	case desc.WGSL != "":
		src.WGSL = desc.WGSL
	default:
		return nil, fmt.Errorf("wgpu: create shader %q: empty source", desc.Label)
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: src,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create shader %q: %w", desc.Label, err)
	}
	return &Shader{
		dev:      d,
		label:    desc.Label,
		module:   module,
		vertex:   desc.VertexEntry,
		fragment: desc.FragmentEntry,
	}, nil
}

// DestroyShader releases s once no submitted frame references it.
func (d *Device) DestroyShader(s backend.Shader) {
	sh, err := own[*Shader](d, s)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if sh.module == nil {
		return
	}
	native := sh.module
	sh.module = nil
	d.bury(func() { d.device.DestroyShaderModule(native) })
}

// DestroyPipeline releases p and its layout once no submitted frame
// references them.
func (d *Device) DestroyPipeline(p backend.Pipeline) {
	pl, err := own[*Pipeline](d, p)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if pl.pipeline == nil {
		return
	}
	native, layout := pl.pipeline, pl.layout
	pl.pipeline, pl.layout = nil, nil
	d.bury(func() {
		d.device.DestroyRenderPipeline(native)
		d.device.DestroyPipelineLayout(layout)
	})
}

// CreateUniformSet binds buf at binding 0 of a uniform resource set.
func (d *Device) CreateUniformSet(buf backend.Buffer) (backend.ResourceSet, error) {
	b, err := own[*Buffer](d, buf)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if b.buf == nil {
		return nil, fmt.Errorf("wgpu: uniform set %q: %w", b.label, backend.ErrDestroyed)
	}
	layout, err := d.layout(pipeline.ResourceUniform)
	if err != nil {
		return nil, err
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  b.label + " set",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: b.buf.NativeHandle(), Offset: 0, Size: align4(b.size),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: uniform set %q: %w", b.label, err)
	}
	return &ResourceSet{dev: d, label: b.label, kind: pipeline.ResourceUniform, group: group}, nil
}

// CreateTextureSet binds the view of tex at binding 0 and sampler at
// binding 1 of a texture resource set.
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
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if t.view == nil || s.sampler == nil {
		return nil, fmt.Errorf("wgpu: texture set %q: %w", t.label, backend.ErrDestroyed)
	}
	layout, err := d.layout(pipeline.ResourceTexture)
	if err != nil {
		return nil, err
	}
	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  t.label + " set",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: s.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: texture set %q: %w", t.label, err)
	}
	return &ResourceSet{dev: d, label: t.label, kind: pipeline.ResourceTexture, group: group}, nil
}

// DestroyResourceSet releases set once no submitted frame references it.
func (d *Device) DestroyResourceSet(set backend.ResourceSet) {
	rs, err := own[*ResourceSet](d, set)
	if err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if rs.group == nil {
		return
	}
	native := rs.group
	rs.group = nil
	d.bury(func() { d.device.DestroyBindGroup(native) })
}

// waitFor blocks until the submission with fence value v completes or
// timeout elapses. d.mu must be held.
func (d *Device) waitFor(v uint64, timeout time.Duration) (bool, error) {
	if v <= d.completed {
		return true, nil
	}
	ok, err := d.device.Wait(d.fence, v, timeout)
	if err != nil {
		return false, fmt.Errorf("wgpu: wait for frame %d: %w", v, err)
	}
	if ok {
		d.completed = v
		if d.inFlight != nil {
			d.device.FreeCommandBuffer(d.inFlight)
			d.inFlight = nil
		}
	}
	return ok, nil
}

// WaitIdle blocks until every submitted frame has completed or ctx is done,
// then releases deferred destroys.
func (d *Device) WaitIdle(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return err
	}
	for {
		ok, err := d.waitFor(d.submitted, idlePoll)
		if err != nil {
			return err
		}
		if ok {
			d.collect()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Destroy waits for the GPU, releases every object the device created and,
// for a standalone device, the HAL device and instance.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	if ok, err := d.waitFor(d.submitted, frameTimeout); err != nil || !ok {
		d.log().Warn("wgpu: destroy before GPU idle", "error", err)
	}
	for _, g := range d.graveyard {
		g.destroy()
	}
	d.graveyard = nil
	d.destroyAttachments()
	for kind, l := range d.layouts {
		d.device.DestroyBindGroupLayout(l)
		delete(d.layouts, kind)
	}
	d.device.DestroyFence(d.fence)
	d.destroyed = true

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.log().Info("wgpu: device destroyed")
}

// destroyAttachments releases the offscreen backbuffer. d.mu must be held.
func (d *Device) destroyAttachments() {
	for _, t := range []*Texture{d.backbuffer, d.depth} {
		if t == nil || t.tex == nil {
			continue
		}
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
	d.backbuffer, d.depth = nil, nil
}

// ensureAttachments (re)creates the offscreen backbuffer and depth buffer
// at width x height. d.mu must be held and the GPU idle.
func (d *Device) ensureAttachments(width, height uint32, withColor bool) error {
	if d.depth != nil && d.depth.width == width && d.depth.height == height &&
		(d.backbuffer != nil) == withColor {
		return nil
	}
	d.destroyAttachments()

	if withColor {
		color, err := d.createTexture(&backend.TextureDescriptor{
			Label:        "backbuffer",
			Width:        width,
			Height:       height,
			Format:       d.colorFormat,
			RenderTarget: true,
		})
		if err != nil {
			return err
		}
		d.backbuffer = color
	}
	depth, err := d.createTexture(&backend.TextureDescriptor{
		Label:        "backbuffer depth",
		Width:        width,
		Height:       height,
		Format:       d.depthFormat,
		RenderTarget: true,
	})
	if err != nil {
		d.destroyAttachments()
		return err
	}
	d.depth = depth
	d.log().Debug("wgpu: backbuffer resized", "width", width, "height", height)
	return nil
}

// BeginFrame waits for the previous frame, releases deferred destroys and
// starts recording a frame whose backbuffer is width x height.
func (d *Device) BeginFrame(width, height uint32) (backend.Encoder, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("wgpu: begin frame: zero size %dx%d", width, height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if d.recording {
		return nil, errors.New("wgpu: begin frame: previous frame not finished")
	}

	ok, err := d.waitFor(d.submitted, frameTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("wgpu: begin frame: GPU timeout after %v", frameTimeout)
	}
	d.collect()

	surface := d.surfaceView
	if surface != nil && (width != d.surfaceW || height != d.surfaceH) {
		return nil, fmt.Errorf("%w: %dx%d, surface %dx%d", ErrSurfaceSize, width, height, d.surfaceW, d.surfaceH)
	}
	if err := d.ensureAttachments(width, height, surface == nil); err != nil {
		return nil, err
	}

	cmd, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gfx frame"})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := cmd.BeginEncoding("gfx frame"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	back := surface
	if back == nil {
		back = d.backbuffer.view
	}
	d.recording = true
	e := &encoder{
		dev:        d,
		cmd:        cmd,
		width:      width,
		height:     height,
		backbuffer: target{color: back, depth: d.depth.view, width: width, height: height},
	}
	e.target = e.backbuffer
	return e, nil
}

// submit submits cmdBuf as the next fence value. d.mu must be held.
func (d *Device) submit(cmdBuf hal.CommandBuffer) error {
	d.recording = false
	value := d.submitted + 1
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, d.fence, value); err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	d.submitted = value
	d.inFlight = cmdBuf
	return nil
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }
