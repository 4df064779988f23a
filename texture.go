// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/mipmap"
	"github.com/gogpu/gputypes"
)

// TextureKind identifies the variant behind a Bindable.
type TextureKind uint8

// Texture kinds.
const (
	// TextureKindSingle is an ordinary texture with its own storage.
	TextureKindSingle TextureKind = iota + 1

	// TextureKindSub is a region of a parent texture.
	TextureKindSub

	// TextureKindWhitePixel is the renderer's 1x1 white texture, sampled
	// when nothing else is bound.
	TextureKindWhitePixel

	// TextureKindFrameBuffer is the colour attachment of a FrameBuffer.
	TextureKindFrameBuffer
)

// String returns the kind name.
func (k TextureKind) String() string {
	switch k {
	case TextureKindSingle:
		return "single"
	case TextureKindSub:
		return "sub"
	case TextureKindWhitePixel:
		return "white pixel"
	case TextureKindFrameBuffer:
		return "frame buffer"
	default:
		return "unknown"
	}
}

// Bindable is anything that can be bound to a texture unit.
type Bindable interface {
	Kind() TextureKind

	// Bind binds to unit and reports whether the binding changed.
	Bind(unit int) (bool, error)
}

// Uploadable receives pixel data.
type Uploadable interface {
	// SetData queues an upload. It may be called from any goroutine.
	SetData(u TextureUpload)

	// Upload applies every queued upload on the render goroutine and
	// returns the uploaded pixel count, or false if the texture could not
	// be uploaded.
	Upload() (pixels int, ok bool)
}

// TextureUpload is one region of pixel data destined for a texture.
type TextureUpload struct {
	// Bounds is the destination rectangle within mip level Level.
	Bounds image.Rectangle

	// Level is the mip level. Uploading any level above 0 turns off
	// automatic mipmap generation for the texture.
	Level int

	// Pixels holds tightly packed RGBA8 rows of Bounds.
	Pixels []byte
}

// NewTextureUpload converts img into an upload placed at at on level 0.
func NewTextureUpload(img image.Image, at image.Point) TextureUpload {
	rgba := mipmap.ToRGBA(img)
	return TextureUpload{
		Bounds: rgba.Rect.Add(at),
		Pixels: rgba.Pix,
	}
}

// TextureOptions configures a texture. Start from DefaultTextureOptions.
type TextureOptions struct {
	Label string

	// Mipmaps allocates a full mip chain. Levels are generated from level
	// 0 uploads unless the caller uploads them explicitly.
	Mipmaps bool

	Filter gputypes.FilterMode
	Wrap   gputypes.AddressMode
}

// DefaultTextureOptions returns linear filtering, clamped edges and no
// mipmaps.
func DefaultTextureOptions() TextureOptions {
	return TextureOptions{
		Filter: gputypes.FilterModeLinear,
		Wrap:   gputypes.AddressModeClampToEdge,
	}
}

// textureNative owns the native objects of a texture. It is shared with the
// finalizer, so it must never point back to its owner.
type textureNative struct {
	tex     backend.Texture
	sampler backend.Sampler
	set     backend.ResourceSet
	bytes   uint64
}

func (r *Renderer) destroyTextureNative(n *textureNative) {
	if n == nil || n.tex == nil || r.closed.Load() {
		return
	}
	r.device.DestroyResourceSet(n.set)
	r.device.DestroySampler(n.sampler)
	r.device.DestroyTexture(n.tex)
	r.memory.release(ResourceTexture, n.bytes)
	n.tex, n.sampler, n.set = nil, nil, nil
}

// Texture is a 2D RGBA8 texture.
//
// Pixel data is queued with SetData from any goroutine and uploaded during
// Reset under the per-frame upload throttle. Binding a texture whose data
// has not been uploaded yet samples blank storage.
type Texture struct {
	r         *Renderer
	label     string
	kind      TextureKind
	width     int
	height    int
	mipLevels int
	opts      TextureOptions

	mu      sync.Mutex
	pending []TextureUpload

	queued   atomic.Bool
	loaded   atomic.Bool
	disposed atomic.Bool

	// Render goroutine only.
	native        *textureNative
	cleanup       runtime.Cleanup
	manualMipmaps bool
	lastUse       uint64
}

// NewTexture creates a width x height texture. Native storage is created
// on first bind or upload.
func (r *Renderer) NewTexture(width, height int, opts TextureOptions) *Texture {
	return r.newTexture(width, height, opts, TextureKindSingle)
}

func (r *Renderer) newTexture(width, height int, opts TextureOptions, kind TextureKind) *Texture {
	width, height = max(width, 1), max(height, 1)
	levels := 1
	if opts.Mipmaps {
		levels = mipmap.LevelCount(width, height)
	}
	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("texture %dx%d", width, height)
	}
	t := &Texture{
		r:         r,
		label:     label,
		kind:      kind,
		width:     width,
		height:    height,
		mipLevels: levels,
		opts:      opts,
	}
	r.resources.add(weakRef(t, func(v *Texture) releaser { return v }))
	return t
}

// Kind returns the texture variant.
func (t *Texture) Kind() TextureKind { return t.kind }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width of level 0.
func (t *Texture) Width() int { return t.width }

// Height returns the height of level 0.
func (t *Texture) Height() int { return t.height }

// MipLevels returns the number of mip levels.
func (t *Texture) MipLevels() int { return t.mipLevels }

// Loaded reports whether at least one upload completed.
func (t *Texture) Loaded() bool { return t.loaded.Load() }

// Queued reports whether the texture waits in the upload queue.
func (t *Texture) Queued() bool { return t.queued.Load() }

// PendingUploads returns the number of uploads not yet applied.
func (t *Texture) PendingUploads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Allocated reports whether native storage exists.
func (t *Texture) Allocated() bool { return t.native != nil }

// InUse reports whether the texture has been bound since it was created or
// freed.
func (t *Texture) InUse() bool { return t.lastUse > 0 }

// SetData queues u and enqueues the texture for upload. It may be called
// from any goroutine; uploads to one texture apply in call order.
func (t *Texture) SetData(u TextureUpload) {
	if t.disposed.Load() {
		return
	}
	t.mu.Lock()
	t.pending = append(t.pending, u)
	t.mu.Unlock()

	if t.queued.CompareAndSwap(false, true) {
		t.r.uploads.Enqueue(t)
	}
}

// Upload applies every queued upload. It runs on the render goroutine and
// is called by Reset; a texture that cannot be uploaded is skipped and its
// queued data dropped.
func (t *Texture) Upload() (int, bool) {
	if t.disposed.Load() {
		return 0, false
	}
	t.mu.Lock()
	regions := t.pending
	t.pending = nil
	t.mu.Unlock()
	if len(regions) == 0 {
		return 0, true
	}

	n, err := t.ensureNative()
	if err != nil {
		Logger().Debug("gfx: texture upload skipped", "label", t.label, "err", err)
		return 0, false
	}

	pixels := 0
	for _, u := range regions {
		if err := t.write(n, u); err != nil {
			Logger().Debug("gfx: texture upload skipped", "label", t.label, "err", err)
			return pixels, false
		}
		pixels += u.Bounds.Dx() * u.Bounds.Dy()
	}
	t.loaded.Store(true)
	return pixels, true
}

var errBadUpload = errors.New("gfx: invalid texture upload")

func (t *Texture) write(n *textureNative, u TextureUpload) error {
	if u.Level < 0 || u.Level >= t.mipLevels {
		return fmt.Errorf("%w: level %d of %d", errBadUpload, u.Level, t.mipLevels)
	}
	size := mipmap.LevelSize(t.width, t.height, u.Level)
	if u.Bounds.Empty() || !u.Bounds.In(image.Rectangle{Max: size}) {
		return fmt.Errorf("%w: region %v outside %v", errBadUpload, u.Bounds, size)
	}
	dx, dy := u.Bounds.Dx(), u.Bounds.Dy()
	if len(u.Pixels) != dx*dy*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d pixels", errBadUpload, len(u.Pixels), dx, dy)
	}

	if u.Level > 0 {
		t.manualMipmaps = true
	}
	if err := t.r.device.WriteTexture(n.tex, textureRegion(u.Bounds, u.Level), u.Pixels); err != nil {
		return fmt.Errorf("write texture %q: %w", t.label, err)
	}
	if u.Level != 0 || t.mipLevels == 1 || t.manualMipmaps {
		return nil
	}

	src := &image.RGBA{Pix: u.Pixels, Stride: dx * 4, Rect: image.Rect(0, 0, dx, dy)}
	for _, l := range mipmap.Generate(src, u.Bounds, t.width, t.height, t.mipLevels) {
		if err := t.r.device.WriteTexture(n.tex, textureRegion(l.Bounds, l.Level), l.Image.Pix); err != nil {
			return fmt.Errorf("write texture %q level %d: %w", t.label, l.Level, err)
		}
	}
	return nil
}

func textureRegion(r image.Rectangle, level int) backend.TextureRegion {
	return backend.TextureRegion{
		X:        uint32(r.Min.X),
		Y:        uint32(r.Min.Y),
		Width:    uint32(r.Dx()),
		Height:   uint32(r.Dy()),
		MipLevel: uint32(level),
	}
}

func (t *Texture) byteSize() uint64 {
	var total uint64
	for level := range t.mipLevels {
		s := mipmap.LevelSize(t.width, t.height, level)
		total += uint64(s.X) * uint64(s.Y) * 4
	}
	return total
}

func (t *Texture) ensureNative() (*textureNative, error) {
	if t.disposed.Load() {
		return nil, ErrDisposed
	}
	if t.native != nil {
		return t.native, nil
	}

	r := t.r
	tex, err := r.device.CreateTexture(&backend.TextureDescriptor{
		Label:        t.label,
		Width:        uint32(t.width),
		Height:       uint32(t.height),
		MipLevels:    uint32(t.mipLevels),
		Format:       gputypes.TextureFormatRGBA8Unorm,
		RenderTarget: t.kind == TextureKindFrameBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", t.label, err)
	}
	sampler, err := r.device.CreateSampler(&backend.SamplerDescriptor{
		Label:     t.label,
		Filter:    t.opts.Filter,
		Mipmapped: t.mipLevels > 1,
		Wrap:      t.opts.Wrap,
	})
	if err != nil {
		r.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create sampler %q: %w", t.label, err)
	}
	set, err := r.device.CreateTextureSet(tex, sampler)
	if err != nil {
		r.device.DestroySampler(sampler)
		r.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture set %q: %w", t.label, err)
	}

	n := &textureNative{tex: tex, sampler: sampler, set: set, bytes: t.byteSize()}
	t.native = n
	t.cleanup = runtime.AddCleanup(t, func(n *textureNative) {
		r.disposals.Schedule(func() { r.destroyTextureNative(n) })
	}, n)
	r.memory.allocate(ResourceTexture, n.bytes)
	return n, nil
}

// Bind binds t to unit for subsequent draws. Native storage is created if
// needed, but queued uploads are not forced.
func (t *Texture) Bind(unit int) (bool, error) {
	defer t.r.enter()()
	return t.bind(unit)
}

func (t *Texture) bind(unit int) (bool, error) {
	if unit < 0 || unit >= MaxTextureUnits {
		return false, fmt.Errorf("%w: texture unit %d", ErrIndexOutOfRange, unit)
	}
	if _, err := t.ensureNative(); err != nil {
		return false, err
	}
	if fb := t.r.currentFrameBuffer(); fb != nil && fb.colour == t {
		return false, ErrFeedbackLoop
	}
	t.lastUse = t.r.frameID
	return t.r.bindTextureUnit(unit, t), nil
}

// Sub returns the region bounds of t, clipped to the texture.
func (t *Texture) Sub(bounds image.Rectangle) *SubTexture {
	return &SubTexture{
		parent: t,
		bounds: bounds.Intersect(image.Rect(0, 0, t.width, t.height)),
	}
}

func (t *Texture) free() {
	if t.native != nil {
		t.cleanup.Stop()
		t.r.destroyTextureNative(t.native)
		t.native = nil
	}
	for i, bound := range t.r.textures {
		if bound == t {
			t.r.textures[i] = nil
		}
	}
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
	t.loaded.Store(false)
	t.manualMipmaps = false
	t.lastUse = 0
}

func (t *Texture) release() {
	t.free()
}

// Dispose frees the texture during the next Reset. It may be called from
// any goroutine; the texture must not be used afterwards. The white pixel
// texture cannot be disposed.
func (t *Texture) Dispose() {
	if t.kind == TextureKindWhitePixel {
		return
	}
	if !t.disposed.CompareAndSwap(false, true) {
		return
	}
	t.r.disposals.Schedule(t.free)
}

// SubTexture is a rectangular region of a parent texture, as used by
// atlases. It shares the parent's storage.
type SubTexture struct {
	parent *Texture
	bounds image.Rectangle
}

// Kind returns TextureKindSub.
func (s *SubTexture) Kind() TextureKind { return TextureKindSub }

// Parent returns the backing texture.
func (s *SubTexture) Parent() *Texture { return s.parent }

// Bounds returns the region within the parent.
func (s *SubTexture) Bounds() image.Rectangle { return s.bounds }

// TexCoords returns the region in normalized texture coordinates.
func (s *SubTexture) TexCoords() RectF {
	w, h := float32(s.parent.width), float32(s.parent.height)
	return RectF{
		X:      float32(s.bounds.Min.X) / w,
		Y:      float32(s.bounds.Min.Y) / h,
		Width:  float32(s.bounds.Dx()) / w,
		Height: float32(s.bounds.Dy()) / h,
	}
}

// Bind binds the parent texture.
func (s *SubTexture) Bind(unit int) (bool, error) {
	return s.parent.Bind(unit)
}

// SetData queues u relative to the region's origin on the parent.
func (s *SubTexture) SetData(u TextureUpload) {
	off := image.Pt(s.bounds.Min.X>>u.Level, s.bounds.Min.Y>>u.Level)
	u.Bounds = u.Bounds.Add(off)
	s.parent.SetData(u)
}

// Upload uploads the parent texture.
func (s *SubTexture) Upload() (int, bool) {
	return s.parent.Upload()
}

var (
	_ Bindable   = (*Texture)(nil)
	_ Bindable   = (*SubTexture)(nil)
	_ Uploadable = (*Texture)(nil)
	_ Uploadable = (*SubTexture)(nil)
)
