// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"image"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// depthNative owns a depth-stencil attachment.
type depthNative struct {
	tex   backend.Texture
	bytes uint64
}

func (r *Renderer) destroyDepthNative(n *depthNative) {
	if n == nil || n.tex == nil || r.closed.Load() {
		return
	}
	r.device.DestroyTexture(n.tex)
	r.memory.release(ResourceTexture, n.bytes)
	n.tex = nil
}

// FrameBuffer is an offscreen render target: a colour texture plus an
// optional depth-stencil attachment. While bound, draws render into it;
// afterwards its colour texture can be sampled like any other texture.
type FrameBuffer struct {
	r         *Renderer
	colour    *Texture
	withDepth bool

	colorFormats []gputypes.TextureFormat
	depthFormat  gputypes.TextureFormat

	depth        *depthNative
	depthCleanup runtime.Cleanup

	disposed atomic.Bool
}

// NewFrameBuffer creates a width x height frame buffer. Native storage is
// created on first bind.
func (r *Renderer) NewFrameBuffer(width, height int, withDepth bool) *FrameBuffer {
	opts := DefaultTextureOptions()
	opts.Label = fmt.Sprintf("frame buffer %dx%d", width, height)

	fb := &FrameBuffer{
		r:            r,
		colour:       r.newTexture(width, height, opts, TextureKindFrameBuffer),
		withDepth:    withDepth,
		colorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
		depthFormat:  gputypes.TextureFormatUndefined,
	}
	if withDepth {
		fb.depthFormat = gputypes.TextureFormatDepth24PlusStencil8
	}
	r.resources.add(weakRef(fb, func(v *FrameBuffer) releaser { return v }))
	return fb
}

// Kind returns TextureKindFrameBuffer.
func (fb *FrameBuffer) Kind() TextureKind { return TextureKindFrameBuffer }

// Texture returns the colour attachment.
func (fb *FrameBuffer) Texture() *Texture { return fb.colour }

// Size returns the frame buffer size.
func (fb *FrameBuffer) Size() image.Point {
	return image.Pt(fb.colour.width, fb.colour.height)
}

// HasDepth reports whether the frame buffer has a depth-stencil attachment.
func (fb *FrameBuffer) HasDepth() bool { return fb.withDepth }

// Bind binds the colour attachment to a texture unit for sampling.
func (fb *FrameBuffer) Bind(unit int) (bool, error) {
	if fb.disposed.Load() {
		return false, ErrDisposed
	}
	return fb.colour.Bind(unit)
}

// BindTarget makes fb the render target. See Renderer.BindFrameBuffer.
func (fb *FrameBuffer) BindTarget() error { return fb.r.BindFrameBuffer(fb) }

// UnbindTarget restores the previous render target.
func (fb *FrameBuffer) UnbindTarget() error { return fb.r.UnbindFrameBuffer(fb) }

func (fb *FrameBuffer) bound() bool {
	for _, b := range fb.r.frameBuffers {
		if b == fb {
			return true
		}
	}
	return false
}

func (fb *FrameBuffer) ensureNative() error {
	if _, err := fb.colour.ensureNative(); err != nil {
		return err
	}
	if !fb.withDepth || fb.depth != nil {
		return nil
	}

	r := fb.r
	tex, err := r.device.CreateTexture(&backend.TextureDescriptor{
		Label:        fb.colour.label + " depth",
		Width:        uint32(fb.colour.width),
		Height:       uint32(fb.colour.height),
		Format:       fb.depthFormat,
		RenderTarget: true,
	})
	if err != nil {
		return fmt.Errorf("create depth attachment: %w", err)
	}
	n := &depthNative{tex: tex, bytes: uint64(fb.colour.width) * uint64(fb.colour.height) * 4}
	fb.depth = n
	fb.depthCleanup = runtime.AddCleanup(fb, func(n *depthNative) {
		r.disposals.Schedule(func() { r.destroyDepthNative(n) })
	}, n)
	r.memory.allocate(ResourceTexture, n.bytes)
	return nil
}

func (fb *FrameBuffer) depthTarget() backend.Texture {
	if fb.depth == nil {
		return nil
	}
	return fb.depth.tex
}

// Resize changes the frame buffer size, discarding its contents. It must
// not be called while fb is bound as the render target.
func (fb *FrameBuffer) Resize(width, height int) error {
	if fb.disposed.Load() {
		return ErrDisposed
	}
	if fb.bound() {
		return fmt.Errorf("%w: resize of a bound frame buffer", ErrPrecondition)
	}
	width, height = max(width, 1), max(height, 1)
	if width == fb.colour.width && height == fb.colour.height {
		return nil
	}
	fb.free()
	fb.colour.width, fb.colour.height = width, height
	return nil
}

func (fb *FrameBuffer) free() {
	fb.colour.free()
	if fb.depth != nil {
		fb.depthCleanup.Stop()
		fb.r.destroyDepthNative(fb.depth)
		fb.depth = nil
	}
}

func (fb *FrameBuffer) release() {
	fb.free()
}

// Dispose frees the frame buffer during the next Reset. It may be called
// from any goroutine.
func (fb *FrameBuffer) Dispose() {
	if !fb.disposed.CompareAndSwap(false, true) {
		return
	}
	fb.colour.disposed.Store(true)
	fb.r.disposals.Schedule(fb.free)
}

var _ Bindable = (*FrameBuffer)(nil)
