// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer wraps a HAL buffer.
type Buffer struct {
	dev   *Device
	label string
	size  uint64
	usage backend.BufferUsage
	buf   hal.Buffer
}

func (b *Buffer) device() *Device { return b.dev }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the requested size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Texture wraps a HAL texture and a view over all of its mip levels.
type Texture struct {
	dev           *Device
	label         string
	width, height uint32
	mipLevels     uint32
	format        gputypes.TextureFormat
	tex           hal.Texture
	view          hal.TextureView
}

func (t *Texture) device() *Device { return t.dev }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width of mip level 0.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height of mip level 0.
func (t *Texture) Height() uint32 { return t.height }

// Sampler wraps a HAL sampler.
type Sampler struct {
	dev     *Device
	label   string
	sampler hal.Sampler
}

func (s *Sampler) device() *Device { return s.dev }

// Label returns the debug label.
func (s *Sampler) Label() string { return s.label }

// Shader wraps a HAL shader module and its entry points.
type Shader struct {
	dev      *Device
	label    string
	module   hal.ShaderModule
	vertex   string
	fragment string
}

func (s *Shader) device() *Device { return s.dev }

// Label returns the debug label.
func (s *Shader) Label() string { return s.label }

// Pipeline wraps a HAL render pipeline and the layout it owns.
type Pipeline struct {
	dev      *Device
	label    string
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline

	// scissor is false when the description disables the scissor test; the
	// encoder then clips to the whole target while the pipeline is bound.
	scissor bool
}

func (p *Pipeline) device() *Device { return p.dev }

// Label returns the debug label.
func (p *Pipeline) Label() string { return p.label }

// ResourceSet wraps a HAL bind group.
type ResourceSet struct {
	dev   *Device
	label string
	kind  pipeline.ResourceKind
	group hal.BindGroup
}

func (s *ResourceSet) device() *Device { return s.dev }

// Label returns the debug label.
func (s *ResourceSet) Label() string { return s.label }

// Kind returns the layout kind the set was created for.
func (s *ResourceSet) Kind() pipeline.ResourceKind { return s.kind }

// own checks that r was created by d and has the concrete type T.
func own[T interface {
	backend.Resource
	device() *Device
}](d *Device, r backend.Resource) (T, error) {
	var zero T
	if r == nil {
		return zero, fmt.Errorf("wgpu: nil resource: %w", backend.ErrForeignResource)
	}
	v, ok := r.(T)
	if !ok || v.device() != d {
		return zero, fmt.Errorf("wgpu: %s: %w", r.Label(), backend.ErrForeignResource)
	}
	return v, nil
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8
}
