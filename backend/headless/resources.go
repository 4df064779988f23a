// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package headless

import (
	"slices"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
)

// Buffer is a CPU-backed buffer.
type Buffer struct {
	dev       *Device
	label     string
	usage     backend.BufferUsage
	data      []byte
	writes    int
	destroyed bool
}

func (b *Buffer) device() *Device { return b.dev }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Usage returns the buffer usage.
func (b *Buffer) Usage() backend.BufferUsage { return b.usage }

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return slices.Clone(b.data)
}

// Writes returns how many WriteBuffer calls targeted the buffer.
func (b *Buffer) Writes() int {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.writes
}

// Destroyed reports whether the buffer was destroyed.
func (b *Buffer) Destroyed() bool {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.destroyed
}

// Texture is a CPU-backed RGBA texture.
type Texture struct {
	dev          *Device
	label        string
	width        uint32
	height       uint32
	format       gputypes.TextureFormat
	renderTarget bool
	levels       [][]byte
	destroyed    bool
}

func (t *Texture) device() *Device { return t.dev }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width of level 0.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height of level 0.
func (t *Texture) Height() uint32 { return t.height }

// MipLevels returns the number of mip levels.
func (t *Texture) MipLevels() int { return len(t.levels) }

// RenderTarget reports whether the texture may be used as an attachment.
func (t *Texture) RenderTarget() bool { return t.renderTarget }

// Pixels returns a copy of the tightly packed RGBA contents of level.
func (t *Texture) Pixels(level int) []byte {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if level < 0 || level >= len(t.levels) {
		return nil
	}
	return slices.Clone(t.levels[level])
}

// Destroyed reports whether the texture was destroyed.
func (t *Texture) Destroyed() bool {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.destroyed
}

// Sampler is a recorded sampler descriptor.
type Sampler struct {
	dev       *Device
	label     string
	desc      backend.SamplerDescriptor
	destroyed bool
}

func (s *Sampler) device() *Device { return s.dev }

// Label returns the debug label.
func (s *Sampler) Label() string { return s.label }

// Shader is a recorded shader descriptor.
type Shader struct {
	dev       *Device
	label     string
	desc      backend.ShaderDescriptor
	destroyed bool
}

func (s *Shader) device() *Device { return s.dev }

// Label returns the debug label.
func (s *Shader) Label() string { return s.label }

// Descriptor returns the descriptor the shader was created from.
func (s *Shader) Descriptor() backend.ShaderDescriptor { return s.desc }

// Pipeline is a recorded pipeline description.
type Pipeline struct {
	dev       *Device
	label     string
	desc      pipeline.Description
	shader    *Shader
	destroyed bool
}

func (p *Pipeline) device() *Device { return p.dev }

// Label returns the debug label.
func (p *Pipeline) Label() string { return p.label }

// Description returns the description the pipeline was built from.
func (p *Pipeline) Description() pipeline.Description { return p.desc }

// ResourceSet is a recorded resource binding.
type ResourceSet struct {
	dev       *Device
	label     string
	kind      pipeline.ResourceKind
	buffer    *Buffer
	texture   *Texture
	sampler   *Sampler
	destroyed bool
}

func (r *ResourceSet) device() *Device { return r.dev }

// Label returns the label of the bound buffer or texture.
func (r *ResourceSet) Label() string { return r.label }

// Kind returns the resource kind.
func (r *ResourceSet) Kind() pipeline.ResourceKind { return r.kind }

// Buffer returns the bound uniform buffer, or nil.
func (r *ResourceSet) Buffer() *Buffer { return r.buffer }

// Texture returns the bound texture, or nil.
func (r *ResourceSet) Texture() *Texture { return r.texture }
