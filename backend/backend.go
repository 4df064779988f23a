// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"context"
	"errors"
	"image"

	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrDestroyed is returned when using a device or resource after Destroy.
	ErrDestroyed = errors.New("backend: destroyed")

	// ErrForeignResource is returned when a resource created by another
	// device is passed in.
	ErrForeignResource = errors.New("backend: resource belongs to another device")

	// ErrOutOfBounds is returned when a write exceeds a resource's extent.
	ErrOutOfBounds = errors.New("backend: write out of bounds")
)

// Resource is implemented by every native handle a Device returns.
type Resource interface {
	// Label returns the debug label given at creation.
	Label() string
}

// Buffer is a native GPU buffer.
type Buffer interface {
	Resource
	Size() uint64
}

// Texture is a native GPU texture.
type Texture interface {
	Resource
	Width() uint32
	Height() uint32
}

// Sampler is a native sampler object.
type Sampler interface{ Resource }

// Shader is a native shader module.
type Shader interface{ Resource }

// Pipeline is a native render pipeline.
type Pipeline interface{ Resource }

// ResourceSet binds resources to one group of a pipeline layout.
type ResourceSet interface{ Resource }

// BufferUsage specifies how a buffer is used.
type BufferUsage uint8

const (
	// BufferUsageVertex is a vertex buffer.
	BufferUsageVertex BufferUsage = iota + 1

	// BufferUsageUniform is a uniform buffer.
	BufferUsageUniform
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureDescriptor describes a 2D texture to create.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32

	// MipLevels is the number of mipmap levels. Zero means one.
	MipLevels uint32

	Format gputypes.TextureFormat

	// RenderTarget allows the texture to be bound as a color or depth
	// attachment.
	RenderTarget bool
}

// TextureRegion is the destination of a texture write.
type TextureRegion struct {
	X, Y          uint32
	Width, Height uint32
	MipLevel      uint32
}

// SamplerDescriptor describes a sampler to create.
type SamplerDescriptor struct {
	Label     string
	Filter    gputypes.FilterMode
	Mipmapped bool
	Wrap      gputypes.AddressMode
}

// ShaderDescriptor describes a shader module. SPIRV, when set, is the
// validated compilation of WGSL.
type ShaderDescriptor struct {
	Label          string
	WGSL           string
	SPIRV          []uint32
	VertexEntry    string
	FragmentEntry  string
	ResourceLayout []pipeline.ResourceKind
}

// ClearInfo describes which aspects of the active render target to clear.
type ClearInfo struct {
	Colour  gputypes.Color
	Depth   float32
	Stencil uint32

	ClearColour  bool
	ClearDepth   bool
	ClearStencil bool
}

// Device creates native resources and starts frames.
type Device interface {
	// Name returns the backend identifier (e.g., "wgpu", "headless").
	Name() string

	// BackbufferFormats returns the color and depth formats of the window
	// target. Depth is TextureFormatUndefined when there is none.
	BackbufferFormats() (color, depth gputypes.TextureFormat)

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	DestroyBuffer(buf Buffer)

	CreateTexture(desc *TextureDescriptor) (Texture, error)
	WriteTexture(tex Texture, region TextureRegion, data []byte) error
	DestroyTexture(tex Texture)

	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	DestroySampler(s Sampler)

	CreateShader(desc *ShaderDescriptor) (Shader, error)
	DestroyShader(s Shader)

	// CreatePipeline builds a render pipeline for desc from shader.
	CreatePipeline(desc *pipeline.Description, shader Shader) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	// CreateUniformSet binds buf as the single uniform of a resource set.
	CreateUniformSet(buf Buffer) (ResourceSet, error)

	// CreateTextureSet binds tex and sampler as a texture resource set.
	CreateTextureSet(tex Texture, sampler Sampler) (ResourceSet, error)
	DestroyResourceSet(set ResourceSet)

	// BeginFrame starts recording a frame whose backbuffer is width x height.
	BeginFrame(width, height uint32) (Encoder, error)

	// WaitIdle blocks until all submitted work has completed or ctx is done.
	WaitIdle(ctx context.Context) error

	// Destroy releases the device. It must not be used afterwards.
	Destroy()
}

// Encoder records the commands of one frame.
//
// Recording methods do not return errors; failures surface from Finish.
type Encoder interface {
	// SetRenderTarget redirects subsequent commands to color and depth.
	// A nil color selects the backbuffer. Viewport, scissor, pipeline and
	// resource bindings must be set again afterwards.
	SetRenderTarget(color, depth Texture)

	// Clear clears the active render target. Bindings must be set again
	// afterwards.
	Clear(info ClearInfo)

	SetViewport(r image.Rectangle)
	SetScissor(r image.Rectangle)
	SetPipeline(p Pipeline)
	SetVertexBuffer(buf Buffer)
	SetResourceSet(group uint32, set ResourceSet)

	// Draw draws count vertices starting at first.
	Draw(first, count uint32)

	// Finish submits the recorded frame.
	Finish() error
}
