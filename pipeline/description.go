// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline describes render pipeline state and memoizes the
// backend pipeline objects built from it.
package pipeline

import (
	"slices"

	"github.com/gogpu/gputypes"
)

// BlendComponent describes a blend component (color or alpha).
type BlendComponent struct {
	// SrcFactor is the source blend factor.
	SrcFactor gputypes.BlendFactor

	// DstFactor is the destination blend factor.
	DstFactor gputypes.BlendFactor

	// Operation is the blend operation.
	Operation gputypes.BlendOperation
}

// BlendState describes the color blending configuration.
// A disabled blend state replaces the destination with the source.
type BlendState struct {
	Enabled   bool
	Color     BlendComponent
	Alpha     BlendComponent
	WriteMask gputypes.ColorWriteMask
}

// AlphaBlend is conventional non-premultiplied alpha blending.
func AlphaBlend() BlendState {
	return BlendState{
		Enabled: true,
		Color: BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		WriteMask: gputypes.ColorWriteMaskAll,
	}
}

// Opaque disables blending.
func Opaque() BlendState {
	return BlendState{WriteMask: gputypes.ColorWriteMaskAll}
}

// DepthStencilState describes depth testing and the stencil test used for
// masking.
type DepthStencilState struct {
	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	StencilTest    bool
	StencilCompare gputypes.CompareFunction
}

// RasterizerState describes primitive assembly and fragment clipping.
type RasterizerState struct {
	CullMode    gputypes.CullMode
	FrontFace   gputypes.FrontFace
	ScissorTest bool
}

// VertexAttribute describes a vertex attribute.
type VertexAttribute struct {
	// ShaderLocation is the attribute location in the shader.
	ShaderLocation uint32

	// Format is the attribute data format.
	Format gputypes.VertexFormat

	// Offset is the byte offset from the start of the vertex.
	Offset uint64
}

// VertexLayout describes one interleaved vertex buffer.
type VertexLayout struct {
	// Stride is the byte stride between consecutive vertices.
	Stride uint64

	Attributes []VertexAttribute
}

// OutputState describes the render targets a pipeline writes to.
type OutputState struct {
	ColorFormats []gputypes.TextureFormat

	// DepthFormat is TextureFormatUndefined when there is no depth attachment.
	DepthFormat gputypes.TextureFormat

	SampleCount uint32
}

// Description is the structural identity of a render pipeline.
//
// Two descriptions that are Equal always resolve to the same cached
// pipeline. Label is informational and does not take part in equality.
type Description struct {
	Label string

	// Shader identifies the shader program the pipeline is built from.
	Shader uint64

	// ResourceSets lists the resource set (bind group) kinds the shader
	// program declares, in group order.
	ResourceSets []ResourceKind

	Topology     gputypes.PrimitiveTopology
	Blend        BlendState
	DepthStencil DepthStencilState
	Rasterizer   RasterizerState
	VertexLayout VertexLayout
	Output       OutputState
}

// ResourceKind is the kind of a resource set slot in a pipeline layout.
type ResourceKind uint8

const (
	// ResourceUniform is a single uniform buffer binding.
	ResourceUniform ResourceKind = iota + 1

	// ResourceTexture is a texture view plus its sampler.
	ResourceTexture
)

// String returns the resource kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceUniform:
		return "uniform"
	case ResourceTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// Equal reports whether d and o describe the same pipeline.
func (d *Description) Equal(o *Description) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Shader == o.Shader &&
		d.Topology == o.Topology &&
		d.Blend == o.Blend &&
		d.DepthStencil == o.DepthStencil &&
		d.Rasterizer == o.Rasterizer &&
		slices.Equal(d.ResourceSets, o.ResourceSets) &&
		d.VertexLayout.Stride == o.VertexLayout.Stride &&
		slices.Equal(d.VertexLayout.Attributes, o.VertexLayout.Attributes) &&
		slices.Equal(d.Output.ColorFormats, o.Output.ColorFormats) &&
		d.Output.DepthFormat == o.Output.DepthFormat &&
		d.Output.SampleCount == o.Output.SampleCount
}
