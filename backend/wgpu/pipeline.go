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

// layout returns the cached bind group layout for kind, creating it on
// first use. d.mu must be held.
//
// Uniform sets hold one uniform buffer at binding 0, visible to both
// stages. Texture sets hold a 2D float texture at binding 0 and a filtering
// sampler at binding 1, visible to the fragment stage.
func (d *Device) layout(kind pipeline.ResourceKind) (hal.BindGroupLayout, error) {
	if l, ok := d.layouts[kind]; ok {
		return l, nil
	}

	var entries []gputypes.BindGroupLayoutEntry
	switch kind {
	case pipeline.ResourceUniform:
		entries = []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		}
	case pipeline.ResourceTexture:
		entries = []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		}
	default:
		return nil, fmt.Errorf("wgpu: unknown resource set kind %d", kind)
	}

	l, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "gfx " + kind.String() + " layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s layout: %w", kind, err)
	}
	d.layouts[kind] = l
	return l, nil
}

// CreatePipeline builds a render pipeline for desc from shader. The
// pipeline owns a layout assembled from the cached per-kind bind group
// layouts in desc.ResourceSets order.
func (d *Device) CreatePipeline(desc *pipeline.Description, shader backend.Shader) (backend.Pipeline, error) {
	sh, err := own[*Shader](d, shader)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if sh.module == nil {
		return nil, fmt.Errorf("wgpu: create pipeline %q: shader %q: %w", desc.Label, sh.label, backend.ErrDestroyed)
	}
	if len(desc.Output.ColorFormats) == 0 {
		return nil, fmt.Errorf("wgpu: create pipeline %q: no color target", desc.Label)
	}

	groups := make([]hal.BindGroupLayout, 0, len(desc.ResourceSets))
	for _, kind := range desc.ResourceSets {
		l, err := d.layout(kind)
		if err != nil {
			return nil, err
		}
		groups = append(groups, l)
	}
	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + " layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}

	targets := make([]gputypes.ColorTargetState, len(desc.Output.ColorFormats))
	for i, f := range desc.Output.ColorFormats {
		targets[i] = gputypes.ColorTargetState{
			Format:    f,
			Blend:     blendState(desc.Blend),
			WriteMask: desc.Blend.WriteMask,
		}
	}

	rp, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     sh.module,
			EntryPoint: sh.vertex,
			Buffers:    vertexBuffers(desc.VertexLayout),
		},
		Fragment: &hal.FragmentState{
			Module:     sh.module,
			EntryPoint: sh.fragment,
			Targets:    targets,
		},
		DepthStencil: depthStencilState(desc),
		Primitive: gputypes.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: desc.Rasterizer.FrontFace,
			CullMode:  desc.Rasterizer.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count: max(desc.Output.SampleCount, 1),
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(layout)
		return nil, fmt.Errorf("wgpu: create pipeline %q: %w", desc.Label, err)
	}
	d.log().Debug("wgpu: pipeline created", "label", desc.Label)
	return &Pipeline{
		dev:      d,
		label:    desc.Label,
		layout:   layout,
		pipeline: rp,
		scissor:  desc.Rasterizer.ScissorTest,
	}, nil
}

func blendState(b pipeline.BlendState) *gputypes.BlendState {
	if !b.Enabled {
		return nil
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: b.Color.SrcFactor,
			DstFactor: b.Color.DstFactor,
			Operation: b.Color.Operation,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: b.Alpha.SrcFactor,
			DstFactor: b.Alpha.DstFactor,
			Operation: b.Alpha.Operation,
		},
	}
}

// depthStencilState returns nil when the pipeline renders without a depth
// attachment. Disabled tests compare Always; the stencil buffer is never
// written.
func depthStencilState(desc *pipeline.Description) *hal.DepthStencilState {
	if desc.Output.DepthFormat == gputypes.TextureFormatUndefined {
		return nil
	}
	ds := desc.DepthStencil
	depthCompare := gputypes.CompareFunctionAlways
	if ds.DepthTest {
		depthCompare = ds.DepthCompare
	}
	stencilCompare := gputypes.CompareFunctionAlways
	var readMask uint32
	if ds.StencilTest {
		stencilCompare = ds.StencilCompare
		readMask = 0xFF
	}
	face := hal.StencilFaceState{
		Compare:     stencilCompare,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	return &hal.DepthStencilState{
		Format:            desc.Output.DepthFormat,
		DepthWriteEnabled: ds.DepthTest && ds.DepthWrite,
		DepthCompare:      depthCompare,
		StencilFront:      face,
		StencilBack:       face,
		StencilReadMask:   readMask,
		StencilWriteMask:  0x00,
	}
}

func vertexBuffers(l pipeline.VertexLayout) []gputypes.VertexBufferLayout {
	if l.Stride == 0 {
		return nil
	}
	attrs := make([]gputypes.VertexAttribute, len(l.Attributes))
	for i, a := range l.Attributes {
		attrs[i] = gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         a.Offset,
			ShaderLocation: a.ShaderLocation,
		}
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: l.Stride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}
