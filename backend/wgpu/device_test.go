// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/backend/headless"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShader = `
@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

// newNoopDevice opens a Device on the noop HAL.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	d, err := openInstance(instance)
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	return d
}

func testPipeline(t *testing.T, d *Device, sets ...pipeline.ResourceKind) (backend.Shader, backend.Pipeline) {
	t.Helper()
	sh, err := d.CreateShader(&backend.ShaderDescriptor{
		Label:         "test",
		WGSL:          testShader,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
	})
	require.NoError(t, err)

	color, depth := d.BackbufferFormats()
	desc := &pipeline.Description{
		Label:        "test pipeline",
		ResourceSets: sets,
		Topology:     gputypes.PrimitiveTopologyTriangleList,
		Blend:        pipeline.AlphaBlend(),
		DepthStencil: pipeline.DepthStencilState{DepthTest: true, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess},
		Rasterizer:   pipeline.RasterizerState{CullMode: gputypes.CullModeNone, FrontFace: gputypes.FrontFaceCCW, ScissorTest: true},
		VertexLayout: pipeline.VertexLayout{
			Stride:     8,
			Attributes: []pipeline.VertexAttribute{{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x2}},
		},
		Output: pipeline.OutputState{
			ColorFormats: []gputypes.TextureFormat{color},
			DepthFormat:  depth,
			SampleCount:  1,
		},
	}
	p, err := d.CreatePipeline(desc, sh)
	require.NoError(t, err)
	return sh, p
}

func TestRegistered(t *testing.T) {
	assert.True(t, backend.IsRegistered(backend.BackendWGPU))
}

func TestBackbufferFormats(t *testing.T) {
	d := newNoopDevice(t)
	color, depth := d.BackbufferFormats()
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, color)
	assert.Equal(t, gputypes.TextureFormatDepth24PlusStencil8, depth)
	assert.Equal(t, "wgpu", d.Name())
}

func TestBufferWrites(t *testing.T) {
	d := newNoopDevice(t)
	buf, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "vb", Size: 24, Usage: backend.BufferUsageVertex})
	require.NoError(t, err)
	assert.Equal(t, uint64(24), buf.Size())

	require.NoError(t, d.WriteBuffer(buf, 0, make([]byte, 24)))
	require.NoError(t, d.WriteBuffer(buf, 4, []byte{1, 2, 3}))
	assert.ErrorIs(t, d.WriteBuffer(buf, 20, make([]byte, 8)), backend.ErrOutOfBounds)

	d.DestroyBuffer(buf)
	d.DestroyBuffer(buf)
	assert.ErrorIs(t, d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4}), backend.ErrDestroyed)
}

func TestForeignResource(t *testing.T) {
	d := newNoopDevice(t)
	other := headless.New()
	buf, err := other.CreateBuffer(&backend.BufferDescriptor{Label: "foreign", Size: 4})
	require.NoError(t, err)

	assert.ErrorIs(t, d.WriteBuffer(buf, 0, []byte{1, 2, 3, 4}), backend.ErrForeignResource)
	_, err = d.CreateUniformSet(buf)
	assert.ErrorIs(t, err, backend.ErrForeignResource)
	_, err = d.CreateUniformSet(nil)
	assert.ErrorIs(t, err, backend.ErrForeignResource)
}

func TestTextureWrites(t *testing.T) {
	d := newNoopDevice(t)
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Label: "sprite", Width: 8, Height: 4, MipLevels: 3, Format: gputypes.TextureFormatRGBA8Unorm,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		region  backend.TextureRegion
		wantErr error
	}{
		{"full level 0", backend.TextureRegion{Width: 8, Height: 4}, nil},
		{"sub region", backend.TextureRegion{X: 2, Y: 1, Width: 2, Height: 2}, nil},
		{"level 2", backend.TextureRegion{Width: 2, Height: 1, MipLevel: 2}, nil},
		{"past right edge", backend.TextureRegion{X: 7, Width: 2, Height: 1}, backend.ErrOutOfBounds},
		{"level past chain", backend.TextureRegion{Width: 1, Height: 1, MipLevel: 3}, backend.ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, int(tt.region.Width*tt.region.Height)*bytesPerPixel)
			err := d.WriteTexture(tex, tt.region, data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	err = d.WriteTexture(tex, backend.TextureRegion{Width: 2, Height: 2}, make([]byte, 4))
	assert.Error(t, err, "short data")

	_, err = d.CreateTexture(&backend.TextureDescriptor{Label: "empty"})
	assert.Error(t, err)
}

func TestShaderSources(t *testing.T) {
	d := newNoopDevice(t)
	_, err := d.CreateShader(&backend.ShaderDescriptor{Label: "blank"})
	assert.Error(t, err)

	sh, err := d.CreateShader(&backend.ShaderDescriptor{
		Label: "spirv", SPIRV: []uint32{0x07230203}, VertexEntry: "vs_main", FragmentEntry: "fs_main",
	})
	require.NoError(t, err)
	assert.Equal(t, "spirv", sh.Label())
	d.DestroyShader(sh)
}

func TestLayoutsCachedPerKind(t *testing.T) {
	d := newNoopDevice(t)
	_, p1 := testPipeline(t, d, pipeline.ResourceUniform, pipeline.ResourceTexture)
	_, p2 := testPipeline(t, d, pipeline.ResourceUniform)
	assert.Len(t, d.layouts, 2)
	assert.True(t, p1.(*Pipeline).scissor)
	d.DestroyPipeline(p1)
	d.DestroyPipeline(p2)

	d.mu.Lock()
	_, err := d.layout(pipeline.ResourceKind(99))
	d.mu.Unlock()
	assert.Error(t, err)
}

func TestPipelineNeedsColorTarget(t *testing.T) {
	d := newNoopDevice(t)
	sh, err := d.CreateShader(&backend.ShaderDescriptor{Label: "s", WGSL: testShader})
	require.NoError(t, err)
	_, err = d.CreatePipeline(&pipeline.Description{Label: "none"}, sh)
	assert.Error(t, err)
}

func TestDepthStencilState(t *testing.T) {
	desc := &pipeline.Description{Output: pipeline.OutputState{DepthFormat: gputypes.TextureFormatUndefined}}
	assert.Nil(t, depthStencilState(desc))

	desc.Output.DepthFormat = gputypes.TextureFormatDepth24PlusStencil8
	ds := depthStencilState(desc)
	require.NotNil(t, ds)
	assert.Equal(t, gputypes.CompareFunctionAlways, ds.DepthCompare)
	assert.False(t, ds.DepthWriteEnabled)

	desc.DepthStencil = pipeline.DepthStencilState{DepthTest: true, DepthWrite: true, DepthCompare: gputypes.CompareFunctionLess}
	ds = depthStencilState(desc)
	assert.Equal(t, gputypes.CompareFunctionLess, ds.DepthCompare)
	assert.True(t, ds.DepthWriteEnabled)
	assert.Equal(t, hal.StencilOperationKeep, ds.StencilFront.PassOp)
}

func TestBlendState(t *testing.T) {
	assert.Nil(t, blendState(pipeline.Opaque()))
	b := blendState(pipeline.AlphaBlend())
	require.NotNil(t, b)
	assert.Equal(t, gputypes.BlendFactorSrcAlpha, b.Color.SrcFactor)
	assert.Equal(t, gputypes.BlendFactorOne, b.Alpha.SrcFactor)
}

func TestVertexBuffers(t *testing.T) {
	assert.Nil(t, vertexBuffers(pipeline.VertexLayout{}))
	l := vertexBuffers(pipeline.VertexLayout{
		Stride: 28,
		Attributes: []pipeline.VertexAttribute{
			{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x2},
			{ShaderLocation: 1, Format: gputypes.VertexFormatFloat32x4, Offset: 8},
			{ShaderLocation: 2, Format: gputypes.VertexFormatFloat32, Offset: 24},
		},
	})
	require.Len(t, l, 1)
	assert.EqualValues(t, 28, l[0].ArrayStride)
	assert.Len(t, l[0].Attributes, 3)
	assert.EqualValues(t, 2, l[0].Attributes[2].ShaderLocation)
}

func TestFrameRecording(t *testing.T) {
	d := newNoopDevice(t)
	_, p := testPipeline(t, d, pipeline.ResourceUniform, pipeline.ResourceTexture)

	vb, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "vb", Size: 48, Usage: backend.BufferUsageVertex})
	require.NoError(t, err)
	ub, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "ub", Size: 64, Usage: backend.BufferUsageUniform})
	require.NoError(t, err)
	uniforms, err := d.CreateUniformSet(ub)
	require.NoError(t, err)

	tex, err := d.CreateTexture(&backend.TextureDescriptor{Label: "white", Width: 1, Height: 1})
	require.NoError(t, err)
	sampler, err := d.CreateSampler(&backend.SamplerDescriptor{
		Label: "linear", Filter: gputypes.FilterModeLinear, Wrap: gputypes.AddressModeClampToEdge,
	})
	require.NoError(t, err)
	textures, err := d.CreateTextureSet(tex, sampler)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ResourceTexture, textures.(*ResourceSet).Kind())

	for frame := range 3 {
		enc, err := d.BeginFrame(64, 32)
		require.NoError(t, err, "frame %d", frame)
		enc.Clear(backend.ClearInfo{ClearColour: true, ClearDepth: true, Depth: 1})
		enc.SetViewport(image.Rect(0, 0, 64, 32))
		enc.SetScissor(image.Rect(8, 8, 200, 200))
		enc.SetPipeline(p)
		enc.SetVertexBuffer(vb)
		enc.SetResourceSet(0, uniforms)
		enc.SetResourceSet(1, textures)
		enc.Draw(0, 6)
		enc.Draw(0, 0)
		require.NoError(t, enc.Finish())
		assert.ErrorIs(t, enc.Finish(), errFrameFinished)
	}
	assert.Equal(t, uint64(3), d.submitted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.WaitIdle(ctx))
	assert.Equal(t, uint64(3), d.completed)
}

func TestOffscreenTarget(t *testing.T) {
	d := newNoopDevice(t)
	_, p := testPipeline(t, d)

	color, err := d.CreateTexture(&backend.TextureDescriptor{
		Label: "fb", Width: 16, Height: 16, Format: gputypes.TextureFormatRGBA8Unorm, RenderTarget: true,
	})
	require.NoError(t, err)
	depth, err := d.CreateTexture(&backend.TextureDescriptor{
		Label: "fb depth", Width: 16, Height: 16, Format: gputypes.TextureFormatDepth24PlusStencil8, RenderTarget: true,
	})
	require.NoError(t, err)
	vb, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "vb", Size: 24})
	require.NoError(t, err)

	enc, err := d.BeginFrame(32, 32)
	require.NoError(t, err)
	e := enc.(*encoder)

	enc.SetRenderTarget(color, depth)
	assert.Equal(t, uint32(16), e.target.width)
	enc.Clear(backend.ClearInfo{ClearColour: true})
	enc.SetPipeline(p)
	enc.SetVertexBuffer(vb)
	enc.Draw(0, 3)
	assert.NotNil(t, e.pass)

	enc.SetRenderTarget(nil, nil)
	assert.Nil(t, e.pass)
	assert.Nil(t, e.pipeline, "bindings reset on target change")
	assert.Equal(t, uint32(32), e.target.width)
	require.NoError(t, enc.Finish())
}

func TestDrawWithoutPipelineFailsFrame(t *testing.T) {
	d := newNoopDevice(t)
	enc, err := d.BeginFrame(8, 8)
	require.NoError(t, err)
	enc.Draw(0, 3)
	assert.Error(t, enc.Finish())

	// The device recovers for the next frame.
	enc, err = d.BeginFrame(8, 8)
	require.NoError(t, err)
	require.NoError(t, enc.Finish())
}

func TestBeginFrameErrors(t *testing.T) {
	d := newNoopDevice(t)
	_, err := d.BeginFrame(0, 10)
	assert.Error(t, err)

	enc, err := d.BeginFrame(10, 10)
	require.NoError(t, err)
	_, err = d.BeginFrame(10, 10)
	assert.Error(t, err, "frame already recording")
	require.NoError(t, enc.Finish())
}

func TestBackbufferResize(t *testing.T) {
	d := newNoopDevice(t)
	for _, size := range [][2]uint32{{10, 10}, {10, 10}, {20, 5}} {
		enc, err := d.BeginFrame(size[0], size[1])
		require.NoError(t, err)
		require.NoError(t, enc.Finish())
		assert.Equal(t, size[0], d.backbuffer.Width())
		assert.Equal(t, size[1], d.depth.Height())
	}
}

func TestDeferredDestroy(t *testing.T) {
	d := newNoopDevice(t)
	enc, err := d.BeginFrame(4, 4)
	require.NoError(t, err)

	buf, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "transient", Size: 4})
	require.NoError(t, err)
	d.DestroyBuffer(buf)
	require.Len(t, d.graveyard, 1)
	assert.Equal(t, uint64(1), d.graveyard[0].value, "waits for the frame being recorded")

	require.NoError(t, enc.Finish())
	enc, err = d.BeginFrame(4, 4)
	require.NoError(t, err)
	assert.Empty(t, d.graveyard)
	require.NoError(t, enc.Finish())
}

func TestDestroyedDevice(t *testing.T) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	d, err := openInstance(instance)
	require.NoError(t, err)

	buf, err := d.CreateBuffer(&backend.BufferDescriptor{Label: "b", Size: 4})
	require.NoError(t, err)
	d.Destroy()
	d.Destroy()

	_, err = d.CreateBuffer(&backend.BufferDescriptor{Label: "late", Size: 4})
	assert.ErrorIs(t, err, backend.ErrDestroyed)
	_, err = d.BeginFrame(4, 4)
	assert.ErrorIs(t, err, backend.ErrDestroyed)
	assert.ErrorIs(t, d.WaitIdle(context.Background()), backend.ErrDestroyed)
	d.DestroyBuffer(buf)
}

// mockDevice implements gpucontext.Device.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider and, when hal is set,
// exposes a noop HAL device.
type mockProvider struct {
	format gputypes.TextureFormat
}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }

type mockHalProvider struct {
	mockProvider
	device hal.Device
	queue  hal.Queue
}

func (m *mockHalProvider) HalDevice() any { return m.device }
func (m *mockHalProvider) HalQueue() any  { return m.queue }

func TestNewFromProvider(t *testing.T) {
	_, err := NewFromProvider(nil)
	assert.ErrorIs(t, err, ErrNoHAL)

	_, err = NewFromProvider(&mockProvider{})
	assert.ErrorIs(t, err, ErrNoHAL)

	_, err = NewFromProvider(&mockHalProvider{})
	assert.ErrorIs(t, err, ErrNoHAL)

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err)
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	require.NoError(t, err)
	defer open.Device.Destroy()

	p := &mockHalProvider{
		mockProvider: mockProvider{format: gputypes.TextureFormatBGRA8Unorm},
		device:       open.Device,
		queue:        open.Queue,
	}
	d, err := NewFromProvider(p)
	require.NoError(t, err)
	color, _ := d.BackbufferFormats()
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, color)
	assert.Equal(t, open.Device, d.HalDevice())

	enc, err := d.BeginFrame(16, 16)
	require.NoError(t, err)
	require.NoError(t, enc.Finish())
	d.Destroy()
}

func TestSurfaceTarget(t *testing.T) {
	d := newNoopDevice(t)
	surface, err := d.CreateTexture(&backend.TextureDescriptor{
		Label: "surface", Width: 20, Height: 10, RenderTarget: true,
	})
	require.NoError(t, err)
	d.SetSurfaceTarget(surface.(*Texture).view, 20, 10)

	_, err = d.BeginFrame(30, 10)
	assert.ErrorIs(t, err, ErrSurfaceSize)

	enc, err := d.BeginFrame(20, 10)
	require.NoError(t, err)
	assert.Nil(t, d.backbuffer, "no offscreen color while a surface is installed")
	enc.Clear(backend.ClearInfo{ClearColour: true})
	require.NoError(t, enc.Finish())

	d.SetSurfaceTarget(nil, 0, 0)
	enc, err = d.BeginFrame(20, 10)
	require.NoError(t, err)
	assert.NotNil(t, d.backbuffer)
	require.NoError(t, enc.Finish())
}
