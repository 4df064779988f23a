// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gfx/backend/headless"
	"github.com/gogpu/gputypes"
)

func TestVertexLayoutOf(t *testing.T) {
	tests := []struct {
		name        string
		layout      func() (stride uint64, n int, last uint32, offset uint64)
		stride      uint64
		attrs       int
		depthLoc    uint32
		depthOffset uint64
	}{
		{
			name: "textured",
			layout: func() (uint64, int, uint32, uint64) {
				l := VertexLayoutOf[TexturedVertex2D]()
				a := l.Attributes[len(l.Attributes)-1]
				return l.Stride, len(l.Attributes), a.ShaderLocation, a.Offset
			},
			stride: 36, attrs: 4, depthLoc: 3, depthOffset: 32,
		},
		{
			name: "coloured",
			layout: func() (uint64, int, uint32, uint64) {
				l := VertexLayoutOf[ColouredVertex2D]()
				a := l.Attributes[len(l.Attributes)-1]
				return l.Stride, len(l.Attributes), a.ShaderLocation, a.Offset
			},
			stride: 28, attrs: 3, depthLoc: 2, depthOffset: 24,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stride, n, loc, offset := tt.layout()
			assert.Equal(t, tt.stride, stride)
			assert.Equal(t, tt.attrs, n)
			assert.Equal(t, tt.depthLoc, loc)
			assert.Equal(t, tt.depthOffset, offset)
		})
	}

	l := VertexLayoutOf[TexturedVertex2D]()
	assert.Equal(t, gputypes.VertexFormatFloat32, l.Attributes[3].Format)
	assert.Len(t, texturedVertex2DAttributes, 3, "the shared attribute slice is not modified")
}

func TestSetVertex(t *testing.T) {
	r, _ := newTestRenderer(t)
	vb := NewVertexBuffer[ColouredVertex2D](r, 2, gputypes.PrimitiveTopologyLineList)
	assert.False(t, vb.Allocated())

	v := ColouredVertex2D{Position: [2]float32{1, 2}, Colour: [4]float32{1, 1, 1, 1}}
	assert.True(t, vb.SetVertex(1, v))
	assert.False(t, vb.SetVertex(1, v), "storing an equal vertex reports no change")
	assert.Equal(t, v, vb.Vertex(1))
	assert.Equal(t, ColouredVertex2D{}, vb.Vertex(5))
	assert.False(t, vb.Allocated(), "staging memory only")

	err := recoverError(t, func() { vb.SetVertex(2, v) })
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	err = recoverError(t, func() { vb.SetVertex(-1, v) })
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestBindUploadsStagedVertices(t *testing.T) {
	r, dev := newTestRenderer(t)
	vb := NewVertexBuffer[ColouredVertex2D](r, 2, gputypes.PrimitiveTopologyLineList)
	vb.SetVertex(0, ColouredVertex2D{Position: [2]float32{3, 0}})

	require.NoError(t, vb.Bind())
	assert.True(t, vb.Allocated())
	assert.Equal(t, 1, dev.Live().Buffers)

	buf := vb.native.buf.(*headless.Buffer)
	assert.Equal(t, uint64(2*28), buf.Size())
	assert.Equal(t, float32(3), firstFloat(buf.Bytes()))
	assert.Equal(t, 1, buf.Writes())
	assert.Equal(t, "vertex buffer gfx.ColouredVertex2D[2]", buf.Label())
}

func TestUpdateRange(t *testing.T) {
	r, _ := newTestRenderer(t)
	vb := NewVertexBuffer[ColouredVertex2D](r, 4, gputypes.PrimitiveTopologyLineList)

	require.NoError(t, vb.UpdateRange(0, 4))
	buf := vb.native.buf.(*headless.Buffer)
	assert.Equal(t, 1, buf.Writes(), "a fresh buffer is uploaded whole by Bind")

	vb.SetVertex(2, ColouredVertex2D{Position: [2]float32{9, 9}})
	require.NoError(t, vb.UpdateRange(2, 3))
	assert.Equal(t, 2, buf.Writes())
	assert.Equal(t, float32(9), firstFloat(buf.Bytes()[2*28:]))

	assert.ErrorIs(t, vb.UpdateRange(3, 5), ErrIndexOutOfRange)
	assert.ErrorIs(t, vb.UpdateRange(3, 2), ErrIndexOutOfRange)
	assert.ErrorIs(t, vb.DrawRange(-1, 2), ErrIndexOutOfRange)
}

func TestVertexBufferSweep(t *testing.T) {
	r, dev := newTestRenderer(t, WithSweepInterval(3))
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)
	idle := texturedQuad(r)

	require.NoError(t, r.Reset(10, 10))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	assert.Equal(t, uint64(1), vb.LastUse())
	assert.False(t, idle.InUse(), "never bound buffers are not swept")

	for frame := uint64(2); frame <= 5; frame++ {
		require.NoError(t, r.Reset(10, 10))
		assert.True(t, vb.Allocated(), "frame %d", frame)
	}

	require.NoError(t, r.Reset(10, 10))
	assert.Equal(t, uint64(6), r.FrameID())
	assert.False(t, vb.Allocated())
	assert.False(t, vb.InUse())
	assert.Equal(t, uint64(1), r.Stats().VertexBuffersFreed)
	assert.Zero(t, dev.Live().Buffers-1, "only the globals slot remains")

	// Swept buffers come back on next use, with their contents lost.
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	require.NoError(t, r.UnbindShader(s))
	assert.True(t, vb.Allocated())
	assert.Equal(t, TexturedVertex2D{}, vb.Vertex(1))
	runtime.KeepAlive(idle)
}

func TestVertexBufferKeptWhileUsed(t *testing.T) {
	r, _ := newTestRenderer(t, WithSweepInterval(2))
	s := mustShader(t, r, TexturedShaderSource())
	vb := texturedQuad(r)

	for range 10 {
		require.NoError(t, r.Reset(10, 10))
		require.NoError(t, r.BindShader(s))
		require.NoError(t, vb.DrawRange(0, 3))
		require.NoError(t, r.UnbindShader(s))
	}
	assert.True(t, vb.Allocated())
	assert.Zero(t, r.Stats().VertexBuffersFreed)
}

func TestVertexBufferDispose(t *testing.T) {
	r, dev := newTestRenderer(t)
	vb := colouredTriangle(r)
	require.NoError(t, vb.Bind())
	assert.Equal(t, 1, dev.Live().Buffers)

	vb.Dispose()
	assert.ErrorIs(t, vb.Bind(), ErrDisposed)
	assert.False(t, vb.SetVertex(0, ColouredVertex2D{Position: [2]float32{5, 5}}))

	require.NoError(t, r.Reset(10, 10))
	assert.Zero(t, dev.Live().Buffers)
	assert.False(t, vb.Allocated())
}

func TestVertexBufferFreeUnbinds(t *testing.T) {
	r, _ := newTestRenderer(t)
	s := mustShader(t, r, ColouredShaderSource())
	vb := colouredTriangle(r)

	require.NoError(t, r.Reset(10, 10))
	require.NoError(t, r.BindShader(s))
	require.NoError(t, vb.DrawRange(0, 3))
	vb.Free()
	assert.ErrorIs(t, r.DrawVertices(gputypes.PrimitiveTopologyTriangleList, 0, 3), ErrNoVertexBuffer)
	require.NoError(t, r.UnbindShader(s))
}
