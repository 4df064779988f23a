// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/pipeline"
	"github.com/gogpu/gputypes"
)

// Vertex is implemented by vertex structs. Implementations must be plain
// data without pointers: their memory is uploaded as is.
//
// Attributes describes the struct layout. The renderer appends one float32
// attribute holding the draw depth at the next shader location.
type Vertex interface {
	comparable
	Attributes() []pipeline.VertexAttribute
}

// TexturedVertex2D is a 2D vertex with texture coordinates and a colour.
type TexturedVertex2D struct {
	Position [2]float32
	TexCoord [2]float32
	Colour   [4]float32
}

var texturedVertex2DAttributes = []pipeline.VertexAttribute{
	{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x2, Offset: 0},
	{ShaderLocation: 1, Format: gputypes.VertexFormatFloat32x2, Offset: 8},
	{ShaderLocation: 2, Format: gputypes.VertexFormatFloat32x4, Offset: 16},
}

// Attributes returns position, texture coordinate and colour at locations
// 0, 1 and 2.
func (TexturedVertex2D) Attributes() []pipeline.VertexAttribute { return texturedVertex2DAttributes }

// ColouredVertex2D is a 2D vertex with a colour.
type ColouredVertex2D struct {
	Position [2]float32
	Colour   [4]float32
}

var colouredVertex2DAttributes = []pipeline.VertexAttribute{
	{ShaderLocation: 0, Format: gputypes.VertexFormatFloat32x2, Offset: 0},
	{ShaderLocation: 1, Format: gputypes.VertexFormatFloat32x4, Offset: 8},
}

// Attributes returns position and colour at locations 0 and 1.
func (ColouredVertex2D) Attributes() []pipeline.VertexAttribute { return colouredVertex2DAttributes }

// depthWrapped is the stored form of a vertex.
type depthWrapped[T Vertex] struct {
	Vertex T
	Depth  float32
}

// VertexLayoutOf returns the buffer layout of T including the depth
// attribute.
func VertexLayoutOf[T Vertex]() pipeline.VertexLayout {
	var w depthWrapped[T]
	attrs := w.Vertex.Attributes()
	out := make([]pipeline.VertexAttribute, len(attrs), len(attrs)+1)
	copy(out, attrs)
	out = append(out, pipeline.VertexAttribute{
		ShaderLocation: uint32(len(attrs)),
		Format:         gputypes.VertexFormatFloat32,
		Offset:         uint64(unsafe.Offsetof(w.Depth)),
	})
	return pipeline.VertexLayout{Stride: uint64(unsafe.Sizeof(w)), Attributes: out}
}

func vertexBytes[T Vertex](data []depthWrapped[T]) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(data[0])))
}

// bufferNative owns a native buffer. It is shared with the finalizer, so it
// must never point back to its owner.
type bufferNative struct {
	buf   backend.Buffer
	bytes uint64
}

// destroyBuffer releases n. It runs on the render goroutine.
func (r *Renderer) destroyBuffer(n *bufferNative, kind ResourceKind) {
	if n == nil || n.buf == nil || r.closed.Load() {
		return
	}
	if kind == ResourceVertexBuffer {
		r.unbindVertexBuffer(n.buf)
	}
	r.device.DestroyBuffer(n.buf)
	r.memory.release(kind, n.bytes)
	n.buf = nil
}

// VertexBuffer is a fixed-size vertex buffer with CPU staging memory.
//
// Staging memory is allocated on the first SetVertex and the native buffer
// on the first Bind. Buffers left unused for Config.VertexBufferSweepInterval
// frames are freed by the renderer and reallocated transparently on next
// use, losing their contents.
//
// A VertexBuffer belongs to the render goroutine, except Dispose.
type VertexBuffer[T Vertex] struct {
	r        *Renderer
	label    string
	size     int
	topology gputypes.PrimitiveTopology
	layout   pipeline.VertexLayout
	stride   uint64

	data    []depthWrapped[T]
	native  *bufferNative
	cleanup runtime.Cleanup
	lastUse uint64

	disposed atomic.Bool
}

// NewVertexBuffer creates a vertex buffer of size vertices drawn with
// topology. No memory is allocated until it is written or bound.
func NewVertexBuffer[T Vertex](r *Renderer, size int, topology gputypes.PrimitiveTopology) *VertexBuffer[T] {
	layout := VertexLayoutOf[T]()
	vb := &VertexBuffer[T]{
		r:        r,
		label:    fmt.Sprintf("vertex buffer %T[%d]", *new(T), size),
		size:     size,
		topology: topology,
		layout:   layout,
		stride:   layout.Stride,
	}
	r.vertexBuffers.add(weakRef(vb, func(v *VertexBuffer[T]) vertexBufferRef { return v }))
	return vb
}

// Size returns the capacity in vertices.
func (vb *VertexBuffer[T]) Size() int { return vb.size }

// Topology returns the primitive topology the buffer is drawn with.
func (vb *VertexBuffer[T]) Topology() gputypes.PrimitiveTopology { return vb.topology }

// InUse reports whether the buffer has been used since it was last freed.
func (vb *VertexBuffer[T]) InUse() bool { return vb.lastUse > 0 }

// LastUse returns the frame of the last access, or 0 when freed.
func (vb *VertexBuffer[T]) LastUse() uint64 { return vb.lastUse }

// Allocated reports whether the native buffer exists.
func (vb *VertexBuffer[T]) Allocated() bool { return vb.native != nil }

func (vb *VertexBuffer[T]) stamp() {
	vb.lastUse = vb.r.frameID
}

// SetVertex stores v at index with the renderer's current draw depth and
// reports whether the stored value changed. The change reaches the GPU on
// the next UpdateRange, or on Bind if the native buffer does not exist yet.
//
// SetVertex panics if index is out of range.
func (vb *VertexBuffer[T]) SetVertex(index int, v T) bool {
	if index < 0 || index >= vb.size {
		panic(fmt.Errorf("%w: vertex %d of %d", ErrIndexOutOfRange, index, vb.size))
	}
	if vb.disposed.Load() {
		return false
	}
	if vb.data == nil {
		vb.data = make([]depthWrapped[T], vb.size)
	}
	vb.stamp()

	w := depthWrapped[T]{Vertex: v, Depth: vb.r.drawDepth}
	if vb.data[index] == w {
		return false
	}
	vb.data[index] = w
	return true
}

// Vertex returns the staged vertex at index.
func (vb *VertexBuffer[T]) Vertex(index int) T {
	if vb.data == nil || index < 0 || index >= vb.size {
		var zero T
		return zero
	}
	return vb.data[index].Vertex
}

// Bind creates the native buffer if needed, uploading all staged vertices,
// and makes it the vertex source of subsequent draws.
func (vb *VertexBuffer[T]) Bind() error {
	defer vb.r.enter()()
	return vb.bind()
}

func (vb *VertexBuffer[T]) bind() error {
	if vb.disposed.Load() {
		return ErrDisposed
	}
	if err := vb.ensureNative(); err != nil {
		return err
	}
	vb.stamp()
	vb.r.bindVertexBuffer(vb.native.buf, vb.layout)
	return nil
}

func (vb *VertexBuffer[T]) ensureNative() error {
	if vb.native != nil {
		return nil
	}
	if vb.data == nil {
		vb.data = make([]depthWrapped[T], vb.size)
	}

	r := vb.r
	size := uint64(vb.size) * vb.stride
	buf, err := r.device.CreateBuffer(&backend.BufferDescriptor{
		Label: vb.label,
		Size:  size,
		Usage: backend.BufferUsageVertex,
	})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	if err := r.device.WriteBuffer(buf, 0, vertexBytes(vb.data)); err != nil {
		r.device.DestroyBuffer(buf)
		return fmt.Errorf("upload vertex buffer: %w", err)
	}

	n := &bufferNative{buf: buf, bytes: size}
	vb.native = n
	vb.cleanup = runtime.AddCleanup(vb, func(n *bufferNative) {
		r.disposals.Schedule(func() { r.destroyBuffer(n, ResourceVertexBuffer) })
	}, n)
	r.memory.allocate(ResourceVertexBuffer, size)
	Logger().Debug("gfx: vertex buffer allocated", "label", vb.label, "bytes", size)
	return nil
}

func (vb *VertexBuffer[T]) checkRange(start, end int) error {
	if start < 0 || end > vb.size || start > end {
		return fmt.Errorf("%w: range [%d, %d) of %d vertices", ErrIndexOutOfRange, start, end, vb.size)
	}
	return nil
}

// DrawRange binds the buffer and draws vertices [start, end).
func (vb *VertexBuffer[T]) DrawRange(start, end int) error {
	defer vb.r.enter()()
	if err := vb.checkRange(start, end); err != nil {
		return err
	}
	return vb.drawRange(start, end)
}

// drawRange is DrawRange for callers already inside a renderer entry point.
func (vb *VertexBuffer[T]) drawRange(start, end int) error {
	if err := vb.bind(); err != nil {
		return err
	}
	return vb.r.drawVertices(vb.topology, start, end-start)
}

// UpdateRange binds the buffer and uploads vertices [start, end).
func (vb *VertexBuffer[T]) UpdateRange(start, end int) error {
	defer vb.r.enter()()
	if err := vb.checkRange(start, end); err != nil {
		return err
	}
	return vb.updateRange(start, end)
}

func (vb *VertexBuffer[T]) updateRange(start, end int) error {
	fresh := vb.native == nil
	if err := vb.bind(); err != nil {
		return err
	}
	if fresh || start == end {
		return nil
	}
	offset := uint64(start) * vb.stride
	if err := vb.r.device.WriteBuffer(vb.native.buf, offset, vertexBytes(vb.data[start:end])); err != nil {
		return fmt.Errorf("update vertex buffer: %w", err)
	}
	return nil
}

// Free releases the native buffer and the staging memory now. The buffer
// stays usable and is reallocated on next use.
func (vb *VertexBuffer[T]) Free() {
	vb.free()
}

func (vb *VertexBuffer[T]) free() {
	if vb.native != nil {
		vb.cleanup.Stop()
		vb.r.destroyBuffer(vb.native, ResourceVertexBuffer)
		vb.native = nil
	}
	vb.data = nil
	vb.lastUse = 0
}

func (vb *VertexBuffer[T]) release() {
	vb.free()
}

// sweep frees the buffer if it has not been used for interval frames.
func (vb *VertexBuffer[T]) sweep(frameID, interval uint64) bool {
	if vb.lastUse == 0 || frameID-vb.lastUse < interval {
		return false
	}
	vb.free()
	return true
}

// Dispose frees the buffer during the next Reset. It may be called from any
// goroutine; the buffer must not be used afterwards.
func (vb *VertexBuffer[T]) Dispose() {
	if !vb.disposed.CompareAndSwap(false, true) {
		return
	}
	vb.r.disposals.Schedule(vb.free)
}
