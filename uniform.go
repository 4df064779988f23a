// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gfx/backend"
)

// UniformBlock supplies the resource set of a uniform group.
type UniformBlock interface {
	ResourceSet() (backend.ResourceSet, error)
}

type uniformSlot[T comparable] struct {
	buf     backend.Buffer
	set     backend.ResourceSet
	data    T
	written bool
	inUse   bool
}

// uniformStorage owns the native slots of a UniformBuffer. It is shared
// with the finalizer, so it must never point back to its owner.
type uniformStorage[T comparable] struct {
	slots []*uniformSlot[T]
	bytes uint64
}

func (s *uniformStorage[T]) destroy(r *Renderer) {
	if r.closed.Load() {
		return
	}
	for _, slot := range s.slots {
		r.device.DestroyResourceSet(slot.set)
		r.device.DestroyBuffer(slot.buf)
		r.memory.release(ResourceUniformBuffer, s.bytes)
	}
	s.slots = nil
}

// UniformBuffer multiplexes one logical uniform block over several storage
// slots.
//
// Data written while a slot is referenced by a draw of the current frame
// goes to a fresh slot, so earlier draws keep the values they were recorded
// with. Slot usage restarts every frame.
//
// T must be plain data laid out as the shader expects it; its size is
// rounded up to 16 bytes.
type UniformBuffer[T comparable] struct {
	r     *Renderer
	label string
	size  uint64

	storage *uniformStorage[T]
	cleanup runtime.Cleanup
	current int

	data    T
	pending bool

	disposed atomic.Bool
}

// NewUniformBuffer creates a uniform buffer holding the zero T.
func NewUniformBuffer[T comparable](r *Renderer, label string) *UniformBuffer[T] {
	var zero T
	size := (uint64(unsafe.Sizeof(zero)) + 15) &^ 15
	u := &UniformBuffer[T]{
		r:       r,
		label:   label,
		size:    max(size, 16),
		storage: &uniformStorage[T]{slots: make([]*uniformSlot[T], 0, r.cfg.UniformSlotsHint)},
		pending: true,
	}
	u.storage.bytes = u.size
	storage := u.storage
	u.cleanup = runtime.AddCleanup(u, func(s *uniformStorage[T]) {
		r.disposals.Schedule(func() { s.destroy(r) })
	}, storage)
	r.uniforms.add(weakRef(u, func(v *UniformBuffer[T]) uniformRef { return v }))
	return u
}

// Data returns the latest value set.
func (u *UniformBuffer[T]) Data() T { return u.data }

// Slots returns the number of allocated storage slots.
func (u *UniformBuffer[T]) Slots() int { return len(u.storage.slots) }

// SetData sets the block value for subsequent draws. Setting the current
// value is a no-op; otherwise pending batched vertices are drawn first.
func (u *UniformBuffer[T]) SetData(v T) {
	if v == u.data {
		return
	}
	u.r.flushBatch()
	u.data = v
	u.pending = true
}

// ResourceSet writes pending data, if any, to a slot that no draw of this
// frame references and returns that slot's resource set. The slot is
// marked in use until the next frame.
func (u *UniformBuffer[T]) ResourceSet() (backend.ResourceSet, error) {
	if u.disposed.Load() {
		return nil, ErrDisposed
	}
	if u.pending {
		if err := u.write(); err != nil {
			return nil, err
		}
	}
	slot := u.storage.slots[u.current]
	slot.inUse = true
	return slot.set, nil
}

func (u *UniformBuffer[T]) write() error {
	slots := u.storage.slots
	next := u.current
	if len(slots) > 0 && slots[next].inUse {
		next++
	}
	if next == len(slots) {
		slot, err := u.newSlot()
		if err != nil {
			return err
		}
		u.storage.slots = append(u.storage.slots, slot)
	}
	u.current = next

	slot := u.storage.slots[u.current]
	data := u.data
	b := unsafe.Slice((*byte)(unsafe.Pointer(&data)), unsafe.Sizeof(data))
	if err := u.r.device.WriteBuffer(slot.buf, 0, b); err != nil {
		return fmt.Errorf("write uniform buffer %q: %w", u.label, err)
	}
	slot.data = u.data
	slot.written = true
	u.pending = false
	return nil
}

func (u *UniformBuffer[T]) newSlot() (*uniformSlot[T], error) {
	r := u.r
	label := fmt.Sprintf("%s #%d", u.label, len(u.storage.slots))
	buf, err := r.device.CreateBuffer(&backend.BufferDescriptor{
		Label: label,
		Size:  u.size,
		Usage: backend.BufferUsageUniform,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer %q: %w", label, err)
	}
	set, err := r.device.CreateUniformSet(buf)
	if err != nil {
		r.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create uniform set %q: %w", label, err)
	}
	r.memory.allocate(ResourceUniformBuffer, u.size)
	return &uniformSlot[T]{buf: buf, set: set}, nil
}

// ResetCounters returns to the first slot and releases every slot for
// reuse. The renderer calls it once per frame.
func (u *UniformBuffer[T]) ResetCounters() {
	u.current = 0
	for _, slot := range u.storage.slots {
		slot.inUse = false
	}
	if len(u.storage.slots) > 0 {
		first := u.storage.slots[0]
		u.pending = !first.written || first.data != u.data
	}
}

func (u *UniformBuffer[T]) release() {
	u.cleanup.Stop()
	u.storage.destroy(u.r)
	u.current = 0
	u.pending = true
}

// Dispose frees the buffer during the next Reset. It may be called from
// any goroutine.
func (u *UniformBuffer[T]) Dispose() {
	if !u.disposed.CompareAndSwap(false, true) {
		return
	}
	u.r.disposals.Schedule(u.release)
}

var _ UniformBlock = (*UniformBuffer[GlobalUniforms])(nil)
