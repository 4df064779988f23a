// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"sync"
)

// ResourceKind classifies tracked GPU memory.
type ResourceKind uint8

// Tracked resource kinds.
const (
	ResourceVertexBuffer ResourceKind = iota
	ResourceTexture
	ResourceUniformBuffer

	resourceKindCount
)

// String returns the resource kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceVertexBuffer:
		return "vertex"
	case ResourceTexture:
		return "texture"
	case ResourceUniformBuffer:
		return "uniform"
	default:
		return "unknown"
	}
}

// MemoryStats contains GPU memory usage statistics.
type MemoryStats struct {
	// BudgetBytes is the configured memory budget in bytes.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// Bytes holds the allocated bytes per ResourceKind.
	Bytes [resourceKindCount]uint64

	// Allocations holds the live allocation count per ResourceKind.
	Allocations [resourceKindCount]int

	// Utilization is the fraction of the budget used. It may exceed 1.
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, vertex %d KB, texture %d KB, uniform %d KB]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.Bytes[ResourceVertexBuffer]/1024,
		s.Bytes[ResourceTexture]/1024,
		s.Bytes[ResourceUniformBuffer]/1024)
}

// memoryTracker accounts native allocations against a budget. It warns once
// each time usage crosses the budget.
//
// memoryTracker is safe for concurrent use.
type memoryTracker struct {
	mu sync.Mutex

	budget uint64
	bytes  [resourceKindCount]uint64
	count  [resourceKindCount]int
	over   bool
}

func newMemoryTracker(budgetMB int) *memoryTracker {
	return &memoryTracker{budget: uint64(budgetMB) * 1024 * 1024}
}

func (m *memoryTracker) used() uint64 {
	var total uint64
	for _, b := range m.bytes {
		total += b
	}
	return total
}

func (m *memoryTracker) allocate(kind ResourceKind, size uint64) {
	m.mu.Lock()
	m.bytes[kind] += size
	m.count[kind]++
	used := m.used()
	warn := m.budget > 0 && used > m.budget && !m.over
	if warn {
		m.over = true
	}
	m.mu.Unlock()

	if warn {
		Logger().Warn("gfx: memory budget exceeded",
			"used", used, "budget", m.budget, "kind", kind.String())
	}
}

func (m *memoryTracker) release(kind ResourceKind, size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[kind] -= min(size, m.bytes[kind])
	if m.count[kind] > 0 {
		m.count[kind]--
	}
	if m.used() <= m.budget {
		m.over = false
	}
}

func (m *memoryTracker) stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used()
	var utilization float64
	if m.budget > 0 {
		utilization = float64(used) / float64(m.budget)
	}
	return MemoryStats{
		BudgetBytes: m.budget,
		UsedBytes:   used,
		Bytes:       m.bytes,
		Allocations: m.count,
		Utilization: utilization,
	}
}

// Memory returns a snapshot of tracked GPU memory.
func (r *Renderer) Memory() MemoryStats {
	return r.memory.stats()
}
