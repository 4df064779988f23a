// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
)

// Hash returns an FNV-1a hash of every field that takes part in Equal.
// Equal descriptions always hash equal; the cache resolves collisions with
// Equal.
func (d *Description) Hash() uint64 {
	h := fnv.New64a()

	hashWriteUint64(h, d.Shader)
	hashWriteUint32(h, uint32(len(d.ResourceSets)))
	for _, k := range d.ResourceSets {
		hashWriteUint32(h, uint32(k))
	}

	hashWriteUint32(h, uint32(d.Topology))

	b := &d.Blend
	hashWriteBool(h, b.Enabled)
	hashWriteUint32(h, uint32(b.Color.SrcFactor))
	hashWriteUint32(h, uint32(b.Color.DstFactor))
	hashWriteUint32(h, uint32(b.Color.Operation))
	hashWriteUint32(h, uint32(b.Alpha.SrcFactor))
	hashWriteUint32(h, uint32(b.Alpha.DstFactor))
	hashWriteUint32(h, uint32(b.Alpha.Operation))
	hashWriteUint32(h, uint32(b.WriteMask))

	ds := &d.DepthStencil
	hashWriteBool(h, ds.DepthTest)
	hashWriteBool(h, ds.DepthWrite)
	hashWriteUint32(h, uint32(ds.DepthCompare))
	hashWriteBool(h, ds.StencilTest)
	hashWriteUint32(h, uint32(ds.StencilCompare))

	hashWriteUint32(h, uint32(d.Rasterizer.CullMode))
	hashWriteUint32(h, uint32(d.Rasterizer.FrontFace))
	hashWriteBool(h, d.Rasterizer.ScissorTest)

	hashWriteUint64(h, d.VertexLayout.Stride)
	//nolint:gosec // G115: attribute count is bounded by GPU limits (< 32)
	hashWriteUint32(h, uint32(len(d.VertexLayout.Attributes)))
	for i := range d.VertexLayout.Attributes {
		attr := &d.VertexLayout.Attributes[i]
		hashWriteUint32(h, attr.ShaderLocation)
		hashWriteUint32(h, uint32(attr.Format))
		hashWriteUint64(h, attr.Offset)
	}

	//nolint:gosec // G115: color target count is bounded by GPU limits (< 8)
	hashWriteUint32(h, uint32(len(d.Output.ColorFormats)))
	for _, f := range d.Output.ColorFormats {
		hashWriteUint32(h, uint32(f))
	}
	hashWriteUint32(h, uint32(d.Output.DepthFormat))
	hashWriteUint32(h, d.Output.SampleCount)

	return h.Sum64()
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
