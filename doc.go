// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gfx is the GPU resource and render-state core of a cross-backend
// 2D renderer.
//
// # Overview
//
// gfx turns a stream of drawing operations into backend commands. It keeps
// nested render state (viewport, projection, scissor, masking, depth) on
// push/pop stacks, manages the lifetime of vertex buffers, textures and
// uniform buffers across frames, memoizes pipeline objects and defers the
// destruction of GPU objects to the render goroutine.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gfx"
//	    "github.com/gogpu/gfx/backend/headless"
//	)
//
//	r, err := gfx.New(headless.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	sprite, _ := r.NewShader(gfx.TexturedShaderSource())
//	quad := gfx.NewVertexBuffer[gfx.TexturedVertex2D](r, 6, gputypes.PrimitiveTopologyTriangleList)
//
//	for frame := range frames {
//	    r.Reset(800, 600)
//	    r.BindShader(sprite)
//	    quad.DrawRange(0, 6)
//	    r.UnbindShader(sprite)
//	    r.FinishFrame()
//	}
//
// # Backends
//
// Devices implement backend.Device. Two are provided:
//
//   - backend/wgpu: GPU rendering through the gogpu/wgpu HAL (Vulkan,
//     Metal, DX12, GLES)
//   - backend/headless: records commands in memory, for tests and tools
//
// Importing a backend package registers it; NewWithBackend opens one by
// name.
//
// # Threading
//
// A Renderer belongs to one render goroutine. Other goroutines may queue
// texture uploads (Texture.SetData), dispose resources and schedule
// expensive operations; that work runs during the next Reset.
//
// # Logging
//
// gfx is silent by default. Call SetLogger to enable logging through
// log/slog.
package gfx
