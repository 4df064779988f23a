// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides a GPU backend on the gogpu/wgpu HAL.
//
// The device renders into an offscreen backbuffer (RGBA8 color plus a
// Depth24PlusStencil8 attachment) sized by each BeginFrame, or into a
// surface view installed with SetSurfaceTarget. Render passes are opened
// lazily by the first draw after a target change or clear, so consecutive
// clears and target switches cost nothing until something is drawn.
//
// # Creating a device
//
// New opens a standalone Vulkan device:
//
//	dev, err := wgpu.New()
//	if err != nil {
//	    return err
//	}
//	r, err := gfx.New(dev)
//
// NewFromProvider shares the device of a host application that implements
// gpucontext.DeviceProvider and exposes its HAL objects through
// HalDevice/HalQueue:
//
//	dev, err := wgpu.NewFromProvider(app.GPUContextProvider())
//
// Importing the package registers the "wgpu" backend with
// backend.Register.
//
// # Frames
//
// At most one frame is in flight. BeginFrame waits on the fence of the
// previous submission before recording, and resources destroyed while a
// frame may still reference them are released once its fence signals.
package wgpu
