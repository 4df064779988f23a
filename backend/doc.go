// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the device abstraction the renderer encodes
// commands against.
//
// A backend hides the native graphics API behind two interfaces: Device
// creates and destroys resources and starts frames, Encoder records the
// commands of one frame. All Device and Encoder methods are called from the
// render goroutine only.
//
// # Backend Registration
//
// Backends register a factory from an init function and are selected by
// name at runtime:
//
//	import _ "github.com/gogpu/gfx/backend/headless"
//
//	dev, err := backend.Open("headless")
//
// Use Default to open the best available backend.
//
// # Available Backends
//
//   - "wgpu": GPU rendering through the gogpu/wgpu HAL
//   - "headless": in-memory recording device for tests and tooling
package backend
