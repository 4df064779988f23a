// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"errors"
	"fmt"

	"github.com/gogpu/gfx/internal/shader"
)

// ErrPrecondition is the base error for programmer errors: calls that
// violate the renderer's usage contract. These indicate a bug in the caller
// and are never recovered from internally.
var ErrPrecondition = errors.New("gfx: precondition violated")

// Precondition errors.
var (
	// ErrUnbalancedState is raised when a frame is reset while a shader or
	// frame buffer is still bound.
	ErrUnbalancedState = fmt.Errorf("%w: unbalanced state at frame reset", ErrPrecondition)

	// ErrNotBound is returned when unbinding something that is not the
	// currently bound object.
	ErrNotBound = fmt.Errorf("%w: not bound", ErrPrecondition)

	// ErrDisposed is returned when using a resource after Dispose.
	ErrDisposed = fmt.Errorf("%w: resource disposed", ErrPrecondition)

	// ErrConcurrentUse is raised when the renderer is entered from two
	// goroutines at once.
	ErrConcurrentUse = fmt.Errorf("%w: renderer entered concurrently", ErrPrecondition)

	// ErrNoFrame is returned when drawing outside Reset/FinishFrame.
	ErrNoFrame = fmt.Errorf("%w: no active frame", ErrPrecondition)

	// ErrIndexOutOfRange is returned for vertex indices past a buffer's end.
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", ErrPrecondition)

	// ErrNoShader is returned when drawing without a bound shader.
	ErrNoShader = fmt.Errorf("%w: no shader bound", ErrPrecondition)

	// ErrNoVertexBuffer is returned when drawing without a bound vertex buffer.
	ErrNoVertexBuffer = fmt.Errorf("%w: no vertex buffer bound", ErrPrecondition)

	// ErrFeedbackLoop is returned when sampling from the frame buffer that is
	// the current render target.
	ErrFeedbackLoop = fmt.Errorf("%w: texture is the current render target", ErrPrecondition)
)

// Other errors.
var (
	// ErrNilDevice is returned when creating a renderer without a device.
	ErrNilDevice = errors.New("gfx: device is nil")

	// ErrClosed is returned when using a closed renderer.
	ErrClosed = errors.New("gfx: renderer closed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("gfx: invalid config")
)

// ShaderCompileError reports a shader that failed to compile. It carries the
// shader name and the compiler diagnostic. The failure is fatal to that
// shader only; the renderer keeps running.
type ShaderCompileError = shader.CompileError
