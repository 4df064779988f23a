// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"log/slog"

	"github.com/gogpu/gfx/dispose"
)

// Option configures a Renderer during creation.
// Use functional options to customize Renderer behavior.
//
// Example:
//
//	// Defaults, headless device
//	r, err := gfx.New(headless.New())
//
//	// Tuned upload throttle and a config file
//	cfg, _ := gfx.LoadConfig("gfx.toml")
//	r, err := gfx.New(dev, gfx.WithConfig(cfg), gfx.WithUploadLimits(8, 1<<20))
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	config    Config
	logger    *slog.Logger
	disposals *dispose.Queue

	// detached leaves the disposal queue in immediate mode.
	detached bool
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger sets the package logger (see SetLogger) when the renderer is
// created.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDisposalQueue shares an existing disposal queue, for example one also
// drained by a windowing layer. The renderer attaches it.
func WithDisposalQueue(q *dispose.Queue) Option {
	return func(o *options) {
		o.disposals = q
	}
}

// WithImmediateDisposal runs disposals synchronously instead of deferring
// them to the next Reset. Use it only when every Dispose call and garbage
// collection happens on the render goroutine, as in single-threaded tests.
func WithImmediateDisposal() Option {
	return func(o *options) {
		o.detached = true
	}
}

// WithSweepInterval sets Config.VertexBufferSweepInterval.
func WithSweepInterval(frames uint64) Option {
	return func(o *options) {
		o.config.VertexBufferSweepInterval = frames
	}
}

// WithUploadLimits sets the per-frame texture upload throttle.
func WithUploadLimits(maxTextures, maxPixels int) Option {
	return func(o *options) {
		o.config.MaxTexturesUploadedPerFrame = maxTextures
		o.config.MaxPixelsUploadedPerFrame = maxPixels
	}
}

// WithShaderValidation toggles naga validation of WGSL sources.
func WithShaderValidation(enabled bool) Option {
	return func(o *options) {
		o.config.ValidateShaders = enabled
	}
}
