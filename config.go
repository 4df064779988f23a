// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/gogpu/gfx/internal/upload"
)

// Default configuration values.
const (
	// DefaultVertexBufferSweepInterval is the number of frames between
	// vertex buffer staleness sweeps, and the idle age that frees a buffer.
	DefaultVertexBufferSweepInterval = 300

	// DefaultMaxTexturesUploadedPerFrame caps textures serviced per frame.
	DefaultMaxTexturesUploadedPerFrame = upload.DefaultMaxItemsPerFrame

	// DefaultMaxPixelsUploadedPerFrame stops the upload throttle once the
	// pixels uploaded in a frame exceed it.
	DefaultMaxPixelsUploadedPerFrame = upload.DefaultMaxPixelsPerFrame

	// DefaultUniformSlotsHint is the initial slot capacity of a uniform buffer.
	DefaultUniformSlotsHint = 4

	// DefaultMemoryBudgetMB is the resource memory budget that triggers a
	// warning when exceeded.
	DefaultMemoryBudgetMB = 256
)

// Config holds the renderer tunables. The zero value is not valid; start
// from DefaultConfig.
type Config struct {
	// VertexBufferSweepInterval is the frame period of the staleness sweep.
	VertexBufferSweepInterval uint64 `toml:"vertex_buffer_sweep_interval"`

	MaxTexturesUploadedPerFrame int `toml:"max_textures_uploaded_per_frame"`
	MaxPixelsUploadedPerFrame   int `toml:"max_pixels_uploaded_per_frame"`

	UniformSlotsHint int `toml:"uniform_slots_hint"`

	// ValidateShaders compiles WGSL through naga before handing it to the
	// backend, so errors carry a diagnostic.
	ValidateShaders bool `toml:"validate_shaders"`

	// ClearColour is the RGBA backbuffer clear colour used by Reset.
	ClearColour [4]float64 `toml:"clear_colour"`

	MemoryBudgetMB int `toml:"memory_budget_mb"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		VertexBufferSweepInterval:   DefaultVertexBufferSweepInterval,
		MaxTexturesUploadedPerFrame: DefaultMaxTexturesUploadedPerFrame,
		MaxPixelsUploadedPerFrame:   DefaultMaxPixelsUploadedPerFrame,
		UniformSlotsHint:            DefaultUniformSlotsHint,
		ValidateShaders:             true,
		ClearColour:                 [4]float64{0, 0, 0, 1},
		MemoryBudgetMB:              DefaultMemoryBudgetMB,
	}
}

// LoadConfig reads a TOML file. Keys missing from the file keep their
// default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.VertexBufferSweepInterval == 0:
		return fmt.Errorf("%w: vertex_buffer_sweep_interval must be positive", ErrInvalidConfig)
	case c.MaxTexturesUploadedPerFrame < 1:
		return fmt.Errorf("%w: max_textures_uploaded_per_frame must be at least 1", ErrInvalidConfig)
	case c.MaxPixelsUploadedPerFrame < 1:
		return fmt.Errorf("%w: max_pixels_uploaded_per_frame must be at least 1", ErrInvalidConfig)
	case c.UniformSlotsHint < 1:
		return fmt.Errorf("%w: uniform_slots_hint must be at least 1", ErrInvalidConfig)
	case c.MemoryBudgetMB < 0:
		return fmt.Errorf("%w: memory_budget_mb must not be negative", ErrInvalidConfig)
	}
	for _, v := range c.ClearColour {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: clear_colour components must be in [0, 1]", ErrInvalidConfig)
		}
	}
	return nil
}
