// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/gfx/internal/watch"
)

// ShaderReloader recompiles shaders when their WGSL files change on disk.
//
// Usage:
//
//	rl, err := r.NewShaderReloader()
//	rl.Watch("shaders/sprite.wgsl", sprite)
//	go rl.Run(ctx)
//	defer rl.Close()
type ShaderReloader struct {
	r *Renderer
	w *watch.Watcher

	mu      sync.Mutex
	shaders map[string][]*Shader
}

// NewShaderReloader creates a reloader watching no files.
func (r *Renderer) NewShaderReloader() (*ShaderReloader, error) {
	w, err := watch.New()
	if err != nil {
		return nil, fmt.Errorf("gfx: shader reloader: %w", err)
	}
	return &ShaderReloader{
		r:       r,
		w:       w,
		shaders: make(map[string][]*Shader),
	}, nil
}

// Watch reloads s from path whenever the file is written.
func (rl *ShaderReloader) Watch(path string, s *Shader) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("gfx: watch shader %s: %w", path, err)
	}
	if err := rl.w.Add(abs); err != nil {
		return fmt.Errorf("gfx: watch shader %s: %w", path, err)
	}
	rl.mu.Lock()
	rl.shaders[abs] = append(rl.shaders[abs], s)
	rl.mu.Unlock()
	return nil
}

// Run dispatches file changes until ctx is done or the reloader is closed.
// Recompilation happens on the render goroutine during a later Reset.
func (rl *ShaderReloader) Run(ctx context.Context) error {
	return rl.w.Run(ctx, rl.changed, func(err error) {
		Logger().Warn("gfx: shader watcher error", "err", err)
	})
}

func (rl *ShaderReloader) changed(path string) {
	rl.mu.Lock()
	shaders := append([]*Shader(nil), rl.shaders[path]...)
	rl.mu.Unlock()
	if len(shaders) == 0 {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		Logger().Warn("gfx: shader reload read failed", "path", path, "err", err)
		return
	}
	for _, s := range shaders {
		Logger().Debug("gfx: shader source changed", "path", path, "shader", s.Name())
		s.Reload(string(data))
	}
}

// Close stops watching.
func (rl *ShaderReloader) Close() error {
	return rl.w.Close()
}
