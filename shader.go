// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	_ "embed"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/shader"
	"github.com/gogpu/gfx/pipeline"
)

//go:embed shaders/textured.wgsl
var texturedWGSL string

//go:embed shaders/coloured.wgsl
var colouredWGSL string

// Default shader entry points.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
)

// ShaderSource describes a WGSL shader program.
//
// Layout lists the resource groups the program declares, in group order.
// Group 0 must be a uniform group: the renderer binds GlobalUniforms there.
// Texture groups are fed from texture units 0, 1, ... in order.
type ShaderSource struct {
	Name          string
	WGSL          string
	VertexEntry   string
	FragmentEntry string
	Layout        []pipeline.ResourceKind
}

// TexturedShaderSource returns the built-in shader for TexturedVertex2D:
// texture colour times vertex colour, clipped by the current mask.
func TexturedShaderSource() ShaderSource {
	return ShaderSource{
		Name:   "textured",
		WGSL:   texturedWGSL,
		Layout: []pipeline.ResourceKind{pipeline.ResourceUniform, pipeline.ResourceTexture},
	}
}

// ColouredShaderSource returns the built-in shader for ColouredVertex2D.
func ColouredShaderSource() ShaderSource {
	return ShaderSource{
		Name:   "coloured",
		WGSL:   colouredWGSL,
		Layout: []pipeline.ResourceKind{pipeline.ResourceUniform},
	}
}

var shaderIDs atomic.Uint64

type shaderNative struct {
	sh backend.Shader
}

func (r *Renderer) destroyShaderNative(n *shaderNative) {
	if n == nil || n.sh == nil || r.closed.Load() {
		return
	}
	r.device.DestroyShader(n.sh)
	n.sh = nil
}

// Shader is a compiled shader program.
//
// Compilation is scheduled as an expensive operation when the shader is
// created, and happens synchronously on first draw if it has not run yet.
// A shader that fails to compile reports a *ShaderCompileError from every
// draw; the renderer keeps running.
type Shader struct {
	r      *Renderer
	id     atomic.Uint64
	layout []pipeline.ResourceKind

	mu  sync.Mutex
	src ShaderSource

	// Render goroutine only.
	native    *shaderNative
	cleanup   runtime.Cleanup
	err       error
	reloadErr error
	blocks    map[uint32]UniformBlock

	disposed atomic.Bool
}

// NewShader creates a shader from src. Compilation is deferred; see Shader.
func (r *Renderer) NewShader(src ShaderSource) (*Shader, error) {
	if src.WGSL == "" {
		return nil, fmt.Errorf("%w: shader %q has no source", ErrPrecondition, src.Name)
	}
	if len(src.Layout) == 0 || src.Layout[0] != pipeline.ResourceUniform {
		return nil, fmt.Errorf("%w: shader %q must declare a uniform group 0", ErrPrecondition, src.Name)
	}
	if src.VertexEntry == "" {
		src.VertexEntry = DefaultVertexEntry
	}
	if src.FragmentEntry == "" {
		src.FragmentEntry = DefaultFragmentEntry
	}
	src.Layout = append([]pipeline.ResourceKind(nil), src.Layout...)

	s := &Shader{
		r:      r,
		layout: src.Layout,
		src:    src,
		blocks: make(map[uint32]UniformBlock),
	}
	s.id.Store(shaderIDs.Add(1))
	r.resources.add(weakRef(s, func(v *Shader) releaser { return v }))

	ref := weakRef(s, func(v *Shader) *Shader { return v })
	r.ScheduleExpensiveOperation(func() {
		if s, ok := ref(); ok {
			_, _ = s.ensureCompiled()
		}
	})
	return s, nil
}

// Name returns the shader name.
func (s *Shader) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Name
}

// ID identifies the current program. It changes when the shader is
// reloaded, so pipelines built from the previous source are not reused.
func (s *Shader) ID() uint64 { return s.id.Load() }

// Layout returns the resource groups of the program.
func (s *Shader) Layout() []pipeline.ResourceKind { return s.layout }

// Compiled reports whether the program has been built.
func (s *Shader) Compiled() bool { return s.native != nil }

// Err returns the compile error, if compilation failed.
func (s *Shader) Err() error { return s.err }

// ReloadErr returns the error of the last failed reload. The previous
// program stays in use after a failed reload.
func (s *Shader) ReloadErr() error { return s.reloadErr }

// Compile builds the program now if it has not been built yet.
func (s *Shader) Compile() error {
	_, err := s.ensureCompiled()
	return err
}

func (s *Shader) ensureCompiled() (backend.Shader, error) {
	if s.disposed.Load() {
		return nil, ErrDisposed
	}
	if s.native != nil {
		return s.native.sh, nil
	}
	if s.err != nil {
		return nil, s.err
	}

	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	native, err := s.build(src)
	if err != nil {
		s.err = err
		Logger().Warn("gfx: shader compile failed", "shader", src.Name, "err", err)
		return nil, err
	}
	s.setNative(native)
	return native, nil
}

// build compiles src into a backend shader module.
func (s *Shader) build(src ShaderSource) (backend.Shader, error) {
	desc := &backend.ShaderDescriptor{
		Label:          src.Name,
		WGSL:           src.WGSL,
		VertexEntry:    src.VertexEntry,
		FragmentEntry:  src.FragmentEntry,
		ResourceLayout: s.layout,
	}
	if s.r.cfg.ValidateShaders {
		spirv, err := shader.Compile(src.Name, src.WGSL)
		if err != nil {
			return nil, err
		}
		desc.SPIRV = spirv
	}
	native, err := s.r.device.CreateShader(desc)
	if err != nil {
		return nil, shader.NewCompileError(src.Name, err)
	}
	return native, nil
}

func (s *Shader) setNative(sh backend.Shader) {
	r := s.r
	n := &shaderNative{sh: sh}
	s.native = n
	s.cleanup = runtime.AddCleanup(s, func(n *shaderNative) {
		r.disposals.Schedule(func() { r.destroyShaderNative(n) })
	}, n)
}

// Reload replaces the WGSL source. Recompilation is scheduled as an
// expensive operation, so Reload may be called from any goroutine.
func (s *Shader) Reload(wgsl string) {
	s.r.ScheduleExpensiveOperation(func() { s.replace(wgsl) })
}

func (s *Shader) replace(wgsl string) {
	if s.disposed.Load() {
		return
	}
	s.mu.Lock()
	src := s.src
	src.WGSL = wgsl
	s.mu.Unlock()

	native, err := s.build(src)
	if err != nil {
		s.reloadErr = err
		Logger().Warn("gfx: shader reload failed", "shader", src.Name, "err", err)
		return
	}

	s.mu.Lock()
	s.src = src
	s.mu.Unlock()

	if old := s.native; old != nil {
		s.cleanup.Stop()
		s.r.destroyShaderNative(old)
	}
	s.setNative(native)
	s.err = nil
	s.reloadErr = nil
	s.id.Store(shaderIDs.Add(1))
	Logger().Info("gfx: shader reloaded", "shader", src.Name, "id", s.ID())
}

// BindUniformBlock feeds the uniform group from block. Group 0 is reserved
// for GlobalUniforms.
func (s *Shader) BindUniformBlock(group uint32, block UniformBlock) error {
	if group == 0 {
		return fmt.Errorf("%w: uniform group 0 is reserved", ErrPrecondition)
	}
	if int(group) >= len(s.layout) || s.layout[group] != pipeline.ResourceUniform {
		return fmt.Errorf("%w: shader %q has no uniform group %d", ErrIndexOutOfRange, s.Name(), group)
	}
	if s.blocks[group] == block {
		return nil
	}
	s.r.flushBatch()
	s.blocks[group] = block
	return nil
}

func (s *Shader) uniformBlock(group uint32) UniformBlock {
	return s.blocks[group]
}

// Bind makes s the current shader. See Renderer.BindShader.
func (s *Shader) Bind() error { return s.r.BindShader(s) }

// Unbind restores the previous shader. See Renderer.UnbindShader.
func (s *Shader) Unbind() error { return s.r.UnbindShader(s) }

func (s *Shader) release() {
	if s.native != nil {
		s.cleanup.Stop()
		s.r.destroyShaderNative(s.native)
		s.native = nil
	}
}

// Dispose frees the program during the next Reset. It may be called from
// any goroutine.
func (s *Shader) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.r.disposals.Schedule(s.release)
}
