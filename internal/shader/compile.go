// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader validates WGSL sources and compiles them to SPIR-V.
package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// CompileError reports a shader that failed to compile.
type CompileError struct {
	// Name is the shader's name.
	Name string

	// Diagnostic is the compiler output.
	Diagnostic string

	err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("shader %q: compile failed: %s", e.Name, e.Diagnostic)
}

// Unwrap returns the underlying compiler or backend error.
func (e *CompileError) Unwrap() error { return e.err }

// NewCompileError wraps err as a compile failure of the named shader.
// A *CompileError is returned unchanged.
func NewCompileError(name string, err error) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	return &CompileError{Name: name, Diagnostic: strings.TrimSpace(err.Error()), err: err}
}

// Compile validates wgsl and returns its SPIR-V words.
func Compile(name, wgsl string) ([]uint32, error) {
	if strings.TrimSpace(wgsl) == "" {
		return nil, &CompileError{Name: name, Diagnostic: "empty source"}
	}

	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, NewCompileError(name, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, &CompileError{Name: name, Diagnostic: fmt.Sprintf("SPIR-V size %d is not word aligned", len(spirvBytes))}
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
