// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"flag"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			want: options{backend: "headless", frames: 300, width: 1280, height: 720, sprites: 1000},
		},
		{
			name: "overrides",
			args: []string{"-backend", "wgpu", "-frames", "5", "-width", "64", "-height", "32", "-sprites", "0", "-v"},
			want: options{backend: "wgpu", frames: 5, width: 64, height: 32, verbose: true},
		},
		{name: "zero frames", args: []string{"-frames", "0"}, wantErr: true},
		{name: "negative sprites", args: []string{"-sprites", "-1"}, wantErr: true},
		{name: "unknown flag", args: []string{"-fps", "60"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunHelp(t *testing.T) {
	err := run([]string{"-h"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRunHeadless(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-frames", "40", "-width", "256", "-height", "128", "-sprites", "64"}, &out)
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "backend: headless")
	assert.Contains(t, s, "stats:")
	assert.Contains(t, s, "memory:")
}

func TestRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfx.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))

	err := run([]string{"-config", path, "-frames", "1"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunUnknownBackend(t *testing.T) {
	err := run([]string{"-backend", "vulkan-direct", "-frames", "1"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestChecker(t *testing.T) {
	img := checker(8, 0)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
	assert.NotEqual(t, img.RGBAAt(0, 0), img.RGBAAt(4, 0))
	assert.Equal(t, img.RGBAAt(0, 0), img.RGBAAt(4, 4))

	// Phases rotate the palette.
	assert.Equal(t, checker(8, 1).RGBAAt(0, 0), img.RGBAAt(4, 0))
}
