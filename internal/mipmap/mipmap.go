// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mipmap builds downscaled mip levels for texture uploads.
package mipmap

import (
	"image"

	"golang.org/x/image/draw"
)

// Level is one generated mip level of an uploaded region.
type Level struct {
	// Level is the mip level index, starting at 1.
	Level int

	// Bounds is the destination rectangle within the mip level.
	Bounds image.Rectangle

	Image *image.RGBA
}

// LevelCount returns the number of mip levels of a full chain for a
// width x height texture.
func LevelCount(width, height int) int {
	n := 1
	for width > 1 || height > 1 {
		width = max(width/2, 1)
		height = max(height/2, 1)
		n++
	}
	return n
}

// LevelSize returns the size of mip level of a width x height texture.
func LevelSize(width, height, level int) image.Point {
	return image.Pt(max(width>>level, 1), max(height>>level, 1))
}

// ScaleRect maps a level 0 rectangle onto level, rounding outwards.
func ScaleRect(r image.Rectangle, level int) image.Rectangle {
	div := 1 << level
	return image.Rect(
		r.Min.X/div,
		r.Min.Y/div,
		(r.Max.X+div-1)/div,
		(r.Max.Y+div-1)/div,
	)
}

// Generate downsamples src, uploaded at bounds of level 0, into levels
// 1..levels-1 of a width x height texture. Regions are clipped to each
// level's extent; levels that clip to nothing are omitted.
func Generate(src *image.RGBA, bounds image.Rectangle, width, height, levels int) []Level {
	var out []Level
	prev := src
	for level := 1; level < levels; level++ {
		size := LevelSize(width, height, level)
		dst := ScaleRect(bounds, level).Intersect(image.Rectangle{Max: size})
		if dst.Empty() {
			break
		}

		img := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
		draw.ApproxBiLinear.Scale(img, img.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		out = append(out, Level{Level: level, Bounds: dst, Image: img})
		prev = img
	}
	return out
}

// ToRGBA returns img as tightly packed RGBA, converting when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == rgba.Rect.Dx()*4 && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
