// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gfxbench drives the renderer for a number of frames and prints its
// counters.
//
// Each frame draws a grid of textured sprites through a vertex batch,
// composites an offscreen frame buffer and re-uploads an animated texture.
// With the default headless backend no GPU is needed:
//
//	gfxbench -frames 600 -sprites 2000
//	gfxbench -backend wgpu -config gfx.toml -v
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gfx"
	_ "github.com/gogpu/gfx/backend/headless"
	_ "github.com/gogpu/gfx/backend/wgpu"
	"github.com/gogpu/gputypes"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("gfxbench: %v", err)
	}
}

type options struct {
	backend string
	config  string
	frames  int
	width   int
	height  int
	sprites int
	verbose bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("gfxbench", flag.ContinueOnError)
	fs.StringVar(&o.backend, "backend", "headless", "backend name (headless, wgpu, or empty for the best available)")
	fs.StringVar(&o.config, "config", "", "TOML renderer configuration file")
	fs.IntVar(&o.frames, "frames", 300, "number of frames to render")
	fs.IntVar(&o.width, "width", 1280, "backbuffer width")
	fs.IntVar(&o.height, "height", 720, "backbuffer height")
	fs.IntVar(&o.sprites, "sprites", 1000, "sprites drawn per frame")
	fs.BoolVar(&o.verbose, "v", false, "debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.frames <= 0 || o.width <= 0 || o.height <= 0 || o.sprites < 0 {
		return o, fmt.Errorf("frames, width and height must be positive, sprites non-negative")
	}
	return o, nil
}

func run(args []string, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	var opts []gfx.Option
	if o.config != "" {
		cfg, err := gfx.LoadConfig(o.config)
		if err != nil {
			return err
		}
		opts = append(opts, gfx.WithConfig(cfg))
	}
	if o.verbose {
		opts = append(opts, gfx.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	r, err := gfx.NewWithBackend(o.backend, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := newScene(r, o)
	if err != nil {
		return err
	}
	defer s.dispose()

	start := time.Now()
	for frame := range o.frames {
		if err := r.Reset(o.width, o.height); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if err := s.draw(frame); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
	if err := r.FinishFrame(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "backend: %s\n", r.Device().Name())
	fmt.Fprintf(out, "elapsed: %v (%.1f frames/s)\n", elapsed.Round(time.Millisecond), float64(o.frames)/elapsed.Seconds())
	fmt.Fprintf(out, "stats:   %s\n", r.Stats())
	fmt.Fprintf(out, "memory:  %s\n", r.Memory())
	return nil
}

// scene holds the resources drawn every frame.
type scene struct {
	r       *gfx.Renderer
	o       options
	shader  *gfx.Shader
	sprite  *gfx.Texture
	batch   *gfx.VertexBatch[gfx.TexturedVertex2D]
	fb      *gfx.FrameBuffer
	overlay *gfx.VertexBuffer[gfx.TexturedVertex2D]
}

const spriteSize = 32

func newScene(r *gfx.Renderer, o options) (*scene, error) {
	shader, err := r.NewShader(gfx.TexturedShaderSource())
	if err != nil {
		return nil, err
	}
	sprite := r.NewTexture(spriteSize, spriteSize, gfx.DefaultTextureOptions())
	sprite.SetData(gfx.NewTextureUpload(checker(spriteSize, 0), image.Point{}))

	s := &scene{
		r:       r,
		o:       o,
		shader:  shader,
		sprite:  sprite,
		batch:   gfx.NewVertexBatch[gfx.TexturedVertex2D](r, 6*256, 8, gputypes.PrimitiveTopologyTriangleList),
		fb:      r.NewFrameBuffer(o.width/4, o.height/4, false),
		overlay: gfx.NewVertexBuffer[gfx.TexturedVertex2D](r, 6, gputypes.PrimitiveTopologyTriangleList),
	}
	quad(s.overlay, 0, gfx.RectF{X: 0, Y: 0, Width: float32(o.width) / 4, Height: float32(o.height) / 4})
	return s, nil
}

func (s *scene) draw(frame int) error {
	if frame%30 == 0 {
		s.sprite.SetData(gfx.NewTextureUpload(checker(spriteSize, frame/30), image.Point{}))
	}

	if err := s.shader.Bind(); err != nil {
		return err
	}
	defer s.shader.Unbind()

	if err := s.r.BindFrameBuffer(s.fb); err != nil {
		return err
	}
	if err := s.drawSprites(frame, s.o.sprites/8); err != nil {
		return err
	}
	if err := s.r.UnbindFrameBuffer(s.fb); err != nil {
		return err
	}

	if err := s.drawSprites(frame, s.o.sprites); err != nil {
		return err
	}
	if _, err := s.fb.Texture().Bind(0); err != nil {
		return err
	}
	return s.overlay.DrawRange(0, 6)
}

func (s *scene) drawSprites(frame, n int) error {
	if _, err := s.sprite.Bind(0); err != nil {
		return err
	}
	cols := max(s.o.width/spriteSize, 1)
	var v [6]gfx.TexturedVertex2D
	for i := range n {
		x := float32((i+frame)%cols) * spriteSize
		y := float32((i/cols)%max(s.o.height/spriteSize, 1)) * spriteSize
		quadVertices(&v, gfx.RectF{X: x, Y: y, Width: spriteSize, Height: spriteSize})
		for _, vert := range v {
			if err := s.batch.Add(vert); err != nil {
				return err
			}
		}
	}
	return s.batch.Draw()
}

func (s *scene) dispose() {
	s.batch.Dispose()
	s.overlay.Dispose()
	s.sprite.Dispose()
	s.fb.Dispose()
	s.shader.Dispose()
}

// quadVertices writes two triangles covering rect with full texture
// coordinates.
func quadVertices(v *[6]gfx.TexturedVertex2D, rect gfx.RectF) {
	x0, y0 := rect.X, rect.Y
	x1, y1 := rect.X+rect.Width, rect.Y+rect.Height
	white := [4]float32{1, 1, 1, 1}
	corners := [6][4]float32{
		{x0, y0, 0, 0}, {x1, y0, 1, 0}, {x1, y1, 1, 1},
		{x0, y0, 0, 0}, {x1, y1, 1, 1}, {x0, y1, 0, 1},
	}
	for i, c := range corners {
		v[i] = gfx.TexturedVertex2D{
			Position: [2]float32{c[0], c[1]},
			TexCoord: [2]float32{c[2], c[3]},
			Colour:   white,
		}
	}
}

func quad(vb *gfx.VertexBuffer[gfx.TexturedVertex2D], at int, rect gfx.RectF) {
	var v [6]gfx.TexturedVertex2D
	quadVertices(&v, rect)
	for i, vert := range v {
		vb.SetVertex(at+i, vert)
	}
}

// checker returns a size x size checkerboard whose colours rotate with
// phase.
func checker(size, phase int) *image.RGBA {
	palette := []color.RGBA{
		{R: 0xe0, G: 0x40, B: 0x40, A: 0xff},
		{R: 0x40, G: 0xe0, B: 0x40, A: 0xff},
		{R: 0x40, G: 0x40, B: 0xe0, A: 0xff},
	}
	a, b := palette[phase%len(palette)], palette[(phase+1)%len(palette)]
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			c := a
			if (x/4+y/4)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
