// Command mandelbrot-render drives the frame loop headlessly from a key
// script and saves the last frame as PNG or WebP.
//
//	mandelbrot-render -script "zoom-in*40,right*10" -size 1280x720 -output deep.webp
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/backend"
	_ "github.com/gogpu/mandelbrot/backend/gpu"
	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/snapshot"
	"github.com/gogpu/mandelbrot/viewport"
)

func main() {
	var (
		script      = flag.String("script", "idle", "comma separated key steps, e.g. zoom-in*20,left*5")
		size        = flag.String("size", "1024x768", "output size WxH")
		output      = flag.String("output", "mandelbrot.png", "output file (.png or .webp)")
		supersample = flag.Int("supersample", 1, "render at N times the output size and downscale")
		backendName = flag.String("backend", "", "backend name (default: best available)")
		state       = flag.String("state", "", "initial viewport x,y,scale")
		verbose     = flag.Bool("v", false, "log frame phases")
	)
	flag.Parse()

	if *verbose {
		mandelbrot.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	outSize, err := parseSize(*size)
	if err != nil {
		log.Fatalf("Invalid -size: %v", err)
	}
	if *supersample < 1 {
		log.Fatalf("Invalid -supersample %d", *supersample)
	}
	input, err := frame.ParseScript(*script)
	if err != nil {
		log.Fatalf("Invalid -script: %v", err)
	}

	opts := []frame.Option{}
	if *state != "" {
		s, err := parseState(*state)
		if err != nil {
			log.Fatalf("Invalid -state: %v", err)
		}
		opts = append(opts, frame.WithInitialState(s))
	}

	// Frames are delivered after their submission completed, so the last
	// one seen is the final rendered image.
	var last *image.RGBA
	cfg := backend.Config{OnPresent: func(_ uint64, img *image.RGBA) { last = img }}

	var surface backend.Surface
	if *backendName == "" {
		surface, err = backend.OpenDefault(cfg)
	} else {
		surface, err = backend.Open(*backendName, cfg)
	}
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer surface.Close()

	renderSize := frame.Size{Width: outSize.Width * *supersample, Height: outSize.Height * *supersample}
	sched, err := frame.New(surface, input, renderSize, opts...)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := sched.Run(context.Background()); err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	if last == nil {
		log.Fatalf("No frame was presented")
	}

	if err := snapshot.Save(*output, snapshot.Downsample(last, *supersample)); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	s := sched.State()
	log.Printf("Frame %d saved to %s (%v, backend %s, x=%g y=%g scale=%g)\n",
		sched.Frames(), *output, outSize, surface.Name(), s.X, s.Y, s.Scale)
}

func parseSize(s string) (frame.Size, error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return frame.Size{}, fmt.Errorf("%q is not WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return frame.Size{}, err
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return frame.Size{}, err
	}
	size := frame.Size{Width: width, Height: height}
	if !size.Valid() {
		return frame.Size{}, fmt.Errorf("%v is empty", size)
	}
	return size, nil
}

func parseState(s string) (viewport.State, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return viewport.State{}, fmt.Errorf("%q is not x,y,scale", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return viewport.State{}, err
		}
		v[i] = f
	}
	if v[2] <= 0 {
		return viewport.State{}, fmt.Errorf("scale %g must be positive", v[2])
	}
	return viewport.State{X: v[0], Y: v[1], Scale: v[2]}, nil
}
