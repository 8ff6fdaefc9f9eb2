// Command mandelbrot opens a window and renders the Mandelbrot set on the GPU.
//
// Arrow keys pan, '=' zooms in and '-' zooms out. There are no flags; the
// environment variables below are optional:
//
//	MANDELBROT_LOG           log level: debug, info, warn or error
//	MANDELBROT_METRICS_ADDR  serve Prometheus metrics on this address
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/gogpu/mandelbrot"
	"github.com/gogpu/mandelbrot/backend/webgpu"
	"github.com/gogpu/mandelbrot/frame"
	"github.com/gogpu/mandelbrot/metrics"
)

func init() {
	// GLFW and the swapchain must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mandelbrot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelWarn
	if name := os.Getenv("MANDELBROT_LOG"); name != "" {
		l, ok := mandelbrot.ParseLevel(name)
		if !ok {
			return fmt.Errorf("MANDELBROT_LOG: unknown level %q", name)
		}
		level = l
	}
	mandelbrot.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []frame.Option{}
	if addr := os.Getenv("MANDELBROT_METRICS_ADDR"); addr != "" {
		obs := metrics.New()
		opts = append(opts, frame.WithObserver(obs))
		go func() {
			if err := obs.Serve(ctx, addr); err != nil {
				mandelbrot.Logger().Error("metrics server stopped", "err", err)
			}
		}()
	}

	win, err := webgpu.OpenWindow(webgpu.DefaultTitle, webgpu.DefaultWidth, webgpu.DefaultHeight)
	if err != nil {
		return err
	}
	defer win.Close()

	gpu, err := webgpu.New(win, webgpu.Config{})
	if err != nil {
		return err
	}
	defer gpu.Close()

	sched, err := frame.New(gpu, win, win.FramebufferSize(), opts...)
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}
