package kernel

import (
	"image/color"

	"github.com/gogpu/mandelbrot/uniform"
)

// Point maps pixel (px, py) of a width×height image into the complex plane.
// Pixel centers span [-1, 1] horizontally; the vertical extent is scaled by
// the aspect ratio so pixels stay square.
func Point(p uniform.Record, px, py, width, height int) (cx, cy float32) {
	w, h := float32(width), float32(height)
	u := (float32(px)+0.5)/w*2 - 1
	v := (float32(py)+0.5)/h*2 - 1
	return p.X + u*p.Scale, p.Y + v*p.Scale*(h/w)
}

// Escape returns the iteration at which the orbit of c leaves the radius-2
// disk, or MaxIterations if it never does.
func Escape(cx, cy float32) int {
	var zx, zy float32
	i := 0
	for i < MaxIterations && zx*zx+zy*zy <= 4 {
		zx, zy = zx*zx-zy*zy+cx, 2*zx*zy+cy
		i++
	}
	return i
}

// Palette maps an iteration count to a color. Points inside the set are black.
func Palette(iter int) color.RGBA {
	if iter >= MaxIterations {
		return color.RGBA{A: 0xff}
	}
	t := float32(iter) / MaxIterations
	s := 1 - t
	return color.RGBA{
		R: unorm8(9 * s * t * t * t),
		G: unorm8(15 * s * s * t * t),
		B: unorm8(8.5 * s * s * s * t),
		A: 0xff,
	}
}

// Shade computes the color of one pixel.
func Shade(p uniform.Record, px, py, width, height int) color.RGBA {
	return Palette(Escape(Point(p, px, py, width, height)))
}

func unorm8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*255 + 0.5)
}
