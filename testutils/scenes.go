// Package testutils contains synthetic scenes shared by tests.
package testutils

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
)

// TexturedPlane is a flat canvas covered with random gray rectangles. Viewed head-on by a
// pinhole camera it gives images with plenty of corners.
type TexturedPlane struct {
	canvas *image.Gray
}

// NewTexturedPlane draws nRects random rectangles on a width x height canvas. The same seed always
// gives the same canvas.
func NewTexturedPlane(seed int64, width, height, nRects int) *TexturedPlane {
	rng := rand.New(rand.NewSource(seed))
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	for i := 0; i < nRects; i++ {
		w, h := 12+rng.Intn(50), 12+rng.Intn(50)
		x, y := rng.Intn(width)-w/2, rng.Intn(height)-h/2
		level := color.Gray{uint8(rng.Intn(256))}
		draw.Draw(canvas, image.Rect(x, y, x+w, y+h), &image.Uniform{level}, image.Point{}, draw.Src)
	}
	return &TexturedPlane{canvas: canvas}
}

// Bounds returns the canvas rectangle.
func (p *TexturedPlane) Bounds() image.Rectangle {
	return p.canvas.Bounds()
}

// Render returns the width x height view of the canvas whose top left corner is at
// (offsetX, offsetY). Pixels outside the canvas are black.
func (p *TexturedPlane) Render(width, height, offsetX, offsetY int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), p.canvas, image.Point{offsetX, offsetY}, draw.Src)
	return out
}

// RenderRGBA is Render converted to a color image.
func (p *TexturedPlane) RenderRGBA(width, height, offsetX, offsetY int) *image.RGBA {
	gray := p.Render(width, height, offsetX, offsetY)
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, image.Point{}, draw.Src)
	return out
}
