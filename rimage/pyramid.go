package rimage

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
)

// minPyramidSide stops the pyramid before levels get too small to track in.
const minPyramidSide = 16

// Pyramid is a coarse-to-fine stack of luminance images with their gradients. Level 0 is the
// full resolution image, every following level is blurred and halved.
type Pyramid struct {
	Levels []*FloatGray
	GradX  []*FloatGray
	GradY  []*FloatGray
}

// NewPyramid builds a pyramid with at most levels+1 images.
func NewPyramid(img image.Image, levels int) *Pyramid {
	cur := imaging.Grayscale(img)
	p := &Pyramid{}
	p.add(floatGrayFromNRGBA(cur))
	for l := 1; l <= levels; l++ {
		w, h := cur.Bounds().Dx()/2, cur.Bounds().Dy()/2
		if w < minPyramidSide || h < minPyramidSide {
			break
		}
		cur = imaging.Resize(imaging.Blur(cur, 1.0), w, h, imaging.Linear)
		p.add(floatGrayFromNRGBA(cur))
	}
	return p
}

func (p *Pyramid) add(level *FloatGray) {
	gx, gy := level.Gradients()
	p.Levels = append(p.Levels, level)
	p.GradX = append(p.GradX, gx)
	p.GradY = append(p.GradY, gy)
}

// Depth returns the index of the coarsest level.
func (p *Pyramid) Depth() int {
	return len(p.Levels) - 1
}

// scale returns the horizontal and vertical ratio between a level and level 0.
func (p *Pyramid) scale(level int) (float64, float64) {
	base, l := p.Levels[0], p.Levels[level]
	return float64(l.Width) / float64(base.Width), float64(l.Height) / float64(base.Height)
}

// ToLevel maps a full resolution pixel location to the given level. Pixel centers are aligned
// the same way imaging.Resize aligns them.
func (p *Pyramid) ToLevel(pt r2.Point, level int) r2.Point {
	sx, sy := p.scale(level)
	return r2.Point{X: (pt.X+0.5)*sx - 0.5, Y: (pt.Y+0.5)*sy - 0.5}
}

// FromLevel maps a location on the given level back to full resolution.
func (p *Pyramid) FromLevel(pt r2.Point, level int) r2.Point {
	sx, sy := p.scale(level)
	return r2.Point{X: (pt.X+0.5)/sx - 0.5, Y: (pt.Y+0.5)/sy - 0.5}
}

// LevelRatio returns how much a displacement grows when moving from level to level-1.
func (p *Pyramid) LevelRatio(level int) (float64, float64) {
	fine, coarse := p.Levels[level-1], p.Levels[level]
	return float64(fine.Width) / float64(coarse.Width), float64(fine.Height) / float64(coarse.Height)
}
