package keypoints

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/fastvo/rimage"
)

const (
	// lkEpsilon is the displacement update, in pixels, below which Lucas-Kanade stops iterating.
	lkEpsilon = 0.01
	// minSearchOverlap is the smallest fraction of the coarsest level that must overlap for a
	// global translation candidate to be scored.
	minSearchOverlap = 0.25
)

// TrackResult is where a point of the first image was found in the second image.
type TrackResult struct {
	Point r2.Point
	// Error is the mean absolute intensity difference between the two windows.
	Error float64
	OK    bool
}

// tracker runs pyramidal Lucas-Kanade between two pyramids of the same size.
type tracker struct {
	pyr1, pyr2 *rimage.Pyramid
	cfg        *DetectorConfig
	seed       r2.Point
}

func newTracker(pyr1, pyr2 *rimage.Pyramid, cfg *DetectorConfig) *tracker {
	t := &tracker{pyr1: pyr1, pyr2: pyr2, cfg: cfg}
	t.seed = GlobalTranslation(pyr1.Levels[pyr1.Depth()], pyr2.Levels[pyr2.Depth()], cfg.GlobalSearchRadius)
	return t
}

// sample reads the image at a sub-pixel location clamped to the image.
func sample(g *rimage.FloatGray, x, y float64) float64 {
	x = math.Max(0, math.Min(x, float64(g.Width-1)))
	y = math.Max(0, math.Min(y, float64(g.Height-1)))
	v, _ := g.Bilinear(x, y)
	return v
}

// GlobalTranslation finds the integer shift d with img2(p + d) closest to img1(p), searching
// |dx|, |dy| <= radius and scoring by the mean absolute difference over the overlap. Ties go
// to the shorter shift.
func GlobalTranslation(img1, img2 *rimage.FloatGray, radius int) r2.Point {
	if radius <= 0 {
		return r2.Point{}
	}
	minOverlap := int(minSearchOverlap * float64(img1.Width*img1.Height))
	best, bestScore, bestNorm := r2.Point{}, math.Inf(1), 0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x0, x1 := max(0, -dx), min(img1.Width, img2.Width-dx)
			y0, y1 := max(0, -dy), min(img1.Height, img2.Height-dy)
			if x1 <= x0 || y1 <= y0 || (x1-x0)*(y1-y0) < minOverlap {
				continue
			}
			sum := 0.
			for y := y0; y < y1; y++ {
				row1 := img1.Pix[y*img1.Width:]
				row2 := img2.Pix[(y+dy)*img2.Width:]
				for x := x0; x < x1; x++ {
					sum += math.Abs(row1[x] - row2[x+dx])
				}
			}
			score := sum / float64((x1-x0)*(y1-y0))
			norm := dx*dx + dy*dy
			if score < bestScore || (score == bestScore && norm < bestNorm) {
				best, bestScore, bestNorm = r2.Point{X: float64(dx), Y: float64(dy)}, score, norm
			}
		}
	}
	return best
}

// window samples the first image and its gradients around a point of a level.
type window struct {
	vals, gx, gy []float64
	// spatial gradient matrix [[gxx gxy] [gxy gyy]]
	gxx, gxy, gyy float64
}

func (t *tracker) window(level int, center r2.Point) *window {
	r := t.cfg.WindowRadius
	n := (2*r + 1) * (2*r + 1)
	w := &window{vals: make([]float64, 0, n), gx: make([]float64, 0, n), gy: make([]float64, 0, n)}
	img, gradX, gradY := t.pyr1.Levels[level], t.pyr1.GradX[level], t.pyr1.GradY[level]
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := center.X+float64(dx), center.Y+float64(dy)
			ix, iy := sample(gradX, x, y), sample(gradY, x, y)
			w.vals = append(w.vals, sample(img, x, y))
			w.gx = append(w.gx, ix)
			w.gy = append(w.gy, iy)
			w.gxx += ix * ix
			w.gxy += ix * iy
			w.gyy += iy * iy
		}
	}
	return w
}

// minEigen returns the smallest eigenvalue of the spatial gradient matrix per window pixel.
func (w *window) minEigen() float64 {
	n := float64(len(w.vals))
	tr := (w.gxx + w.gyy) / 2
	det := math.Sqrt(math.Max(0, tr*tr-(w.gxx*w.gyy-w.gxy*w.gxy)))
	return (tr - det) / n
}

// residuals returns the intensity differences between the first image window and the second
// image window displaced by d.
func (t *tracker) residuals(level int, center, d r2.Point, w *window) []float64 {
	r := t.cfg.WindowRadius
	img := t.pyr2.Levels[level]
	diffs := make([]float64, 0, len(w.vals))
	i := 0
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			x, y := center.X+d.X+float64(dx), center.Y+d.Y+float64(dy)
			diffs = append(diffs, w.vals[i]-sample(img, x, y))
			i++
		}
	}
	return diffs
}

// Track follows a full resolution point of the first image into the second one.
func (t *tracker) Track(pt r2.Point) TrackResult {
	top := t.pyr1.Depth()
	guess := t.seed
	var w *window
	for level := top; level >= 0; level-- {
		center := t.pyr1.ToLevel(pt, level)
		w = t.window(level, center)
		det := w.gxx*w.gyy - w.gxy*w.gxy
		if det <= 1e-9 && level == 0 {
			return TrackResult{}
		}
		v := r2.Point{}
		// flat windows on coarse levels keep the propagated guess
		for it := 0; det > 1e-9 && it < t.cfg.MaxIterations; it++ {
			diffs := t.residuals(level, center, guess.Add(v), w)
			bx, by := floats.Dot(diffs, w.gx), floats.Dot(diffs, w.gy)
			eta := r2.Point{
				X: (w.gyy*bx - w.gxy*by) / det,
				Y: (w.gxx*by - w.gxy*bx) / det,
			}
			v = v.Add(eta)
			if eta.Norm() < lkEpsilon {
				break
			}
		}
		guess = guess.Add(v)
		if level > 0 {
			rx, ry := t.pyr1.LevelRatio(level)
			guess = r2.Point{X: guess.X * rx, Y: guess.Y * ry}
		}
	}

	if w.minEigen() < t.cfg.MinEigen {
		return TrackResult{}
	}
	found := pt.Add(guess)
	base := t.pyr2.Levels[0]
	if found.X < 0 || found.Y < 0 || found.X > float64(base.Width-1) || found.Y > float64(base.Height-1) {
		return TrackResult{}
	}
	diffs := t.residuals(0, pt, guess, w)
	for i, d := range diffs {
		diffs[i] = math.Abs(d)
	}
	photoErr := floats.Sum(diffs) / float64(len(diffs))
	if photoErr > t.cfg.MaxTrackingError {
		return TrackResult{}
	}
	return TrackResult{Point: found, Error: photoErr, OK: true}
}
