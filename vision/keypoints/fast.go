package keypoints

import (
	"image"
)

var (
	// CrossIdx contains the neighbors coordinates in a 3-cross neighborhood.
	CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx contains the neighbors coordinates in a circle of radius 3 neighborhood,
	// clockwise starting from the top.
	CircleIdx = []image.Point{
		{0, -3},
		{1, -3},
		{2, -2},
		{3, -1},
		{3, 0},
		{3, 1},
		{2, 2},
		{1, 3},
		{0, 3},
		{-1, 3},
		{-2, 2},
		{-3, 1},
		{-3, 0},
		{-3, -1},
		{-2, -2},
		{-1, -3},
	}
)

// fastBorder is the radius of the circle; pixels closer than this to the border are not tested.
const fastBorder = 3

// GetPointValuesInNeighborhood returns a slice of floats containing the values of neighborhood pixels in image img.
func GetPointValuesInNeighborhood(img *image.Gray, coords image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i := 0; i < len(neighborhood); i++ {
		c := img.GrayAt(coords.X+neighborhood[i].X, coords.Y+neighborhood[i].Y).Y
		vals[i] = float64(c)
	}
	return vals
}

// isValidSliceVals returns true if there are at least n contiguous ones in the slice, wrapping
// around the end.
func isValidSliceVals(vals []float64, n int) bool {
	if len(vals) == 0 || n <= 0 {
		return false
	}
	run := 0
	for i := 0; i < 2*len(vals); i++ {
		if vals[i%len(vals)] > 0 {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// sumOfPositiveValuesSlice returns the sum of the positive values of a slice.
func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// sumOfNegativeValuesSlice returns the sum of the negative values of a slice.
func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns a slice of 1 where the value is strictly brighter than t, 0 elsewhere.
func getBrighterValues(s []float64, t float64) []float64 {
	brighterValues := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			brighterValues[i] = 1
		}
	}
	return brighterValues
}

// getDarkerValues returns a slice of 1 where the value is strictly darker than t, 0 elsewhere.
func getDarkerValues(s []float64, t float64) []float64 {
	darkerValues := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			darkerValues[i] = 1
		}
	}
	return darkerValues
}

// fastScore tests a pixel for the FAST criterion. It returns the corner response (0 when the
// pixel is not a corner): the summed absolute difference, beyond the threshold, of the circle
// pixels of the winning type.
func fastScore(img *image.Gray, pt image.Point, cfg *FASTConfig) float64 {
	t := float64(cfg.Threshold)
	center := float64(img.GrayAt(pt.X, pt.Y).Y)

	// high speed test: an arc of n contiguous pixels covers at least n/4 of the 4 cross pixels
	if cfg.NMatchesCircle >= 12 {
		cross := GetPointValuesInNeighborhood(img, pt, CrossIdx)
		nBright, nDark := 0, 0
		for _, v := range cross {
			if v > center+t {
				nBright++
			} else if v < center-t {
				nDark++
			}
		}
		if nBright < 3 && nDark < 3 {
			return 0
		}
	}

	vals := GetPointValuesInNeighborhood(img, pt, CircleIdx)
	diffs := make([]float64, len(vals))
	for i, v := range vals {
		diffs[i] = v - center
	}

	var score float64
	if isValidSliceVals(getBrighterValues(diffs, t), cfg.NMatchesCircle) {
		above := make([]float64, len(diffs))
		for i, d := range diffs {
			above[i] = d - t
		}
		score = sumOfPositiveValuesSlice(above)
	}
	if isValidSliceVals(getDarkerValues(diffs, -t), cfg.NMatchesCircle) {
		below := make([]float64, len(diffs))
		for i, d := range diffs {
			below[i] = d + t
		}
		if s := -sumOfNegativeValuesSlice(below); s > score {
			score = s
		}
	}
	return score
}

// nmsSuppressed returns true when a neighbor in the window has a strictly stronger response, or
// an equal response and comes first in raster order.
func nmsSuppressed(scores []float64, width, height int, pt image.Point, radius int) bool {
	s := scores[pt.Y*width+pt.X]
	for y := pt.Y - radius; y <= pt.Y+radius; y++ {
		if y < 0 || y >= height {
			continue
		}
		for x := pt.X - radius; x <= pt.X+radius; x++ {
			if x < 0 || x >= width || (x == pt.X && y == pt.Y) {
				continue
			}
			other := scores[y*width+x]
			if other > s {
				return true
			}
			if other == s && (y < pt.Y || (y == pt.Y && x < pt.X)) {
				return true
			}
		}
	}
	return false
}

// ComputeFAST computes the location of FAST keypoints in raster order with their responses.
// The image must start at the origin.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) []KeyPoint {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scores := make([]float64, w*h)
	candidates := make([]image.Point, 0)
	for y := fastBorder; y < h-fastBorder; y++ {
		for x := fastBorder; x < w-fastBorder; x++ {
			pt := image.Point{x, y}
			if s := fastScore(img, pt, cfg); s > 0 {
				scores[y*w+x] = s
				candidates = append(candidates, pt)
			}
		}
	}

	radius := cfg.NMSWinSize / 2
	kps := make([]KeyPoint, 0, len(candidates))
	for _, pt := range candidates {
		if radius > 0 && nmsSuppressed(scores, w, h, pt, radius) {
			continue
		}
		kps = append(kps, KeyPoint{Point: pt, Response: scores[pt.Y*w+pt.X]})
	}
	return kps
}
