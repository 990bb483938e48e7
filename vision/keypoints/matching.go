package keypoints

import (
	"math"

	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/utils"
)

// MatchIndices contains the index of a match in the first and second set of keypoints.
type MatchIndices struct {
	Idx1 int
	Idx2 int
	// TrackingError is the distance in pixels between the tracked location of the first keypoint
	// and the second keypoint.
	TrackingError float64
}

// findMatches pairs every tracked point with the nearest keypoint of set2 within threshold
// pixels, looking only at the blocks around the tracked location.
// Equal distances go to the lowest set2 index. A set2 keypoint claimed by several tracked points
// goes to the smallest distance, then to the lowest set1 index.
func findMatches(tracked []TrackResult, set2 *KeyPointSet, threshold float64) []MatchIndices {
	radius := utils.MaxInt(1, int(math.Ceil(threshold/float64(set2.BlockSize))))
	claims := make(map[int]int)
	matches := make([]MatchIndices, 0, len(tracked))
	alive := make([]bool, 0, len(tracked))
	for i, tr := range tracked {
		if !tr.OK {
			continue
		}
		best, bestDist := -1, math.Inf(1)
		for _, j := range set2.Neighborhood(tr.Point, radius) {
			d := set2.Points[j].Float().Sub(tr.Point).Norm()
			if d <= threshold && d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		if prev, ok := claims[best]; ok {
			// earlier claims have a lower set1 index and win ties
			if matches[prev].TrackingError <= bestDist {
				continue
			}
			alive[prev] = false
		}
		claims[best] = len(matches)
		matches = append(matches, MatchIndices{Idx1: i, Idx2: best, TrackingError: bestDist})
		alive = append(alive, true)
	}
	out := make([]MatchIndices, 0, len(matches))
	for i, m := range matches {
		if alive[i] {
			out = append(out, m)
		}
	}
	return out
}

// MatchedPoints returns the pixel pairs of the matches. Indices outside the sets are an
// ErrInputMismatch.
func MatchedPoints(set1, set2 *KeyPointSet, matches []MatchIndices) ([]transform.FeatureMatch, error) {
	out := make([]transform.FeatureMatch, len(matches))
	for i, m := range matches {
		if m.Idx1 < 0 || m.Idx1 >= set1.Len() {
			return nil, utils.NewInputMismatchError("match %d refers to keypoint %d of the first set which has %d keypoints",
				i, m.Idx1, set1.Len())
		}
		if m.Idx2 < 0 || m.Idx2 >= set2.Len() {
			return nil, utils.NewInputMismatchError("match %d refers to keypoint %d of the second set which has %d keypoints",
				i, m.Idx2, set2.Len())
		}
		out[i] = transform.FeatureMatch{P1: set1.Points[m.Idx1].Float(), P2: set2.Points[m.Idx2].Float()}
	}
	return out, nil
}

// EpipolarInliers estimates the fundamental matrix of the matches and flags the matches whose
// Sampson error is at most max(mean + k*stddev, floor).
func EpipolarInliers(matches []transform.FeatureMatch, k, floor float64) ([]bool, *transform.FundamentalMatrix, error) {
	fm, err := transform.EstimateFundamentalMatrix(matches)
	if err != nil {
		return nil, nil, err
	}
	errs := transform.SampsonErrors(fm.F, matches)
	mean, std := utils.MeanStdDev(errs)
	limit := math.Max(mean+k*std, floor)
	keep := make([]bool, len(matches))
	for i, e := range errs {
		keep[i] = e <= limit
	}
	return keep, fm, nil
}
