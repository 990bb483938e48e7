// Package keypoints contains the detection, tracking and matching of keypoints between images.
// For now:
// - FAST keypoints
// - pyramidal Lucas-Kanade tracking
package keypoints

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"

	"go.viam.com/fastvo/rimage"
)

// KeyPoint is a detected corner. It is immutable once created.
type KeyPoint struct {
	Point    image.Point
	Response float64
	// Angle is the orientation in radians, 0 when orientation is not computed.
	Angle float64
	// Block is the index of the block containing the point in its KeyPointSet.
	Block int
}

// Float returns the location of the keypoint as a float point.
func (kp KeyPoint) Float() r2.Point {
	return r2.Point{X: float64(kp.Point.X), Y: float64(kp.Point.Y)}
}

// orientationRadius is the radius of the disc used by the intensity centroid.
const orientationRadius = 15

// orientationMaskExtents holds, for each row offset of the disc, the largest column offset.
var orientationMaskExtents = []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}

// computeKeypointsOrientations returns the angle of the intensity centroid of a disc around each
// keypoint. Pixels outside the image count as black.
func computeKeypointsOrientations(img *image.Gray, kps []KeyPoint) []float64 {
	bounds := img.Bounds()
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for dy := -orientationRadius; dy <= orientationRadius; dy++ {
			extent := orientationMaskExtents[int(math.Abs(float64(dy)))]
			m01Temp := 0
			for dx := -extent; dx <= extent; dx++ {
				pt := image.Point{kp.Point.X + dx, kp.Point.Y + dy}
				if !pt.In(bounds) {
					continue
				}
				pixVal := int(img.GrayAt(pt.X, pt.Y).Y)
				m10 += pixVal * dx
				m01Temp += pixVal
			}
			m01 += m01Temp * dy
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations
}

// KeyPointSet holds the keypoints of one image and the block index built for them.
type KeyPointSet struct {
	Points []KeyPoint
	Width  int
	Height int
	// BlockSize is the side of the square blocks, in pixels.
	BlockSize int
	blocks    [][]int
}

// NewKeyPointSet indexes keypoints of a width x height image into square blocks. The Block field
// of each keypoint is set to its block. Block sizes below one pixel are raised to one.
func NewKeyPointSet(kps []KeyPoint, width, height, blockSize int) *KeyPointSet {
	blockSize = max(blockSize, 1)
	width, height = max(width, 0), max(height, 0)
	set := &KeyPointSet{
		Points:    make([]KeyPoint, len(kps)),
		Width:     width,
		Height:    height,
		BlockSize: blockSize,
	}
	cols, rows := set.BlockGrid()
	set.blocks = make([][]int, cols*rows)
	for i, kp := range kps {
		kp.Block = set.BlockIndex(kp.Point)
		set.Points[i] = kp
		if kp.Block >= 0 {
			set.blocks[kp.Block] = append(set.blocks[kp.Block], i)
		}
	}
	return set
}

// Len returns the number of keypoints.
func (s *KeyPointSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// BlockGrid returns the number of block columns and rows. A set without blocks has none.
func (s *KeyPointSet) BlockGrid() (int, int) {
	if s.BlockSize <= 0 {
		return 0, 0
	}
	return (s.Width + s.BlockSize - 1) / s.BlockSize, (s.Height + s.BlockSize - 1) / s.BlockSize
}

// BlockIndex returns the block containing a pixel, or -1 if the pixel is outside the image.
func (s *KeyPointSet) BlockIndex(pt image.Point) int {
	if pt.X < 0 || pt.Y < 0 || pt.X >= s.Width || pt.Y >= s.Height || s.BlockSize <= 0 {
		return -1
	}
	cols, _ := s.BlockGrid()
	return (pt.Y/s.BlockSize)*cols + pt.X/s.BlockSize
}

// InBlock returns the indices of the keypoints in a block, in increasing order.
func (s *KeyPointSet) InBlock(block int) []int {
	if block < 0 || block >= len(s.blocks) {
		return nil
	}
	return s.blocks[block]
}

// Neighborhood returns the indices of the keypoints in the blocks at most radius blocks away
// from the block containing pt, in increasing order. pt may lie outside the image.
func (s *KeyPointSet) Neighborhood(pt r2.Point, radius int) []int {
	cols, rows := s.BlockGrid()
	if cols == 0 || rows == 0 {
		return nil
	}
	bx := int(math.Floor(pt.X / float64(s.BlockSize)))
	by := int(math.Floor(pt.Y / float64(s.BlockSize)))
	var out []int
	for y := by - radius; y <= by+radius; y++ {
		if y < 0 || y >= rows {
			continue
		}
		for x := bx - radius; x <= bx+radius; x++ {
			if x < 0 || x >= cols {
				continue
			}
			out = append(out, s.blocks[y*cols+x]...)
		}
	}
	sort.Ints(out)
	return out
}

// rankByResponse orders the given keypoint indices by decreasing response.
func rankByResponse(kps []KeyPoint, indices []int) []int {
	ranked := make([]int, len(indices))
	copy(ranked, indices)
	sort.SliceStable(ranked, func(i, j int) bool {
		return kps[ranked[i]].Response > kps[ranked[j]].Response
	})
	return ranked
}

// keepStrongestPerBlock keeps at most maxPerBlock keypoints per block, the ones with the highest
// response, ties going to the earlier keypoint. The raster order of the kept points is preserved.
func keepStrongestPerBlock(kps []KeyPoint, width, height, blockSize, maxPerBlock int) []KeyPoint {
	if maxPerBlock <= 0 {
		return kps
	}
	set := NewKeyPointSet(kps, width, height, blockSize)
	keep := make([]bool, len(kps))
	for _, members := range set.blocks {
		ranked := rankByResponse(set.Points, members)
		for i := 0; i < len(ranked) && i < maxPerBlock; i++ {
			keep[ranked[i]] = true
		}
	}
	out := make([]KeyPoint, 0, len(kps))
	for i, kp := range kps {
		if keep[i] {
			out = append(out, kp)
		}
	}
	return out
}

// ExtractKeyPoints runs FAST on a gray image and builds the block indexed set. The image must
// start at the origin.
func ExtractKeyPoints(img *image.Gray, cfg *DetectorConfig) *KeyPointSet {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	kps := ComputeFAST(img, cfg.FAST)
	kps = keepStrongestPerBlock(kps, w, h, cfg.BlockSize, cfg.MaxPerBlock)
	if cfg.FAST.Oriented {
		for i, angle := range computeKeypointsOrientations(img, kps) {
			kps[i].Angle = angle
		}
	}
	return NewKeyPointSet(kps, w, h, cfg.BlockSize)
}

// KeyPointsFromImage converts any image to gray and extracts its keypoints.
func KeyPointsFromImage(img image.Image, cfg *DetectorConfig) *KeyPointSet {
	return ExtractKeyPoints(rimage.MakeGray(img), cfg)
}
