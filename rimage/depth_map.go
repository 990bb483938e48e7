package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// MaxNormalizedDepth is the largest valid value of a normalized depth map.
const MaxNormalizedDepth = 1.0

// DepthMap is a single channel grid of normalized depth values. A value in (0, 1] is a valid
// depth; zero, negative and larger values mean the depth is unknown.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns a depth map of the given size filled with zeros (unknown depth).
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewConstantDepthMap returns a depth map where every pixel has the same depth.
func NewConstantDepthMap(width, height int, depth float64) *DepthMap {
	dm := NewEmptyDepthMap(width, height)
	for i := range dm.data {
		dm.data[i] = depth
	}
	return dm
}

// NewDepthMapFromGray16 converts a 16 bit depth image into a normalized depth map by dividing
// each sample by the full 16 bit range.
func NewDepthMapFromGray16(img *image.Gray16) *DepthMap {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			v := img.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y
			dm.data[y*dm.width+x] = float64(v) / math.MaxUint16
		}
	}
	return dm
}

// ConvertImageToDepthMap converts any gray-like image into a normalized depth map.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	switch ii := img.(type) {
	case nil:
		return nil, errors.New("no depth image given")
	case *DepthMap:
		return ii, nil
	case *image.Gray16:
		return NewDepthMapFromGray16(ii), nil
	default:
		bounds := img.Bounds()
		gray16 := image.NewGray16(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				gray16.Set(x, y, color.Gray16Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)))
			}
		}
		return NewDepthMapFromGray16(gray16), nil
	}
}

// Width returns the width of the depth map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the depth map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle dimensions of the depth map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// Contains returns whether the pixel is inside the depth map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// GetDepth returns the depth at the pixel. Pixels outside the map have zero depth.
func (dm *DepthMap) GetDepth(x, y int) float64 {
	if !dm.Contains(x, y) {
		return 0
	}
	return dm.data[y*dm.width+x]
}

// Set sets the depth at the pixel.
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[y*dm.width+x] = val
}

// NearestDepth returns the depth at the pixel closest to the sub-pixel location.
func (dm *DepthMap) NearestDepth(x, y float64) float64 {
	return dm.GetDepth(int(math.Round(x)), int(math.Round(y)))
}

// IsValidDepth returns whether d is a known depth no larger than maxDepth.
func IsValidDepth(d, maxDepth float64) bool {
	return d > 0 && d <= maxDepth && !math.IsNaN(d)
}

// ColorModel lets the depth map be viewed as an image.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// At returns the depth scaled back to a 16 bit gray value; out of range depths are clamped.
func (dm *DepthMap) At(x, y int) color.Color {
	d := math.Max(0, math.Min(1, dm.GetDepth(x, y)))
	return color.Gray16{Y: uint16(math.Round(d * math.MaxUint16))}
}
