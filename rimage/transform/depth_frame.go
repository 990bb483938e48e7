package transform

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/fastvo/rimage"
	"go.viam.com/fastvo/utils"
)

// ErrFrameReleased is returned when a DepthFrame is used after Close.
var ErrFrameReleased = errors.New("depth frame has been released")

// DepthFrame is a color image with its aligned normalized depth map and the intrinsics of the
// camera that captured both.
type DepthFrame struct {
	color      image.Image
	depth      *rimage.DepthMap
	intrinsics *PinholeCameraIntrinsics
	released   bool
}

// NewDepthFrame pairs a color image with a depth map of the same pixel dimensions.
func NewDepthFrame(color image.Image, depth *rimage.DepthMap, intrinsics *PinholeCameraIntrinsics) (*DepthFrame, error) {
	if color == nil {
		return nil, errors.New("no color image given")
	}
	if depth == nil {
		return nil, errors.New("no depth map given")
	}
	if color.Bounds().Dx() != depth.Width() || color.Bounds().Dy() != depth.Height() {
		return nil, utils.NewInputMismatchError("depth map and color dimensions don't match Depth(%d,%d) != Color(%d,%d)",
			depth.Width(), depth.Height(), color.Bounds().Dx(), color.Bounds().Dy())
	}
	if intrinsics != nil {
		if err := intrinsics.CheckValid(); err != nil {
			return nil, err
		}
	}
	return &DepthFrame{color: color, depth: depth, intrinsics: intrinsics}, nil
}

// Color returns the color image.
func (f *DepthFrame) Color() (image.Image, error) {
	if f.released {
		return nil, ErrFrameReleased
	}
	return f.color, nil
}

// Depth returns the depth map.
func (f *DepthFrame) Depth() (*rimage.DepthMap, error) {
	if f.released {
		return nil, ErrFrameReleased
	}
	return f.depth, nil
}

// Intrinsics returns the camera parameters, which may be nil.
func (f *DepthFrame) Intrinsics() *PinholeCameraIntrinsics {
	return f.intrinsics
}

// Released returns whether Close has been called.
func (f *DepthFrame) Released() bool {
	return f.released
}

// Close drops the frame's buffers. Any later access reports ErrFrameReleased.
func (f *DepthFrame) Close() {
	f.color = nil
	f.depth = nil
	f.released = true
}
