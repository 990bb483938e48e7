package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/fastvo/spatialmath"
)

// TransformPoint moves a 3D point by the rigid pose: rotation first, then translation.
func TransformPoint(pose *spatialmath.Pose, pt r3.Vector) r3.Vector {
	return pose.Transform(pt)
}

// PredictMatch returns where a pixel of the first view, observed at the given depth, lands in a
// second view whose camera is related to the first by pose. It returns false when the moved point
// has no projection.
func PredictMatch(params *PinholeCameraIntrinsics, pose *spatialmath.Pose, pixel r2.Point, depth float64) (r2.Point, bool) {
	scenePoint := params.Unproject(pixel, depth)
	return params.Project(TransformPoint(pose, scenePoint))
}
