// Package odometry estimates the motion of an RGB-D camera between frames from tracked keypoints.
package odometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/fastvo/logging"
	"go.viam.com/fastvo/rimage"
	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/spatialmath"
	"go.viam.com/fastvo/utils"
	"go.viam.com/fastvo/vision/keypoints"
)

// ReprojectionError summarises the pixel reprojection errors of the correspondences a pose was
// solved from.
type ReprojectionError struct {
	Mean   float64
	StdDev float64
}

// reprojectionErrors returns the error statistics of the inliers of sol and of every
// correspondence in front of the camera.
func reprojectionErrors(sol *PoseSolution) (ReprojectionError, ReprojectionError) {
	var inliers, all ReprojectionError
	inliers.Mean, inliers.StdDev = utils.MeanStdDev(sol.InlierResiduals())
	finite := lo.Filter(sol.Residuals, func(r float64, _ int) bool { return !math.IsInf(r, 0) && !math.IsNaN(r) })
	all.Mean, all.StdDev = utils.MeanStdDev(finite)
	return inliers, all
}

// PoseEstimate is the motion from the reference frame to a new frame. Points in the reference
// camera frame map to the new camera frame by Pose.Transform.
type PoseEstimate struct {
	Pose *spatialmath.Pose
	// Error is over the inliers the pose was refined on.
	Error ReprojectionError
	// PointsError is over every depth correspondence, outliers included.
	PointsError ReprojectionError
	// KeyPoints are the keypoints of the new frame. They can be handed to UpdateNextFrame.
	KeyPoints *keypoints.KeyPointSet
	// MatchIndices pair the reference keypoints with KeyPoints and survived the epipolar filter.
	MatchIndices []keypoints.MatchIndices
	// Matches is the number of matches that survived the epipolar filter.
	Matches int
	// DepthPoints is the number of matches with a valid reference depth.
	DepthPoints int
	// Inliers is the number of correspondences the final pose was refined on.
	Inliers int
}

// FastTracker estimates the pose of new frames relative to a reference frame. It owns the
// reference frame and is not safe for concurrent use.
type FastTracker struct {
	cfg        *MotionEstimationConfig
	intrinsics *transform.PinholeCameraIntrinsics
	detector   *keypoints.FastDetector
	logger     logging.Logger

	frame     *transform.DepthFrame
	keyPoints *keypoints.KeyPointSet
}

// NewFastTracker returns a tracker whose reference is firstFrame. The intrinsics are taken from
// the argument, then the config, then the frame.
func NewFastTracker(
	cfg *MotionEstimationConfig,
	intrinsics *transform.PinholeCameraIntrinsics,
	firstFrame *transform.DepthFrame,
	logger logging.Logger,
) (*FastTracker, error) {
	if cfg == nil {
		cfg = DefaultMotionEstimationConfig()
	}
	if err := cfg.Validate("motion_estimation"); err != nil {
		return nil, err
	}
	if firstFrame == nil {
		return nil, errors.New("a first frame is required")
	}
	if logger == nil {
		logger = logging.NewBlankLogger("odometry")
	}
	switch {
	case intrinsics != nil:
	case cfg.CamIntrinsics != nil:
		intrinsics = cfg.CamIntrinsics
	case firstFrame.Intrinsics() != nil:
		intrinsics = firstFrame.Intrinsics()
	default:
		return nil, transform.NewNoIntrinsicsError("tracker needs camera intrinsics")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	detector, err := keypoints.NewFastDetector(cfg.DetectorCfg, logger.Sublogger("keypoints"))
	if err != nil {
		return nil, err
	}
	trk := &FastTracker{cfg: cfg, intrinsics: intrinsics, detector: detector, logger: logger}
	kps, err := trk.extract(firstFrame)
	if err != nil {
		return nil, err
	}
	trk.frame, trk.keyPoints = firstFrame, kps
	return trk, nil
}

// Frame returns the reference frame.
func (t *FastTracker) Frame() *transform.DepthFrame {
	return t.frame
}

// KeyPoints returns the keypoints of the reference frame.
func (t *FastTracker) KeyPoints() *keypoints.KeyPointSet {
	return t.keyPoints
}

// Intrinsics returns the camera parameters used to unproject and project points.
func (t *FastTracker) Intrinsics() *transform.PinholeCameraIntrinsics {
	return t.intrinsics
}

func (t *FastTracker) extract(frame *transform.DepthFrame) (*keypoints.KeyPointSet, error) {
	img, err := frame.Color()
	if err != nil {
		return nil, err
	}
	return t.detector.Extract(img)
}

// GetPose estimates the motion from the reference frame to frame. The reference is not changed;
// call UpdateNextFrame to move it forward.
func (t *FastTracker) GetPose(frame *transform.DepthFrame) (*PoseEstimate, error) {
	if frame == nil {
		return nil, errors.New("no frame to estimate the pose of")
	}
	refImg, err := t.frame.Color()
	if err != nil {
		return nil, err
	}
	refDepth, err := t.frame.Depth()
	if err != nil {
		return nil, err
	}
	newImg, err := frame.Color()
	if err != nil {
		return nil, err
	}
	if err := t.detector.SetFrame(refImg, newImg); err != nil {
		return nil, err
	}
	newKps, err := t.detector.Extract(newImg)
	if err != nil {
		return nil, err
	}
	matches, err := t.detector.Match(t.keyPoints, newKps, t.cfg.MatchThreshold)
	if err != nil {
		t.logger.Warnw("could not match frames", "error", err)
		return nil, err
	}

	scene := make([]r3.Vector, 0, len(matches))
	observed := make([]r2.Point, 0, len(matches))
	for _, m := range matches {
		ref := t.keyPoints.Points[m.Idx1].Point
		d := refDepth.GetDepth(ref.X, ref.Y)
		if !rimage.IsValidDepth(d, t.cfg.MaxDepth) {
			continue
		}
		scene = append(scene, t.intrinsics.Unproject(t.keyPoints.Points[m.Idx1].Float(), d))
		observed = append(observed, newKps.Points[m.Idx2].Float())
	}
	t.logger.Debugw("depth correspondences", "matches", len(matches), "valid_depth", len(scene))
	if len(scene) < t.cfg.MinDepthPoints {
		t.logger.Warnw("not enough matches with valid depth", "valid_depth", len(scene))
		return nil, utils.NewInsufficientDataError("matches with valid depth", len(scene), t.cfg.MinDepthPoints)
	}

	sol, err := SolvePose(t.intrinsics, scene, observed, t.cfg.MaxIterations, t.cfg.OutlierFactor)
	if err != nil {
		t.logger.Warnw("pose solve failed", "error", err)
		return nil, err
	}
	inlierErr, pointsErr := reprojectionErrors(sol)
	inliers := lo.Count(sol.Inliers, true)
	t.logger.Debugw("pose", "translation", sol.Pose.Point(), "rotation_angle", sol.Pose.RotationAngle(),
		"error_mean", inlierErr.Mean, "error_std", inlierErr.StdDev, "points_error_mean", pointsErr.Mean,
		"inliers", inliers, "iterations", sol.Iterations)
	return &PoseEstimate{
		Pose:         sol.Pose,
		Error:        inlierErr,
		PointsError:  pointsErr,
		KeyPoints:    newKps,
		MatchIndices: matches,
		Matches:      len(matches),
		DepthPoints:  len(scene),
		Inliers:      inliers,
	}, nil
}

// UpdateNextFrame makes frame the reference with the given keypoints. When free is set the previous
// reference is closed, unless it is frame itself. A nil kps extracts the keypoints of frame.
func (t *FastTracker) UpdateNextFrame(frame *transform.DepthFrame, kps *keypoints.KeyPointSet, free bool) error {
	if frame == nil {
		return errors.New("no frame to make the reference")
	}
	if kps == nil {
		var err error
		if kps, err = t.extract(frame); err != nil {
			return err
		}
	}
	if frame == t.frame {
		t.keyPoints = kps
		return nil
	}
	if free {
		t.frame.Close()
	}
	t.frame, t.keyPoints = frame, kps
	return nil
}
