package odometry

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/fastvo/rimage/transform"
	fvutils "go.viam.com/fastvo/utils"
	"go.viam.com/fastvo/vision/keypoints"
)

// minPosePoints is the number of 3D-2D correspondences a pose needs.
const minPosePoints = 4

// MotionEstimationConfig contains the parameters needed for motion estimation between two video frames.
type MotionEstimationConfig struct {
	DetectorCfg   *keypoints.DetectorConfig          `json:"detector"`
	CamIntrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	// MatchThreshold is the largest distance in pixels between a tracked keypoint and its match.
	MatchThreshold float64 `json:"match_threshold"`
	// MaxDepth is the largest valid normalized depth.
	MaxDepth       float64 `json:"max_depth"`
	MinDepthPoints int     `json:"min_depth_points"`
	MaxIterations  int     `json:"max_iterations"`
	// OutlierFactor times the median reprojection error is the largest error kept after the
	// first pose estimate.
	OutlierFactor float64 `json:"outlier_factor"`
}

// DefaultMotionEstimationConfig returns the default configuration. It has no camera intrinsics.
func DefaultMotionEstimationConfig() *MotionEstimationConfig {
	return &MotionEstimationConfig{
		DetectorCfg:    keypoints.DefaultDetectorConfig(),
		MatchThreshold: 1,
		MaxDepth:       1,
		MinDepthPoints: minPosePoints,
		MaxIterations:  100,
		OutlierFactor:  3,
	}
}

// Validate ensures all parts of the MotionEstimationConfig are valid.
func (config *MotionEstimationConfig) Validate(path string) error {
	var err error
	if config.DetectorCfg == nil {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "detector"))
	} else {
		err = multierr.Append(err, config.DetectorCfg.Validate(fmt.Sprintf("%s.%s", path, "detector")))
	}
	if config.CamIntrinsics != nil {
		if intrErr := config.CamIntrinsics.CheckValid(); intrErr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(path, intrErr))
		}
	}
	if config.MatchThreshold <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("match_threshold should be > 0")))
	}
	if config.MaxDepth <= 0 || config.MaxDepth > 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_depth should be in (0, 1]")))
	}
	if config.MinDepthPoints < minPosePoints {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("min_depth_points should be >= %d", minPosePoints)))
	}
	if config.MaxIterations < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_iterations should be >= 1")))
	}
	if config.OutlierFactor <= 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("outlier_factor should be > 1")))
	}
	return err
}

// LoadMotionEstimationConfig loads a motion estimation configuration from a json file. Fields
// missing from the file keep their default values.
func LoadMotionEstimationConfig(path string) (*MotionEstimationConfig, error) {
	config := DefaultMotionEstimationConfig()
	if err := fvutils.LoadJSON(path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(path); err != nil {
		return nil, err
	}
	return config, nil
}
