package keypoints

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	fvutils "go.viam.com/fastvo/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	// Threshold is the intensity difference (0-255) a circle pixel needs to count as brighter or darker.
	Threshold      int  `json:"threshold"`
	NMatchesCircle int  `json:"n_matches_circle"`
	NMSWinSize     int  `json:"nms_win_size"`
	Oriented       bool `json:"oriented"`
}

// DefaultFASTConfig returns the FAST-9 configuration used by the detector.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		Threshold:      20,
		NMatchesCircle: 9,
		NMSWinSize:     7,
	}
}

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	var err error
	if config.Threshold <= 0 || config.Threshold > 255 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("threshold should be in (0, 255]")))
	}
	if config.NMatchesCircle < 1 || config.NMatchesCircle > len(CircleIdx) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("n_matches_circle should be in [1, %d]", len(CircleIdx))))
	}
	if config.NMSWinSize < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1")))
	}
	return err
}

// DetectorConfig contains the parameters of a FastDetector.
type DetectorConfig struct {
	FAST *FASTConfig `json:"fast"`
	// BlockSize is the side in pixels of the square blocks used to index keypoints.
	BlockSize int `json:"block_size"`
	// MaxPerBlock caps the number of keypoints kept per block, strongest first. 0 keeps all.
	MaxPerBlock   int `json:"max_per_block"`
	PyramidLevels int `json:"pyramid_levels"`
	// WindowRadius is the half side of the Lucas-Kanade integration window.
	WindowRadius  int     `json:"window_radius"`
	MaxIterations int     `json:"max_iterations"`
	MinEigen      float64 `json:"min_eigen"`
	// MaxTrackingError is the largest mean absolute intensity difference between the two
	// windows of a tracked point.
	MaxTrackingError float64 `json:"max_tracking_error"`
	// GlobalSearchRadius bounds the translation search at the coarsest pyramid level, in
	// pixels of that level. 0 disables the search.
	GlobalSearchRadius int     `json:"global_search_radius"`
	EpipolarK          float64 `json:"epipolar_k"`
	// EpipolarFloor is the Sampson error that is always accepted by the epipolar filter.
	EpipolarFloor float64 `json:"epipolar_floor"`
}

// DefaultDetectorConfig returns a DetectorConfig that works for VGA sized images.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		FAST:               DefaultFASTConfig(),
		BlockSize:          32,
		MaxPerBlock:        0,
		PyramidLevels:      3,
		WindowRadius:       7,
		MaxIterations:      20,
		MinEigen:           1,
		MaxTrackingError:   30,
		GlobalSearchRadius: 16,
		EpipolarK:          2,
		EpipolarFloor:      1,
	}
}

// Validate ensures all parts of the DetectorConfig are valid.
func (config *DetectorConfig) Validate(path string) error {
	var err error
	if config.FAST == nil {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "fast"))
	} else {
		err = multierr.Append(err, config.FAST.Validate(fmt.Sprintf("%s.%s", path, "fast")))
	}
	if config.BlockSize < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("block_size should be >= 1")))
	}
	if config.MaxPerBlock < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_per_block should be >= 0")))
	}
	if config.PyramidLevels < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("pyramid_levels should be >= 0")))
	}
	if config.WindowRadius < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("window_radius should be >= 1")))
	}
	if config.MaxIterations < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_iterations should be >= 1")))
	}
	if config.MinEigen < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("min_eigen should be >= 0")))
	}
	if config.MaxTrackingError <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("max_tracking_error should be > 0")))
	}
	if config.GlobalSearchRadius < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("global_search_radius should be >= 0")))
	}
	if config.EpipolarK < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("epipolar_k should be >= 0")))
	}
	if config.EpipolarFloor < 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("epipolar_floor should be >= 0")))
	}
	return err
}

// LoadDetectorConfig loads a DetectorConfig from a json file. Fields missing from the file keep
// their default values.
func LoadDetectorConfig(path string) (*DetectorConfig, error) {
	config := DefaultDetectorConfig()
	if err := fvutils.LoadJSON(path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(path); err != nil {
		return nil, err
	}
	return config, nil
}
