package keypoints

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/fastvo/logging"
	"go.viam.com/fastvo/rimage"
	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/utils"
)

var (
	// ErrFramesNotSet is returned by Match when SetFrame has not been called.
	ErrFramesNotSet = errors.New("detector frames are not set")
	// ErrKeyPointsNotExtracted is returned by Match when no keypoints were extracted since the
	// last SetFrame.
	ErrKeyPointsNotExtracted = errors.New("keypoints are not extracted for the current frames")
)

// State is the stage a FastDetector is in.
type State int

// The detector stages, in the order they are reached.
const (
	Idle State = iota
	FramesSet
	Extracted
	Matched
	Filtered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FramesSet:
		return "frames_set"
	case Extracted:
		return "extracted"
	case Matched:
		return "matched"
	case Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// FastDetector extracts FAST keypoints and matches them between a pair of frames by tracking
// them with pyramidal Lucas-Kanade. It is not safe for concurrent use.
type FastDetector struct {
	cfg    *DetectorConfig
	logger logging.Logger

	state         State
	pyr1, pyr2    *rimage.Pyramid
	width, height int
	fundamental   *transform.FundamentalMatrix
}

// NewFastDetector returns an idle detector.
func NewFastDetector(cfg *DetectorConfig, logger logging.Logger) (*FastDetector, error) {
	if cfg == nil {
		cfg = DefaultDetectorConfig()
	}
	if err := cfg.Validate("detector"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("keypoints")
	}
	return &FastDetector{cfg: cfg, logger: logger}, nil
}

// Config returns the detector configuration.
func (d *FastDetector) Config() *DetectorConfig {
	return d.cfg
}

// State returns the current stage of the detector.
func (d *FastDetector) State() State {
	return d.state
}

// Fundamental returns the fundamental matrix estimated by the last successful Match.
func (d *FastDetector) Fundamental() *transform.FundamentalMatrix {
	return d.fundamental
}

// SetFrame sets the pair of images that Match tracks between. Both images must have the same size.
func (d *FastDetector) SetFrame(img1, img2 image.Image) error {
	if img1 == nil || img2 == nil {
		return errors.New("both frames are required")
	}
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Dx() != b2.Dx() || b1.Dy() != b2.Dy() {
		return utils.NewInputMismatchError("frame sizes differ (%d, %d) != (%d, %d)", b1.Dx(), b1.Dy(), b2.Dx(), b2.Dy())
	}
	d.pyr1 = rimage.NewPyramid(img1, d.cfg.PyramidLevels)
	d.pyr2 = rimage.NewPyramid(img2, d.cfg.PyramidLevels)
	d.width, d.height = b1.Dx(), b1.Dy()
	d.fundamental = nil
	d.state = FramesSet
	return nil
}

// Extract detects the keypoints of an image. After SetFrame it moves the detector to Extracted;
// in any other stage the stage is left as is.
func (d *FastDetector) Extract(img image.Image) (*KeyPointSet, error) {
	if img == nil {
		return nil, errors.New("no image to extract keypoints from")
	}
	set := KeyPointsFromImage(img, d.cfg)
	d.logger.Debugw("extracted keypoints", "count", set.Len())
	if d.state == FramesSet {
		d.state = Extracted
	}
	return set, nil
}

// Match tracks the keypoints of set1 from the first frame into the second frame and pairs them
// with the keypoints of set2 lying within threshold pixels of the tracked locations. The
// tentative matches are then filtered for epipolar consistency.
func (d *FastDetector) Match(set1, set2 *KeyPointSet, threshold float64) ([]MatchIndices, error) {
	switch d.state {
	case Idle:
		return nil, ErrFramesNotSet
	case FramesSet:
		return nil, ErrKeyPointsNotExtracted
	default:
	}
	if set1 == nil || set2 == nil {
		return nil, errors.New("both keypoint sets are required")
	}
	for _, set := range []*KeyPointSet{set1, set2} {
		if set.Width != d.width || set.Height != d.height {
			return nil, utils.NewInputMismatchError("keypoints of a (%d, %d) image cannot be matched between (%d, %d) frames",
				set.Width, set.Height, d.width, d.height)
		}
	}
	if threshold <= 0 {
		return nil, errors.Errorf("match threshold must be positive, got %v", threshold)
	}

	trk := newTracker(d.pyr1, d.pyr2, d.cfg)
	tracked := make([]TrackResult, set1.Len())
	nTracked := 0
	for i, kp := range set1.Points {
		tracked[i] = trk.Track(kp.Float())
		if tracked[i].OK {
			nTracked++
		}
	}
	matches := findMatches(tracked, set2, threshold)
	d.state = Matched
	d.logger.Debugw("tentative matches", "keypoints", set1.Len(), "tracked", nTracked, "matched", len(matches),
		"seed", trk.seed)

	if len(matches) < transform.MinFundamentalMatches {
		d.logger.Warnw("not enough tentative matches", "matched", len(matches))
		return nil, utils.NewInsufficientDataError("tentative matches", len(matches), transform.MinFundamentalMatches)
	}

	pts, err := MatchedPoints(set1, set2, matches)
	if err != nil {
		return nil, err
	}
	keep, fm, err := EpipolarInliers(pts, d.cfg.EpipolarK, d.cfg.EpipolarFloor)
	if err != nil {
		return nil, err
	}
	if fm.Degenerate {
		d.logger.Debugw("fundamental matrix is degenerate", "condition", fm.Condition)
	}
	d.fundamental = fm
	filtered := make([]MatchIndices, 0, len(matches))
	for i, m := range matches {
		if keep[i] {
			filtered = append(filtered, m)
		}
	}
	d.state = Filtered
	d.logger.Debugw("epipolar filter", "kept", len(filtered), "dropped", len(matches)-len(filtered))
	return filtered, nil
}
