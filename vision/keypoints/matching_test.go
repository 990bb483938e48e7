package keypoints

import (
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/test"

	"go.viam.com/fastvo/rimage/transform"
	"go.viam.com/fastvo/spatialmath"
	"go.viam.com/fastvo/testutils"
	"go.viam.com/fastvo/utils"
)

func kp(x, y int, response float64) KeyPoint {
	return KeyPoint{Point: image.Point{x, y}, Response: response}
}

func TestKeyPointSetBlocks(t *testing.T) {
	set := NewKeyPointSet([]KeyPoint{kp(5, 5, 1), kp(40, 5, 1), kp(5, 40, 1), kp(70, 70, 1), kp(31, 31, 1)}, 100, 80, 32)
	cols, rows := set.BlockGrid()
	test.That(t, cols, test.ShouldEqual, 4)
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, set.Points[0].Block, test.ShouldEqual, 0)
	test.That(t, set.Points[1].Block, test.ShouldEqual, 1)
	test.That(t, set.Points[2].Block, test.ShouldEqual, 4)
	test.That(t, set.Points[3].Block, test.ShouldEqual, 10)
	test.That(t, set.Points[4].Block, test.ShouldEqual, 0)
	test.That(t, set.InBlock(0), test.ShouldResemble, []int{0, 4})
	test.That(t, set.InBlock(99), test.ShouldBeNil)
	test.That(t, set.BlockIndex(image.Point{100, 0}), test.ShouldEqual, -1)

	test.That(t, set.Neighborhood(r2.Point{X: 10, Y: 10}, 1), test.ShouldResemble, []int{0, 1, 2, 4})
	test.That(t, set.Neighborhood(r2.Point{X: 90, Y: 75}, 1), test.ShouldResemble, []int{3})
	// points outside the image still see the blocks along the border
	test.That(t, set.Neighborhood(r2.Point{X: -5, Y: 10}, 1), test.ShouldResemble, []int{0, 2, 4})
	test.That(t, set.Neighborhood(r2.Point{X: -50, Y: 10}, 1), test.ShouldBeEmpty)

	var empty *KeyPointSet
	test.That(t, empty.Len(), test.ShouldEqual, 0)
}

func TestKeyPointSetBadBlockSize(t *testing.T) {
	for _, size := range []int{0, -8} {
		set := NewKeyPointSet([]KeyPoint{kp(3, 4, 1), kp(9, 9, 1)}, 10, 10, size)
		test.That(t, set.BlockSize, test.ShouldEqual, 1)
		cols, rows := set.BlockGrid()
		test.That(t, cols, test.ShouldEqual, 10)
		test.That(t, rows, test.ShouldEqual, 10)
		test.That(t, set.Points[0].Block, test.ShouldEqual, 43)
		test.That(t, set.InBlock(99), test.ShouldResemble, []int{1})
	}

	set := NewKeyPointSet([]KeyPoint{kp(3, 4, 1)}, -10, 10, 4)
	test.That(t, set.Width, test.ShouldEqual, 0)
	test.That(t, set.Points[0].Block, test.ShouldEqual, -1)

	// a set built without a block size has no blocks
	bare := &KeyPointSet{Width: 10, Height: 10}
	cols, rows := bare.BlockGrid()
	test.That(t, cols, test.ShouldEqual, 0)
	test.That(t, rows, test.ShouldEqual, 0)
	test.That(t, bare.BlockIndex(image.Point{1, 1}), test.ShouldEqual, -1)
	test.That(t, bare.Neighborhood(r2.Point{X: 1, Y: 1}, 1), test.ShouldBeEmpty)

	test.That(t, keepStrongestPerBlock([]KeyPoint{kp(1, 1, 5), kp(1, 1, 9)}, 4, 4, 0, 1), test.ShouldResemble,
		[]KeyPoint{kp(1, 1, 9)})
}

func TestKeepStrongestPerBlock(t *testing.T) {
	kps := []KeyPoint{kp(1, 1, 5), kp(2, 2, 9), kp(3, 3, 9), kp(4, 4, 1), kp(50, 50, 2)}
	kept := keepStrongestPerBlock(kps, 64, 64, 32, 2)
	test.That(t, kept, test.ShouldResemble, []KeyPoint{kp(2, 2, 9), kp(3, 3, 9), kp(50, 50, 2)})
	test.That(t, keepStrongestPerBlock(kps, 64, 64, 32, 0), test.ShouldResemble, kps)
}

func TestFindMatches(t *testing.T) {
	set2 := NewKeyPointSet([]KeyPoint{kp(10, 10, 1), kp(12, 10, 1), kp(60, 60, 1), kp(11, 30, 1)}, 100, 100, 16)

	tracked := []TrackResult{
		// equidistant from keypoints 0 and 1
		{Point: r2.Point{X: 11, Y: 10}, OK: true},
		// lost
		{Point: r2.Point{X: 60, Y: 60}},
		// too far from anything
		{Point: r2.Point{X: 80, Y: 20}, OK: true},
		{Point: r2.Point{X: 60.5, Y: 60}, OK: true},
		// claims keypoint 2 again with a smaller distance
		{Point: r2.Point{X: 60.2, Y: 60}, OK: true},
		// claims keypoint 3 with the same distance as the next one
		{Point: r2.Point{X: 11, Y: 30.5}, OK: true},
		{Point: r2.Point{X: 11, Y: 29.5}, OK: true},
	}
	matches := findMatches(tracked, set2, 1.0)
	test.That(t, len(matches), test.ShouldEqual, 3)
	test.That(t, matches[0].Idx1, test.ShouldEqual, 0)
	test.That(t, matches[0].Idx2, test.ShouldEqual, 0)
	test.That(t, matches[0].TrackingError, test.ShouldAlmostEqual, 1.)
	test.That(t, matches[1].Idx1, test.ShouldEqual, 4)
	test.That(t, matches[1].Idx2, test.ShouldEqual, 2)
	test.That(t, matches[1].TrackingError, test.ShouldAlmostEqual, 0.2)
	test.That(t, matches[2].Idx1, test.ShouldEqual, 5)
	test.That(t, matches[2].Idx2, test.ShouldEqual, 3)

	// a threshold larger than a block widens the searched neighborhood
	far := findMatches([]TrackResult{{Point: r2.Point{X: 40, Y: 40}, OK: true}}, set2, 30)
	test.That(t, len(far), test.ShouldEqual, 1)
	test.That(t, far[0].Idx2, test.ShouldEqual, 2)
}

func TestMatchedPoints(t *testing.T) {
	set1 := NewKeyPointSet([]KeyPoint{kp(1, 2, 1)}, 10, 10, 4)
	set2 := NewKeyPointSet([]KeyPoint{kp(3, 4, 1), kp(5, 6, 1)}, 10, 10, 4)
	pts, err := MatchedPoints(set1, set2, []MatchIndices{{Idx1: 0, Idx2: 1}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pts, test.ShouldResemble, []transform.FeatureMatch{{P1: r2.Point{X: 1, Y: 2}, P2: r2.Point{X: 5, Y: 6}}})

	_, err = MatchedPoints(set1, set2, []MatchIndices{{Idx1: 1, Idx2: 0}})
	test.That(t, errors.Is(err, utils.ErrInputMismatch), test.ShouldBeTrue)
	_, err = MatchedPoints(set1, set2, []MatchIndices{{Idx1: 0, Idx2: -1}})
	test.That(t, errors.Is(err, utils.ErrInputMismatch), test.ShouldBeTrue)
}

func TestEpipolarInliers(t *testing.T) {
	params := &transform.PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	pose, err := spatialmath.NewPoseFromAxisAngle(r3.Vector{X: 0.02, Y: -0.05}, r3.Vector{X: 0.3, Y: 0.1, Z: 0.05})
	test.That(t, err, test.ShouldBeNil)
	rng := rand.New(rand.NewSource(3))
	matches := make([]transform.FeatureMatch, 0, 40)
	for len(matches) < 40 {
		pt := r3.Vector{X: rng.Float64()*2 - 1, Y: rng.Float64()*1.5 - 0.75, Z: 2 + rng.Float64()*3}
		p1, _ := params.Project(pt)
		p2, _ := params.Project(pose.Transform(pt))
		matches = append(matches, transform.FeatureMatch{P1: p1, P2: p2})
	}

	keep, fm, err := EpipolarInliers(matches, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fm.Degenerate, test.ShouldBeFalse)
	for _, k := range keep {
		test.That(t, k, test.ShouldBeTrue)
	}

	// move one point far off its epipolar line
	matches[7].P2 = matches[7].P2.Add(r2.Point{X: -20, Y: 25})
	keep, _, err = EpipolarInliers(matches, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, keep[7], test.ShouldBeFalse)
	test.That(t, lo.Count(keep, true), test.ShouldBeGreaterThanOrEqualTo, 36)

	_, _, err = EpipolarInliers(matches[:5], 2, 1)
	test.That(t, errors.Is(err, utils.ErrInsufficientData), test.ShouldBeTrue)
}

func TestDetectorConfig(t *testing.T) {
	cfg := DefaultDetectorConfig()
	test.That(t, cfg.Validate("detector"), test.ShouldBeNil)

	cfg.FAST = nil
	cfg.BlockSize = 0
	err := cfg.Validate("detector")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fast")
	test.That(t, err.Error(), test.ShouldContainSubstring, "block_size")

	cfg = DefaultDetectorConfig()
	cfg.FAST.NMatchesCircle = 17
	err = cfg.Validate("detector")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "detector.fast")

	path := testutils.WriteTempFile(t, "detector.json", `{"block_size": 16, "fast": {"threshold": 30}, "epipolar_k": 3}`)
	loaded, err := LoadDetectorConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.BlockSize, test.ShouldEqual, 16)
	test.That(t, loaded.EpipolarK, test.ShouldEqual, 3.)
	test.That(t, loaded.FAST.Threshold, test.ShouldEqual, 30)
	test.That(t, loaded.FAST.NMatchesCircle, test.ShouldEqual, 9)
	test.That(t, loaded.PyramidLevels, test.ShouldEqual, 3)

	_, err = LoadDetectorConfig(testutils.WriteTempFile(t, "bad.json", `{"window_radius": 0}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPlot(t *testing.T) {
	img := createTestImage()
	set := ExtractKeyPoints(img, DefaultDetectorConfig())
	dir := t.TempDir()

	kpsPath := filepath.Join(dir, "keypoints.png")
	test.That(t, PlotKeypoints(img, set, kpsPath), test.ShouldBeNil)
	_, err := os.Stat(kpsPath)
	test.That(t, err, test.ShouldBeNil)

	matches := []MatchIndices{{Idx1: 0, Idx2: 0}, {Idx1: 3, Idx2: 3}}
	out, err := DrawMatches(img, img, set, set, matches)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 600)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 200)

	matchesPath := filepath.Join(dir, "matches.png")
	test.That(t, PlotMatches(img, img, set, set, matches, matchesPath), test.ShouldBeNil)
	_, err = os.Stat(matchesPath)
	test.That(t, err, test.ShouldBeNil)

	_, err = DrawMatches(img, img, set, set, []MatchIndices{{Idx1: 4, Idx2: 0}})
	test.That(t, errors.Is(err, utils.ErrInputMismatch), test.ShouldBeTrue)
	_, err = DrawMatches(img, image.NewGray(image.Rect(0, 0, 300, 100)), set, set, matches)
	test.That(t, err, test.ShouldNotBeNil)
}
