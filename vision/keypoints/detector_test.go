package keypoints

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/fastvo/logging"
	"go.viam.com/fastvo/rimage"
	"go.viam.com/fastvo/testutils"
	"go.viam.com/fastvo/utils"
)

func TestDetectorStates(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewFastDetector(&DetectorConfig{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	det, err := NewFastDetector(nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, Idle)
	test.That(t, det.State().String(), test.ShouldEqual, "idle")

	img := createTestImage()
	set, err := det.Extract(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Len(), test.ShouldEqual, 4)
	test.That(t, det.State(), test.ShouldEqual, Idle)

	_, err = det.Match(set, set, 1)
	test.That(t, errors.Is(err, ErrFramesNotSet), test.ShouldBeTrue)

	err = det.SetFrame(img, image.NewGray(image.Rect(0, 0, 300, 201)))
	test.That(t, errors.Is(err, utils.ErrInputMismatch), test.ShouldBeTrue)
	test.That(t, det.State(), test.ShouldEqual, Idle)

	test.That(t, det.SetFrame(img, img), test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, FramesSet)
	_, err = det.Match(set, set, 1)
	test.That(t, errors.Is(err, ErrKeyPointsNotExtracted), test.ShouldBeTrue)
	test.That(t, det.State(), test.ShouldEqual, FramesSet)
	set, err = det.Extract(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, Extracted)

	other := NewKeyPointSet(nil, 100, 100, 32)
	_, err = det.Match(set, other, 1)
	test.That(t, errors.Is(err, utils.ErrInputMismatch), test.ShouldBeTrue)

	// four corners are too few to estimate epipolar geometry
	_, err = det.Match(set, set, 1)
	test.That(t, errors.Is(err, utils.ErrInsufficientData), test.ShouldBeTrue)
	test.That(t, det.State(), test.ShouldEqual, Matched)
	test.That(t, det.Fundamental(), test.ShouldBeNil)

	// extracting again does not move the detector back
	_, err = det.Extract(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, Matched)

	// a new pair of frames needs its own extraction
	test.That(t, det.SetFrame(img, img), test.ShouldBeNil)
	_, err = det.Match(set, set, 1)
	test.That(t, errors.Is(err, ErrKeyPointsNotExtracted), test.ShouldBeTrue)
}

func TestMatchIdenticalImages(t *testing.T) {
	logger := logging.NewTestLogger(t)
	plane := testutils.NewTexturedPlane(7, 640, 480, 250)
	img := plane.Render(640, 480, 0, 0)

	det, err := NewFastDetector(DefaultDetectorConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.SetFrame(img, img), test.ShouldBeNil)
	set, err := det.Extract(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, set.Len(), test.ShouldBeGreaterThan, 100)

	matches, err := det.Match(set, set, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, Filtered)
	_, err = det.Extract(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.State(), test.ShouldEqual, Filtered)
	test.That(t, float64(len(matches)), test.ShouldBeGreaterThanOrEqualTo, 0.8*float64(set.Len()))
	for _, m := range matches {
		test.That(t, m.Idx2, test.ShouldEqual, m.Idx1)
		test.That(t, m.TrackingError, test.ShouldBeLessThan, 0.1)
	}
	test.That(t, det.Fundamental(), test.ShouldNotBeNil)
}

func TestMatchShiftedImages(t *testing.T) {
	logger := logging.NewTestLogger(t)
	plane := testutils.NewTexturedPlane(11, 840, 480, 320)
	img1 := plane.Render(640, 480, 0, 0)
	img2 := plane.RenderRGBA(640, 480, 40, 0)

	det, err := NewFastDetector(DefaultDetectorConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.SetFrame(img1, img2), test.ShouldBeNil)
	set1, err := det.Extract(img1)
	test.That(t, err, test.ShouldBeNil)
	set2, err := det.Extract(img2)
	test.That(t, err, test.ShouldBeNil)

	matches, err := det.Match(set1, set2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(matches), test.ShouldBeGreaterThan, 50)

	pts, err := MatchedPoints(set1, set2, matches)
	test.That(t, err, test.ShouldBeNil)
	correct := 0
	for _, p := range pts {
		if p.P1.Sub(p.P2).Sub(r2.Point{X: 40}).Norm() < 1e-9 {
			correct++
		}
	}
	test.That(t, float64(correct), test.ShouldBeGreaterThanOrEqualTo, 0.95*float64(len(pts)))
}

func TestGlobalTranslation(t *testing.T) {
	plane := testutils.NewTexturedPlane(5, 400, 300, 120)
	img1 := rimage.MakeFloatGray(plane.Render(160, 120, 20, 20))
	img2 := rimage.MakeFloatGray(plane.Render(160, 120, 25, 17))
	test.That(t, GlobalTranslation(img1, img2, 8), test.ShouldResemble, r2.Point{X: -5, Y: 3})
	test.That(t, GlobalTranslation(img1, img1, 8), test.ShouldResemble, r2.Point{})
	test.That(t, GlobalTranslation(img1, img2, 0), test.ShouldResemble, r2.Point{})
}
