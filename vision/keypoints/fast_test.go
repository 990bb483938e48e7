package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	// create test image
	rectImage := createTestImage()
	// testing cross neighborhood
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	test.That(t, len(vals), test.ShouldEqual, 4)
	test.That(t, vals, test.ShouldResemble, []float64{255, 255, 0, 0})
	// testing circle neighborhood
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	for i := 0; i < 4; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
	for i := 4; i < 9; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 255)
	}
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 3, false},
		// runs wrap around the end of the circle
		{[]float64{1, 1, 0, 0, 0, 1, 1}, 4, true},
		{[]float64{1, 1, 1}, 0, false},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, 4},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, 0},
	}
	for _, tst := range tests {
		test.That(t, sumOfPositiveValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestSumNegativeValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, -2},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, -6},
	}
	for _, tst := range tests {
		test.That(t, sumOfNegativeValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestGetBrighterValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{0, 0, 0, 0, 1, 1}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getBrighterValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestGetDarkerValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{1, 0, 1, 1, 0, 0}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getDarkerValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestComputeFAST(t *testing.T) {
	cfg := DefaultFASTConfig()
	kps := ComputeFAST(createTestImage(), cfg)
	test.That(t, len(kps), test.ShouldEqual, 4)
	test.That(t, kps[0].Point, test.ShouldResemble, image.Point{50, 30})
	test.That(t, kps[1].Point, test.ShouldResemble, image.Point{99, 30})
	test.That(t, kps[2].Point, test.ShouldResemble, image.Point{50, 149})
	test.That(t, kps[3].Point, test.ShouldResemble, image.Point{99, 149})
	// 11 darker circle pixels, each 255 - threshold below the center
	for _, kp := range kps {
		test.That(t, kp.Response, test.ShouldEqual, 11*float64(255-cfg.Threshold))
	}

	// no corners on a flat image or below the threshold
	flat := image.NewGray(image.Rect(0, 0, 50, 50))
	test.That(t, ComputeFAST(flat, cfg), test.ShouldBeEmpty)
	faint := image.NewGray(image.Rect(0, 0, 50, 50))
	draw.Draw(faint, image.Rect(20, 20, 40, 40), &image.Uniform{color.Gray{10}}, image.Point{}, draw.Src)
	test.That(t, ComputeFAST(faint, cfg), test.ShouldBeEmpty)

	// without suppression the neighbors of the corners show up too
	noNMS := DefaultFASTConfig()
	noNMS.NMSWinSize = 1
	test.That(t, len(ComputeFAST(createTestImage(), noNMS)), test.ShouldBeGreaterThan, 4)

	// right angle corners only have 11 contiguous darker pixels
	fast12 := DefaultFASTConfig()
	fast12.NMatchesCircle = 12
	test.That(t, ComputeFAST(createTestImage(), fast12), test.ShouldBeEmpty)
}

func TestKeypointsOrientation(t *testing.T) {
	img := createTestImage()
	cfg := DefaultDetectorConfig()
	cfg.FAST.Oriented = true
	set := ExtractKeyPoints(img, cfg)
	test.That(t, set.Len(), test.ShouldEqual, 4)
	// the white rectangle is down and to the right of its top left corner
	test.That(t, set.Points[0].Angle, test.ShouldAlmostEqual, math.Pi/4, 0.05)
	// and up and to the left of its bottom right corner
	test.That(t, set.Points[3].Angle, test.ShouldAlmostEqual, -3*math.Pi/4, 0.05)

	cfg.FAST.Oriented = false
	for _, kp := range ExtractKeyPoints(img, cfg).Points {
		test.That(t, kp.Angle, test.ShouldEqual, 0)
	}
}
