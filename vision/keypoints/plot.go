package keypoints

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// DrawKeypoints returns a copy of img with the keypoints drawn on it.
func DrawKeypoints(img image.Image, set *KeyPointSet) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, kp := range set.Points {
		dc.DrawCircle(float64(kp.Point.X), float64(kp.Point.Y), 3.0)
		dc.Fill()
	}
	return dc.Image()
}

// PlotKeypoints plots keypoints on image and saves it as a png.
func PlotKeypoints(img image.Image, set *KeyPointSet, outName string) error {
	return gg.SavePNG(outName, DrawKeypoints(img, set))
}

// DrawMatches draws the two images side by side with a line joining each matched pair. Lines are
// colored by match index around the hue circle.
func DrawMatches(img1, img2 image.Image, set1, set2 *KeyPointSet, matches []MatchIndices) (image.Image, error) {
	pts, err := MatchedPoints(set1, set2, matches)
	if err != nil {
		return nil, err
	}
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Dy() != b2.Dy() {
		return nil, errors.Errorf("images must have the same height to be drawn side by side, got %d and %d", b1.Dy(), b2.Dy())
	}
	offset := float64(b1.Dx())
	dc := gg.NewContext(b1.Dx()+b2.Dx(), b1.Dy())
	dc.DrawImage(img1, -b1.Min.X, -b1.Min.Y)
	dc.DrawImage(img2, b1.Dx()-b2.Min.X, -b2.Min.Y)
	dc.SetLineWidth(1)
	for i, m := range pts {
		hue := 360 * float64(i) / float64(len(pts))
		dc.SetColor(colorful.Hsv(hue, 0.8, 0.95))
		dc.DrawCircle(m.P1.X, m.P1.Y, 2)
		dc.DrawCircle(m.P2.X+offset, m.P2.Y, 2)
		dc.Fill()
		dc.DrawLine(m.P1.X, m.P1.Y, m.P2.X+offset, m.P2.Y)
		dc.Stroke()
	}
	return dc.Image(), nil
}

// PlotMatches draws the matches between two images and saves the result as a png.
func PlotMatches(img1, img2 image.Image, set1, set2 *KeyPointSet, matches []MatchIndices, outName string) error {
	out, err := DrawMatches(img1, img2, set1, set2, matches)
	if err != nil {
		return err
	}
	return gg.SavePNG(outName, out)
}
