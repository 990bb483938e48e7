package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// FloatGray is a single channel image with float intensities in [0, 255], used for sub-pixel
// sampling and gradient computations.
type FloatGray struct {
	Width  int
	Height int
	Pix    []float64
}

// NewFloatGray returns an all black image of the given size.
func NewFloatGray(width, height int) *FloatGray {
	return &FloatGray{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// MakeFloatGray converts any image to luminance.
func MakeFloatGray(img image.Image) *FloatGray {
	if gray, ok := img.(*image.Gray); ok {
		return floatGrayFromGray(gray)
	}
	return floatGrayFromNRGBA(imaging.Grayscale(img))
}

// MakeGray converts any image to an *image.Gray.
func MakeGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	return MakeFloatGray(img).ToGray()
}

func floatGrayFromGray(gray *image.Gray) *FloatGray {
	bounds := gray.Bounds()
	out := NewFloatGray(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			out.Pix[y*out.Width+x] = float64(gray.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y)
		}
	}
	return out
}

func floatGrayFromNRGBA(img *image.NRGBA) *FloatGray {
	bounds := img.Bounds()
	out := NewFloatGray(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < out.Width; x++ {
			// imaging.Grayscale writes the luminance to all three channels
			out.Pix[y*out.Width+x] = float64(row[4*x])
		}
	}
	return out
}

// ToGray converts back to an 8 bit gray image, rounding and clamping.
func (g *FloatGray) ToGray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for i, v := range g.Pix {
		out.Pix[i] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
	return out
}

// In returns whether the integer pixel is inside the image.
func (g *FloatGray) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// At returns the intensity at the pixel, clamping coordinates to the image borders.
func (g *FloatGray) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.Width {
		x = g.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.Height {
		y = g.Height - 1
	}
	return g.Pix[y*g.Width+x]
}

// Bilinear samples the image at a sub-pixel location. It returns false when the location is
// outside the area covered by pixel centers.
func (g *FloatGray) Bilinear(x, y float64) (float64, bool) {
	if x < 0 || y < 0 || x > float64(g.Width-1) || y > float64(g.Height-1) {
		return 0, false
	}
	x0, y0 := int(x), int(y)
	fx, fy := x-float64(x0), y-float64(y0)
	v00 := g.At(x0, y0)
	v10 := g.At(x0+1, y0)
	v01 := g.At(x0, y0+1)
	v11 := g.At(x0+1, y0+1)
	top := v00 + fx*(v10-v00)
	bottom := v01 + fx*(v11-v01)
	return top + fy*(bottom-top), true
}

// Gradients returns the horizontal and vertical derivatives of the image computed with the
// normalized Scharr operator.
func (g *FloatGray) Gradients() (*FloatGray, *FloatGray) {
	kx, ky := GetScharrX(), GetScharrY()
	return g.Convolve(&kx), g.Convolve(&ky)
}

// Bounds returns the image rectangle.
func (g *FloatGray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}
