package rimage

// Kernel is a correlation matrix applied with its center on each pixel.
type Kernel struct {
	Content [][]float64
	Width   int
	Height  int
}

// At returns the kernel weight at column x and row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// GetScharrX returns the normalized Scharr kernel of the horizontal derivative.
func GetScharrX() Kernel {
	return Kernel{[][]float64{
		{-3.0 / 32, 0, 3.0 / 32},
		{-10.0 / 32, 0, 10.0 / 32},
		{-3.0 / 32, 0, 3.0 / 32},
	},
		3,
		3,
	}
}

// GetScharrY returns the normalized Scharr kernel of the vertical derivative.
func GetScharrY() Kernel {
	return Kernel{[][]float64{
		{-3.0 / 32, -10.0 / 32, -3.0 / 32},
		{0, 0, 0},
		{3.0 / 32, 10.0 / 32, 3.0 / 32},
	},
		3,
		3,
	}
}

// Convolve applies the kernel to the image. Pixels outside the image repeat the nearest border
// pixel. There is no clamping of the result.
func (g *FloatGray) Convolve(kernel *Kernel) *FloatGray {
	out := NewFloatGray(g.Width, g.Height)
	ax, ay := kernel.Width/2, kernel.Height/2
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			sum := 0.
			for ky := 0; ky < kernel.Height; ky++ {
				for kx := 0; kx < kernel.Width; kx++ {
					if w := kernel.At(kx, ky); w != 0 {
						sum += w * g.At(x+kx-ax, y+ky-ay)
					}
				}
			}
			out.Pix[y*g.Width+x] = sum
		}
	}
	return out
}
