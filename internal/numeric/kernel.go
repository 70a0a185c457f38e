package numeric

import "math"

// Kernel5x5 is a fixed 5x5 convolution kernel with its normalization
// pre-divided in.
type Kernel5x5 [5][5]float32

// GaussianKernel5x5 builds a normalized 5x5 Gaussian kernel for the
// given standard deviation. The three fixed kernels the advanced
// processor needs (preprocess, structure-tensor smoothing, Hessian
// smoothing) are distinct instances at different sigmas.
func GaussianKernel5x5(sigma float32) Kernel5x5 {
	var k Kernel5x5
	var sum float32
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			v := gauss2D(float32(dx), float32(dy), sigma)
			k[dy+2][dx+2] = v
			sum += v
		}
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			k[y][x] /= sum
		}
	}
	return k
}

func gauss2D(x, y, sigma float32) float32 {
	v := -(x*x + y*y) / (2 * sigma * sigma)
	return float32(math.Exp(float64(v)))
}

// Convolve5x5 applies kernel k to src, writing into dst. Border pixels
// are handled by clamping the sample coordinate to the image edge
// (replicate-border), which keeps the preprocessing step allocation-free
// and avoids a separate padded buffer.
func Convolve5x5(dst, src Image[float32], k Kernel5x5) {
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			var acc float32
			for ky := -2; ky <= 2; ky++ {
				sy := clampInt(y+ky, 0, src.H-1)
				for kx := -2; kx <= 2; kx++ {
					sx := clampInt(x+kx, 0, src.W-1)
					acc += src.At(sx, sy) * k[ky+2][kx+2]
				}
			}
			dst.Set(x, y, acc)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
