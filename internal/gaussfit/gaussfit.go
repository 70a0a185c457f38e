// Package gaussfit fits a 2D Gaussian f(x,y) = A*exp(-1/2 (p-mu)^T Sigma^-1
// (p-mu)) to a windowed patch of a heatmap via iteratively reweighted
// least squares on the log-linearized form.
package gaussfit

import (
	"math"

	"iptsd/internal/numeric"
)

const (
	maxIterations = 25
	convergeEps   = 1e-6
	valueFloor    = 1e-3
)

// Result holds the fitted Gaussian parameters.
type Result struct {
	Mean  numeric.Vec2[float64]
	Cov   numeric.Mat2s[float64]
	Scale float64
}

// Sample is one (x, y, value) observation inside the fit window.
type Sample struct {
	X, Y, Value float64
}

// Fit runs IRLS on the log-linearized Gaussian model using an initial
// mean guess (typically the window's local maximum). It returns false
// when the covariance estimate fails to invert (|det| <= epsilon) or
// iteration does not produce a usable amplitude.
func Fit(samples []Sample, initMean numeric.Vec2[float64]) (Result, bool) {
	if len(samples) < 6 {
		return Result{}, false
	}

	// Parameter vector: [a0, bx, by, cxx, cxy, cyy] for the
	// log-linearized model log(z) = a0 + bx*x + by*y + cxx*x^2 +
	// 2*cxy*x*y + cyy*y^2, all relative to initMean so the quadratic
	// term stays well-scaled.
	params := [6]float64{0, 0, 0, -0.5, 0, -0.5}

	for iter := 0; iter < maxIterations; iter++ {
		var ata [6][6]float64
		var atb [6]float64

		for _, s := range samples {
			z := s.Value
			if z < valueFloor {
				z = valueFloor
			}
			logz := math.Log(z)

			dx := s.X - initMean.X
			dy := s.Y - initMean.Y
			row := [6]float64{1, dx, dy, dx * dx, 2 * dx * dy, dy * dy}

			// IRLS weight: favor high-intensity samples so the fit is
			// dominated by the contact body, not the noisy tail.
			w := z * z

			for i := 0; i < 6; i++ {
				atb[i] += w * row[i] * logz
				for j := 0; j < 6; j++ {
					ata[i][j] += w * row[i] * row[j]
				}
			}
		}

		next, ok := solve6(ata, atb)
		if !ok {
			return Result{}, false
		}

		var delta float64
		for i := range params {
			d := next[i] - params[i]
			delta += d * d
		}
		params = next

		if delta < convergeEps*convergeEps {
			break
		}
	}

	a0, bx, by, cxx, cxy, cyy := params[0], params[1], params[2], params[3], params[4], params[5]

	// Recover Sigma^-1 = -2 * [[cxx, cxy],[cxy, cyy]]; the mean offset
	// solves Sigma^-1 * delta = [bx, by].
	precision := numeric.Mat2s[float64]{XX: -2 * cxx, XY: -2 * cxy, YY: -2 * cyy}
	cov, ok := precision.Inverse()
	if !ok {
		return Result{}, false
	}

	// delta = Sigma * [bx, by]
	dx := cov.XX*bx + cov.XY*by
	dy := cov.XY*bx + cov.YY*by

	mean := numeric.Vec2[float64]{X: initMean.X + dx, Y: initMean.Y + dy}

	// Peak log-value at the fitted mean: a0 + 1/2 * [bx,by] . delta
	logPeak := a0 + 0.5*(bx*dx+by*dy)
	scale := math.Exp(logPeak)
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return Result{}, false
	}

	eig := cov.Eigen()
	if eig.Val1 <= 0 || eig.Val2 <= 0 {
		return Result{}, false
	}

	return Result{Mean: mean, Cov: cov, Scale: scale}, true
}

// solve6 solves the 6x6 linear system A x = b via Gaussian elimination
// with partial pivoting, returning false on a singular system.
func solve6(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	const n = 6
	var m [n][n + 1]float64
	for i := 0; i < n; i++ {
		copy(m[i][:n], a[i][:])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(m[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-18 {
			return [6]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	var x [6]float64
	for i := 0; i < n; i++ {
		x[i] = m[i][n] / m[i][i]
	}
	return x, true
}
