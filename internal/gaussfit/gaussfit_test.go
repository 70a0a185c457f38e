package gaussfit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"iptsd/internal/numeric"
)

func synthesize(mean numeric.Vec2[float64], cov numeric.Mat2s[float64], amp float64) []Sample {
	inv, ok := cov.Inverse()
	if !ok {
		panic("singular test covariance")
	}
	var samples []Sample
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			x := mean.X + float64(dx)
			y := mean.Y + float64(dy)
			px := x - mean.X
			py := y - mean.Y
			maha := px*px*inv.XX + 2*px*py*inv.XY + py*py*inv.YY
			z := amp * math.Exp(-0.5*maha)
			samples = append(samples, Sample{X: x, Y: y, Value: z})
		}
	}
	return samples
}

func TestFitRecoversKnownGaussian(t *testing.T) {
	mean := numeric.Vec2[float64]{X: 12, Y: 8}
	cov := numeric.Mat2s[float64]{XX: 4, XY: 0.5, YY: 3}
	amp := 180.0

	samples := synthesize(mean, cov, amp)
	res, ok := Fit(samples, mean)
	require.True(t, ok)

	require.InDelta(t, mean.X, res.Mean.X, 1e-2)
	require.InDelta(t, mean.Y, res.Mean.Y, 1e-2)
	require.InDelta(t, cov.XX, res.Cov.XX, 1e-2)
	require.InDelta(t, cov.YY, res.Cov.YY, 1e-2)
	require.InDelta(t, amp, res.Scale, amp*1e-3+1e-3)
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	_, ok := Fit([]Sample{{X: 0, Y: 0, Value: 1}}, numeric.Vec2[float64]{})
	require.False(t, ok)
}
