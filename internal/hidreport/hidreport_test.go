package hidreport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"iptsd/internal/touch"
)

func TestBuildTouchReportExcludesPalms(t *testing.T) {
	inputs := []touch.Input{
		{X: 0.5, Y: 0.5, Index: 0, Active: true},
		{X: 0.2, Y: 0.8, Index: 1, Active: true, Palm: true},
		{Index: 2},
	}

	r := BuildTouchReport(inputs, 4)
	require.Equal(t, 1, r.Touch.ContactNum)
	require.True(t, r.Touch.Fingers[0].Touch)
	require.False(t, r.Touch.Fingers[1].Touch)
}

func TestBuildTouchReportScalesToSingletouchRange(t *testing.T) {
	inputs := []touch.Input{{X: 1, Y: 0, Index: 0, Active: true}}
	r := BuildTouchReport(inputs, 1)
	require.EqualValues(t, MaxSingletouch, r.Touch.Fingers[0].X)
	require.EqualValues(t, 0, r.Touch.Fingers[0].Y)
}

func TestBuildStylusReportClampsPressure(t *testing.T) {
	r := BuildStylusReport(StylusFields{InRange: true, Touch: true, X: 0.5, Y: 0.5, Pressure: MaxPressure * 2})
	require.EqualValues(t, MaxPressure, r.Stylus.TipPressure)

	r = BuildStylusReport(StylusFields{X: 0.5, Y: 0.5, Pressure: -5})
	require.EqualValues(t, 0, r.Stylus.TipPressure)
}

func TestEncodeTouchReportLayout(t *testing.T) {
	inputs := []touch.Input{{X: 0, Y: 0, Index: 0, Active: true}}
	buf := BuildTouchReport(inputs, 2).Encode()

	require.Equal(t, TouchReportID, buf[0])
	require.Equal(t, 1+4+2*6, len(buf))
	require.EqualValues(t, 1, buf[1]) // contact_num, little-endian
	require.EqualValues(t, 1, buf[5]) // slot 0 touch flag
}

func TestEncodeStylusReportLayout(t *testing.T) {
	buf := BuildStylusReport(StylusFields{InRange: true, Touch: true, Eraser: true, X: 0.5, Y: 0.5}).Encode()

	require.Equal(t, StylusReportID, buf[0])
	require.Equal(t, 16, len(buf))
	require.EqualValues(t, 0b1011, buf[1]) // in_range | touch | eraser
}

func TestTilt(t *testing.T) {
	tx, ty := Tilt(0, 0)
	require.EqualValues(t, 0, tx)
	require.EqualValues(t, 0, ty)

	// 45 degree altitude along azimuth 0: full x component, no y.
	tx, ty = Tilt(4500, 0)
	require.InDelta(t, 4500, float64(tx), 1)
	require.InDelta(t, 0, float64(ty), 1)
}
