// Package stylus implements the DFT stylus decoder: per-row discrete
// Fourier transform bin interpolation for pen position, button state
// and pressure, driven by a small proximity/rubber state machine.
package stylus

import (
	"math"
)

// Tuning constants for the decoder. PressureRows and MaxPressure
// match the linux-surface IPTS driver constants.
const (
	NumComponents  = 9
	PositionMinAmp = 50
	PositionMinMag = 2000
	ButtonMinMag   = 1000
	FreqMinMag     = 10000
	PositionExp    = -0.7

	PressureRows = 6
	MaxPressure  = 4096
)

// WindowRow is one DFT window row: a fixed bank of complex samples
// plus the first-bin offset and aggregate magnitude the sensor reports
// for the row.
type WindowRow struct {
	Real, Imag [NumComponents]int32
	First      int32
	Magnitude  uint32
}

// EventType selects which kind of DFT frame was received.
type EventType int

const (
	EventPosition EventType = iota
	EventButton
	EventPressure
)

// Frame is one StylusDFTData frame as delivered by the transport.
type Frame struct {
	Type    EventType
	NumCols int
	NumRows int
	DFTX    []WindowRow
	DFTY    []WindowRow
}

// Input is the shared stylus state the decoder maintains and emits.
type Input struct {
	Proximity bool
	Contact   bool
	Button    bool
	Rubber    bool

	X, Y     float64
	Pressure int
}

// Config carries the axis-inversion knobs read from the device
// configuration.
type Config struct {
	InvertX, InvertY bool
}

// Decoder owns the DFT stylus state machine for one stylus channel.
type Decoder struct {
	conf Config

	input     Input
	rubber    bool
	setRubber bool
	real      int32
	imag      int32
}

// New constructs a decoder for the given configuration.
func New(conf Config) *Decoder {
	return &Decoder{conf: conf}
}

// stopStylus clears proximity and returns the report that signals it,
// or a zero Input and false if the stylus was already out of range.
func (d *Decoder) stopStylus() (Input, bool) {
	if d.input.Proximity {
		d.input.Proximity = false
		d.input.Contact = false
		d.input.Button = false
		d.input.Rubber = false
		d.input.Pressure = 0
		return d.input, true
	}
	return Input{}, false
}

// Process decodes one DFT frame, returning an updated Input snapshot
// when this frame produces a reportable event. Not every frame
// produces output: button and pressure frames may only update internal
// state.
func (d *Decoder) Process(f Frame) (Input, bool) {
	if d.setRubber {
		d.input.Rubber = d.rubber
		d.setRubber = false
	}

	switch f.Type {
	case EventPosition:
		return d.processPosition(f)
	case EventButton:
		return d.processButton(f)
	case EventPressure:
		return d.processPressure(f)
	}
	return Input{}, false
}

func (d *Decoder) processPosition(f Frame) (Input, bool) {
	if f.NumCols == 0 || f.NumRows == 0 || len(f.DFTX) == 0 || len(f.DFTY) == 0 {
		return d.stopStylus()
	}
	if f.DFTX[0].Magnitude <= PositionMinMag || f.DFTY[0].Magnitude <= PositionMinMag {
		return d.stopStylus()
	}

	mid := NumComponents / 2
	d.real = f.DFTX[0].Real[mid] + f.DFTY[0].Real[mid]
	d.imag = f.DFTX[0].Imag[mid] + f.DFTY[0].Imag[mid]

	x := interpolatePosition(f.DFTX[0])
	y := interpolatePosition(f.DFTY[0])

	if math.IsNaN(x) || math.IsNaN(y) {
		return d.stopStylus()
	}

	d.input.Proximity = true
	x /= float64(f.NumCols - 1)
	y /= float64(f.NumRows - 1)
	if d.conf.InvertX {
		x = 1 - x
	}
	if d.conf.InvertY {
		y = 1 - y
	}
	d.input.X = clamp01(x)
	d.input.Y = clamp01(y)
	return d.input, true
}

func (d *Decoder) processButton(f Frame) (Input, bool) {
	if len(f.DFTX) == 0 || len(f.DFTY) == 0 {
		d.input.Button = false
		d.rubber = false
	} else if f.DFTX[0].Magnitude > ButtonMinMag && f.DFTY[0].Magnitude > ButtonMinMag {
		mid := NumComponents / 2
		btn := d.real*(f.DFTX[0].Real[mid]+f.DFTY[0].Real[mid]) +
			d.imag*(f.DFTX[0].Imag[mid]+f.DFTY[0].Imag[mid])
		d.input.Button = btn < 0
		d.rubber = btn > 0
	} else {
		d.input.Button = false
		d.rubber = false
	}

	// Toggling rubber while proximity is true confuses some hosts, so
	// a proximity-off report is emitted first; rubber takes effect on
	// the following position frame.
	if d.rubber != d.input.Rubber {
		d.setRubber = true
		return d.stopStylus()
	}
	return Input{}, false
}

func (d *Decoder) processPressure(f Frame) (Input, bool) {
	p := interpolateFrequency(f.DFTX, f.DFTY, PressureRows)
	p = (PressureRows - 1 - p) * MaxPressure / (PressureRows - 1)

	if p > 1 && !math.IsNaN(p) {
		d.input.Contact = true
		pressure := int(p)
		if pressure > MaxPressure {
			pressure = MaxPressure
		}
		d.input.Pressure = pressure
	} else {
		d.input.Contact = false
		d.input.Pressure = 0
	}
	return Input{}, false
}

// interpolatePosition fits a parabola to the phase-aligned amplitudes
// of the DFT bins neighboring the sensor's dominant component and
// returns the sub-bin position, or NaN when the signal is too weak.
func interpolatePosition(r WindowRow) float64 {
	maxi := NumComponents / 2
	mind, maxd := -0.5, 0.5

	switch {
	case r.Real[maxi-1] == 0 && r.Imag[maxi-1] == 0:
		maxi++
		mind = -1
	case r.Real[maxi+1] == 0 && r.Imag[maxi+1] == 0:
		maxi--
		maxd = 1
	}

	amp := math.Hypot(float64(r.Real[maxi]), float64(r.Imag[maxi]))
	if amp < PositionMinAmp {
		return math.NaN()
	}
	sin := float64(r.Real[maxi]) / amp
	cos := float64(r.Imag[maxi]) / amp

	x := [3]float64{
		sin*float64(r.Real[maxi-1]) + cos*float64(r.Imag[maxi-1]),
		amp,
		sin*float64(r.Real[maxi+1]) + cos*float64(r.Imag[maxi+1]),
	}
	for i := range x {
		x[i] = math.Pow(x[i], PositionExp)
	}

	if x[0]+x[2] <= 2*x[1] {
		return math.NaN()
	}

	d := (x[0] - x[2]) / (2 * (x[0] - 2*x[1] + x[2]))
	d = clamp(d, mind, maxd)

	return float64(r.First) + float64(maxi) + d
}

// interpolateFrequency estimates the dominant row index across n rows
// using Eric Jacobsen's modified quadratic estimator.
func interpolateFrequency(x, y []WindowRow, n int) float64 {
	if n < 3 || len(x) < n || len(y) < n {
		return math.NaN()
	}

	maxi, maxm := 0, uint32(0)
	for i := 0; i < n; i++ {
		m := x[i].Magnitude + y[i].Magnitude
		if m > maxm {
			maxm = m
			maxi = i
		}
	}
	if maxm < 2*FreqMinMag {
		return math.NaN()
	}

	mind, maxd := -0.5, 0.5
	switch {
	case maxi < 1:
		maxi = 1
		mind = -1
	case maxi > n-2:
		maxi = n - 2
		maxd = 1
	}

	var real, imag [3]int64
	for i := 0; i < 3; i++ {
		for j := 0; j < NumComponents; j++ {
			real[i] += int64(x[maxi+i-1].Real[j]) + int64(y[maxi+i-1].Real[j])
			imag[i] += int64(x[maxi+i-1].Imag[j]) + int64(y[maxi+i-1].Imag[j])
		}
	}

	ra, rb := real[0]-real[2], 2*real[1]-real[0]-real[2]
	ia, ib := imag[0]-imag[2], 2*imag[1]-imag[0]-imag[2]
	denom := float64(rb*rb + ib*ib)
	if denom == 0 {
		return math.NaN()
	}
	d := float64(ra*rb+ia*ib) / denom
	d = clamp(d, mind, maxd)

	return float64(maxi) + d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
