// Package hidreport defines the fixed-layout synthetic HID report this
// processor writes back to the driver. The byte layout is a fixed
// external schema owned by the kernel driver, not something this
// module is free to redesign; Encode emits one report's worth of
// bytes per frame.
package hidreport

import (
	"encoding/binary"
	"math"

	"iptsd/internal/touch"
)

// Report IDs the driver dispatches on.
const (
	TouchReportID  byte = 0x40
	StylusReportID byte = 0x10
)

// Field ranges taken from the driver's fixed report schema.
const (
	MaxSingletouch = 32767
	MaxX           = 9600
	MaxY           = 7200
	MaxPressure    = 4096
)

// Finger is one contact slot inside a TouchReport.
type Finger struct {
	Touch     bool
	ContactID uint8
	X, Y      uint16
}

// TouchReport is the touch variant of IPTSHIDReport.
type TouchReport struct {
	ContactNum int
	Fingers    []Finger // indexed by slot; len == configured max_contacts
}

// StylusReport is the stylus variant of IPTSHIDReport.
type StylusReport struct {
	InRange    bool
	Touch      bool
	SideButton bool
	Eraser     bool
	Inverted   bool

	X, Y         uint16
	TipPressure  uint16
	XTilt, YTilt int16
	ScanTime     uint16
}

// Report is a single emitted HID report: exactly one of Touch or
// Stylus is set.
type Report struct {
	ReportID byte
	Touch    *TouchReport
	Stylus   *StylusReport
}

// BuildTouchReport turns a tracked touch slot table into a touch
// report; palm contacts never appear in the emitted set.
func BuildTouchReport(inputs []touch.Input, maxContacts int) Report {
	tr := TouchReport{Fingers: make([]Finger, maxContacts)}

	for _, in := range inputs {
		if !in.Active || in.Palm {
			continue
		}
		if int(in.Index) >= maxContacts {
			continue
		}

		tr.Fingers[in.Index] = Finger{
			Touch:     in.Instability < touch.InstabilityThreshold,
			ContactID: in.Index,
			X:         uint16(clampScale(in.X, MaxSingletouch)),
			Y:         uint16(clampScale(in.Y, MaxSingletouch)),
		}
		tr.ContactNum++
	}

	return Report{ReportID: TouchReportID, Touch: &tr}
}

// BuildSingletouchReport builds a single-contact passthrough report
// for devices without a heatmap sensor.
func BuildSingletouchReport(touchDown bool, x, y uint16) Report {
	tr := TouchReport{Fingers: make([]Finger, 1)}
	tr.Fingers[0] = Finger{Touch: touchDown, ContactID: 0, X: x, Y: y}
	if touchDown {
		tr.ContactNum = 1
	}
	return Report{ReportID: TouchReportID, Touch: &tr}
}

// StylusFields is the shared set of values both the classic and DFT
// stylus devices fill into a StylusReport.
type StylusFields struct {
	InRange, Touch, SideButton, Eraser   bool
	X, Y                                 float64 // normalized [0,1], or raw device units when Raw is true
	Raw                                  bool
	Pressure                             int
	XTiltCentidegrees, YTiltCentidegrees int32
	ScanTime                             uint16
}

// BuildStylusReport assembles a stylus HID report from decoded fields,
// scaling normalized coordinates into the device's fixed ranges.
func BuildStylusReport(f StylusFields) Report {
	var x, y uint16
	if f.Raw {
		x, y = uint16(f.X), uint16(f.Y)
	} else {
		x = uint16(clampScale(f.X, MaxX))
		y = uint16(clampScale(f.Y, MaxY))
	}

	pressure := f.Pressure
	if pressure < 0 {
		pressure = 0
	}
	if pressure > MaxPressure {
		pressure = MaxPressure
	}

	return Report{
		ReportID: StylusReportID,
		Stylus: &StylusReport{
			InRange:     f.InRange,
			Touch:       f.Touch,
			SideButton:  f.SideButton,
			Eraser:      f.Eraser,
			X:           x,
			Y:           y,
			TipPressure: uint16(pressure),
			XTilt:       int16(f.XTiltCentidegrees),
			YTilt:       int16(f.YTiltCentidegrees),
			ScanTime:    f.ScanTime,
		},
	}
}

// Tilt converts the classic stylus report's altitude/azimuth (both in
// hundredths of a degree) into x/y tilt in centidegrees.
func Tilt(altitude, azimuth uint32) (tx, ty int32) {
	if altitude <= 0 {
		return 0, 0
	}

	alt := float64(altitude) / 18000 * math.Pi
	azm := float64(azimuth) / 18000 * math.Pi

	sinAlt, cosAlt := math.Sin(alt), math.Cos(alt)
	sinAzm, cosAzm := math.Sin(azm), math.Cos(azm)

	atanX := math.Atan2(cosAlt, sinAlt*cosAzm)
	atanY := math.Atan2(cosAlt, sinAlt*sinAzm)

	tx = 9000 - int32(atanX*4500/(math.Pi/4))
	ty = int32(atanY*4500/(math.Pi/4)) - 9000

	return tx, ty
}

func clampScale(v float64, max int) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v * float64(max))
}

// Encode serializes a Report into the fixed byte layout the driver
// expects: a one-byte report ID followed by the little-endian fields
// of whichever variant is set. Touch reports encode contact_num
// followed by max_contacts fixed-size finger entries so the driver can
// index by slot directly.
func (r Report) Encode() []byte {
	switch {
	case r.Touch != nil:
		buf := make([]byte, 1+4+len(r.Touch.Fingers)*6)
		buf[0] = r.ReportID
		binary.LittleEndian.PutUint32(buf[1:], uint32(r.Touch.ContactNum))
		off := 5
		for _, f := range r.Touch.Fingers {
			if f.Touch {
				buf[off] = 1
			}
			buf[off+1] = f.ContactID
			binary.LittleEndian.PutUint16(buf[off+2:], f.X)
			binary.LittleEndian.PutUint16(buf[off+4:], f.Y)
			off += 6
		}
		return buf

	case r.Stylus != nil:
		s := r.Stylus
		buf := make([]byte, 1+1+14)
		buf[0] = r.ReportID
		var flags byte
		if s.InRange {
			flags |= 1 << 0
		}
		if s.Touch {
			flags |= 1 << 1
		}
		if s.SideButton {
			flags |= 1 << 2
		}
		if s.Eraser {
			flags |= 1 << 3
		}
		if s.Inverted {
			flags |= 1 << 4
		}
		buf[1] = flags
		binary.LittleEndian.PutUint16(buf[2:], s.X)
		binary.LittleEndian.PutUint16(buf[4:], s.Y)
		binary.LittleEndian.PutUint16(buf[6:], s.TipPressure)
		binary.LittleEndian.PutUint16(buf[8:], uint16(s.XTilt))
		binary.LittleEndian.PutUint16(buf[10:], uint16(s.YTilt))
		binary.LittleEndian.PutUint16(buf[12:], s.ScanTime)
		return buf
	}

	return []byte{r.ReportID}
}
