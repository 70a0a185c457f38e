// Package devices wires the fitted-contact and decoded-stylus pipelines
// into per-device state: the touch slot table, the classic stylus list,
// and the single shared DFT stylus, each producing the HID reports
// sent to the driver. Cones live in a flat slice of *cone.Cone values
// owned here; the touch manager borrows them by reference.
package devices

import (
	"math"
	"time"

	"iptsd/internal/cone"
	"iptsd/internal/config"
	"iptsd/internal/contacts"
	"iptsd/internal/contacts/advanced"
	"iptsd/internal/contacts/basic"
	"iptsd/internal/hidreport"
	"iptsd/internal/numeric"
	"iptsd/internal/stylus"
	"iptsd/internal/touch"
)

// DFTStylusSerial is the sentinel serial reserved for the
// always-present DFT stylus channel.
const DFTStylusSerial = 0xffffffff

// HeatmapFrame is the upstream Heatmap event's data, already stripped
// of the wire envelope by the transport parser.
type HeatmapFrame struct {
	Width, Height int
	Data          []uint8 // row-major, len == Width*Height
}

// SingletouchFrame is the upstream SingletouchData event.
type SingletouchFrame struct {
	Touch bool
	X, Y  uint16
}

// ClassicStylusFrame is one upstream StylusData event (report v1/v2).
type ClassicStylusFrame struct {
	Serial                             uint32
	Proximity, Contact, Button, Rubber bool
	X, Y, Pressure                     uint16
	Altitude, Azimuth                  uint32
	Timestamp                          uint16
}

// TouchDevice owns the touch manager and the selected contact
// processor for the heatmap path.
type TouchDevice struct {
	conf          config.Config
	proc          contacts.Processor
	manager       *touch.Manager
	disableOnPalm bool
	maxContacts   int
}

// NewTouchDevice selects the basic or advanced processor per
// Touch.Processing and constructs the touch manager with the shared
// cone list.
func NewTouchDevice(conf *config.Config, maxContacts int) *TouchDevice {
	cc := contacts.Config{
		Size:          numeric.Index2{},
		BasicPressure: conf.Basic.Pressure,
	}

	var proc contacts.Processor
	if conf.ProcessingMode() == config.ProcessingBasic {
		proc = basic.New(cc)
	} else {
		proc = advanced.New(cc, advanced.DefaultParams())
	}

	mgr := touch.New(touch.Config{
		MaxContacts:     uint8(maxContacts),
		InvertX:         conf.General.InvertX,
		InvertY:         conf.General.InvertY,
		StylusCone:      conf.Stylus.Cone,
		ConeAngle:       conf.Cone.Angle,
		ConeDistance:    conf.Cone.Distance,
		TouchStability:  conf.Touch.Stability,
		StabilityThresh: conf.Stability.Threshold,
	})

	return &TouchDevice{
		conf:          *conf,
		proc:          proc,
		manager:       mgr,
		disableOnPalm: conf.Touch.DisableOnPalm,
		maxContacts:   maxContacts,
	}
}

// AddCone registers a palm-rejection cone the manager should consult.
func (d *TouchDevice) AddCone(c *cone.Cone) { d.manager.AddCone(c) }

// ProcessSingletouch builds the passthrough single-contact report for
// devices that only expose the legacy singletouch HID path.
func (d *TouchDevice) ProcessSingletouch(f SingletouchFrame) hidreport.Report {
	return hidreport.BuildSingletouchReport(f.Touch, f.X, f.Y)
}

// ProcessHeatmap runs one heatmap frame through the selected contact
// processor and the touch manager, returning the HID report and
// whether it should be sent at all (false when Touch.DisableOnPalm
// vetoes the whole frame).
func (d *TouchDevice) ProcessHeatmap(now time.Time, f HeatmapFrame) (hidreport.Report, bool) {
	hm := d.proc.Heatmap()
	hm.Resize(f.Width, f.Height)
	for i, v := range f.Data {
		if i >= len(hm.Data) {
			break
		}
		hm.Data[i] = float32(v) / 255
	}

	points := d.proc.Process()

	// The processors report means in heatmap pixels; the touch manager
	// works in [0, 1] coordinates.
	for i := range points {
		points[i].Mean.X /= float32(f.Width)
		points[i].Mean.Y /= float32(f.Height)
	}

	diagonal := diagonalOf(f.Width, f.Height)
	inputs := d.manager.Process(now, touch.Frame{Diagonal: diagonal}, points)

	if d.disableOnPalm {
		for _, in := range inputs {
			if in.Palm {
				return hidreport.Report{}, false
			}
		}
	}

	return hidreport.BuildTouchReport(inputs, d.maxContacts), true
}

func diagonalOf(w, h int) float64 {
	return math.Hypot(float64(w), float64(h))
}

// StylusDevice is one classic (non-DFT) stylus channel, tracked by
// serial number.
type StylusDevice struct {
	Serial     uint32
	Active     bool
	cone       *cone.Cone
	stylusCone bool
}

// NewStylusDevice constructs a classic stylus channel with its own
// palm-rejection cone.
func NewStylusDevice(conf *config.Config, serial uint32) *StylusDevice {
	return &StylusDevice{
		Serial:     serial,
		cone:       cone.New(conf.Cone.Angle, conf.Cone.Distance),
		stylusCone: conf.Stylus.Cone,
	}
}

// Cone exposes the device's cone so the caller can register it with
// the touch manager.
func (s *StylusDevice) Cone() *cone.Cone { return s.cone }

// ProcessStylusInput turns one classic stylus sample into a HID
// report, returning a ±1/0 delta to the device manager's active-stylus
// counter.
func (s *StylusDevice) ProcessStylusInput(now time.Time, f ClassicStylusFrame) (hidreport.Report, int) {
	status := 0
	if !s.Active && f.Proximity {
		s.Active = true
		status = 1
	} else if s.Active && !f.Proximity {
		s.Active = false
		status = -1
	}

	if f.Proximity && s.stylusCone {
		// Cones live in the touch manager's normalized coordinate
		// space, so the raw device units are scaled down first.
		s.cone.UpdatePosition(now, float64(f.X)/hidreport.MaxX, float64(f.Y)/hidreport.MaxY)
	}

	tx, ty := hidreport.Tilt(f.Altitude, f.Azimuth)

	report := hidreport.BuildStylusReport(hidreport.StylusFields{
		InRange:           f.Proximity,
		Touch:             f.Contact,
		SideButton:        f.Button,
		Eraser:            f.Rubber,
		X:                 float64(f.X),
		Y:                 float64(f.Y),
		Raw:               true,
		Pressure:          int(f.Pressure),
		XTiltCentidegrees: tx,
		YTiltCentidegrees: ty,
		ScanTime:          f.Timestamp,
	})

	return report, status
}

// DFTStylusDevice is the always-present DFT stylus channel shared
// across the whole device (IPTS_DFT_STYLUS_SERIAL).
type DFTStylusDevice struct {
	Active  bool
	decoder *stylus.Decoder
	cone    *cone.Cone
}

// NewDFTStylusDevice constructs the DFT decoder and its cone.
func NewDFTStylusDevice(conf *config.Config) *DFTStylusDevice {
	return &DFTStylusDevice{
		decoder: stylus.New(stylus.Config{InvertX: conf.General.InvertX, InvertY: conf.General.InvertY}),
		cone:    cone.New(conf.Cone.Angle, conf.Cone.Distance),
	}
}

// Cone exposes the device's cone so the caller can register it with
// the touch manager.
func (d *DFTStylusDevice) Cone() *cone.Cone { return d.cone }

// ProcessDFTStylusInput decodes one DFT frame. ok is false when the
// frame only updated internal decoder state and produced no reportable
// event.
func (d *DFTStylusDevice) ProcessDFTStylusInput(now time.Time, f stylus.Frame) (report hidreport.Report, status int, ok bool) {
	input, emitted := d.decoder.Process(f)
	if !emitted {
		return hidreport.Report{}, 0, false
	}

	if !d.Active && input.Proximity {
		d.Active = true
		status = 1
	} else if d.Active && !input.Proximity {
		d.Active = false
		status = -1
	}

	if input.Proximity {
		d.cone.UpdatePosition(now, input.X, input.Y)
	}

	report = hidreport.BuildStylusReport(hidreport.StylusFields{
		InRange:    input.Proximity,
		Touch:      input.Contact,
		SideButton: input.Button,
		Eraser:     input.Rubber,
		X:          input.X,
		Y:          input.Y,
		Pressure:   input.Pressure,
	})

	return report, status, true
}

// Manager owns every device this processor talks to for one physical
// sensor: the heatmap touch device, the shared DFT stylus, and the
// list of classic styluses seen so far, each contributing its cone to
// the touch manager's palm-rejection set.
type Manager struct {
	Conf *config.Config

	Touch     *TouchDevice
	DFTStylus *DFTStylusDevice
	styluses  []*StylusDevice

	ActiveStylusCount int
}

// NewManager constructs a device manager for one probed sensor: it
// rejects a zero panel size and wires the DFT stylus cone (and, once
// created, every classic stylus cone) into the touch manager.
func NewManager(conf *config.Config, maxContacts int) (*Manager, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		Conf:      conf,
		Touch:     NewTouchDevice(conf, maxContacts),
		DFTStylus: NewDFTStylusDevice(conf),
	}
	m.Touch.AddCone(m.DFTStylus.Cone())

	m.CreateStylus(0)
	return m, nil
}

// CreateStylus allocates a new classic stylus channel and registers
// its cone with the touch manager.
func (m *Manager) CreateStylus(serial uint32) *StylusDevice {
	s := NewStylusDevice(m.Conf, serial)
	m.styluses = append(m.styluses, s)
	m.Touch.AddCone(s.Cone())
	return s
}

// GetStylus returns the channel for serial, reusing the placeholder
// serial-0 slot on first contact and otherwise matching by serial (or
// allocating a new channel).
func (m *Manager) GetStylus(serial uint32) *StylusDevice {
	if len(m.styluses) == 0 {
		return m.CreateStylus(serial)
	}

	last := m.styluses[len(m.styluses)-1]
	if last.Serial == serial {
		return last
	}
	if last.Serial == 0 {
		last.Serial = serial
		return last
	}

	for _, s := range m.styluses {
		if s.Serial == serial {
			return s
		}
	}

	return m.CreateStylus(serial)
}
