package transport

import (
	"context"
	"errors"

	"iptsd/internal/devices"
	"iptsd/internal/logging"
	"iptsd/internal/stylus"
)

// errTruncated marks a frame-local length mismatch: the caller
// drops the current frame and keeps the read loop going.
var errTruncated = errors.New("transport: truncated frame")

// EventKind tags which upstream event a Parse call produced. The
// main loop matches on it instead of the parser holding callbacks.
type EventKind int

const (
	EventNone EventKind = iota
	EventSingletouch
	EventHeatmap
	EventStylus
	EventDFTStylus
)

// Event is a tagged upstream frame; exactly the field matching Kind is
// populated.
type Event struct {
	Kind EventKind

	Singletouch devices.SingletouchFrame
	Heatmap     devices.HeatmapFrame
	Stylus      devices.ClassicStylusFrame
	DFTStylus   stylus.Frame
}

// Parser walks one IPTSDataHeader-prefixed buffer and produces the
// tagged events it contains. It keeps the in-progress heatmap
// dimensions across the report-container walk: num_cols/num_rows are
// set by the dimension report and consumed by the following heatmap
// data report.
type Parser struct {
	numCols, numRows uint16
}

// NewParser constructs an empty parser.
func NewParser() *Parser { return &Parser{} }

// Parse decodes every event in buf, appending to the caller-owned
// dst slice and returning the grown slice. A truncated top-level
// header or body logs, records an audit event and drops the remainder
// of buf; a truncated block nested inside a payload or report ends
// that block's walk without logging. No error is returned either way,
// and the next buffer starts clean.
func (p *Parser) Parse(dst []Event, buf []byte) []Event {
	c := newCursor(buf)
	for c.remaining() > 0 {
		var err error
		dst, err = p.parseOne(dst, c)
		if err != nil {
			logging.Warn("dropping truncated frame", "remaining", c.remaining(), "total", len(buf))
			logging.AuditFrameTruncated(context.Background(), "header length mismatch", len(buf), len(buf)-c.remaining())
			return dst
		}
	}
	return dst
}

func (p *Parser) parseOne(dst []Event, c *cursor) ([]Event, error) {
	msgType, err := c.u32()
	if err != nil {
		return dst, err
	}
	_, err = c.u32() // buffer index; unused by the core
	if err != nil {
		return dst, err
	}
	size, err := c.u32()
	if err != nil {
		return dst, err
	}
	body, err := c.sub(int(size))
	if err != nil {
		return dst, err
	}

	switch msgType {
	case DataTypePayload:
		return p.parsePayload(dst, body)
	case DataTypeHIDReport:
		return p.parseHID(dst, body)
	}
	return dst, nil
}

func (p *Parser) parsePayload(dst []Event, b *cursor) ([]Event, error) {
	numFrames, err := b.u32()
	if err != nil {
		return dst, nil
	}

	for i := uint32(0); i < numFrames; i++ {
		frameType, err := b.u32()
		if err != nil {
			return dst, nil
		}
		size, err := b.u32()
		if err != nil {
			return dst, nil
		}
		frame, err := b.sub(int(size))
		if err != nil {
			return dst, nil
		}

		switch frameType {
		case PayloadFrameStylus:
			dst = p.parseStylus(dst, frame)
		case PayloadFrameHeatmap:
			dst = p.parseContainerReports(dst, frame)
		}
	}
	return dst, nil
}

func (p *Parser) parseHID(dst []Event, b *cursor) ([]Event, error) {
	code, err := b.u8()
	if err != nil {
		return dst, nil
	}

	if code == HIDReportSingletouch {
		return p.parseSingletouch(dst, b), nil
	}
	if isContainerReport(code) {
		return p.parseHIDContainer(dst, b), nil
	}
	return dst, nil
}

func (p *Parser) parseSingletouch(dst []Event, b *cursor) []Event {
	touch, err := b.u8()
	if err != nil {
		return dst
	}
	x, err := b.u16()
	if err != nil {
		return dst
	}
	y, err := b.u16()
	if err != nil {
		return dst
	}
	return append(dst, Event{
		Kind:        EventSingletouch,
		Singletouch: devices.SingletouchFrame{Touch: touch != 0, X: x, Y: y},
	})
}

func (p *Parser) parseStylus(dst []Event, b *cursor) []Event {
	for b.remaining() > 0 {
		reportType, err := b.u16()
		if err != nil {
			return dst
		}
		size, err := b.u16()
		if err != nil {
			return dst
		}
		body, err := b.sub(int(size))
		if err != nil {
			return dst
		}

		switch reportType {
		case ReportTypeStylusV1:
			dst = p.parseStylusReport(dst, body, 1)
		case ReportTypeStylusV2:
			dst = p.parseStylusReport(dst, body, 2)
		}
	}
	return dst
}

func (p *Parser) parseStylusReport(dst []Event, b *cursor, version int) []Event {
	serial, err := b.u32()
	if err != nil {
		return dst
	}
	elements, err := b.u8()
	if err != nil {
		return dst
	}

	for i := uint8(0); i < elements; i++ {
		var f devices.ClassicStylusFrame
		f.Serial = serial

		if version == 1 {
			mode, err := b.u8()
			if err != nil {
				return dst
			}
			x, err := b.u16()
			if err != nil {
				return dst
			}
			y, err := b.u16()
			if err != nil {
				return dst
			}
			pressure, err := b.u16()
			if err != nil {
				return dst
			}
			f.Proximity = mode&stylusBitProximity != 0
			f.Contact = mode&stylusBitContact != 0
			f.Button = mode&stylusBitButton != 0
			f.Rubber = mode&stylusBitRubber != 0
			f.X, f.Y = x, y
			f.Pressure = pressure * 4
		} else {
			mode, err := b.u16()
			if err != nil {
				return dst
			}
			x, err := b.u16()
			if err != nil {
				return dst
			}
			y, err := b.u16()
			if err != nil {
				return dst
			}
			pressure, err := b.u16()
			if err != nil {
				return dst
			}
			altitude, err := b.u16()
			if err != nil {
				return dst
			}
			azimuth, err := b.u16()
			if err != nil {
				return dst
			}
			timestamp, err := b.u16()
			if err != nil {
				return dst
			}
			f.Proximity = mode&stylusBitProximity != 0
			f.Contact = mode&stylusBitContact != 0
			f.Button = mode&stylusBitButton != 0
			f.Rubber = mode&stylusBitRubber != 0
			f.X, f.Y = x, y
			f.Pressure = pressure
			f.Altitude, f.Azimuth = uint32(altitude), uint32(azimuth)
			f.Timestamp = timestamp
		}

		dst = append(dst, Event{Kind: EventStylus, Stylus: f})
	}
	return dst
}

func (p *Parser) parseHIDContainer(dst []Event, b *cursor) []Event {
	if _, err := b.u16(); err != nil { // timestamp, unused
		return dst
	}
	rootSize, err := b.u32()
	if err != nil {
		return dst
	}
	root, err := b.sub(int(rootSize))
	if err != nil {
		return dst
	}

	for root.remaining() > 0 {
		ctype, err := root.u32()
		if err != nil {
			return dst
		}
		size, err := root.u32()
		if err != nil {
			return dst
		}
		body, err := root.sub(int(size))
		if err != nil {
			return dst
		}

		switch ctype {
		case ContainerTypeHeatmap:
			dst = p.finishHeatmap(dst, body)
		case ContainerTypeReport:
			dst = p.parseContainerReports(dst, body)
		}
	}
	return dst
}

// heatmapState carries the dimension report's fields across to the
// following heatmap-data report.
type heatmapState struct {
	width, height int
	haveDim       bool
	haveStart     bool
	timestamp     uint32
}

func (p *Parser) parseContainerReports(dst []Event, b *cursor) []Event {
	var st heatmapState
	var data []byte

	for b.remaining() > 0 {
		reportType, err := b.u16()
		if err != nil {
			break
		}
		size, err := b.u16()
		if err != nil {
			break
		}
		body, err := b.sub(int(size))
		if err != nil {
			break
		}

		switch reportType {
		case ReportTypeStart:
			ts, err := body.u32()
			if err == nil {
				st.timestamp = ts
				st.haveStart = true
			}
		case ReportTypeHeatmapDim:
			w, err1 := body.u16()
			h, err2 := body.u16()
			if err1 == nil && err2 == nil {
				st.width, st.height = int(w), int(h)
				st.haveDim = true
				p.numCols, p.numRows = w, h
			}
		case ReportTypeHeatmap:
			if st.haveDim {
				raw, err := body.take(st.width * st.height)
				if err == nil {
					data = raw
				}
			}
		case ReportTypePenDFTWindow:
			dst = p.parseDFTStylus(dst, body)
		}
	}

	if st.haveStart && st.haveDim && len(data) > 0 {
		buf := make([]uint8, len(data))
		copy(buf, data)
		dst = append(dst, Event{
			Kind: EventHeatmap,
			Heatmap: devices.HeatmapFrame{
				Width:  st.width,
				Height: st.height,
				Data:   buf,
			},
		})
	}
	return dst
}

// finishHeatmap handles the direct (non-dimension-gated) heatmap
// container variant, sized by the parser's last-seen num_cols/num_rows.
func (p *Parser) finishHeatmap(dst []Event, b *cursor) []Event {
	size, err := b.u32()
	if err != nil {
		return dst
	}
	raw, err := b.take(int(size))
	if err != nil {
		return dst
	}
	if p.numCols == 0 || p.numRows == 0 {
		return dst
	}
	buf := make([]uint8, len(raw))
	copy(buf, raw)
	return append(dst, Event{
		Kind: EventHeatmap,
		Heatmap: devices.HeatmapFrame{
			Width:  int(p.numCols),
			Height: int(p.numRows),
			Data:   buf,
		},
	})
}

func (p *Parser) parseDFTStylus(dst []Event, b *cursor) []Event {
	dataType, err := b.u8()
	if err != nil {
		return dst
	}
	if _, err := b.u16(); err != nil { // timestamp, unused
		return dst
	}
	numCols, err := b.u16()
	if err != nil {
		return dst
	}
	numRows, err := b.u16()
	if err != nil {
		return dst
	}

	if numRows == 0 {
		return dst
	}

	rowX := make([]stylus.WindowRow, numRows)
	rowY := make([]stylus.WindowRow, numRows)
	for i := range rowX {
		r, err := readDFTRow(b)
		if err != nil {
			return dst
		}
		rowX[i] = r
	}
	for i := range rowY {
		r, err := readDFTRow(b)
		if err != nil {
			return dst
		}
		rowY[i] = r
	}

	var kind stylus.EventType
	switch dataType {
	case 0:
		kind = stylus.EventPosition
	case 1:
		kind = stylus.EventButton
	case 2:
		kind = stylus.EventPressure
	default:
		return dst
	}

	return append(dst, Event{
		Kind: EventDFTStylus,
		DFTStylus: stylus.Frame{
			Type:    kind,
			NumCols: int(numCols),
			NumRows: int(numRows),
			DFTX:    rowX,
			DFTY:    rowY,
		},
	})
}

func readDFTRow(b *cursor) (stylus.WindowRow, error) {
	var row stylus.WindowRow
	for i := 0; i < DFTNumComponents; i++ {
		v, err := b.i32()
		if err != nil {
			return row, err
		}
		row.Real[i] = v
	}
	for i := 0; i < DFTNumComponents; i++ {
		v, err := b.i32()
		if err != nil {
			return row, err
		}
		row.Imag[i] = v
	}
	first, err := b.i32()
	if err != nil {
		return row, err
	}
	magnitude, err := b.u32()
	if err != nil {
		return row, err
	}
	row.First = first
	row.Magnitude = magnitude
	return row, nil
}
