// Package touch implements the touch manager: it turns a frame's
// fitted TouchPoint contacts into a stable slot table (TouchInput),
// tracking identity across frames, filtering unstable assignments, and
// vetoing contacts that fall inside an active palm-rejection cone.
package touch

import (
	"math"
	"time"

	"iptsd/internal/cone"
	"iptsd/internal/contacts"
	"iptsd/internal/numeric"
)

// InstabilityThreshold is IPTS_TOUCH_INSTABILITY_THRESH: a tracked slot
// whose eigenvalues drift for this many consecutive frames is dropped.
const InstabilityThreshold = 3

// Input is a single tracked touch slot, normalized to [0, 1] in both
// axes, consumed directly by the HID report builder.
type Input struct {
	X, Y         float64
	Major, Minor float64
	Orientation  uint16
	Index        uint8
	Palm         bool
	Active       bool
	Tracked      bool
	Instability  uint8
	Ev1, Ev2     float32
}

// Config carries the touch manager's tuning knobs read from the
// per-device configuration.
type Config struct {
	MaxContacts      uint8
	InvertX, InvertY bool
	StylusCone       bool
	ConeAngle        float64
	ConeDistance     float64
	TouchStability   bool
	StabilityThresh  float32
}

// Frame carries the heatmap diagonal, in pixels, that scales each
// contact's major/minor axis lengths.
type Frame struct {
	Diagonal float64
}

// Manager owns the slot table and tracking state across frames.
type Manager struct {
	conf Config

	touching bool

	inputs       []Input
	last         []Input
	lastTouchCnt int
	distances    []float64

	cones []*cone.Cone
}

// New constructs a touch manager for the given configuration. If
// StylusCone is set, the caller is expected to append cones for each
// tracked stylus via AddCone before the first Process call.
func New(conf Config) *Manager {
	m := &Manager{
		conf:      conf,
		inputs:    make([]Input, conf.MaxContacts),
		last:      make([]Input, conf.MaxContacts),
		distances: make([]float64, int(conf.MaxContacts)*int(conf.MaxContacts)),
	}
	for i := range m.last {
		m.last[i].Index = uint8(i)
		m.last[i].Active = false
	}
	return m
}

// AddCone registers a palm-rejection cone (typically one per tracked
// stylus) that Process will update and check each frame.
func (m *Manager) AddCone(c *cone.Cone) {
	m.cones = append(m.cones, c)
}

// Process consumes this frame's fitted contacts (already produced by a
// contacts.Processor) and returns the updated, tracked slot table. The
// returned slice aliases the manager's internal buffer and is only
// valid until the next Process call.
func (m *Manager) Process(now time.Time, frame Frame, points []contacts.TouchPoint) []Input {
	maxContacts := int(m.conf.MaxContacts)
	count := len(points)
	if count > maxContacts {
		count = maxContacts
	}
	actualCnt := count

	// Two-pointer partition: non-palm contacts fill the front of the
	// slot table in source order, palms fill the tail.
	front := 0
	for src := 0; src < count; src++ {
		pt := points[src]

		x, y := float64(pt.Mean.X), float64(pt.Mean.Y)
		if m.conf.InvertX {
			x = 1 - x
		}
		if m.conf.InvertY {
			y = 1 - y
		}

		var in *Input
		if pt.Palm {
			actualCnt--
			in = &m.inputs[actualCnt]
			in.Palm = true
			in.Index = uint8(actualCnt)
		} else {
			in = &m.inputs[front]
			in.Palm = false
			in.Index = uint8(front)
			front++
		}

		in.X, in.Y = x, y

		eig := pt.Cov.Eigen()
		s1 := math.Sqrt(float64(eig.Val1))
		s2 := math.Sqrt(float64(eig.Val2))

		d1 := 4 * s1 / frame.Diagonal
		d2 := 4 * s2 / frame.Diagonal
		in.Major = math.Max(d1, d2)
		in.Minor = math.Min(d1, d2)

		v1 := numeric.Vec2[float64]{X: float64(eig.Vec1.X) * s1, Y: float64(eig.Vec1.Y) * s1}
		angle := math.Pi/2 - math.Atan2(v1.X, v1.Y)
		if angle < 0 {
			angle += math.Pi
		}
		if angle > math.Pi {
			angle -= math.Pi
		}
		in.Orientation = uint16(angle / math.Pi * 180)

		in.Ev1, in.Ev2 = eig.Val1, eig.Val2
		in.Active = true
		in.Tracked = false
		in.Instability = 0
	}

	for i := count; i < maxContacts; i++ {
		m.inputs[i] = Input{Index: uint8(i)}
	}

	if m.touching {
		actualCnt = m.track(actualCnt)
	}

	if m.conf.StylusCone && len(m.cones) > 0 {
		// Scan the whole table: track's ghost insertion may have
		// swapped a palm past the original count.
		for i := 0; i < maxContacts; i++ {
			if !m.inputs[i].Palm || !m.inputs[i].Active {
				continue
			}
			m.updateCones(now, m.inputs[i])
		}

		for i := 0; i < actualCnt; {
			if m.inputs[i].Palm {
				i++
				continue
			}
			if m.checkCones(now, m.inputs[i]) {
				m.inputs[i].Palm = true
				actualCnt--
				if i != actualCnt {
					m.inputs[i], m.inputs[actualCnt] = m.inputs[actualCnt], m.inputs[i]
				}
				continue
			}
			i++
		}
	}

	m.touching = actualCnt > 0

	m.inputs, m.last = m.last, m.inputs
	m.lastTouchCnt = actualCnt

	return m.last
}

// track assigns stable indices to this frame's active touches by
// greedy nearest-neighbor matching against the previous frame's
// surviving touches, returning the (possibly grown) active count.
func (m *Manager) track(touchCnt int) int {
	lastTouchCnt := m.lastTouchCnt

	// Drop instable touches from the previous frame before matching.
	for j := 0; j < lastTouchCnt; {
		if m.last[j].Instability >= InstabilityThreshold {
			lastTouchCnt--
			if j != lastTouchCnt {
				m.last[j], m.last[lastTouchCnt] = m.last[lastTouchCnt], m.last[j]
				continue
			}
		}
		j++
	}

	need := touchCnt * lastTouchCnt
	if need > len(m.distances) {
		m.distances = make([]float64, need)
	}
	for i := 0; i < touchCnt; i++ {
		for j := 0; j < lastTouchCnt; j++ {
			in := m.inputs[i]
			lastIn := m.last[j]
			dx := 100 * (in.X - lastIn.X)
			dy := 100 * (in.Y - lastIn.Y)
			m.distances[i*lastTouchCnt+j] = math.Hypot(dx, dy)
		}
	}

	count := touchCnt
	if lastTouchCnt < count {
		count = lastTouchCnt
	}

	var indexUsed uint32
	for k := 0; k < count; k++ {
		idx := minIndex(m.distances[:touchCnt*lastTouchCnt])
		i := idx / lastTouchCnt
		j := idx % lastTouchCnt

		in := &m.inputs[i]
		lastIn := &m.last[j]
		in.Tracked = true
		in.Index = lastIn.Index
		indexUsed |= 1 << in.Index
		in.Instability = lastIn.Instability

		if m.conf.TouchStability {
			dev1 := in.Ev1 - lastIn.Ev1
			dev2 := in.Ev2 - lastIn.Ev2
			if dev1 < m.conf.StabilityThresh && dev2 < m.conf.StabilityThresh {
				in.Instability = 0
			} else {
				in.Instability++
			}
		}

		for x := 0; x < lastTouchCnt; x++ {
			m.distances[i*lastTouchCnt+x] = 1 << 30
		}
		for x := 0; x < touchCnt; x++ {
			m.distances[x*lastTouchCnt+j] = 1 << 30
		}
	}

	maxContacts := int(m.conf.MaxContacts)

	switch {
	case touchCnt > lastTouchCnt:
		for i := 0; i < touchCnt; i++ {
			if m.inputs[i].Tracked {
				continue
			}
			index := 0
			for indexUsed&(1<<uint(index)) != 0 {
				index++
			}
			m.inputs[i].Index = uint8(index)
			indexUsed |= 1 << uint(index)
		}
	case touchCnt < lastTouchCnt:
		for j := 0; j < lastTouchCnt; j++ {
			if indexUsed&(1<<m.last[j].Index) != 0 {
				continue
			}
			for i := touchCnt; i < maxContacts; i++ {
				if m.inputs[i].Active {
					continue
				}
				if i != touchCnt {
					m.inputs[touchCnt], m.inputs[i] = m.inputs[i], m.inputs[touchCnt]
				}
				m.inputs[touchCnt] = m.last[j]
				m.inputs[touchCnt].Instability++
				touchCnt++
				break
			}
		}
	}

	return touchCnt
}

func minIndex(d []float64) int {
	best := 0
	for i, v := range d {
		if v < d[best] {
			best = i
		}
	}
	return best
}

func (m *Manager) updateCones(now time.Time, palm Input) {
	var closest *cone.Cone
	best := math.Inf(1)

	for _, c := range m.cones {
		if !c.Alive() || !c.Active(now) {
			continue
		}
		d := math.Hypot(c.X-palm.X, c.Y-palm.Y)
		if d < best {
			best = d
			closest = c
		}
	}

	if closest == nil {
		return
	}
	closest.UpdateDirection(now, palm.X, palm.Y)
}

func (m *Manager) checkCones(now time.Time, in Input) bool {
	for _, c := range m.cones {
		if c.Check(now, in.X, in.Y) {
			return true
		}
	}
	return false
}
