// Package basic implements the low-CPU fallback touch processor: simple
// 4-connected flood-fill clustering with streaming center-of-mass and
// covariance accumulation, no palm detection. The fill uses an
// explicit stack so the worst case stays bounded on a crowded frame.
package basic

import (
	"iptsd/internal/contacts"
	"iptsd/internal/numeric"
)

// Processor is the basic touch processor, selected by Touch.Processing
// = "basic" in the device configuration.
type Processor struct {
	conf contacts.Config

	hm      numeric.Image[float32]
	visited []bool
	average float32
}

// New constructs a basic processor for the given shared configuration.
func New(conf contacts.Config) *Processor {
	p := &Processor{conf: conf}
	p.hm.Resize(conf.Size.X, conf.Size.Y)
	p.resize()
	return p
}

// resize follows the heatmap's dimensions, which the caller sets
// through Heatmap() before each Process call.
func (p *Processor) resize() {
	if len(p.visited) != p.hm.W*p.hm.H {
		p.visited = make([]bool, p.hm.W*p.hm.H)
	}
}

// Heatmap returns the backing heatmap image for the caller to fill with
// the current frame's raw sensor values before calling Process.
func (p *Processor) Heatmap() *numeric.Image[float32] {
	return &p.hm
}

// value applies the frame-average background subtraction:
// out-of-bounds reads as 0, in-bounds values below the frame average
// clamp to 0.
func (p *Processor) value(x, y int) float32 {
	if !p.hm.InBounds(x, y) {
		return 0
	}
	v := p.hm.At(x, y)
	if v > p.average {
		return v - p.average
	}
	return 0
}

func (p *Processor) visitedAt(x, y int) bool {
	if !p.hm.InBounds(x, y) {
		return true
	}
	return p.visited[p.hm.Index(x, y)]
}

func (p *Processor) setVisited(x, y int, v bool) {
	if !p.hm.InBounds(x, y) {
		return
	}
	p.visited[p.hm.Index(x, y)] = v
}

// greater orders candidate cells: position a wins over position b if
// its background-subtracted value is strictly
// larger, or on a tie, if a has the lower linear index (smaller y,
// then smaller x) -- a deterministic tie-break so local-maxima
// selection never depends on scan order.
func (p *Processor) greater(ax, ay, bx, by int) bool {
	va, vb := float64(p.value(ax, ay)), float64(p.value(bx, by))
	if vb > va {
		return false
	}
	if vb < va {
		return true
	}
	if by != ay {
		return ay < by
	}
	return ax < bx
}

func (p *Processor) isLocalMax(x, y int) bool {
	for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if !p.hm.InBounds(nx, ny) {
			continue
		}
		if !p.greater(x, y, nx, ny) {
			return false
		}
	}
	return true
}

// Process resets visitation state, recomputes the frame average,
// finds unvisited local maxima above the configured pressure, and
// flood-fills each into a TouchPoint via streaming moment
// accumulation. No palm detection is performed by this processor.
func (p *Processor) Process() []contacts.TouchPoint {
	p.resize()
	for i := range p.visited {
		p.visited[i] = false
	}
	p.recomputeAverage()

	var points []contacts.TouchPoint

	for y := 0; y < p.hm.H; y++ {
		for x := 0; x < p.hm.W; x++ {
			if p.visitedAt(x, y) {
				continue
			}
			v := p.value(x, y)
			if v <= p.conf.BasicPressure {
				continue
			}
			if !p.isLocalMax(x, y) {
				continue
			}

			points = append(points, p.floodFill(x, y))
		}
	}

	if points == nil {
		points = []contacts.TouchPoint{}
	}
	return points
}

func (p *Processor) recomputeAverage() {
	var sum float32
	for _, v := range p.hm.Data {
		sum += v
	}
	if len(p.hm.Data) > 0 {
		p.average = sum / float32(len(p.hm.Data))
	}
}

type accumulator struct {
	x, y, xx, yy, xy, w, maxV float32
}

func (a *accumulator) add(x, y int, val float32) {
	fx, fy := float32(x), float32(y)
	a.x += val * fx
	a.y += val * fy
	a.xx += val * fx * fx
	a.yy += val * fy * fy
	a.xy += val * fx * fy
	a.w += val
	if val > a.maxV {
		a.maxV = val
	}
}

func (a *accumulator) mean() numeric.Vec2[float32] {
	return numeric.Vec2[float32]{X: a.x / a.w, Y: a.y / a.w}
}

func (a *accumulator) cov() numeric.Mat2s[float32] {
	r1 := (a.xx - a.x*a.x/a.w) / a.w
	r2 := (a.yy - a.y*a.y/a.w) / a.w
	r3 := (a.xy - a.x*a.y/a.w) / a.w
	return numeric.Mat2s[float32]{XX: r1, XY: r3, YY: r2}
}

// floodFill walks the 4-connected region above the pressure threshold
// starting at (x, y) using an explicit stack.
func (p *Processor) floodFill(x, y int) contacts.TouchPoint {
	var acc accumulator
	stack := [][2]int{{x, y}}

	for len(stack) > 0 {
		pos := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		px, py := pos[0], pos[1]

		if p.visitedAt(px, py) {
			continue
		}
		v := p.value(px, py)
		p.setVisited(px, py, true)
		if v <= p.conf.BasicPressure {
			continue
		}
		acc.add(px, py, v)

		stack = append(stack,
			[2]int{px + 1, py},
			[2]int{px - 1, py},
			[2]int{px, py + 1},
			[2]int{px, py - 1},
		)
	}

	return contacts.TouchPoint{
		Mean:       acc.mean(),
		Cov:        acc.cov(),
		Scale:      acc.maxV,
		Confidence: 1,
		Palm:       false,
	}
}
