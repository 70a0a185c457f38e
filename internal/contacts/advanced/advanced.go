// Package advanced implements the full heatmap contact-extraction
// pipeline: Gaussian preprocessing, structure-tensor incoherence,
// Hessian ridge response, local-maxima search, connected-component
// labeling, weighted distance transform region assignment, component
// filtering, and per-maximum Gaussian fitting. The scratch images, WDT
// queue and fit samples are kept in the Processor and reused across
// frames; the per-component acceptance table and the returned contact
// slice are allocated on every Process call.
package advanced

import (
	"container/heap"
	"math"

	"iptsd/internal/contacts"
	"iptsd/internal/gaussfit"
	"iptsd/internal/label"
	"iptsd/internal/numeric"
)

// Tuning knobs not carried by the shared contacts.Config.
type Params struct {
	PreprocessSigma      float32
	StructureTensorSigma float32
	HessianSigma         float32
	MaximaThreshold      float32 // fraction of global obj max to seed a local maximum
	LabelThreshold       float32 // fraction of global obj max for component labeling
	ComponentMinScore    float32
	PalmArea             float32 // component pixel count above which a fit is palm
	PalmAspect           float32 // eigenvalue ratio above which a fit is palm
	PalmPressure         float32 // fitted scale below which a fit is palm
	FitWindow            int     // half-width of the Gaussian-fit window (gf_window)
}

// DefaultParams holds the tuned defaults for a typical touch-panel
// heatmap resolution.
func DefaultParams() Params {
	return Params{
		PreprocessSigma:      0.8,
		StructureTensorSigma: 1.5,
		HessianSigma:         1.2,
		MaximaThreshold:      0.05,
		LabelThreshold:       0.08,
		ComponentMinScore:    0.15,
		PalmArea:             80,
		PalmAspect:           6,
		PalmPressure:         0.05,
		FitWindow:            5,
	}
}

// Processor is the advanced (full) touch processor, selected by
// Touch.Processing = "advanced" in the device configuration.
type Processor struct {
	conf   contacts.Config
	params Params

	size numeric.Index2

	raw numeric.Image[float32]
	pp  numeric.Image[float32]

	gx, gy numeric.Image[float32]

	stXX, stXY, stYY numeric.Image[float32]
	incoherence      numeric.Image[float32]

	hxx, hxy, hyy numeric.Image[float32]
	ridge         numeric.Image[float32]

	obj    numeric.Image[float32]
	labels numeric.Image[uint16]

	// smoothing scratch shared by the structure-tensor and Hessian
	// passes
	smXX, smXY, smYY numeric.Image[float32]

	// per-frame WDT and fitting scratch
	assignment []int
	dist       []float32
	pq         wdtHeap
	maxima     []Maximum
	stats      []componentStat
	samples    []gaussfit.Sample

	kernPP Kernel
	kernST Kernel
	kernHS Kernel
}

// Kernel is a type alias so callers don't need to import numeric for
// the kernel type used to preprocess/smooth each scratch buffer.
type Kernel = numeric.Kernel5x5

// New constructs an advanced processor for the given shared
// configuration and pipeline tuning parameters.
func New(conf contacts.Config, params Params) *Processor {
	p := &Processor{conf: conf, params: params}
	p.kernPP = numeric.GaussianKernel5x5(params.PreprocessSigma)
	p.kernST = numeric.GaussianKernel5x5(params.StructureTensorSigma)
	p.kernHS = numeric.GaussianKernel5x5(params.HessianSigma)
	p.raw.Resize(conf.Size.X, conf.Size.Y)
	p.resize(conf.Size)
	return p
}

// resize sizes every scratch buffer to match the raw heatmap. The raw
// image itself is sized by the caller through Heatmap(); everything
// else follows it here, reallocating only when the sensor's frame
// dimensions actually change.
func (p *Processor) resize(size numeric.Index2) {
	if p.size == size && p.assignment != nil {
		return
	}
	p.size = size
	w, h := size.X, size.Y

	for _, im := range []*numeric.Image[float32]{
		&p.pp, &p.gx, &p.gy,
		&p.stXX, &p.stXY, &p.stYY, &p.incoherence,
		&p.hxx, &p.hxy, &p.hyy, &p.ridge, &p.obj,
		&p.smXX, &p.smXY, &p.smYY,
	} {
		im.Resize(w, h)
	}
	p.labels.Resize(w, h)
	p.assignment = make([]int, w*h)
	p.dist = make([]float32, w*h)
	win := 2*p.params.FitWindow + 1
	p.samples = make([]gaussfit.Sample, 0, win*win)
}

// Heatmap returns the raw scratch image for the caller to fill with the
// current frame's sensor values before calling Process.
func (p *Processor) Heatmap() *numeric.Image[float32] {
	return &p.raw
}

// Process runs the full pipeline and returns the frame's touch points.
// Any numerical failure in a single Gaussian fit is a local skip; the
// frame always returns a non-nil, possibly empty, slice.
func (p *Processor) Process() []contacts.TouchPoint {
	p.resize(p.raw.Size())

	numeric.Convolve5x5(p.pp, p.raw, p.kernPP)
	p.computeGradient()
	p.computeStructureTensor()
	p.computeHessianRidge()
	p.computeObjective()

	maxima := p.findLocalMaxima()
	if len(maxima) == 0 {
		return []contacts.TouchPoint{}
	}

	globalMax := p.globalMax()
	labelThresh := globalMax * p.params.LabelThreshold
	n := label.Label(&p.labels, p.obj, labelThresh, label.Connectivity4)
	if n == 0 {
		return []contacts.TouchPoint{}
	}

	stats := p.componentStats(n, maxima)
	accepted := p.acceptedComponents(stats)
	assignment := p.weightedDistanceTransform(maxima, accepted)

	return p.fitMaxima(maxima, assignment, stats, accepted)
}

func (p *Processor) globalMax() float32 {
	var m float32
	for _, v := range p.obj.Data {
		if v > m {
			m = v
		}
	}
	return m
}

func (p *Processor) computeGradient() {
	w, h := p.pp.W, p.pp.H
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-1, 0, w-1), clamp(x+1, 0, w-1)
			y0, y1 := clamp(y-1, 0, h-1), clamp(y+1, 0, h-1)
			p.gx.Set(x, y, (p.pp.At(x1, y)-p.pp.At(x0, y))/2)
			p.gy.Set(x, y, (p.pp.At(x, y1)-p.pp.At(x, y0))/2)
		}
	}
}

func (p *Processor) computeStructureTensor() {
	for i := range p.gx.Data {
		fx, fy := p.gx.Data[i], p.gy.Data[i]
		p.stXX.Data[i] = fx * fx
		p.stXY.Data[i] = fx * fy
		p.stYY.Data[i] = fy * fy
	}

	numeric.Convolve5x5(p.smXX, p.stXX, p.kernST)
	numeric.Convolve5x5(p.smXY, p.stXY, p.kernST)
	numeric.Convolve5x5(p.smYY, p.stYY, p.kernST)
	copy(p.stXX.Data, p.smXX.Data)
	copy(p.stXY.Data, p.smXY.Data)
	copy(p.stYY.Data, p.smYY.Data)

	const eps = 1e-12
	for i := range p.stXX.Data {
		m := numeric.Mat2s[float32]{XX: p.stXX.Data[i], XY: p.stXY.Data[i], YY: p.stYY.Data[i]}
		e := m.Eigen()
		l1, l2 := e.Val1, e.Val2
		if l1 < l2 {
			l1, l2 = l2, l1
		}
		p.incoherence.Data[i] = l2 / (l1 + eps)
	}
}

func (p *Processor) computeHessianRidge() {
	w, h := p.pp.W, p.pp.H
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-1, 0, w-1), clamp(x+1, 0, w-1)
			y0, y1 := clamp(y-1, 0, h-1), clamp(y+1, 0, h-1)
			c := p.pp.At(x, y)
			p.hxx.Set(x, y, p.pp.At(x1, y)-2*c+p.pp.At(x0, y))
			p.hyy.Set(x, y, p.pp.At(x, y1)-2*c+p.pp.At(x, y0))

			x0y0 := p.pp.At(clamp(x-1, 0, w-1), clamp(y-1, 0, h-1))
			x1y1 := p.pp.At(clamp(x+1, 0, w-1), clamp(y+1, 0, h-1))
			x0y1 := p.pp.At(clamp(x-1, 0, w-1), clamp(y+1, 0, h-1))
			x1y0 := p.pp.At(clamp(x+1, 0, w-1), clamp(y-1, 0, h-1))
			p.hxy.Set(x, y, (x1y1-x1y0-x0y1+x0y0)/4)
		}
	}

	numeric.Convolve5x5(p.smXX, p.hxx, p.kernHS)
	numeric.Convolve5x5(p.smXY, p.hxy, p.kernHS)
	numeric.Convolve5x5(p.smYY, p.hyy, p.kernHS)
	copy(p.hxx.Data, p.smXX.Data)
	copy(p.hxy.Data, p.smXY.Data)
	copy(p.hyy.Data, p.smYY.Data)

	for i := range p.hxx.Data {
		m := numeric.Mat2s[float32]{XX: p.hxx.Data[i], XY: p.hxy.Data[i], YY: p.hyy.Data[i]}
		e := m.Eigen()
		minEig := e.Val2
		if e.Val1 < minEig {
			minEig = e.Val1
		}
		r := -minEig
		if r < 0 {
			r = 0
		}
		p.ridge.Data[i] = r
	}
}

func (p *Processor) computeObjective() {
	for i := range p.obj.Data {
		p.obj.Data[i] = p.ridge.Data[i] * (1 - p.incoherence.Data[i])
	}
}

// Maximum is a surviving local maximum candidate.
type Maximum struct {
	X, Y  int
	Value float32
}

func (p *Processor) findLocalMaxima() []Maximum {
	w, h := p.obj.W, p.obj.H
	thresh := p.globalMax() * p.params.MaximaThreshold
	maxima := p.maxima[:0]

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := p.obj.At(x, y)
			if v <= thresh {
				continue
			}
			isMax := true
			for dy := -1; dy <= 1 && isMax; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if !p.obj.InBounds(nx, ny) {
						continue
					}
					nv := p.obj.At(nx, ny)
					// ties broken by lower linear index: a neighbor
					// that is earlier in scan order and equal in
					// value wins, so this pixel is not the maximum.
					if nv > v || (nv == v && p.obj.Index(nx, ny) < p.obj.Index(x, y)) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				maxima = append(maxima, Maximum{X: x, Y: y, Value: v})
			}
		}
	}
	p.maxima = maxima
	return maxima
}

// componentStat accumulates per-component statistics during labeling.
type componentStat struct {
	size        int
	volume      float32
	incoherence float32 // area-weighted mean
	maximas     int
	score       float32
}

func (p *Processor) componentStats(n uint16, maxima []Maximum) []componentStat {
	if cap(p.stats) < int(n)+1 {
		p.stats = make([]componentStat, n+1)
	}
	stats := p.stats[:n+1]
	for i := range stats {
		stats[i] = componentStat{}
	}
	for i, lbl := range p.labels.Data {
		if lbl == 0 {
			continue
		}
		s := &stats[lbl]
		s.size++
		s.volume += p.obj.Data[i]
		s.incoherence += p.incoherence.Data[i]
	}
	for i := range stats {
		if stats[i].size > 0 {
			stats[i].incoherence /= float32(stats[i].size)
		}
	}
	for _, m := range maxima {
		lbl := p.labels.At(m.X, m.Y)
		if lbl == 0 {
			continue
		}
		stats[lbl].maximas++
	}
	for i := range stats {
		s := &stats[i]
		if s.size == 0 {
			continue
		}
		s.score = (s.volume / float32(s.size)) * (1 - s.incoherence)
	}
	return stats
}

func (p *Processor) acceptedComponents(stats []componentStat) []bool {
	accepted := make([]bool, len(stats))
	for lbl, s := range stats {
		if lbl == 0 {
			continue
		}
		if s.maximas == 0 {
			continue
		}
		if s.score < p.params.ComponentMinScore {
			continue
		}
		accepted[lbl] = true
	}
	return accepted
}

// wdtItem is a priority-queue entry for the weighted distance transform.
type wdtItem struct {
	cost  float32
	idx   int
	owner int // index into maxima
}

type wdtHeap []wdtItem

func (h wdtHeap) Len() int { return len(h) }
func (h wdtHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].idx < h[j].idx
}
func (h wdtHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *wdtHeap) Push(x any)        { *h = append(*h, x.(wdtItem)) }
func (h *wdtHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// weightedDistanceTransform assigns every labeled pixel to the nearest
// (by integrated cost) accepted local maximum within its own connected
// component. Ties are broken by first-reached (lower cumulative cost
// reached first via the heap, then lower linear index, matching
// label.go's tie-break convention).
func (p *Processor) weightedDistanceTransform(maxima []Maximum, accepted []bool) []int {
	w := p.obj.W
	assignment := p.assignment
	for i := range assignment {
		assignment[i] = -1
	}
	dist := p.dist
	for i := range dist {
		dist[i] = math.MaxFloat32
	}

	pq := p.pq[:0]
	for mi, m := range maxima {
		lbl := p.labels.At(m.X, m.Y)
		if lbl == 0 || !accepted[lbl] {
			continue
		}
		idx := p.obj.Index(m.X, m.Y)
		dist[idx] = 0
		assignment[idx] = mi
		heap.Push(&pq, wdtItem{cost: 0, idx: idx, owner: mi})
	}

	for pq.Len() > 0 {
		cur := heap.Pop(&pq).(wdtItem)
		if cur.cost > dist[cur.idx] {
			continue
		}
		x, y := cur.idx%w, cur.idx/w
		myLabel := p.labels.Data[cur.idx]

		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := x+d[0], y+d[1]
			if !p.obj.InBounds(nx, ny) {
				continue
			}
			ni := p.obj.Index(nx, ny)
			if p.labels.Data[ni] != myLabel || myLabel == 0 {
				continue
			}
			step := (1 - p.obj.Data[ni])
			if step < 0 {
				step = 0
			}
			nc := cur.cost + step
			if nc < dist[ni] {
				dist[ni] = nc
				assignment[ni] = cur.owner
				heap.Push(&pq, wdtItem{cost: nc, idx: ni, owner: cur.owner})
			}
		}
	}

	p.pq = pq[:0]
	return assignment
}

func (p *Processor) fitMaxima(maxima []Maximum, assignment []int, stats []componentStat, accepted []bool) []contacts.TouchPoint {
	points := make([]contacts.TouchPoint, 0, len(maxima))

	for mi, m := range maxima {
		lbl := p.labels.At(m.X, m.Y)
		if lbl == 0 || !accepted[lbl] {
			continue
		}

		samples := p.windowSamples(m.X, m.Y, assignment, mi)
		res, ok := gaussfit.Fit(samples, numeric.Vec2[float64]{X: float64(m.X), Y: float64(m.Y)})
		if !ok {
			continue
		}

		s := stats[lbl]
		eig := res.Cov.Eigen()
		aspect := float32(1)
		if eig.Val2 > 1e-9 {
			aspect = float32(eig.Val1 / eig.Val2)
		}
		scale := float32(res.Scale)

		palm := float32(s.size) > p.params.PalmArea ||
			aspect > p.params.PalmAspect ||
			scale < p.params.PalmPressure

		confidence := s.score
		if confidence > 1 {
			confidence = 1
		}

		points = append(points, contacts.TouchPoint{
			Mean:       numeric.Vec2[float32]{X: float32(res.Mean.X), Y: float32(res.Mean.Y)},
			Cov:        numeric.Mat2s[float32]{XX: float32(res.Cov.XX), XY: float32(res.Cov.XY), YY: float32(res.Cov.YY)},
			Scale:      scale,
			Confidence: confidence,
			Palm:       palm,
		})
	}

	return points
}

// windowSamples gathers the preprocessed heatmap samples in the
// gf_window around a maximum, clipped to the image bounds. Pixels the
// WDT assigned to a different maximum are skipped; pixels assigned to
// this maximum or left unassigned are kept.
func (p *Processor) windowSamples(cx, cy int, assignment []int, owner int) []gaussfit.Sample {
	win := p.params.FitWindow
	samples := p.samples[:0]
	for dy := -win; dy <= win; dy++ {
		for dx := -win; dx <= win; dx++ {
			x, y := cx+dx, cy+dy
			if !p.pp.InBounds(x, y) {
				continue
			}
			idx := p.pp.Index(x, y)
			if assignment[idx] != -1 && assignment[idx] != owner {
				continue
			}
			samples = append(samples, gaussfit.Sample{
				X: float64(x), Y: float64(y), Value: float64(p.pp.Data[idx]),
			})
		}
	}
	p.samples = samples
	return samples
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
