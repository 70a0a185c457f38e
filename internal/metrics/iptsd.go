package metrics

import "time"

// PipelineMetrics holds the iptsd-specific signal-pipeline metrics:
// frame throughput, per-stage rejection counts, and HID report latency.
type PipelineMetrics struct {
	registry *Registry

	// Counters
	HeatmapFramesTotal    *Counter
	StylusFramesTotal     *Counter
	DFTFramesTotal        *Counter
	ContactsFittedTotal   *Counter
	ContactsRejectedTotal *Counter
	PalmVetoTotal         *Counter
	FrameTruncatedTotal   *Counter
	ReportsEmittedTotal   *Counter

	// Gauges
	ActiveContacts *Gauge
	ActiveStyluses *Gauge
	UptimeSeconds  *Gauge

	// Histograms
	HeatmapProcessDuration *Histogram
	GaussianFitDuration    *Histogram
}

var startTime = time.Now()

// NewPipelineMetrics creates and registers all iptsd pipeline metrics.
func NewPipelineMetrics(registry *Registry) *PipelineMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &PipelineMetrics{
		registry: registry,

		HeatmapFramesTotal: registry.RegisterCounter(
			"heatmap_frames_total",
			"Total number of heatmap frames processed",
		),
		StylusFramesTotal: registry.RegisterCounter(
			"stylus_frames_total",
			"Total number of classic stylus frames processed",
		),
		DFTFramesTotal: registry.RegisterCounter(
			"dft_frames_total",
			"Total number of DFT stylus frames processed",
		),
		ContactsFittedTotal: registry.RegisterCounter(
			"contacts_fitted_total",
			"Total number of touch contacts successfully fitted",
		),
		ContactsRejectedTotal: registry.RegisterCounter(
			"contacts_rejected_total",
			"Total number of candidate contacts rejected during fitting",
		),
		PalmVetoTotal: registry.RegisterCounter(
			"palm_veto_total",
			"Total number of contacts marked palm by a stylus cone",
		),
		FrameTruncatedTotal: registry.RegisterCounter(
			"frame_truncated_total",
			"Total number of frames dropped due to truncation or length mismatch",
		),
		ReportsEmittedTotal: registry.RegisterCounter(
			"reports_emitted_total",
			"Total number of HID reports sent to the driver",
		),

		ActiveContacts: registry.RegisterGauge(
			"active_contacts",
			"Number of non-palm touch contacts tracked in the last frame",
		),
		ActiveStyluses: registry.RegisterGauge(
			"active_styluses",
			"Number of styluses currently in proximity",
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the processor has been running",
		),

		HeatmapProcessDuration: registry.RegisterHistogram(
			"heatmap_process_duration_seconds",
			"Wall time spent turning one heatmap frame into a HID report",
			[]float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1},
		),
		GaussianFitDuration: registry.RegisterHistogram(
			"gaussian_fit_duration_seconds",
			"Wall time spent fitting a single contact's Gaussian",
			[]float64{0.00005, 0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005},
		),
	}

	return m
}

// RecordHeatmapFrame records one processed heatmap frame.
func (m *PipelineMetrics) RecordHeatmapFrame(d time.Duration, contacts, rejected int) {
	m.HeatmapFramesTotal.Inc()
	m.HeatmapProcessDuration.ObserveDuration(d)
	m.ContactsFittedTotal.Add(uint64(contacts))
	m.ContactsRejectedTotal.Add(uint64(rejected))
	m.ActiveContacts.Set(int64(contacts))
}

// StartHeatmapTimer returns a timer for one heatmap frame.
func (m *PipelineMetrics) StartHeatmapTimer() *HistogramTimer {
	return m.HeatmapProcessDuration.Timer()
}

// RecordGaussianFit records the duration of one fit attempt.
func (m *PipelineMetrics) RecordGaussianFit(d time.Duration) {
	m.GaussianFitDuration.ObserveDuration(d)
}

// RecordStylusFrame records one classic stylus frame.
func (m *PipelineMetrics) RecordStylusFrame() {
	m.StylusFramesTotal.Inc()
}

// RecordDFTFrame records one DFT stylus frame.
func (m *PipelineMetrics) RecordDFTFrame() {
	m.DFTFramesTotal.Inc()
}

// RecordPalmVeto records a contact vetoed by a stylus cone.
func (m *PipelineMetrics) RecordPalmVeto() {
	m.PalmVetoTotal.Inc()
}

// RecordTruncatedFrame records a frame dropped due to truncation.
func (m *PipelineMetrics) RecordTruncatedFrame() {
	m.FrameTruncatedTotal.Inc()
}

// RecordReportEmitted records one HID report sent to the driver.
func (m *PipelineMetrics) RecordReportEmitted() {
	m.ReportsEmittedTotal.Inc()
}

// SetActiveStyluses sets the number of styluses currently in proximity.
func (m *PipelineMetrics) SetActiveStyluses(count int64) {
	m.ActiveStyluses.Set(count)
}

// UpdateUptime updates the uptime metric.
func (m *PipelineMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics, e.g. for a debug endpoint.
func (m *PipelineMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"heatmap_frames_total":  m.HeatmapFramesTotal.Value(),
		"stylus_frames_total":   m.StylusFramesTotal.Value(),
		"dft_frames_total":      m.DFTFramesTotal.Value(),
		"contacts_fitted_total": m.ContactsFittedTotal.Value(),
		"palm_veto_total":       m.PalmVetoTotal.Value(),
		"reports_emitted_total": m.ReportsEmittedTotal.Value(),
		"active_contacts":       m.ActiveContacts.Value(),
		"active_styluses":       m.ActiveStyluses.Value(),
		"uptime_seconds":        m.UptimeSeconds.Value(),
		"heatmap_avg_seconds":   m.HeatmapProcessDuration.Mean(),
	}
}

// defaultPipelineMetrics is the process-wide metrics instance used by cmd/iptsd.
var defaultPipelineMetrics *PipelineMetrics

// GetMetrics returns the global pipeline metrics instance, creating it
// against the default registry on first use.
func GetMetrics() *PipelineMetrics {
	if defaultPipelineMetrics == nil {
		defaultPipelineMetrics = NewPipelineMetrics(Default())
	}
	return defaultPipelineMetrics
}

// InitMetrics initializes the global pipeline metrics with a custom registry.
func InitMetrics(registry *Registry) *PipelineMetrics {
	defaultPipelineMetrics = NewPipelineMetrics(registry)
	return defaultPipelineMetrics
}
