package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	reg := NewRegistry("iptsd")

	c := reg.RegisterCounter("frames_total", "frames")
	c.Inc()
	c.Add(4)
	assert.EqualValues(t, 5, c.Value())

	g := reg.RegisterGauge("contacts", "contacts")
	g.Set(3)
	g.Dec()
	assert.EqualValues(t, 2, g.Value())

	// Re-registering a name hands back the same metric.
	assert.Same(t, c, reg.RegisterCounter("frames_total", "frames"))
}

func TestHistogramBuckets(t *testing.T) {
	reg := NewRegistry("")
	h := reg.RegisterHistogram("latency", "latency", []float64{0.01, 0.1, 1})

	h.Observe(0.005)
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)

	assert.EqualValues(t, 4, h.Count())
	assert.InDelta(t, 5.555, h.Sum(), 1e-9)
	assert.InDelta(t, 5.555/4, h.Mean(), 1e-9)
}

func TestHistogramTimer(t *testing.T) {
	reg := NewRegistry("")
	h := reg.RegisterHistogram("op", "op", nil)

	timer := h.Timer()
	time.Sleep(time.Millisecond)
	d := timer.Stop()

	assert.GreaterOrEqual(t, d, time.Millisecond)
	assert.EqualValues(t, 1, h.Count())
}

func TestWritePrometheusFormat(t *testing.T) {
	reg := NewRegistry("iptsd")
	reg.RegisterCounter("reports_total", "reports sent").Add(7)
	reg.RegisterGauge("styluses", "active styluses").Set(1)
	h := reg.RegisterHistogram("frame_seconds", "frame latency", []float64{0.01, 0.1})
	h.Observe(0.005)
	h.Observe(0.5)

	var sb strings.Builder
	reg.WritePrometheus(&sb)
	out := sb.String()

	require.Contains(t, out, "# TYPE iptsd_reports_total counter")
	require.Contains(t, out, "iptsd_reports_total 7")
	require.Contains(t, out, "iptsd_styluses 1")
	require.Contains(t, out, `iptsd_frame_seconds_bucket{le="0.01"} 1`)
	require.Contains(t, out, `iptsd_frame_seconds_bucket{le="0.1"} 1`)
	require.Contains(t, out, `iptsd_frame_seconds_bucket{le="+Inf"} 2`)
	require.Contains(t, out, "iptsd_frame_seconds_count 2")

	// Deterministic output: two writes are identical.
	var sb2 strings.Builder
	reg.WritePrometheus(&sb2)
	assert.Equal(t, out, sb2.String())
}
