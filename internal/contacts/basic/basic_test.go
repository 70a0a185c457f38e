package basic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"iptsd/internal/contacts"
	"iptsd/internal/numeric"
)

func TestProcessEmptyHeatmapYieldsNoContacts(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 8, Y: 8}, BasicPressure: 0.04})
	pts := p.Process()
	require.NotNil(t, pts)
	require.Empty(t, pts)
}

func TestProcessSingleSaturatedCell(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 8, Y: 8}, BasicPressure: 0.04})
	hm := p.Heatmap()
	hm.Set(4, 4, 1.0)

	pts := p.Process()
	require.Len(t, pts, 1)
	require.InDelta(t, 4, pts[0].Mean.X, 1e-4)
	require.InDelta(t, 4, pts[0].Mean.Y, 1e-4)
}

func TestProcessTwoSeparateContacts(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 16, Y: 16}, BasicPressure: 0.04})
	hm := p.Heatmap()
	hm.Set(2, 2, 0.9)
	hm.Set(12, 12, 0.8)

	pts := p.Process()
	require.Len(t, pts, 2)
}
