package advanced

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"iptsd/internal/contacts"
	"iptsd/internal/numeric"
)

func blob(p *Processor, cx, cy int, amp float32, radius int) {
	hm := p.Heatmap()
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x, y := cx+dx, cy+dy
			if !hm.InBounds(x, y) {
				continue
			}
			d2 := float64(dx*dx + dy*dy)
			v := amp * float32(math.Exp(-d2/float64(radius*radius)))
			if v > hm.At(x, y) {
				hm.Set(x, y, v)
			}
		}
	}
}

func TestProcessEmptyHeatmapYieldsNoContacts(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 24, Y: 24}}, DefaultParams())
	pts := p.Process()
	require.NotNil(t, pts)
	require.Empty(t, pts)
}

func TestProcessSingleBlobYieldsOneContact(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 24, Y: 24}}, DefaultParams())
	blob(p, 12, 12, 1.0, 4)

	pts := p.Process()
	require.Len(t, pts, 1)
	require.InDelta(t, 12, pts[0].Mean.X, 1.5)
	require.InDelta(t, 12, pts[0].Mean.Y, 1.5)
	require.False(t, pts[0].Palm)
}

func TestProcessTwoSeparateBlobsYieldTwoContacts(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 40, Y: 24}}, DefaultParams())
	blob(p, 8, 12, 1.0, 4)
	blob(p, 32, 12, 1.0, 4)

	pts := p.Process()
	require.Len(t, pts, 2)
}

func TestProcessWideLowPressureBlobIsMarkedPalm(t *testing.T) {
	params := DefaultParams()
	p := New(contacts.Config{Size: numeric.Index2{X: 60, Y: 60}}, params)
	blob(p, 30, 30, 0.02, 14)

	pts := p.Process()
	if len(pts) > 0 {
		require.True(t, pts[0].Palm)
	}
}

func TestResizeReallocatesScratchBuffers(t *testing.T) {
	p := New(contacts.Config{Size: numeric.Index2{X: 16, Y: 16}}, DefaultParams())
	p.resize(numeric.Index2{X: 32, Y: 20})
	require.Equal(t, 32, p.obj.W)
	require.Equal(t, 20, p.obj.H)
	require.Equal(t, 32*20, len(p.obj.Data))
}
