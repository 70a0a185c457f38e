package touch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"iptsd/internal/contacts"
	"iptsd/internal/numeric"
)

func baseConfig() Config {
	return Config{
		MaxContacts:     4,
		TouchStability:  true,
		StabilityThresh: 50,
	}
}

func TestProcessNoContactsYieldsInactiveSlots(t *testing.T) {
	m := New(baseConfig())
	out := m.Process(time.Now(), Frame{Diagonal: 1000}, nil)

	require.Len(t, out, 4)
	for _, in := range out {
		require.False(t, in.Active)
	}
}

func TestProcessSingleContactBecomesActiveSlot(t *testing.T) {
	m := New(baseConfig())
	now := time.Now()

	points := []contacts.TouchPoint{{
		Mean:  numeric.Vec2[float32]{X: 0.5, Y: 0.5},
		Cov:   numeric.Mat2s[float32]{XX: 4, XY: 0, YY: 2},
		Scale: 1,
	}}

	out := m.Process(now, Frame{Diagonal: 1000}, points)
	require.True(t, out[0].Active)
	require.InDelta(t, 0.5, out[0].X, 1e-9)
	require.InDelta(t, 0.5, out[0].Y, 1e-9)
	require.False(t, out[0].Tracked)
}

func TestTrackingPreservesIndexAcrossFrames(t *testing.T) {
	m := New(baseConfig())
	frame := Frame{Diagonal: 1000}

	p1 := []contacts.TouchPoint{{
		Mean: numeric.Vec2[float32]{X: 0.2, Y: 0.2},
		Cov:  numeric.Mat2s[float32]{XX: 4, XY: 0, YY: 4},
	}}
	out1 := m.Process(time.Now(), frame, p1)
	require.True(t, out1[0].Active)
	firstIndex := out1[0].Index

	p2 := []contacts.TouchPoint{{
		Mean: numeric.Vec2[float32]{X: 0.201, Y: 0.199},
		Cov:  numeric.Mat2s[float32]{XX: 4, XY: 0, YY: 4},
	}}
	out2 := m.Process(time.Now(), frame, p2)
	require.True(t, out2[0].Tracked)
	require.Equal(t, firstIndex, out2[0].Index)
}

func point(x, y float32) contacts.TouchPoint {
	return contacts.TouchPoint{
		Mean: numeric.Vec2[float32]{X: x, Y: y},
		Cov:  numeric.Mat2s[float32]{XX: 4, XY: 0, YY: 4},
	}
}

func TestGhostingSingleDropCarriesSlotForward(t *testing.T) {
	m := New(baseConfig())
	frame := Frame{Diagonal: 1000}

	both := []contacts.TouchPoint{point(0.2, 0.2), point(0.8, 0.8)}
	m.Process(time.Now(), frame, both)
	out2 := m.Process(time.Now(), frame, both)

	indices := map[uint8]bool{}
	for _, in := range out2 {
		if in.Active {
			indices[in.Index] = true
		}
	}
	require.Len(t, indices, 2)

	// Frame 3 misses the second contact; its slot is carried forward
	// one frame with an instability bump instead of being dropped.
	out3 := m.Process(time.Now(), frame, both[:1])
	active := 0
	carried := false
	for _, in := range out3 {
		if !in.Active {
			continue
		}
		active++
		require.True(t, indices[in.Index], "carried slot keeps its index")
		if in.Instability == 1 {
			carried = true
		}
	}
	require.Equal(t, 2, active)
	require.True(t, carried)

	// Frame 4 sees both again; the original indices survive.
	out4 := m.Process(time.Now(), frame, both)
	for _, in := range out4 {
		if in.Active {
			require.True(t, indices[in.Index])
		}
	}
}

func TestInstabilityAccrualDropsSlot(t *testing.T) {
	conf := baseConfig()
	conf.StabilityThresh = 0.1
	m := New(conf)
	frame := Frame{Diagonal: 1000}

	unstable := func(ev float32) []contacts.TouchPoint {
		return []contacts.TouchPoint{{
			Mean: numeric.Vec2[float32]{X: 0.5, Y: 0.5},
			Cov:  numeric.Mat2s[float32]{XX: ev, XY: 0, YY: ev},
		}}
	}

	ev := float32(4)
	m.Process(time.Now(), frame, unstable(ev))
	for i := 0; i < InstabilityThreshold; i++ {
		ev += 100 // eigenvalue delta far above the threshold
		out := m.Process(time.Now(), frame, unstable(ev))
		require.Equal(t, uint8(i+1), out[0].Instability)
	}

	// The slot hit the instability ceiling, so the next frame's
	// assignment drops it: the new contact starts fresh, untracked.
	out := m.Process(time.Now(), frame, unstable(ev))
	require.True(t, out[0].Active)
	require.False(t, out[0].Tracked)
	require.Equal(t, uint8(0), out[0].Instability)
}

func TestActiveIndicesUniquePerFrame(t *testing.T) {
	m := New(baseConfig())
	frame := Frame{Diagonal: 1000}

	pts := []contacts.TouchPoint{point(0.1, 0.1), point(0.5, 0.5), point(0.9, 0.9)}
	m.Process(time.Now(), frame, pts)
	out := m.Process(time.Now(), frame, pts)

	seen := map[uint8]bool{}
	for _, in := range out {
		if !in.Active {
			continue
		}
		require.False(t, seen[in.Index], "index %d reported twice", in.Index)
		seen[in.Index] = true
	}
}

func TestPalmContactExcludedFromActiveSlots(t *testing.T) {
	m := New(baseConfig())
	points := []contacts.TouchPoint{
		{Mean: numeric.Vec2[float32]{X: 0.3, Y: 0.3}, Cov: numeric.Mat2s[float32]{XX: 1, YY: 1}},
		{Mean: numeric.Vec2[float32]{X: 0.7, Y: 0.7}, Cov: numeric.Mat2s[float32]{XX: 1, YY: 1}, Palm: true},
	}

	out := m.Process(time.Now(), Frame{Diagonal: 1000}, points)

	activeNonPalm := 0
	for _, in := range out {
		if in.Active && !in.Palm {
			activeNonPalm++
		}
	}
	require.Equal(t, 1, activeNonPalm)
}
