package cone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAliveAndActiveWindows(t *testing.T) {
	c := New(30, 1600)
	require.False(t, c.Alive())

	now := time.Now()
	c.UpdatePosition(now, 0.5, 0.5)
	require.True(t, c.Alive())
	require.True(t, c.Active(now.Add(200*time.Millisecond)))
	require.False(t, c.Active(now.Add(400*time.Millisecond)))
}

func TestUpdateDirectionNormalizes(t *testing.T) {
	c := New(30, 1600)
	now := time.Now()
	c.UpdatePosition(now, 0.5, 0.5)
	c.UpdateDirection(now, 0.8, 0.5)

	require.InDelta(t, 1, c.DX, 1e-3)
	require.InDelta(t, 0, c.DY, 1e-3)
}

func TestCheckPassesAlongDirection(t *testing.T) {
	c := New(30, 1600)
	now := time.Now()
	c.UpdatePosition(now, 0.0, 0.5)
	c.UpdateDirection(now, 0.5, 0.5)

	// The angular test compares the raw projection against cos(angle),
	// so a point well down the direction vector passes while one just
	// ahead of the anchor does not.
	require.True(t, c.Check(now, 1.0, 0.5))
	require.False(t, c.Check(now, 0.1, 0.5))
}

func TestCheckInactiveConeNeverMatches(t *testing.T) {
	c := New(30, 1600)
	now := time.Now()
	c.UpdatePosition(now, 0.5, 0.5)
	c.UpdateDirection(now, 1.0, 0.5)

	later := now.Add(time.Second)
	require.False(t, c.Check(later, 1.5, 0.5))
}
