package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"iptsd/internal/config"
)

func testConfig() *config.Config {
	c := config.Default()
	c.General.Width = 1920
	c.General.Height = 1280
	return c
}

func TestNewManagerRejectsZeroPanelSize(t *testing.T) {
	_, err := NewManager(config.Default(), 10)
	require.Error(t, err)

	m, err := NewManager(testConfig(), 10)
	require.NoError(t, err)
	require.NotNil(t, m.Touch)
	require.NotNil(t, m.DFTStylus)
}

func TestGetStylusReusesPlaceholderSlot(t *testing.T) {
	m, err := NewManager(testConfig(), 10)
	require.NoError(t, err)

	// The constructor creates one placeholder channel with serial 0;
	// the first real serial claims it instead of allocating.
	s := m.GetStylus(0xdeadbeef)
	require.EqualValues(t, 0xdeadbeef, s.Serial)
	require.Same(t, s, m.GetStylus(0xdeadbeef))

	other := m.GetStylus(0x1234)
	require.NotSame(t, s, other)
	require.Same(t, s, m.GetStylus(0xdeadbeef))
}

func TestProcessHeatmapAllBackgroundYieldsEmptyReport(t *testing.T) {
	conf := testConfig()
	conf.Touch.Processing = "basic"
	m, err := NewManager(conf, 10)
	require.NoError(t, err)

	frame := HeatmapFrame{Width: 16, Height: 16, Data: make([]uint8, 16*16)}
	report, ok := m.Touch.ProcessHeatmap(time.Now(), frame)
	require.True(t, ok)
	require.NotNil(t, report.Touch)
	require.Equal(t, 0, report.Touch.ContactNum)
}

func TestProcessSingletouchPassthrough(t *testing.T) {
	m, err := NewManager(testConfig(), 10)
	require.NoError(t, err)

	report := m.Touch.ProcessSingletouch(SingletouchFrame{Touch: true, X: 100, Y: 200})
	require.NotNil(t, report.Touch)
	require.Equal(t, 1, report.Touch.ContactNum)
	require.EqualValues(t, 100, report.Touch.Fingers[0].X)
	require.EqualValues(t, 200, report.Touch.Fingers[0].Y)
}

func TestClassicStylusProximityTogglesStatus(t *testing.T) {
	m, err := NewManager(testConfig(), 10)
	require.NoError(t, err)
	s := m.GetStylus(1)

	_, status := s.ProcessStylusInput(time.Now(), ClassicStylusFrame{Serial: 1, Proximity: true, X: 4800, Y: 3600})
	require.Equal(t, 1, status)

	_, status = s.ProcessStylusInput(time.Now(), ClassicStylusFrame{Serial: 1, Proximity: true})
	require.Equal(t, 0, status)

	_, status = s.ProcessStylusInput(time.Now(), ClassicStylusFrame{Serial: 1})
	require.Equal(t, -1, status)
}
