package label

import (
	"testing"

	"github.com/stretchr/testify/require"

	"iptsd/internal/numeric"
)

func gridImage(w, h int, fg map[[2]int]bool) numeric.Image[uint8] {
	im := numeric.NewImage[uint8](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if fg[[2]int{x, y}] {
				im.Set(x, y, 255)
			}
		}
	}
	return im
}

func TestLabelAllBackground(t *testing.T) {
	im := numeric.NewImage[uint8](4, 4)
	var out numeric.Image[uint16]
	n := Label(&out, im, uint8(10), Connectivity4)
	require.Equal(t, uint16(0), n)
	for _, v := range out.Data {
		require.Equal(t, uint16(0), v)
	}
}

func TestLabelTwoComponents4Conn(t *testing.T) {
	fg := map[[2]int]bool{
		{0, 0}: true, {1, 0}: true,
		{3, 3}: true,
	}
	im := gridImage(4, 4, fg)
	var out numeric.Image[uint16]
	n := Label(&out, im, uint8(10), Connectivity4)
	require.Equal(t, uint16(2), n)
	require.Equal(t, out.At(0, 0), out.At(1, 0))
	require.NotEqual(t, out.At(0, 0), out.At(3, 3))
	require.Equal(t, uint16(0), out.At(2, 2))
}

func TestLabelDiagonalNeedsConnectivity8(t *testing.T) {
	fg := map[[2]int]bool{
		{0, 0}: true, {1, 1}: true,
	}
	im := gridImage(2, 2, fg)

	var out4 numeric.Image[uint16]
	n4 := Label(&out4, im, uint8(10), Connectivity4)
	require.Equal(t, uint16(2), n4)

	var out8 numeric.Image[uint16]
	n8 := Label(&out8, im, uint8(10), Connectivity8)
	require.Equal(t, uint16(1), n8)
	require.Equal(t, out8.At(0, 0), out8.At(1, 1))
}

func TestLabelIdempotent(t *testing.T) {
	fg := map[[2]int]bool{
		{1, 1}: true, {2, 1}: true, {1, 2}: true,
		{5, 5}: true,
	}
	im := gridImage(8, 8, fg)

	var out1, out2 numeric.Image[uint16]
	n1 := Label(&out1, im, uint8(10), Connectivity4)
	n2 := Label(&out2, im, uint8(10), Connectivity4)
	require.Equal(t, n1, n2)
	require.Equal(t, out1.Data, out2.Data)
}
