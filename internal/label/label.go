// Package label implements two-pass Fiorio-Gustedt union-find connected
// component labeling over a thresholded image, with 4- or 8-connectivity.
package label

import (
	"math"

	"iptsd/internal/numeric"
)

// Numeric is the set of sample types a thresholded source image can hold.
type Numeric interface {
	~uint8 | ~uint16 | ~int32 | ~float32 | ~float64
}

// Connectivity selects 4- or 8-connected neighbor merging.
type Connectivity int

const (
	Connectivity4 Connectivity = 4
	Connectivity8 Connectivity = 8
)

const noBackground uint16 = math.MaxUint16

// Label runs two-pass union-find labeling of data against threshold,
// writing labels into out (resized to data's dimensions) and returning
// the number of foreground components found. Label 0 is background,
// labels 1..N are foreground components. Ties during merge are broken
// by lower linear index.
func Label[T Numeric](out *numeric.Image[uint16], data numeric.Image[T], threshold T, conn Connectivity) uint16 {
	out.Resize(data.W, data.H)
	forest := out.Data
	n := len(data.Data)
	if n == 0 {
		return 0
	}

	background := findBackground(data.Data, threshold)

	sLeft := 1
	sUp := data.W
	sUpLeft := sUp + 1
	sUpRight := sUp - 1

	isBG := func(i int) bool { return data.Data[i] <= threshold }

	// x = 0, y = 0
	if isBG(0) {
		forest[0] = background
	} else {
		forest[0] = 0
	}

	i := 1
	// 0 < x < w, y = 0
	for ; i < data.W; i++ {
		if isBG(i) {
			forest[i] = background
			continue
		}
		forest[i] = uint16(i)
		merge(forest, i, uint16(i), i-sLeft, background)
	}

	for i < n {
		// x = 0
		var root uint16
		idx := i
		if isBG(i) {
			forest[i] = background
		} else {
			forest[i] = uint16(i)
			root = uint16(i)
			_, root = merge(forest, i, root, i-sUp, background)
			if conn == Connectivity8 {
				_, root = merge(forest, idx, root, i-sUpRight, background)
			}
		}
		i++

		limit := i + data.W - 2
		for ; i < limit; i++ {
			if isBG(i) {
				forest[i] = background
				continue
			}
			forest[i] = uint16(i)
			cur := i
			root := uint16(i)
			cur, root = merge(forest, cur, root, i-sLeft, background)
			if conn == Connectivity8 {
				cur, root = merge(forest, cur, root, i-sUpLeft, background)
			}
			cur, root = merge(forest, cur, root, i-sUp, background)
			if conn == Connectivity8 {
				cur, root = merge(forest, cur, root, i-sUpRight, background)
			}
			_ = cur
		}

		// x = w-1, y > 0
		if i < n {
			if isBG(i) {
				forest[i] = background
			} else {
				forest[i] = uint16(i)
				cur := i
				root := uint16(i)
				cur, root = merge(forest, cur, root, i-sLeft, background)
				if conn == Connectivity8 {
					cur, root = merge(forest, cur, root, i-sUpLeft, background)
				}
				_, _ = merge(forest, cur, root, i-sUp, background)
			}
			i++
		}
	}

	return resolve(forest, background)
}

func findBackground[T Numeric](data []T, threshold T) uint16 {
	for i, v := range data {
		if v <= threshold {
			return uint16(i)
		}
	}
	return noBackground
}

func isRoot(forest []uint16, idx int) bool { return uint16(idx) == forest[idx] }

func findRoot(forest []uint16, idx int) uint16 {
	for !isRoot(forest, idx) {
		idx = int(forest[idx])
	}
	return uint16(idx)
}

func setRoot(forest []uint16, idx int, newRoot uint16) {
	for !isRoot(forest, idx) {
		next := forest[idx]
		forest[idx] = newRoot
		idx = int(next)
	}
	forest[idx] = newRoot
}

// merge merges the tree rooted at t1Root (containing t1Index) with the
// tree containing t2Index, if t2Index is foreground. Returns the
// representative (index, root) of the resulting union, by lower root
// index.
func merge(forest []uint16, t1Index int, t1Root uint16, t2Index int, background uint16) (int, uint16) {
	if t2Index < 0 || t2Index >= len(forest) {
		return t1Index, t1Root
	}
	if forest[t2Index] == background {
		return t1Index, t1Root
	}

	t2Root := findRoot(forest, t2Index)
	switch {
	case t2Root < t1Root:
		setRoot(forest, t1Index, t2Root)
		return t2Index, t2Root
	case t1Root < t2Root:
		setRoot(forest, t2Index, t1Root)
		return t1Index, t1Root
	default:
		return t1Index, t1Root
	}
}

func resolve(forest []uint16, background uint16) uint16 {
	var nLabels uint16
	for i := range forest {
		if uint16(i) == background {
			forest[i] = 0
			continue
		}
		if isRoot(forest, i) {
			nLabels++
			forest[i] = nLabels
		} else {
			forest[i] = forest[forest[i]]
		}
	}
	return nLabels
}
