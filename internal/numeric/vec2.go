// Package numeric provides the 2D image and small symmetric-matrix
// primitives the touch pipeline is built on: a strided Image[T], a
// closed-form 2x2 symmetric eigensolver, and the fixed convolution
// kernels used for preprocessing.
package numeric

// Vec2 is a 2-component vector over any numeric type.
type Vec2[T float32 | float64 | int | uint16] struct {
	X, Y T
}

func (v Vec2[T]) Add(o Vec2[T]) Vec2[T] { return Vec2[T]{v.X + o.X, v.Y + o.Y} }
func (v Vec2[T]) Sub(o Vec2[T]) Vec2[T] { return Vec2[T]{v.X - o.X, v.Y - o.Y} }
func (v Vec2[T]) Scale(s T) Vec2[T]     { return Vec2[T]{v.X * s, v.Y * s} }

// Index2 is an integer (width, height) / (x, y) pair used for sizes
// and coordinates.
type Index2 struct {
	X, Y int
}
