package numeric

import "math"

// floatT restricts the symmetric-matrix and fitting code to the two
// float kinds in use: float32 for image-space geometry, float64 for
// the Gaussian fit's linear system.
type floatT interface {
	float32 | float64
}

// Epsilon is the per-type zero threshold. Float64 carries the fit's
// linear-system tolerance; Float32 the image-space geometry tolerance.
func Epsilon[T floatT]() T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return T(1e-20)
	default:
		return T(1e-40)
	}
}

// Mat2s is a symmetric 2x2 matrix [[xx, xy], [xy, yy]].
type Mat2s[T floatT] struct {
	XX, XY, YY T
}

func (m Mat2s[T]) Trace() T { return m.XX + m.YY }

func (m Mat2s[T]) Det() T { return m.XX*m.YY - m.XY*m.XY }

func (m Mat2s[T]) Add(o Mat2s[T]) Mat2s[T] {
	return Mat2s[T]{m.XX + o.XX, m.XY + o.XY, m.YY + o.YY}
}

func (m Mat2s[T]) Scale(s T) Mat2s[T] {
	return Mat2s[T]{m.XX * s, m.XY * s, m.YY * s}
}

// Inverse returns the matrix inverse, or false when |det| <= epsilon.
func (m Mat2s[T]) Inverse() (Mat2s[T], bool) {
	det := m.Det()
	if abs(det) <= Epsilon[T]() {
		return Mat2s[T]{}, false
	}
	inv := T(1) / det
	return Mat2s[T]{
		XX: m.YY * inv,
		XY: -m.XY * inv,
		YY: m.XX * inv,
	}, true
}

// Eigen2 holds eigenvalues (largest first) and their unit eigenvectors.
type Eigen2[T floatT] struct {
	Val1, Val2 T
	Vec1, Vec2 Vec2[T]
}

// Eigen returns the closed-form eigendecomposition of a symmetric 2x2
// matrix via the quadratic formula, eigenvalues ordered largest first.
// When xx ~= yy and |xy| <= epsilon both eigenvalues equal trace/2 and
// any orthonormal basis is valid; the standard basis is returned.
func (m Mat2s[T]) Eigen() Eigen2[T] {
	eps := Epsilon[T]()
	if abs(m.XX-m.YY) <= eps && abs(m.XY) <= eps {
		half := m.Trace() / 2
		return Eigen2[T]{
			Val1: half, Val2: half,
			Vec1: Vec2[T]{1, 0}, Vec2: Vec2[T]{0, 1},
		}
	}

	tr := m.Trace()
	det := m.Det()
	disc := (tr*tr)/4 - det
	if disc < 0 {
		disc = 0
	}
	root := sqrtT(disc)
	half := tr / 2
	val1 := half + root
	val2 := half - root

	return Eigen2[T]{
		Val1: val1, Val2: val2,
		Vec1: m.eigenvector(val1),
		Vec2: m.eigenvector(val2),
	}
}

// eigenvector picks the numerically stable row of (M - lambda*I) to
// solve against: whichever diagonal entry sits further from the
// eigenvalue.
func (m Mat2s[T]) eigenvector(eigenvalue T) Vec2[T] {
	var v Vec2[T]
	if abs(m.XX-eigenvalue) > abs(m.YY-eigenvalue) {
		v = Vec2[T]{-m.XY, m.XX - eigenvalue}
	} else {
		v = Vec2[T]{m.YY - eigenvalue, -m.XY}
	}
	n := sqrtT(v.X*v.X + v.Y*v.Y)
	if n <= Epsilon[T]() {
		return Vec2[T]{1, 0}
	}
	return Vec2[T]{v.X / n, v.Y / n}
}

func abs[T floatT](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func sqrtT[T floatT](x T) T {
	return T(math.Sqrt(float64(x)))
}
