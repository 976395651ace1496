// Package value implements the plaintext vector type used by the
// cleartext evaluation mode. A Vector is length-tagged and immutable
// under arithmetic: every operation returns a freshly allocated Vector,
// leaving its operands untouched.
package value

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Vector is an ordered sequence of real numbers. A scalar is a Vector
// of length 1.
type Vector []float64

// New copies vals into a new Vector.
func New(vals []float64) Vector {
	v := make(Vector, len(vals))
	copy(v, vals)
	return v
}

// Scalar returns a length-1 Vector holding x.
func Scalar(x float64) Vector {
	return Vector{x}
}

// Len returns the vector's length.
func (v Vector) Len() int {
	return len(v)
}

// DimensionError reports a binary operation invoked on operands of
// unequal length.
type DimensionError struct {
	Op       string
	Len0     int
	Len1     int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("value: %s: operand length mismatch (%d vs %d)", e.Op, e.Len0, e.Len1)
}

func requireEqualLen(op string, a, b Vector) error {
	if len(a) != len(b) {
		return &DimensionError{Op: op, Len0: len(a), Len1: len(b)}
	}
	return nil
}

func elementwise(op string, a, b Vector, f func(x, y float64) float64) (Vector, error) {
	if err := requireEqualLen(op, a, b); err != nil {
		return nil, err
	}
	out := make(Vector, len(a))
	for i := range a {
		out[i] = f(a[i], b[i])
	}
	return out, nil
}

// Add returns a+b elementwise.
func Add(a, b Vector) (Vector, error) {
	return elementwise("Addition", a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a-b elementwise.
func Sub(a, b Vector) (Vector, error) {
	return elementwise("Subtraction", a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns a*b elementwise.
func Mul(a, b Vector) (Vector, error) {
	return elementwise("Multiplication", a, b, func(x, y float64) float64 { return x * y })
}

// Div returns a/b elementwise.
func Div(a, b Vector) (Vector, error) {
	return elementwise("Division", a, b, func(x, y float64) float64 { return x / y })
}

// Pow returns a**b elementwise.
func Pow(a, b Vector) (Vector, error) {
	return elementwise("Power", a, b, math.Pow)
}

// Neg returns -a elementwise.
func (v Vector) Neg() Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = -x
	}
	return out
}

// AddConst returns v+c elementwise.
func (v Vector) AddConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return x + c })
}

// SubVarConst returns v-c elementwise (constant is the subtrahend).
func (v Vector) SubVarConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return x - c })
}

// SubConstVar returns c-v elementwise (constant is the minuend).
func (v Vector) SubConstVar(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return c - x })
}

// MulConst returns v*c elementwise.
func (v Vector) MulConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return x * c })
}

// DivVarConst returns v/c elementwise (constant is the divisor).
func (v Vector) DivVarConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return x / c })
}

// DivConstVar returns c/v elementwise (constant is the dividend).
func (v Vector) DivConstVar(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return c / x })
}

// PowConst returns v**c elementwise (constant is the exponent).
func (v Vector) PowConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return math.Pow(x, c) })
}

// PowBaseConst returns c**v elementwise (constant is the base).
func (v Vector) PowBaseConst(c float64) Vector {
	return mapConst(v, func(x float64) float64 { return math.Pow(c, x) })
}

func mapConst(v Vector, f func(float64) float64) Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = f(x)
	}
	return out
}

// Sqrt takes the absolute value of every slot before taking its square
// root. Formulas in this catalog assume non-negative inputs; taking
// abs first avoids NaN propagation on rounding-induced negative drift
// at the cost of silently masking a genuine sign error.
func (v Vector) Sqrt() Vector {
	return mapConst(v, func(x float64) float64 { return math.Sqrt(math.Abs(x)) })
}

// HasNegative reports whether any slot is strictly negative, used by
// callers that want to surface the sign-masking warning Sqrt hides.
func (v Vector) HasNegative() bool {
	for _, x := range v {
		if x < 0 {
			return true
		}
	}
	return false
}

// Abs returns |v| elementwise.
func (v Vector) Abs() Vector {
	return mapConst(v, math.Abs)
}

// SumOverN folds v down to a length-1 Vector holding the sum of its
// slots.
func (v Vector) SumOverN() Vector {
	return Scalar(Sum(v))
}

// MinOverN folds v down to a length-1 Vector holding its minimum slot.
func (v Vector) MinOverN() Vector {
	return Scalar(Min(v))
}

// MaxOverN folds v down to a length-1 Vector holding its maximum slot.
func (v Vector) MaxOverN() Vector {
	return Scalar(Max(v))
}

// Sum returns the sum of v's slots.
func Sum[T constraints.Float](v []T) T {
	var s T
	for _, x := range v {
		s += x
	}
	return s
}

// Min returns the smallest slot in v.
func Min[T constraints.Float](v []T) T {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest slot in v.
func Max[T constraints.Float](v []T) T {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Less implements the catalog's lexicographic tie-break order: compare
// slot by slot, the first differing slot decides, and a strict prefix
// is smaller.
func Less(a, b Vector) bool {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return a.Len() < b.Len()
}

// MinVec returns the lexicographically smallest of vs.
func MinVec(vs ...Vector) Vector {
	m := vs[0]
	for _, v := range vs[1:] {
		if Less(v, m) {
			m = v
		}
	}
	return m
}

// MaxVec returns the lexicographically largest of vs.
func MaxVec(vs ...Vector) Vector {
	m := vs[0]
	for _, v := range vs[1:] {
		if Less(m, v) {
			m = v
		}
	}
	return m
}

// AddN folds a+b+... over n≥1 operands.
func AddN(vs ...Vector) (Vector, error) {
	out := vs[0]
	var err error
	for _, v := range vs[1:] {
		if out, err = Add(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SubN folds vs[0]-vs[1]-... over n≥1 operands.
func SubN(vs ...Vector) (Vector, error) {
	out := vs[0]
	var err error
	for _, v := range vs[1:] {
		if out, err = Sub(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MulN folds vs[0]*vs[1]*... over n≥1 operands.
func MulN(vs ...Vector) (Vector, error) {
	out := vs[0]
	var err error
	for _, v := range vs[1:] {
		if out, err = Mul(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
