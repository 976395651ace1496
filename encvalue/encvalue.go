// Package encvalue implements the encrypted vector type used by the
// encrypted evaluation mode: a length-tagged CKKS ciphertext plus
// a handle to the key bundle it was produced under, with scale/level
// normalization performed before every binary op and an Offload
// sentinel for every op this backend cannot evaluate locally.
package encvalue

import (
	"errors"
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"

	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/value"
)

// ErrOffload is the sentinel the proxy recognizes as "route this op to
// the participant instead of evaluating it locally under encryption".
// It is never a fatal error on its own; only the proxy may recover it.
var ErrOffload = errors.New("encvalue: offload required")

// Vector is a length-tagged CKKS ciphertext. ct is padded to the
// bundle's slot count; length records the original semantic length so
// decrypts truncate correctly.
type Vector struct {
	ct      *rlwe.Ciphertext
	bundle  *keymat.Bundle
	length  int
	// plain retains the cleartext scalar for a constant operand, so
	// division-by-constant and power-with-constant-exponent kernels
	// can use the true value rather than decrypting.
	plain *float64
}

// Len returns the vector's semantic length.
func (v *Vector) Len() int { return v.length }

// Bundle returns the key bundle v was produced under.
func (v *Vector) Bundle() *keymat.Bundle { return v.bundle }

// Ciphertext exposes the underlying ciphertext, e.g. for the
// participant's offload service to decrypt.
func (v *Vector) Ciphertext() *rlwe.Ciphertext { return v.ct }

func offloadf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrOffload, fmt.Sprintf(format, args...))
}

// Encrypt encodes and encrypts a plaintext vector under bundle at the
// bundle's default scale and maximum level.
func Encrypt(bundle *keymat.Bundle, vals value.Vector) (*Vector, error) {
	params := bundle.Params
	pt := hefloatNewPlaintext(bundle)
	floats := make([]float64, pt.Slots())
	copy(floats, vals)
	if err := bundle.Encoder.Encode(floats, pt); err != nil {
		return nil, fmt.Errorf("encvalue: encode: %w", err)
	}
	ct, err := bundle.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encvalue: encrypt: %w", err)
	}
	_ = params
	return &Vector{ct: ct, bundle: bundle, length: vals.Len()}, nil
}

// NewConstant encrypts the scalar c as a length-1 Vector under bundle
// (the DefConst kernel, and the constant-operand construction C3
// performs before every constant-taking op).
func NewConstant(bundle *keymat.Bundle, c float64) (*Vector, error) {
	v, err := Encrypt(bundle, value.Scalar(c))
	if err != nil {
		return nil, err
	}
	v.plain = &c
	return v, nil
}

// Decrypt decrypts v with dec and truncates to its semantic length.
func Decrypt(dec *rlwe.Decryptor, bundle *keymat.Bundle, v *Vector) (value.Vector, error) {
	pt := dec.DecryptNew(v.ct)
	floats := make([]float64, pt.Slots())
	if err := bundle.Encoder.Decode(pt, floats); err != nil {
		return nil, fmt.Errorf("encvalue: decode: %w", err)
	}
	return value.New(floats[:v.length]), nil
}

func hefloatNewPlaintext(bundle *keymat.Bundle) *rlwe.Plaintext {
	return rlwe.NewPlaintext(bundle.Params, bundle.Params.MaxLevel())
}

// levelBudgetBits is the configured maximum combined scale (in bits)
// two operands may carry into a binary op: level-count × 40, where
// level-count is the number of moduli in the chain, i.e. MaxLevel()+1.
func levelBudgetBits(b *keymat.Bundle) float64 {
	return float64((b.Params.MaxLevel() + 1) * 40)
}

// normalize brings a and b to a common modulus-chain level and a
// common canonical power-of-two scale. It never mutates its inputs:
// both returned operands are fresh copies, so resolved-values-table
// entries stay immutable once inserted.
func normalize(b *keymat.Bundle, a0, b0 *Vector) (*Vector, *Vector, error) {
	a := a0.ct.CopyNew()
	c := b0.ct.CopyNew()
	eval := b.Evaluator

	roundScale := func(ct *rlwe.Ciphertext) int {
		return int(math.Round(ct.LogScale()))
	}

	budget := levelBudgetBits(b)
	for float64(roundScale(a)+roundScale(c)) > budget {
		// Rescale the operand with more multiplicative budget
		// remaining (the shallower chain position), tie-broken
		// toward a ("self").
		var target *rlwe.Ciphertext
		if a.Level() >= c.Level() {
			target = a
		} else {
			target = c
		}
		if target.Level() == 0 {
			return nil, nil, offloadf("budget guard exhausted at level 0")
		}
		if err := eval.Rescale(target, target); err != nil {
			return nil, nil, offloadf("budget guard rescale: %v", err)
		}
	}

	// Scale match: rescale the operand with the larger scale down to
	// the smaller one.
	for roundScale(a) != roundScale(c) {
		var target *rlwe.Ciphertext
		if roundScale(a) > roundScale(c) {
			target = a
		} else {
			target = c
		}
		if target.Level() == 0 {
			return nil, nil, offloadf("scale match exhausted at level 0")
		}
		before := roundScale(target)
		if err := eval.Rescale(target, target); err != nil {
			return nil, nil, offloadf("scale match rescale: %v", err)
		}
		if roundScale(target) == before {
			// Rescale made no progress; avoid spinning forever.
			return nil, nil, offloadf("scale match made no progress")
		}
	}

	// Level match: the two operands may still sit at different chain
	// positions despite matching scale (e.g. one took an extra
	// budget-guard rescale); drop the shallower one further so both
	// share the deeper position. Dropping levels leaves the scale as is.
	if a.Level() > c.Level() {
		eval.DropLevel(a, a.Level()-c.Level())
	} else if c.Level() > a.Level() {
		eval.DropLevel(c, c.Level()-a.Level())
	}

	if a.Degree() > 1 {
		if err := eval.Relinearize(a, a); err != nil {
			return nil, nil, offloadf("relinearize: %v", err)
		}
	}
	if c.Degree() > 1 {
		if err := eval.Relinearize(c, c); err != nil {
			return nil, nil, offloadf("relinearize: %v", err)
		}
	}

	canonical := rlwe.NewScale(math.Exp2(math.Round(a.LogScale())))
	a.Scale = canonical
	c.Scale = canonical

	return &Vector{ct: a, bundle: b, length: a0.length}, &Vector{ct: c, bundle: b, length: b0.length}, nil
}

// binOp is the shape shared by Evaluator.Add, .Sub and .MulRelin: an
// operand combined with op1 (here always a ciphertext) into opOut.
type binOp func(op0 *rlwe.Ciphertext, op1 interface{}, opOut *rlwe.Ciphertext) error

func combine(op string, a0, b0 *Vector, f binOp) (*Vector, error) {
	if a0.bundle != b0.bundle {
		return nil, fmt.Errorf("encvalue: %s: operands bound to different key bundles", op)
	}
	if a0.length != b0.length {
		return nil, &value.DimensionError{Op: op, Len0: a0.length, Len1: b0.length}
	}
	a, c, err := normalize(a0.bundle, a0, b0)
	if err != nil {
		return nil, err
	}
	out := a.ct.CopyNew()
	if err := f(a.ct, c.ct, out); err != nil {
		return nil, offloadf("%s: %v", op, err)
	}
	return &Vector{ct: out, bundle: a0.bundle, length: a0.length}, nil
}

// Add returns a+b.
func Add(a, b *Vector) (*Vector, error) {
	return combine("Addition", a, b, a.bundle.Evaluator.Add)
}

// Sub returns a-b.
func Sub(a, b *Vector) (*Vector, error) {
	return combine("Subtraction", a, b, a.bundle.Evaluator.Sub)
}

// Mul returns a*b, relinearized and rescaled to the next level (a
// multiplication consumes one level of budget). If either operand
// carries a known cleartext scalar (built via NewConstant, as
// MultiplicationConst and DivisionVarConst's reciprocal both do), the
// plaintext fast path is taken instead: a ciphertext-times-float64
// multiply needs no relinearization and broadcasts the scalar across
// every slot regardless of the other operand's semantic length.
func Mul(a, b *Vector) (*Vector, error) {
	if b.plain != nil {
		return mulConst(a, *b.plain)
	}
	if a.plain != nil {
		return mulConst(b, *a.plain)
	}
	out, err := combine("Multiplication", a, b, a.bundle.Evaluator.MulRelin)
	if err != nil {
		return nil, err
	}
	if out.ct.Level() == 0 {
		return nil, offloadf("multiplication: no budget left to rescale")
	}
	if err := a.bundle.Evaluator.Rescale(out.ct, out.ct); err != nil {
		return nil, offloadf("multiplication rescale: %v", err)
	}
	return out, nil
}

// mulConst is Mul's plaintext-scalar fast path.
func mulConst(v *Vector, c float64) (*Vector, error) {
	out := v.ct.CopyNew()
	if err := v.bundle.Evaluator.Mul(v.ct, c, out); err != nil {
		return nil, offloadf("multiplication by constant: %v", err)
	}
	if out.LogScale() <= v.ct.LogScale()+1 {
		// The scalar was applied without raising the scale (an integer
		// constant), so there is nothing to rescale.
		return &Vector{ct: out, bundle: v.bundle, length: v.length}, nil
	}
	if out.Level() == 0 {
		return nil, offloadf("multiplication by constant: no budget left to rescale")
	}
	if err := v.bundle.Evaluator.Rescale(out, out); err != nil {
		return nil, offloadf("multiplication by constant rescale: %v", err)
	}
	return &Vector{ct: out, bundle: v.bundle, length: v.length}, nil
}

// Neg returns -a.
func Neg(a *Vector) (*Vector, error) {
	out := a.ct.CopyNew()
	if err := a.bundle.Evaluator.Mul(a.ct, -1.0, out); err != nil {
		return nil, offloadf("negate: %v", err)
	}
	return &Vector{ct: out, bundle: a.bundle, length: a.length}, nil
}

// AddN folds a+b+... over n≥1 operands.
func AddN(vs ...*Vector) (*Vector, error) {
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
func SubN(vs ...*Vector) (*Vector, error) {
	out := vs[0]
	var err error
	for _, v := range vs[1:] {
		if out, err = Sub(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MulN folds vs[0]*vs[1]*... over n≥1 operands. The proxy's
// local-eligibility predicate only ever routes this locally when every
// operand's semantic length is ≤1; MulN itself does not enforce that
// rule.
func MulN(vs ...*Vector) (*Vector, error) {
	out := vs[0]
	var err error
	for _, v := range vs[1:] {
		if out, err = Mul(out, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PowConst raises v to an integer constant exponent via repeated
// squaring, the only constant-exponent case this backend ever
// evaluates locally.
func PowConst(v *Vector, exponent float64) (*Vector, error) {
	n := int(exponent)
	if float64(n) != exponent || n < 0 {
		return nil, offloadf("PowerConst: exponent %v is not a non-negative integer", exponent)
	}
	if n == 0 {
		return NewConstant(v.bundle, 1)
	}
	var result *Vector
	base := v
	var err error
	for {
		if n&1 == 1 {
			if result == nil {
				result = base
			} else if result, err = Mul(result, base); err != nil {
				return nil, err
			}
		}
		if n >>= 1; n == 0 {
			return result, nil
		}
		if base, err = Mul(base, base); err != nil {
			return nil, err
		}
	}
}

// SumOverN folds v down to a length-1 Vector holding the sum of its
// slots, via ceil(log2(length)) rounds of rotate-by-2^i and
// add-in-place. After the last round, slot 0 already holds the full
// sum: doubling the rotate distance each round until it reaches or
// exceeds n means every slot has been folded into the accumulator, so
// no remainder round is needed even when n is not a power of two.
func SumOverN(v *Vector) (*Vector, error) {
	n := v.length
	if n <= 1 {
		out := v.ct.CopyNew()
		return &Vector{ct: out, bundle: v.bundle, length: 1}, nil
	}

	acc := v.ct.CopyNew()
	eval := v.bundle.Evaluator

	shift := 1
	for shift < n {
		rotated, err := eval.RotateNew(acc, shift)
		if err != nil {
			return nil, offloadf("sum-over-n rotate(%d): %v", shift, err)
		}
		if err := eval.Add(acc, rotated, acc); err != nil {
			return nil, offloadf("sum-over-n add: %v", err)
		}
		shift <<= 1
	}

	return &Vector{ct: acc, bundle: v.bundle, length: 1}, nil
}
