package encvalue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/value"
)

// testBundle builds an Owner with enough level budget for a handful of
// chained multiplications without exhausting the modulus chain.
func testBundle(t *testing.T) *keymat.Owner {
	t.Helper()
	owner, err := keymat.NewOwner(catalog.CryptoConfig{Polymod: 16384, Level: 6, Scale: 1 << 40})
	require.NoError(t, err)
	return owner
}

func decrypt(t *testing.T, owner *keymat.Owner, v *Vector) value.Vector {
	t.Helper()
	out, err := Decrypt(owner.Decryptor, owner.Bundle, v)
	require.NoError(t, err)
	return out
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	owner := testBundle(t)
	want := value.New([]float64{1, -2.5, 3.75, 0})
	ct, err := Encrypt(owner.Bundle, want)
	require.NoError(t, err)
	require.Equal(t, 4, ct.Len())

	got := decrypt(t, owner, ct)
	require.Len(t, got, 4)
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-4)
	}
}

func TestAddSubMul(t *testing.T) {
	owner := testBundle(t)
	a, err := Encrypt(owner.Bundle, value.New([]float64{1, 2, 3}))
	require.NoError(t, err)
	b, err := Encrypt(owner.Bundle, value.New([]float64{10, 20, 30}))
	require.NoError(t, err)

	sum, err := Add(a, b)
	require.NoError(t, err)
	gotSum := decrypt(t, owner, sum)
	require.InDelta(t, 11.0, gotSum[0], 1e-3)
	require.InDelta(t, 22.0, gotSum[1], 1e-3)
	require.InDelta(t, 33.0, gotSum[2], 1e-3)

	diff, err := Sub(b, a)
	require.NoError(t, err)
	gotDiff := decrypt(t, owner, diff)
	require.InDelta(t, 9.0, gotDiff[0], 1e-3)

	prod, err := Mul(a, b)
	require.NoError(t, err)
	gotProd := decrypt(t, owner, prod)
	require.InDelta(t, 10.0, gotProd[0], 1e-2)
	require.InDelta(t, 40.0, gotProd[1], 1e-2)
	require.InDelta(t, 90.0, gotProd[2], 1e-2)
}

func TestMulDimensionMismatch(t *testing.T) {
	owner := testBundle(t)
	a, err := Encrypt(owner.Bundle, value.New([]float64{1, 2}))
	require.NoError(t, err)
	b, err := Encrypt(owner.Bundle, value.New([]float64{1, 2, 3}))
	require.NoError(t, err)

	_, err = Mul(a, b)
	require.Error(t, err)
	var dimErr *value.DimensionError
	require.ErrorAs(t, err, &dimErr)
}

func TestMulNChainConsumesLevels(t *testing.T) {
	owner := testBundle(t)
	a, err := Encrypt(owner.Bundle, value.New([]float64{2}))
	require.NoError(t, err)
	b, err := Encrypt(owner.Bundle, value.New([]float64{3}))
	require.NoError(t, err)
	c, err := Encrypt(owner.Bundle, value.New([]float64{5}))
	require.NoError(t, err)

	prod, err := MulN(a, b, c)
	require.NoError(t, err)
	got := decrypt(t, owner, prod)
	require.InDelta(t, 30.0, got[0], 1e-2)
}

func TestMulByConstantBroadcastsAcrossLength(t *testing.T) {
	owner := testBundle(t)
	v, err := Encrypt(owner.Bundle, value.New([]float64{1, 2, 3}))
	require.NoError(t, err)
	c, err := NewConstant(owner.Bundle, 4)
	require.NoError(t, err)

	prod, err := Mul(v, c)
	require.NoError(t, err)
	require.Equal(t, 3, prod.Len())
	got := decrypt(t, owner, prod)
	require.InDelta(t, 4.0, got[0], 1e-2)
	require.InDelta(t, 8.0, got[1], 1e-2)
	require.InDelta(t, 12.0, got[2], 1e-2)
}

func TestPowConstIntegerExponent(t *testing.T) {
	owner := testBundle(t)
	v, err := Encrypt(owner.Bundle, value.New([]float64{2, 3}))
	require.NoError(t, err)

	cubed, err := PowConst(v, 3)
	require.NoError(t, err)
	got := decrypt(t, owner, cubed)
	require.InDelta(t, 8.0, got[0], 1e-1)
	require.InDelta(t, 27.0, got[1], 1e-1)
}

func TestPowConstNonIntegerOffloads(t *testing.T) {
	owner := testBundle(t)
	v, err := Encrypt(owner.Bundle, value.New([]float64{2}))
	require.NoError(t, err)

	_, err = PowConst(v, 0.5)
	require.True(t, errors.Is(err, ErrOffload))
}

func TestSumOverN(t *testing.T) {
	owner := testBundle(t)
	v, err := Encrypt(owner.Bundle, value.New([]float64{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	summed, err := SumOverN(v)
	require.NoError(t, err)
	require.Equal(t, 1, summed.Len())
	got := decrypt(t, owner, summed)
	require.InDelta(t, 15.0, got[0], 1e-2)
}

func TestNewConstantRetainsPlain(t *testing.T) {
	owner := testBundle(t)
	v, err := NewConstant(owner.Bundle, 4.5)
	require.NoError(t, err)
	require.NotNil(t, v.plain)
	require.InDelta(t, 4.5, *v.plain, 1e-9)
}
