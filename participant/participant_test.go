package participant

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/value"
)

func testOwner(t *testing.T) *keymat.Owner {
	t.Helper()
	owner, err := keymat.NewOwner(catalog.CryptoConfig{Polymod: 16384, Level: 6, Scale: 1 << 40})
	require.NoError(t, err)
	return owner
}

func TestEncryptInputsRoundTrip(t *testing.T) {
	owner := testOwner(t)
	p := New("p1", owner, map[string]value.Vector{
		"x": value.New([]float64{1, 2, 3}),
		"y": value.New([]float64{10}),
	}, nil)

	cts, err := p.EncryptInputs([]string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, cts, 2)

	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, cts["x"])
	require.NoError(t, err)
	require.InDelta(t, 1.0, got[0], 1e-3)
	require.InDelta(t, 2.0, got[1], 1e-3)
	require.InDelta(t, 3.0, got[2], 1e-3)
}

func TestEncryptInputsMissingRequired(t *testing.T) {
	owner := testOwner(t)
	p := New("p1", owner, map[string]value.Vector{"x": value.Scalar(1)}, nil)

	_, err := p.EncryptInputs([]string{"x", "z"})
	require.Error(t, err)
	var missing *MissingInputError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "z", missing.Name)
}

func TestOffloadDivision(t *testing.T) {
	owner := testOwner(t)
	p := New("p1", owner, nil, nil)

	a, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{10}))
	require.NoError(t, err)
	b, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{4}))
	require.NoError(t, err)

	out, err := p.Offload("Division", []*encvalue.Vector{a, b}, nil)
	require.NoError(t, err)

	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, out)
	require.NoError(t, err)
	require.InDelta(t, 2.5, got[0], 1e-2)
}

func TestOffloadSquarerootWarnsOnNegative(t *testing.T) {
	owner := testOwner(t)
	rec := metrics.NewMutexRecorder()
	p := New("p1", owner, nil, rec)

	a, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{-9}))
	require.NoError(t, err)

	out, err := p.Offload("Squareroot", []*encvalue.Vector{a}, nil)
	require.NoError(t, err)

	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, out)
	require.NoError(t, err)
	require.InDelta(t, 3.0, got[0], 1e-2)

	snap := rec.Snapshot()
	require.Len(t, snap.Warnings, 1)
}

func TestOffloadKernelFailureReturnsBudgetError(t *testing.T) {
	owner := testOwner(t)
	p := New("p1", owner, nil, nil)

	a, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{1, 2}))
	require.NoError(t, err)
	b, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{1, 2, 3}))
	require.NoError(t, err)

	_, err = p.Offload("Addition", []*encvalue.Vector{a, b}, nil)
	require.Error(t, err)
	var budgetErr *BudgetError
	require.ErrorAs(t, err, &budgetErr)
	require.Equal(t, "Addition", budgetErr.Op)
}

func TestDecryptKPIsAndReencryptForAggregation(t *testing.T) {
	owner := testOwner(t)
	statsOwner := testOwner(t)
	p := New("p1", owner, nil, nil)

	kpiCt, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{42}))
	require.NoError(t, err)

	plain, err := p.DecryptKPIs(map[string]*encvalue.Vector{"kpi": kpiCt})
	require.NoError(t, err)
	require.InDelta(t, 42.0, plain["kpi"][0], 1e-3)

	reenc, err := p.ReencryptForAggregation(plain, statsOwner.Bundle)
	require.NoError(t, err)

	got, err := encvalue.Decrypt(statsOwner.Decryptor, statsOwner.Bundle, reenc["kpi"])
	require.NoError(t, err)
	require.InDelta(t, 42.0, got[0], 1e-3)
}
