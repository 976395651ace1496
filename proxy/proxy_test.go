package proxy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/ops"
	"github.com/tuneinsight/kpibench/value"
)

// marginScenario computes kpi = sqrt((revenue - cost) * weight), a
// small DAG exercising a local chain (Subtraction, MultiplicationConst
// is not used here but Multiplication is), a required-input leaf, and
// an offload-only op (Squareroot) in the same schedule.
func marginScenario(t *testing.T) *algorithm.Algorithm {
	t.Helper()
	alg, err := algorithm.Parse([]catalog.AtomicRecord{
		{Name: "margin", Op: "Subtraction", Var: []string{"revenue", "cost"}},
		{Name: "weighted", Op: "Multiplication", Var: []string{"margin", "weight"}},
		{Name: "kpi", Op: "Squareroot", Var: []string{"weighted"}, IsKPI: true},
	})
	require.NoError(t, err)
	return alg
}

func TestPlainEngineRun(t *testing.T) {
	alg := marginScenario(t)
	engine := NewPlainEngine(metrics.NewMutexRecorder())

	seed := map[string]value.Vector{
		"revenue": value.New([]float64{100}),
		"cost":    value.New([]float64{19}),
		"weight":  value.New([]float64{4}),
	}

	out, err := engine.Run(alg, seed)
	require.NoError(t, err)
	require.InDelta(t, 18.0, out["kpi"][0], 1e-9) // sqrt((100-19)*4) = sqrt(324) = 18

	snap := engine.Metrics.Snapshot()
	require.Equal(t, 1, snap.LocalCount["Subtraction"])
	require.Equal(t, 1, snap.LocalCount["Multiplication"])
	require.Equal(t, 1, snap.LocalCount["Squareroot"])
}

// plainOffloader implements Offloader by decrypting, running the
// cleartext kernel, and re-encrypting — exactly what the real
// participant's offload service does, minus the key ownership checks.
type plainOffloader struct {
	owner *keymat.Owner
}

func (o *plainOffloader) Offload(op string, operands []*encvalue.Vector, constant *float64) (*encvalue.Vector, error) {
	plain := make([]value.Vector, len(operands))
	for i, ct := range operands {
		v, err := encvalue.Decrypt(o.owner.Decryptor, o.owner.Bundle, ct)
		if err != nil {
			return nil, err
		}
		plain[i] = v
	}
	out, err := ops.ExecutePlain(op, plain, constant)
	if err != nil {
		return nil, err
	}
	return encvalue.Encrypt(o.owner.Bundle, out)
}

func TestEncryptedEngineRunWithOffload(t *testing.T) {
	owner, err := keymat.NewOwner(catalog.CryptoConfig{Polymod: 16384, Level: 6, Scale: 1 << 40})
	require.NoError(t, err)

	alg := marginScenario(t)
	cfg := catalog.ConfigDocument{Mode: catalog.ModeEncrypted}
	rec := metrics.NewMutexRecorder()
	engine := NewEncryptedEngine(cfg, owner.Bundle, &plainOffloader{owner: owner}, rec)

	revenue, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{100}))
	require.NoError(t, err)
	cost, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{19}))
	require.NoError(t, err)
	weight, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{4}))
	require.NoError(t, err)

	seed := map[string]*encvalue.Vector{
		"revenue": revenue,
		"cost":    cost,
		"weight":  weight,
	}

	out, err := engine.Run(alg, seed)
	require.NoError(t, err)

	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, out["kpi"])
	require.NoError(t, err)
	require.InDelta(t, 18.0, got[0], 1e-1)

	snap := rec.Snapshot()
	require.Equal(t, 1, snap.LocalCount["Subtraction"])
	require.Equal(t, 1, snap.LocalCount["Multiplication"])
	require.Equal(t, 1, snap.OffloadCount["Squareroot"])
}

func TestEncryptedEngineForcedOffload(t *testing.T) {
	owner, err := keymat.NewOwner(catalog.CryptoConfig{Polymod: 16384, Level: 6, Scale: 1 << 40})
	require.NoError(t, err)

	alg, err := algorithm.Parse([]catalog.AtomicRecord{
		{Name: "kpi", Op: "Addition", Var: []string{"a", "b"}, IsKPI: true},
	})
	require.NoError(t, err)

	cfg := catalog.ConfigDocument{Offload: []string{"Addition"}}
	rec := metrics.NewMutexRecorder()
	engine := NewEncryptedEngine(cfg, owner.Bundle, &plainOffloader{owner: owner}, rec)

	a, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{1}))
	require.NoError(t, err)
	b, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{2}))
	require.NoError(t, err)

	out, err := engine.Run(alg, map[string]*encvalue.Vector{"a": a, "b": b})
	require.NoError(t, err)
	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, out["kpi"])
	require.NoError(t, err)
	require.InDelta(t, 3.0, got[0], 1e-3)

	snap := rec.Snapshot()
	require.Equal(t, 1, snap.OffloadCount["Addition"])
	require.Equal(t, 0, snap.LocalCount["Addition"])
}

func TestEncryptedEngineVectorMultiplicationRoutesToParticipant(t *testing.T) {
	owner, err := keymat.NewOwner(catalog.CryptoConfig{Polymod: 16384, Level: 6, Scale: 1 << 40})
	require.NoError(t, err)

	alg, err := algorithm.Parse([]catalog.AtomicRecord{
		{Name: "kpi", Op: "Multiplication", Var: []string{"a", "b"}, IsKPI: true},
	})
	require.NoError(t, err)

	rec := metrics.NewMutexRecorder()
	engine := NewEncryptedEngine(catalog.ConfigDocument{}, owner.Bundle, &plainOffloader{owner: owner}, rec)

	a, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{1, 2, 3}))
	require.NoError(t, err)
	b, err := encvalue.Encrypt(owner.Bundle, value.New([]float64{4, 5, 6}))
	require.NoError(t, err)

	out, err := engine.Run(alg, map[string]*encvalue.Vector{"a": a, "b": b})
	require.NoError(t, err)
	got, err := encvalue.Decrypt(owner.Decryptor, owner.Bundle, out["kpi"])
	require.NoError(t, err)
	require.InDelta(t, 4.0, got[0], 1e-1)
	require.InDelta(t, 10.0, got[1], 1e-1)
	require.InDelta(t, 18.0, got[2], 1e-1)

	snap := rec.Snapshot()
	require.Equal(t, 1, snap.OffloadCount["Multiplication"])
}

func TestRunManyPlainFansOutAcrossParticipants(t *testing.T) {
	alg := marginScenario(t)

	participants := []PlainParticipant{
		{ID: "p1", Seed: map[string]value.Vector{
			"revenue": value.New([]float64{100}), "cost": value.New([]float64{19}), "weight": value.New([]float64{4}),
		}},
		{ID: "p2", Seed: map[string]value.Vector{
			"revenue": value.New([]float64{50}), "cost": value.New([]float64{1}), "weight": value.New([]float64{1}),
		}},
	}

	results := RunManyPlain(alg, metrics.Discard, participants)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.NotNil(t, r.KPIs["kpi"])
	}
	require.InDelta(t, 18.0, results[0].KPIs["kpi"][0], 1e-9)
	require.InDelta(t, 7.0, results[1].KPIs["kpi"][0], 1e-9)
}

func TestEvictionReclaimsNonKPIEntries(t *testing.T) {
	// A chain long enough to cross the eviction interval: the
	// incremental pass must keep every still-referenced entry so the
	// KPI resolves, and once the schedule completes every non-KPI entry,
	// including the required-input leaf, is a reclamation candidate.
	records := []catalog.AtomicRecord{
		{Name: "s0", Op: "AdditionConst", Var: []string{"x"}, Constant: constPtr(1)},
	}
	for i := 1; i < 150; i++ {
		records = append(records, catalog.AtomicRecord{
			Name: namef(i), Op: "AdditionConst", Var: []string{namef(i - 1)}, Constant: constPtr(1),
		})
	}
	records = append(records, catalog.AtomicRecord{Name: "kpi", Op: "AdditionConst", Var: []string{namef(149)}, Constant: constPtr(0), IsKPI: true})

	alg, err := algorithm.Parse(records)
	require.NoError(t, err)

	engine := NewPlainEngine(metrics.Discard)
	out, err := engine.Run(alg, map[string]value.Vector{"x": value.Scalar(0)})
	require.NoError(t, err)
	require.InDelta(t, 150.0, out["kpi"][0], 1e-9)

	require.ElementsMatch(t, []string{"x", "s0", "s149"}, evictionCandidates(alg, []string{"x", "s0", "s149", "kpi"}, nil))
}

func namef(i int) string {
	return fmt.Sprintf("s%d", i)
}

func constPtr(f float64) *float64 { return &f }
