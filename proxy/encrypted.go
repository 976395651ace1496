package proxy

import (
	"errors"
	"runtime"

	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/ops"
	"github.com/tuneinsight/kpibench/table"
)

// Offloader is the participant side of the round trip the proxy falls
// back to when a kernel is ineligible to run locally under encryption,
// or when it returns encvalue.ErrOffload (an exhausted level budget, a
// non-integer exponent, and so on). The proxy never inspects why a
// call offloaded beyond that sentinel.
type Offloader interface {
	Offload(op string, operands []*encvalue.Vector, constant *float64) (*encvalue.Vector, error)
}

// EncryptedEngine evaluates an Algorithm's schedule over the CKKS
// backend, routing ineligible or failed local kernels to an Offloader.
type EncryptedEngine struct {
	Config    catalog.ConfigDocument
	Bundle    *keymat.Bundle
	Offloader Offloader
	Metrics   metrics.Recorder
}

// NewEncryptedEngine returns an EncryptedEngine. A nil rec wires in
// metrics.Discard.
func NewEncryptedEngine(cfg catalog.ConfigDocument, bundle *keymat.Bundle, offloader Offloader, rec metrics.Recorder) *EncryptedEngine {
	if rec == nil {
		rec = metrics.Discard
	}
	return &EncryptedEngine{Config: cfg, Bundle: bundle, Offloader: offloader, Metrics: rec}
}

// Run executes alg's schedule against a table seeded with seed (the
// participant's inputs, already encrypted under the engine's bundle),
// and returns the resolved ciphertext for every KPI atomic.
func (e *EncryptedEngine) Run(alg *algorithm.Algorithm, seed map[string]*encvalue.Vector) (map[string]*encvalue.Vector, error) {
	tbl := table.New()
	for name, v := range seed {
		if err := tbl.Insert(name, v); err != nil {
			return nil, err
		}
	}

	offloadSet := toSet(e.Config.Offload)

	for i, name := range alg.Schedule {
		a := alg.Atomics[name]
		operands, err := fetchEncOperands(tbl, a.Var)
		if err != nil {
			return nil, err
		}

		out, err := e.dispatch(a.Op, operands, a.Constant, offloadSet)
		if err != nil {
			return nil, err
		}
		if err := tbl.Insert(name, out); err != nil {
			return nil, err
		}

		if (i+1)%evictionInterval == 0 {
			evictTable(tbl, alg, alg.Schedule[i+1:])
			runtime.GC()
		}
	}
	evictTable(tbl, alg, nil)

	return encResultSet(tbl, alg.KPIs)
}

// dispatch decides local-vs-offload for one atomic and runs it.
func (e *EncryptedEngine) dispatch(op string, operands []*encvalue.Vector, constant *float64, offloadSet map[string]bool) (*encvalue.Vector, error) {
	var out *encvalue.Vector
	var err error

	if localEligible(op, operands, offloadSet) {
		out, err = ops.ExecuteEncrypted(op, operands, constant, e.Bundle)
	} else {
		err = encvalue.ErrOffload
	}

	if err == nil {
		e.Metrics.IncrLocal(op)
		return out, nil
	}
	if !errors.Is(err, encvalue.ErrOffload) {
		return nil, err
	}

	e.Metrics.IncrOffload(op)
	e.Metrics.AddCiphers(len(operands), 0)
	e.recordBytes(operands)
	result, err := e.Offloader.Offload(op, operands, constant)
	if err != nil {
		return nil, err
	}
	e.Metrics.AddCiphers(0, 1)
	e.recordBytes([]*encvalue.Vector{result})
	return result, nil
}

// recordBytes accounts for the marshaled size of one leg of an
// offload round trip's ciphertexts.
func (e *EncryptedEngine) recordBytes(vs []*encvalue.Vector) {
	for _, v := range vs {
		b, err := v.Ciphertext().MarshalBinary()
		if err != nil {
			continue
		}
		e.Metrics.AddBytes(len(b))
	}
}

// localEligible is the proxy's own eligibility rule on top of the op
// table's Enc-local column: a forced offload in the run configuration
// always wins, and a Multiplication with either operand holding more
// than one slot is routed to the participant regardless of the op
// table, since a local ciphertext-ciphertext multiply of vectors needs
// a per-slot semantics the evaluator's single Mul/MulRelin call alone
// cannot enforce.
func localEligible(op string, operands []*encvalue.Vector, offloadSet map[string]bool) bool {
	if offloadSet[op] {
		return false
	}
	spec, err := ops.Lookup(op)
	if err != nil || !spec.EncLocal {
		return false
	}
	if op == "Multiplication" {
		for _, o := range operands {
			if o.Len() > 1 {
				return false
			}
		}
	}
	return true
}

func fetchEncOperands(tbl *table.Table, names []string) ([]*encvalue.Vector, error) {
	out := make([]*encvalue.Vector, 0, len(names))
	for _, n := range names {
		raw, ok := tbl.Get(n)
		if !ok {
			return nil, unresolvedError(n)
		}
		vec, ok := raw.(*encvalue.Vector)
		if !ok {
			return nil, unexpectedTypeError(n, raw)
		}
		out = append(out, vec)
	}
	return out, nil
}

func encResultSet(tbl *table.Table, kpis []string) (map[string]*encvalue.Vector, error) {
	out := make(map[string]*encvalue.Vector, len(kpis))
	for _, k := range kpis {
		raw, ok := tbl.Get(k)
		if !ok {
			return nil, missingKPIError(k)
		}
		vec, ok := raw.(*encvalue.Vector)
		if !ok {
			return nil, unexpectedTypeError(k, raw)
		}
		out[k] = vec
	}
	return out, nil
}
