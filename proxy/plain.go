package proxy

import (
	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/ops"
	"github.com/tuneinsight/kpibench/table"
	"github.com/tuneinsight/kpibench/value"
)

// PlainEngine evaluates an Algorithm's schedule over the cleartext
// backend. Every op in the op table has a plain kernel, so there is no
// offload path here — Run only ever fails on a malformed reference or
// a kernel error such as an operand length mismatch. Division by zero
// is not an error: it yields ±Inf or NaN slots.
type PlainEngine struct {
	Metrics metrics.Recorder
}

// NewPlainEngine returns a PlainEngine. A nil rec wires in metrics.Discard.
func NewPlainEngine(rec metrics.Recorder) *PlainEngine {
	if rec == nil {
		rec = metrics.Discard
	}
	return &PlainEngine{Metrics: rec}
}

// Run executes alg's schedule against a table seeded with seed (the
// participant's declared inputs, keyed by required-input name), and
// returns the resolved value of every KPI atomic.
func (e *PlainEngine) Run(alg *algorithm.Algorithm, seed map[string]value.Vector) (map[string]value.Vector, error) {
	tbl := table.New()
	for name, v := range seed {
		if err := tbl.Insert(name, v); err != nil {
			return nil, err
		}
	}

	for i, name := range alg.Schedule {
		a := alg.Atomics[name]
		operands, err := fetchPlainOperands(tbl, a.Var)
		if err != nil {
			return nil, err
		}
		out, err := ops.ExecutePlain(a.Op, operands, a.Constant)
		if err != nil {
			return nil, err
		}
		if err := tbl.Insert(name, out); err != nil {
			return nil, err
		}
		e.Metrics.IncrLocal(a.Op)

		if (i+1)%evictionInterval == 0 {
			evictTable(tbl, alg, alg.Schedule[i+1:])
		}
	}
	evictTable(tbl, alg, nil)

	return plainResultSet(tbl, alg.KPIs)
}

func fetchPlainOperands(tbl *table.Table, names []string) ([]value.Vector, error) {
	out := make([]value.Vector, 0, len(names))
	for _, n := range names {
		raw, ok := tbl.Get(n)
		if !ok {
			return nil, unresolvedError(n)
		}
		vec, ok := raw.(value.Vector)
		if !ok {
			return nil, unexpectedTypeError(n, raw)
		}
		out = append(out, vec)
	}
	return out, nil
}

func plainResultSet(tbl *table.Table, kpis []string) (map[string]value.Vector, error) {
	out := make(map[string]value.Vector, len(kpis))
	for _, k := range kpis {
		raw, ok := tbl.Get(k)
		if !ok {
			return nil, missingKPIError(k)
		}
		vec, ok := raw.(value.Vector)
		if !ok {
			return nil, unexpectedTypeError(k, raw)
		}
		out[k] = vec
	}
	return out, nil
}
