// Package algorithm implements the KPI catalog parser and scheduler
//: it turns a decoded catalog.Document into a dependency DAG,
// synthesizes leaf atomics for required inputs, topologically orders
// the schedule, rejects cycles, and annotates each atomic with an
// informational multiplicative-depth figure.
package algorithm

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/ops"
)

// Atomic is one named operation in the dependency DAG.
type Atomic struct {
	Name     string
	Op       string
	Var      []string
	Constant *float64
	IsKPI    bool
	// Synthetic marks a leaf atomic materialized for a required input
	// rather than declared in the catalog.
	Synthetic bool
	// Depth is the informational multiplicative-depth annotation:
	// longest Multiplication/MultiplicationConst chain to a leaf, with
	// offload barriers resetting to zero.
	Depth int
}

// SchemaError reports a malformed catalog: an unknown op, an
// arity/constant mismatch, or a duplicate atomic name.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("algorithm: schema error: %s", e.Detail)
}

// GraphError reports a cycle in the dependency DAG.
type GraphError struct {
	Detail string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("algorithm: graph error: %s", e.Detail)
}

// Algorithm is a parsed catalog: every atomic, partitioned into KPIs
// and non-KPIs, the set of required (externally supplied) input
// names, and the topological evaluation schedule.
type Algorithm struct {
	Atomics   map[string]*Atomic
	KPIs      []string
	NonKPIs   []string
	Required  []string
	Schedule  []string
}

// depthBarrierOps reset the multiplicative-depth count to zero. Every
// division-, power-, root-, absolute-, minimum- and maximum-family op is
// listed, including DivisionVarConst and PowerConst, which the
// encrypted backend can also evaluate locally; the others are always
// offloaded and thus come back with a fresh level budget.
var depthBarrierOps = map[string]bool{
	"Division": true, "DivisionVarConst": true, "DivisionConstVar": true,
	"Power": true, "PowerConst": true, "PowerBaseConst": true,
	"Squareroot": true, "Absolute": true,
	"Minima": true, "Maxima": true, "MinimaOverN": true, "MaximaOverN": true,
}

func isMultiplicative(op string) bool {
	return op == "Multiplication" || op == "MultiplicationConst"
}

// Parse builds an Algorithm from a decoded catalog document.
func Parse(records []catalog.AtomicRecord) (*Algorithm, error) {
	atomics := make(map[string]*Atomic, len(records))
	declOrder := make([]string, 0, len(records))

	for _, r := range records {
		if _, dup := atomics[r.Name]; dup {
			return nil, &SchemaError{Detail: fmt.Sprintf("duplicate atomic name %q", r.Name)}
		}
		spec, err := ops.Lookup(r.Op)
		if err != nil {
			return nil, &SchemaError{Detail: err.Error()}
		}
		if err := spec.CheckArity(len(r.Var), r.Constant != nil); err != nil {
			return nil, &SchemaError{Detail: err.Error()}
		}
		atomics[r.Name] = &Atomic{
			Name:     r.Name,
			Op:       r.Op,
			Var:      append([]string(nil), r.Var...),
			Constant: r.Constant,
			IsKPI:    r.IsKPI,
		}
		declOrder = append(declOrder, r.Name)
	}

	// Required-input derivation: synthesize a leaf atomic for every
	// var reference that doesn't name a declared atomic.
	required := make([]string, 0)
	seenRequired := make(map[string]bool)
	for _, name := range declOrder {
		for _, ref := range atomics[name].Var {
			if _, ok := atomics[ref]; ok {
				continue
			}
			if seenRequired[ref] {
				continue
			}
			seenRequired[ref] = true
			required = append(required, ref)
			zero := 0.0
			atomics[ref] = &Atomic{
				Name:      ref,
				Op:        "AdditionConst",
				Constant:  &zero,
				IsKPI:     false,
				Synthetic: true,
			}
			declOrder = append(declOrder, ref)
		}
	}

	schedule, err := topoSort(atomics, declOrder)
	if err != nil {
		return nil, err
	}

	// Filter synthetic leaves out of the execution schedule — they
	// need no evaluation, they are pre-seeded into the resolved-values
	// table from the participant's inputs.
	execSchedule := make([]string, 0, len(schedule))
	for _, name := range schedule {
		if !atomics[name].Synthetic {
			execSchedule = append(execSchedule, name)
		}
	}

	annotateDepth(atomics, execSchedule)

	var kpis, nonKPIs []string
	for _, name := range declOrder {
		if atomics[name].Synthetic {
			nonKPIs = append(nonKPIs, name)
			continue
		}
		if atomics[name].IsKPI {
			kpis = append(kpis, name)
		} else {
			nonKPIs = append(nonKPIs, name)
		}
	}

	return &Algorithm{
		Atomics:  atomics,
		KPIs:     kpis,
		NonKPIs:  nonKPIs,
		Required: required,
		Schedule: execSchedule,
	}, nil
}

type color int

const (
	unresolved color = iota
	inVisit
	resolved
)

// topoSort performs a DFS colored Unresolved/InVisit/Resolved over the
// dependency DAG, emitting a post-order (dependencies-first) schedule.
// Ties within a level follow declOrder, the catalog's declaration
// order, so the schedule is stable under reordering of independent
// siblings.
func topoSort(atomics map[string]*Atomic, declOrder []string) ([]string, error) {
	colors := make(map[string]color, len(atomics))
	order := make([]string, 0, len(atomics))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch colors[name] {
		case resolved:
			return nil
		case inVisit:
			return &GraphError{Detail: fmt.Sprintf("cycle detected at %q (path: %v)", name, append(path, name))}
		}
		colors[name] = inVisit
		a, ok := atomics[name]
		if !ok {
			// Should not happen: required-input synthesis guarantees
			// every reference resolves to an atomic.
			return &SchemaError{Detail: fmt.Sprintf("unresolved reference %q", name)}
		}
		for _, ref := range a.Var {
			if err := visit(ref, append(path, name)); err != nil {
				return err
			}
		}
		colors[name] = resolved
		order = append(order, name)
		return nil
	}

	for _, name := range declOrder {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// annotateDepth computes the informational multiplicative-depth
// figure for each atomic in schedule order (dependencies already
// computed, since schedule is topological).
func annotateDepth(atomics map[string]*Atomic, schedule []string) {
	for _, name := range schedule {
		a := atomics[name]
		if depthBarrierOps[a.Op] {
			a.Depth = 0
			continue
		}
		maxParent := -1
		for _, ref := range a.Var {
			if p, ok := atomics[ref]; ok && p.Depth > maxParent {
				maxParent = p.Depth
			}
		}
		if maxParent < 0 {
			maxParent = 0
		}
		if isMultiplicative(a.Op) {
			a.Depth = maxParent + 1
		} else {
			a.Depth = maxParent
		}
	}
}

// RequiredSet returns a's required-input names as a set, convenient
// for callers validating a participant's input document against it.
func (a *Algorithm) RequiredSet() map[string]bool {
	set := make(map[string]bool, len(a.Required))
	for _, r := range a.Required {
		set[r] = true
	}
	return set
}

// SortedKPIs returns a.KPIs sorted for deterministic iteration where
// declaration order doesn't already provide one.
func (a *Algorithm) SortedKPIs() []string {
	out := append([]string(nil), a.KPIs...)
	slices.Sort(out)
	return out
}
