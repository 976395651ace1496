// Package proxy implements the untrusted evaluator: given a
// participant's resolved-values table seeded with its inputs and an
// algorithm schedule, it executes each atomic in order, deciding
// local-vs-offload per op, and evicts resolved values no longer
// referenced to bound peak memory. Two concrete engines share this
// eviction and operand-assembly machinery: PlainEngine for cleartext
// mode and EncryptedEngine for CKKS mode, the latter additionally
// consulting an Offloader when a local kernel is ineligible or fails.
package proxy

import (
	"fmt"

	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/table"
)

// evictionInterval is how many scheduled atomics the engine processes
// between incremental eviction passes.
const evictionInterval = 100

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// evictionCandidates returns the keys in held that belong to alg's
// non-KPI set (which includes synthesized required-input leaves) and
// are not referenced by any atomic in remaining.
func evictionCandidates(alg *algorithm.Algorithm, held []string, remaining []string) []string {
	nonKPI := toSet(alg.NonKPIs)
	referenced := make(map[string]bool)
	for _, n := range remaining {
		for _, ref := range alg.Atomics[n].Var {
			referenced[ref] = true
		}
	}
	var out []string
	for _, k := range held {
		if nonKPI[k] && !referenced[k] {
			out = append(out, k)
		}
	}
	return out
}

func evictTable(tbl *table.Table, alg *algorithm.Algorithm, remaining []string) {
	tbl.Evict(evictionCandidates(alg, tbl.Keys(), remaining))
}

// unresolvedError reports a reference to an atomic the table has no
// entry for — a bug in the scheduler, since every var either names a
// declared atomic or a synthesized required leaf.
func unresolvedError(ref string) error {
	return fmt.Errorf("proxy: references unresolved %q", ref)
}

func unexpectedTypeError(name string, v interface{}) error {
	return fmt.Errorf("proxy: %q resolved to unexpected value type %T", name, v)
}

func missingKPIError(name string) error {
	return fmt.Errorf("proxy: kpi %q missing from resolved table after schedule", name)
}
