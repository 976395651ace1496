// Command kpibench runs one KPI-evaluation benchmarking pass: it loads
// an algorithm catalog, a directory of participant inputs and a run
// configuration, evaluates every participant (in cleartext or under
// CKKS per the configuration's mode), aggregates their per-KPI results
// across participants subject to the k-anonymity gate, and appends a
// row of run metrics to an evaluation CSV.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/tuneinsight/kpibench/bench"
	"github.com/tuneinsight/kpibench/value"
)

var (
	flagAlgorithm = flag.String("a", "", "path to the algorithm catalog YAML")
	flagInputDir  = flag.String("i", "", "path to the participant-input directory")
	flagConfig    = flag.String("c", "", "path to the run configuration YAML")
	flagOutput    = flag.String("e", "evaluation.csv", "path to the evaluation CSV to append to")
)

func main() {
	flag.Parse()

	l := log.New(os.Stderr, "", 0)

	if *flagAlgorithm == "" || *flagInputDir == "" || *flagConfig == "" {
		flag.Usage()
		os.Exit(2)
	}

	avg, err := bench.Run(bench.RunPaths{
		Algorithm: *flagAlgorithm,
		InputDir:  *flagInputDir,
		Config:    *flagConfig,
		Output:    *flagOutput,
	})
	if err != nil {
		l.Fatalf("kpibench: %v", err)
	}

	for _, kpi := range sortedKeys(avg) {
		fmt.Printf("%s: %v\n", kpi, avg[kpi])
	}
}

func sortedKeys(m map[string]value.Vector) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
