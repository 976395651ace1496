// Package bench is the evaluation output's external collaborator:
// the CSV row shape and an append-only writer, plus the end-to-end
// orchestration of one run (reading a catalog, a participant-input
// directory, and a config, driving the core engine packages, and
// appending a row of whole-run metrics). File I/O, CLI wiring and
// process-level multi-participant orchestration are the functionality
// the core packages explicitly exclude; this package is where it
// lives.
package bench

import (
	"fmt"
	"time"
)

// Row is one evaluation run's summary, in the order the CSV header
// lists them.
type Row struct {
	TrafficBytes            uint64
	CiphersUp               int
	CiphersDown             int
	CipherSize              int
	OpLocalMean             float64
	OpOffloadMean           float64
	OpOffloadCount          int
	OffloadedPct            float64
	Levels                  int
	BenchmarkingClientsMean float64
	ClientAggMean           float64
	Keygen                  time.Duration
	KeygenSize              int
	Sample                  int
	Benchmarking            time.Duration
	ProxyAgg                time.Duration
	ServerAgg               time.Duration
	Accuracy                float64
}

// header is the CSV header, emitted once by Writer on its first Append.
var header = []string{
	"traffic_bytes", "ciphers_up", "ciphers_down", "cipher_size",
	"op_local", "op_offload", "op_offload_count", "offloaded_pct",
	"levels", "benchmarking_clients", "client_agg",
	"keygen", "keygen_size", "sample", "benchmarking", "proxy_agg",
	"server_agg", "accuracy",
}

// record renders r as the CSV row encoding/csv expects.
func (r Row) record() []string {
	return []string{
		fmt.Sprintf("%d", r.TrafficBytes),
		fmt.Sprintf("%d", r.CiphersUp),
		fmt.Sprintf("%d", r.CiphersDown),
		fmt.Sprintf("%d", r.CipherSize),
		fmt.Sprintf("%g", r.OpLocalMean),
		fmt.Sprintf("%g", r.OpOffloadMean),
		fmt.Sprintf("%d", r.OpOffloadCount),
		fmt.Sprintf("%g", r.OffloadedPct),
		fmt.Sprintf("%d", r.Levels),
		fmt.Sprintf("%g", r.BenchmarkingClientsMean),
		fmt.Sprintf("%g", r.ClientAggMean),
		fmt.Sprintf("%g", r.Keygen.Seconds()),
		fmt.Sprintf("%d", r.KeygenSize),
		fmt.Sprintf("%d", r.Sample),
		fmt.Sprintf("%g", r.Benchmarking.Seconds()),
		fmt.Sprintf("%g", r.ProxyAgg.Seconds()),
		fmt.Sprintf("%g", r.ServerAgg.Seconds()),
		fmt.Sprintf("%g", r.Accuracy),
	}
}
