// Package metrics is the bench-facing instrumentation sink: it counts
// local-vs-offload kernel dispatches per op, tallies the byte traffic
// the participant round trip generates, and surfaces non-fatal
// warnings (e.g. the plain Sqrt kernel's sign-masking) the way the
// teacher's own noise-estimation code reports precision statistics,
// without pulling evaluation-metric bookkeeping into the core engine
// itself.
package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

// Recorder is the narrow interface the proxy and participant engines
// depend on. A nil Recorder is never passed; callers that don't care
// about instrumentation use Discard.
type Recorder interface {
	IncrLocal(op string)
	IncrOffload(op string)
	AddBytes(n int)
	AddCiphers(up, down int)
	Warn(format string, args ...interface{})
	Snapshot() Snapshot
}

// Snapshot is an immutable point-in-time copy of a Recorder's counters.
type Snapshot struct {
	LocalCount   map[string]int
	OffloadCount map[string]int
	BytesTraffic uint64
	CiphersUp    int
	CiphersDown  int
	Warnings     []string
}

// LocalTotal sums LocalCount across every op.
func (s Snapshot) LocalTotal() int {
	total := 0
	for _, n := range s.LocalCount {
		total += n
	}
	return total
}

// OffloadTotal sums OffloadCount across every op.
func (s Snapshot) OffloadTotal() int {
	total := 0
	for _, n := range s.OffloadCount {
		total += n
	}
	return total
}

// OffloadRate returns the fraction of dispatched ops that were
// offloaded, 0 if none were dispatched.
func (s Snapshot) OffloadRate() float64 {
	total := s.LocalTotal() + s.OffloadTotal()
	if total == 0 {
		return 0
	}
	return float64(s.OffloadTotal()) / float64(total)
}

// mutexRecorder is a mutex-guarded Recorder, safe for the proxy's
// per-participant worker fan-out to share (or for callers to give each
// worker its own instance and merge afterward).
type mutexRecorder struct {
	mu           sync.Mutex
	localCount   map[string]int
	offloadCount map[string]int
	bytesTraffic uint64
	ciphersUp    int
	ciphersDown  int
	warnings     []string
}

// NewMutexRecorder returns a Recorder safe for concurrent use.
func NewMutexRecorder() Recorder {
	return &mutexRecorder{
		localCount:   make(map[string]int),
		offloadCount: make(map[string]int),
	}
}

func (r *mutexRecorder) IncrLocal(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localCount[op]++
}

func (r *mutexRecorder) IncrOffload(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offloadCount[op]++
}

func (r *mutexRecorder) AddBytes(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytesTraffic += uint64(n)
}

func (r *mutexRecorder) AddCiphers(up, down int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ciphersUp += up
	r.ciphersDown += down
}

func (r *mutexRecorder) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, msg)
}

func (r *mutexRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	local := make(map[string]int, len(r.localCount))
	for k, v := range r.localCount {
		local[k] = v
	}
	offload := make(map[string]int, len(r.offloadCount))
	for k, v := range r.offloadCount {
		offload[k] = v
	}
	warnings := make([]string, len(r.warnings))
	copy(warnings, r.warnings)
	sort.Strings(warnings)
	return Snapshot{
		LocalCount:   local,
		OffloadCount: offload,
		BytesTraffic: r.bytesTraffic,
		CiphersUp:    r.ciphersUp,
		CiphersDown:  r.ciphersDown,
		Warnings:     warnings,
	}
}

// discardRecorder drops every observation; it is what a caller not
// interested in instrumentation wires in.
type discardRecorder struct{}

// Discard is a Recorder that records nothing.
var Discard Recorder = discardRecorder{}

func (discardRecorder) IncrLocal(string)            {}
func (discardRecorder) IncrOffload(string)          {}
func (discardRecorder) AddBytes(int)                {}
func (discardRecorder) AddCiphers(int, int)         {}
func (discardRecorder) Warn(string, ...interface{}) {}
func (discardRecorder) Snapshot() Snapshot          { return Snapshot{} }

// TrafficDigest returns a short, cheap content fingerprint for a
// serialized payload exchanged across the proxy/participant boundary.
// The engines do not call it: traffic accounting goes through
// Recorder.AddBytes with the payload size alone.
func TrafficDigest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return fmt.Sprintf("%x", sum[:8])
}
