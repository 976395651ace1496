// Package aggregate implements the statistics server's half of group
// aggregation: summing per-participant KPI ciphertexts under
// encryption is the proxy's job (a plain n-ary Add fold over
// encvalue.Vector, via SumAcrossParticipants), decrypting that one sum
// and applying the k-anonymity gate is this package's. A separate
// accuracy pass cross-checks an encrypted-mode mean against the
// plaintext reference using the same statistics-helper reduction the
// rest of this system's benchmarking figures are computed with.
package aggregate

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/value"
)

// KPIMismatchError reports participants reporting different semantic
// lengths for the same KPI name — fatal, since the catalog guarantees
// every participant evaluates the same schedule.
type KPIMismatchError struct {
	Name string
	Lens []int
}

func (e *KPIMismatchError) Error() string {
	return fmt.Sprintf("aggregate: kpi %q: participant lengths differ: %v", e.Name, e.Lens)
}

// KAnonymityError reports a KPI whose participant count fell below the
// configured anonymity threshold.
type KAnonymityError struct {
	KPI   string
	Count int
	K     int
}

func (e *KAnonymityError) Error() string {
	return fmt.Sprintf("aggregate: kpi %q: participant count %d below k-anonymity threshold %d", e.KPI, e.Count, e.K)
}

// SumAcrossParticipants folds name's encrypted per-participant values
// with the encrypted n-ary Add kernel, returning the per-slot sum and
// the participant count the proxy forwards to the statistics server
// alongside it.
func SumAcrossParticipants(name string, perParticipant []*encvalue.Vector) (*encvalue.Vector, int, error) {
	if len(perParticipant) == 0 {
		return nil, 0, fmt.Errorf("aggregate: kpi %q: no participants reported a value", name)
	}
	lens := make([]int, len(perParticipant))
	mismatch := false
	for i, v := range perParticipant {
		lens[i] = v.Len()
		if lens[i] != lens[0] {
			mismatch = true
		}
	}
	if mismatch {
		return nil, 0, &KPIMismatchError{Name: name, Lens: lens}
	}
	sum, err := encvalue.AddN(perParticipant...)
	if err != nil {
		return nil, 0, err
	}
	return sum, len(perParticipant), nil
}

// SumPlainAcrossParticipants is SumAcrossParticipants's cleartext-mode
// counterpart: aggregation applies the same fold-then-gate-then-
// average shape whether or not the per-participant values were ever
// encrypted.
func SumPlainAcrossParticipants(name string, perParticipant []value.Vector) (value.Vector, int, error) {
	if len(perParticipant) == 0 {
		return nil, 0, fmt.Errorf("aggregate: kpi %q: no participants reported a value", name)
	}
	lens := make([]int, len(perParticipant))
	mismatch := false
	for i, v := range perParticipant {
		lens[i] = v.Len()
		if lens[i] != lens[0] {
			mismatch = true
		}
	}
	if mismatch {
		return nil, 0, &KPIMismatchError{Name: name, Lens: lens}
	}
	sum, err := value.AddN(perParticipant...)
	if err != nil {
		return nil, 0, err
	}
	return sum, len(perParticipant), nil
}

// AveragePlain is StatsServer.Average's cleartext-mode counterpart:
// the same k-anonymity gate, no decryption step.
func AveragePlain(kpi string, sum value.Vector, participantCount, k int) (value.Vector, error) {
	if participantCount < k {
		return nil, &KAnonymityError{KPI: kpi, Count: participantCount, K: k}
	}
	out := make(value.Vector, len(sum))
	for i, total := range sum {
		out[i] = total / float64(participantCount)
	}
	return out, nil
}

// StatsServer is the anonymity-gating principal: it holds the second
// key (never shared with the proxy or any participant) and the
// anonymity threshold.
type StatsServer struct {
	Owner   *keymat.Owner
	K       int
	Metrics metrics.Recorder
}

// NewStatsServer returns a StatsServer with k as its anonymity
// threshold. A nil rec wires in metrics.Discard.
func NewStatsServer(owner *keymat.Owner, k int, rec metrics.Recorder) *StatsServer {
	if rec == nil {
		rec = metrics.Discard
	}
	return &StatsServer{Owner: owner, K: k, Metrics: rec}
}

// Average decrypts sum (the proxy's encrypted cross-participant fold
// for one KPI), gates on participantCount, and returns the per-slot
// average. min/max have no encrypted reduction and are always
// reported as an all-zero vector of the same length by callers that
// need one, never computed here.
func (s *StatsServer) Average(kpi string, sum *encvalue.Vector, participantCount int) (value.Vector, error) {
	if participantCount < s.K {
		return nil, &KAnonymityError{KPI: kpi, Count: participantCount, K: s.K}
	}
	plain, err := encvalue.Decrypt(s.Owner.Decryptor, s.Owner.Bundle, sum)
	if err != nil {
		return nil, fmt.Errorf("aggregate: kpi %q: decrypt sum: %w", kpi, err)
	}
	out := make(value.Vector, len(plain))
	for i, total := range plain {
		out[i] = total / float64(participantCount)
	}
	return out, nil
}

// ZeroReduction returns an all-zero vector of len, the reported value
// for min/max group reductions — both unsupported under FHE.
func ZeroReduction(len int) value.Vector {
	return make(value.Vector, len)
}

// driftThreshold is the maximum tolerated relative error between an
// encrypted-mode and plaintext-mode result per slot before the
// accuracy pass logs a warning.
const driftThreshold = 0.02

// CheckAccuracy cross-checks encMean (this package's encrypted-sum-
// derived average) against the plaintext reference computed directly
// from every participant's cleartext value for the same KPI slot,
// using the same per-slot mean reduction. A deviation beyond
// driftThreshold on any slot is reported as a warning, never a fatal
// error.
func (s *StatsServer) CheckAccuracy(kpi string, encMean value.Vector, plainPerParticipant [][]float64) error {
	if len(plainPerParticipant) == 0 {
		return nil
	}
	nSlots := len(plainPerParticipant[0])
	for slot := 0; slot < nSlots; slot++ {
		sample := make(stats.Float64Data, len(plainPerParticipant))
		for p, vals := range plainPerParticipant {
			sample[p] = vals[slot]
		}
		ref, err := stats.Mean(sample)
		if err != nil {
			return fmt.Errorf("aggregate: kpi %q: accuracy pass: %w", kpi, err)
		}
		if slot >= len(encMean) {
			break
		}
		if ref == 0 {
			continue
		}
		relErr := math.Abs(encMean[slot]-ref) / math.Abs(ref)
		if relErr > driftThreshold {
			s.Metrics.Warn("kpi %q slot %d: encrypted mean %.6f deviates %.2f%% from plaintext reference %.6f", kpi, slot, encMean[slot], relErr*100, ref)
		}
	}
	return nil
}
