package proxy

import (
	"sync"

	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/value"
)

// PlainParticipant is one participant's seeded inputs for a cleartext
// run.
type PlainParticipant struct {
	ID   string
	Seed map[string]value.Vector
}

// PlainResult is the outcome of evaluating one participant's inputs
// against an Algorithm.
type PlainResult struct {
	ID   string
	KPIs map[string]value.Vector
	Err  error
}

// RunManyPlain evaluates alg independently for every participant,
// fanning the work out one goroutine per participant and joining on a
// WaitGroup barrier before returning — the aggregation stage needs
// every participant's KPIs available at once. rec is shared across
// workers; pass a metrics.NewMutexRecorder() or metrics.Discard, never
// a bare struct literal.
func RunManyPlain(alg *algorithm.Algorithm, rec metrics.Recorder, participants []PlainParticipant) []PlainResult {
	results := make([]PlainResult, len(participants))

	wg := &sync.WaitGroup{}
	wg.Add(len(participants))
	for i, p := range participants {
		go func(i int, p PlainParticipant) {
			defer wg.Done()
			engine := NewPlainEngine(rec)
			kpis, err := engine.Run(alg, p.Seed)
			results[i] = PlainResult{ID: p.ID, KPIs: kpis, Err: err}
		}(i, p)
	}
	wg.Wait()

	return results
}

// EncryptedParticipant is one participant's seeded ciphertext inputs,
// key bundle and offload callback for an encrypted run.
type EncryptedParticipant struct {
	ID        string
	Bundle    *keymat.Bundle
	Offloader Offloader
	Seed      map[string]*encvalue.Vector
}

// EncryptedResult is the outcome of evaluating one participant's
// ciphertext inputs against an Algorithm.
type EncryptedResult struct {
	ID   string
	KPIs map[string]*encvalue.Vector
	Err  error
}

// RunManyEncrypted is RunManyPlain's encrypted-mode counterpart: one
// EncryptedEngine per participant, run concurrently, joined before
// returning.
func RunManyEncrypted(alg *algorithm.Algorithm, cfg catalog.ConfigDocument, rec metrics.Recorder, participants []EncryptedParticipant) []EncryptedResult {
	results := make([]EncryptedResult, len(participants))

	wg := &sync.WaitGroup{}
	wg.Add(len(participants))
	for i, p := range participants {
		go func(i int, p EncryptedParticipant) {
			defer wg.Done()
			engine := NewEncryptedEngine(cfg, p.Bundle, p.Offloader, rec)
			kpis, err := engine.Run(alg, p.Seed)
			results[i] = EncryptedResult{ID: p.ID, KPIs: kpis, Err: err}
		}(i, p)
	}
	wg.Wait()

	return results
}
