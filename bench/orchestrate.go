package bench

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/tuneinsight/kpibench/aggregate"
	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/participant"
	"github.com/tuneinsight/kpibench/proxy"
	"github.com/tuneinsight/kpibench/value"
)

// RunPaths names the four files a run is driven from, matching the
// CLI's `-a -i -e -c` flags.
type RunPaths struct {
	Algorithm string
	InputDir  string
	Config    string
	Output    string
}

// Run drives one end-to-end benchmarking pass: load the algorithm,
// config and participant inputs, evaluate every participant, aggregate
// their per-KPI results, and append a summary Row to the evaluation
// CSV at paths.Output.
func Run(paths RunPaths) (map[string]value.Vector, error) {
	alg, err := LoadAlgorithm(paths.Algorithm)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(paths.Config)
	if err != nil {
		return nil, err
	}
	inputs, err := LoadParticipantInputs(paths.InputDir)
	if err != nil {
		return nil, err
	}

	rec := metrics.NewMutexRecorder()

	start := time.Now()
	var avg map[string]value.Vector
	var row Row
	if cfg.Mode == catalog.ModeEncrypted {
		avg, row, err = runEncrypted(alg, cfg, inputs, rec)
	} else {
		avg, row, err = runPlain(alg, inputs, rec)
	}
	if err != nil {
		return nil, err
	}
	row.Benchmarking = time.Since(start)
	row.Sample = len(inputs)
	row.Levels = cfg.Crypto.Level

	snap := rec.Snapshot()
	row.TrafficBytes = snap.BytesTraffic
	row.CiphersUp = snap.CiphersUp
	row.CiphersDown = snap.CiphersDown
	row.OpOffloadCount = snap.OffloadTotal()
	if total := snap.LocalTotal() + snap.OffloadTotal(); total > 0 {
		row.OpLocalMean = float64(snap.LocalTotal()) / float64(total)
		row.OpOffloadMean = float64(snap.OffloadTotal()) / float64(total)
		row.OffloadedPct = row.OpOffloadMean * 100
	}
	if ciphers := snap.CiphersUp + snap.CiphersDown; ciphers > 0 {
		row.CipherSize = int(snap.BytesTraffic) / ciphers
	}
	if len(inputs) > 0 {
		row.BenchmarkingClientsMean = row.Benchmarking.Seconds() / float64(len(inputs))
	}

	if err := appendRow(paths.Output, row); err != nil {
		return nil, err
	}
	return avg, nil
}

func runPlain(alg *algorithm.Algorithm, inputs []ParticipantInput, rec metrics.Recorder) (map[string]value.Vector, Row, error) {
	participants := make([]proxy.PlainParticipant, len(inputs))
	for i, in := range inputs {
		seed, err := seedPlain(alg, in.Vars)
		if err != nil {
			return nil, Row{}, err
		}
		participants[i] = proxy.PlainParticipant{ID: in.ID, Seed: seed}
	}

	results := proxy.RunManyPlain(alg, rec, participants)
	perParticipant := make([]map[string]value.Vector, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: %w", r.ID, r.Err)
		}
		perParticipant = append(perParticipant, r.KPIs)
	}

	avg, err := aggregatePlain(alg, perParticipant)
	return avg, Row{}, err
}

func runEncrypted(alg *algorithm.Algorithm, cfg catalog.ConfigDocument, inputs []ParticipantInput, rec metrics.Recorder) (map[string]value.Vector, Row, error) {
	statsOwner, err := keymat.NewOwner(statsCryptoConfig(cfg.Crypto))
	if err != nil {
		return nil, Row{}, fmt.Errorf("bench: build statistics-server keys: %w", err)
	}

	keygenStart := time.Now()
	owners := make([]*keymat.Owner, len(inputs))
	people := make([]*participant.Participant, len(inputs))
	ep := make([]proxy.EncryptedParticipant, len(inputs))
	keygenBytes := 0
	for i, in := range inputs {
		owner, err := keymat.NewOwner(cfg.Crypto)
		if err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: build keys: %w", in.ID, err)
		}
		owners[i] = owner
		people[i] = participant.New(in.ID, owner, in.Vars, rec)

		seed, err := people[i].EncryptInputs(alg.Required)
		if err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: %w", in.ID, err)
		}
		ep[i] = proxy.EncryptedParticipant{ID: in.ID, Bundle: owner.Bundle, Offloader: people[i], Seed: seed}

		if b, err := owner.Bundle.Params.MarshalBinary(); err == nil {
			keygenBytes += len(b)
		}
	}
	keygenElapsed := time.Since(keygenStart)

	results := proxy.RunManyEncrypted(alg, cfg, rec, ep)

	proxyAggStart := time.Now()
	reencrypted := make([]map[string]*encvalue.Vector, len(results))
	plainPerParticipant := make([]map[string]value.Vector, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: %w", r.ID, r.Err)
		}
		plain, err := people[i].DecryptKPIs(r.KPIs)
		if err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: %w", r.ID, err)
		}
		plainPerParticipant[i] = plain
		reenc, err := people[i].ReencryptForAggregation(plain, statsOwner.Bundle)
		if err != nil {
			return nil, Row{}, fmt.Errorf("bench: participant %q: %w", r.ID, err)
		}
		reencrypted[i] = reenc
	}

	server := aggregate.NewStatsServer(statsOwner, len(inputs), rec)
	sums := make(map[string]*encvalue.Vector, len(alg.KPIs))
	counts := make(map[string]int, len(alg.KPIs))
	plainSamples := make(map[string][][]float64, len(alg.KPIs))
	for _, kpi := range alg.KPIs {
		perParticipant := make([]*encvalue.Vector, len(reencrypted))
		samples := make([][]float64, len(plainPerParticipant))
		for i, m := range reencrypted {
			perParticipant[i] = m[kpi]
			samples[i] = []float64(plainPerParticipant[i][kpi])
		}
		sum, count, err := aggregate.SumAcrossParticipants(kpi, perParticipant)
		if err != nil {
			return nil, Row{}, err
		}
		sums[kpi] = sum
		counts[kpi] = count
		plainSamples[kpi] = samples
	}
	proxyAggElapsed := time.Since(proxyAggStart)

	serverAggStart := time.Now()
	avg := make(map[string]value.Vector, len(alg.KPIs))
	relErrs := make(stats.Float64Data, 0, len(alg.KPIs))
	for _, kpi := range alg.KPIs {
		v, err := server.Average(kpi, sums[kpi], counts[kpi])
		if err != nil {
			return nil, Row{}, err
		}
		if err := server.CheckAccuracy(kpi, v, plainSamples[kpi]); err != nil {
			return nil, Row{}, err
		}
		relErrs = append(relErrs, relativeError(v, plainSamples[kpi])...)
		avg[kpi] = v
	}
	serverAggElapsed := time.Since(serverAggStart)
	accuracy, _ := stats.Mean(relErrs)

	clientSizes := make(stats.Float64Data, 0, len(owners))
	for _, o := range owners {
		if b, err := o.Bundle.Params.MarshalBinary(); err == nil {
			clientSizes = append(clientSizes, float64(len(b)))
		}
	}
	clientAggMean, _ := stats.Mean(clientSizes)

	return avg, Row{
		Keygen:        keygenElapsed,
		KeygenSize:    keygenBytes,
		ProxyAgg:      proxyAggElapsed,
		ServerAgg:     serverAggElapsed,
		ClientAggMean: clientAggMean,
		Accuracy:      accuracy,
	}, nil
}

// relativeError returns |encMean[i]-ref_i|/|ref_i| for every slot whose
// plaintext reference across participants is non-zero, using the same
// per-slot mean CheckAccuracy compares against.
func relativeError(encMean value.Vector, plainPerParticipant [][]float64) []float64 {
	if len(plainPerParticipant) == 0 {
		return nil
	}
	out := make([]float64, 0, len(plainPerParticipant[0]))
	for slot := 0; slot < len(plainPerParticipant[0]) && slot < len(encMean); slot++ {
		sample := make(stats.Float64Data, len(plainPerParticipant))
		for p, vals := range plainPerParticipant {
			sample[p] = vals[slot]
		}
		ref, err := stats.Mean(sample)
		if err != nil || ref == 0 {
			continue
		}
		out = append(out, math.Abs(encMean[slot]-ref)/math.Abs(ref))
	}
	return out
}

func statsCryptoConfig(participantCfg catalog.CryptoConfig) catalog.CryptoConfig {
	cfg := participantCfg
	cfg.Scale = 1 << 20
	return cfg
}

func seedPlain(alg *algorithm.Algorithm, vars map[string]value.Vector) (map[string]value.Vector, error) {
	seed := make(map[string]value.Vector, len(alg.Required))
	for _, name := range alg.Required {
		v, ok := vars[name]
		if !ok {
			return nil, &participant.MissingInputError{Name: name}
		}
		seed[name] = v
	}
	return seed, nil
}

func aggregatePlain(alg *algorithm.Algorithm, perParticipant []map[string]value.Vector) (map[string]value.Vector, error) {
	avg := make(map[string]value.Vector, len(alg.KPIs))
	k := len(perParticipant)
	for _, kpi := range alg.KPIs {
		values := make([]value.Vector, len(perParticipant))
		for i, m := range perParticipant {
			values[i] = m[kpi]
		}
		sum, count, err := aggregate.SumPlainAcrossParticipants(kpi, values)
		if err != nil {
			return nil, err
		}
		v, err := aggregate.AveragePlain(kpi, sum, count, k)
		if err != nil {
			return nil, err
		}
		avg[kpi] = v
	}
	return avg, nil
}

func appendRow(path string, row Row) error {
	_, statErr := os.Stat(path)
	firstWrite := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("bench: open evaluation csv: %w", err)
	}
	defer f.Close()

	w := NewWriter(f, firstWrite)
	return w.Append(row)
}
