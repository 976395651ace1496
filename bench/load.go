package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tuneinsight/kpibench/algorithm"
	"github.com/tuneinsight/kpibench/catalog"
	"github.com/tuneinsight/kpibench/value"
)

// LoadAlgorithm reads and parses the algorithm catalog at path.
func LoadAlgorithm(path string) (*algorithm.Algorithm, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bench: read algorithm catalog: %w", err)
	}
	doc, err := catalog.DecodeAlgorithm(b)
	if err != nil {
		return nil, err
	}
	return algorithm.Parse(doc.Operations)
}

// LoadConfig reads and decodes the run configuration at path.
func LoadConfig(path string) (catalog.ConfigDocument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return catalog.ConfigDocument{}, fmt.Errorf("bench: read config: %w", err)
	}
	return catalog.DecodeConfig(b)
}

// ParticipantInput is one decoded participant-input file: its ID (the
// file's base name, used for stable naming, not lexicographic sort —
// sort happens on the directory listing itself) and its declared
// variables.
type ParticipantInput struct {
	ID   string
	Vars map[string]value.Vector
}

// LoadParticipantInputs reads every regular file in dir, sorted
// lexicographically by filename, so aggregation order is
// reproducible across runs.
func LoadParticipantInputs(dir string) ([]ParticipantInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("bench: read input directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]ParticipantInput, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("bench: read participant input %q: %w", name, err)
		}
		doc, err := catalog.DecodeInput(b)
		if err != nil {
			return nil, fmt.Errorf("bench: decode participant input %q: %w", name, err)
		}
		vars := make(map[string]value.Vector, len(doc.Vars))
		for _, v := range doc.Vars {
			vars[v.Name] = value.New(v.Values)
		}
		out = append(out, ParticipantInput{ID: name, Vars: vars})
	}
	return out, nil
}
