// Package catalog defines the thin YAML-shaped external interfaces of
// the system: the KPI algorithm catalog, a participant's input
// vectors, and the run configuration. Parsing these documents is an
// external collaborator's job (file I/O and CLI wiring are non-goals
// of the engine); this package owns only the schema and a byte-level
// decode, never the filesystem.
package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AtomicRecord is one entry in the algorithm catalog's `operations`
// sequence.
type AtomicRecord struct {
	Name     string   `yaml:"name"`
	Op       string   `yaml:"op"`
	Var      []string `yaml:"var"`
	IsKPI    bool     `yaml:"is_kpi"`
	Constant *float64 `yaml:"constant"`
}

// Document is the top-level algorithm catalog YAML document.
type Document struct {
	Operations []AtomicRecord `yaml:"operations"`
}

// DecodeAlgorithm parses an algorithm catalog YAML document.
func DecodeAlgorithm(b []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("catalog: decode algorithm: %w", err)
	}
	return doc, nil
}

// VarRecord is one entry in a participant input document's `vars`
// sequence.
type VarRecord struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// InputDocument is the top-level participant input YAML document.
type InputDocument struct {
	Vars []VarRecord `yaml:"vars"`
}

// DecodeInput parses a participant input YAML document.
func DecodeInput(b []byte) (InputDocument, error) {
	var doc InputDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return InputDocument{}, fmt.Errorf("catalog: decode input: %w", err)
	}
	return doc, nil
}

// CryptoConfig holds the CKKS parameters named in the crypto config schema.
type CryptoConfig struct {
	Polymod int     `yaml:"polymod"`
	Level   int     `yaml:"level"`
	Scale   float64 `yaml:"scale"`
}

// Mode selects cleartext or encrypted evaluation.
type Mode string

const (
	ModePlaintext Mode = "plaintext"
	ModeEncrypted Mode = "encrypted"
)

// ConfigDocument is the top-level run configuration YAML document.
type ConfigDocument struct {
	Mode       Mode         `yaml:"mode"`
	Crypto     CryptoConfig `yaml:"crypto"`
	Offload    []string     `yaml:"offload"`
	Evaluation bool         `yaml:"evaluation"`
	Networking bool         `yaml:"networking"`
}

// DecodeConfig parses a run configuration YAML document.
func DecodeConfig(b []byte) (ConfigDocument, error) {
	var doc ConfigDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return ConfigDocument{}, fmt.Errorf("catalog: decode config: %w", err)
	}
	return doc, nil
}
