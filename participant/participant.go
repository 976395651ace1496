// Package participant implements the input owner's three services:
// encrypting its declared variables for the benchmarking phase,
// servicing the proxy's offload requests (decrypt, run the cleartext
// kernel, re-encrypt), and — once the proxy returns per-participant
// KPIs — decrypting them and re-encrypting under the statistics
// server's key for aggregation. The decryption key never leaves this
// package's Owner.
package participant

import (
	"fmt"

	"github.com/tuneinsight/kpibench/encvalue"
	"github.com/tuneinsight/kpibench/keymat"
	"github.com/tuneinsight/kpibench/metrics"
	"github.com/tuneinsight/kpibench/ops"
	"github.com/tuneinsight/kpibench/value"
)

// Participant is one input owner: its plaintext variable dictionary,
// its own CKKS key owner, and the metrics sink it reports sign-masking
// warnings to.
type Participant struct {
	ID      string
	Owner   *keymat.Owner
	Vars    map[string]value.Vector
	Metrics metrics.Recorder
}

// New returns a Participant holding owner as its key owner. A nil rec
// wires in metrics.Discard.
func New(id string, owner *keymat.Owner, vars map[string]value.Vector, rec metrics.Recorder) *Participant {
	if rec == nil {
		rec = metrics.Discard
	}
	return &Participant{ID: id, Owner: owner, Vars: vars, Metrics: rec}
}

// MissingInputError reports a required-input name the participant's
// variable dictionary has no entry for.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("participant: missing required input %q", e.Name)
}

// BudgetError reports that an offload round trip itself failed — the
// proxy routed op here because it ran out of scale/level budget, and
// the participant's own decrypt-evaluate-reencrypt path failed too
// (e.g. the plain kernel rejects the decrypted operands, or
// re-encryption exhausts the fresh budget a second time). Unlike the
// offload signal that sent the operation here, this is fatal: there
// is no further principal to route to.
type BudgetError struct {
	Op  string
	Err error
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("participant: offload %s: budget exhausted: %v", e.Op, e.Err)
}

func (e *BudgetError) Unwrap() error { return e.Err }

// EncryptInputs encrypts every name in required under the
// participant's own key bundle, the seed the proxy's encrypted-mode
// schedule walk starts from.
func (p *Participant) EncryptInputs(required []string) (map[string]*encvalue.Vector, error) {
	out := make(map[string]*encvalue.Vector, len(required))
	for _, name := range required {
		v, ok := p.Vars[name]
		if !ok {
			return nil, &MissingInputError{Name: name}
		}
		ct, err := encvalue.Encrypt(p.Owner.Bundle, v)
		if err != nil {
			return nil, err
		}
		out[name] = ct
	}
	return out, nil
}

// Offload services one proxy round trip: decrypt every operand,
// invoke the same plain kernel cleartext mode would use, re-encrypt
// the result under the participant's own bundle. It implements
// proxy.Offloader.
func (p *Participant) Offload(op string, operands []*encvalue.Vector, constant *float64) (*encvalue.Vector, error) {
	plain := make([]value.Vector, len(operands))
	for i, ct := range operands {
		v, err := encvalue.Decrypt(p.Owner.Decryptor, p.Owner.Bundle, ct)
		if err != nil {
			return nil, &BudgetError{Op: op, Err: fmt.Errorf("decrypt operand %d: %w", i, err)}
		}
		plain[i] = v
	}

	if op == "Squareroot" {
		for _, v := range plain {
			if v.HasNegative() {
				p.Metrics.Warn("participant %s: Squareroot operand has a negative slot, sign masked by abs", p.ID)
				break
			}
		}
	}

	out, err := ops.ExecutePlain(op, plain, constant)
	if err != nil {
		return nil, &BudgetError{Op: op, Err: err}
	}

	ct, err := encvalue.Encrypt(p.Owner.Bundle, out)
	if err != nil {
		return nil, &BudgetError{Op: op, Err: fmt.Errorf("re-encrypt result: %w", err)}
	}
	return ct, nil
}

// DecryptKPIs decrypts the proxy's per-KPI results under the
// participant's own key.
func (p *Participant) DecryptKPIs(kpis map[string]*encvalue.Vector) (map[string]value.Vector, error) {
	out := make(map[string]value.Vector, len(kpis))
	for name, ct := range kpis {
		v, err := encvalue.Decrypt(p.Owner.Decryptor, p.Owner.Bundle, ct)
		if err != nil {
			return nil, fmt.Errorf("participant: decrypt kpi %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// ReencryptForAggregation re-encodes each decrypted KPI under the
// statistics server's bundle so the proxy can sum across participants
// without this participant's own key being involved.
func (p *Participant) ReencryptForAggregation(kpis map[string]value.Vector, statsBundle *keymat.Bundle) (map[string]*encvalue.Vector, error) {
	out := make(map[string]*encvalue.Vector, len(kpis))
	for name, v := range kpis {
		ct, err := encvalue.Encrypt(statsBundle, v)
		if err != nil {
			return nil, fmt.Errorf("participant: re-encrypt kpi %q for aggregation: %w", name, err)
		}
		out[name] = ct
	}
	return out, nil
}
