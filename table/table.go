// Package table implements the resolved-values table: a
// write-once, insertion-ordered map from atomic name to the value that
// atomic resolved to, plain or encrypted, with selective eviction for
// memory reclamation in encrypted mode.
package table

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Value is the narrow shared contract between value.Vector and
// encvalue.Vector — the only thing the table itself needs to know
// about a resolved value is its semantic length.
type Value interface {
	Len() int
}

// DuplicateKeyError reports a write-once violation: a name was
// inserted twice.
type DuplicateKeyError struct {
	Name string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("table: %q already resolved (write-once violation)", e.Name)
}

// Table is a write-once, insertion-ordered map from atomic name to
// resolved value.
type Table struct {
	values map[string]Value
	order  []string
}

// New returns an empty Table.
func New() *Table {
	return &Table{values: make(map[string]Value)}
}

// Insert stores v under name. Inserting an already-present name fails
// with a *DuplicateKeyError.
func (t *Table) Insert(name string, v Value) error {
	if _, ok := t.values[name]; ok {
		return &DuplicateKeyError{Name: name}
	}
	t.values[name] = v
	t.order = append(t.order, name)
	return nil
}

// Get fetches the value resolved for name, if any.
func (t *Table) Get(name string) (Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Len returns the number of entries currently held.
func (t *Table) Len() int {
	return len(t.order)
}

// Keys returns the currently-held names in insertion order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Evict deletes every entry in names, if present.
func (t *Table) Evict(names []string) {
	if len(names) == 0 {
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	delete0 := func(n string) bool { return drop[n] }
	for n := range drop {
		delete(t.values, n)
	}
	t.order = slices.DeleteFunc(t.order, delete0)
}
