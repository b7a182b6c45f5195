package flow

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrFlowExists is returned when a key, or its reversal, is already tracked.
var ErrFlowExists = errors.New("flowstat: flow already exists")

// Table maps flow keys to records. A key is stored in one orientation
// only; lookups of the reversed key resolve to the same record.
//
// A Table is owned by a single goroutine and is not safe for concurrent use.
type Table struct {
	flows map[Key]*Record
	next  uint64
}

// Row is one table entry as handed to reporters.
type Row struct {
	Key    Key
	Record *Record
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{flows: make(map[Key]*Record)}
}

// Lookup finds the record for k in either orientation. Forward means k
// matched as stored; Backward means k.Reverse() did.
func (t *Table) Lookup(k Key) (*Record, Direction, bool) {
	if rec, ok := t.flows[k]; ok {
		return rec, Forward, true
	}
	if rec, ok := t.flows[k.Reverse()]; ok {
		return rec, Backward, true
	}
	return nil, Forward, false
}

// Create inserts an empty record under k.
func (t *Table) Create(k Key) (*Record, error) {
	if _, _, ok := t.Lookup(k); ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowExists, k)
	}
	rec := &Record{}
	t.insert(k, rec)
	return rec, nil
}

func (t *Table) insert(k Key, rec *Record) {
	rec.seq = t.next
	t.next++
	t.flows[k] = rec
}

// Len returns the number of flows.
func (t *Table) Len() int {
	return len(t.flows)
}

// Rows returns all entries ordered by the frame that created them, then
// by insertion order.
func (t *Table) Rows() []Row {
	rows := make([]Row, 0, len(t.flows))
	for k, rec := range t.flows {
		rows = append(rows, Row{Key: k, Record: rec})
	}
	slices.SortFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(a.Record.Frame, b.Record.Frame); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.seq, b.Record.seq)
	})
	return rows
}

// Range calls fn for every entry in Rows order until fn returns false.
func (t *Table) Range(fn func(Key, *Record) bool) {
	for _, row := range t.Rows() {
		if !fn(row.Key, row.Record) {
			return
		}
	}
}

// Merge moves every entry of other into t. Tables built from disjoint
// key sets merge cleanly; a shared flow yields ErrFlowExists and leaves
// the remaining entries unmerged.
func (t *Table) Merge(other *Table) error {
	for _, row := range other.Rows() {
		if _, _, ok := t.Lookup(row.Key); ok {
			return fmt.Errorf("merge: %w: %s", ErrFlowExists, row.Key)
		}
		t.insert(row.Key, row.Record)
	}
	return nil
}
