// Package localstore implements the abstract persistent storage
// collaborator the core requires: a key/value store exposing
// get/put/find/delete/clear/bulk* over a small set of indexed tables
// (device_keys, resource_keys, users, groups, trustchain, unverified).
// The real production backing store is an external collaborator; this
// package gives the core a concrete, exercised implementation over
// gitlab.com/elixxir/ekv so the rest of the module has something to run
// against and test with, the way the collective/ package gives its
// storage interfaces a concrete ekv-backed implementation.
package localstore

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/trustmesh/trustmesh-core/localstore/versioned"
)

// Row is anything a Table can store: a stable string Key and a json-
// serializable body.
type Row interface {
	RowKey() string
}

// Selector decides whether a row belongs in a Find result.
type Selector[T Row] func(T) bool

// Less orders two rows for a sorted Find result.
type Less[T Row] func(a, b T) bool

const tableVersion = 0

// Table is a generic indexed table over a versioned.KV: every row is
// persisted individually (so Get/Put/Delete touch exactly one record) and
// an in-memory manifest of live keys backs Find, Clear, and the bulk
// variants, giving the core a set of indexed tables without requiring the
// backing KV itself to support enumeration (ekv does not).
type Table[T Row] struct {
	mu       sync.RWMutex
	kv       *versioned.KV
	name     string
	manifest map[string]struct{}
}

// NewTable opens (or creates) a table namespaced under name within kv.
func NewTable[T Row](kv *versioned.KV, name string) *Table[T] {
	t := &Table[T]{
		kv:       kv.Prefix(name),
		name:     name,
		manifest: make(map[string]struct{}),
	}
	t.loadManifest()
	return t
}

func (t *Table[T]) manifestKey() string { return "manifest" }

func (t *Table[T]) loadManifest() {
	obj, err := t.kv.Get(t.manifestKey(), tableVersion)
	if err != nil {
		return
	}
	var keys []string
	if err := json.Unmarshal(obj.Data, &keys); err != nil {
		return
	}
	for _, k := range keys {
		t.manifest[k] = struct{}{}
	}
}

func (t *Table[T]) saveManifestLocked() error {
	keys := make([]string, 0, len(t.manifest))
	for k := range t.manifest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s manifest", t.name)
	}
	return t.kv.Set(t.manifestKey(), &versioned.Object{Version: tableVersion, Data: data})
}

// Put upserts a row, keyed by row.RowKey().
func (t *Table[T]) Put(row T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s row %s", t.name, row.RowKey())
	}
	if err := t.kv.Set(row.RowKey(), &versioned.Object{Version: tableVersion, Data: data}); err != nil {
		return errors.Wrapf(err, "failed to store %s row %s", t.name, row.RowKey())
	}
	t.manifest[row.RowKey()] = struct{}{}
	return t.saveManifestLocked()
}

// Get fetches one row by key.
func (t *Table[T]) Get(key string) (T, error) {
	var zero T
	t.mu.RLock()
	defer t.mu.RUnlock()

	obj, err := t.kv.Get(key, tableVersion)
	if err != nil {
		return zero, errors.Wrapf(err, "%s: row %s not found", t.name, key)
	}
	var row T
	if err := json.Unmarshal(obj.Data, &row); err != nil {
		return zero, errors.Wrapf(err, "failed to unmarshal %s row %s", t.name, key)
	}
	return row, nil
}

// Delete removes one row by key.
func (t *Table[T]) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.kv.Delete(key, tableVersion); err != nil {
		return errors.Wrapf(err, "failed to delete %s row %s", t.name, key)
	}
	delete(t.manifest, key)
	return t.saveManifestLocked()
}

// Clear drops every row in the table.
func (t *Table[T]) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.manifest {
		if err := t.kv.Delete(key, tableVersion); err != nil {
			return errors.Wrapf(err, "failed to clear %s row %s", t.name, key)
		}
	}
	t.manifest = make(map[string]struct{})
	return t.saveManifestLocked()
}

// Find returns every row matching selector, ordered by less (if non-nil),
// truncated to limit rows (0 means unlimited).
func (t *Table[T]) Find(selector Selector[T], less Less[T], limit int) ([]T, error) {
	t.mu.RLock()
	keys := make([]string, 0, len(t.manifest))
	for k := range t.manifest {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)

	results := make([]T, 0, len(keys))
	for _, k := range keys {
		row, err := t.Get(k)
		if err != nil {
			continue
		}
		if selector == nil || selector(row) {
			results = append(results, row)
		}
	}

	if less != nil {
		sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// BulkPut stores every row in rows.
func (t *Table[T]) BulkPut(rows []T) error {
	for _, r := range rows {
		if err := t.Put(r); err != nil {
			return err
		}
	}
	return nil
}

// BulkGet fetches every row named in keys, skipping ones that don't exist.
func (t *Table[T]) BulkGet(keys []string) ([]T, error) {
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		row, err := t.Get(k)
		if err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
