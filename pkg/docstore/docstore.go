// Package docstore defines a small hierarchical document store: documents live at
// slash separated paths of alternating collection and document ids
// (users/u1/patients/p1), carry an optimistic version, and can be written
// together through an atomic batch.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	ErrConflict      = errors.New("docstore: version conflict")
	ErrInvalidPath   = errors.New("docstore: invalid document path")
)

// Document is a stored JSON document.
type Document struct {
	Path       string
	Data       json.RawMessage
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
}

// ID returns the last path segment.
func (d *Document) ID() string {
	_, _, id := Split(d.Path)
	return id
}

// ParentDoc returns the path of the document owning the collection, or "" for root collections.
func (d *Document) ParentDoc() string {
	parent, _, _ := Split(d.Path)
	if i := strings.LastIndex(parent, "/"); i >= 0 {
		return parent[:i]
	}
	return ""
}

// DataTo decodes the document payload into v.
func (d *Document) DataTo(v interface{}) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.Path, err)
	}
	return nil
}

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query on a top-level field.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

func Where(field string, op Op, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Store is the document store contract consumed by the repositories.
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, path string, data interface{}) error
	// Create fails with ErrAlreadyExists when the document exists.
	Create(ctx context.Context, path string, data interface{}) error
	// Update replaces the document only if its current version equals version.
	Update(ctx context.Context, path string, data interface{}, version int64) error
	// Delete is idempotent.
	Delete(ctx context.Context, path string) error
	// DeleteIf removes the document only if its current version equals version.
	DeleteIf(ctx context.Context, path string, version int64) error
	// Query lists documents directly inside collectionPath.
	Query(ctx context.Context, collectionPath string, filters ...Filter) ([]*Document, error)
	// CollectionGroup lists documents of every collection named collectionID.
	CollectionGroup(ctx context.Context, collectionID string, filters ...Filter) ([]*Document, error)
	Batch() Batch
	Close() error
}

// Batch groups writes that commit all together or not at all.
type Batch interface {
	Set(path string, data interface{}) Batch
	Create(path string, data interface{}) Batch
	Update(path string, data interface{}, version int64) Batch
	Delete(path string) Batch
	DeleteIf(path string, version int64) Batch
	Commit(ctx context.Context) error
}

type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteCreate
	WriteUpdate
	WriteDelete
	WriteDeleteIf
)

// Write is a single staged batch operation.
type Write struct {
	Kind    WriteKind
	Path    string
	Data    json.RawMessage
	Version int64
}

// CommitFunc applies staged writes atomically.
type CommitFunc func(ctx context.Context, writes []Write) error

type batch struct {
	writes []Write
	commit CommitFunc
	err    error
}

// NewBatch returns a Batch that collects writes and hands them to commit.
func NewBatch(commit CommitFunc) Batch {
	return &batch{commit: commit}
}

func (b *batch) add(kind WriteKind, path string, data interface{}, version int64) Batch {
	if b.err != nil {
		return b
	}
	if err := ValidatePath(path); err != nil {
		b.err = err
		return b
	}
	w := Write{Kind: kind, Path: path, Version: version}
	if kind != WriteDelete && kind != WriteDeleteIf {
		raw, err := Encode(data)
		if err != nil {
			b.err = err
			return b
		}
		w.Data = raw
	}
	b.writes = append(b.writes, w)
	return b
}

func (b *batch) Set(path string, data interface{}) Batch {
	return b.add(WriteSet, path, data, 0)
}

func (b *batch) Create(path string, data interface{}) Batch {
	return b.add(WriteCreate, path, data, 0)
}

func (b *batch) Update(path string, data interface{}, version int64) Batch {
	return b.add(WriteUpdate, path, data, version)
}

func (b *batch) Delete(path string) Batch {
	return b.add(WriteDelete, path, nil, 0)
}

func (b *batch) DeleteIf(path string, version int64) Batch {
	return b.add(WriteDeleteIf, path, nil, version)
}

func (b *batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.commit(ctx, b.writes)
}

// Encode marshals a payload, passing raw JSON through untouched.
func Encode(data interface{}) (json.RawMessage, error) {
	switch v := data.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}

// ValidatePath checks that path names a document: an even, non-zero number of non-empty segments.
func ValidatePath(path string) error {
	segs := strings.Split(path, "/")
	if len(segs) == 0 || len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}

// Split breaks a document path into its collection path, collection id and document id.
func Split(path string) (collectionPath, collectionID, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", "", path
	}
	collectionPath = path[:i]
	id = path[i+1:]
	collectionID = collectionPath
	if j := strings.LastIndex(collectionPath, "/"); j >= 0 {
		collectionID = collectionPath[j+1:]
	}
	return collectionPath, collectionID, id
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Match evaluates filters against a document payload.
func Match(data json.RawMessage, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("failed to decode document for filtering: %w", err)
	}
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		got, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		switch f.Op {
		case OpEqual:
			if !jsonEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			items, ok := got.([]interface{})
			if !ok {
				return false, nil
			}
			found := false
			for _, item := range items {
				if jsonEqual(item, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

// Containment renders a filter as a JSON containment document ({"field": value} or {"field": [value]}).
func Containment(f Filter) (json.RawMessage, error) {
	var doc map[string]interface{}
	switch f.Op {
	case OpEqual:
		doc = map[string]interface{}{f.Field: f.Value}
	case OpArrayContains:
		doc = map[string]interface{}{f.Field: []interface{}{f.Value}}
	default:
		return nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
	}
	return json.Marshal(doc)
}

func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonEqual(a, b interface{}) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ra) == string(rb)
}
