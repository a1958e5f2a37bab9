// Package memory is an in-process docstore.Store used by tests and single-node deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type Store struct {
	mu    sync.RWMutex
	docs  map[string]*docstore.Document
	nowFn func() time.Time
}

func New() *Store {
	return &Store{
		docs:  make(map[string]*docstore.Document),
		nowFn: time.Now,
	}
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
	return s
}

func cloneDoc(d *docstore.Document) *docstore.Document {
	cp := *d
	cp.Data = append([]byte(nil), d.Data...)
	return &cp
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidatePath(path); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (s *Store) Set(ctx context.Context, path string, data interface{}) error {
	return s.Batch().Set(path, data).Commit(ctx)
}

func (s *Store) Create(ctx context.Context, path string, data interface{}) error {
	return s.Batch().Create(path, data).Commit(ctx)
}

func (s *Store) Update(ctx context.Context, path string, data interface{}, version int64) error {
	return s.Batch().Update(path, data, version).Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Batch().Delete(path).Commit(ctx)
}

func (s *Store) DeleteIf(ctx context.Context, path string, version int64) error {
	return s.Batch().DeleteIf(path, version).Commit(ctx)
}

func (s *Store) Batch() docstore.Batch {
	return docstore.NewBatch(s.commit)
}

// commit validates every write against a staged view before touching the live map.
func (s *Store) commit(ctx context.Context, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn().UTC()
	staged := make(map[string]*docstore.Document, len(writes))
	lookup := func(path string) (*docstore.Document, bool) {
		if d, ok := staged[path]; ok {
			return d, d != nil
		}
		d, ok := s.docs[path]
		return d, ok
	}

	for _, w := range writes {
		current, exists := lookup(w.Path)
		switch w.Kind {
		case docstore.WriteSet:
			next := &docstore.Document{Path: w.Path, Data: w.Data, Version: 1, CreateTime: now, UpdateTime: now}
			if exists {
				next.Version = current.Version + 1
				next.CreateTime = current.CreateTime
			}
			staged[w.Path] = next
		case docstore.WriteCreate:
			if exists {
				return docstore.ErrAlreadyExists
			}
			staged[w.Path] = &docstore.Document{Path: w.Path, Data: w.Data, Version: 1, CreateTime: now, UpdateTime: now}
		case docstore.WriteUpdate:
			if !exists {
				return docstore.ErrNotFound
			}
			if current.Version != w.Version {
				return docstore.ErrConflict
			}
			staged[w.Path] = &docstore.Document{Path: w.Path, Data: w.Data, Version: current.Version + 1, CreateTime: current.CreateTime, UpdateTime: now}
		case docstore.WriteDelete:
			staged[w.Path] = nil
		case docstore.WriteDeleteIf:
			if !exists {
				return docstore.ErrNotFound
			}
			if current.Version != w.Version {
				return docstore.ErrConflict
			}
			staged[w.Path] = nil
		}
	}

	for path, d := range staged {
		if d == nil {
			delete(s.docs, path)
			continue
		}
		s.docs[path] = d
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collectionPath string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	return s.scan(ctx, func(path string) bool {
		parent, _, _ := docstore.Split(path)
		return parent == collectionPath
	}, filters)
}

func (s *Store) CollectionGroup(ctx context.Context, collectionID string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	return s.scan(ctx, func(path string) bool {
		_, id, _ := docstore.Split(path)
		return id == collectionID
	}, filters)
}

func (s *Store) scan(ctx context.Context, include func(string) bool, filters []docstore.Filter) ([]*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*docstore.Document
	for path, d := range s.docs {
		if !include(path) {
			continue
		}
		ok, err := docstore.Match(d.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cloneDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].Path, out[j].Path) < 0 })
	return out, nil
}

// Len reports the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) Close() error { return nil }
