package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

type instrumented struct {
	store Store
	m     *metrics.Metrics
}

// Instrument records the count and latency of every operation on store.
func Instrument(store Store, m *metrics.Metrics) Store {
	return &instrumented{store: store, m: m}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	status := metrics.Status(err)
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		status = "conflict"
	}
	s.m.StoreOperations.WithLabelValues(op, status).Inc()
	s.m.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *instrumented) Get(ctx context.Context, path string) (*Document, error) {
	start := time.Now()
	doc, err := s.store.Get(ctx, path)
	s.observe("get", start, err)
	return doc, err
}

func (s *instrumented) Set(ctx context.Context, path string, data interface{}) error {
	start := time.Now()
	err := s.store.Set(ctx, path, data)
	s.observe("set", start, err)
	return err
}

func (s *instrumented) Create(ctx context.Context, path string, data interface{}) error {
	start := time.Now()
	err := s.store.Create(ctx, path, data)
	s.observe("create", start, err)
	return err
}

func (s *instrumented) Update(ctx context.Context, path string, data interface{}, version int64) error {
	start := time.Now()
	err := s.store.Update(ctx, path, data, version)
	s.observe("update", start, err)
	return err
}

func (s *instrumented) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := s.store.Delete(ctx, path)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) DeleteIf(ctx context.Context, path string, version int64) error {
	start := time.Now()
	err := s.store.DeleteIf(ctx, path, version)
	s.observe("delete", start, err)
	return err
}

func (s *instrumented) Query(ctx context.Context, collectionPath string, filters ...Filter) ([]*Document, error) {
	start := time.Now()
	docs, err := s.store.Query(ctx, collectionPath, filters...)
	s.observe("query", start, err)
	return docs, err
}

func (s *instrumented) CollectionGroup(ctx context.Context, collectionID string, filters ...Filter) ([]*Document, error) {
	start := time.Now()
	docs, err := s.store.CollectionGroup(ctx, collectionID, filters...)
	s.observe("collection_group", start, err)
	return docs, err
}

func (s *instrumented) Batch() Batch {
	return &instrumentedBatch{Batch: s.store.Batch(), s: s}
}

func (s *instrumented) Close() error {
	return s.store.Close()
}

type instrumentedBatch struct {
	Batch
	s *instrumented
}

func (b *instrumentedBatch) Set(path string, data interface{}) Batch {
	b.Batch = b.Batch.Set(path, data)
	return b
}

func (b *instrumentedBatch) Create(path string, data interface{}) Batch {
	b.Batch = b.Batch.Create(path, data)
	return b
}

func (b *instrumentedBatch) Update(path string, data interface{}, version int64) Batch {
	b.Batch = b.Batch.Update(path, data, version)
	return b
}

func (b *instrumentedBatch) Delete(path string) Batch {
	b.Batch = b.Batch.Delete(path)
	return b
}

func (b *instrumentedBatch) DeleteIf(path string, version int64) Batch {
	b.Batch = b.Batch.DeleteIf(path, version)
	return b
}

func (b *instrumentedBatch) Commit(ctx context.Context) error {
	start := time.Now()
	err := b.Batch.Commit(ctx)
	b.s.observe("batch", start, err)
	return err
}
