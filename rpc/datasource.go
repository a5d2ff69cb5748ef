package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// SearchParams are the arguments of a search call. Nil Begin and Count ask
// for everything.
type SearchParams struct {
	Filter map[string]any `json:"filter"`
	Order  map[string]any `json:"order"`
	Begin  *int           `json:"begin"`
	Count  *int           `json:"count"`
}

type idParams struct {
	ID any `json:"id"`
}

// DataSource is a paged collection backed by the conventional search, get,
// save, remove and position methods of one namespace.
type DataSource[T any] struct {
	c      Caller
	ns     string
	decode func(any) (T, error)
}

// NewDataSource binds the collection methods of ns.
func NewDataSource[T any](c Caller, ns string, decode func(any) (T, error)) *DataSource[T] {
	return &DataSource[T]{c: c, ns: ns, decode: decode}
}

// Namespace returns the method namespace.
func (d *DataSource[T]) Namespace() string { return d.ns }

// Search returns one page of items.
func (d *DataSource[T]) Search(ctx context.Context, params SearchParams) ([]T, error) {
	return Call(ctx, d.c, d.ns+".search", params, func(raw any) ([]T, error) {
		return NewList(raw, d.decode)
	})
}

// Get returns the item with the given id.
func (d *DataSource[T]) Get(ctx context.Context, id any) (T, error) {
	return Call(ctx, d.c, d.ns+".get", idParams{ID: id}, d.decode)
}

// Save stores item and returns the stored version.
func (d *DataSource[T]) Save(ctx context.Context, item T) (T, error) {
	return Call(ctx, d.c, d.ns+".save", item, d.decode)
}

// Remove deletes the item with the given id.
func (d *DataSource[T]) Remove(ctx context.Context, id any) (bool, error) {
	return Call(ctx, d.c, d.ns+".remove", idParams{ID: id}, ParseBoolean)
}

// Position returns the index of the item in the default order, or nil when
// the item is not part of the collection.
func (d *DataSource[T]) Position(ctx context.Context, id any) (*int64, error) {
	return Call(ctx, d.c, d.ns+".position", idParams{ID: id}, func(raw any) (*int64, error) {
		return NewOptional(raw, ParseInteger)
	})
}

// StaticSource is a read-only collection of seed records.
type StaticSource[T any] struct {
	mu    sync.RWMutex
	items []T
}

// NewStaticSource decodes the records of a JSON array.
func NewStaticSource[T any](decode func(any) (T, error), records string) (*StaticSource[T], error) {
	var raw []any
	dec := json.NewDecoder(strings.NewReader(records))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	items, err := NewList(any(raw), decode)
	if err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	return &StaticSource[T]{items: items}, nil
}

// MustStaticSource is NewStaticSource for generated package variables.
func MustStaticSource[T any](decode func(any) (T, error), records string) *StaticSource[T] {
	s, err := NewStaticSource(decode, records)
	if err != nil {
		panic(err)
	}
	return s
}

// Items returns a copy of every record.
func (s *StaticSource[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.items...)
}

// Len returns the number of records.
func (s *StaticSource[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Find returns the first record match accepts.
func (s *StaticSource[T]) Find(match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}
