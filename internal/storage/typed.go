package storage

import (
	"encoding/json"
	"fmt"
)

// TypedStore stores values of one kind as JSON.
type TypedStore[T any] struct {
	store *Store
	kind  string
}

// NewTypedStore creates a typed view of store for kind.
func NewTypedStore[T any](store *Store, kind string) *TypedStore[T] {
	return &TypedStore[T]{store: store, kind: kind}
}

// Kind returns the resource kind this store handles.
func (s *TypedStore[T]) Kind() string {
	return s.kind
}

// Get returns the value and its version. A missing id yields the zero
// value and version 0.
func (s *TypedStore[T]) Get(id string) (value T, version int64, err error) {
	payload, version, err := s.store.Get(s.kind, id)
	if err != nil || payload == nil {
		return value, 0, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, 0, fmt.Errorf("failed to unmarshal %s %s: %w", s.kind, id, err)
	}
	return value, version, nil
}

// Save stores value and reports whether it differed from the stored one.
// Repeated saves of an unchanged device cost one upsert and no version bump.
func (s *TypedStore[T]) Save(id string, value T) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s %s: %w", s.kind, id, err)
	}
	return s.store.Save(s.kind, id, payload)
}

// Delete removes ids together.
func (s *TypedStore[T]) Delete(ids ...string) error {
	_, err := s.store.DeleteMany(s.kind, ids)
	return err
}

// Clear removes every value of this kind.
func (s *TypedStore[T]) Clear() error {
	return s.store.Clear(s.kind)
}

// GetAll returns every value of this kind keyed by id.
func (s *TypedStore[T]) GetAll() (map[string]T, error) {
	payloads, err := s.store.GetAll(s.kind)
	if err != nil {
		return nil, err
	}

	values := make(map[string]T, len(payloads))
	for id, payload := range payloads {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %s: %w", s.kind, id, err)
		}
		values[id] = value
	}
	return values, nil
}
