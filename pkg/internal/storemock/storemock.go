// Package storemock provides an in-memory implementation of the
// store.Store interface.
//
// Intended for testing only.
package storemock

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/service/store"
)

// Ensure StoreMock implements store.Store.
var _ store.Store = (*StoreMock)(nil)

// StoreMock is a mock implementation of the store.Store type. Lists
// follow the same layout as the real adapter: head = newest entry,
// tail = oldest.
type StoreMock struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	hashes map[string]map[string][]byte

	// Remaining forced failures per operation name.
	failures map[string]int
	// Calls counts invocations per operation name.
	Calls map[string]int
}

// New returns a new StoreMock.
func New() *StoreMock {
	return &StoreMock{
		lists:    make(map[string][][]byte),
		hashes:   make(map[string]map[string][]byte),
		failures: make(map[string]int),
		Calls:    make(map[string]int),
	}
}

// FailNext forces the next n calls of op ("ListPush", "ListPop",
// "ListRange", "HashSet" or "HashGetAll") to return an error.
func (s *StoreMock) FailNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

func (s *StoreMock) enter(op string) error {
	s.Calls[op]++
	if s.failures[op] > 0 {
		s.failures[op]--
		return errors.Errorf("forced %s failure", op)
	}
	return nil
}

// ListPush inserts data at the head of the list stored at key.
func (s *StoreMock) ListPush(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListPush"); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	s.lists[key] = append([][]byte{cp}, s.lists[key]...)
	return nil
}

// ListPop removes and returns the tail of the list stored at key, or
// (nil, nil) if the list is empty.
func (s *StoreMock) ListPop(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListPop"); err != nil {
		return nil, err
	}
	list := s.lists[key]
	if len(list) == 0 {
		return nil, nil
	}
	out := list[len(list)-1]
	s.lists[key] = list[:len(list)-1]
	return out, nil
}

// ListRange returns a copy of the list stored at key, head first.
func (s *StoreMock) ListRange(_ context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListRange"); err != nil {
		return nil, err
	}
	list := s.lists[key]
	out := make([][]byte, 0, len(list))
	for _, v := range list {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

// HashSet sets field in the hash stored at key.
func (s *StoreMock) HashSet(_ context.Context, key, field string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("HashSet"); err != nil {
		return err
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[key] = h
	}
	h[field] = append([]byte(nil), data...)
	return nil
}

// HashGetAll returns a copy of every field of the hash stored at key.
func (s *StoreMock) HashGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("HashGetAll"); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(s.hashes[key]))
	for field, v := range s.hashes[key] {
		out[field] = append([]byte(nil), v...)
	}
	return out, nil
}
