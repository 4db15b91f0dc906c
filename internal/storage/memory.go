package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"audimg/internal/model"
	"audimg/internal/study"
)

// MemoryStore keeps encoded records so callers never share result trees.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	partials    map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.partials = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SavePartial(_ context.Context, partial model.PartialResult) error {
	payload, err := EncodePartial(partial)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.partials[partial.Key()] = payload
	return nil
}

func (s *MemoryStore) GetPartial(_ context.Context, subject study.Subject, task study.Task) (model.PartialResult, bool, error) {
	s.mu.RLock()
	payload, ok := s.partials[model.PartialKey(subject, task)]
	s.mu.RUnlock()

	if !ok {
		return model.PartialResult{}, false, nil
	}
	partial, err := DecodePartial(payload)
	if err != nil {
		return model.PartialResult{}, false, err
	}
	return partial, true, nil
}

func (s *MemoryStore) ListPartials(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.partials))
	for key := range s.partials {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) DeletePartial(_ context.Context, subject study.Subject, task study.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partials, model.PartialKey(subject, task))
	return nil
}
