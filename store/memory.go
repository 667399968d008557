package store

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyndegarde/Maters-Project/utils"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps encoded records in maps, so callers never share state
// with what was saved.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	weights     map[string][]byte
	traces      map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.weights = make(map[string][]byte)
	s.traces = make(map[string][]byte)
	return nil
}

func (s *MemoryStore) SaveWeights(_ context.Context, runID string, weights *utils.ModelWeights) error {
	payload, err := EncodeWeights(weights)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.weights[runID] = payload
	return nil
}

func (s *MemoryStore) GetWeights(_ context.Context, runID string) (*utils.ModelWeights, bool, error) {
	s.mu.RLock()
	payload, ok := s.weights[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	w, err := DecodeWeights(payload)
	if err != nil {
		return nil, false, err
	}
	return w, true, nil
}

func (s *MemoryStore) SaveTrace(_ context.Context, runID string, trace TraceRecord) error {
	payload, err := EncodeTrace(trace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.traces[runID] = payload
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, runID string) (TraceRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.traces[runID]
	s.mu.RUnlock()
	if !ok {
		return TraceRecord{}, false, nil
	}
	r, err := DecodeTrace(payload)
	if err != nil {
		return TraceRecord{}, false, err
	}
	return r, true, nil
}
