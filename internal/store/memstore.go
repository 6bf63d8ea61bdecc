package store

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/llm"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It holds history for the life of the owning service; eviction and TTL
// are left to durable backends. The zero value is ready to use.
type MemStore struct {
	mu      sync.RWMutex
	threads map[string][]llm.Message
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		threads: make(map[string][]llm.Message),
	}
}

// Append implements [Store.Append].
func (s *MemStore) Append(_ context.Context, threadID string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threads == nil {
		s.threads = make(map[string][]llm.Message)
	}
	s.threads[threadID] = append(s.threads[threadID], msg)
	return nil
}

// Prepend implements [Store.Prepend].
func (s *MemStore) Prepend(_ context.Context, threadID string, msg llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.threads == nil {
		s.threads = make(map[string][]llm.Message)
	}
	existing := s.threads[threadID]
	msgs := make([]llm.Message, 0, len(existing)+1)
	msgs = append(msgs, msg)
	msgs = append(msgs, existing...)
	s.threads[threadID] = msgs
	return nil
}

// History implements [Store.History]. The returned slice is a copy.
func (s *MemStore) History(_ context.Context, threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Truncate implements [Store.Truncate].
func (s *MemStore) Truncate(_ context.Context, threadID string, max int) error {
	if max <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.threads[threadID]
	if !ok || len(msgs) <= max {
		return nil
	}
	trimmed := make([]llm.Message, max)
	copy(trimmed, msgs[len(msgs)-max:])
	s.threads[threadID] = trimmed
	return nil
}

// Clear implements [Store.Clear].
func (s *MemStore) Clear(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.threads, threadID)
	return nil
}
