package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation)}
}

func (s *MemoryStore) Get(ctx context.Context, phone string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[phone]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.convs[conv.Phone]; ok {
		conv.Version = existing.Version + 1
	} else {
		conv.Version = 1
	}
	conv.UpdatedAt = time.Now().UTC()
	s.convs[conv.Phone] = conv.Clone()
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, conv *Conversation, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.convs[conv.Phone]; ok {
		current = existing.Version
	}
	if current != expected {
		return ErrVersionConflict
	}
	conv.Version = expected + 1
	conv.UpdatedAt = time.Now().UTC()
	s.convs[conv.Phone] = conv.Clone()
	return nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Conversation
	for _, conv := range s.convs {
		if conv.Active && !conv.State.Terminal() {
			out = append(out, conv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}
