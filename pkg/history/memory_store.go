package history

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe Store kept in process memory.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	closed        bool
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: map[string]*Conversation{},
	}
}

func (s *InMemoryStore) Put(_ context.Context, id string, c *Conversation) (string, error) {
	if err := ValidateConversation(c); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return "", err
	}

	if id == "" {
		id = uuid.NewString()
	}
	s.conversations[id] = c.Clone()
	return id, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	c, ok := s.conversations[id]
	if !ok || c == nil {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (s *InMemoryStore) List(_ context.Context) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	out := make(History, len(s.conversations))
	for id, c := range s.conversations {
		out[id] = c.Clone()
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	delete(s.conversations, id)
	return nil
}

func (s *InMemoryStore) Rename(_ context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	c, ok := s.conversations[id]
	if !ok || c == nil {
		return &NotFoundError{ID: id}
	}
	// entries are never changed in place, snapshots share them
	renamed := c.Clone()
	renamed.Name = name
	s.conversations[id] = renamed
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.conversations = map[string]*Conversation{}
	return nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// transact applies mutate to the cache, then runs persist. If persist fails
// the cache is put back the way it was before mutate.
func (s *InMemoryStore) transact(mutate func() error, persist func() error) error {
	s.mu.RLock()
	before := make(map[string]*Conversation, len(s.conversations))
	for id, c := range s.conversations {
		before[id] = c
	}
	s.mu.RUnlock()

	if err := mutate(); err != nil {
		return err
	}
	if err := persist(); err != nil {
		s.mu.Lock()
		s.conversations = before
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *InMemoryStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
