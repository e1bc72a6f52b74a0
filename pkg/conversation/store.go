package conversation

import (
	"sync"

	"github.com/pkg/errors"
)

// Store is the single owner of a conversation's message list. All changes go
// through Apply, which runs the mutation under the store lock, bumps the
// version and then notifies subscribers outside the lock. Readers get copies.
type Store struct {
	mu      sync.RWMutex
	state   *State
	version int64

	subMu       sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

type subscriber struct {
	id int
	fn func(Change)
}

// NewStore seeds the store with messages, dropping those with an invalid role.
func NewStore(messages ...Message) *Store {
	s := &Store{state: newState()}
	if len(messages) > 0 {
		valid := make(Messages, 0, len(messages))
		for _, m := range messages {
			if m.Role.IsValid() {
				valid = append(valid, m)
			}
		}
		_, _ = resetMutation{messages: valid}.Apply(s.state)
	}
	return s
}

// Apply applies a single mutation. It returns nil when the mutation changed nothing.
func (s *Store) Apply(m Mutation) (*Change, error) {
	if s == nil {
		return nil, ErrStoreNil
	}
	if m == nil {
		return nil, errors.New("mutation is nil")
	}

	s.mu.Lock()
	change, err := m.Apply(s.state)
	if err != nil {
		s.mu.Unlock()
		return nil, errors.Wrapf(err, "mutation %s failed", m.Name())
	}
	if change == nil {
		s.mu.Unlock()
		return nil, nil
	}
	s.version++
	change.Version = s.version
	change.Mutation = m.Name()
	s.mu.Unlock()

	s.notify(*change)
	return change, nil
}

// Subscribe registers fn to be called after every applied mutation, in the
// goroutine that applied it. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(c)
	}
}

func (s *Store) Append(role Role, content string) (Message, error) {
	c, err := s.Apply(MutateAppend(role, content))
	if err != nil {
		return Message{}, err
	}
	return c.Message, nil
}

// RemoveByID reports whether a message was removed.
func (s *Store) RemoveByID(id MessageID) bool {
	c, _ := s.Apply(MutateRemove(id))
	return c != nil
}

// ReplaceAt puts msg at index in place of the current message and returns it
// with its final id.
func (s *Store) ReplaceAt(index int, msg Message) (Message, error) {
	c, err := s.Apply(MutateReplaceAt(index, msg))
	if err != nil {
		return Message{}, err
	}
	return c.Message, nil
}

func (s *Store) SpliceInsert(index int, msg Message) (Message, error) {
	c, err := s.Apply(MutateSpliceInsert(index, msg))
	if err != nil {
		return Message{}, err
	}
	return c.Message, nil
}

// UpdateContent reports whether the content changed.
func (s *Store) UpdateContent(id MessageID, content string) bool {
	c, _ := s.Apply(MutateUpdateContent(id, content))
	return c != nil
}

func (s *Store) ToggleRole(id MessageID) bool {
	c, _ := s.Apply(MutateToggleRole(id))
	return c != nil
}

func (s *Store) Reset(messages Messages) error {
	_, err := s.Apply(MutateReset(messages))
	return err
}

func (s *Store) Snapshot() Messages {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

func (s *Store) Get(id MessageID) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.state.IndexOf(id)
	if !ok {
		return Message{}, false
	}
	return s.state.At(i)
}

func (s *Store) IndexOf(id MessageID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IndexOf(id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Len()
}

func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
