package conversation

// State is the ordered message list guarded by a Store. It keeps an
// id→position index next to the list so id lookups do not depend on position.
// State is not safe for concurrent use; it is only touched by mutations
// running under the Store lock.
type State struct {
	messages Messages
	index    map[MessageID]int
	lastID   MessageID
}

func newState() *State {
	return &State{
		index: map[MessageID]int{},
	}
}

func (s *State) Len() int {
	return len(s.messages)
}

func (s *State) At(i int) (Message, bool) {
	if i < 0 || i >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[i], true
}

func (s *State) IndexOf(id MessageID) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// LastID is the highest id handed out so far.
func (s *State) LastID() MessageID {
	return s.lastID
}

func (s *State) nextID() MessageID {
	s.lastID++
	return s.lastID
}

func (s *State) reindex() {
	s.index = make(map[MessageID]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

// ensureID gives m a fresh id when it has none, or when its id is already
// used by a message other than the one at position `except`.
func (s *State) ensureID(m *Message, except int) {
	if m.ID == NullID {
		m.ID = s.nextID()
		return
	}
	if i, ok := s.index[m.ID]; ok && i != except {
		m.ID = s.nextID()
		return
	}
	if m.ID > s.lastID {
		s.lastID = m.ID
	}
}

func (s *State) snapshot() Messages {
	return s.messages.Clone()
}
