package conversation

import (
	"github.com/pkg/errors"
)

// Mutation represents a deterministic change to the message list.
// Apply returns a nil Change when the mutation turned out to be a no-op.
type Mutation interface {
	Apply(s *State) (*Change, error)
	Name() string
}

type ChangeKind string

const (
	ChangeAppended       ChangeKind = "appended"
	ChangeRemoved        ChangeKind = "removed"
	ChangeReplaced       ChangeKind = "replaced"
	ChangeContentUpdated ChangeKind = "content_updated"
	ChangeRoleToggled    ChangeKind = "role_toggled"
	ChangeReset          ChangeKind = "reset"
)

// Change describes an applied mutation. Message is the state of the affected
// message after the mutation; for removals it is the removed message.
type Change struct {
	Kind       ChangeKind
	Mutation   string
	Message    Message
	PreviousID MessageID
	Index      int
	Version    int64
}

// MutateAppend appends a new message with a fresh id.
func MutateAppend(role Role, content string) Mutation {
	return appendMutation{role: role, content: content}
}

type appendMutation struct {
	role    Role
	content string
}

func (m appendMutation) Apply(s *State) (*Change, error) {
	if !m.role.IsValid() {
		return nil, errors.Errorf("invalid role %q", m.role)
	}
	msg := Message{ID: s.nextID(), Role: m.role, Content: m.content}
	s.messages = append(s.messages, msg)
	s.index[msg.ID] = len(s.messages) - 1
	return &Change{Kind: ChangeAppended, Message: msg, Index: len(s.messages) - 1}, nil
}

func (m appendMutation) Name() string { return "append" }

// MutateRemove removes the message with the given id, if any.
func MutateRemove(id MessageID) Mutation {
	return removeMutation{id: id}
}

type removeMutation struct {
	id MessageID
}

func (m removeMutation) Apply(s *State) (*Change, error) {
	i, ok := s.index[m.id]
	if !ok {
		return nil, nil
	}
	removed := s.messages[i]
	s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
	s.reindex()
	return &Change{Kind: ChangeRemoved, Message: removed, Index: i}, nil
}

func (m removeMutation) Name() string { return "remove" }

// MutateReplaceAt swaps the message at index for msg in a single step.
// msg keeps its id unless it is zero or already taken by another message,
// in which case it gets a fresh one.
func MutateReplaceAt(index int, msg Message) Mutation {
	return replaceAtMutation{index: index, msg: msg, name: "replace_at"}
}

// MutateSpliceInsert inserts msg at index while removing the message that was
// there. It is the same atomic swap as MutateReplaceAt.
func MutateSpliceInsert(index int, msg Message) Mutation {
	return replaceAtMutation{index: index, msg: msg, name: "splice_insert"}
}

type replaceAtMutation struct {
	index int
	msg   Message
	name  string
}

func (m replaceAtMutation) Apply(s *State) (*Change, error) {
	if m.index < 0 || m.index >= len(s.messages) {
		return nil, &IndexOutOfRangeError{Index: m.index, Len: len(s.messages)}
	}
	if !m.msg.Role.IsValid() {
		return nil, errors.Errorf("invalid role %q", m.msg.Role)
	}
	msg := m.msg
	s.ensureID(&msg, m.index)
	previous := s.messages[m.index]
	s.messages[m.index] = msg
	delete(s.index, previous.ID)
	s.index[msg.ID] = m.index
	return &Change{Kind: ChangeReplaced, Message: msg, PreviousID: previous.ID, Index: m.index}, nil
}

func (m replaceAtMutation) Name() string { return m.name }

// MutateUpdateContent overwrites the content of the message with the given id.
func MutateUpdateContent(id MessageID, content string) Mutation {
	return updateContentMutation{id: id, content: content}
}

type updateContentMutation struct {
	id      MessageID
	content string
}

func (m updateContentMutation) Apply(s *State) (*Change, error) {
	i, ok := s.index[m.id]
	if !ok || s.messages[i].Content == m.content {
		return nil, nil
	}
	s.messages[i].Content = m.content
	return &Change{Kind: ChangeContentUpdated, Message: s.messages[i], Index: i}, nil
}

func (m updateContentMutation) Name() string { return "update_content" }

// MutateToggleRole flips a user message to assistant and anything else to user.
func MutateToggleRole(id MessageID) Mutation {
	return toggleRoleMutation{id: id}
}

type toggleRoleMutation struct {
	id MessageID
}

func (m toggleRoleMutation) Apply(s *State) (*Change, error) {
	i, ok := s.index[m.id]
	if !ok {
		return nil, nil
	}
	s.messages[i].Role = s.messages[i].Role.Toggled()
	return &Change{Kind: ChangeRoleToggled, Message: s.messages[i], Index: i}, nil
}

func (m toggleRoleMutation) Name() string { return "toggle_role" }

// MutateReset replaces the whole list. Ids of the given messages are kept
// when they are unique; the id counter continues past the highest one.
func MutateReset(messages Messages) Mutation {
	return resetMutation{messages: messages.Clone()}
}

type resetMutation struct {
	messages Messages
}

func (m resetMutation) Apply(s *State) (*Change, error) {
	for _, msg := range m.messages {
		if !msg.Role.IsValid() {
			return nil, errors.Errorf("invalid role %q", msg.Role)
		}
	}

	s.messages = make(Messages, 0, len(m.messages))
	s.index = make(map[MessageID]int, len(m.messages))
	for _, msg := range m.messages {
		if msg.ID > s.lastID {
			s.lastID = msg.ID
		}
	}
	for _, msg := range m.messages {
		s.ensureID(&msg, -1)
		s.messages = append(s.messages, msg)
		s.index[msg.ID] = len(s.messages) - 1
	}
	return &Change{Kind: ChangeReset, Index: -1}, nil
}

func (m resetMutation) Name() string { return "reset" }
