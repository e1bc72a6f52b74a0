package conversation

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, roles ...Role) (*Store, Messages) {
	t.Helper()
	s := NewStore()
	for i, r := range roles {
		_, err := s.Append(r, string(r)+"-"+string(rune('a'+i)))
		require.NoError(t, err)
	}
	return s, s.Snapshot()
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	s, msgs := seedStore(t, RoleUser, RoleAssistant, RoleUser)
	require.Len(t, msgs, 3)
	assert.Equal(t, MessageID(1), msgs[0].ID)
	assert.Equal(t, MessageID(2), msgs[1].ID)
	assert.Equal(t, MessageID(3), msgs[2].ID)

	require.True(t, s.RemoveByID(3))
	m, err := s.Append(RoleUser, "again")
	require.NoError(t, err)
	assert.Equal(t, MessageID(4), m.ID, "removed ids are not reused")
}

func TestAppendRejectsInvalidRole(t *testing.T) {
	s := NewStore()
	_, err := s.Append(Role("tool"), "x")
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(0), s.Version())
}

func TestRemoveByIDMissingIsNoop(t *testing.T) {
	s, _ := seedStore(t, RoleUser)
	v := s.Version()
	assert.False(t, s.RemoveByID(42))
	assert.Equal(t, v, s.Version())
	assert.Equal(t, 1, s.Len())
}

func TestRemoveByIDKeepsIndexConsistent(t *testing.T) {
	s, msgs := seedStore(t, RoleUser, RoleAssistant, RoleUser, RoleAssistant)
	require.True(t, s.RemoveByID(msgs[1].ID))

	i, ok := s.IndexOf(msgs[3].ID)
	require.True(t, ok)
	assert.Equal(t, 2, i)
	_, ok = s.Get(msgs[1].ID)
	assert.False(t, ok)
}

func TestReplaceAtSwapsAtomically(t *testing.T) {
	s, msgs := seedStore(t, RoleUser, RoleAssistant, RoleUser)

	var seen []Messages
	s.Subscribe(func(c Change) {
		seen = append(seen, s.Snapshot())
	})

	placed, err := s.ReplaceAt(1, NewChatMessage(RoleAssistant, ""))
	require.NoError(t, err)
	assert.Equal(t, MessageID(4), placed.ID)

	after := s.Snapshot()
	require.Len(t, after, 3)
	assert.Equal(t, placed.ID, after[1].ID)
	_, ok := s.Get(msgs[1].ID)
	assert.False(t, ok, "replaced message is gone")

	require.Len(t, seen, 1)
	assert.Len(t, seen[0], 3, "observers never see an intermediate list")
}

func TestSpliceInsertOutOfRange(t *testing.T) {
	s, _ := seedStore(t, RoleUser)
	_, err := s.SpliceInsert(3, NewChatMessage(RoleAssistant, "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	var rangeErr *IndexOutOfRangeError
	assert.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 1, rangeErr.Len)
}

func TestReplaceAtWithTakenIDGetsFreshID(t *testing.T) {
	s, msgs := seedStore(t, RoleUser, RoleAssistant)
	placed, err := s.ReplaceAt(1, Message{ID: msgs[0].ID, Role: RoleAssistant, Content: "dup"})
	require.NoError(t, err)
	assert.NotEqual(t, msgs[0].ID, placed.ID)

	kept, err := s.ReplaceAt(1, Message{ID: placed.ID, Role: RoleAssistant, Content: "same"})
	require.NoError(t, err)
	assert.Equal(t, placed.ID, kept.ID)
}

func TestUpdateContentAndToggleRole(t *testing.T) {
	s, msgs := seedStore(t, RoleUser, RoleAssistant)

	assert.True(t, s.UpdateContent(msgs[1].ID, "hello"))
	assert.False(t, s.UpdateContent(msgs[1].ID, "hello"), "unchanged content is a no-op")
	assert.False(t, s.UpdateContent(99, "nobody"))

	assert.True(t, s.ToggleRole(msgs[0].ID))
	assert.True(t, s.ToggleRole(msgs[1].ID))
	assert.False(t, s.ToggleRole(99))

	after := s.Snapshot()
	assert.Equal(t, RoleAssistant, after[0].Role)
	assert.Equal(t, RoleUser, after[1].Role)
	assert.Equal(t, "hello", after[1].Content)
}

func TestToggledRole(t *testing.T) {
	assert.Equal(t, RoleAssistant, RoleUser.Toggled())
	assert.Equal(t, RoleUser, RoleAssistant.Toggled())
	assert.Equal(t, RoleUser, RoleSystem.Toggled())
}

func TestResetKeepsIDsAndContinuesCounter(t *testing.T) {
	s := NewStore()
	err := s.Reset(Messages{
		{ID: 7, Role: RoleUser, Content: "a"},
		{ID: 3, Role: RoleAssistant, Content: "b"},
		{ID: 7, Role: RoleUser, Content: "dup"},
		{Role: RoleAssistant, Content: "no id"},
	})
	require.NoError(t, err)

	msgs := s.Snapshot()
	require.Len(t, msgs, 4)
	assert.Equal(t, MessageID(7), msgs[0].ID)
	assert.Equal(t, MessageID(3), msgs[1].ID)
	assert.Equal(t, MessageID(8), msgs[2].ID)
	assert.Equal(t, MessageID(9), msgs[3].ID)

	m, err := s.Append(RoleUser, "next")
	require.NoError(t, err)
	assert.Equal(t, MessageID(10), m.ID)
}

func TestSnapshotIsACopy(t *testing.T) {
	s, msgs := seedStore(t, RoleUser)
	msgs[0].Content = "changed outside"
	assert.NotEqual(t, "changed outside", s.Snapshot()[0].Content)
}

func TestSubscribeReceivesVersionedChanges(t *testing.T) {
	s := NewStore()
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) {
		changes = append(changes, c)
	})

	m, err := s.Append(RoleUser, "hi")
	require.NoError(t, err)
	s.UpdateContent(m.ID, "hi there")
	unsubscribe()
	s.RemoveByID(m.ID)

	require.Len(t, changes, 2)
	assert.Equal(t, ChangeAppended, changes[0].Kind)
	assert.Equal(t, "append", changes[0].Mutation)
	assert.Equal(t, int64(1), changes[0].Version)
	assert.Equal(t, ChangeContentUpdated, changes[1].Kind)
	assert.Equal(t, "hi there", changes[1].Message.Content)
	assert.Equal(t, int64(3), s.Version())
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(RoleUser, "x")
		}()
	}
	wg.Wait()

	msgs := s.Snapshot()
	require.Len(t, msgs, 50)
	seen := map[MessageID]bool{}
	for i, m := range msgs {
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
		idx, ok := s.IndexOf(m.ID)
		require.True(t, ok)
		assert.Equal(t, i, idx)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Assistant ")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, r)

	_, err = ParseRole("tool")
	require.Error(t, err)
}
