package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/reflow/pkg/auth"
	"github.com/go-go-golems/reflow/pkg/completion"
	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/settings"
)

type call struct {
	prefix conversation.Messages
	index  int
}

// fakeCompleter regenerates by replacing the message at index with a text
// derived from the prefix, the way the orchestrator would.
type fakeCompleter struct {
	store *conversation.Store
	calls []call
	fail  map[int]error
}

func (f *fakeCompleter) CompleteOne(ctx context.Context, prefix conversation.Messages, index int) (completion.Result, error) {
	f.calls = append(f.calls, call{prefix: prefix, index: index})
	if err, ok := f.fail[index]; ok {
		if errors.Is(err, completion.ErrCompletionInFlight) {
			return completion.Result{}, err
		}
		m, _ := f.store.Append(conversation.RoleAssistant, err.Error())
		return completion.Result{ID: m.ID, Content: err.Error(), Err: err}, err
	}
	text := fmt.Sprintf("reply to %d messages", len(prefix)-1)
	m, err := f.store.ReplaceAt(index, conversation.NewChatMessage(conversation.RoleAssistant, text))
	if err != nil {
		return completion.Result{}, err
	}
	return completion.Result{ID: m.ID, Content: text}, nil
}

func seed(t *testing.T, roles ...conversation.Role) *conversation.Store {
	t.Helper()
	s := conversation.NewStore()
	for i, r := range roles {
		_, err := s.Append(r, fmt.Sprintf("%s %d", r, i))
		require.NoError(t, err)
	}
	return s
}

func TestSubmitRegeneratesAssistantsInOrder(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser, conversation.RoleAssistant)
	f := &fakeCompleter{store: store}
	var progress []Progress
	e := NewEngine(store, f, WithProgress(func(p Progress) {
		progress = append(progress, p)
	}))

	require.NoError(t, e.Submit(context.Background(), nil))

	require.Len(t, f.calls, 2)
	assert.Equal(t, 1, f.calls[0].index)
	assert.Len(t, f.calls[0].prefix, 2)
	assert.Equal(t, 3, f.calls[1].index)
	assert.Len(t, f.calls[1].prefix, 4)
	assert.Equal(t, "reply to 1 messages", f.calls[1].prefix[1].Content,
		"later prefixes see regenerated text")

	msgs := store.Snapshot()
	assert.Equal(t, "reply to 1 messages", msgs[1].Content)
	assert.Equal(t, "reply to 3 messages", msgs[3].Content)

	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Total)
	assert.Equal(t, 3, progress[1].Index)
}

func TestSubmitSkipsUserOnlyConversation(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleUser)
	f := &fakeCompleter{store: store}
	require.NoError(t, NewEngine(store, f).Submit(context.Background(), nil))
	assert.Empty(t, f.calls)
}

func TestSubmitUsesGivenMessages(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser, conversation.RoleAssistant)
	f := &fakeCompleter{store: store}
	given := store.Snapshot()[:2]

	require.NoError(t, NewEngine(store, f).Submit(context.Background(), given))
	require.Len(t, f.calls, 1)
	assert.Equal(t, 1, f.calls[0].index)
}

func TestSubmitContinuesPastFailures(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser, conversation.RoleAssistant)
	boom := errors.New("boom")
	f := &fakeCompleter{store: store, fail: map[int]error{1: boom}}

	err := NewEngine(store, f).Submit(context.Background(), nil)
	require.Error(t, err)

	var replayErr *ReplayError
	require.True(t, errors.As(err, &replayErr))
	require.Len(t, replayErr.Failures, 1)
	assert.Equal(t, 1, replayErr.Failures[0].Index)
	assert.True(t, errors.Is(err, boom))

	require.Len(t, f.calls, 2, "the second assistant is still regenerated")
	assert.Equal(t, "assistant 1", f.calls[1].prefix[1].Content, "failed entries keep their old text")
}

func TestSubmitAbortsOnInFlightRejection(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser, conversation.RoleAssistant)
	f := &fakeCompleter{store: store, fail: map[int]error{1: completion.ErrCompletionInFlight}}

	err := NewEngine(store, f).Submit(context.Background(), nil)
	assert.Equal(t, completion.ErrCompletionInFlight, err)
	assert.Len(t, f.calls, 1)
}

func TestSubmitStopsOnCancelledContext(t *testing.T) {
	store := seed(t, conversation.RoleUser, conversation.RoleAssistant)
	f := &fakeCompleter{store: store}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewEngine(store, f).Submit(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.calls)
}

func TestSubmitWithOrchestratorIsSequential(t *testing.T) {
	var inFlight, maxInFlight, requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		if n > atomic.LoadInt32(&maxInFlight) {
			atomic.StoreInt32(&maxInFlight, n)
		}
		count := atomic.AddInt32(&requests, 1)

		var body struct {
			Messages []map[string]string `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		chunk, _ := json.Marshal(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"delta": map[string]interface{}{
					"content": fmt.Sprintf("answer %d after %d messages", count, len(body.Messages)),
				}},
			},
		})
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", chunk)
	}))
	defer srv.Close()

	store := seed(t, conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser, conversation.RoleAssistant)
	o := completion.NewOrchestrator(store,
		completion.NewClient(auth.StaticToken("sk-test"), completion.WithEndpoint(srv.URL)),
		completion.StaticPrompt{
			System: conversation.NewSystemMessage("system"),
			Config: *settings.NewGenerationConfig(),
		})

	require.NoError(t, NewEngine(store, o).Submit(context.Background(), nil))

	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))

	msgs := store.Snapshot()
	require.Len(t, msgs, 4)
	assert.Equal(t, "answer 1 after 2 messages", msgs[1].Content)
	assert.Equal(t, "answer 2 after 4 messages", msgs[3].Content)
}
