package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata(index int) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: "conv-1",
		MessageID:      4,
		Index:          index,
		Model:          "gpt-4",
	}
}

func TestNewEventFromJsonDecodesTypedEvents(t *testing.T) {
	b, err := json.Marshal(NewPartialCompletionEvent(testMetadata(1), "lo", "Hello"))
	require.NoError(t, err)

	e, err := NewEventFromJson(b)
	require.NoError(t, err)
	partial, ok := e.(*EventPartialCompletion)
	require.True(t, ok)
	assert.Equal(t, "lo", partial.Delta)
	assert.Equal(t, "Hello", partial.Completion)
	assert.Equal(t, int64(4), partial.Metadata().MessageID)
	assert.Equal(t, b, partial.Payload())

	b, err = json.Marshal(NewErrorEvent(testMetadata(1), errors.New("boom")))
	require.NoError(t, err)
	e, err = NewEventFromJson(b)
	require.NoError(t, err)
	errEvent, ok := e.(*EventError)
	require.True(t, ok)
	assert.Equal(t, "boom", errEvent.ErrorString)
	assert.Equal(t, EventTypeError, errEvent.Type())

	_, err = NewEventFromJson([]byte("not json"))
	require.Error(t, err)
}

func TestRouterDeliversPublishedEventsInOrder(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	var mu sync.Mutex
	var got []EventType
	done := make(chan struct{})
	router.AddHandler("collect", TopicCompletion, func(msg *message.Message) error {
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		mu.Lock()
		got = append(got, e.Type())
		mu.Unlock()
		if e.Type() == EventTypeFinal {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	pm := NewPublisherManager()
	pm.SubscribePublisher(TopicCompletion, router.Publisher)

	meta := testMetadata(1)
	require.NoError(t, pm.Publish(ctx, NewStartEvent(meta)))
	require.NoError(t, pm.Publish(ctx, NewPartialCompletionEvent(meta, "Hi", "Hi")))
	require.NoError(t, pm.Publish(ctx, NewFinalEvent(meta, "Hi")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("final event not delivered")
	}
	require.NoError(t, router.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventTypeStart, EventTypePartialCompletion, EventTypeFinal}, got)
}

func TestCompletionPrinterFunc(t *testing.T) {
	var buf bytes.Buffer
	printer := CompletionPrinterFunc(&buf, true)

	meta := testMetadata(3)
	for _, e := range []interface{}{
		NewStartEvent(meta),
		NewPartialCompletionEvent(meta, "Hel", "Hel"),
		NewPartialCompletionEvent(meta, "lo", "Hello"),
		NewFinalEvent(meta, "Hello"),
	} {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, printer(message.NewMessage(watermill.NewUUID(), b)))
	}

	assert.Equal(t, "\n[3] assistant:\nHello\n", buf.String())
}

func TestPublishBlindOnNilManager(t *testing.T) {
	var pm *PublisherManager
	assert.NotPanics(t, func() {
		pm.PublishBlind(context.Background(), NewStartEvent(testMetadata(0)))
	})
}

func TestClosedRouterRejectsPublish(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	require.NoError(t, router.Close())
	require.NoError(t, router.Close())

	err = router.Publisher.Publish(TopicCompletion, message.NewMessage(watermill.NewUUID(), []byte("{}")))
	assert.Error(t, err)
}
