package completion

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/events"
	"github.com/go-go-golems/reflow/pkg/helpers"
	"github.com/go-go-golems/reflow/pkg/settings"
	"github.com/go-go-golems/reflow/pkg/stream"
	"github.com/go-go-golems/reflow/pkg/tokens"
)

// PromptSource supplies the parts of a request that live outside the message list.
type PromptSource interface {
	SystemMessage() conversation.Message
	GenerationConfig() settings.GenerationConfig
	ConversationID() string
}

// StaticPrompt is a PromptSource with fixed values.
type StaticPrompt struct {
	System conversation.Message
	Config settings.GenerationConfig
	ID     string
}

func (s StaticPrompt) SystemMessage() conversation.Message        { return s.System }
func (s StaticPrompt) GenerationConfig() settings.GenerationConfig { return s.Config }
func (s StaticPrompt) ConversationID() string                      { return s.ID }

// Result is the outcome of one completion. On failure ID and Content refer
// to the error message appended to the conversation.
type Result struct {
	ID      conversation.MessageID
	Content string
	Err     error
}

// Orchestrator runs one streamed completion at a time against a message store.
type Orchestrator struct {
	store    *conversation.Store
	streamer Streamer
	source   PromptSource
	slot     *semaphore.Weighted
	inFlight atomic.Bool

	publisherManager *events.PublisherManager
	counter          *tokens.Counter
}

type OrchestratorOption func(*Orchestrator)

func WithPublisherManager(pm *events.PublisherManager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisherManager = pm
	}
}

func WithTokenCounter(c *tokens.Counter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.counter = c
	}
}

func NewOrchestrator(
	store *conversation.Store,
	streamer Streamer,
	source PromptSource,
	options ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		streamer: streamer,
		source:   source,
		slot:     semaphore.NewWeighted(1),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// InFlight reports whether a completion currently holds the slot. It does
// not touch the slot itself.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// CompleteOne requests a completion for prefix minus its last element, which
// is the message being regenerated, and streams it into a new assistant
// message that replaces the one at insertIndex. An empty prefix means the
// current store contents.
//
// A call made while another completion is running returns
// ErrCompletionInFlight without touching anything. Other failures append an
// assistant message carrying the error text and return it in the Result.
func (o *Orchestrator) CompleteOne(ctx context.Context, prefix conversation.Messages, insertIndex int) (Result, error) {
	if !o.slot.TryAcquire(1) {
		log.Debug().Int("index", insertIndex).Msg("completion rejected, another one is in flight")
		return Result{}, ErrCompletionInFlight
	}
	o.inFlight.Store(true)
	defer func() {
		o.inFlight.Store(false)
		o.slot.Release(1)
	}()

	if len(prefix) == 0 {
		prefix = o.store.Snapshot()
	}
	prompt := conversation.Messages{}
	if len(prefix) > 0 {
		prompt = prefix[:len(prefix)-1]
	}

	cfg := o.source.GenerationConfig()
	req := NewRequest(cfg, o.source.SystemMessage(), prompt)

	metadata := events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: o.source.ConversationID(),
		Index:          insertIndex,
		Model:          cfg.Model,
		Temperature:    helpers.Float64Pointer(cfg.Temperature),
		MaxTokens:      helpers.IntPointer(cfg.MaxTokens),
	}
	if o.counter != nil {
		n, err := o.counter.CountMessages(cfg.Model, req.Messages)
		if err != nil {
			log.Debug().Err(err).Msg("could not count prompt tokens")
		} else {
			metadata.PromptTokens = n
		}
	}

	start := time.Now()
	log.Debug().
		Int("index", insertIndex).
		Int("messages", len(req.Messages)).
		Str("model", cfg.Model).
		Msg("starting completion")

	body, err := o.streamer.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return o.interrupt(ctx, metadata, Result{}, "")
		}
		return o.fail(ctx, metadata, err)
	}
	defer func() {
		_ = body.Close()
	}()

	placeholder, err := o.store.ReplaceAt(insertIndex, conversation.NewChatMessage(conversation.RoleAssistant, ""))
	if err != nil {
		return o.fail(ctx, metadata, errors.Wrap(err, "could not place completion"))
	}
	metadata.MessageID = int64(placeholder.ID)
	o.publisherManager.PublishBlind(ctx, events.NewStartEvent(metadata))

	decoder := stream.NewDecoder(body)
	var sb strings.Builder
	for {
		delta, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return o.interrupt(ctx, metadata, Result{ID: placeholder.ID, Content: sb.String()}, sb.String())
			}
			return o.fail(ctx, metadata, err)
		}

		sb.WriteString(delta)
		o.store.UpdateContent(placeholder.ID, sb.String())
		o.publisherManager.PublishBlind(ctx, events.NewPartialCompletionEvent(metadata, delta, sb.String()))
	}

	metadata.DurationMs = helpers.Int64Pointer(time.Since(start).Milliseconds())
	o.publisherManager.PublishBlind(ctx, events.NewFinalEvent(metadata, sb.String()))
	log.Debug().
		Int("index", insertIndex).
		Int64("message_id", int64(placeholder.ID)).
		Int("length", sb.Len()).
		Msg("completion finished")

	return Result{ID: placeholder.ID, Content: sb.String()}, nil
}

// fail records err as an assistant message at the end of the conversation.
func (o *Orchestrator) fail(ctx context.Context, metadata events.EventMetadata, err error) (Result, error) {
	text := err.Error()
	log.Warn().Err(err).Int("index", metadata.Index).Msg("completion failed")

	msg, appendErr := o.store.Append(conversation.RoleAssistant, text)
	if appendErr != nil {
		log.Error().Err(appendErr).Msg("could not record completion error")
	}
	o.publisherManager.PublishBlind(ctx, events.NewErrorEvent(metadata, err))

	return Result{ID: msg.ID, Content: text, Err: err}, err
}

func (o *Orchestrator) interrupt(ctx context.Context, metadata events.EventMetadata, res Result, partial string) (Result, error) {
	err := ctx.Err()
	log.Debug().Int("index", metadata.Index).Msg("completion interrupted")
	// ctx is done, publish with a fresh one so handlers still get the event
	o.publisherManager.PublishBlind(context.WithoutCancel(ctx), events.NewInterruptEvent(metadata, partial))
	res.Err = err
	return res, err
}
