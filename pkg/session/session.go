package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/go-go-golems/reflow/pkg/completion"
	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/helpers"
	"github.com/go-go-golems/reflow/pkg/history"
	"github.com/go-go-golems/reflow/pkg/replay"
	"github.com/go-go-golems/reflow/pkg/settings"
)

const DefaultSystemPrompt = "You are a helpful AI chatbot."

var ErrMessageNotFound = errors.New("message not found")

// Session is the active conversation: its messages, system message and
// generation settings, bound to a history store. Every change is committed
// to the store; the first commit of a new conversation assigns its id.
type Session struct {
	mu             sync.RWMutex
	conversationID string
	name           string
	systemMessage  conversation.Message
	config         *settings.GenerationConfig

	messages     *conversation.Store
	history      history.Store
	orchestrator *completion.Orchestrator
	replay       *replay.Engine

	commitMu    sync.Mutex
	throttle    *rate.Sometimes
	now         func() time.Time
	unsubscribe func()

	orchestratorOptions []completion.OrchestratorOption
	replayOptions       []replay.EngineOption
}

var _ completion.PromptSource = (*Session)(nil)

type Option func(*Session)

// WithCommitInterval coalesces the commits caused by streamed content while
// a completion runs. Zero commits every change.
func WithCommitInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.throttle = &rate.Sometimes{Interval: d}
		} else {
			s.throttle = nil
		}
	}
}

func WithGenerationConfig(cfg *settings.GenerationConfig) Option {
	return func(s *Session) {
		if cfg != nil {
			s.config = cfg.Clone()
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(s *Session) {
		s.systemMessage = conversation.NewSystemMessage(prompt)
	}
}

func WithOrchestratorOptions(options ...completion.OrchestratorOption) Option {
	return func(s *Session) {
		s.orchestratorOptions = append(s.orchestratorOptions, options...)
	}
}

func WithReplayOptions(options ...replay.EngineOption) Option {
	return func(s *Session) {
		s.replayOptions = append(s.replayOptions, options...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func New(store history.Store, streamer completion.Streamer, options ...Option) *Session {
	s := &Session{
		systemMessage: conversation.NewSystemMessage(DefaultSystemPrompt),
		config:        settings.NewGenerationConfig(),
		messages:      conversation.NewStore(),
		history:       store,
		now:           time.Now,
	}
	for _, o := range options {
		o(s)
	}

	s.orchestrator = completion.NewOrchestrator(s.messages, streamer, s, s.orchestratorOptions...)
	s.replay = replay.NewEngine(s.messages, s.orchestrator, s.replayOptions...)
	s.unsubscribe = s.messages.Subscribe(s.onChange)
	return s
}

func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) onChange(c conversation.Change) {
	if c.Kind == conversation.ChangeContentUpdated && s.throttle != nil && s.orchestrator.InFlight() {
		s.throttle.Do(s.commitBlind)
		return
	}
	s.commitBlind()
}

func (s *Session) commitBlind() {
	if err := s.Commit(context.Background()); err != nil {
		log.Warn().Err(err).Msg("could not commit conversation")
	}
}

// Commit writes the active conversation to the history store. It does
// nothing while there are no messages.
func (s *Session) Commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	msgs := s.messages.Snapshot()
	if len(msgs) == 0 {
		return nil
	}

	s.mu.RLock()
	id := s.conversationID
	c := &history.Conversation{
		Name:          s.name,
		SystemMessage: s.systemMessage,
		Messages:      msgs,
		Config:        *s.config,
		LastMessage:   s.now(),
	}
	s.mu.RUnlock()

	newID, err := s.history.Put(ctx, id, c)
	if err != nil {
		return errors.Wrap(err, "could not store conversation")
	}
	if id == "" {
		s.mu.Lock()
		if s.conversationID == "" {
			s.conversationID = newID
		}
		s.mu.Unlock()
		log.Debug().Str("conversation_id", newID).Msg("created conversation")
	}
	return nil
}

func (s *Session) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) SystemMessage() conversation.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemMessage
}

func (s *Session) GenerationConfig() settings.GenerationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

func (s *Session) Messages() conversation.Messages {
	return s.messages.Snapshot()
}

// Store exposes the message store, for callers that want change notifications.
func (s *Session) Store() *conversation.Store {
	return s.messages
}

func (s *Session) UpdateSystemMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	s.systemMessage = conversation.NewSystemMessage(content)
	s.mu.Unlock()
	return s.Commit(ctx)
}

// UpdateConfig merges u into the generation settings. See
// settings.GenerationConfig.Apply for how a model switch affects max_tokens.
func (s *Session) UpdateConfig(ctx context.Context, u settings.GenerationUpdate) error {
	s.mu.Lock()
	cfg, err := s.config.Apply(u)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.config = cfg
	s.mu.Unlock()
	return s.Commit(ctx)
}

// AddMessage appends a message and, with submit set, replays the conversation.
func (s *Session) AddMessage(ctx context.Context, content string, role conversation.Role, submit bool) (conversation.Message, error) {
	m, err := s.messages.Append(role, content)
	if err != nil {
		return conversation.Message{}, err
	}
	if submit {
		return m, s.Submit(ctx)
	}
	return m, nil
}

func (s *Session) RemoveMessage(id conversation.MessageID) bool {
	return s.messages.RemoveByID(id)
}

func (s *Session) ToggleMessageRole(id conversation.MessageID) bool {
	return s.messages.ToggleRole(id)
}

func (s *Session) UpdateMessageContent(id conversation.MessageID, content string) bool {
	return s.messages.UpdateContent(id, content)
}

// Submit regenerates every assistant message in order and commits the result.
func (s *Session) Submit(ctx context.Context) error {
	ctx = helpers.ContextWithCorrelationID(ctx, helpers.NewCorrelationID())
	err := s.replay.Submit(ctx, nil)
	if cerr := s.Commit(context.WithoutCancel(ctx)); cerr != nil {
		log.Warn().Err(cerr).Msg("could not commit after submit")
		if err == nil {
			err = cerr
		}
	}
	return err
}

// Regenerate replays a single assistant message.
func (s *Session) Regenerate(ctx context.Context, id conversation.MessageID) (completion.Result, error) {
	msgs := s.messages.Snapshot()
	idx := -1
	for i, m := range msgs {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return completion.Result{}, errors.Wrapf(ErrMessageNotFound, "message %d", id)
	}

	ctx = helpers.ContextWithCorrelationID(ctx, helpers.NewCorrelationID())
	res, err := s.orchestrator.CompleteOne(ctx, msgs[:idx+1], idx)
	if cerr := s.Commit(context.WithoutCancel(ctx)); cerr != nil {
		log.Warn().Err(cerr).Msg("could not commit after regenerate")
	}
	return res, err
}

// LoadConversation makes the stored conversation id the active one.
func (s *Session) LoadConversation(ctx context.Context, id string) error {
	c, ok, err := s.history.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &history.NotFoundError{ID: id}
	}

	s.mu.Lock()
	cfg, err := s.config.Apply(settings.FullUpdate(c.Config))
	if err != nil {
		s.mu.Unlock()
		return errors.Wrapf(err, "conversation %q has invalid settings", id)
	}
	s.conversationID = id
	s.name = c.Name
	s.systemMessage = c.SystemMessage
	s.config = cfg
	s.mu.Unlock()

	return s.messages.Reset(c.Messages)
}

// ClearConversation starts a new, empty conversation. Generation settings are kept.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	s.conversationID = ""
	s.name = ""
	s.systemMessage = conversation.NewSystemMessage(DefaultSystemPrompt)
	s.mu.Unlock()

	if err := s.messages.Reset(nil); err != nil {
		log.Warn().Err(err).Msg("could not clear messages")
	}
}

func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if err := s.history.Delete(ctx, id); err != nil {
		return err
	}
	if id == s.ConversationID() {
		s.ClearConversation()
	}
	return nil
}

func (s *Session) UpdateConversationName(ctx context.Context, id string, name string) error {
	if err := s.history.Rename(ctx, id, name); err != nil {
		return err
	}
	s.mu.Lock()
	if id == s.conversationID {
		s.name = name
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) ClearConversations(ctx context.Context) error {
	if err := s.history.Clear(ctx); err != nil {
		return err
	}
	s.ClearConversation()
	return nil
}

func (s *Session) Conversations(ctx context.Context) (history.History, error) {
	return s.history.List(ctx)
}
