package events

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventMetadata identifies the completion an event belongs to.
type EventMetadata struct {
	ID             uuid.UUID `json:"event_id" yaml:"event_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	// MessageID is the store id of the message being generated, Index its position.
	MessageID int64 `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Index     int   `json:"index" yaml:"index"`

	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	PromptTokens int      `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	DurationMs   *int64   `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.MessageID != 0 {
		e.Int64("message_id", em.MessageID)
	}
	e.Int("index", em.Index)
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.Temperature != nil {
		e.Float64("temperature", *em.Temperature)
	}
	if em.MaxTokens != nil {
		e.Int("max_tokens", *em.MaxTokens)
	}
	if em.PromptTokens > 0 {
		e.Int("prompt_tokens", em.PromptTokens)
	}
	if em.DurationMs != nil {
		e.Int64("duration_ms", *em.DurationMs)
	}
}
