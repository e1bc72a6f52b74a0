package completion

import (
	"github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/settings"
)

// Request is the body posted to the completion endpoint. Sampling fields are
// always sent, zero values included.
type Request struct {
	Model            string                         `json:"model"`
	Temperature      float64                        `json:"temperature"`
	MaxTokens        int                            `json:"max_tokens"`
	TopP             float64                        `json:"top_p"`
	FrequencyPenalty float64                        `json:"frequency_penalty"`
	PresencePenalty  float64                        `json:"presence_penalty"`
	Messages         []openai.ChatCompletionMessage `json:"messages"`
	Stream           bool                           `json:"stream"`
}

// NewRequest builds a streaming request from the system message followed by
// the prompt messages, reduced to role and content.
func NewRequest(cfg settings.GenerationConfig, system conversation.Message, prompt conversation.Messages) *Request {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt)+1)
	messages = append(messages, system.ToChatCompletionMessage())
	messages = append(messages, prompt.ToChatCompletionMessages()...)

	return &Request{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Messages:         messages,
		Stream:           true,
	}
}
