package tokens

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/tiktoken-go/tokenizer"
)

// Chat formatting overhead per message and for the reply priming, as
// documented for the OpenAI chat models.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// Counter estimates prompt sizes. Codecs are resolved per model and cached;
// models the tokenizer does not know fall back to cl100k_base.
type Counter struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

func NewCounter() *Counter {
	return &Counter{codecs: map[string]tokenizer.Codec{}}
}

func (c *Counter) codec(model string) (tokenizer.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codec, ok := c.codecs[model]; ok {
		return codec, nil
	}

	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		log.Debug().Str("model", model).Err(err).Msg("no tokenizer for model, using cl100k_base")
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not load cl100k_base codec")
		}
	}
	c.codecs[model] = codec
	return codec, nil
}

// Count returns the number of tokens of text for model.
func (c *Counter) Count(model string, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode text")
	}
	return len(ids), nil
}

// CountMessages estimates the prompt tokens of a chat request.
func (c *Counter) CountMessages(model string, messages []openai.ChatCompletionMessage) (int, error) {
	total := tokensPerReply
	for _, m := range messages {
		n, err := c.Count(model, m.Role)
		if err != nil {
			return 0, err
		}
		total += n + tokensPerMessage

		n, err = c.Count(model, m.Content)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
