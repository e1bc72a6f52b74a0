package settings

import (
	"sort"

	"github.com/sashabaranov/go-openai"
)

// Model is a chat model the completion service accepts, with its context size.
type Model struct {
	Name     string `yaml:"name" json:"name"`
	MaxLimit int    `yaml:"max_limit" json:"max_limit"`
}

var chatModels = map[string]Model{
	openai.GPT3Dot5Turbo:    {Name: openai.GPT3Dot5Turbo, MaxLimit: 4096},
	openai.GPT3Dot5Turbo16K: {Name: openai.GPT3Dot5Turbo16K, MaxLimit: 16384},
	openai.GPT4:             {Name: openai.GPT4, MaxLimit: 8192},
	openai.GPT432K:          {Name: openai.GPT432K, MaxLimit: 32768},
}

func LookupModel(name string) (Model, bool) {
	m, ok := chatModels[name]
	return m, ok
}

// Models lists the supported models ordered by name.
func Models() []Model {
	ret := make([]Model, 0, len(chatModels))
	for _, m := range chatModels {
		ret = append(ret, m)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// DefaultMaxTokens is the max_tokens value a model switch resets to.
func (m Model) DefaultMaxTokens() int {
	return m.MaxLimit / 2
}
