package history

import (
	"sort"
	"time"

	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/settings"
)

// Conversation is the persisted state of one conversation.
type Conversation struct {
	Name          string                    `json:"name" yaml:"name"`
	SystemMessage conversation.Message      `json:"systemMessage" yaml:"system_message"`
	Messages      conversation.Messages     `json:"messages" yaml:"messages"`
	Config        settings.GenerationConfig `json:"config" yaml:"config"`
	LastMessage   time.Time                 `json:"lastMessage" yaml:"last_message"`
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	ret := *c
	ret.Messages = c.Messages.Clone()
	return &ret
}

// Title is the name, or the start of the first message for unnamed conversations.
func (c *Conversation) Title() string {
	if c.Name != "" {
		return c.Name
	}
	for _, m := range c.Messages {
		if m.Content == "" {
			continue
		}
		r := []rune(m.Content)
		if len(r) > 40 {
			return string(r[:40]) + "…"
		}
		return m.Content
	}
	return "Untitled"
}

// History maps conversation ids to conversations.
type History map[string]*Conversation

// IDs returns the conversation ids, most recently active first.
func (h History) IDs() []string {
	ids := make([]string, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := h[ids[i]], h[ids[j]]
		if !a.LastMessage.Equal(b.LastMessage) {
			return a.LastMessage.After(b.LastMessage)
		}
		return ids[i] < ids[j]
	})
	return ids
}
