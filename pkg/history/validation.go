package history

import (
	"fmt"

	"github.com/go-go-golems/reflow/pkg/conversation"
)

func ValidateConversation(c *Conversation) error {
	if c == nil {
		return &ValidationError{Reason: "conversation is nil"}
	}
	if c.SystemMessage.Role != conversation.RoleSystem {
		return &ValidationError{
			Field:  "systemMessage.role",
			Reason: fmt.Sprintf("must be %q, got %q", conversation.RoleSystem, c.SystemMessage.Role),
		}
	}
	seen := map[conversation.MessageID]bool{}
	for i, m := range c.Messages {
		if !m.Role.IsValid() {
			return &ValidationError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
		if m.ID != conversation.NullID {
			if seen[m.ID] {
				return &ValidationError{
					Field:  fmt.Sprintf("messages[%d].id", i),
					Reason: fmt.Sprintf("duplicate message id %d", m.ID),
				}
			}
			seen[m.ID] = true
		}
	}
	if err := c.Config.Validate(); err != nil {
		return &ValidationError{Field: "config", Reason: err.Error()}
	}
	return nil
}
