package conversation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

type Role string

const (
	RoleSystem    Role = openai.ChatMessageRoleSystem
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
)

// ParseRole accepts the three chat roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Toggled returns the role a message gets when its role is toggled.
// Users become assistants, everything else becomes a user.
func (r Role) Toggled() Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}

func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// MessageID identifies a message inside a Store. IDs are handed out in
// increasing order and never reused, independently of the message position.
type MessageID int64

// NullID is the zero MessageID, used for messages that were not yet added to a store.
const NullID MessageID = 0

func (id MessageID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

type Message struct {
	ID      MessageID `json:"id" yaml:"id"`
	Role    Role      `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
}

func NewChatMessage(role Role, content string) Message {
	return Message{
		Role:    role,
		Content: content,
	}
}

func NewSystemMessage(content string) Message {
	return NewChatMessage(RoleSystem, content)
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// ToChatCompletionMessage reduces the message to the role/content pair sent upstream.
func (m Message) ToChatCompletionMessage() openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    string(m.Role),
		Content: m.Content,
	}
}

type Messages []Message

// Clone returns a shallow copy, which is a full copy since Message holds no references.
func (ms Messages) Clone() Messages {
	if ms == nil {
		return nil
	}
	ret := make(Messages, len(ms))
	copy(ret, ms)
	return ret
}

func (ms Messages) ToChatCompletionMessages() []openai.ChatCompletionMessage {
	ret := make([]openai.ChatCompletionMessage, 0, len(ms))
	for _, m := range ms {
		ret = append(ret, m.ToChatCompletionMessage())
	}
	return ret
}

// CountRole returns how many messages carry the given role.
func (ms Messages) CountRole(role Role) int {
	n := 0
	for _, m := range ms {
		if m.Role == role {
			n++
		}
	}
	return n
}
