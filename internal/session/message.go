package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/streamchat/streamchat/internal/provider"
)

// Role tags a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleError:
		return true
	}
	return false
}

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

func newMessage(role Role, content string, ts time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
		IsError:   role == RoleError,
	}
}

// modelVisible converts the user and assistant turns of msgs into the
// completion history. Error notices and empty placeholders never reach the model.
func modelVisible(msgs []Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			out = append(out, provider.Message{Role: provider.RoleUser, Content: m.Content})
		case RoleAssistant:
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		}
	}
	return out
}
