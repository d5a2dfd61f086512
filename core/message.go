// Package core holds the types shared by the memory, retrieval and engine packages.
package core

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker label used in transcripts ("User", "Assistant", "System").
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	}
	return string(r)
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is a single conversation turn. Messages are values and never mutated
// after creation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}
