package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one rendered turn of a chat session. The list of
// messages belongs to the presentation layer; the agent loop never reads it.
type ConversationMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
