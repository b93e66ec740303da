package model

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID    string   `json:"id"`
	Role  ChatRole `json:"role"`
	Text  string   `json:"text"`
	Ctime int64    `json:"ctime"`
}
