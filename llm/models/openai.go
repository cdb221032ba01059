package models

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`       // e.g., "gpt-4o-mini"
	Messages    []ChatMessage `json:"messages"`    // system prompt first, then caller history
	Temperature float64       `json:"temperature"` // always sent, zero is meaningful
	MaxTokens   int           `json:"max_tokens,omitempty"`
	User        string        `json:"user,omitempty"`
}

// NewChatRequest prepends the system prompt to the caller supplied history.
// The caller's slice is never modified.
func NewChatRequest(model string, temperature float64, systemPrompt string, history []ChatMessage) *ChatRequest {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	return &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	}
}
