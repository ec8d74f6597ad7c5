package prompt

// Chat roles understood by the completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a model-agnostic chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered message list sent to the model as one request.
type Conversation []Message

// User returns the content of the first user message, or "" if there is none.
func (c Conversation) User() string {
	for _, m := range c {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// System returns the content of the leading system message, or "".
func (c Conversation) System() string {
	if len(c) == 0 || c[0].Role != RoleSystem {
		return ""
	}
	return c[0].Content
}
