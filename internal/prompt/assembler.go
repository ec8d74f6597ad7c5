package prompt

// StandardAssembler combines a system prompt and a single user message
// into a two-message conversation.
type StandardAssembler struct{}

// Assemble builds the final message list: system + user.
// Model output is never appended as assistant history.
func (a *StandardAssembler) Assemble(system, userMsg string) Conversation {
	return Conversation{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: userMsg},
	}
}
