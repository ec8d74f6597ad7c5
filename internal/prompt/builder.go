// Package prompt composes the conversations sent to the model for the plan
// and final stages.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultPersona is used when no persona file is present or it is blank.
const DefaultPersona = "You are a helpful, concise assistant."

// Builder composes stage conversations. The persona is read by
// SystemPrompt and passed to both stages by the caller, so a run sees a
// single persona even if the file changes underneath it. The zero value
// uses the default persona.
type Builder struct {
	// PersonaFile optionally overrides the system prompt.
	PersonaFile string

	assembler StandardAssembler
}

// NewBuilder returns a Builder reading its persona from personaFile.
func NewBuilder(personaFile string) *Builder {
	return &Builder{PersonaFile: personaFile}
}

// SystemPrompt returns the trimmed persona file contents, or DefaultPersona
// if the file is absent or empty.
func (b *Builder) SystemPrompt() (string, error) {
	if b.PersonaFile == "" {
		return DefaultPersona, nil
	}
	data, err := os.ReadFile(b.PersonaFile)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPersona, nil
	}
	if err != nil {
		return "", fmt.Errorf("read persona %s: %w", b.PersonaFile, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("persona %s is not valid UTF-8", b.PersonaFile)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return DefaultPersona, nil
	}
	return persona, nil
}

// PlanConversation builds the stage-one conversation carrying the task and
// the full knowledge text under the given system prompt.
func (b *Builder) PlanConversation(system, task, knowledge string) Conversation {
	user := "Task: " + task + "\nUse this info:\n" + knowledge + "\nMake a tight PLAN with steps and risks."
	return b.assembler.Assemble(system, user)
}

// FinalConversation builds the stage-two conversation. Only the plan is
// carried forward; task and knowledge are not repeated.
func (b *Builder) FinalConversation(system, plan string) Conversation {
	user := "Based on this PLAN:\n" + plan + "\nCreate the final answer for the task."
	return b.assembler.Assemble(system, user)
}
