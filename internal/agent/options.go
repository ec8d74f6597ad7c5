package agent

import (
	"log/slog"

	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

// Option configures an Agent.
type Option func(*Agent)

// WithModel sets the model identifier sent with every completion.
func WithModel(id string) Option {
	return func(a *Agent) {
		if id != "" {
			a.model = id
		}
	}
}

// WithKnowledgeDir sets the directory scanned for *.txt knowledge documents.
func WithKnowledgeDir(dir string) Option {
	return func(a *Agent) { a.knowledgeDir = dir }
}

// WithPersonaFile sets the optional system prompt override file.
func WithPersonaFile(path string) Option {
	return func(a *Agent) { a.builder = prompt.NewBuilder(path) }
}

// WithObserver registers an observer notified of run and stage outcomes.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}
