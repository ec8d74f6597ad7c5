// Package agent runs the two-stage plan/final pipeline: knowledge is loaded
// once, the model is asked for a plan, and then asked again to turn that
// plan into the final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dezso-dfield/ai-agent-representation/internal/knowledge"
	"github.com/dezso-dfield/ai-agent-representation/internal/model"
	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

// DefaultModel is the remote model invoked when none is configured.
const DefaultModel = "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free"

// ErrEmptyTask is returned by Run for a blank task.
var ErrEmptyTask = errors.New("task is empty")

// Stage identifies one of the two model calls.
type Stage string

const (
	StagePlan  Stage = "plan"
	StageFinal Stage = "final"
)

// StageError wraps a provider failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Usage sums token counts reported by the provider across both stages.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Result is the output of one run. Plan and Final are the raw model texts.
type Result struct {
	RunID string
	Plan  string
	Final string
	Usage Usage
}

// Agent holds the read-only configuration shared by every run. It is safe
// for concurrent use as long as its observers are.
type Agent struct {
	provider     model.Provider
	model        string
	knowledgeDir string
	builder      *prompt.Builder
	observers    []Observer
	logger       *slog.Logger
}

// New constructs an Agent that sends completions to provider.
func New(provider model.Provider, opts ...Option) *Agent {
	a := &Agent{
		provider:     provider,
		model:        DefaultModel,
		knowledgeDir: "knowledge",
		builder:      prompt.NewBuilder("prompt.md"),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the plan stage and then the final stage for task. If the
// final stage fails, the returned Result still carries the plan.
func (a *Agent) Run(ctx context.Context, task string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	if strings.TrimSpace(task) == "" {
		return res, ErrEmptyTask
	}
	logger := a.logger.With(slog.String("run_id", res.RunID))
	a.notify(func(o Observer) { o.RunStarted(res.RunID, task) })

	kn, err := knowledge.Load(a.knowledgeDir)
	if err != nil {
		err = fmt.Errorf("load knowledge: %w", err)
		a.runFinished(res, err)
		return res, err
	}
	logger.Debug("knowledge loaded", slog.String("dir", a.knowledgeDir), slog.Int("bytes", len(kn)))

	system, err := a.builder.SystemPrompt()
	if err != nil {
		err = fmt.Errorf("load persona: %w", err)
		a.runFinished(res, err)
		return res, err
	}

	planConv := a.builder.PlanConversation(system, task, kn)
	plan, err := a.complete(ctx, logger, res.RunID, StagePlan, planConv, &res.Usage)
	if err != nil {
		a.runFinished(res, err)
		return res, err
	}
	res.Plan = plan

	finalConv := a.builder.FinalConversation(system, plan)
	final, err := a.complete(ctx, logger, res.RunID, StageFinal, finalConv, &res.Usage)
	if err != nil {
		a.runFinished(res, err)
		return res, err
	}
	res.Final = final

	a.runFinished(res, nil)
	return res, nil
}

func (a *Agent) complete(ctx context.Context, logger *slog.Logger, runID string, stage Stage, conv prompt.Conversation, usage *Usage) (string, error) {
	logger.Debug("stage started", slog.String("stage", string(stage)), slog.String("model", a.model))
	started := time.Now()
	resp, err := a.provider.ChatCompletion(ctx, a.model, conv)
	latency := time.Since(started)
	if err != nil {
		logger.Error("stage failed", slog.String("stage", string(stage)), slog.String("error", err.Error()))
		a.notify(func(o Observer) { o.StageFailed(runID, stage, err) })
		return "", &StageError{Stage: stage, Err: err}
	}
	usage.InputTokens += resp.InputTokens
	usage.OutputTokens += resp.OutputTokens
	logger.Debug("stage completed",
		slog.String("stage", string(stage)),
		slog.Duration("latency", latency),
		slog.Int("input_tokens", resp.InputTokens),
		slog.Int("output_tokens", resp.OutputTokens),
	)
	a.notify(func(o Observer) { o.StageCompleted(runID, stage, a.model, resp, latency) })
	return resp.Content, nil
}

func (a *Agent) runFinished(res Result, err error) {
	a.notify(func(o Observer) { o.RunFinished(res, err) })
}

func (a *Agent) notify(fn func(Observer)) {
	for _, o := range a.observers {
		fn(o)
	}
}
