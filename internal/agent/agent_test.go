package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dezso-dfield/ai-agent-representation/internal/dummy"
	"github.com/dezso-dfield/ai-agent-representation/internal/knowledge"
	"github.com/dezso-dfield/ai-agent-representation/internal/model"
	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

func notesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Q3 revenue up 12%."), 0o644))
	return dir
}

func newScripted(t *testing.T, script string) *dummy.Provider {
	t.Helper()
	p, err := dummy.NewProvider(script)
	require.NoError(t, err)
	return p
}

func TestRun_EndToEnd(t *testing.T) {
	dir := notesDir(t)
	provider := newScripted(t, "msg:PLAN-X,msg:FINAL-Y")
	a := New(provider,
		WithKnowledgeDir(dir),
		WithPersonaFile(filepath.Join(dir, "absent.md")),
	)

	res, err := a.Run(context.Background(), "Summarize notes")
	require.NoError(t, err)
	assert.Equal(t, "PLAN-X", res.Plan)
	assert.Equal(t, "FINAL-Y", res.Final)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, Usage{InputTokens: 2, OutputTokens: 2}, res.Usage)

	calls := provider.Calls()
	require.Len(t, calls, 2)

	plan := calls[0].Conversation
	require.Len(t, plan, 2)
	assert.Equal(t, prompt.RoleSystem, plan[0].Role)
	assert.Equal(t, prompt.DefaultPersona, plan[0].Content)
	assert.Equal(t, prompt.RoleUser, plan[1].Role)
	assert.Contains(t, plan[1].Content, "Summarize notes")
	assert.Contains(t, plan[1].Content, "# notes.txt\nQ3 revenue up 12%.")

	final := calls[1].Conversation
	require.Len(t, final, 2)
	assert.Equal(t, prompt.DefaultPersona, final[0].Content)
	assert.Equal(t, prompt.RoleUser, final[1].Role)
	assert.Contains(t, final[1].Content, "PLAN-X")
	assert.NotContains(t, final[1].Content, "Q3 revenue")

	for _, c := range calls {
		assert.Equal(t, DefaultModel, c.Model)
		for _, m := range c.Conversation {
			assert.NotEqual(t, prompt.RoleAssistant, m.Role)
		}
	}
}

func TestRun_NoKnowledgeUsesSentinel(t *testing.T) {
	provider := newScripted(t, "msg:p,msg:f")
	a := New(provider, WithKnowledgeDir(filepath.Join(t.TempDir(), "missing")))

	_, err := a.Run(context.Background(), "do it")
	require.NoError(t, err)
	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Conversation.User(), knowledge.NoKnowledge)
}

func TestRun_PersonaOverrideUsedInBothStages(t *testing.T) {
	dir := notesDir(t)
	persona := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(persona, []byte("  Be terse.\n"), 0o644))
	provider := newScripted(t, "msg:p,msg:f")
	a := New(provider, WithKnowledgeDir(dir), WithPersonaFile(persona), WithModel("custom/model"))

	_, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	for _, c := range provider.Calls() {
		assert.Equal(t, "Be terse.", c.Conversation.System())
		assert.Equal(t, "custom/model", c.Model)
	}
}

func TestRun_PersonaReadOncePerRun(t *testing.T) {
	dir := notesDir(t)
	persona := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(persona, []byte("First persona"), 0o644))
	provider := &personaSwapProvider{path: persona, next: "Second persona"}
	a := New(provider, WithKnowledgeDir(dir), WithPersonaFile(persona))

	_, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	require.Len(t, provider.systems, 2)
	assert.Equal(t, []string{"First persona", "First persona"}, provider.systems)
}

func TestRun_Idempotent(t *testing.T) {
	dir := notesDir(t)
	var results []Result
	var users []string
	for i := 0; i < 2; i++ {
		provider := newScripted(t, "msg:PLAN-X,msg:FINAL-Y")
		a := New(provider, WithKnowledgeDir(dir))
		res, err := a.Run(context.Background(), "Summarize notes")
		require.NoError(t, err)
		results = append(results, res)
		for _, c := range provider.Calls() {
			users = append(users, c.Conversation.User())
		}
	}
	assert.Equal(t, results[0].Plan, results[1].Plan)
	assert.Equal(t, results[0].Final, results[1].Final)
	assert.Equal(t, users[:2], users[2:])
}

func TestRun_EmptyTask(t *testing.T) {
	provider := newScripted(t, "ok")
	a := New(provider)

	_, err := a.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyTask)
	assert.Empty(t, provider.Calls())
}

func TestRun_PlanFailureSkipsFinal(t *testing.T) {
	provider := newScripted(t, "err:auth,msg:never")
	a := New(provider, WithKnowledgeDir(notesDir(t)))

	res, err := a.Run(context.Background(), "task")
	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePlan, stageErr.Stage)
	assert.Contains(t, err.Error(), "class=auth")
	assert.Empty(t, res.Plan)
	assert.Len(t, provider.Calls(), 1)
}

func TestRun_FinalFailureKeepsPlan(t *testing.T) {
	provider := newScripted(t, "msg:PLAN-X,err:quota")
	a := New(provider, WithKnowledgeDir(notesDir(t)))

	res, err := a.Run(context.Background(), "task")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFinal, stageErr.Stage)
	assert.Equal(t, "PLAN-X", res.Plan)
	assert.Empty(t, res.Final)
}

func TestRun_ProviderErrorIsUnwrappable(t *testing.T) {
	sentinel := errors.New("network down")
	a := New(failingProvider{err: sentinel}, WithKnowledgeDir(notesDir(t)))

	_, err := a.Run(context.Background(), "task")
	assert.ErrorIs(t, err, sentinel)
}

func TestRun_InvalidKnowledgeFailsBeforeModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte{0xff, 0xfe}, 0o644))
	provider := newScripted(t, "ok")
	a := New(provider, WithKnowledgeDir(dir))

	_, err := a.Run(context.Background(), "task")
	assert.ErrorIs(t, err, knowledge.ErrInvalidEncoding)
	assert.Empty(t, provider.Calls())
}

func TestRun_OutputNotPostProcessed(t *testing.T) {
	provider := &fixedProvider{replies: []string{"  plan with spaces \n", "\nfinal\n"}}
	a := New(provider, WithKnowledgeDir(notesDir(t)))

	res, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "  plan with spaces \n", res.Plan)
	assert.Equal(t, "\nfinal\n", res.Final)
}

func TestRun_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	provider := newScripted(t, "msg:PLAN-X,msg:FINAL-Y")
	a := New(provider, WithKnowledgeDir(notesDir(t)), WithObserver(obs))

	res, err := a.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"started:" + res.RunID,
		"completed:plan",
		"completed:final",
		"finished:ok",
	}, obs.events)
}

func TestRun_NotifiesStageFailure(t *testing.T) {
	obs := &recordingObserver{}
	provider := newScripted(t, "err:provider_api")
	a := New(provider, WithKnowledgeDir(notesDir(t)), WithObserver(obs))

	res, err := a.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Equal(t, []string{
		"started:" + res.RunID,
		"failed:plan",
		"finished:error",
	}, obs.events)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	dir := notesDir(t)
	a := New(echoProvider{}, WithKnowledgeDir(dir))

	var wg sync.WaitGroup
	tasks := []string{"alpha", "beta", "gamma", "delta"}
	results := make([]Result, len(tasks))
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task string) {
			defer wg.Done()
			res, err := a.Run(context.Background(), task)
			assert.NoError(t, err)
			results[i] = res
		}(i, task)
	}
	wg.Wait()

	for i, task := range tasks {
		assert.Contains(t, results[i].Plan, "Task: "+task)
		assert.Contains(t, results[i].Final, "Task: "+task)
	}
}

type failingProvider struct{ err error }

func (f failingProvider) ChatCompletion(context.Context, string, prompt.Conversation) (model.CompletionResponse, error) {
	return model.CompletionResponse{}, f.err
}

type fixedProvider struct {
	replies []string
	n       int
}

func (f *fixedProvider) ChatCompletion(context.Context, string, prompt.Conversation) (model.CompletionResponse, error) {
	r := f.replies[f.n]
	f.n++
	return model.CompletionResponse{Content: r}, nil
}

// echoProvider replies with the user message it received.
// personaSwapProvider rewrites the persona file after the first call.
type personaSwapProvider struct {
	path    string
	next    string
	systems []string
}

func (p *personaSwapProvider) ChatCompletion(_ context.Context, _ string, conv prompt.Conversation) (model.CompletionResponse, error) {
	p.systems = append(p.systems, conv.System())
	if len(p.systems) == 1 {
		if err := os.WriteFile(p.path, []byte(p.next), 0o644); err != nil {
			return model.CompletionResponse{}, err
		}
	}
	return model.CompletionResponse{Content: "ok"}, nil
}

type echoProvider struct{}

func (echoProvider) ChatCompletion(_ context.Context, _ string, conv prompt.Conversation) (model.CompletionResponse, error) {
	return model.CompletionResponse{Content: conv.User()}, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) RunStarted(runID, _ string) { r.add("started:" + runID) }

func (r *recordingObserver) StageCompleted(_ string, stage Stage, _ string, _ model.CompletionResponse, _ time.Duration) {
	r.add("completed:" + string(stage))
}

func (r *recordingObserver) StageFailed(_ string, stage Stage, _ error) { r.add("failed:" + string(stage)) }

func (r *recordingObserver) RunFinished(_ Result, err error) {
	if err != nil {
		r.add("finished:error")
		return
	}
	r.add("finished:ok")
}
