package journal

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/dezso-dfield/ai-agent-representation/internal/agent"
	"github.com/dezso-dfield/ai-agent-representation/internal/model"
)

// Recorder writes agent notifications to the events table. Each run becomes
// a run.started event (child of parentID when set) with its stage and
// outcome events underneath. Write failures are logged, never returned.
type Recorder struct {
	db       *sql.DB
	parentID *int64
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]int64
}

var _ agent.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder attaching runs under parentID (may be nil).
func NewRecorder(db *sql.DB, parentID *int64, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, parentID: parentID, logger: logger, runs: make(map[string]int64)}
}

func (r *Recorder) RunStarted(runID, task string) {
	id, ok := r.log(r.parentID, EventRunStarted, map[string]any{
		"run_id": runID,
		"task":   truncate(task, 1000),
	})
	if !ok {
		return
	}
	r.mu.Lock()
	r.runs[runID] = id
	r.mu.Unlock()
}

func (r *Recorder) StageCompleted(runID string, stage agent.Stage, modelID string, resp model.CompletionResponse, latency time.Duration) {
	r.log(r.runEvent(runID), EventStageCompleted, map[string]any{
		"stage":         string(stage),
		"model_name":    modelID,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
}

func (r *Recorder) StageFailed(runID string, stage agent.Stage, err error) {
	r.log(r.runEvent(runID), EventStageFailed, map[string]any{
		"stage": string(stage),
		"error": truncate(err.Error(), 1000),
	})
}

func (r *Recorder) RunFinished(res agent.Result, err error) {
	parent := r.runEvent(res.RunID)
	r.mu.Lock()
	delete(r.runs, res.RunID)
	r.mu.Unlock()

	if err != nil {
		r.log(parent, EventRunFailed, map[string]any{
			"run_id": res.RunID,
			"error":  truncate(err.Error(), 1000),
		})
		return
	}
	r.log(parent, EventRunCompleted, map[string]any{
		"run_id":        res.RunID,
		"plan_chars":    len([]rune(res.Plan)),
		"final_chars":   len([]rune(res.Final)),
		"input_tokens":  res.Usage.InputTokens,
		"output_tokens": res.Usage.OutputTokens,
	})
}

// runEvent returns the run.started id for runID, falling back to the
// recorder's parent when the run was never recorded.
func (r *Recorder) runEvent(runID string) *int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.runs[runID]; ok {
		return &id
	}
	return r.parentID
}

func (r *Recorder) log(parentID *int64, eventType string, payload map[string]any) (int64, bool) {
	id, err := LogEvent(r.db, parentID, eventType, payload)
	if err != nil {
		r.logger.Warn("journal write failed", slog.String("event", eventType), slog.String("error", err.Error()))
		return 0, false
	}
	return id, true
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
