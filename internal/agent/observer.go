package agent

import (
	"time"

	"github.com/dezso-dfield/ai-agent-representation/internal/model"
)

// Observer receives run and stage notifications. Implementations must be
// safe for concurrent use when runs execute in parallel.
type Observer interface {
	RunStarted(runID, task string)
	StageCompleted(runID string, stage Stage, modelID string, resp model.CompletionResponse, latency time.Duration)
	StageFailed(runID string, stage Stage, err error)
	// RunFinished is called once per run, with err nil on success.
	RunFinished(res Result, err error)
}
