// Package dummy provides a scripted model provider for offline runs and
// end-to-end tests.
//
// A script is a comma separated list of actions consumed one per call; the
// last action repeats once the script is exhausted:
//
//	ok            reply "dummy-ok"
//	msg:<text>    reply <text>
//	msgb64:<b64>  reply the base64-decoded text
//	err:<class>   fail with "dummy provider error class=<class>"
//	sleep:<ms>    sleep, then reply "dummy-after-sleep"
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dezso-dfield/ai-agent-representation/internal/model"
	"github.com/dezso-dfield/ai-agent-representation/internal/prompt"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		matched := false
		for _, kind := range []string{"err", "sleep", "msg", "msgb64"} {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Call records one request seen by the Provider.
type Call struct {
	Model        string
	Conversation prompt.Conversation
}

// Provider replays a script of canned replies.
type Provider struct {
	mu     sync.Mutex
	script *scriptRunner
	calls  []Call
}

var _ model.Provider = (*Provider)(nil)

// NewProvider parses script and returns a Provider replaying it.
func NewProvider(script string) (*Provider, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Provider{script: &scriptRunner{actions: actions}}, nil
}

// Calls returns the requests received so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) ChatCompletion(ctx context.Context, modelID string, conv prompt.Conversation) (model.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Model: modelID, Conversation: append(prompt.Conversation(nil), conv...)})

	a := p.script.next()
	switch a.kind {
	case "err":
		return model.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return model.CompletionResponse{}, ctx.Err()
			}
		}
		return reply("dummy-after-sleep"), nil
	case "msg":
		return reply(a.arg), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return model.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return reply(string(raw)), nil
	default:
		return reply("dummy-ok"), nil
	}
}

func reply(content string) model.CompletionResponse {
	return model.CompletionResponse{
		Content:      content,
		InputTokens:  1,
		OutputTokens: 1,
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
