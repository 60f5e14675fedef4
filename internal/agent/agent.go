//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package agent runs a ReAct loop: the model alternates between choosing
// a tool and reading its observation until it gives a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
	"github.com/pgEdge/pgedge-ask-server/internal/llm"
)

// DefaultMaxIterations bounds the model calls of one run.
const DefaultMaxIterations = 10

// StoppedOutput is the final output when the iteration budget runs out.
const StoppedOutput = "Agent stopped due to iteration limit or time limit."

const stopSequence = "\nObservation:"

// Step is one event of a run. Action steps name the tool called and its
// observation; the last step carries the final Output.
type Step struct {
	Tool        string
	ToolInput   string
	Observation string
	Output      string
	Final       bool
}

// Options tune an Agent.
type Options struct {
	MaxIterations int
	ModelTimeout  time.Duration
	ToolTimeout   time.Duration
	Logger        *slog.Logger
}

// Agent answers an input with a model and a set of tools.
type Agent struct {
	model         llm.CompletionProvider
	tools         []tools.Tool
	maxIterations int
	modelTimeout  time.Duration
	toolTimeout   time.Duration
	logger        *slog.Logger
}

// New creates an agent.
func New(model llm.CompletionProvider, ts []tools.Tool, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Agent{
		model:         model,
		tools:         ts,
		maxIterations: maxIterations,
		modelTimeout:  opts.ModelTimeout,
		toolTimeout:   opts.ToolTimeout,
		logger:        logger.With("component", "agent"),
	}
}

// Run starts the loop. Steps are sent as they complete and the channel
// closes after the final step; at most one error is delivered, after
// which no final step is sent.
func (a *Agent) Run(ctx context.Context, input string) (<-chan Step, <-chan error) {
	stepChan := make(chan Step)
	errChan := make(chan error, 1)

	go func() {
		defer close(stepChan)
		defer close(errChan)

		send := func(s Step) bool {
			select {
			case stepChan <- s:
				return true
			case <-ctx.Done():
				errChan <- ctx.Err()
				return false
			}
		}

		var steps []step
		for i := 0; i < a.maxIterations; i++ {
			resp, err := a.think(ctx, renderPrompt(a.tools, input, steps))
			if err != nil {
				errChan <- err
				return
			}
			text := strings.TrimSuffix(resp.Content, stopSequence)

			decision, err := Parse(text)
			var parseErr *ParsingError
			if errors.As(err, &parseErr) {
				a.logger.Warn("unparseable agent output", "iteration", i+1, "reason", parseErr.Reason)
				steps = append(steps, step{log: text, observation: parseErr.Reason})
				if !send(Step{Tool: "_Exception", ToolInput: text, Observation: parseErr.Reason}) {
					return
				}
				continue
			}

			if decision.Final {
				send(Step{Output: decision.Output, Final: true})
				return
			}

			observation := a.call(ctx, decision)
			if err := ctx.Err(); err != nil {
				errChan <- err
				return
			}
			steps = append(steps, step{log: decision.Log, observation: observation})
			if !send(Step{Tool: decision.Tool, ToolInput: decision.Input, Observation: observation}) {
				return
			}
		}

		a.logger.Warn("agent reached iteration limit", "max_iterations", a.maxIterations)
		send(Step{Output: StoppedOutput, Final: true})
	}()

	return stepChan, errChan
}

func (a *Agent) think(ctx context.Context, prompt string) (*llm.CompletionResponse, error) {
	if a.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.modelTimeout)
		defer cancel()
	}
	return a.model.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: llm.DefaultTemperature,
		Stop:        []string{stopSequence},
	})
}

// call runs the chosen tool. Unknown tools and tool failures become
// observations so the model can recover.
func (a *Agent) call(ctx context.Context, d Decision) string {
	var tool tools.Tool
	names := make([]string, len(a.tools))
	for i, t := range a.tools {
		names[i] = t.Name()
		if t.Name() == d.Tool {
			tool = t
		}
	}
	if tool == nil {
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", d.Tool, strings.Join(names, ", "))
	}

	if a.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.toolTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := tool.Run(ctx, d.Input)
	if err != nil {
		a.logger.Warn("tool failed", "tool", d.Tool, "error", err, "duration", time.Since(start))
		return "Error: " + err.Error()
	}
	a.logger.Debug("tool finished", "tool", d.Tool, "duration", time.Since(start))
	return out
}
