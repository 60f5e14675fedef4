//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/agent"
	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
)

// AgentOptions bound agent runs.
type AgentOptions struct {
	MaxIterations int
	ToolTimeout   time.Duration
}

// AgentRun is a composed agent request.
type AgentRun struct {
	pipeline *Pipeline
	agent    *agent.Agent
}

// ComposeAgent prepares an agent run over the selected tools. UseCoT has
// no effect on agent requests; UseRAG adds retrieved context to the
// agent's input.
func (c *Composer) ComposeAgent(req Request, ts []tools.Tool, opts AgentOptions) (*AgentRun, error) {
	req.UseCoT = false
	p, err := c.Compose(req)
	if err != nil {
		return nil, err
	}
	a := agent.New(p.model, ts, agent.Options{
		MaxIterations: opts.MaxIterations,
		ModelTimeout:  c.opts.ModelTimeout,
		ToolTimeout:   opts.ToolTimeout,
		Logger:        c.logger,
	})
	return &AgentRun{pipeline: p, agent: a}, nil
}

// Stream runs the agent and emits only its final output, trimmed, as one
// chunk event followed by done. Intermediate steps are logged, not
// emitted. The exchange is appended once the agent finishes.
func (r *AgentRun) Stream(ctx context.Context) (<-chan Event, error) {
	p := r.pipeline
	release, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}

	in, err := p.prepare(ctx)
	if err != nil {
		release()
		return nil, err
	}
	input := p.req.Question
	if p.shape.Retrieves() {
		input = agent.RAGInput(p.req.Question, in.context)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer release()

		send := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		ctx, span := p.startGenerate(ctx)
		defer span.End()
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		steps, errs := r.agent.Run(runCtx, input)
		var output string
		for step := range steps {
			if !step.Final {
				p.logger.Debug("agent step", "tool", step.Tool, "observation_length", len(step.Observation))
				continue
			}
			output = strings.TrimSpace(step.Output)
			if !send(Event{Type: EventChunk, Content: output}) {
				cancel()
				for range steps {
				}
				return
			}
		}
		if err := <-errs; err != nil {
			if ctx.Err() != nil {
				return
			}
			err = fail(span, newError(ErrModelInvocation, err))
			p.logger.Error("agent failed", "session_id", p.req.SessionID, "error", err)
			send(Event{Type: EventError, Content: publicMessage(err), Err: err})
			return
		}

		if err := p.commit(ctx, output); err != nil {
			p.logger.Error("agent failed", "session_id", p.req.SessionID, "error", err)
			send(Event{Type: EventError, Content: publicMessage(err), Err: err})
			return
		}
		send(Event{Type: EventDone})
	}()

	return events, nil
}
