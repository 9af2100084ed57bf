//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package parallelagent provides a composite agent that runs its
// sub-agents concurrently and merges their event streams.
package parallelagent

import (
	"context"
	"runtime/debug"
	"sync"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultChannelBufferSize = 256

// ParallelAgent runs all sub-agents concurrently with the same input
// message. Each child gets its own branch so children do not see each
// other's events. A failing child does not cancel its siblings, and every
// child runs to completion in either mode.
type ParallelAgent struct {
	name              string
	description       string
	subAgents         []agent.Agent
	waitForAll        bool
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*ParallelAgent)(nil)

// Option configures a ParallelAgent.
type Option func(*ParallelAgent)

// WithDescription sets the agent description.
func WithDescription(description string) Option {
	return func(a *ParallelAgent) { a.description = description }
}

// WithSubAgents sets the agents to run concurrently.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(a *ParallelAgent) { a.subAgents = append(a.subAgents, subAgents...) }
}

// WithWaitForAll controls event ordering: when true (the default) the run
// gathers every child's events and emits them grouped in child order; when
// false events stream interleaved as they arrive. All children run to
// completion either way.
func WithWaitForAll(wait bool) Option {
	return func(a *ParallelAgent) { a.waitForAll = wait }
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(a *ParallelAgent) {
		if n > 0 {
			a.channelBufferSize = n
		}
	}
}

// WithAgentCallbacks installs agent callbacks.
func WithAgentCallbacks(cb *agent.Callbacks) Option {
	return func(a *ParallelAgent) { a.agentCallbacks = cb }
}

// New creates a ParallelAgent with the given name and options.
func New(name string, opts ...Option) *ParallelAgent {
	a := &ParallelAgent{
		name:              name,
		waitForAll:        true,
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, sub := range a.subAgents {
		agent.RegisterParent(sub, a)
	}
	return a
}

// Info implements the agent.Agent interface.
func (a *ParallelAgent) Info() agent.Info {
	return agent.Info{Name: a.name, Description: a.description}
}

// Tools implements the agent.Agent interface.
func (a *ParallelAgent) Tools() []tool.Tool { return nil }

// SubAgents implements the agent.Agent interface.
func (a *ParallelAgent) SubAgents() []agent.Agent { return a.subAgents }

// FindSubAgent implements the agent.Agent interface.
func (a *ParallelAgent) FindSubAgent(name string) agent.Agent {
	for _, sub := range a.subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}

// Run implements the agent.Agent interface.
func (a *ParallelAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	eventChan := make(chan *event.Event, a.channelBufferSize)
	go func() {
		defer close(eventChan)
		agent.RunWithCallbacks(ctx, invocation, a.name, a.agentCallbacks, eventChan,
			func(ctx context.Context) { a.runChildren(ctx, invocation, eventChan) })
	}()
	return eventChan, nil
}

// runChildren fans out to all sub-agents and blocks until every child has
// finished.
func (a *ParallelAgent) runChildren(
	ctx context.Context,
	invocation *agent.Invocation,
	ch chan<- *event.Event,
) {
	if len(a.subAgents) == 0 {
		return
	}
	if a.waitForAll {
		a.runGathered(ctx, invocation, ch)
		return
	}
	a.runStreamed(ctx, invocation, ch)
}

// runStreamed merges child events into the output as they arrive.
func (a *ParallelAgent) runStreamed(
	ctx context.Context,
	invocation *agent.Invocation,
	ch chan<- *event.Event,
) {
	var wg sync.WaitGroup
	for _, sub := range a.subAgents {
		wg.Add(1)
		go func(sub agent.Agent) {
			defer wg.Done()
			defer a.recoverChild(ctx, invocation, sub, ch)
			a.runChild(ctx, invocation, sub, ch)
		}(sub)
	}
	wg.Wait()
}

// runGathered buffers each child's events on its own channel and emits
// them grouped in child order. Children still execute concurrently; a
// later child only blocks once its buffer fills.
func (a *ParallelAgent) runGathered(
	ctx context.Context,
	invocation *agent.Invocation,
	ch chan<- *event.Event,
) {
	outs := make([]chan *event.Event, len(a.subAgents))
	for i, sub := range a.subAgents {
		out := make(chan *event.Event, a.channelBufferSize)
		outs[i] = out
		go func(sub agent.Agent, out chan *event.Event) {
			defer close(out)
			defer a.recoverChild(ctx, invocation, sub, out)
			a.runChild(ctx, invocation, sub, out)
		}(sub, out)
	}

	cancelled := false
	for _, out := range outs {
		for evt := range out {
			if cancelled {
				continue
			}
			if err := event.Emit(ctx, ch, evt); err != nil {
				// Keep draining so every child can finish.
				cancelled = true
			}
		}
	}
}

// recoverChild turns a child panic into an error event on the child's
// stream, leaving siblings untouched.
func (a *ParallelAgent) recoverChild(
	ctx context.Context,
	invocation *agent.Invocation,
	sub agent.Agent,
	ch chan<- *event.Event,
) {
	if r := recover(); r != nil {
		log.Errorf("Parallel agent %s: sub-agent %s panic: %v\n%s",
			a.name, sub.Info().Name, r, string(debug.Stack()))
		agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
			invocation.InvocationID, sub.Info().Name,
			model.ErrorTypeFlowError, "sub-agent panic"))
	}
}

// runChild runs one sub-agent on its own branch and forwards its events.
func (a *ParallelAgent) runChild(
	ctx context.Context,
	invocation *agent.Invocation,
	sub agent.Agent,
	ch chan<- *event.Event,
) {
	subInvocation := invocation.Clone(agent.WithInvocationAgent(sub))
	subCtx := agent.NewInvocationContext(ctx, subInvocation)
	subChan, err := sub.Run(subCtx, subInvocation)
	if err != nil {
		log.Errorf("Parallel agent %s: sub-agent %s failed to start: %v",
			a.name, sub.Info().Name, err)
		agent.EmitEvent(ctx, subInvocation, ch, event.NewErrorEvent(
			invocation.InvocationID, sub.Info().Name,
			model.ErrorTypeFlowError, err.Error()))
		return
	}
	for evt := range subChan {
		if err := event.Emit(ctx, ch, evt); err != nil {
			// Keep draining so the child goroutine can finish.
			for range subChan {
			}
			return
		}
	}
}
