//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package cycleagent provides a composite agent that runs its sub-agents
// in a loop until an escalation or an iteration cap.
package cycleagent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	defaultChannelBufferSize = 256
	defaultMaxIterations     = 10
)

// EscalationFunc decides from an event whether the loop should stop.
type EscalationFunc func(evt *event.Event) bool

// MessageUpdater derives the next iteration's input message from the last
// complete event of the current iteration.
type MessageUpdater func(evt *event.Event) (model.Message, bool)

// CycleAgent runs its sub-agents in sequence, then starts over, until a
// child escalates, the escalation function fires, or the iteration cap is
// reached.
type CycleAgent struct {
	name              string
	description       string
	subAgents         []agent.Agent
	maxIterations     int
	escalationFunc    EscalationFunc
	messageUpdater    MessageUpdater
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*CycleAgent)(nil)

// Option configures a CycleAgent.
type Option func(*CycleAgent)

// WithDescription sets the agent description.
func WithDescription(description string) Option {
	return func(a *CycleAgent) { a.description = description }
}

// WithSubAgents sets the agents run on each iteration, in order.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(a *CycleAgent) { a.subAgents = append(a.subAgents, subAgents...) }
}

// WithMaxIterations caps the number of loop iterations. Defaults to 10.
func WithMaxIterations(n int) Option {
	return func(a *CycleAgent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithEscalationFunc installs a custom loop stop condition evaluated
// against every event.
func WithEscalationFunc(fn EscalationFunc) Option {
	return func(a *CycleAgent) { a.escalationFunc = fn }
}

// WithMessageUpdater installs a hook that rewrites the input message
// between iterations.
func WithMessageUpdater(fn MessageUpdater) Option {
	return func(a *CycleAgent) { a.messageUpdater = fn }
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(a *CycleAgent) {
		if n > 0 {
			a.channelBufferSize = n
		}
	}
}

// WithAgentCallbacks installs agent callbacks.
func WithAgentCallbacks(cb *agent.Callbacks) Option {
	return func(a *CycleAgent) { a.agentCallbacks = cb }
}

// New creates a CycleAgent with the given name and options.
func New(name string, opts ...Option) *CycleAgent {
	a := &CycleAgent{
		name:              name,
		maxIterations:     defaultMaxIterations,
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
func (a *CycleAgent) Info() agent.Info {
	return agent.Info{Name: a.name, Description: a.description}
}

// Tools implements the agent.Agent interface.
func (a *CycleAgent) Tools() []tool.Tool { return nil }

// SubAgents implements the agent.Agent interface.
func (a *CycleAgent) SubAgents() []agent.Agent { return a.subAgents }

// FindSubAgent implements the agent.Agent interface.
func (a *CycleAgent) FindSubAgent(name string) agent.Agent {
	for _, sub := range a.subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}

// Run implements the agent.Agent interface.
func (a *CycleAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	eventChan := make(chan *event.Event, a.channelBufferSize)
	go func() {
		defer close(eventChan)
		agent.RunWithCallbacks(ctx, invocation, a.name, a.agentCallbacks, eventChan,
			func(ctx context.Context) { a.runLoop(ctx, invocation, eventChan) })
	}()
	return eventChan, nil
}

func (a *CycleAgent) runLoop(ctx context.Context, invocation *agent.Invocation, ch chan<- *event.Event) {
	message := invocation.Message
	for iteration := 0; iteration < a.maxIterations; iteration++ {
		for _, sub := range a.subAgents {
			if err := agent.CheckContextCancelled(ctx); err != nil {
				agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
					invocation.InvocationID, a.name,
					agent.ErrorTypeContextCancelled, err.Error()))
				return
			}

			subInvocation := invocation.Clone(
				agent.WithInvocationAgent(sub),
				agent.WithInvocationMessage(message),
			)
			subCtx := agent.NewInvocationContext(ctx, subInvocation)
			subChan, err := sub.Run(subCtx, subInvocation)
			if err != nil {
				log.Errorf("Cycle agent %s: sub-agent %s failed to start: %v",
					a.name, sub.Info().Name, err)
				agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
					invocation.InvocationID, a.name,
					model.ErrorTypeFlowError, err.Error()))
				return
			}

			stop := false
			var lastComplete *event.Event
			for evt := range subChan {
				if evt.Actions != nil && evt.Actions.Escalate {
					stop = true
				}
				if a.escalationFunc != nil && a.escalationFunc(evt) {
					stop = true
				}
				if evt.Response != nil && !evt.Response.IsPartial && evt.Response.IsValidContent() {
					lastComplete = evt
				}
				if err := event.Emit(ctx, ch, evt); err != nil {
					return
				}
			}
			if stop || subInvocation.EndInvocation {
				return
			}
			if a.messageUpdater != nil && lastComplete != nil {
				if next, ok := a.messageUpdater(lastComplete); ok {
					message = next
				}
			}
		}
	}
	log.Debugf("Cycle agent %s reached the iteration cap (%d)", a.name, a.maxIterations)
}
