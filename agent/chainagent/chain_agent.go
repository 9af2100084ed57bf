//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package chainagent provides a composite agent that runs its sub-agents
// in sequence.
package chainagent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const defaultChannelBufferSize = 256

// ChainAgent runs its sub-agents one after another. By default each child
// receives the final response of the previous child as its input message,
// forming a pipeline.
type ChainAgent struct {
	name              string
	description       string
	subAgents         []agent.Agent
	passResults       bool
	channelBufferSize int
	agentCallbacks    *agent.Callbacks
}

var _ agent.Agent = (*ChainAgent)(nil)

// Option configures a ChainAgent.
type Option func(*ChainAgent)

// WithDescription sets the agent description.
func WithDescription(description string) Option {
	return func(a *ChainAgent) { a.description = description }
}

// WithSubAgents sets the agents to run in order.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(a *ChainAgent) { a.subAgents = append(a.subAgents, subAgents...) }
}

// WithPassResults controls whether each child receives the previous
// child's final response as its input message. Defaults to true.
func WithPassResults(pass bool) Option {
	return func(a *ChainAgent) { a.passResults = pass }
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(a *ChainAgent) {
		if n > 0 {
			a.channelBufferSize = n
		}
	}
}

// WithAgentCallbacks installs agent callbacks.
func WithAgentCallbacks(cb *agent.Callbacks) Option {
	return func(a *ChainAgent) { a.agentCallbacks = cb }
}

// New creates a ChainAgent with the given name and options.
func New(name string, opts ...Option) *ChainAgent {
	a := &ChainAgent{
		name:              name,
		passResults:       true,
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
func (a *ChainAgent) Info() agent.Info {
	return agent.Info{Name: a.name, Description: a.description}
}

// Tools implements the agent.Agent interface. Composite agents carry no
// tools of their own.
func (a *ChainAgent) Tools() []tool.Tool { return nil }

// SubAgents implements the agent.Agent interface.
func (a *ChainAgent) SubAgents() []agent.Agent { return a.subAgents }

// FindSubAgent implements the agent.Agent interface.
func (a *ChainAgent) FindSubAgent(name string) agent.Agent {
	for _, sub := range a.subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}

// Run implements the agent.Agent interface.
func (a *ChainAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	eventChan := make(chan *event.Event, a.channelBufferSize)
	go func() {
		defer close(eventChan)
		agent.RunWithCallbacks(ctx, invocation, a.name, a.agentCallbacks, eventChan,
			func(ctx context.Context) { a.runSequence(ctx, invocation, eventChan) })
	}()
	return eventChan, nil
}

func (a *ChainAgent) runSequence(ctx context.Context, invocation *agent.Invocation, ch chan<- *event.Event) {
	message := invocation.Message
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
			log.Errorf("Chain agent %s: sub-agent %s failed to start: %v",
				a.name, sub.Info().Name, err)
			agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
				invocation.InvocationID, a.name,
				model.ErrorTypeFlowError, err.Error()))
			return
		}

		finalContent := ""
		escalated := false
		for evt := range subChan {
			if evt.Response != nil && !evt.Response.IsPartial &&
				evt.Response.IsValidContent() && len(evt.Response.Choices) > 0 {
				if content := evt.Response.Choices[0].Message.Content; content != "" {
					finalContent = content
				}
			}
			if evt.Actions != nil && evt.Actions.Escalate {
				escalated = true
			}
			if err := event.Emit(ctx, ch, evt); err != nil {
				return
			}
		}

		if escalated || subInvocation.EndInvocation {
			return
		}
		if a.passResults && finalContent != "" {
			message = model.NewUserMessage(finalContent)
		}
	}
}
