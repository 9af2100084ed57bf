//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package agent provides the core agent functionality.
package agent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// AuthorUser is the author of user-supplied events.
const AuthorUser = "user"

// Agent error type constants.
const (
	// ErrorTypeAgentCallbackError is used for errors from agent callbacks.
	ErrorTypeAgentCallbackError = "agent_callback_error"
	// ErrorTypeContextCancelled is used when the run context is cancelled.
	ErrorTypeContextCancelled = "agent_context_cancelled"
)

// Info is the basic information about an agent.
type Info struct {
	// Name is the agent name, unique among siblings.
	Name string
	// Description is the human readable description.
	Description string
}

// Agent is a named component that consumes a message and produces events.
// Run returns a channel closed when the invocation completes; every agent
// produces its events from a dedicated goroutine.
type Agent interface {
	// Run executes the agent with the given invocation.
	Run(ctx context.Context, invocation *Invocation) (<-chan *event.Event, error)

	// Tools returns the tools available to this agent.
	Tools() []tool.Tool

	// Info returns the basic information about this agent.
	Info() Info

	// SubAgents returns the sub-agents of this agent.
	SubAgents() []Agent

	// FindSubAgent finds a sub-agent by name, or returns nil.
	FindSubAgent(name string) Agent
}

// EmitEvent stamps the event with the invocation's branch, records it in
// the invocation transcript, and sends it to the channel.
func EmitEvent(ctx context.Context, invocation *Invocation, ch chan<- *event.Event, e *event.Event) error {
	if e == nil {
		return nil
	}
	if invocation != nil {
		if e.Branch == "" {
			e.Branch = invocation.Branch
		}
		invocation.recordEvent(e)
	}
	return event.Emit(ctx, ch, e)
}

// CheckContextCancelled returns the context error when cancelled.
func CheckContextCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
