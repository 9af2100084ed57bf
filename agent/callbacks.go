//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// BeforeAgentArgs contains the parameters of a before agent callback.
type BeforeAgentArgs struct {
	// Invocation is the invocation about to run.
	Invocation *Invocation
}

// BeforeAgentResult is the return value of a before agent callback.
type BeforeAgentResult struct {
	// Context, if not nil, is used for subsequent operations.
	Context context.Context
	// CustomResponse, if not nil, skips agent execution and is returned
	// to the caller instead.
	CustomResponse *model.Response
}

// BeforeAgentCallback is called before the agent runs.
type BeforeAgentCallback func(ctx context.Context, args *BeforeAgentArgs) (*BeforeAgentResult, error)

// AfterAgentArgs contains the parameters of an after agent callback.
type AfterAgentArgs struct {
	// Invocation is the invocation that ran.
	Invocation *Invocation
	// Error is the error raised during execution, if any.
	Error error
	// FullResponseEvent is the last complete response event, if any.
	FullResponseEvent *event.Event
}

// AfterAgentResult is the return value of an after agent callback.
type AfterAgentResult struct {
	// Context, if not nil, is used for subsequent operations.
	Context context.Context
	// CustomResponse, if not nil, replaces the agent's response.
	CustomResponse *model.Response
}

// AfterAgentCallback is called after the agent runs.
type AfterAgentCallback func(ctx context.Context, args *AfterAgentArgs) (*AfterAgentResult, error)

// Callbacks holds callbacks for agent operations.
type Callbacks struct {
	// BeforeAgent is a list of callbacks called before the agent runs.
	BeforeAgent []BeforeAgentCallback
	// AfterAgent is a list of callbacks called after the agent runs.
	AfterAgent []AfterAgentCallback
}

// NewCallbacks creates a new Callbacks instance for agents.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeAgent registers a before agent callback.
func (c *Callbacks) RegisterBeforeAgent(cb BeforeAgentCallback) *Callbacks {
	c.BeforeAgent = append(c.BeforeAgent, cb)
	return c
}

// RegisterAfterAgent registers an after agent callback.
func (c *Callbacks) RegisterAfterAgent(cb AfterAgentCallback) *Callbacks {
	c.AfterAgent = append(c.AfterAgent, cb)
	return c
}

// RunBeforeAgent runs all before agent callbacks in order. A callback
// returning a context threads it to the next; the first custom response
// stops the chain.
func (c *Callbacks) RunBeforeAgent(
	ctx context.Context, args *BeforeAgentArgs,
) (*BeforeAgentResult, error) {
	var lastResult *BeforeAgentResult
	for _, cb := range c.BeforeAgent {
		result, err := cb(ctx, args)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		if result.Context != nil {
			ctx = result.Context
		}
		lastResult = result
		if result.CustomResponse != nil {
			return result, nil
		}
	}
	if lastResult != nil && lastResult.Context == nil && lastResult.CustomResponse == nil {
		return nil, nil
	}
	return lastResult, nil
}

// RunWithCallbacks drives an agent body between the before and after
// callbacks. Callback errors and custom responses become events on ch; a
// before-callback custom response skips the body entirely.
func RunWithCallbacks(
	ctx context.Context,
	invocation *Invocation,
	name string,
	cb *Callbacks,
	ch chan<- *event.Event,
	body func(ctx context.Context),
) {
	if cb != nil {
		result, err := cb.RunBeforeAgent(ctx, &BeforeAgentArgs{Invocation: invocation})
		if err != nil {
			EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
				invocation.InvocationID, name, ErrorTypeAgentCallbackError, err.Error()))
			return
		}
		if result != nil {
			if result.Context != nil {
				ctx = result.Context
			}
			if result.CustomResponse != nil {
				EmitEvent(ctx, invocation, ch, event.NewResponseEvent(
					invocation.InvocationID, name, result.CustomResponse))
				return
			}
		}
	}

	body(ctx)

	if cb == nil {
		return
	}
	result, err := cb.RunAfterAgent(ctx, &AfterAgentArgs{Invocation: invocation})
	if err != nil {
		EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
			invocation.InvocationID, name, ErrorTypeAgentCallbackError, err.Error()))
		return
	}
	if result != nil && result.CustomResponse != nil {
		EmitEvent(ctx, invocation, ch, event.NewResponseEvent(
			invocation.InvocationID, name, result.CustomResponse))
	}
}

// RunAfterAgent runs all after agent callbacks in order. A callback
// returning a context threads it to the next; the first custom response
// stops the chain.
func (c *Callbacks) RunAfterAgent(
	ctx context.Context, args *AfterAgentArgs,
) (*AfterAgentResult, error) {
	var lastResult *AfterAgentResult
	for _, cb := range c.AfterAgent {
		result, err := cb(ctx, args)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		if result.Context != nil {
			ctx = result.Context
		}
		lastResult = result
		if result.CustomResponse != nil {
			return result, nil
		}
	}
	if lastResult != nil && lastResult.Context == nil && lastResult.CustomResponse == nil {
		return nil, nil
	}
	return lastResult, nil
}
