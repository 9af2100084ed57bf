//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package llmflow provides the reasoning loop that turns one user message
// into a bounded sequence of model call and tool dispatch iterations.
package llmflow

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/flow"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/telemetry"
)

// Defaults for the reasoning loop.
const (
	DefaultMaxIterations     = 10
	DefaultChannelBufferSize = 256
)

// Option configures a Flow.
type Option func(*Flow)

// WithModel sets the model driving the loop.
func WithModel(m model.Model) Option {
	return func(f *Flow) { f.model = m }
}

// WithRequestProcessors sets the ordered request processor chain.
func WithRequestProcessors(processors ...flow.RequestProcessor) Option {
	return func(f *Flow) { f.requestProcessors = processors }
}

// WithResponseProcessors sets the ordered response processor chain.
func WithResponseProcessors(processors ...flow.ResponseProcessor) Option {
	return func(f *Flow) { f.responseProcessors = processors }
}

// WithMaxIterations caps the number of model calls per invocation.
func WithMaxIterations(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.maxIterations = n
		}
	}
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.channelBufferSize = n
		}
	}
}

// WithModelCallbacks installs model callbacks.
func WithModelCallbacks(cb *model.Callbacks) Option {
	return func(f *Flow) { f.modelCallbacks = cb }
}

// Flow is the LLM reasoning loop. Each iteration assembles a request
// through the processor chain, calls the model, streams its responses as
// events, and lets the response processors dispatch tool calls or perform
// transfers. The loop ends when the model requests no further tool work,
// the invocation is ended, or the iteration cap is reached.
type Flow struct {
	model              model.Model
	requestProcessors  []flow.RequestProcessor
	responseProcessors []flow.ResponseProcessor
	maxIterations      int
	channelBufferSize  int
	modelCallbacks     *model.Callbacks
}

var _ flow.Flow = (*Flow)(nil)

// New creates a Flow with the given options.
func New(opts ...Option) *Flow {
	f := &Flow{
		maxIterations:     DefaultMaxIterations,
		channelBufferSize: DefaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run implements the flow.Flow interface.
func (f *Flow) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	if f.model == nil {
		return nil, fmt.Errorf("flow for agent %s has no model", invocation.AgentName)
	}
	eventChan := make(chan *event.Event, f.channelBufferSize)
	go func() {
		defer close(eventChan)
		f.runLoop(ctx, invocation, eventChan)
	}()
	return eventChan, nil
}

func (f *Flow) runLoop(ctx context.Context, invocation *agent.Invocation, ch chan<- *event.Event) {
	ctx, span := telemetry.Tracer.Start(ctx,
		telemetry.OperationInvokeAgent+" "+invocation.AgentName)
	defer span.End()

	for iteration := 0; iteration < f.maxIterations; iteration++ {
		if err := agent.CheckContextCancelled(ctx); err != nil {
			agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
				invocation.InvocationID,
				invocation.AgentName,
				agent.ErrorTypeContextCancelled,
				err.Error(),
			))
			return
		}

		lastResponse, hadToolWork, err := f.runIteration(ctx, invocation, ch)
		if err != nil {
			agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
				invocation.InvocationID,
				invocation.AgentName,
				model.ErrorTypeModelError,
				err.Error(),
			))
			return
		}

		if invocation.EndInvocation {
			return
		}
		if lastResponse == nil || lastResponse.Error != nil {
			return
		}
		if !hadToolWork {
			// Final response; the turn is complete.
			return
		}

		if iteration == f.maxIterations-1 {
			log.Warnf("Agent %s hit the iteration cap (%d)", invocation.AgentName, f.maxIterations)
			capEvent := event.New(
				invocation.InvocationID,
				invocation.AgentName,
				event.WithObject(model.ObjectTypeMaxIterationsReached),
			)
			capEvent.Done = true
			agent.EmitEvent(ctx, invocation, ch, capEvent)
			return
		}
	}
}

// runIteration performs one (request, model call, response processing)
// cycle. It reports the final model response of the cycle and whether tool
// work was dispatched, which drives loop continuation.
func (f *Flow) runIteration(
	ctx context.Context,
	invocation *agent.Invocation,
	ch chan<- *event.Event,
) (*model.Response, bool, error) {
	req := &model.Request{}
	for _, p := range f.requestProcessors {
		p.ProcessRequest(ctx, invocation, req, ch)
	}
	if invocation.EndInvocation {
		return nil, false, nil
	}

	finalResponse, err := f.callModel(ctx, invocation, req, ch)
	if err != nil {
		return nil, false, err
	}
	if finalResponse == nil {
		return nil, false, nil
	}

	hadToolWork := finalResponse.IsToolCallResponse()
	for _, p := range f.responseProcessors {
		p.ProcessResponse(ctx, invocation, req, finalResponse, ch)
	}
	return finalResponse, hadToolWork, nil
}

// callModel sends the request, forwards partial responses, and returns the
// final response after emitting its event.
func (f *Flow) callModel(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	ch chan<- *event.Event,
) (*model.Response, error) {
	if f.modelCallbacks != nil {
		custom, err := f.modelCallbacks.RunBeforeModel(ctx, req)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			evt := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, custom)
			if err := agent.EmitEvent(ctx, invocation, ch, evt); err != nil {
				return nil, err
			}
			return custom, nil
		}
	}

	ctx, span := telemetry.Tracer.Start(ctx, telemetry.OperationCallLLM)
	defer span.End()

	responseChan, err := f.model.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}

	var finalResponse *model.Response
	for rsp := range responseChan {
		if rsp == nil {
			continue
		}
		if rsp.IsPartial {
			evt := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, rsp)
			if err := agent.EmitEvent(ctx, invocation, ch, evt); err != nil {
				return nil, err
			}
			continue
		}
		finalResponse = rsp
	}

	if finalResponse == nil {
		return nil, nil
	}

	if f.modelCallbacks != nil {
		var runErr error
		if finalResponse.Error != nil {
			runErr = finalResponse.Error
		}
		custom, err := f.modelCallbacks.RunAfterModel(ctx, req, finalResponse, runErr)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			finalResponse = custom
		}
	}

	evt := event.NewResponseEvent(invocation.InvocationID, invocation.AgentName, finalResponse)
	evt.LongRunningToolIDs = longRunningToolIDs(req, finalResponse)
	if err := agent.EmitEvent(ctx, invocation, ch, evt); err != nil {
		return nil, err
	}
	return finalResponse, nil
}

// longRunningToolIDs collects ids of requested calls whose tool defers its
// response past this invocation.
func longRunningToolIDs(req *model.Request, rsp *model.Response) map[string]struct{} {
	if req == nil || req.Tools == nil || !rsp.IsToolCallResponse() {
		return nil
	}
	ids := make(map[string]struct{})
	for _, choice := range rsp.Choices {
		for _, call := range choice.Message.ToolCalls {
			t, ok := req.Tools[call.Function.Name]
			if !ok {
				continue
			}
			if lr, ok := t.(interface{ LongRunning() bool }); ok && lr.LongRunning() {
				ids[call.ID] = struct{}{}
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
