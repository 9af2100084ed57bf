//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package llmagent provides the model-driven agent. It wires the processor
// pipeline into a reasoning loop and exposes the result as an agent.
package llmagent

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/flow"
	"trpc.group/trpc-go/trpc-adk-go/flow/llmflow"
	"trpc.group/trpc-go/trpc-adk-go/flow/processor"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

// LLMAgent is an agent backed by an LLM. Without sub-agents it runs the
// single flow (model calls and tool dispatch); with sub-agents it runs the
// auto flow, which adds the transfer tool and delegation.
type LLMAgent struct {
	name    string
	options Options
}

var _ agent.Agent = (*LLMAgent)(nil)

// New creates an LLMAgent with the given name and options.
func New(name string, opts ...Option) *LLMAgent {
	options := Options{
		maxIterations:              llmflow.DefaultMaxIterations,
		channelBufferSize:          llmflow.DefaultChannelBufferSize,
		parallelism:                processor.DefaultParallelism,
		includeContents:            processor.IncludeContentsDefault,
		endInvocationAfterTransfer: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	a := &LLMAgent{name: name, options: options}
	for _, sub := range options.subAgents {
		agent.RegisterParent(sub, a)
	}
	return a
}

// Info implements the agent.Agent interface.
func (a *LLMAgent) Info() agent.Info {
	return agent.Info{Name: a.name, Description: a.options.description}
}

// Tools implements the agent.Agent interface. With sub-agents or a parent
// present the transfer tool is part of the catalog.
func (a *LLMAgent) Tools() []tool.Tool {
	tools := make([]tool.Tool, 0, len(a.options.tools)+1)
	tools = append(tools, a.options.tools...)
	if a.canTransfer() {
		var transferOpts []transfer.Option
		if a.options.disallowTransferToPeer {
			transferOpts = append(transferOpts, transfer.WithDisallowPeers())
		}
		tools = append(tools, transfer.New(a, transferOpts...))
	}
	return tools
}

// AllowsPeerTransfer reports whether this agent participates in peer
// transfer: as a hub its sub-agents may target each other, and as a
// sibling it may be targeted by its peers.
func (a *LLMAgent) AllowsPeerTransfer() bool {
	return !a.options.disallowTransferToPeer
}

func (a *LLMAgent) canTransfer() bool {
	return len(a.options.subAgents) > 0 || agent.ParentOf(a) != nil
}

// SubAgents implements the agent.Agent interface.
func (a *LLMAgent) SubAgents() []agent.Agent {
	return a.options.subAgents
}

// FindSubAgent implements the agent.Agent interface.
func (a *LLMAgent) FindSubAgent(name string) agent.Agent {
	for _, sub := range a.options.subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}

// Run implements the agent.Agent interface.
func (a *LLMAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	if invocation == nil {
		return nil, fmt.Errorf("agent %s: invocation is nil", a.name)
	}
	if invocation.Agent == nil {
		invocation.Agent = a
	}
	if invocation.AgentName == "" {
		invocation.AgentName = a.name
	}
	if invocation.Branch == "" {
		invocation.Branch = a.name
	}

	m, err := a.resolveModel()
	if err != nil {
		return nil, err
	}

	if a.options.agentCallbacks != nil {
		result, err := a.options.agentCallbacks.RunBeforeAgent(ctx,
			&agent.BeforeAgentArgs{Invocation: invocation})
		if err != nil {
			return a.errorChannel(ctx, invocation,
				agent.ErrorTypeAgentCallbackError, err.Error()), nil
		}
		if result != nil {
			if result.Context != nil {
				ctx = result.Context
			}
			if result.CustomResponse != nil {
				return a.customResponseChannel(ctx, invocation, result.CustomResponse), nil
			}
		}
	}

	f := a.buildFlow(m)
	ctx = agent.NewInvocationContext(ctx, invocation)
	flowChan, err := f.Run(ctx, invocation)
	if err != nil {
		return nil, err
	}

	if a.options.agentCallbacks == nil {
		return flowChan, nil
	}
	return a.wrapWithAfterCallbacks(ctx, invocation, flowChan), nil
}

func (a *LLMAgent) resolveModel() (model.Model, error) {
	if a.options.model != nil {
		return a.options.model, nil
	}
	if a.options.modelName != "" {
		return model.Lookup(a.options.modelName)
	}
	return nil, fmt.Errorf("agent %s has no model configured", a.name)
}

// buildFlow assembles the processor pipeline. Request processors run in
// order: basic, instruction, identity, content. Response processors run
// function call dispatch first, then transfer when sub-agents exist.
func (a *LLMAgent) buildFlow(m model.Model) flow.Flow {
	var instructionOpts []processor.InstructionOption
	if a.options.outputSchema != nil {
		instructionOpts = append(instructionOpts, processor.WithOutputSchema(a.options.outputSchema))
	}
	if a.options.bypassStateInjection {
		instructionOpts = append(instructionOpts, processor.WithBypassStateInjection())
	}

	basic := processor.NewBasicRequestProcessor(a.options.generationConfig)
	basic.SafetySettings = a.options.safetySettings

	requestProcessors := []flow.RequestProcessor{
		basic,
		processor.NewInstructionRequestProcessor(
			a.options.instruction, a.options.systemPrompt, instructionOpts...),
		processor.NewIdentityRequestProcessor(a.name, a.options.description),
		processor.NewContentRequestProcessor(a.options.includeContents),
	}

	functionCallOpts := []processor.FunctionCallOption{
		processor.WithParallelism(a.options.parallelism),
	}
	if a.options.toolCallbacks != nil {
		functionCallOpts = append(functionCallOpts, processor.WithToolCallbacks(a.options.toolCallbacks))
	}
	responseProcessors := []flow.ResponseProcessor{
		processor.NewFunctionCallResponseProcessor(functionCallOpts...),
	}
	if a.canTransfer() {
		responseProcessors = append(responseProcessors,
			processor.NewTransferResponseProcessor(a.options.endInvocationAfterTransfer))
	}

	return llmflow.New(
		llmflow.WithModel(m),
		llmflow.WithRequestProcessors(requestProcessors...),
		llmflow.WithResponseProcessors(responseProcessors...),
		llmflow.WithMaxIterations(a.options.maxIterations),
		llmflow.WithChannelBufferSize(a.options.channelBufferSize),
		llmflow.WithModelCallbacks(a.options.modelCallbacks),
	)
}

// wrapWithAfterCallbacks relays flow events and runs the after callbacks
// once the flow completes, appending any custom response as a final event.
func (a *LLMAgent) wrapWithAfterCallbacks(
	ctx context.Context,
	invocation *agent.Invocation,
	flowChan <-chan *event.Event,
) <-chan *event.Event {
	out := make(chan *event.Event, a.options.channelBufferSize)
	go func() {
		defer close(out)
		var lastComplete *event.Event
		for evt := range flowChan {
			if evt.Response != nil && !evt.Response.IsPartial && evt.Response.IsValidContent() {
				lastComplete = evt
			}
			if err := event.Emit(ctx, out, evt); err != nil {
				return
			}
		}

		result, err := a.options.agentCallbacks.RunAfterAgent(ctx, &agent.AfterAgentArgs{
			Invocation:        invocation,
			FullResponseEvent: lastComplete,
		})
		if err != nil {
			log.Errorf("Agent %s after callback failed: %v", a.name, err)
			errEvent := event.NewErrorEvent(
				invocation.InvocationID, a.name,
				agent.ErrorTypeAgentCallbackError, err.Error())
			agent.EmitEvent(ctx, invocation, out, errEvent)
			return
		}
		if result != nil && result.CustomResponse != nil {
			evt := event.NewResponseEvent(invocation.InvocationID, a.name, result.CustomResponse)
			agent.EmitEvent(ctx, invocation, out, evt)
		}
	}()
	return out
}

// errorChannel returns a closed channel carrying a single error event.
func (a *LLMAgent) errorChannel(
	ctx context.Context, invocation *agent.Invocation, errType, message string,
) <-chan *event.Event {
	ch := make(chan *event.Event, 1)
	evt := event.NewErrorEvent(invocation.InvocationID, a.name, errType, message)
	agent.EmitEvent(ctx, invocation, ch, evt)
	close(ch)
	return ch
}

// customResponseChannel returns a closed channel carrying the callback's
// custom response as the agent's only event.
func (a *LLMAgent) customResponseChannel(
	ctx context.Context, invocation *agent.Invocation, rsp *model.Response,
) <-chan *event.Event {
	ch := make(chan *event.Event, 1)
	evt := event.NewResponseEvent(invocation.InvocationID, a.name, rsp)
	agent.EmitEvent(ctx, invocation, ch, evt)
	close(ch)
	return ch
}
