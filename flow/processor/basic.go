//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package processor provides the request and response processors of the
// LLM flow pipeline.
package processor

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// BasicRequestProcessor seeds the request with the generation config and
// the agent's tool catalog.
type BasicRequestProcessor struct {
	// GenerationConfig is copied into every request.
	GenerationConfig model.GenerationConfig
	// SafetySettings are copied into every request.
	SafetySettings []model.SafetySetting
	// ExtraTools are tools added by the flow on top of the agent's own,
	// e.g. the transfer tool.
	ExtraTools []tool.Tool
}

// NewBasicRequestProcessor creates a basic request processor.
func NewBasicRequestProcessor(config model.GenerationConfig, extraTools ...tool.Tool) *BasicRequestProcessor {
	return &BasicRequestProcessor{
		GenerationConfig: config,
		ExtraTools:       extraTools,
	}
}

// ProcessRequest implements the flow.RequestProcessor interface.
func (p *BasicRequestProcessor) ProcessRequest(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	ch chan<- *event.Event,
) {
	if req == nil {
		log.Errorf("Basic request processor: request is nil")
		return
	}
	req.GenerationConfig = p.GenerationConfig
	req.SafetySettings = p.SafetySettings

	if req.Tools == nil {
		req.Tools = make(map[string]tool.Tool)
	}
	if invocation != nil && invocation.Agent != nil {
		for _, t := range invocation.Agent.Tools() {
			req.Tools[t.Declaration().Name] = t
		}
	}
	for _, t := range p.ExtraTools {
		req.Tools[t.Declaration().Name] = t
	}

	if invocation != nil {
		evt := event.New(invocation.InvocationID, invocation.AgentName,
			event.WithObject(model.ObjectTypePreprocessingBasic))
		if err := event.Emit(ctx, ch, evt); err != nil {
			log.Debugf("Basic request processor: context cancelled")
		}
	}
}
