//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package flow defines the processor pipeline contracts used to assemble
// model requests and react to model responses.
package flow

import (
	"context"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// RequestProcessor mutates an outgoing model request. Processors may emit
// events on the channel to report progress.
type RequestProcessor interface {
	ProcessRequest(
		ctx context.Context,
		invocation *agent.Invocation,
		request *model.Request,
		ch chan<- *event.Event,
	)
}

// ResponseProcessor reacts to a final model response. Processors may emit
// events and mutate the invocation.
type ResponseProcessor interface {
	ProcessResponse(
		ctx context.Context,
		invocation *agent.Invocation,
		request *model.Request,
		response *model.Response,
		ch chan<- *event.Event,
	)
}

// Flow drives the reasoning loop of one invocation.
type Flow interface {
	Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error)
}
