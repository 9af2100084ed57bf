//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package processor

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// IdentityRequestProcessor tells the model who it is.
type IdentityRequestProcessor struct {
	// Name is the agent's internal name.
	Name string
	// Description is the one-line agent description, if any.
	Description string
}

// NewIdentityRequestProcessor creates an identity request processor.
func NewIdentityRequestProcessor(name, description string) *IdentityRequestProcessor {
	return &IdentityRequestProcessor{Name: name, Description: description}
}

// ProcessRequest implements the flow.RequestProcessor interface.
func (p *IdentityRequestProcessor) ProcessRequest(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	ch chan<- *event.Event,
) {
	if req == nil {
		log.Errorf("Identity request processor: request is nil")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an agent. Your internal name is %q.", p.Name)
	if p.Description != "" {
		sb.WriteString("\nThe description about you is: " + p.Description)
	}
	identity := sb.String()

	idx := findSystemMessageIndex(req.Messages)
	if idx >= 0 {
		if !strings.Contains(req.Messages[idx].Content, identity) {
			req.Messages[idx].Content += "\n\n" + identity
		}
	} else {
		req.Messages = append([]model.Message{model.NewSystemMessage(identity)}, req.Messages...)
	}

	if invocation != nil {
		evt := event.New(invocation.InvocationID, invocation.AgentName,
			event.WithObject(model.ObjectTypePreprocessingIdentity))
		if err := event.Emit(ctx, ch, evt); err != nil {
			log.Debugf("Identity request processor: context cancelled")
		}
	}
}
