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
	"time"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

// TransferResponseProcessor performs agent handoffs requested through the
// transfer tool: it ends the current invocation and runs the target agent
// with the pending message, extending the branch path.
type TransferResponseProcessor struct {
	// endInvocationAfterTransfer ends the origin invocation once the
	// target agent completes. Defaults to true.
	endInvocationAfterTransfer bool
}

// NewTransferResponseProcessor creates a transfer response processor.
func NewTransferResponseProcessor(endInvocation bool) *TransferResponseProcessor {
	return &TransferResponseProcessor{endInvocationAfterTransfer: endInvocation}
}

// ProcessResponse implements the flow.ResponseProcessor interface.
func (p *TransferResponseProcessor) ProcessResponse(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	rsp *model.Response,
	ch chan<- *event.Event,
) {
	if invocation == nil || rsp == nil || rsp.IsPartial {
		return
	}
	if invocation.TransferInfo == nil {
		return
	}

	transferInfo := invocation.TransferInfo
	targetAgentName := transferInfo.TargetAgentName

	targetAgent := transfer.FindTarget(invocation.Agent, targetAgentName)
	if targetAgent == nil {
		log.Errorf("Target agent %q not reachable by transfer", targetAgentName)
		agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
			invocation.InvocationID,
			invocation.AgentName,
			model.ErrorTypeFlowError,
			"Transfer failed: target agent "+targetAgentName+" not found",
		))
		return
	}

	// Announce the handoff before the target starts producing events.
	transferEvent := event.New(
		invocation.InvocationID,
		invocation.AgentName,
		event.WithObject(model.ObjectTypeTransfer),
	)
	transferEvent.Actions = &event.EventActions{TransferToAgent: targetAgentName}
	transferEvent.Response = &model.Response{
		ID:        "transfer-" + rsp.ID,
		Object:    model.ObjectTypeTransfer,
		Created:   rsp.Created,
		Model:     rsp.Model,
		Timestamp: time.Now(),
		Choices: []model.Choice{{
			Index: 0,
			Message: model.Message{
				Role:    model.RoleAssistant,
				Content: "Transferring control to agent: " + targetAgent.Info().Name,
			},
		}},
	}
	if err := agent.EmitEvent(ctx, invocation, ch, transferEvent); err != nil {
		return
	}

	// The target invocation extends the branch path. EndInvocation is not
	// propagated; it ends the origin invocation, not the target's.
	targetInvocation := invocation.Clone(
		agent.WithInvocationAgent(targetAgent),
	)
	if transferInfo.Message != "" {
		targetInvocation.Message = model.Message{
			Role:    model.RoleUser,
			Content: transferInfo.Message,
		}
		echoEvent := event.NewResponseEvent(
			targetInvocation.InvocationID,
			targetAgent.Info().Name,
			&model.Response{
				Object:    model.ObjectTypeTransfer,
				Timestamp: time.Now(),
				Choices:   []model.Choice{{Message: targetInvocation.Message}},
			},
		)
		if err := agent.EmitEvent(ctx, targetInvocation, ch, echoEvent); err != nil {
			return
		}
	}

	log.Debugf("Transfer response processor: starting target agent %q", targetAgent.Info().Name)
	targetCtx := agent.NewInvocationContext(ctx, targetInvocation)
	targetEventChan, err := targetAgent.Run(targetCtx, targetInvocation)
	if err != nil {
		log.Errorf("Failed to run target agent %q: %v", targetAgent.Info().Name, err)
		agent.EmitEvent(ctx, invocation, ch, event.NewErrorEvent(
			invocation.InvocationID,
			invocation.AgentName,
			model.ErrorTypeFlowError,
			"Transfer failed: "+err.Error(),
		))
		return
	}

	for targetEvent := range targetEventChan {
		if err := event.Emit(ctx, ch, targetEvent); err != nil {
			return
		}
	}

	// The origin invocation stops issuing model calls once the target has
	// taken over.
	invocation.TransferInfo = nil
	invocation.EndInvocation = p.endInvocationAfterTransfer
}
