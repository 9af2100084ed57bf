//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package transfer provides the transfer_to_agent virtual tool.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// ToolName is the reserved name of the transfer tool.
const ToolName = "transfer_to_agent"

// Request is the argument structure of the transfer tool.
type Request struct {
	// AgentName is the target agent to transfer control to.
	AgentName string `json:"agent_name"`
	// Message is the message forwarded to the target agent.
	Message string `json:"message,omitempty"`
	// EndInvocation ends the current invocation after the transfer.
	EndInvocation bool `json:"end_invocation,omitempty"`
}

// Response is the result of the transfer tool.
type Response struct {
	// Success reports whether the transfer was initiated.
	Success bool `json:"success"`
	// Message describes the outcome.
	Message string `json:"message"`
	// TargetAgent is the agent control was transferred to.
	TargetAgent string `json:"target_agent,omitempty"`
}

// peerTransferAgent is implemented by agents whose sub-agents may
// transfer control to each other. Only model-driven parents qualify.
type peerTransferAgent interface {
	agent.Agent
	AllowsPeerTransfer() bool
}

// Tool implements transfer_to_agent. Calling it records the pending
// handoff on the invocation; the transfer response processor performs the
// actual delegation.
type Tool struct {
	agent         agent.Agent
	disallowPeers bool
}

var _ tool.CallableTool = (*Tool)(nil)

// Option configures the transfer tool.
type Option func(*Tool)

// WithDisallowPeers removes the agent's siblings from the allowed targets.
func WithDisallowPeers() Option {
	return func(t *Tool) { t.disallowPeers = true }
}

// New creates a transfer tool for the given agent. Allowed targets are the
// agent's sub-agents, its registered parent, and its siblings when the
// parent permits peer transfer.
func New(a agent.Agent, opts ...Option) *Tool {
	t := &Tool{agent: a}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// targets lists the agents this tool may hand control to.
func (t *Tool) targets() []agent.Agent {
	targets := append([]agent.Agent(nil), t.agent.SubAgents()...)
	parent := agent.ParentOf(t.agent)
	if parent == nil {
		return targets
	}
	targets = append(targets, parent)
	if t.disallowPeers {
		return targets
	}
	if _, ok := parent.(peerTransferAgent); !ok {
		return targets
	}
	for _, peer := range parent.SubAgents() {
		if peer == t.agent {
			continue
		}
		if p, ok := peer.(peerTransferAgent); ok && !p.AllowsPeerTransfer() {
			continue
		}
		targets = append(targets, peer)
	}
	return targets
}

// FindTarget resolves name among the agents reachable from a by transfer:
// its sub-agents, its registered parent, and the parent's other children.
// Peer-transfer policy is enforced by the tool's allowed-target list, not
// here.
func FindTarget(a agent.Agent, name string) agent.Agent {
	if a == nil {
		return nil
	}
	if target := a.FindSubAgent(name); target != nil {
		return target
	}
	parent := agent.ParentOf(a)
	if parent == nil {
		return nil
	}
	if parent.Info().Name == name {
		return parent
	}
	for _, peer := range parent.SubAgents() {
		if peer != a && peer.Info().Name == name {
			return peer
		}
	}
	return nil
}

// Declaration implements the tool.Tool interface.
func (t *Tool) Declaration() *tool.Declaration {
	targets := t.targets()
	agentNames := make([]string, len(targets))
	for i, target := range targets {
		agentNames[i] = target.Info().Name
	}
	return &tool.Declaration{
		Name: ToolName,
		Description: "Transfer control to another agent. " +
			"This hands the conversation over to the specified agent.",
		InputSchema: &tool.Schema{
			Type: "object",
			Properties: map[string]*tool.Schema{
				"agent_name": {
					Type: "string",
					Description: fmt.Sprintf(
						"Name of the agent to transfer control to. Available agents: %v",
						agentNames,
					),
				},
				"message": {
					Type:        "string",
					Description: "Optional message to pass to the target agent",
				},
				"end_invocation": {
					Type:        "boolean",
					Description: "Whether to end the current invocation after transfer (default: true)",
				},
			},
			Required: []string{"agent_name"},
		},
	}
}

// Call implements the tool.CallableTool interface.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var req Request
	if err := json.Unmarshal(jsonArgs, &req); err != nil {
		return Response{
			Success: false,
			Message: fmt.Sprintf("Invalid request format: %v", err),
		}, nil
	}

	var targetAgent agent.Agent
	targets := t.targets()
	availableAgents := make([]string, len(targets))
	for i, target := range targets {
		availableAgents[i] = target.Info().Name
		if target.Info().Name == req.AgentName {
			targetAgent = target
		}
	}
	if targetAgent == nil {
		return Response{
			Success: false,
			Message: fmt.Sprintf("Agent %q not found. Available agents: %v",
				req.AgentName, availableAgents),
		}, nil
	}

	invocation, ok := agent.InvocationFromContext(ctx)
	if !ok || invocation == nil {
		return Response{
			Success: false,
			Message: "Transfer failed: no invocation context available",
		}, nil
	}

	invocation.TransferInfo = &agent.TransferInfo{
		TargetAgentName: req.AgentName,
		Message:         req.Message,
		EndInvocation:   req.EndInvocation,
	}
	return Response{
		Success:     true,
		Message:     fmt.Sprintf("Transfer initiated to agent %q", req.AgentName),
		TargetAgent: req.AgentName,
	}, nil
}
