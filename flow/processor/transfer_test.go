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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// fakeAgent emits a fixed reply and records the invocation it ran with.
type fakeAgent struct {
	name      string
	reply     string
	subAgents []agent.Agent
	lastInv   *agent.Invocation
}

func (a *fakeAgent) Info() agent.Info         { return agent.Info{Name: a.name} }
func (a *fakeAgent) Tools() []tool.Tool       { return nil }
func (a *fakeAgent) SubAgents() []agent.Agent { return a.subAgents }

func (a *fakeAgent) FindSubAgent(name string) agent.Agent {
	for _, sub := range a.subAgents {
		if sub.Info().Name == name {
			return sub
		}
	}
	return nil
}

func (a *fakeAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.lastInv = invocation
	ch := make(chan *event.Event, 4)
	go func() {
		defer close(ch)
		evt := event.New(invocation.InvocationID, a.name,
			event.WithResponse(&model.Response{
				Object:  model.ObjectTypeChatCompletion,
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage(a.reply)}},
			}))
		agent.EmitEvent(ctx, invocation, ch, evt)
	}()
	return ch, nil
}

func TestTransferProcessor_Handoff(t *testing.T) {
	greeter := &fakeAgent{name: "greeter", reply: "hello from greeter"}
	coordinator := &fakeAgent{name: "coordinator", subAgents: []agent.Agent{greeter}}

	inv := agent.NewInvocation(agent.WithInvocationAgent(coordinator))
	inv.TransferInfo = &agent.TransferInfo{
		TargetAgentName: "greeter",
		Message:         "please greet the user",
	}

	p := NewTransferResponseProcessor(true)
	ch := make(chan *event.Event, 16)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{ID: "rsp-1"}, ch)
	close(ch)

	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	require.GreaterOrEqual(t, len(events), 3)

	announce := events[0]
	require.NotNil(t, announce.Actions)
	assert.Equal(t, "greeter", announce.Actions.TransferToAgent)
	assert.Equal(t, "coordinator", announce.Branch)

	echo := events[1]
	assert.Equal(t, "coordinator.greeter", echo.Branch)
	assert.Equal(t, "please greet the user", echo.Choices[0].Message.Content)

	reply := events[2]
	assert.Equal(t, "greeter", reply.Author)
	assert.Equal(t, "coordinator.greeter", reply.Branch)
	assert.Equal(t, "hello from greeter", reply.Choices[0].Message.Content)

	// The target ran on an extended branch with the forwarded message.
	require.NotNil(t, greeter.lastInv)
	assert.Equal(t, "coordinator.greeter", greeter.lastInv.Branch)
	assert.Equal(t, inv.InvocationID, greeter.lastInv.InvocationID)
	assert.Equal(t, "please greet the user", greeter.lastInv.Message.Content)

	// The origin invocation stops after the handoff.
	assert.True(t, inv.EndInvocation)
	assert.Nil(t, inv.TransferInfo)
}

func TestTransferProcessor_KeepInvocation(t *testing.T) {
	greeter := &fakeAgent{name: "greeter", reply: "hi"}
	coordinator := &fakeAgent{name: "coordinator", subAgents: []agent.Agent{greeter}}

	inv := agent.NewInvocation(agent.WithInvocationAgent(coordinator))
	inv.TransferInfo = &agent.TransferInfo{TargetAgentName: "greeter"}

	p := NewTransferResponseProcessor(false)
	ch := make(chan *event.Event, 16)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{ID: "rsp-1"}, ch)

	assert.False(t, inv.EndInvocation)
	assert.Nil(t, inv.TransferInfo)
}

func TestTransferProcessor_TransferToParent(t *testing.T) {
	greeter := &fakeAgent{name: "greeter"}
	coordinator := &fakeAgent{name: "coordinator", reply: "taking over",
		subAgents: []agent.Agent{greeter}}
	agent.RegisterParent(greeter, coordinator)

	inv := agent.NewInvocation(agent.WithInvocationAgent(greeter))
	inv.TransferInfo = &agent.TransferInfo{TargetAgentName: "coordinator"}

	p := NewTransferResponseProcessor(true)
	ch := make(chan *event.Event, 16)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{ID: "rsp-1"}, ch)
	close(ch)

	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	require.GreaterOrEqual(t, len(events), 2)
	require.NotNil(t, events[0].Actions)
	assert.Equal(t, "coordinator", events[0].Actions.TransferToAgent)

	require.NotNil(t, coordinator.lastInv)
	assert.Equal(t, inv.InvocationID, coordinator.lastInv.InvocationID)
}

func TestTransferProcessor_TransferToPeer(t *testing.T) {
	greeter := &fakeAgent{name: "greeter"}
	solver := &fakeAgent{name: "solver", reply: "42"}
	coordinator := &fakeAgent{name: "coordinator",
		subAgents: []agent.Agent{greeter, solver}}
	agent.RegisterParent(greeter, coordinator)
	agent.RegisterParent(solver, coordinator)

	inv := agent.NewInvocation(agent.WithInvocationAgent(greeter))
	inv.TransferInfo = &agent.TransferInfo{
		TargetAgentName: "solver",
		Message:         "what is six times seven",
	}

	p := NewTransferResponseProcessor(true)
	ch := make(chan *event.Event, 16)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{ID: "rsp-1"}, ch)
	close(ch)

	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	require.NotEmpty(t, events)

	require.NotNil(t, solver.lastInv)
	assert.Equal(t, "what is six times seven", solver.lastInv.Message.Content)
}

func TestTransferProcessor_UnknownTarget(t *testing.T) {
	coordinator := &fakeAgent{name: "coordinator"}

	inv := agent.NewInvocation(agent.WithInvocationAgent(coordinator))
	inv.TransferInfo = &agent.TransferInfo{TargetAgentName: "nobody"}

	p := NewTransferResponseProcessor(true)
	ch := make(chan *event.Event, 4)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{ID: "rsp-1"}, ch)

	evt := <-ch
	require.NotNil(t, evt.Error)
	assert.Equal(t, model.ErrorTypeFlowError, evt.Error.Type)
	assert.Contains(t, evt.Error.Message, "nobody")
}

func TestTransferProcessor_NoPendingTransfer(t *testing.T) {
	inv := agent.NewInvocation()
	p := NewTransferResponseProcessor(true)
	ch := make(chan *event.Event, 1)
	p.ProcessResponse(context.Background(), inv, &model.Request{}, &model.Response{}, ch)
	assert.Empty(t, ch)
}
