//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package chainagent

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

// echoAgent replies with its name and the message it received.
type echoAgent struct {
	name     string
	escalate bool
	received []string
}

func (a *echoAgent) Info() agent.Info                { return agent.Info{Name: a.name} }
func (a *echoAgent) Tools() []tool.Tool              { return nil }
func (a *echoAgent) SubAgents() []agent.Agent        { return nil }
func (a *echoAgent) FindSubAgent(string) agent.Agent { return nil }

func (a *echoAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.received = append(a.received, invocation.Message.Content)
	ch := make(chan *event.Event, 4)
	go func() {
		defer close(ch)
		evt := event.New(invocation.InvocationID, a.name,
			event.WithResponse(&model.Response{
				Object:  model.ObjectTypeChatCompletion,
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage(a.name + " saw: " + invocation.Message.Content)}},
			}))
		if a.escalate {
			evt.Actions = &event.EventActions{Escalate: true}
		}
		agent.EmitEvent(ctx, invocation, ch, evt)
	}()
	return ch, nil
}

func TestChainAgent_PassesResultsAlong(t *testing.T) {
	first := &echoAgent{name: "first"}
	second := &echoAgent{name: "second"}
	chain := New("pipeline", WithSubAgents(first, second))

	inv := agent.NewInvocation(
		agent.WithInvocationAgent(chain),
		agent.WithInvocationMessage(model.NewUserMessage("start")),
	)
	ch, err := chain.Run(context.Background(), inv)
	require.NoError(t, err)

	var contents []string
	for evt := range ch {
		contents = append(contents, evt.Choices[0].Message.Content)
	}
	assert.Equal(t, []string{
		"first saw: start",
		"second saw: first saw: start",
	}, contents)
	assert.Equal(t, []string{"start"}, first.received)
	assert.Equal(t, []string{"first saw: start"}, second.received)
}

func TestChainAgent_WithoutPassResults(t *testing.T) {
	first := &echoAgent{name: "first"}
	second := &echoAgent{name: "second"}
	chain := New("pipeline", WithSubAgents(first, second), WithPassResults(false))

	inv := agent.NewInvocation(
		agent.WithInvocationAgent(chain),
		agent.WithInvocationMessage(model.NewUserMessage("start")),
	)
	ch, err := chain.Run(context.Background(), inv)
	require.NoError(t, err)
	for range ch {
	}

	// Every child sees the original message.
	assert.Equal(t, []string{"start"}, first.received)
	assert.Equal(t, []string{"start"}, second.received)
}

func TestChainAgent_EscalationStopsChain(t *testing.T) {
	first := &echoAgent{name: "first", escalate: true}
	second := &echoAgent{name: "second"}
	chain := New("pipeline", WithSubAgents(first, second))

	inv := agent.NewInvocation(
		agent.WithInvocationAgent(chain),
		agent.WithInvocationMessage(model.NewUserMessage("start")),
	)
	ch, err := chain.Run(context.Background(), inv)
	require.NoError(t, err)
	var count int
	for range ch {
		count++
	}

	assert.Equal(t, 1, count)
	assert.Empty(t, second.received)
}

func TestChainAgent_BeforeCallbackShortCircuit(t *testing.T) {
	first := &echoAgent{name: "first"}
	cb := agent.NewCallbacks().RegisterBeforeAgent(
		func(ctx context.Context, args *agent.BeforeAgentArgs) (*agent.BeforeAgentResult, error) {
			return &agent.BeforeAgentResult{CustomResponse: &model.Response{
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage("cached")}},
			}}, nil
		})
	chain := New("pipeline", WithSubAgents(first), WithAgentCallbacks(cb))

	inv := agent.NewInvocation(agent.WithInvocationAgent(chain))
	ch, err := chain.Run(context.Background(), inv)
	require.NoError(t, err)

	var contents []string
	for evt := range ch {
		contents = append(contents, evt.Choices[0].Message.Content)
	}
	assert.Equal(t, []string{"cached"}, contents)
	assert.Empty(t, first.received)
}

func TestChainAgent_CancelledContext(t *testing.T) {
	chain := New("pipeline", WithSubAgents(&echoAgent{name: "first"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := agent.NewInvocation(agent.WithInvocationAgent(chain))
	ch, err := chain.Run(ctx, inv)
	require.NoError(t, err)
	evt := <-ch
	require.NotNil(t, evt.Error)
	assert.Equal(t, agent.ErrorTypeContextCancelled, evt.Error.Type)
}
