//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package cycleagent

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// countingAgent emits its run count and escalates once the limit is hit.
type countingAgent struct {
	name         string
	runs         int
	escalateAt   int
	lastMessages []string
}

func (a *countingAgent) Info() agent.Info                { return agent.Info{Name: a.name} }
func (a *countingAgent) Tools() []tool.Tool              { return nil }
func (a *countingAgent) SubAgents() []agent.Agent        { return nil }
func (a *countingAgent) FindSubAgent(string) agent.Agent { return nil }

func (a *countingAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	a.runs++
	a.lastMessages = append(a.lastMessages, invocation.Message.Content)
	run := a.runs
	ch := make(chan *event.Event, 4)
	go func() {
		defer close(ch)
		evt := event.New(invocation.InvocationID, a.name,
			event.WithResponse(&model.Response{
				Object:  model.ObjectTypeChatCompletion,
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage("round " + strconv.Itoa(run))}},
			}))
		if a.escalateAt > 0 && run >= a.escalateAt {
			evt.Actions = &event.EventActions{Escalate: true}
		}
		agent.EmitEvent(ctx, invocation, ch, evt)
	}()
	return ch, nil
}

func drain(ch <-chan *event.Event) []*event.Event {
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

func TestCycleAgent_EscalationStopsLoop(t *testing.T) {
	worker := &countingAgent{name: "worker", escalateAt: 3}
	loop := New("refine", WithSubAgents(worker), WithMaxIterations(10))

	inv := agent.NewInvocation(
		agent.WithInvocationAgent(loop),
		agent.WithInvocationMessage(model.NewUserMessage("begin")),
	)
	ch, err := loop.Run(context.Background(), inv)
	require.NoError(t, err)
	events := drain(ch)

	assert.Len(t, events, 3)
	assert.Equal(t, 3, worker.runs)
}

func TestCycleAgent_IterationCap(t *testing.T) {
	worker := &countingAgent{name: "worker"}
	loop := New("refine", WithSubAgents(worker), WithMaxIterations(4))

	inv := agent.NewInvocation(agent.WithInvocationAgent(loop))
	ch, err := loop.Run(context.Background(), inv)
	require.NoError(t, err)
	drain(ch)

	assert.Equal(t, 4, worker.runs)
}

func TestCycleAgent_EscalationFunc(t *testing.T) {
	worker := &countingAgent{name: "worker"}
	loop := New("refine",
		WithSubAgents(worker),
		WithMaxIterations(10),
		WithEscalationFunc(func(evt *event.Event) bool {
			return len(evt.Choices) > 0 && evt.Choices[0].Message.Content == "round 2"
		}),
	)

	inv := agent.NewInvocation(agent.WithInvocationAgent(loop))
	ch, err := loop.Run(context.Background(), inv)
	require.NoError(t, err)
	drain(ch)

	assert.Equal(t, 2, worker.runs)
}

func TestCycleAgent_MessageUpdater(t *testing.T) {
	worker := &countingAgent{name: "worker", escalateAt: 3}
	loop := New("refine",
		WithSubAgents(worker),
		WithMessageUpdater(func(evt *event.Event) (model.Message, bool) {
			return model.NewUserMessage("improve on " + evt.Choices[0].Message.Content), true
		}),
	)

	inv := agent.NewInvocation(
		agent.WithInvocationAgent(loop),
		agent.WithInvocationMessage(model.NewUserMessage("draft")),
	)
	ch, err := loop.Run(context.Background(), inv)
	require.NoError(t, err)
	drain(ch)

	assert.Equal(t, []string{
		"draft",
		"improve on round 1",
		"improve on round 2",
	}, worker.lastMessages)
}
