//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package parallelagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// slowAgent emits one reply after an optional delay, or panics on start.
type slowAgent struct {
	name       string
	delay      time.Duration
	panicOnRun bool
}

func (a *slowAgent) Info() agent.Info                { return agent.Info{Name: a.name} }
func (a *slowAgent) Tools() []tool.Tool              { return nil }
func (a *slowAgent) SubAgents() []agent.Agent        { return nil }
func (a *slowAgent) FindSubAgent(string) agent.Agent { return nil }

func (a *slowAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	if a.panicOnRun {
		panic("broken agent")
	}
	ch := make(chan *event.Event, 4)
	go func() {
		defer close(ch)
		if a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return
			}
		}
		evt := event.New(invocation.InvocationID, a.name,
			event.WithResponse(&model.Response{
				Object:  model.ObjectTypeChatCompletion,
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage(a.name + " done")}},
			}))
		agent.EmitEvent(ctx, invocation, ch, evt)
	}()
	return ch, nil
}

func collectEvents(ch <-chan *event.Event) []*event.Event {
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

func TestParallelAgent_MergesAllChildren(t *testing.T) {
	// The slowest child comes first so ordered emission is observable.
	p := New("fanout", WithSubAgents(
		&slowAgent{name: "alpha", delay: 60 * time.Millisecond},
		&slowAgent{name: "beta", delay: 30 * time.Millisecond},
		&slowAgent{name: "gamma"},
	))
	inv := agent.NewInvocation(agent.WithInvocationAgent(p))

	ch, err := p.Run(context.Background(), inv)
	require.NoError(t, err)
	events := collectEvents(ch)

	require.Len(t, events, 3)
	// With waitForAll (the default) events come grouped in child order,
	// each on its own branch under the parent.
	assert.Equal(t, "alpha", events[0].Author)
	assert.Equal(t, "beta", events[1].Author)
	assert.Equal(t, "gamma", events[2].Author)
	assert.Equal(t, "fanout.alpha", events[0].Branch)
	assert.Equal(t, "fanout.beta", events[1].Branch)
	assert.Equal(t, "fanout.gamma", events[2].Branch)
}

func TestParallelAgent_PanicDoesNotKillSiblings(t *testing.T) {
	p := New("fanout", WithSubAgents(
		&slowAgent{name: "broken", panicOnRun: true},
		&slowAgent{name: "healthy"},
	))
	inv := agent.NewInvocation(agent.WithInvocationAgent(p))

	ch, err := p.Run(context.Background(), inv)
	require.NoError(t, err)
	events := collectEvents(ch)

	var sawError, sawHealthy bool
	for _, evt := range events {
		if evt.Error != nil {
			sawError = true
		}
		if evt.Author == "healthy" {
			sawHealthy = true
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawHealthy)
}

func TestParallelAgent_StreamingKeepsAllChildren(t *testing.T) {
	p := New("race",
		WithSubAgents(
			&slowAgent{name: "slow", delay: 100 * time.Millisecond},
			&slowAgent{name: "fast"},
		),
		WithWaitForAll(false),
	)
	inv := agent.NewInvocation(agent.WithInvocationAgent(p))

	ch, err := p.Run(context.Background(), inv)
	require.NoError(t, err)
	events := collectEvents(ch)

	// Events arrive in completion order, and the slow child still runs to
	// completion.
	require.Len(t, events, 2)
	assert.Equal(t, "fast", events[0].Author)
	assert.Equal(t, "slow", events[1].Author)
}
