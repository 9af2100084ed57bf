//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package llmagent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/flow/processor"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool/function"
)

// scriptedModel returns one canned response per call, in order.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*model.Response
	requests  []*model.Request
}

func (m *scriptedModel) Info() model.Info { return model.Info{Name: "scripted"} }

func (m *scriptedModel) CountTokens(ctx context.Context, messages []model.Message) (int, error) {
	return 0, nil
}

func (m *scriptedModel) GenerateContent(
	ctx context.Context, request *model.Request,
) (<-chan *model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, request)
	ch := make(chan *model.Response, 1)
	if len(m.responses) > 0 {
		ch <- m.responses[0]
		m.responses = m.responses[1:]
	}
	close(ch)
	return ch, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func toolCallResponse(name, args string) *model.Response {
	return &model.Response{
		ID:     "rsp-tool",
		Object: model.ObjectTypeChatCompletion,
		Choices: []model.Choice{{Message: model.Message{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				Type:     "function",
				Function: model.FunctionDefinitionParam{Name: name, Arguments: []byte(args)},
			}},
		}}},
	}
}

func finalResponse(content string) *model.Response {
	return &model.Response{
		ID:      "rsp-final",
		Object:  model.ObjectTypeChatCompletion,
		Done:    true,
		Choices: []model.Choice{{Message: model.NewAssistantMessage(content)}},
	}
}

func collectEvents(t *testing.T, ch <-chan *event.Event) []*event.Event {
	t.Helper()
	var events []*event.Event
	for evt := range ch {
		events = append(events, evt)
	}
	return events
}

type timeArgs struct{}

type timeResult struct {
	Time string `json:"time"`
}

func TestLLMAgent_ToolCallTurn(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("get_time", `{}`),
		finalResponse("It is noon."),
	}}
	clock := function.New(func(ctx context.Context, in timeArgs) (timeResult, error) {
		return timeResult{Time: "12:00"}, nil
	}, function.WithName("get_time"))

	a := New("assistant", WithModel(m), WithTools(clock))
	inv := agent.NewInvocation(
		agent.WithInvocationMessage(model.NewUserMessage("what time is it?")),
	)

	ch, err := a.Run(context.Background(), inv)
	require.NoError(t, err)
	events := collectEvents(t, ch)

	var toolEvent, lastEvent *event.Event
	for _, evt := range events {
		if evt.Response != nil && evt.Object == model.ObjectTypeToolResponse {
			toolEvent = evt
		}
		lastEvent = evt
	}

	require.NotNil(t, toolEvent)
	require.Len(t, toolEvent.Choices, 1)
	assert.True(t, strings.HasPrefix(toolEvent.Choices[0].Message.ToolID, processor.FunctionCallIDPrefix))
	assert.JSONEq(t, `{"time":"12:00"}`, toolEvent.Choices[0].Message.Content)

	require.NotNil(t, lastEvent)
	assert.True(t, lastEvent.Done)
	assert.Equal(t, "It is noon.", lastEvent.Choices[0].Message.Content)

	// The second model call sees the tool result in its history.
	require.Equal(t, 2, m.callCount())
	var sawToolResult bool
	for _, msg := range m.requests[1].Messages {
		if msg.Role == model.RoleTool {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
}

func TestLLMAgent_IterationCap(t *testing.T) {
	// A model that keeps asking for tools forever.
	m := &scriptedModel{responses: []*model.Response{
		toolCallResponse("noop", `{}`),
		toolCallResponse("noop", `{}`),
		toolCallResponse("noop", `{}`),
	}}
	noop := function.New(func(ctx context.Context, in timeArgs) (timeResult, error) {
		return timeResult{}, nil
	}, function.WithName("noop"))

	a := New("looper", WithModel(m), WithTools(noop), WithMaxIterations(2))
	inv := agent.NewInvocation(
		agent.WithInvocationMessage(model.NewUserMessage("go")),
	)

	ch, err := a.Run(context.Background(), inv)
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.ObjectTypeMaxIterationsReached, last.Object)
	assert.True(t, last.Done)
	assert.Equal(t, 2, m.callCount())
}

func TestLLMAgent_NoModel(t *testing.T) {
	a := New("broken")
	_, err := a.Run(context.Background(), agent.NewInvocation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestLLMAgent_BeforeAgentCustomResponse(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{finalResponse("never sent")}}
	cb := agent.NewCallbacks().RegisterBeforeAgent(
		func(ctx context.Context, args *agent.BeforeAgentArgs) (*agent.BeforeAgentResult, error) {
			return &agent.BeforeAgentResult{CustomResponse: finalResponse("from cache")}, nil
		})

	a := New("cached", WithModel(m), WithAgentCallbacks(cb))
	ch, err := a.Run(context.Background(), agent.NewInvocation())
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.Len(t, events, 1)
	assert.Equal(t, "from cache", events[0].Choices[0].Message.Content)
	assert.Zero(t, m.callCount())
}

func TestLLMAgent_AfterAgentCustomResponse(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{finalResponse("raw answer")}}
	cb := agent.NewCallbacks().RegisterAfterAgent(
		func(ctx context.Context, args *agent.AfterAgentArgs) (*agent.AfterAgentResult, error) {
			assert.NotNil(t, args.FullResponseEvent)
			return &agent.AfterAgentResult{CustomResponse: finalResponse("polished answer")}, nil
		})

	a := New("editor", WithModel(m), WithAgentCallbacks(cb))
	ch, err := a.Run(context.Background(), agent.NewInvocation(
		agent.WithInvocationMessage(model.NewUserMessage("hi")),
	))
	require.NoError(t, err)
	events := collectEvents(t, ch)

	require.NotEmpty(t, events)
	assert.Equal(t, "polished answer", events[len(events)-1].Choices[0].Message.Content)
}

func TestLLMAgent_SafetySettings(t *testing.T) {
	m := &scriptedModel{responses: []*model.Response{finalResponse("ok")}}
	a := New("careful", WithModel(m), WithSafetySettings(
		model.SafetySetting{
			Category:  "HARM_CATEGORY_HARASSMENT",
			Threshold: model.SafetyThresholdBlockOnlyHigh,
		},
	))

	ch, err := a.Run(context.Background(), agent.NewInvocation(
		agent.WithInvocationMessage(model.NewUserMessage("hi")),
	))
	require.NoError(t, err)
	collectEvents(t, ch)

	require.Equal(t, 1, m.callCount())
	require.Len(t, m.requests[0].SafetySettings, 1)
	assert.Equal(t, "HARM_CATEGORY_HARASSMENT", m.requests[0].SafetySettings[0].Category)
	assert.Equal(t, model.SafetyThresholdBlockOnlyHigh, m.requests[0].SafetySettings[0].Threshold)
}

func TestLLMAgent_TransferToolWithSubAgents(t *testing.T) {
	sub := New("helper", WithModel(&scriptedModel{}))
	a := New("root", WithModel(&scriptedModel{}), WithSubAgents(sub))

	var names []string
	for _, tl := range a.Tools() {
		names = append(names, tl.Declaration().Name)
	}
	assert.Contains(t, names, "transfer_to_agent")
	assert.Equal(t, sub, a.FindSubAgent("helper"))
	assert.Nil(t, a.FindSubAgent("stranger"))
}
