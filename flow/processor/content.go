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
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// FunctionCallIDPrefix marks function-call ids generated by the framework.
// They are scrubbed from history views so they do not leak to the model.
const FunctionCallIDPrefix = "adk-"

// Include content policy values.
const (
	// IncludeContentsDefault materializes the full filtered history.
	IncludeContentsDefault = "default"
	// IncludeContentsNone sends only the invocation's seed message.
	IncludeContentsNone = "none"
)

// ContentRequestProcessor materializes the history view into the request:
// branch filtering, event to message mapping, async function-response
// rearrangement, and framework id scrubbing.
type ContentRequestProcessor struct {
	// IncludeContents selects the history policy.
	IncludeContents string
}

// NewContentRequestProcessor creates a content request processor.
func NewContentRequestProcessor(includeContents string) *ContentRequestProcessor {
	if includeContents == "" {
		includeContents = IncludeContentsDefault
	}
	return &ContentRequestProcessor{IncludeContents: includeContents}
}

// ProcessRequest implements the flow.RequestProcessor interface.
func (p *ContentRequestProcessor) ProcessRequest(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	ch chan<- *event.Event,
) {
	if req == nil || invocation == nil {
		log.Errorf("Content request processor: request or invocation is nil")
		return
	}

	if p.IncludeContents == IncludeContentsNone {
		if invocation.Message.Role != "" {
			req.Messages = append(req.Messages, invocation.Message)
		}
	} else {
		messages := p.buildHistoryView(invocation)
		if len(messages) == 0 && invocation.Message.Role != "" {
			messages = []model.Message{invocation.Message}
		}
		req.Messages = append(req.Messages, messages...)
	}

	evt := event.New(invocation.InvocationID, invocation.AgentName,
		event.WithObject(model.ObjectTypePreprocessingContent))
	if err := event.Emit(ctx, ch, evt); err != nil {
		log.Debugf("Content request processor: context cancelled")
	}
}

// buildHistoryView produces the ordered message list the model will see.
// It is a view over the event log; the log itself is never mutated.
func (p *ContentRequestProcessor) buildHistoryView(invocation *agent.Invocation) []model.Message {
	events := p.gatherEvents(invocation)

	var messages []model.Message
	for _, evt := range events {
		if !evt.Filter(invocation.Branch) {
			continue
		}
		messages = append(messages, p.eventToMessages(invocation, evt)...)
	}
	messages = RearrangeFunctionResponses(messages)
	return ScrubFrameworkIDs(messages)
}

// gatherEvents merges the persisted session log with the transcript of the
// current run, deduplicating by event id. Session order wins; transcript
// events not yet persisted follow in emission order.
func (p *ContentRequestProcessor) gatherEvents(invocation *agent.Invocation) []*event.Event {
	var events []*event.Event
	seen := make(map[string]struct{})
	if invocation.Session != nil {
		for i := range invocation.Session.Events {
			evt := &invocation.Session.Events[i]
			if _, ok := seen[evt.ID]; ok {
				continue
			}
			seen[evt.ID] = struct{}{}
			events = append(events, evt)
		}
	}
	for _, evt := range invocation.TranscriptEvents() {
		if _, ok := seen[evt.ID]; ok {
			continue
		}
		seen[evt.ID] = struct{}{}
		events = append(events, evt)
	}
	return events
}

// eventToMessages maps one retained event to zero or more messages.
func (p *ContentRequestProcessor) eventToMessages(
	invocation *agent.Invocation, evt *event.Event,
) []model.Message {
	if evt.Response == nil || !evt.Response.IsValidContent() {
		return nil
	}
	var messages []model.Message
	for _, choice := range evt.Response.Choices {
		msg := choice.Message
		if msg.Role == "" {
			continue
		}
		// Assistant chatter from other agents is presented as context so
		// the model does not mistake it for its own output.
		if msg.Role == model.RoleAssistant &&
			evt.Author != agent.AuthorUser &&
			evt.Author != invocation.AgentName &&
			len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				continue
			}
			messages = append(messages, model.NewUserMessage(
				"For context: ["+evt.Author+"] said: "+msg.Content))
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// RearrangeFunctionResponses moves every function response directly after
// its originating call message, in call order. Responses with no preceding
// call stay where they are. The operation is idempotent.
func RearrangeFunctionResponses(messages []model.Message) []model.Message {
	// Match each response to the nearest preceding unanswered call with
	// the same id.
	pending := make(map[string]struct{})
	relocated := make(map[string]model.Message)
	moved := make(map[int]struct{})
	for i, msg := range messages {
		if msg.Role == model.RoleTool && msg.ToolID != "" {
			if _, ok := pending[msg.ToolID]; ok {
				delete(pending, msg.ToolID)
				relocated[msg.ToolID] = msg
				moved[i] = struct{}{}
			}
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.ID != "" {
				pending[call.ID] = struct{}{}
			}
		}
	}

	out := make([]model.Message, 0, len(messages))
	for i, msg := range messages {
		if _, ok := moved[i]; ok {
			continue
		}
		out = append(out, msg)
		for _, call := range msg.ToolCalls {
			if rsp, ok := relocated[call.ID]; ok {
				delete(relocated, call.ID)
				out = append(out, rsp)
			}
		}
	}
	return out
}

// ScrubFrameworkIDs clears framework-generated call ids from a history
// view. Provider-assigned ids are preserved.
func ScrubFrameworkIDs(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if strings.HasPrefix(out[i].ToolID, FunctionCallIDPrefix) {
			out[i].ToolID = ""
		}
		if len(out[i].ToolCalls) == 0 {
			continue
		}
		calls := make([]model.ToolCall, len(out[i].ToolCalls))
		copy(calls, out[i].ToolCalls)
		for j := range calls {
			if strings.HasPrefix(calls[j].ID, FunctionCallIDPrefix) {
				calls[j].ID = ""
			}
		}
		out[i].ToolCalls = calls
	}
	return out
}
