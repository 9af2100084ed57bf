//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package event provides the append-only event record of an invocation.
package event

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/model"
)

// BranchDelimiter separates agent names in a branch path, e.g. "a.b.c".
const BranchDelimiter = "."

// Event is an append-only record of something that happened during an
// invocation. It embeds the model response that triggered it, if any.
type Event struct {
	// Response is the model-level payload, if any.
	*model.Response

	// InvocationID identifies the top-level run this event belongs to.
	InvocationID string `json:"invocationId"`

	// Author is the event producer: "user" or an agent name.
	Author string `json:"author"`

	// ID is the unique event id.
	ID string `json:"id"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Branch is the dotted sub-agent lineage, used to scope history
	// visibility to direct ancestors.
	Branch string `json:"branch,omitempty"`

	// StateDelta carries session state mutations applied on append.
	StateDelta map[string][]byte `json:"stateDelta,omitempty"`

	// LongRunningToolIDs are the ids of long-running function calls whose
	// responses are deferred past this invocation.
	LongRunningToolIDs map[string]struct{} `json:"longRunningToolIds,omitempty"`

	// Actions carries framework-level side effects of the event.
	Actions *EventActions `json:"actions,omitempty"`
}

// EventActions are framework-level side effects carried by an event.
type EventActions struct {
	// SkipSummarization asks the flow not to summarize the tool result.
	SkipSummarization bool `json:"skipSummarization,omitempty"`
	// Escalate asks an enclosing loop agent to stop iterating.
	Escalate bool `json:"escalate,omitempty"`
	// TransferToAgent is the target of an agent handoff, if any.
	TransferToAgent string `json:"transferToAgent,omitempty"`
}

// Option configures a new event.
type Option func(*Event)

// WithBranch sets the branch path.
func WithBranch(branch string) Option {
	return func(e *Event) { e.Branch = branch }
}

// WithObject sets the response object type.
func WithObject(object string) Option {
	return func(e *Event) {
		if e.Response == nil {
			e.Response = &model.Response{}
		}
		e.Object = object
	}
}

// WithResponse attaches a model response.
func WithResponse(response *model.Response) Option {
	return func(e *Event) { e.Response = response }
}

// WithStateDelta attaches session state mutations.
func WithStateDelta(delta map[string][]byte) Option {
	return func(e *Event) { e.StateDelta = delta }
}

// WithSkipSummarization marks the tool result as final as-is.
func WithSkipSummarization() Option {
	return func(e *Event) {
		if e.Actions == nil {
			e.Actions = &EventActions{}
		}
		e.Actions.SkipSummarization = true
	}
}

// New creates an event with a fresh id and timestamp.
func New(invocationID, author string, opts ...Option) *Event {
	e := &Event{
		Response:     &model.Response{Timestamp: time.Now()},
		InvocationID: invocationID,
		Author:       author,
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewResponseEvent creates an event wrapping a model response.
func NewResponseEvent(invocationID, author string, response *model.Response, opts ...Option) *Event {
	e := New(invocationID, author, opts...)
	e.Response = response
	return e
}

// NewErrorEvent creates an event representing a failure.
func NewErrorEvent(invocationID, author, errType, message string, opts ...Option) *Event {
	e := New(invocationID, author, opts...)
	e.Response = model.NewErrorResponse(errType, message)
	return e
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cloned := *e
	cloned.Response = e.Response.Clone()
	if e.StateDelta != nil {
		cloned.StateDelta = make(map[string][]byte, len(e.StateDelta))
		for k, v := range e.StateDelta {
			cloned.StateDelta[k] = append([]byte(nil), v...)
		}
	}
	if e.LongRunningToolIDs != nil {
		cloned.LongRunningToolIDs = make(map[string]struct{}, len(e.LongRunningToolIDs))
		for id := range e.LongRunningToolIDs {
			cloned.LongRunningToolIDs[id] = struct{}{}
		}
	}
	if e.Actions != nil {
		actions := *e.Actions
		cloned.Actions = &actions
	}
	return &cloned
}

// Filter reports whether the event is visible from the given branch: the
// event's branch must be empty, equal to, or an ancestor of branch.
func (e *Event) Filter(branch string) bool {
	if e == nil {
		return false
	}
	if e.Branch == "" || e.Branch == branch {
		return true
	}
	return strings.HasPrefix(branch, e.Branch+BranchDelimiter)
}

// Emit sends an event to a channel, honoring context cancellation.
func Emit(ctx context.Context, ch chan<- *Event, e *Event) error {
	if e == nil {
		return nil
	}
	select {
	case ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
