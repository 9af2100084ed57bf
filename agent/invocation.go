//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"sync"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

// TransferInfo is a pending agent handoff recorded by the transfer tool and
// consumed by the transfer response processor.
type TransferInfo struct {
	// TargetAgentName is the agent to hand control to.
	TargetAgentName string
	// Message is the message forwarded to the target, if any.
	Message string
	// EndInvocation ends the origin invocation after the transfer.
	EndInvocation bool
}

// RunOptions are per-run options supplied by the caller.
type RunOptions struct {
	// RuntimeState is caller-provided state visible to tools and
	// callbacks via the context helpers.
	RuntimeState map[string]any
}

// transcript is the serialized event log of one top-level run, shared by
// every invocation cloned from the root. The content processor reads it to
// see events emitted earlier in the same run before they reach the session
// store.
type transcript struct {
	mu     sync.RWMutex
	events []*event.Event
}

func (t *transcript) record(e *event.Event) {
	if e == nil || e.Response == nil || e.Response.IsPartial || !e.Response.IsValidContent() {
		return
	}
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

func (t *transcript) snapshot() []*event.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*event.Event, len(t.events))
	copy(out, t.events)
	return out
}

// Invocation carries the state of one agent run. It is created per
// top-level run and cloned for sub-agents; clones share the transcript and
// the invocation id.
type Invocation struct {
	// Agent is the agent being invoked.
	Agent Agent
	// AgentName is the name of the agent being invoked.
	AgentName string
	// InvocationID identifies the top-level run.
	InvocationID string
	// Branch is the dotted sub-agent lineage, extended on delegation.
	Branch string
	// AppName is the owning application.
	AppName string
	// Session is the session this run operates on.
	Session *session.Session
	// Message is the triggering message for this invocation.
	Message model.Message
	// EndInvocation ends the run before the next model call when set.
	EndInvocation bool
	// TransferInfo is the pending handoff, if any.
	TransferInfo *TransferInfo
	// RunOptions are the caller-supplied per-run options.
	RunOptions RunOptions

	transcript *transcript

	stateMu sync.RWMutex
	state   map[string]any
}

// InvocationOpt configures a new or cloned invocation.
type InvocationOpt func(*Invocation)

// WithInvocationAgent sets the target agent and extends the branch path
// with the agent's name.
func WithInvocationAgent(a Agent) InvocationOpt {
	return func(inv *Invocation) {
		inv.Agent = a
		inv.AgentName = a.Info().Name
		if inv.Branch == "" {
			inv.Branch = a.Info().Name
		} else {
			inv.Branch = inv.Branch + event.BranchDelimiter + a.Info().Name
		}
	}
}

// WithInvocationSession sets the session.
func WithInvocationSession(s *session.Session) InvocationOpt {
	return func(inv *Invocation) { inv.Session = s }
}

// WithInvocationMessage sets the triggering message.
func WithInvocationMessage(m model.Message) InvocationOpt {
	return func(inv *Invocation) { inv.Message = m }
}

// WithInvocationAppName sets the application name.
func WithInvocationAppName(appName string) InvocationOpt {
	return func(inv *Invocation) { inv.AppName = appName }
}

// WithInvocationRunOptions sets the per-run options.
func WithInvocationRunOptions(o RunOptions) InvocationOpt {
	return func(inv *Invocation) { inv.RunOptions = o }
}

// NewInvocation creates a root invocation with a fresh invocation id.
func NewInvocation(opts ...InvocationOpt) *Invocation {
	inv := &Invocation{
		InvocationID: uuid.NewString(),
		transcript:   &transcript{},
		state:        make(map[string]any),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Clone copies the invocation for a sub-agent. The transcript, invocation
// id, session, and run options are shared; agent identity, branch, and
// message may be overridden through options.
func (inv *Invocation) Clone(opts ...InvocationOpt) *Invocation {
	cloned := &Invocation{
		Agent:        inv.Agent,
		AgentName:    inv.AgentName,
		InvocationID: inv.InvocationID,
		Branch:       inv.Branch,
		AppName:      inv.AppName,
		Session:      inv.Session,
		Message:      inv.Message,
		RunOptions:   inv.RunOptions,
		transcript:   inv.transcript,
		state:        make(map[string]any),
	}
	for _, opt := range opts {
		opt(cloned)
	}
	return cloned
}

// recordEvent records a valid non-partial event in the shared transcript.
func (inv *Invocation) recordEvent(e *event.Event) {
	if inv.transcript != nil {
		inv.transcript.record(e)
	}
}

// TranscriptEvents returns a snapshot of the events emitted so far in this
// top-level run, in emission order.
func (inv *Invocation) TranscriptEvents() []*event.Event {
	if inv.transcript == nil {
		return nil
	}
	return inv.transcript.snapshot()
}

// SetState stores a value in the invocation-local state.
func (inv *Invocation) SetState(key string, value any) {
	inv.stateMu.Lock()
	defer inv.stateMu.Unlock()
	if inv.state == nil {
		inv.state = make(map[string]any)
	}
	inv.state[key] = value
}

// GetStateValue retrieves a typed value from the invocation-local state.
func GetStateValue[T any](inv *Invocation, key string) (T, bool) {
	var zero T
	if inv == nil {
		return zero, false
	}
	inv.stateMu.RLock()
	defer inv.stateMu.RUnlock()
	value, ok := inv.state[key]
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// GetRuntimeStateValue retrieves a typed value from the caller-supplied
// runtime state.
func GetRuntimeStateValue[T any](ro *RunOptions, key string) (T, bool) {
	var zero T
	if ro == nil || ro.RuntimeState == nil {
		return zero, false
	}
	value, ok := ro.RuntimeState[key]
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}
