//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool contract exposed to language models.
package tool

import "context"

// RequestCredentialToolName is the reserved tool name that surfaces an auth
// configuration request to the caller instead of invoking application code.
const RequestCredentialToolName = "adk_request_credential"

// Tool is the interface that all tools must implement.
type Tool interface {
	// Declaration returns the descriptor sent to the model.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON-encoded arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the given JSON arguments and returns the
	// result value or an error. Errors are fed back to the model as a tool
	// response, never raised across the engine boundary.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// LongRunner marks a tool whose response is not awaited within the
// invocation that issued its call.
type LongRunner interface {
	// LongRunning reports whether the tool defers its response.
	LongRunning() bool
}

// StateDeltaProvider allows a tool result to carry session state mutations.
// The dispatcher merges the delta into the tool response event.
type StateDeltaProvider interface {
	// StateDelta returns the session state mutations produced by the call.
	StateDelta() map[string][]byte
}

// Declaration describes a tool to the model.
type Declaration struct {
	// Name is the tool name, unique within one agent's tool set.
	Name string `json:"name"`
	// Description is the human readable description.
	Description string `json:"description"`
	// InputSchema is the JSON schema of the arguments object.
	InputSchema *Schema `json:"inputSchema,omitempty"`
	// OutputSchema is the JSON schema of the result value, if declared.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema is a JSON-schema-shaped object describing tool parameters.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Default     any                `json:"default,omitempty"`
}

type callIDKey struct{}

// WithCallID returns a context carrying the originating function-call id.
// The dispatcher sets it before invoking a tool so that tools holding
// per-call state can key it by the call id.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallIDFromContext returns the originating function-call id, if any.
func CallIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callIDKey{}).(string)
	return id, ok
}
