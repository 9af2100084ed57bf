//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package function provides a generic tool built from a Go function.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"trpc.group/trpc-go/trpc-adk-go/internal/schema"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Option configures a FunctionTool.
type Option func(*config)

type config struct {
	name        string
	description string
	longRunning bool
}

// WithName sets the tool name.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithDescription sets the tool description.
func WithDescription(description string) Option {
	return func(c *config) { c.description = description }
}

// WithLongRunning marks the tool as long-running; its response is deferred
// past the invocation that issued the call.
func WithLongRunning(longRunning bool) Option {
	return func(c *config) { c.longRunning = longRunning }
}

// Func is the function signature wrapped by a FunctionTool.
type Func[I, O any] func(ctx context.Context, input I) (O, error)

// FunctionTool wraps a typed Go function as a callable tool. Argument and
// result schemas are derived from the input and output types by reflection.
type FunctionTool[I, O any] struct {
	fn          Func[I, O]
	declaration *tool.Declaration
	longRunning bool
}

var (
	_ tool.CallableTool = (*FunctionTool[struct{}, struct{}])(nil)
	_ tool.LongRunner   = (*FunctionTool[struct{}, struct{}])(nil)
)

// New creates a FunctionTool from the given function.
func New[I, O any](fn Func[I, O], opts ...Option) *FunctionTool[I, O] {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	var input I
	var output O
	return &FunctionTool[I, O]{
		fn:          fn,
		longRunning: c.longRunning,
		declaration: &tool.Declaration{
			Name:         c.name,
			Description:  c.description,
			InputSchema:  schema.Generate(reflect.TypeOf(input)),
			OutputSchema: schema.Generate(reflect.TypeOf(output)),
		},
	}
}

// Declaration implements the tool.Tool interface.
func (t *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return t.declaration
}

// LongRunning implements the tool.LongRunner interface.
func (t *FunctionTool[I, O]) LongRunning() bool {
	return t.longRunning
}

// Call implements the tool.CallableTool interface.
func (t *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("unmarshal arguments for tool %s: %w", t.declaration.Name, err)
		}
	}
	return t.fn(ctx, input)
}
