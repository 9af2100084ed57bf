//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package tool

import "context"

// BeforeToolCallback is called before a tool runs. A non-nil custom result
// skips tool execution. The callback may rewrite jsonArgs in place.
type BeforeToolCallback func(
	ctx context.Context,
	toolName string,
	declaration *Declaration,
	jsonArgs *[]byte,
) (any, error)

// AfterToolCallback is called after a tool runs. A non-nil custom result
// replaces the actual tool result.
type AfterToolCallback func(
	ctx context.Context,
	toolName string,
	declaration *Declaration,
	jsonArgs []byte,
	result any,
	runErr error,
) (any, error)

// Callbacks holds callbacks for tool operations.
type Callbacks struct {
	// BeforeTool is a list of callbacks called before a tool runs.
	BeforeTool []BeforeToolCallback
	// AfterTool is a list of callbacks called after a tool runs.
	AfterTool []AfterToolCallback
}

// NewCallbacks creates a new Callbacks instance for tools.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeTool registers a before tool callback.
func (c *Callbacks) RegisterBeforeTool(cb BeforeToolCallback) *Callbacks {
	c.BeforeTool = append(c.BeforeTool, cb)
	return c
}

// RegisterAfterTool registers an after tool callback.
func (c *Callbacks) RegisterAfterTool(cb AfterToolCallback) *Callbacks {
	c.AfterTool = append(c.AfterTool, cb)
	return c
}

// RunBeforeTool runs all before tool callbacks in order. The first non-nil
// custom result stops the chain.
func (c *Callbacks) RunBeforeTool(
	ctx context.Context,
	toolName string,
	declaration *Declaration,
	jsonArgs *[]byte,
) (any, error) {
	for _, cb := range c.BeforeTool {
		result, err := cb(ctx, toolName, declaration, jsonArgs)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

// RunAfterTool runs all after tool callbacks in order. The first non-nil
// custom result stops the chain and replaces the tool result.
func (c *Callbacks) RunAfterTool(
	ctx context.Context,
	toolName string,
	declaration *Declaration,
	jsonArgs []byte,
	result any,
	runErr error,
) (any, error) {
	for _, cb := range c.AfterTool {
		custom, err := cb(ctx, toolName, declaration, jsonArgs, result, runErr)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			return custom, nil
		}
	}
	return result, runErr
}
