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
	"context"
)

type invocationKey struct{}

// NewInvocationContext returns a context carrying the invocation, so tools
// and callbacks can reach the current invocation through the context.
func NewInvocationContext(ctx context.Context, invocation *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, invocation)
}

// InvocationFromContext returns the invocation from the context.
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	invocation, ok := ctx.Value(invocationKey{}).(*Invocation)
	return invocation, ok
}

// GetStateValueFromContext retrieves a typed value from the invocation
// state stored in the context.
func GetStateValueFromContext[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	inv, ok := InvocationFromContext(ctx)
	if !ok {
		return zero, false
	}
	return GetStateValue[T](inv, key)
}

// GetRuntimeStateValueFromContext retrieves a typed value from the runtime
// state of the invocation stored in the context.
func GetRuntimeStateValueFromContext[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	inv, ok := InvocationFromContext(ctx)
	if !ok || inv == nil {
		return zero, false
	}
	return GetRuntimeStateValue[T](&inv.RunOptions, key)
}
