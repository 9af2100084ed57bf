//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"fmt"
	"sync"
)

// Capabilities declares what a model implementation supports.
type Capabilities struct {
	// Streaming reports support for partial response chunks.
	Streaming bool
	// Tools reports support for function calling.
	Tools bool
	// Images reports support for image input parts.
	Images bool
	// MaxInputTokens caps the request size; zero means unknown.
	MaxInputTokens int
	// MaxOutputTokens caps the completion size; zero means unknown.
	MaxOutputTokens int
}

// Info describes a model implementation.
type Info struct {
	// Name is the model identifier, e.g. "gpt-4o-mini".
	Name string
	// Capabilities declares what the model supports.
	Capabilities Capabilities
}

// Model is the interface implemented by model providers. GenerateContent
// returns a channel of responses: zero or more partial chunks followed by
// exactly one final response (or an error response).
type Model interface {
	// GenerateContent generates content from the given request.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// CountTokens returns the number of input tokens the messages would
	// consume. Providers without an exact tokenizer may estimate.
	CountTokens(ctx context.Context, messages []Message) (int, error)

	// Info returns basic information about the model.
	Info() Info
}

// registry is the process-wide default model registry. It has explicit init
// and is overridable per agent.
var registry = struct {
	mu     sync.RWMutex
	models map[string]Model
}{models: make(map[string]Model)}

// Register registers a model under its name in the default registry.
// Registering the same name twice replaces the earlier entry.
func Register(m Model) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.models[m.Info().Name] = m
}

// Lookup returns the registered model with the given name.
func Lookup(name string) (Model, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	m, ok := registry.models[name]
	if !ok {
		return nil, fmt.Errorf("model %q is not registered", name)
	}
	return m, nil
}
