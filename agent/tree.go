//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package agent

import "sync"

// The parent relation is a weak lookup; ownership stays with the parent's
// sub-agent list. Composites and LLM agents register the edge when they
// are constructed with sub-agents.
var (
	parentMu sync.RWMutex
	parents  = make(map[Agent]Agent)
)

// RegisterParent records parent as the composition parent of child. The
// edge is used to resolve transfer targets beyond the agent's own
// sub-agents.
func RegisterParent(child, parent Agent) {
	if child == nil || parent == nil {
		return
	}
	parentMu.Lock()
	parents[child] = parent
	parentMu.Unlock()
}

// ParentOf returns the registered parent of the agent, or nil.
func ParentOf(child Agent) Agent {
	if child == nil {
		return nil
	}
	parentMu.RLock()
	defer parentMu.RUnlock()
	return parents[child]
}
