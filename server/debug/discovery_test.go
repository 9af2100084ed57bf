//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscoverAgents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "weather.go", `// @name Weather Assistant
// @description Answers weather questions.
package main
`)
	writeFile(t, dir, "travel.yaml", `name: "Travel Planner"
description: "Plans trips."
model: gpt-4
`)
	writeFile(t, dir, "notes.txt", "not an agent file")

	discovered, err := DiscoverAgents(dir)
	require.NoError(t, err)
	require.Len(t, discovered, 2)

	byID := make(map[string]DiscoveredAgent)
	for _, meta := range discovered {
		byID[meta.ID] = meta
	}
	assert.Equal(t, "Weather Assistant", byID["weather"].Name)
	assert.Equal(t, "Answers weather questions.", byID["weather"].Description)
	assert.Equal(t, "Travel Planner", byID["travel"].Name)
	assert.Equal(t, "Plans trips.", byID["travel"].Description)
}

func TestDiscoverAgents_NameDefaultsToID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bare.py", "print('no markers here')\n")

	discovered, err := DiscoverAgents(dir)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "bare", discovered[0].ID)
	assert.Equal(t, "bare", discovered[0].Name)
}

func TestWithAgentDir_ListsDiscovered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scout.go", `// @name Scout
package main
`)

	s := New(map[string]agent.Agent{
		"echo": &echoAgent{name: "echo", reply: "hi"},
	}, WithAgentDir(dir))

	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agents := env.Data.([]any)
	require.Len(t, agents, 2)

	var names []string
	for _, a := range agents {
		names = append(names, a.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "Scout")
}

// stubLoader resolves discovered ids from a fixed map.
type stubLoader struct {
	agents map[string]agent.Agent
}

func (l *stubLoader) Load(id string) (agent.Agent, error) {
	a, ok := l.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	return a, nil
}

func TestServer_ConcurrentDiscoveryLookups(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scout.go", `// @name Scout
package main
`)
	s := New(nil,
		WithAgentDir(dir),
		WithAgentLoader(&stubLoader{agents: map[string]agent.Agent{
			"scout": &echoAgent{name: "scout", reply: "here"},
		}}))
	handler := s.Handler()

	// Lazy loading caches the instance while listings iterate the same
	// map from other requests.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/scout", nil))
				rec = httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))
			}
		}()
	}
	wg.Wait()

	rec, env := doJSON(t, handler, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data.([]any), 1)
}
