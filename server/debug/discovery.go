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
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/log"
)

// AgentLoader resolves a discovered agent id to a live instance.
type AgentLoader interface {
	Load(id string) (agent.Agent, error)
}

// sourceExtensions are the file extensions scanned for agent markers.
var sourceExtensions = map[string]struct{}{
	".go": {}, ".js": {}, ".ts": {}, ".py": {}, ".yaml": {}, ".yml": {},
}

// DiscoveredAgent is the metadata extracted from one agent source file.
type DiscoveredAgent struct {
	ID          string
	Name        string
	Description string
	Path        string
}

// DiscoverAgents scans a directory for agent source files and extracts
// their metadata from @name/@description comment markers or name:/
// description: literals. The file base name is the agent id.
func DiscoverAgents(dir string) ([]DiscoveredAgent, error) {
	var discovered []DiscoveredAgent
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := sourceExtensions[filepath.Ext(path)]; !ok {
			return nil
		}
		meta, err := extractAgentMetadata(path)
		if err != nil {
			log.Warnf("Agent discovery: skip %s: %v", path, err)
			return nil
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		meta.ID = id
		if meta.Name == "" {
			meta.Name = id
		}
		meta.Path = path
		discovered = append(discovered, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discovered, nil
}

// extractAgentMetadata pulls the name and description markers from the
// head of a source file.
func extractAgentMetadata(path string) (DiscoveredAgent, error) {
	var meta DiscoveredAgent
	f, err := os.Open(path)
	if err != nil {
		return meta, err
	}
	defer f.Close()

	// Markers live near the top of the file; stop after a screenful.
	const maxLines = 50
	scanner := bufio.NewScanner(f)
	for i := 0; scanner.Scan() && i < maxLines; i++ {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := markerValue(line, "@name"); ok && meta.Name == "" {
			meta.Name = value
			continue
		}
		if value, ok := markerValue(line, "@description"); ok && meta.Description == "" {
			meta.Description = value
			continue
		}
		if value, ok := literalValue(line, "name:"); ok && meta.Name == "" {
			meta.Name = value
			continue
		}
		if value, ok := literalValue(line, "description:"); ok && meta.Description == "" {
			meta.Description = value
		}
	}
	return meta, scanner.Err()
}

// markerValue extracts "@marker value" from a comment line.
func markerValue(line, marker string) (string, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return "", false
	}
	value := strings.TrimSpace(line[idx+len(marker):])
	if value == "" {
		return "", false
	}
	return value, true
}

// literalValue extracts `key: "value"` style literals.
func literalValue(line, key string) (string, bool) {
	idx := strings.Index(line, key)
	if idx < 0 {
		return "", false
	}
	value := strings.TrimSpace(line[idx+len(key):])
	value = strings.Trim(value, `"',`)
	if value == "" {
		return "", false
	}
	return value, true
}

// WithAgentDir discovers agents in a directory and registers their
// metadata. Instances are resolved lazily through the loader installed
// with WithAgentLoader.
func WithAgentDir(dir string) Option {
	return func(s *Server) {
		discovered, err := DiscoverAgents(dir)
		if err != nil {
			log.Errorf("Agent discovery failed for %s: %v", dir, err)
			return
		}
		for _, meta := range discovered {
			if _, ok := s.discovered[meta.ID]; !ok {
				s.discovered[meta.ID] = meta
			}
		}
	}
}
