//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package state provides session-state templating for instructions.
package state

import (
	"regexp"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_:.\-]+)\}\}`)

// InjectSessionState replaces every {{key}} occurrence in the template with
// the string form of the session state value. Unknown keys are left
// verbatim so the model sees them unchanged.
func InjectSessionState(template string, invocation *agent.Invocation) (string, error) {
	if invocation == nil || invocation.Session == nil || !strings.Contains(template, "{{") {
		return template, nil
	}
	state := invocation.Session.State
	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		if value, ok := state[key]; ok {
			return string(value)
		}
		return match
	})
	return result, nil
}
