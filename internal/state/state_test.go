//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

func invocationWithState(state session.StateMap) *agent.Invocation {
	return agent.NewInvocation(
		agent.WithInvocationSession(&session.Session{State: state}),
	)
}

func TestInjectSessionState(t *testing.T) {
	inv := invocationWithState(session.StateMap{
		"customer_name": []byte("Alice"),
		"user:tier":     []byte("premium"),
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			"single placeholder",
			"Hello {{customer_name}}!",
			"Hello Alice!",
		},
		{
			"scoped key",
			"Tier: {{user:tier}}",
			"Tier: premium",
		},
		{
			"unknown key left verbatim",
			"Hello {{customer_name}}, plan: {{unknown_key}}",
			"Hello Alice, plan: {{unknown_key}}",
		},
		{
			"no placeholders",
			"plain text",
			"plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InjectSessionState(tt.template, inv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectSessionState_NoSession(t *testing.T) {
	got, err := InjectSessionState("Hello {{name}}", agent.NewInvocation())
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", got)

	got, err = InjectSessionState("Hello {{name}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", got)
}
