//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package llmagent

import (
	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Option configures an LLMAgent.
type Option func(*Options)

// Options holds the configuration of an LLMAgent.
type Options struct {
	model                      model.Model
	modelName                  string
	description                string
	instruction                string
	systemPrompt               string
	generationConfig           model.GenerationConfig
	tools                      []tool.Tool
	subAgents                  []agent.Agent
	maxIterations              int
	channelBufferSize          int
	parallelism                int
	includeContents            string
	outputSchema               map[string]any
	bypassStateInjection       bool
	endInvocationAfterTransfer bool
	disallowTransferToPeer     bool
	safetySettings             []model.SafetySetting
	agentCallbacks             *agent.Callbacks
	modelCallbacks             *model.Callbacks
	toolCallbacks              *tool.Callbacks
}

// WithModel sets the model instance directly.
func WithModel(m model.Model) Option {
	return func(o *Options) { o.model = m }
}

// WithModelName resolves the model from the default registry at run time.
func WithModelName(name string) Option {
	return func(o *Options) { o.modelName = name }
}

// WithDescription sets the agent description.
func WithDescription(description string) Option {
	return func(o *Options) { o.description = description }
}

// WithInstruction sets the agent instruction. Placeholders like {{key}}
// are resolved from session state unless state injection is bypassed.
func WithInstruction(instruction string) Option {
	return func(o *Options) { o.instruction = instruction }
}

// WithSystemPrompt sets the global system prompt prepended to the system
// message.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) { o.systemPrompt = prompt }
}

// WithGenerationConfig sets the generation parameters sent with every
// model request.
func WithGenerationConfig(config model.GenerationConfig) Option {
	return func(o *Options) { o.generationConfig = config }
}

// WithTools sets the tools available to the agent.
func WithTools(tools ...tool.Tool) Option {
	return func(o *Options) { o.tools = append(o.tools, tools...) }
}

// WithSubAgents sets the sub-agents this agent may transfer control to.
// Any sub-agent enables the transfer tool.
func WithSubAgents(subAgents ...agent.Agent) Option {
	return func(o *Options) { o.subAgents = append(o.subAgents, subAgents...) }
}

// WithMaxIterations caps the number of model calls per invocation.
func WithMaxIterations(n int) Option {
	return func(o *Options) { o.maxIterations = n }
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(o *Options) { o.channelBufferSize = n }
}

// WithParallelism bounds concurrent tool execution per model response.
func WithParallelism(n int) Option {
	return func(o *Options) { o.parallelism = n }
}

// WithIncludeContents selects the history policy, "default" or "none".
func WithIncludeContents(policy string) Option {
	return func(o *Options) { o.includeContents = policy }
}

// WithOutputSchema asks the model for JSON output matching the schema.
func WithOutputSchema(schema map[string]any) Option {
	return func(o *Options) { o.outputSchema = schema }
}

// WithBypassStateInjection suppresses {{key}} templating in instructions.
func WithBypassStateInjection() Option {
	return func(o *Options) { o.bypassStateInjection = true }
}

// WithAgentCallbacks installs agent callbacks.
func WithAgentCallbacks(cb *agent.Callbacks) Option {
	return func(o *Options) { o.agentCallbacks = cb }
}

// WithModelCallbacks installs model callbacks.
func WithModelCallbacks(cb *model.Callbacks) Option {
	return func(o *Options) { o.modelCallbacks = cb }
}

// WithToolCallbacks installs tool callbacks.
func WithToolCallbacks(cb *tool.Callbacks) Option {
	return func(o *Options) { o.toolCallbacks = cb }
}

// WithKeepInvocationAfterTransfer keeps the origin invocation running
// after a transfer completes instead of ending it.
func WithKeepInvocationAfterTransfer() Option {
	return func(o *Options) { o.endInvocationAfterTransfer = false }
}

// WithDisallowTransferToPeer keeps this agent out of peer transfer: its
// siblings are not offered as targets, and it is not offered to them.
func WithDisallowTransferToPeer() Option {
	return func(o *Options) { o.disallowTransferToPeer = true }
}

// WithSafetySettings sets the content-safety configuration sent with every
// model request.
func WithSafetySettings(settings ...model.SafetySetting) Option {
	return func(o *Options) { o.safetySettings = append(o.safetySettings, settings...) }
}
