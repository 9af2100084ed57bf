//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package model provides the provider-agnostic model abstraction.
package model

import (
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// Role represents the role of a message author.
type Role string

// Message role constants.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Content part type constants.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Message represents one Content unit of the conversation.
type Message struct {
	// Role is the author role.
	Role Role `json:"role"`
	// Content is the plain-text content.
	Content string `json:"content"`
	// ContentParts carries multi-modal parts when present.
	ContentParts []ContentPart `json:"content_parts,omitempty"`
	// ToolID is the id of the function call this message responds to.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the name of the tool that produced this message.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls are the function calls requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ContentPart is a tagged variant of a message part.
type ContentPart struct {
	// Type is one of the ContentType* constants.
	Type string `json:"type"`
	// Text is set when Type is text.
	Text string `json:"text,omitempty"`
	// Image is set when Type is image.
	Image *Image `json:"image,omitempty"`
}

// Image is an image part payload.
type Image struct {
	// URL references the image by location.
	URL string `json:"url,omitempty"`
	// Data is the raw image bytes when inlined.
	Data []byte `json:"data,omitempty"`
	// Format is the mime subtype, e.g. "png".
	Format string `json:"format,omitempty"`
}

// ToolCall represents a function call requested by the model.
type ToolCall struct {
	// Type is the call type, currently always "function".
	Type string `json:"type"`
	// ID identifies the call; responses are matched by this id.
	ID string `json:"id,omitempty"`
	// Index is the call index within a streamed response.
	Index *int `json:"index,omitempty"`
	// Function holds the call target and arguments.
	Function FunctionDefinitionParam `json:"function"`
}

// FunctionDefinitionParam is the function name and raw JSON arguments.
type FunctionDefinitionParam struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments,omitempty"`
}

// GenerationConfig holds the recognized generation parameters.
type GenerationConfig struct {
	// Stream requests streamed partial responses.
	Stream bool `json:"stream,omitempty"`
	// Temperature controls randomness.
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP is the nucleus sampling parameter.
	TopP *float64 `json:"top_p,omitempty"`
	// TopK limits sampling to the k most likely tokens.
	TopK *int `json:"top_k,omitempty"`
	// MaxTokens caps the completion length.
	MaxTokens *int `json:"max_tokens,omitempty"`
	// Stop lists stop sequences.
	Stop []string `json:"stop,omitempty"`
	// PresencePenalty penalizes repeated topics.
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	// FrequencyPenalty penalizes repeated tokens.
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Safety threshold constants, from most to least permissive.
const (
	SafetyThresholdBlockNone        = "BLOCK_NONE"
	SafetyThresholdBlockOnlyHigh    = "BLOCK_ONLY_HIGH"
	SafetyThresholdBlockMediumUp    = "BLOCK_MEDIUM_AND_ABOVE"
	SafetyThresholdBlockLowAndAbove = "BLOCK_LOW_AND_ABOVE"
)

// SafetySetting sets the blocking threshold for one harm category.
// Providers without a safety surface ignore these.
type SafetySetting struct {
	// Category is the provider harm category, e.g. "HARM_CATEGORY_HARASSMENT".
	Category string `json:"category"`
	// Threshold is one of the SafetyThreshold* constants.
	Threshold string `json:"threshold"`
}

// Request is the provider-agnostic model request. It is constructed fresh
// per iteration and mutated only through the processor chain.
type Request struct {
	// Messages is the ordered conversation the model will see.
	Messages []Message `json:"messages"`

	GenerationConfig `json:",inline"`

	// SafetySettings are per-category blocking thresholds.
	SafetySettings []SafetySetting `json:"safety_settings,omitempty"`

	// Tools is the tool catalog keyed by name.
	Tools map[string]tool.Tool `json:"-"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool response message addressed by call id.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{Role: RoleTool, ToolID: toolID, ToolName: toolName, Content: content}
}
