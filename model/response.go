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
	"time"
)

// Object type constants identifying what a response (and the event wrapping
// it) represents.
const (
	ObjectTypeChatCompletion           = "chat.completion"
	ObjectTypeChatCompletionChunk      = "chat.completion.chunk"
	ObjectTypeToolResponse             = "tool.response"
	ObjectTypeTransfer                 = "agent.transfer"
	ObjectTypeRunnerCompletion         = "runner.completion"
	ObjectTypeMaxIterationsReached     = "max_iterations_reached"
	ObjectTypeError                    = "error"
	ObjectTypePreprocessingBasic       = "preprocessing.basic"
	ObjectTypePreprocessingInstruction = "preprocessing.instruction"
	ObjectTypePreprocessingIdentity    = "preprocessing.identity"
	ObjectTypePreprocessingContent     = "preprocessing.content"
)

// Error type constants; kinds, not Go types.
const (
	ErrorTypeValidationError = "validation_error"
	ErrorTypeModelError      = "model_error"
	ErrorTypeToolError       = "tool_error"
	ErrorTypeSessionError    = "session_error"
	ErrorTypeFlowError       = "flow_error"
	ErrorTypeStreamError     = "stream_error"
	ErrorTypeTimeoutError    = "timeout_error"
)

// FinishReason is the normalized reason a completion stopped.
type FinishReason string

// Finish reason constants. Provider-specific codes reduce to this set.
const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// MapFinishReason reduces a provider-specific finish reason to the
// normalized set. Unknown codes map to stop.
func MapFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "end_turn":
		return FinishReasonStop
	case "length", "max_tokens":
		return FinishReasonLength
	case "tool_calls", "function_call", "tool_use":
		return FinishReasonToolCalls
	case "content_filter":
		return FinishReasonContentFilter
	default:
		return FinishReasonStop
	}
}

// Response is the provider-agnostic model response.
type Response struct {
	// ID is the provider response id.
	ID string `json:"id,omitempty"`
	// Object identifies the response kind; see ObjectType* constants.
	Object string `json:"object,omitempty"`
	// Created is the provider creation time in unix seconds.
	Created int64 `json:"created,omitempty"`
	// Model is the model name that produced the response.
	Model string `json:"model,omitempty"`
	// Choices are the completion candidates.
	Choices []Choice `json:"choices,omitempty"`
	// Usage is the token accounting, present on final responses.
	Usage *Usage `json:"usage,omitempty"`
	// Error is set when the response represents a failure.
	Error *ResponseError `json:"error,omitempty"`
	// Timestamp is the local receive time.
	Timestamp time.Time `json:"timestamp"`
	// Done reports whether this response terminates the turn.
	Done bool `json:"done"`
	// IsPartial reports whether this is a streaming chunk.
	IsPartial bool `json:"is_partial"`
}

// Choice is one completion candidate.
type Choice struct {
	// Index is the candidate index.
	Index int `json:"index"`
	// Message is the full message, set on final responses.
	Message Message `json:"message,omitempty"`
	// Delta is the incremental message, set on streaming chunks.
	Delta Message `json:"delta,omitempty"`
	// FinishReason is why the candidate stopped, when known.
	FinishReason *FinishReason `json:"finish_reason,omitempty"`
}

// Usage is token accounting for one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseError is the machine-readable failure carried by a response.
type ResponseError struct {
	// Message is the human readable description.
	Message string `json:"message"`
	// Type is one of the ErrorType* constants.
	Type string `json:"type"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return e.Type + ": " + e.Message
}

// NewErrorResponse creates a response representing a failure.
func NewErrorResponse(errType, message string) *Response {
	return &Response{
		Object:    ObjectTypeError,
		Timestamp: time.Now(),
		Done:      true,
		Error: &ResponseError{
			Type:    errType,
			Message: message,
		},
	}
}

// IsToolCallResponse reports whether the response requests tool calls.
func (r *Response) IsToolCallResponse() bool {
	if r == nil {
		return false
	}
	for _, choice := range r.Choices {
		if len(choice.Message.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

// IsToolResultResponse reports whether the response carries tool results.
func (r *Response) IsToolResultResponse() bool {
	if r == nil {
		return false
	}
	if r.Object != ObjectTypeToolResponse {
		return false
	}
	for _, choice := range r.Choices {
		if choice.Message.Role == RoleTool && choice.Message.ToolID != "" {
			return true
		}
	}
	return false
}

// GetToolCallIDs returns the ids of all requested tool calls.
func (r *Response) GetToolCallIDs() []string {
	var ids []string
	if r == nil {
		return ids
	}
	for _, choice := range r.Choices {
		for _, call := range choice.Message.ToolCalls {
			ids = append(ids, call.ID)
		}
	}
	return ids
}

// GetToolResultIDs returns the call ids answered by this response.
func (r *Response) GetToolResultIDs() []string {
	var ids []string
	if r == nil {
		return ids
	}
	for _, choice := range r.Choices {
		if choice.Message.Role == RoleTool && choice.Message.ToolID != "" {
			ids = append(ids, choice.Message.ToolID)
		}
	}
	return ids
}

// IsFinalResponse reports whether the turn is complete: a done, non-partial
// response that requests no further tool work, or an error.
func (r *Response) IsFinalResponse() bool {
	if r == nil {
		return false
	}
	if r.Error != nil {
		return true
	}
	return r.Done && !r.IsPartial && !r.IsToolCallResponse() && !r.IsToolResultResponse()
}

// IsValidContent reports whether the response carries content worth
// persisting: a message, a delta, tool calls, or an error.
func (r *Response) IsValidContent() bool {
	if r == nil {
		return false
	}
	if r.Error != nil {
		return true
	}
	for _, choice := range r.Choices {
		if choice.Message.Content != "" || choice.Delta.Content != "" ||
			len(choice.Message.ToolCalls) > 0 ||
			(choice.Message.Role == RoleTool && choice.Message.ToolID != "") {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Choices = make([]Choice, len(r.Choices))
	copy(cloned.Choices, r.Choices)
	for i := range cloned.Choices {
		if calls := r.Choices[i].Message.ToolCalls; calls != nil {
			cloned.Choices[i].Message.ToolCalls = make([]ToolCall, len(calls))
			copy(cloned.Choices[i].Message.ToolCalls, calls)
		}
	}
	if r.Usage != nil {
		usage := *r.Usage
		cloned.Usage = &usage
	}
	if r.Error != nil {
		respErr := *r.Error
		cloned.Error = &respErr
	}
	return &cloned
}
