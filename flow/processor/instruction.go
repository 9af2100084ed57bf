//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/internal/state"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// InstructionRequestProcessor folds the agent instruction and system
// prompt into the request's system message, with session-state templating.
type InstructionRequestProcessor struct {
	// Instruction is the agent instruction appended to the system message.
	Instruction string
	// SystemPrompt is the global system prompt prepended to the system
	// message.
	SystemPrompt string
	// BypassStateInjection suppresses {{key}} templating, for agents that
	// resolve their instruction dynamically.
	BypassStateInjection bool
	// OutputSchema, when set, injects JSON output instructions.
	OutputSchema map[string]any
}

// InstructionOption configures the instruction request processor.
type InstructionOption func(*InstructionRequestProcessor)

// WithOutputSchema injects JSON output instructions for the given schema.
func WithOutputSchema(outputSchema map[string]any) InstructionOption {
	return func(p *InstructionRequestProcessor) { p.OutputSchema = outputSchema }
}

// WithBypassStateInjection suppresses session-state templating.
func WithBypassStateInjection() InstructionOption {
	return func(p *InstructionRequestProcessor) { p.BypassStateInjection = true }
}

// NewInstructionRequestProcessor creates an instruction request processor.
func NewInstructionRequestProcessor(
	instruction, systemPrompt string, opts ...InstructionOption,
) *InstructionRequestProcessor {
	p := &InstructionRequestProcessor{
		Instruction:  instruction,
		SystemPrompt: systemPrompt,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessRequest implements the flow.RequestProcessor interface.
func (p *InstructionRequestProcessor) ProcessRequest(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	ch chan<- *event.Event,
) {
	if req == nil {
		log.Errorf("Instruction request processor: request is nil")
		return
	}

	instruction := p.Instruction
	systemPrompt := p.SystemPrompt

	if p.OutputSchema != nil {
		jsonInstructions := p.generateJSONInstructions()
		if instruction != "" {
			instruction += "\n\n" + jsonInstructions
		} else {
			instruction = jsonInstructions
		}
	}

	if invocation != nil && !p.BypassStateInjection {
		var err error
		if instruction != "" {
			if instruction, err = state.InjectSessionState(instruction, invocation); err != nil {
				log.Errorf("Failed to inject session state into instruction: %v", err)
			}
		}
		if systemPrompt != "" {
			if systemPrompt, err = state.InjectSessionState(systemPrompt, invocation); err != nil {
				log.Errorf("Failed to inject session state into system prompt: %v", err)
			}
		}
	}

	mergeSystemMessage(req, systemPrompt, instruction)

	if invocation != nil {
		evt := event.New(invocation.InvocationID, invocation.AgentName,
			event.WithObject(model.ObjectTypePreprocessingInstruction))
		if err := event.Emit(ctx, ch, evt); err != nil {
			log.Debugf("Instruction request processor: context cancelled")
		}
	}
}

// mergeSystemMessage folds the prompt and instruction into the first
// system message, creating one when absent. Content already present is not
// duplicated.
func mergeSystemMessage(req *model.Request, systemPrompt, instruction string) {
	idx := findSystemMessageIndex(req.Messages)
	if idx >= 0 {
		if instruction != "" && !strings.Contains(req.Messages[idx].Content, instruction) {
			req.Messages[idx].Content += "\n\n" + instruction
		}
		if systemPrompt != "" && !strings.Contains(req.Messages[idx].Content, systemPrompt) {
			req.Messages[idx].Content = systemPrompt + "\n\n" + req.Messages[idx].Content
		}
		return
	}

	var content string
	if systemPrompt != "" {
		content = systemPrompt
	}
	if instruction != "" {
		if content != "" {
			content += "\n\n" + instruction
		} else {
			content = instruction
		}
	}
	if content != "" {
		req.Messages = append([]model.Message{model.NewSystemMessage(content)}, req.Messages...)
	}
}

// findSystemMessageIndex returns the index of the first system message, or
// -1 when there is none.
func findSystemMessageIndex(messages []model.Message) int {
	for i, msg := range messages {
		if msg.Role == model.RoleSystem {
			return i
		}
	}
	return -1
}

func (p *InstructionRequestProcessor) generateJSONInstructions() string {
	schemaJSON, err := json.MarshalIndent(p.OutputSchema, "", "  ")
	if err != nil {
		return fmt.Sprintf("IMPORTANT: You must respond with valid JSON matching: %v", p.OutputSchema)
	}
	return fmt.Sprintf("IMPORTANT: You must respond with valid JSON in the following format:\n%s\n\n"+
		"Your response must be valid JSON that matches this schema exactly. "+
		"Do not include ```json or ``` in the beginning or end of the response.", schemaJSON)
}
