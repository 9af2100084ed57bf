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
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/telemetry"
	"trpc.group/trpc-go/trpc-adk-go/tool"
	"trpc.group/trpc-go/trpc-adk-go/tool/transfer"
)

// DefaultParallelism bounds concurrent tool execution per model response.
const DefaultParallelism = 8

// FunctionCallResponseProcessor dispatches the tool calls of a model
// response: id assignment, bounded parallel execution, response merging,
// and long-running deferral.
type FunctionCallResponseProcessor struct {
	parallelism   int
	toolCallbacks *tool.Callbacks
}

// FunctionCallOption configures the dispatcher.
type FunctionCallOption func(*FunctionCallResponseProcessor)

// WithParallelism bounds concurrent tool execution.
func WithParallelism(n int) FunctionCallOption {
	return func(p *FunctionCallResponseProcessor) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithToolCallbacks installs tool callbacks.
func WithToolCallbacks(cb *tool.Callbacks) FunctionCallOption {
	return func(p *FunctionCallResponseProcessor) { p.toolCallbacks = cb }
}

// NewFunctionCallResponseProcessor creates a function call dispatcher.
func NewFunctionCallResponseProcessor(opts ...FunctionCallOption) *FunctionCallResponseProcessor {
	p := &FunctionCallResponseProcessor{parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// toolResult pairs a produced message with the index of its originating
// call so merging can preserve call order.
type toolResult struct {
	index             int
	message           model.Message
	stateDelta        map[string][]byte
	skipSummarization bool
}

// ProcessResponse implements the flow.ResponseProcessor interface.
func (p *FunctionCallResponseProcessor) ProcessResponse(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	rsp *model.Response,
	ch chan<- *event.Event,
) {
	if invocation == nil || rsp == nil || rsp.IsPartial || !rsp.IsToolCallResponse() {
		return
	}

	calls := collectToolCalls(rsp)
	AssignFunctionCallIDs(calls)

	immediate, deferred := p.partitionCalls(req, calls)

	results := p.executeCalls(ctx, invocation, req, immediate)

	// Deferred calls produce no response within this invocation; a later
	// user-supplied tool response addressed by id resumes them.
	longRunningIDs := make(map[string]struct{}, len(deferred))
	for _, call := range deferred {
		longRunningIDs[call.ID] = struct{}{}
	}

	if len(results) == 0 && len(longRunningIDs) == 0 {
		return
	}

	evt := p.mergeResults(invocation, rsp, results, longRunningIDs)
	if err := agent.EmitEvent(ctx, invocation, ch, evt); err != nil {
		log.Debugf("Function call processor: context cancelled")
	}
}

// collectToolCalls flattens the calls of all choices, keeping order.
func collectToolCalls(rsp *model.Response) []*model.ToolCall {
	var calls []*model.ToolCall
	for i := range rsp.Choices {
		for j := range rsp.Choices[i].Message.ToolCalls {
			calls = append(calls, &rsp.Choices[i].Message.ToolCalls[j])
		}
	}
	return calls
}

// AssignFunctionCallIDs gives every call missing an id a fresh framework
// id with the reserved prefix. Ids are stable for the life of the
// call/response pair.
func AssignFunctionCallIDs(calls []*model.ToolCall) {
	for _, call := range calls {
		if call.ID == "" {
			call.ID = FunctionCallIDPrefix + uuid.NewString()
		}
	}
}

// partitionCalls splits calls into immediate and long-running.
func (p *FunctionCallResponseProcessor) partitionCalls(
	req *model.Request, calls []*model.ToolCall,
) (immediate, deferred []*model.ToolCall) {
	for _, call := range calls {
		t := lookupTool(req, call.Function.Name)
		if lr, ok := t.(tool.LongRunner); ok && lr.LongRunning() {
			deferred = append(deferred, call)
			continue
		}
		immediate = append(immediate, call)
	}
	return immediate, deferred
}

func lookupTool(req *model.Request, name string) tool.Tool {
	if req == nil || req.Tools == nil {
		return nil
	}
	return req.Tools[name]
}

// executeCalls runs the immediate calls in parallel with bounded
// concurrency. Per-call failures become tool responses with an error
// payload; sibling calls are not cancelled.
func (p *FunctionCallResponseProcessor) executeCalls(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	calls []*model.ToolCall,
) []toolResult {
	if len(calls) == 0 {
		return nil
	}

	bound := p.parallelism
	if len(calls) < bound {
		bound = len(calls)
	}
	resultCh := make(chan toolResult, len(calls))

	pool, err := ants.NewPool(bound)
	if err != nil {
		log.Errorf("Function call processor: create pool: %v", err)
		for i, call := range calls {
			resultCh <- p.runSingleCall(ctx, invocation, req, i, call)
		}
	} else {
		defer pool.Release()
		for i, call := range calls {
			i, call := i, call
			if submitErr := pool.Submit(func() {
				resultCh <- p.runSingleCall(ctx, invocation, req, i, call)
			}); submitErr != nil {
				resultCh <- p.runSingleCall(ctx, invocation, req, i, call)
			}
		}
	}

	results := make([]toolResult, 0, len(calls))
	for range calls {
		results = append(results, <-resultCh)
	}
	return results
}

// runSingleCall executes one tool call, recovering panics and packaging
// failures as tool responses.
func (p *FunctionCallResponseProcessor) runSingleCall(
	ctx context.Context,
	invocation *agent.Invocation,
	req *model.Request,
	index int,
	call *model.ToolCall,
) (result toolResult) {
	result.index = index

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Errorf("Tool %s panic: %v\n%s", call.Function.Name, r, string(stack))
			result.message = errorToolMessage(call, fmt.Sprintf("tool panic: %v", r))
		}
	}()

	name := call.Function.Name

	// The credential-request tool surfaces the required auth configuration
	// to the caller rather than invoking application code.
	if name == tool.RequestCredentialToolName {
		result.message = model.NewToolMessage(call.ID, name,
			string(call.Function.Arguments))
		result.skipSummarization = true
		return result
	}

	t := lookupTool(req, name)
	if t == nil {
		result.message = errorToolMessage(call, fmt.Sprintf("tool %q not found", name))
		return result
	}

	callable, ok := t.(tool.CallableTool)
	if !ok {
		result.message = errorToolMessage(call, fmt.Sprintf("tool %q is not callable", name))
		return result
	}

	callCtx := tool.WithCallID(agent.NewInvocationContext(ctx, invocation), call.ID)
	callCtx, span := telemetry.Tracer.Start(callCtx,
		telemetry.OperationExecuteTool+" "+name)
	defer span.End()

	args := append([]byte(nil), call.Function.Arguments...)
	value, err := p.invokeWithCallbacks(callCtx, callable, t.Declaration(), &args)
	if err != nil {
		log.Warnf("Tool %s failed: %v", name, err)
		result.message = errorToolMessage(call, err.Error())
		return result
	}

	if provider, ok := value.(tool.StateDeltaProvider); ok {
		result.stateDelta = provider.StateDelta()
	}
	if name == transfer.ToolName {
		result.skipSummarization = true
	}

	payload, err := serializeToolResult(value)
	if err != nil {
		result.message = errorToolMessage(call, fmt.Sprintf("serialize result: %v", err))
		return result
	}
	result.message = model.NewToolMessage(call.ID, name, payload)
	return result
}

// invokeWithCallbacks runs the before callbacks, the tool, then the after
// callbacks.
func (p *FunctionCallResponseProcessor) invokeWithCallbacks(
	ctx context.Context,
	callable tool.CallableTool,
	declaration *tool.Declaration,
	args *[]byte,
) (any, error) {
	if p.toolCallbacks != nil {
		custom, err := p.toolCallbacks.RunBeforeTool(ctx, declaration.Name, declaration, args)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			return custom, nil
		}
	}
	value, err := callable.Call(ctx, *args)
	if p.toolCallbacks != nil {
		return p.toolCallbacks.RunAfterTool(ctx, declaration.Name, declaration, *args, value, err)
	}
	return value, err
}

// errorToolMessage packages a failure as a tool response so the
// conversation continues and the model can react.
func errorToolMessage(call *model.ToolCall, message string) model.Message {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		payload = []byte(`{"error":"tool failed"}`)
	}
	return model.NewToolMessage(call.ID, call.Function.Name, string(payload))
}

// serializeToolResult turns a tool result into the string payload the
// model sees.
func serializeToolResult(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// mergeResults merges all produced responses into one composite
// tool-response event, presenting results in originating call order.
func (p *FunctionCallResponseProcessor) mergeResults(
	invocation *agent.Invocation,
	rsp *model.Response,
	results []toolResult,
	longRunningIDs map[string]struct{},
) *event.Event {
	ordered := make([]model.Message, len(results))
	slots := make([]bool, len(results))
	stateDelta := make(map[string][]byte)
	skipSummarization := false
	for _, r := range results {
		if r.index < len(ordered) {
			ordered[r.index] = r.message
			slots[r.index] = true
		}
		for k, v := range r.stateDelta {
			stateDelta[k] = v
		}
		if r.skipSummarization {
			skipSummarization = true
		}
	}

	choices := make([]model.Choice, 0, len(results))
	for i, msg := range ordered {
		if !slots[i] {
			continue
		}
		choices = append(choices, model.Choice{Index: len(choices), Message: msg})
	}

	response := &model.Response{
		ID:        "tool-" + rsp.ID,
		Object:    model.ObjectTypeToolResponse,
		Created:   rsp.Created,
		Model:     rsp.Model,
		Choices:   choices,
		Timestamp: time.Now(),
		Done:      false,
	}
	opts := []event.Option{event.WithResponse(response)}
	if len(stateDelta) > 0 {
		opts = append(opts, event.WithStateDelta(stateDelta))
	}
	if skipSummarization {
		opts = append(opts, event.WithSkipSummarization())
	}
	evt := event.New(invocation.InvocationID, invocation.AgentName, opts...)
	if len(longRunningIDs) > 0 {
		evt.LongRunningToolIDs = longRunningIDs
	}
	return evt
}
