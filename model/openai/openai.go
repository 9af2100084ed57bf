//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible model implementation.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

const (
	functionToolType = "function"

	defaultChannelBufferSize = 256

	//nolint:gosec
	openAIAPIKeyName = "OPENAI_API_KEY"
	//nolint:gosec
	deepSeekAPIKeyName     = "DEEPSEEK_API_KEY"
	defaultDeepSeekBaseURL = "https://api.deepseek.com"
	//nolint:gosec
	qwenAPIKeyName     = "DASHSCOPE_API_KEY"
	defaultQwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// Variant selects provider-specific defaults for OpenAI-compatible APIs.
type Variant string

// Supported variants.
const (
	VariantOpenAI   Variant = "openai"
	VariantDeepSeek Variant = "deepseek"
	VariantQwen     Variant = "qwen"
)

// variantConfig holds the per-variant defaults.
type variantConfig struct {
	defaultBaseURL string
	apiKeyName     string
}

var variantConfigs = map[Variant]variantConfig{
	VariantOpenAI: {
		apiKeyName: openAIAPIKeyName,
	},
	VariantDeepSeek: {
		defaultBaseURL: defaultDeepSeekBaseURL,
		apiKeyName:     deepSeekAPIKeyName,
	},
	VariantQwen: {
		defaultBaseURL: defaultQwenBaseURL,
		apiKeyName:     qwenAPIKeyName,
	},
}

// Option configures the model.
type Option func(*options)

type options struct {
	APIKey            string
	BaseURL           string
	Variant           Variant
	ChannelBufferSize int
	ExtraFields       map[string]any
	OpenAIOptions     []openaiopt.RequestOption
}

// WithAPIKey sets the API key. Defaults to the variant's environment
// variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.APIKey = key }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.BaseURL = baseURL }
}

// WithVariant selects provider-specific defaults.
func WithVariant(v Variant) Option {
	return func(o *options) { o.Variant = v }
}

// WithChannelBufferSize sets the response channel buffer size.
func WithChannelBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.ChannelBufferSize = n
		}
	}
}

// WithExtraFields injects extra JSON fields into every request body.
func WithExtraFields(fields map[string]any) Option {
	return func(o *options) { o.ExtraFields = fields }
}

// WithOpenAIOptions appends raw client options.
func WithOpenAIOptions(opts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.OpenAIOptions = append(o.OpenAIOptions, opts...) }
}

// Model is an OpenAI-compatible chat model.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
	extraFields       map[string]any
}

var _ model.Model = (*Model)(nil)

// New creates a model talking to an OpenAI-compatible API.
func New(name string, opts ...Option) *Model {
	o := options{
		Variant:           VariantOpenAI,
		ChannelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg, ok := variantConfigs[o.Variant]; ok {
		if val, ok := os.LookupEnv(cfg.apiKeyName); ok && o.APIKey == "" {
			o.APIKey = val
		}
		if cfg.defaultBaseURL != "" && o.BaseURL == "" {
			o.BaseURL = cfg.defaultBaseURL
		}
	}

	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:              name,
		channelBufferSize: o.ChannelBufferSize,
		extraFields:       o.ExtraFields,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{
		Name: m.name,
		Capabilities: model.Capabilities{
			Streaming: true,
			Tools:     true,
			Images:    true,
		},
	}
}

// CountTokens implements the model.Model interface. The chat API exposes
// no tokenizer endpoint, so this is the usual four-characters-per-token
// estimate plus a fixed per-message framing overhead.
func (m *Model) CountTokens(ctx context.Context, messages []model.Message) (int, error) {
	const perMessageOverhead = 4
	total := 0
	for _, msg := range messages {
		chars := len(msg.Content)
		for _, part := range msg.ContentParts {
			chars += len(part.Text)
		}
		for _, call := range msg.ToolCalls {
			chars += len(call.Function.Name) + len(call.Function.Arguments)
		}
		total += perMessageOverhead + (chars+3)/4
	}
	return total, nil
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	chatRequest, opts := m.buildChatRequest(request)

	go func() {
		defer close(responseChan)
		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan, opts...)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan, opts...)
		}
	}()
	return responseChan, nil
}

// buildChatRequest converts our Request to OpenAI request params and options.
func (m *Model) buildChatRequest(request *model.Request) (openai.ChatCompletionNewParams, []openaiopt.RequestOption) {
	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: m.convertMessages(request.Messages),
		Tools:    m.convertTools(request.Tools),
	}

	// MaxTokens is deprecated and not compatible with o-series models.
	// Use MaxCompletionTokens instead.
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfString: openai.String(request.Stop[0]),
		}
	}
	if request.PresencePenalty != nil {
		chatRequest.PresencePenalty = openai.Float(*request.PresencePenalty)
	}
	if request.FrequencyPenalty != nil {
		chatRequest.FrequencyPenalty = openai.Float(*request.FrequencyPenalty)
	}
	if request.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	var opts []openaiopt.RequestOption
	for key, value := range m.extraFields {
		opts = append(opts, openaiopt.WithJSONSet(key, value))
	}
	return chatRequest, opts
}

// convertMessages converts our Message format to OpenAI's format.
func (m *Model) convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case model.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCalls: m.convertToolCalls(msg.ToolCalls),
				},
			}
		case model.RoleTool:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolID,
				},
			}
		default: // Unknown roles are sent as user messages.
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: m.convertUserMessageContent(msg),
				},
			}
		}
	}
	return result
}

// convertUserMessageContent converts message content to the user message
// content union, expanding multi-modal parts when present.
func (m *Model) convertUserMessageContent(
	msg model.Message,
) openai.ChatCompletionUserMessageParamContentUnion {
	if len(msg.ContentParts) == 0 {
		return openai.ChatCompletionUserMessageParamContentUnion{
			OfString: openai.String(msg.Content),
		}
	}
	var contentParts []openai.ChatCompletionContentPartUnionParam
	if msg.Content != "" {
		contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: msg.Content},
		})
	}
	for _, part := range msg.ContentParts {
		switch part.Type {
		case model.ContentTypeText:
			contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: part.Text},
			})
		case model.ContentTypeImage:
			if part.Image == nil || part.Image.URL == "" {
				continue
			}
			contentParts = append(contentParts, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.Image.URL,
					},
				},
			})
		}
	}
	return openai.ChatCompletionUserMessageParamContentUnion{
		OfArrayOfContentParts: contentParts,
	}
}

func (m *Model) convertToolCalls(toolCalls []model.ToolCall) []openai.ChatCompletionMessageToolCallParam {
	var result []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolCalls {
		result = append(result, openai.ChatCompletionMessageToolCallParam{
			ID: toolCall.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}
	return result
}

func (m *Model) convertTools(tools map[string]tool.Tool) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range tools {
		declaration := t.Declaration()
		// Round-trip the schema through JSON to map to OpenAI's format.
		schemaBytes, err := json.Marshal(declaration.InputSchema)
		if err != nil {
			log.Errorf("failed to marshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		var parameters shared.FunctionParameters
		if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
			log.Errorf("failed to unmarshal tool schema for %s: %v", declaration.Name, err)
			continue
		}
		result = append(result, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        declaration.Name,
				Description: openai.String(declaration.Description),
				Parameters:  parameters,
			},
		})
	}
	return result
}

// handleStreamingResponse relays streaming chunks as partial responses and
// assembles the final response from the accumulator.
func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
	opts ...openaiopt.RequestOption,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest, opts...)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 && chunk.Usage.TotalTokens == 0 {
			continue
		}
		acc.AddChunk(chunk)

		// Tool call deltas surface only in the final response.
		if len(chunk.Choices) == 0 || (chunk.Choices[0].Delta.Content == "" &&
			chunk.Choices[0].FinishReason == "") {
			continue
		}

		select {
		case responseChan <- m.createPartialResponse(chunk):
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil {
		errorResponse := model.NewErrorResponse(model.ErrorTypeStreamError, err.Error())
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	finalResponse := m.createFinalResponse(acc)
	select {
	case responseChan <- finalResponse:
	case <-ctx.Done():
	}
}

// createPartialResponse maps one streaming chunk to a partial response.
func (m *Model) createPartialResponse(chunk openai.ChatCompletionChunk) *model.Response {
	response := &model.Response{
		ID:        chunk.ID,
		Object:    model.ObjectTypeChatCompletionChunk,
		Created:   chunk.Created,
		Model:     chunk.Model,
		Timestamp: time.Now(),
		Done:      false,
		IsPartial: true,
	}
	if len(chunk.Choices) > 0 {
		choice := model.Choice{
			Delta: model.Message{
				Role:    model.RoleAssistant,
				Content: chunk.Choices[0].Delta.Content,
			},
		}
		if chunk.Choices[0].FinishReason != "" {
			reason := model.MapFinishReason(chunk.Choices[0].FinishReason)
			choice.FinishReason = &reason
		}
		response.Choices = []model.Choice{choice}
	}
	return response
}

// createFinalResponse assembles the final response from accumulated chunks.
func (m *Model) createFinalResponse(acc openai.ChatCompletionAccumulator) *model.Response {
	hasToolCall := len(acc.Choices) > 0 && len(acc.Choices[0].Message.ToolCalls) > 0

	response := &model.Response{
		ID:        acc.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   acc.Created,
		Model:     acc.Model,
		Choices:   make([]model.Choice, len(acc.Choices)),
		Timestamp: time.Now(),
		Done:      !hasToolCall,
		IsPartial: false,
	}
	if acc.Usage.TotalTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		}
	}
	for i, choice := range acc.Choices {
		response.Choices[i] = model.Choice{
			Index: int(choice.Index),
			Message: model.Message{
				Role:    model.RoleAssistant,
				Content: choice.Message.Content,
			},
		}
		if hasToolCall && i == 0 {
			response.Choices[i].Message.ToolCalls = m.accumulatedToolCalls(acc)
		}
		if choice.FinishReason != "" {
			reason := model.MapFinishReason(choice.FinishReason)
			response.Choices[i].FinishReason = &reason
		}
	}
	return response
}

// accumulatedToolCalls extracts the assembled tool calls of the first
// choice. Missing ids are left empty; the dispatcher assigns framework ids.
func (m *Model) accumulatedToolCalls(acc openai.ChatCompletionAccumulator) []model.ToolCall {
	calls := make([]model.ToolCall, 0, len(acc.Choices[0].Message.ToolCalls))
	for i, toolCall := range acc.Choices[0].Message.ToolCalls {
		// The accumulator yields empty slots when providers start tool call
		// indices above zero.
		if toolCall.Function.Name == "" && toolCall.ID == "" {
			continue
		}
		index := i
		calls = append(calls, model.ToolCall{
			Type:  functionToolType,
			ID:    toolCall.ID,
			Index: &index,
			Function: model.FunctionDefinitionParam{
				Name:      toolCall.Function.Name,
				Arguments: []byte(toolCall.Function.Arguments),
			},
		})
	}
	return calls
}

// handleNonStreamingResponse performs one blocking completion call.
func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
	opts ...openaiopt.RequestOption,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest, opts...)
	if err != nil {
		errorResponse := model.NewErrorResponse(model.ErrorTypeModelError, err.Error())
		select {
		case responseChan <- errorResponse:
		case <-ctx.Done():
		}
		return
	}

	response := &model.Response{
		ID:        chatCompletion.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Timestamp: time.Now(),
		Done:      true,
	}
	response.Choices = make([]model.Choice, len(chatCompletion.Choices))
	for i, choice := range chatCompletion.Choices {
		response.Choices[i] = model.Choice{
			Index: int(choice.Index),
			Message: model.Message{
				Role:    model.RoleAssistant,
				Content: choice.Message.Content,
			},
		}
		if len(choice.Message.ToolCalls) > 0 {
			calls := make([]model.ToolCall, len(choice.Message.ToolCalls))
			for j, toolCall := range choice.Message.ToolCalls {
				calls[j] = model.ToolCall{
					Type: string(toolCall.Type),
					ID:   toolCall.ID,
					Function: model.FunctionDefinitionParam{
						Name:      toolCall.Function.Name,
						Arguments: []byte(toolCall.Function.Arguments),
					},
				}
			}
			response.Choices[i].Message.ToolCalls = calls
			response.Done = false
		}
		if choice.FinishReason != "" {
			reason := model.MapFinishReason(choice.FinishReason)
			response.Choices[i].FinishReason = &reason
		}
	}
	if chatCompletion.Usage.TotalTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(chatCompletion.Usage.PromptTokens),
			CompletionTokens: int(chatCompletion.Usage.CompletionTokens),
			TotalTokens:      int(chatCompletion.Usage.TotalTokens),
		}
	}

	select {
	case responseChan <- response:
	case <-ctx.Done():
	}
}
