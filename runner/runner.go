//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package runner executes an agent against a session: it persists the
// conversation, applies the run timeout, and relays the event stream to
// the caller.
package runner

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/session"
	"trpc.group/trpc-go/trpc-adk-go/session/inmemory"
	"trpc.group/trpc-go/trpc-adk-go/telemetry"
)

// DefaultTimeout bounds one run end to end.
const DefaultTimeout = 300 * time.Second

// Option configures a Runner.
type Option func(*Runner)

// WithSessionService sets the session store. Defaults to the in-memory
// service.
func WithSessionService(service session.Service) Option {
	return func(r *Runner) { r.sessionService = service }
}

// WithTimeout bounds one run end to end. Defaults to 300 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithMaxHistorySize caps the conversation history handed to the agent.
// When the session holds more events, only the most recent n are loaded;
// zero means unlimited.
func WithMaxHistorySize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxHistorySize = n
		}
	}
}

// RunOption configures one run.
type RunOption func(*agent.RunOptions)

// WithRuntimeState supplies caller state visible to tools and callbacks.
func WithRuntimeState(state map[string]any) RunOption {
	return func(o *agent.RunOptions) { o.RuntimeState = state }
}

// Runner drives one agent for one application. It owns session
// persistence: every complete event the agent emits is appended to the
// session before it reaches the caller.
type Runner struct {
	appName        string
	agent          agent.Agent
	sessionService session.Service
	timeout        time.Duration
	maxHistorySize int

	runCounter   metric.Int64Counter
	errorCounter metric.Int64Counter
	eventCounter metric.Int64Counter
	tokenCounter metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// NewRunner creates a runner for the given application and agent.
func NewRunner(appName string, a agent.Agent, opts ...Option) *Runner {
	r := &Runner{
		appName: appName,
		agent:   a,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessionService == nil {
		r.sessionService = inmemory.NewSessionService()
	}
	r.runCounter, _ = telemetry.Meter.Int64Counter("adk.runner.runs",
		metric.WithDescription("Number of runner executions"))
	r.errorCounter, _ = telemetry.Meter.Int64Counter("adk.runner.errors",
		metric.WithDescription("Number of failed runner executions"))
	r.eventCounter, _ = telemetry.Meter.Int64Counter("adk.runner.events",
		metric.WithDescription("Number of events produced by runs"))
	r.tokenCounter, _ = telemetry.Meter.Int64Counter("adk.runner.tokens",
		metric.WithDescription("Total tokens consumed by runs"))
	r.runLatency, _ = telemetry.Meter.Float64Histogram("adk.runner.latency",
		metric.WithDescription("Run duration in seconds"))
	return r
}

// SessionService returns the runner's session store.
func (r *Runner) SessionService() session.Service {
	return r.sessionService
}

// Run executes the agent with the given message. The session is created
// when absent. The returned channel carries the full event stream and is
// closed with a final runner.completion event once the run ends.
func (r *Runner) Run(
	ctx context.Context,
	userID string,
	sessionID string,
	message model.Message,
	opts ...RunOption,
) (<-chan *event.Event, error) {
	key := session.Key{AppName: r.appName, UserID: userID, SessionID: sessionID}
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	if r.agent == nil {
		return nil, errors.New("runner has no agent")
	}
	if message.Role == "" {
		return nil, errors.New("message role is required")
	}

	var runOptions agent.RunOptions
	for _, opt := range opts {
		opt(&runOptions)
	}

	sess, err := r.ensureSession(ctx, key)
	if err != nil {
		return nil, err
	}

	invocation := agent.NewInvocation(
		agent.WithInvocationAgent(r.agent),
		agent.WithInvocationSession(sess),
		agent.WithInvocationMessage(message),
		agent.WithInvocationAppName(r.appName),
		agent.WithInvocationRunOptions(runOptions),
	)

	userEvent := event.New(invocation.InvocationID, agent.AuthorUser,
		event.WithResponse(&model.Response{
			Object:    model.ObjectTypeChatCompletion,
			Timestamp: time.Now(),
			Choices:   []model.Choice{{Message: message}},
		}))
	if err := r.sessionService.AppendEvent(ctx, key, userEvent); err != nil {
		return nil, err
	}
	invocation.Session.Events = append(invocation.Session.Events, *userEvent)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	runCtx = agent.NewInvocationContext(runCtx, invocation)

	agentChan, err := r.agent.Run(runCtx, invocation)
	if err != nil {
		cancel()
		r.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("app", r.appName)))
		return nil, err
	}

	out := make(chan *event.Event, cap(agentChan)+1)
	go func() {
		defer close(out)
		defer cancel()
		r.relay(runCtx, key, invocation, agentChan, out)
	}()
	return out, nil
}

// relay persists complete events, forwards the stream, and closes the run
// with a completion event.
func (r *Runner) relay(
	ctx context.Context,
	key session.Key,
	invocation *agent.Invocation,
	in <-chan *event.Event,
	out chan<- *event.Event,
) {
	start := time.Now()
	attrs := metric.WithAttributes(
		attribute.String("app", r.appName),
		attribute.String("agent", invocation.AgentName),
	)
	r.runCounter.Add(ctx, 1, attrs)

	failed := false
	for evt := range in {
		r.eventCounter.Add(ctx, 1, attrs)
		if evt.Response != nil {
			if evt.Response.Error != nil {
				failed = true
			}
			if evt.Response.Usage != nil {
				r.tokenCounter.Add(ctx, int64(evt.Response.Usage.TotalTokens), attrs)
			}
		}
		if r.shouldPersist(evt) && ctx.Err() == nil {
			// WithoutCancel shields an append already in flight; events
			// arriving after the run deadline are not persisted at all.
			if err := r.sessionService.AppendEvent(context.WithoutCancel(ctx), key, evt); err != nil {
				log.Errorf("Runner %s: persist event: %v", r.appName, err)
			}
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			r.emitTimeout(ctx, invocation, out)
			return
		}
	}

	if err := ctx.Err(); err != nil {
		r.emitTimeout(ctx, invocation, out)
		return
	}
	if failed {
		r.errorCounter.Add(ctx, 1, attrs)
	}
	r.runLatency.Record(ctx, time.Since(start).Seconds(), attrs)

	completion := event.New(invocation.InvocationID, invocation.AgentName,
		event.WithObject(model.ObjectTypeRunnerCompletion))
	completion.Done = true
	select {
	case out <- completion:
	default:
	}
}

// shouldPersist reports whether an event belongs in the session log:
// complete events with real content, not streaming chunks or
// preprocessing markers.
func (r *Runner) shouldPersist(evt *event.Event) bool {
	if evt == nil || evt.Response == nil {
		return false
	}
	return !evt.Response.IsPartial && evt.Response.IsValidContent()
}

func (r *Runner) emitTimeout(ctx context.Context, invocation *agent.Invocation, out chan<- *event.Event) {
	errType := model.ErrorTypeTimeoutError
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		errType = agent.ErrorTypeContextCancelled
	}
	evt := event.NewErrorEvent(invocation.InvocationID, invocation.AgentName,
		errType, ctx.Err().Error())
	select {
	case out <- evt:
	default:
	}
}

// ensureSession returns the existing session or creates it, loading at
// most maxHistorySize recent events when a cap is set.
func (r *Runner) ensureSession(ctx context.Context, key session.Key) (*session.Session, error) {
	var readOpts []session.Option
	if r.maxHistorySize > 0 {
		readOpts = append(readOpts, session.WithEventNum(r.maxHistorySize))
	}
	sess, err := r.sessionService.GetSession(ctx, key, readOpts...)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return r.sessionService.CreateSession(ctx, key, nil)
}

// Close releases the runner's resources.
func (r *Runner) Close() error {
	return r.sessionService.Close()
}
