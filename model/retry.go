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
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Retry defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
)

// RetryOption configures the retry wrapper.
type RetryOption func(*retryOptions)

type retryOptions struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithMaxRetries sets the maximum number of retries for retryable failures.
func WithMaxRetries(n int) RetryOption {
	return func(o *retryOptions) { o.maxRetries = n }
}

// WithBaseDelay sets the first backoff delay; each retry doubles it.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.baseDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.maxDelay = d }
}

// WithRetry wraps a model with retry-with-exponential-backoff on retryable
// failures (network, timeout, 429, 5xx) and per-call metrics. Non-retryable
// failures fail immediately.
func WithRetry(m Model, opts ...RetryOption) Model {
	o := retryOptions{
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &retryModel{inner: m, opts: o}
}

type retryModel struct {
	inner Model
	opts  retryOptions
}

var (
	requestCounter, _ = telemetry.Meter.Int64Counter(
		"adk.model.requests",
		metric.WithDescription("Number of model requests"),
	)
	errorCounter, _ = telemetry.Meter.Int64Counter(
		"adk.model.errors",
		metric.WithDescription("Number of failed model requests"),
	)
	tokenCounter, _ = telemetry.Meter.Int64Counter(
		"adk.model.tokens",
		metric.WithDescription("Cumulative tokens consumed"),
	)
	latencyHistogram, _ = telemetry.Meter.Float64Histogram(
		"adk.model.latency",
		metric.WithDescription("Model call latency in seconds"),
	)
)

// Info implements the Model interface.
func (m *retryModel) Info() Info {
	return m.inner.Info()
}

// CountTokens implements the Model interface.
func (m *retryModel) CountTokens(ctx context.Context, messages []Message) (int, error) {
	return m.inner.CountTokens(ctx, messages)
}

// GenerateContent implements the Model interface. The call is retried when
// opening the response stream fails with a retryable error; once a stream
// is open it is relayed as-is.
func (m *retryModel) GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error) {
	modelAttr := metric.WithAttributes(attribute.String("model", m.inner.Info().Name))
	start := time.Now()

	var lastErr error
	delay := m.opts.baseDelay
	for attempt := 0; attempt <= m.opts.maxRetries; attempt++ {
		if attempt > 0 {
			log.Debugf("retrying model %s call, attempt %d after %v: %v",
				m.inner.Info().Name, attempt, delay, lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > m.opts.maxDelay {
				delay = m.opts.maxDelay
			}
		}

		requestCounter.Add(ctx, 1, modelAttr)
		ch, err := m.inner.GenerateContent(ctx, request)
		if err == nil {
			return m.relay(ctx, ch, start, modelAttr), nil
		}
		errorCounter.Add(ctx, 1, modelAttr)
		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// relay forwards responses and records usage and latency on the final one.
func (m *retryModel) relay(
	ctx context.Context,
	in <-chan *Response,
	start time.Time,
	modelAttr metric.MeasurementOption,
) <-chan *Response {
	out := make(chan *Response)
	go func() {
		defer close(out)
		for rsp := range in {
			if rsp != nil && !rsp.IsPartial {
				latencyHistogram.Record(ctx, time.Since(start).Seconds(), modelAttr)
				if rsp.Usage != nil {
					tokenCounter.Add(ctx, int64(rsp.Usage.TotalTokens), modelAttr)
				}
				if rsp.Error != nil {
					errorCounter.Add(ctx, 1, modelAttr)
				}
			}
			select {
			case out <- rsp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// IsRetryableError reports whether an error is worth retrying: network
// failures, timeouts, throttling and server-side errors. Validation and
// other client-side failures are not retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporarily unavailable",
		"too many requests",
		"429",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
