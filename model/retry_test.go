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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyModel fails a fixed number of times before succeeding.
type flakyModel struct {
	failures int
	calls    int
	err      error
}

func (m *flakyModel) Info() Info { return Info{Name: "flaky"} }

func (m *flakyModel) CountTokens(ctx context.Context, messages []Message) (int, error) {
	return 0, nil
}

func (m *flakyModel) GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, m.err
	}
	ch := make(chan *Response, 1)
	ch <- &Response{Done: true, Choices: []Choice{{Message: NewAssistantMessage("ok")}}}
	close(ch)
	return ch, nil
}

func TestWithRetry_RecoversFromRetryableErrors(t *testing.T) {
	inner := &flakyModel{failures: 2, err: errors.New("503 service unavailable")}
	m := WithRetry(inner, WithBaseDelay(time.Millisecond), WithMaxRetries(3))

	ch, err := m.GenerateContent(context.Background(), &Request{})
	require.NoError(t, err)
	rsp := <-ch
	require.NotNil(t, rsp)
	assert.Equal(t, "ok", rsp.Choices[0].Message.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	inner := &flakyModel{failures: 1, err: errors.New("invalid request")}
	m := WithRetry(inner, WithBaseDelay(time.Millisecond))

	_, err := m.GenerateContent(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	inner := &flakyModel{failures: 100, err: errors.New("429 too many requests")}
	m := WithRetry(inner, WithBaseDelay(time.Millisecond), WithMaxRetries(2))

	_, err := m.GenerateContent(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls) // initial call plus two retries
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid request body")))
	assert.True(t, IsRetryableError(errors.New("request timeout")))
	assert.True(t, IsRetryableError(errors.New("HTTP 429: rate limited")))
	assert.True(t, IsRetryableError(errors.New("502 bad gateway")))
	assert.True(t, IsRetryableError(errors.New("connection refused")))
}
