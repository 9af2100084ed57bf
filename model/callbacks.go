//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package model

import "context"

// BeforeModelCallback is called before the model request is sent. It may
// mutate the request. A non-nil custom response skips the model call.
type BeforeModelCallback func(ctx context.Context, request *Request) (*Response, error)

// AfterModelCallback is called for each final model response. A non-nil
// custom response replaces the actual response.
type AfterModelCallback func(
	ctx context.Context,
	request *Request,
	response *Response,
	runErr error,
) (*Response, error)

// Callbacks holds callbacks for model operations.
type Callbacks struct {
	// BeforeModel is a list of callbacks called before the model call.
	BeforeModel []BeforeModelCallback
	// AfterModel is a list of callbacks called after the model call.
	AfterModel []AfterModelCallback
}

// NewCallbacks creates a new Callbacks instance for models.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// RegisterBeforeModel registers a before model callback.
func (c *Callbacks) RegisterBeforeModel(cb BeforeModelCallback) *Callbacks {
	c.BeforeModel = append(c.BeforeModel, cb)
	return c
}

// RegisterAfterModel registers an after model callback.
func (c *Callbacks) RegisterAfterModel(cb AfterModelCallback) *Callbacks {
	c.AfterModel = append(c.AfterModel, cb)
	return c
}

// RunBeforeModel runs all before model callbacks in order. The first
// non-nil custom response stops the chain.
func (c *Callbacks) RunBeforeModel(ctx context.Context, request *Request) (*Response, error) {
	for _, cb := range c.BeforeModel {
		response, err := cb(ctx, request)
		if err != nil {
			return nil, err
		}
		if response != nil {
			return response, nil
		}
	}
	return nil, nil
}

// RunAfterModel runs all after model callbacks in order. The first non-nil
// custom response stops the chain and replaces the actual response.
func (c *Callbacks) RunAfterModel(
	ctx context.Context,
	request *Request,
	response *Response,
	runErr error,
) (*Response, error) {
	for _, cb := range c.AfterModel {
		custom, err := cb(ctx, request, response, runErr)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			return custom, nil
		}
	}
	return nil, nil
}
