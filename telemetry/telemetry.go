//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry provides the OpenTelemetry tracer and meter used by the
// engine. Both are no-op until Start wires exporters or the application
// installs its own providers via the otel globals.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentName is the instrumentation scope used for spans and metrics.
const InstrumentName = "trpc.group/trpc-go/trpc-adk-go"

var (
	// Tracer is the tracer used by the engine.
	Tracer trace.Tracer = otel.Tracer(InstrumentName)

	// Meter is the meter used by the engine.
	Meter metric.Meter = otel.Meter(InstrumentName)
)

// Span operation names.
const (
	OperationInvokeAgent = "invoke_agent"
	OperationCallLLM     = "call_llm"
	OperationExecuteTool = "execute_tool"
	OperationRun         = "run"
)

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint string
}

// WithEndpoint sets the OTLP gRPC collector endpoint, e.g. "localhost:4317".
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// Start installs OTLP gRPC trace and metric exporters and rebinds the
// package Tracer and Meter. It returns a shutdown function flushing both
// providers.
func Start(ctx context.Context, opts ...Option) (func(context.Context) error, error) {
	o := options{endpoint: "localhost:4317"}
	for _, opt := range opts {
		opt(&o)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(o.endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tracerProvider)
	Tracer = tracerProvider.Tracer(InstrumentName)

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(o.endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		shutdownErr := tracerProvider.Shutdown(ctx)
		return nil, errors.Join(err, shutdownErr)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(meterProvider)
	Meter = meterProvider.Meter(InstrumentName)

	return func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}, nil
}
