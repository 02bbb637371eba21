// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/tsmodel/services/tsmodel/bindings"
	"github.com/AleutianAI/tsmodel/services/tsmodel/metadata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// resolverTracerName is the OTel tracer name for model resolution.
const resolverTracerName = "tsmodel.resolver"

// Package-level Prometheus metrics for resolution.
var (
	// resolveDuration measures full Resolve calls.
	//
	// Labels:
	//   - status: "success" or "error"
	resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tsmodel",
			Subsystem: "resolver",
			Name:      "duration_seconds",
			Help:      "Duration of model resolution in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"status"},
	)

	// entitiesTotal counts resolved entities by kind.
	entitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "resolver",
			Name:      "entities_total",
			Help:      "Total entities registered by model resolution.",
		},
		[]string{"kind"},
	)

	// warningsTotal counts non-fatal diagnostics.
	warningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "resolver",
			Name:      "warnings_total",
			Help:      "Total warnings emitted by model resolution.",
		},
	)

	// errorsTotal counts fatal errors by class.
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "Total fatal resolution errors by class.",
		},
		[]string{"class"},
	)
)

// errorClasses maps sentinels to metric label values.
var errorClasses = []struct {
	err   error
	class string
}{
	{ErrDuplicateEntity, "duplicate_entity"},
	{ErrOrphanMember, "orphan_member"},
	{ErrEmptyList, "empty_list"},
	{ErrUnnamedUnion, "unnamed_union"},
	{ErrTuple, "tuple"},
	{ErrNotExported, "not_exported"},
	{ErrUnresolved, "unresolved"},
	{ErrEmptyGeneric, "empty_generic"},
	{ErrUnionMember, "union_member"},
	{ErrUnsupportedType, "unsupported_type"},
	{ErrConflictingType, "conflicting_type"},
	{bindings.ErrDuplicateBinding, "duplicate_binding"},
	{bindings.ErrNotExported, "not_exported"},
	{bindings.ErrBadTarget, "bad_binding_target"},
	{metadata.ErrInvalidAssertion, "invalid_assertion"},
	{context.Canceled, "cancelled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// ErrorClass returns a short label for err, "other" if unknown.
func ErrorClass(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return "other"
}

// startResolveSpan starts the span for one Resolve call.
func startResolveSpan(ctx context.Context, files int) (context.Context, trace.Span) {
	return otel.Tracer(resolverTracerName).Start(ctx, "resolver.Resolver.Resolve",
		trace.WithAttributes(attribute.Int("files", files)),
	)
}

// startStageSpan starts a child span for one pipeline stage.
func startStageSpan(ctx context.Context, stage Stage) (context.Context, trace.Span) {
	return otel.Tracer(resolverTracerName).Start(ctx, "resolver.Resolver."+stage.String(),
		trace.WithAttributes(attribute.String("stage", stage.String())),
	)
}

// endStageSpan records err, if any, and ends the stage span.
func endStageSpan(span trace.Span, err error) {
	if err != nil {
		recordSpanError(span, err)
	}
	span.End()
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.class", ErrorClass(err)))
}

// setResolveSpanResult records the result summary on the span.
func setResolveSpanResult(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.Int("entities", result.Stats.Entities),
		attribute.Int("items", result.Stats.Items),
		attribute.Int("anonymous", result.Stats.Anonymous),
		attribute.Int("warnings", len(result.Warnings)),
	)
}

// recordResolveMetrics records duration, entity, warning and error
// counters. result is nil on failure.
//
// Thread Safety: Safe for concurrent use.
func recordResolveMetrics(duration time.Duration, result *Result, err error) {
	if err != nil {
		resolveDuration.WithLabelValues("error").Observe(duration.Seconds())
		errorsTotal.WithLabelValues(ErrorClass(err)).Inc()
		return
	}
	resolveDuration.WithLabelValues("success").Observe(duration.Seconds())
	for kind, n := range result.Registry.Stats().ByKind {
		entitiesTotal.WithLabelValues(kind).Add(float64(n))
	}
	if len(result.Warnings) > 0 {
		warningsTotal.Add(float64(len(result.Warnings)))
	}
}
