// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// astTracerName is the OTel tracer name for the parser.
const astTracerName = "tsmodel.ast"

// Package-level Prometheus metrics for parsing.
var (
	// parseDuration measures per-file parse time.
	//
	// Labels:
	//   - status: "success" or "error"
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tsmodel",
			Subsystem: "ast",
			Name:      "parse_duration_seconds",
			Help:      "Duration of TypeScript file parsing in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"status"},
	)

	// parsedDeclarationsTotal counts lowered top-level declarations.
	parsedDeclarationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "ast",
			Name:      "declarations_total",
			Help:      "Total top-level declarations lowered from parsed files.",
		},
	)
)

// startParseSpan starts the span for one Parse call.
func startParseSpan(ctx context.Context, filePath string, size int) (context.Context, trace.Span) {
	return otel.Tracer(astTracerName).Start(ctx, "ast.TypeScriptParser.Parse",
		trace.WithAttributes(
			attribute.String("file", filePath),
			attribute.Int("size_bytes", size),
		),
	)
}

// setParseSpanResult records the outcome of a successful parse.
func setParseSpanResult(span trace.Span, declarations, syntaxErrors int) {
	span.SetAttributes(
		attribute.Int("declarations", declarations),
		attribute.Int("syntax_errors", syntaxErrors),
	)
}

// recordParseMetrics records duration and declaration counts.
//
// Thread Safety: Safe for concurrent use.
func recordParseMetrics(duration time.Duration, declarations int, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	parseDuration.WithLabelValues(status).Observe(duration.Seconds())
	if declarations > 0 {
		parsedDeclarationsTotal.Add(float64(declarations))
	}
}
