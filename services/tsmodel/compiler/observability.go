// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// compilerTracerName is the OTel tracer name for compile runs.
const compilerTracerName = "tsmodel.compiler"

var (
	// compileDuration measures one pattern compile, discovery to registry.
	//
	// Labels:
	//   - status: "success" or "error"
	compileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tsmodel",
			Subsystem: "compiler",
			Name:      "pattern_duration_seconds",
			Help:      "Duration of one pattern compile in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"status"},
	)

	// filesDiscovered counts source files selected by patterns.
	filesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "compiler",
			Name:      "files_discovered_total",
			Help:      "Total source files selected by compile patterns.",
		},
	)

	// filesEmitted counts generated files written.
	filesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tsmodel",
			Subsystem: "compiler",
			Name:      "files_emitted_total",
			Help:      "Total generated files written, by format.",
		},
		[]string{"format"},
	)
)

func recordPattern(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	compileDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func setSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
