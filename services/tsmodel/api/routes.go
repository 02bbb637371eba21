// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName is the otelgin service name.
const ServiceName = "tsmodel-api"

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tsmodel",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	},
	[]string{"route", "status"},
)

// RegisterRoutes registers all /model endpoints on rg.
//
// Endpoints:
//
//	POST   /v1/model/compile - Compile inline sources
//	POST   /v1/model/validate - Validate a value against a compiled entity
//	GET    /v1/model/snapshots - List snapshots
//	GET    /v1/model/snapshots/diff - Diff two snapshots
//	POST   /v1/model/snapshots/merge - Merge snapshots
//	GET    /v1/model/snapshots/:id - Load a snapshot
//	DELETE /v1/model/snapshots/:id - Delete a snapshot
//
// Example:
//
//	handlers := api.NewHandlers(cfg, api.WithSnapshots(mgr))
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	m := rg.Group("/model")
	{
		m.POST("/compile", handlers.HandleCompile)
		m.POST("/validate", handlers.HandleValidate)

		// diff and merge are registered before the :id wildcard
		m.GET("/snapshots", handlers.HandleListSnapshots)
		m.GET("/snapshots/diff", handlers.HandleDiffSnapshots)
		m.POST("/snapshots/merge", handlers.HandleMergeSnapshots)
		m.GET("/snapshots/:id", handlers.HandleLoadSnapshot)
		m.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Debug enables gin request logging.
	Debug bool

	// Tracing installs the otelgin middleware.
	Tracing bool
}

// NewRouter builds the full engine: recovery, tracing, metrics, health
// and the /v1 routes.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Tracing {
		router.Use(otelgin.Middleware(ServiceName))
	}
	if opts.Debug {
		router.Use(gin.Logger())
	}
	router.Use(metricsMiddleware())

	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
