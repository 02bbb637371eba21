// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the model compiler over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/tsmodel/services/tsmodel/compiler"
	"github.com/AleutianAI/tsmodel/services/tsmodel/config"
	"github.com/AleutianAI/tsmodel/services/tsmodel/emit"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
	"github.com/AleutianAI/tsmodel/services/tsmodel/validate"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 8 << 20

// Handlers holds the HTTP handlers.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	cfg          *config.Config
	snapshots    *snapshot.Manager
	logger       *slog.Logger
	version      string
	maxBodyBytes int64
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithSnapshots enables the snapshot endpoints.
func WithSnapshots(m *snapshot.Manager) HandlerOption {
	return func(h *Handlers) {
		h.snapshots = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// WithMaxBodyBytes bounds request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates handlers compiling with cfg. A nil cfg uses the
// built-in defaults.
func NewHandlers(cfg *config.Config, opts ...HandlerOption) *Handlers {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Handlers{
		cfg:          cfg,
		logger:       slog.Default(),
		version:      "dev",
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCompile handles POST /v1/model/compile.
//
// Description:
//
//	Compiles inline sources into a registry. Nothing is written to disk
//	and no snapshot is stored.
//
// Response:
//
//	200 OK: CompileResponse
//	400 Bad Request: Malformed body
//	422 Unprocessable Entity: Compile error, with class and location
func (h *Handlers) HandleCompile(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleCompile"))

	var req CompileRequest
	if !h.bind(c, &req, requestID) {
		return
	}

	pr, ok := h.compile(c, logger, requestID, req.Name, req.Sources, req.Compiler, req.Scalars)
	if !ok {
		return
	}

	resp := CompileResponse{
		RequestID: requestID,
		Files:     pr.Files,
		Registry:  pr.Registry.ToSerializable(),
		Warnings:  pr.Warnings,
		Stats:     pr.Stats,
		Summary:   pr.Registry.Stats(),
	}
	if resp.Warnings == nil {
		resp.Warnings = []resolver.Warning{}
	}
	if len(req.Formats) > 0 {
		resp.Outputs = make(map[string]string, len(req.Formats))
		for _, name := range req.Formats {
			f, err := emit.ParseFormat(name)
			if err != nil {
				h.fail(c, http.StatusBadRequest, "INVALID_FORMAT", err, requestID)
				return
			}
			data, err := emit.Render(pr.Registry, f)
			if err != nil {
				logger.Error("render failed", slog.String("format", name), slog.Any("error", err))
				h.fail(c, http.StatusUnprocessableEntity, "RENDER_FAILED", err, requestID)
				return
			}
			resp.Outputs[string(f)] = string(data)
		}
	}

	logger.Info("model compiled",
		slog.Int("files", len(pr.Files)),
		slog.Int("entities", pr.Registry.Len()))
	c.JSON(http.StatusOK, resp)
}

// HandleValidate handles POST /v1/model/validate.
//
// Description:
//
//	Validates a JSON value against an entity of a model compiled from
//	inline sources or loaded from a snapshot. A failed validation is a
//	successful request: the response reports valid=false with errors.
//
// Response:
//
//	200 OK: ValidateResponse
//	400 Bad Request: Malformed body or unknown entity
//	404 Not Found: Snapshot not found
//	422 Unprocessable Entity: Compile error or callback failure
func (h *Handlers) HandleValidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleValidate"))

	var req ValidateRequest
	if !h.bind(c, &req, requestID) {
		return
	}

	var reg *model.Registry
	switch {
	case req.SnapshotID != "":
		if !h.requireSnapshots(c, requestID) {
			return
		}
		loaded, _, err := h.snapshots.Load(c.Request.Context(), req.SnapshotID)
		if err != nil {
			h.snapshotError(c, logger, err, requestID)
			return
		}
		reg = loaded
	case len(req.Sources) > 0:
		pr, ok := h.compile(c, logger, requestID, "validate", req.Sources, nil, nil)
		if !ok {
			return
		}
		reg = pr.Registry
	default:
		h.fail(c, http.StatusBadRequest, "MISSING_PARAMETER", errors.New("either sources or snapshot_id is required"), requestID)
		return
	}

	out, err := validate.New(reg, validate.WithLogger(logger)).Validate(c.Request.Context(), req.Entity, req.Value)
	var fieldErrs validate.Errors
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ValidateResponse{Valid: true, Value: out})
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusOK, ValidateResponse{Valid: false, Errors: fieldErrs})
	case errors.Is(err, validate.ErrUnknownEntity):
		h.fail(c, http.StatusBadRequest, "UNKNOWN_ENTITY", err, requestID)
	default:
		logger.Warn("validation aborted", slog.Any("error", err))
		h.fail(c, http.StatusUnprocessableEntity, "VALIDATION_ABORTED", err, requestID)
	}
}

// HandleListSnapshots handles GET /v1/model/snapshots.
//
// Query Parameters:
//
//	project_root: Optional filter by project root path
//	pattern: Optional filter by pattern name
//	limit: Maximum results, default 100
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleListSnapshots"))
	if !h.requireSnapshots(c, requestID) {
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	projectHash := ""
	if root := c.Query("project_root"); root != "" {
		projectHash = snapshot.ProjectHash(root)
	}

	snapshots, err := h.snapshots.List(c.Request.Context(), projectHash, c.Query("pattern"), limit)
	if err != nil {
		logger.Error("failed to list snapshots", slog.Any("error", err))
		h.fail(c, http.StatusInternalServerError, "SNAPSHOT_LIST_FAILED", err, requestID)
		return
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: snapshots})
}

// HandleLoadSnapshot handles GET /v1/model/snapshots/:id.
func (h *Handlers) HandleLoadSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleLoadSnapshot"))
	if !h.requireSnapshots(c, requestID) {
		return
	}

	reg, meta, err := h.snapshots.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.snapshotError(c, logger, err, requestID)
		return
	}
	c.JSON(http.StatusOK, LoadSnapshotResponse{Metadata: meta, Registry: reg.ToSerializable()})
}

// HandleDeleteSnapshot handles DELETE /v1/model/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleDeleteSnapshot"))
	if !h.requireSnapshots(c, requestID) {
		return
	}

	snapshotID := c.Param("id")
	if err := h.snapshots.Delete(c.Request.Context(), snapshotID); err != nil {
		h.snapshotError(c, logger, err, requestID)
		return
	}
	logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleDiffSnapshots handles GET /v1/model/snapshots/diff.
//
// Query Parameters:
//
//	base: Base snapshot ID (required)
//	target: Target snapshot ID (required)
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleDiffSnapshots"))
	if !h.requireSnapshots(c, requestID) {
		return
	}

	baseID, targetID := c.Query("base"), c.Query("target")
	if baseID == "" || targetID == "" {
		h.fail(c, http.StatusBadRequest, "MISSING_PARAMETER", errors.New("both 'base' and 'target' parameters are required"), requestID)
		return
	}
	base, _, err := h.snapshots.Load(c.Request.Context(), baseID)
	if err != nil {
		h.snapshotError(c, logger, err, requestID)
		return
	}
	target, _, err := h.snapshots.Load(c.Request.Context(), targetID)
	if err != nil {
		h.snapshotError(c, logger, err, requestID)
		return
	}

	diff, err := snapshot.DiffRegistries(base, target, baseID, targetID)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "DIFF_FAILED", err, requestID)
		return
	}
	logger.Info("snapshot diff computed",
		slog.String("base", baseID),
		slog.String("target", targetID),
		slog.Int("total_changes", diff.Summary.TotalChanges))
	c.JSON(http.StatusOK, SnapshotDiffResponse{Diff: diff})
}

// HandleMergeSnapshots handles POST /v1/model/snapshots/merge.
//
// Response:
//
//	200 OK: The merged registry
//	409 Conflict: Two snapshots define one name incompatibly
func (h *Handlers) HandleMergeSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleMergeSnapshots"))
	if !h.requireSnapshots(c, requestID) {
		return
	}

	var req MergeSnapshotsRequest
	if !h.bind(c, &req, requestID) {
		return
	}
	reg, err := h.snapshots.Merge(c.Request.Context(), req.SnapshotIDs...)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrIntegrity) {
			h.snapshotError(c, logger, err, requestID)
			return
		}
		h.fail(c, http.StatusConflict, "MERGE_CONFLICT", err, requestID)
		return
	}
	c.JSON(http.StatusOK, reg.ToSerializable())
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Snapshots: h.snapshots != nil,
	})
}

// compile runs the pipeline over inline sources. On failure it writes
// the error response and returns false.
func (h *Handlers) compile(c *gin.Context, logger *slog.Logger, requestID, name string, sources map[string]string, opts *typesys.CompilerOptions, scalars []string) (*compiler.PatternResult, bool) {
	if name == "" {
		name = "inline"
	}
	cfg := *h.cfg
	if opts != nil {
		cfg.Compiler = *opts
	}
	if len(scalars) > 0 {
		cfg.Scalars = scalars
	}
	comp, err := compiler.New(".", &cfg, compiler.WithLogger(logger))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "COMPILER_UNAVAILABLE", err, requestID)
		return nil, false
	}

	in := make(map[string][]byte, len(sources))
	for p, src := range sources {
		in[p] = []byte(src)
	}
	pr, err := comp.CompileSources(c.Request.Context(), name, in)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			h.fail(c, http.StatusServiceUnavailable, "CANCELLED", err, requestID)
			return nil, false
		}
		logger.Info("compile failed", slog.Any("error", err))
		resp := ErrorResponse{
			Error:     err.Error(),
			Code:      "COMPILE_FAILED",
			Class:     resolver.ErrorClass(err),
			RequestID: requestID,
		}
		var re *resolver.Error
		if errors.As(err, &re) {
			loc := re.Location
			resp.Location = &loc
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return nil, false
	}
	return pr, true
}

func (h *Handlers) bind(c *gin.Context, req any, requestID string) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err, requestID)
			return false
		}
		h.fail(c, http.StatusBadRequest, "INVALID_REQUEST", err, requestID)
		return false
	}
	return true
}

func (h *Handlers) requireSnapshots(c *gin.Context, requestID string) bool {
	if h.snapshots == nil {
		h.fail(c, http.StatusServiceUnavailable, "SNAPSHOTS_NOT_AVAILABLE", errors.New("snapshot persistence not configured"), requestID)
		return false
	}
	return true
}

func (h *Handlers) snapshotError(c *gin.Context, logger *slog.Logger, err error, requestID string) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		h.fail(c, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", err, requestID)
	case errors.Is(err, snapshot.ErrIntegrity):
		logger.Error("snapshot corrupted", slog.Any("error", err))
		h.fail(c, http.StatusInternalServerError, "SNAPSHOT_CORRUPTED", err, requestID)
	default:
		logger.Error("snapshot operation failed", slog.Any("error", err))
		h.fail(c, http.StatusInternalServerError, "SNAPSHOT_FAILED", err, requestID)
	}
}

func (h *Handlers) fail(c *gin.Context, status int, code string, err error, requestID string) {
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code, RequestID: requestID})
}

// getOrCreateRequestID returns the caller's request ID or a new one, and
// echoes it in the response header.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	return id
}
