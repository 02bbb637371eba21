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
	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
	"github.com/AleutianAI/tsmodel/services/tsmodel/validate"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// Class is the resolver error class for compile failures.
	Class string `json:"class,omitempty"`

	// Location points at the offending declaration, when known.
	Location *ast.Location `json:"location,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// CompileRequest is the body of POST /v1/model/compile.
type CompileRequest struct {
	// Name labels the compiled pattern in logs. Defaults to "inline".
	Name string `json:"name"`

	// Sources maps file paths to TypeScript source text.
	Sources map[string]string `json:"sources" binding:"required,min=1"`

	// Compiler overrides the server's module resolution options.
	Compiler *typesys.CompilerOptions `json:"compiler,omitempty"`

	// Scalars overrides the server's basic scalar list.
	Scalars []string `json:"scalars,omitempty"`

	// Formats lists rendered outputs to include: json, yaml, ts, graphql.
	Formats []string `json:"formats,omitempty" binding:"omitempty,dive,oneof=json yaml ts graphql"`
}

// CompileResponse is the result of a compile.
type CompileResponse struct {
	RequestID string                      `json:"request_id"`
	Files     []string                    `json:"files"`
	Registry  *model.SerializableRegistry `json:"registry"`
	Warnings  []resolver.Warning          `json:"warnings"`
	Stats     resolver.ResolveStats       `json:"stats"`
	Summary   model.RegistryStats         `json:"summary"`

	// Outputs maps each requested format to its rendered text.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// ValidateRequest is the body of POST /v1/model/validate.
type ValidateRequest struct {
	// Sources are compiled like CompileRequest.Sources. Ignored when
	// SnapshotID is set.
	Sources map[string]string `json:"sources"`

	// SnapshotID validates against a stored registry instead.
	SnapshotID string `json:"snapshot_id"`

	// Entity names the root entity.
	Entity string `json:"entity" binding:"required"`

	// Value is the decoded JSON input.
	Value any `json:"value"`
}

// ValidateResponse is the result of a validation.
type ValidateResponse struct {
	Valid  bool                  `json:"valid"`
	Value  any                   `json:"value,omitempty"`
	Errors []validate.FieldError `json:"errors,omitempty"`
}

// ListSnapshotsResponse lists snapshot metadata, newest first.
type ListSnapshotsResponse struct {
	Snapshots []*snapshot.Metadata `json:"snapshots"`
}

// LoadSnapshotResponse is a stored snapshot.
type LoadSnapshotResponse struct {
	Metadata *snapshot.Metadata          `json:"metadata"`
	Registry *model.SerializableRegistry `json:"registry"`
}

// SnapshotDiffResponse wraps a snapshot diff.
type SnapshotDiffResponse struct {
	Diff *snapshot.Diff `json:"diff"`
}

// MergeSnapshotsRequest is the body of POST /v1/model/snapshots/merge.
type MergeSnapshotsRequest struct {
	SnapshotIDs []string `json:"snapshot_ids" binding:"required,min=1"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Snapshots bool   `json:"snapshots"`
}
