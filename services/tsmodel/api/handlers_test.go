// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *snapshot.Manager {
	t.Helper()
	db, err := snapshot.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mgr, err := snapshot.NewManager(db, quietLogger())
	require.NoError(t, err)
	return mgr
}

func setupTestRouter(t *testing.T, opts ...HandlerOption) *gin.Engine {
	t.Helper()
	opts = append([]HandlerOption{WithLogger(quietLogger()), WithVersion("test")}, opts...)
	return NewRouter(NewHandlers(nil, opts...), RouterOptions{})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const signupSource = `/** @tsModel */ export interface Signup {
  /** @assert {regex: /^[^@]+@[^@]+$/} */
  email: string;
  /** @assert {min: 13} */
  age: number;
  newsletter?: boolean;
}`

func TestHandleCompile_Success(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/model/compile", CompileRequest{
		Sources: map[string]string{"src/signup.ts": signupSource},
		Formats: []string{"graphql"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[CompileResponse](t, w)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, resp.RequestID, w.Header().Get(RequestIDHeader))
	assert.Equal(t, []string{"src/signup.ts"}, resp.Files)

	var names []string
	for _, e := range resp.Registry.Entities {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Signup")
	assert.Equal(t, 1, resp.Summary.ByKind[model.KindObject.String()])
	assert.Contains(t, resp.Outputs["graphql"], "type Signup {")
	assert.NotNil(t, resp.Warnings)
}

func TestHandleCompile_RequestIDEcho(t *testing.T) {
	router := setupTestRouter(t)
	data, err := json.Marshal(CompileRequest{Sources: map[string]string{"a.ts": signupSource}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/model/compile", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", decode[CompileResponse](t, w).RequestID)
}

func TestHandleCompile_CompileError(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/model/compile", CompileRequest{
		Sources: map[string]string{"src/pair.ts": `/** @tsModel */ export interface Pair { pair: [string, number] }`},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "COMPILE_FAILED", resp.Code)
	assert.Equal(t, "tuple", resp.Class)
	require.NotNil(t, resp.Location)
	assert.Equal(t, "src/pair.ts", resp.Location.FilePath)
}

func TestHandleCompile_CircularAlias(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/model/compile", CompileRequest{
		Sources: map[string]string{"src/loop.ts": `export type A = B;
export type B = A;
/** @tsModel */ export interface Holder { x: A }`},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "unsupported_type", resp.Class)
	assert.Contains(t, resp.Error, "circularly references itself")

	health := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestHandleCompile_BadRequests(t *testing.T) {
	router := setupTestRouter(t, WithMaxBodyBytes(64))
	tests := []struct {
		name string
		body any
		want int
	}{
		{"no sources", CompileRequest{}, http.StatusBadRequest},
		{"unknown format", CompileRequest{Sources: map[string]string{"a.ts": ""}, Formats: []string{"xml"}}, http.StatusBadRequest},
		{"too large", CompileRequest{Sources: map[string]string{"a.ts": strings.Repeat("x", 200)}}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/model/compile", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHandleValidate(t *testing.T) {
	router := setupTestRouter(t)
	sources := map[string]string{"src/signup.ts": signupSource}

	w := do(t, router, http.MethodPost, "/v1/model/validate", ValidateRequest{
		Sources: sources,
		Entity:  "Signup",
		Value:   map[string]any{"email": "ada@example.com", "age": 36},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[ValidateResponse](t, w).Valid)

	w = do(t, router, http.MethodPost, "/v1/model/validate", ValidateRequest{
		Sources: sources,
		Entity:  "Signup",
		Value:   map[string]any{"email": "nope", "age": 9},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ValidateResponse](t, w)
	assert.False(t, resp.Valid)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "Signup.age", resp.Errors[0].Path)
	assert.Equal(t, "Signup.email", resp.Errors[1].Path)

	w = do(t, router, http.MethodPost, "/v1/model/validate", ValidateRequest{Sources: sources, Entity: "Missing", Value: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_ENTITY", decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodPost, "/v1/model/validate", ValidateRequest{Entity: "Signup"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSnapshots_NotConfigured(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodGet, "/v1/model/snapshots", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SNAPSHOTS_NOT_AVAILABLE", decode[ErrorResponse](t, w).Code)
}

func TestSnapshots_Lifecycle(t *testing.T) {
	mgr := newTestManager(t)
	router := setupTestRouter(t, WithSnapshots(mgr))
	ctx := context.Background()

	base := model.NewRegistry()
	user := model.NewObject("User")
	user.AddField(&model.Field{Name: "id", Required: true, Type: &model.Reference{Name: "string"}})
	require.NoError(t, base.Add(user))
	require.NoError(t, base.Add(&model.BasicScalar{Name: "string"}))
	a, err := mgr.Save(ctx, base, snapshot.SaveOptions{ProjectRoot: "/app", Pattern: "model"})
	require.NoError(t, err)

	target := model.NewRegistry()
	user2 := model.NewObject("User")
	user2.AddField(&model.Field{Name: "id", Required: true, Type: &model.Reference{Name: "string"}})
	user2.AddField(&model.Field{Name: "name", Type: &model.Reference{Name: "string"}})
	require.NoError(t, target.Add(user2))
	require.NoError(t, target.Add(&model.BasicScalar{Name: "string"}))
	b, err := mgr.Save(ctx, target, snapshot.SaveOptions{ProjectRoot: "/app", Pattern: "model"})
	require.NoError(t, err)

	w := do(t, router, http.MethodGet, "/v1/model/snapshots?project_root=/app&pattern=model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[ListSnapshotsResponse](t, w).Snapshots, 2)

	w = do(t, router, http.MethodGet, "/v1/model/snapshots/"+a.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	loaded := decode[LoadSnapshotResponse](t, w)
	assert.Equal(t, a.SnapshotID, loaded.Metadata.SnapshotID)
	assert.Len(t, loaded.Registry.Entities, 2)

	w = do(t, router, http.MethodGet, "/v1/model/snapshots/diff?base="+a.SnapshotID+"&target="+b.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	diff := decode[SnapshotDiffResponse](t, w).Diff
	require.Len(t, diff.EntitiesModified, 1)
	assert.Equal(t, []string{"name"}, diff.EntitiesModified[0].Added)

	w = do(t, router, http.MethodGet, "/v1/model/snapshots/diff?base="+a.SnapshotID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/v1/model/snapshots/merge", MergeSnapshotsRequest{SnapshotIDs: []string{a.SnapshotID, b.SnapshotID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	merged := decode[model.SerializableRegistry](t, w)
	assert.Len(t, merged.Entities, 2)

	w = do(t, router, http.MethodPost, "/v1/model/validate", ValidateRequest{
		SnapshotID: b.SnapshotID,
		Entity:     "User",
		Value:      map[string]any{"name": "Ada"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[ValidateResponse](t, w).Valid)

	w = do(t, router, http.MethodDelete, "/v1/model/snapshots/"+a.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/v1/model/snapshots/"+a.SnapshotID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SNAPSHOT_NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestSnapshots_MergeConflict(t *testing.T) {
	mgr := newTestManager(t)
	router := setupTestRouter(t, WithSnapshots(mgr))
	ctx := context.Background()

	objects := model.NewRegistry()
	require.NoError(t, objects.Add(model.NewObject("Thing")))
	enums := model.NewRegistry()
	require.NoError(t, enums.Add(model.NewEnum("Thing")))

	a, err := mgr.Save(ctx, objects, snapshot.SaveOptions{ProjectRoot: "/app", Pattern: "a"})
	require.NoError(t, err)
	b, err := mgr.Save(ctx, enums, snapshot.SaveOptions{ProjectRoot: "/app", Pattern: "b"})
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/v1/model/snapshots/merge", MergeSnapshotsRequest{SnapshotIDs: []string{a.SnapshotID, b.SnapshotID}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/v1/model/snapshots/merge", MergeSnapshotsRequest{SnapshotIDs: []string{"0123456789abcdef"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := setupTestRouter(t, WithSnapshots(newTestManager(t)))

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.True(t, health.Snapshots)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tsmodel_api_request_duration_seconds")
}
