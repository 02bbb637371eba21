// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/merge"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestManager creates a Manager with an in-memory DB and a clock that
// advances one second per snapshot.
func newTestManager(t *testing.T) (*Manager, *badger.DB) {
	t.Helper()
	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewManager(db, logger)
	require.NoError(t, err)

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return mgr, db
}

func userRegistry(t *testing.T, fields ...string) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	user := model.NewObject("User")
	user.Location = ast.Location{FilePath: "src/user.ts", Line: 1}
	for _, f := range fields {
		user.AddField(&model.Field{Name: f, Required: true, Type: &model.Reference{Name: "string"}})
	}
	require.NoError(t, reg.Add(user))
	require.NoError(t, reg.Add(&model.BasicScalar{Name: "string"}))
	return reg
}

func TestNewManager_NilArguments(t *testing.T) {
	_, err := NewManager(nil, slog.Default())
	assert.Error(t, err)
	_, err = NewManager(newTestDB(t), nil)
	assert.Error(t, err)
}

func TestManager_SaveAndLoad(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	reg := userRegistry(t, "id", "email")

	meta, err := mgr.Save(ctx, reg, SaveOptions{ProjectRoot: "/work/app", Pattern: "model", Label: "v1", RunID: "run-1"})
	require.NoError(t, err)
	assert.Len(t, meta.SnapshotID, 16)
	assert.Equal(t, ProjectHash("/work/app"), meta.ProjectHash)
	assert.Equal(t, 2, meta.Stats.Total)
	assert.Equal(t, 2, meta.Stats.Fields)
	assert.Equal(t, model.SchemaVersion, meta.SchemaVersion)
	assert.Positive(t, meta.CompressedSize)

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, meta, loadedMeta)

	want, err := reg.Hash()
	require.NoError(t, err)
	got, err := loaded.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_LoadUnknown(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, _, err := mgr.Load(context.Background(), "0123456789abcdef")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = mgr.LoadLatest(context.Background(), ProjectHash("/nowhere"), "model")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_LatestPerPattern(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	root := "/work/app"

	first, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: root, Pattern: "model"})
	require.NoError(t, err)
	second, err := mgr.Save(ctx, userRegistry(t, "id", "name"), SaveOptions{ProjectRoot: root, Pattern: "model"})
	require.NoError(t, err)
	other, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: root, Pattern: "admin"})
	require.NoError(t, err)

	_, meta, err := mgr.LoadLatest(ctx, ProjectHash(root), "model")
	require.NoError(t, err)
	assert.Equal(t, second.SnapshotID, meta.SnapshotID)

	_, meta, err = mgr.LoadLatest(ctx, ProjectHash(root), "admin")
	require.NoError(t, err)
	assert.Equal(t, other.SnapshotID, meta.SnapshotID)

	// Deleting the latest removes the pointer; older snapshots stay.
	require.NoError(t, mgr.Delete(ctx, second.SnapshotID))
	_, _, err = mgr.LoadLatest(ctx, ProjectHash(root), "model")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = mgr.Load(ctx, first.SnapshotID)
	assert.NoError(t, err)
}

func TestManager_List(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	a, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a", Pattern: "model"})
	require.NoError(t, err)
	b, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a", Pattern: "admin"})
	require.NoError(t, err)
	c, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/b", Pattern: "model"})
	require.NoError(t, err)

	all, err := mgr.List(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.SnapshotID, b.SnapshotID, a.SnapshotID},
		[]string{all[0].SnapshotID, all[1].SnapshotID, all[2].SnapshotID}, "newest first")

	projectA, err := mgr.List(ctx, ProjectHash("/a"), "", 0)
	require.NoError(t, err)
	assert.Len(t, projectA, 2)

	models, err := mgr.List(ctx, "", "model", 0)
	require.NoError(t, err)
	assert.Len(t, models, 2)

	limited, err := mgr.List(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestManager_Delete(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	meta, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a", Pattern: "model"})
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, meta.SnapshotID))
	_, _, err = mgr.Load(ctx, meta.SnapshotID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, mgr.Delete(ctx, meta.SnapshotID), ErrNotFound)

	list, err := mgr.List(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_IntegrityCheck(t *testing.T) {
	mgr, db := newTestManager(t)
	ctx := context.Background()
	meta, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a", Pattern: "model"})
	require.NoError(t, err)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dataKey(meta.ProjectHash, meta.SnapshotID)), []byte("tampered"))
	}))

	_, _, err = mgr.Load(ctx, meta.SnapshotID)
	assert.ErrorIs(t, err, ErrIntegrity)

	// A corrupted snapshot can still be deleted.
	assert.NoError(t, mgr.Delete(ctx, meta.SnapshotID))
}

func TestManager_Merge(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	a, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a", Pattern: "model"})
	require.NoError(t, err)
	b, err := mgr.Save(ctx, userRegistry(t, "id", "email"), SaveOptions{ProjectRoot: "/a", Pattern: "admin"})
	require.NoError(t, err)

	reg, err := mgr.Merge(ctx, a.SnapshotID, b.SnapshotID)
	require.NoError(t, err)
	e, ok := reg.Get("User")
	require.True(t, ok)
	assert.Len(t, e.(*model.Object).Fields, 2)

	conflicting := model.NewRegistry()
	require.NoError(t, conflicting.Add(model.NewEnum("User")))
	c, err := mgr.Save(ctx, conflicting, SaveOptions{ProjectRoot: "/a", Pattern: "other"})
	require.NoError(t, err)

	_, err = mgr.Merge(ctx, a.SnapshotID, c.SnapshotID)
	assert.ErrorIs(t, err, merge.ErrKindMismatch)
}

func TestManager_Cancelled(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Save(ctx, userRegistry(t, "id"), SaveOptions{ProjectRoot: "/a"})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = mgr.List(ctx, "", "", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
