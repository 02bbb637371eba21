// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists compiled registries in BadgerDB and diffs
// them.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tsmodel/services/tsmodel/merge"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// BadgerDB key layout for registry snapshots.
const (
	keyPrefixSnap      = "model:snap:"
	keyPrefixSnapIndex = "model:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keyInfixLatest     = ":latest:"
)

// ErrNotFound is returned when a snapshot or latest pointer does not exist.
var ErrNotFound = errors.New("snapshot not found")

// ErrIntegrity is returned when stored data does not match its hash.
var ErrIntegrity = errors.New("snapshot integrity check failed")

var tracer = otel.Tracer("tsmodel.snapshot")

// Metadata describes a saved registry snapshot.
type Metadata struct {
	// SnapshotID is SHA256(ProjectRoot:Pattern:RegistryHash:CreatedAtNano)[:16].
	SnapshotID string `json:"snapshot_id"`

	// ProjectRoot is the project the registry was compiled from.
	ProjectRoot string `json:"project_root"`

	// ProjectHash is SHA256(ProjectRoot)[:16] for key grouping.
	ProjectHash string `json:"project_hash"`

	// Pattern is the config pattern the registry was compiled for.
	Pattern string `json:"pattern"`

	// RegistryHash is the registry's content hash.
	RegistryHash string `json:"registry_hash"`

	// RunID correlates the snapshot with compile logs.
	RunID string `json:"run_id,omitempty"`

	Label string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	Stats model.RegistryStats `json:"stats"`

	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip-compressed JSON payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA256 hash of the compressed payload.
	ContentHash string `json:"content_hash"`
}

// SaveOptions identifies what a snapshot belongs to.
type SaveOptions struct {
	ProjectRoot string
	Pattern     string
	Label       string
	RunID       string
}

// Manager saves and loads registry snapshots.
//
// Description:
//
//	Registries are stored as gzip-compressed JSON of their serializable
//	form. Each (project, pattern) pair has a latest pointer.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type Manager struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over an opened BadgerDB.
//
// Inputs:
//
//	db - An opened BadgerDB instance. Must not be nil. The caller closes it.
//	logger - Logger for diagnostic output. Must not be nil.
func NewManager(db *badger.DB, logger *slog.Logger) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Manager{db: db, logger: logger, now: time.Now}, nil
}

// Open opens a BadgerDB at dir, or in memory when dir is empty.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return db, nil
}

// Save persists reg.
//
// Key Schema:
//
//	model:snap:{projectHash}:{snapshotID}:data     → gzip(JSON(SerializableRegistry))
//	model:snap:{projectHash}:{snapshotID}:meta     → JSON(Metadata)
//	model:snap:{projectHash}:latest:{pattern}      → snapshotID
//	model:snap:index:{snapshotID}                  → projectHash
func (m *Manager) Save(ctx context.Context, reg *model.Registry, opts SaveOptions) (*Metadata, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
	ctx, span := tracer.Start(ctx, "snapshot.Manager.Save",
		trace.WithAttributes(attribute.String("pattern", opts.Pattern)),
	)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, spanError(span, err)
	}

	sr := reg.ToSerializable()
	jsonData, err := json.Marshal(sr)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("marshaling registry: %w", err))
	}
	regHash := hashBytes(jsonData)

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("creating gzip writer: %w", err))
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, spanError(span, fmt.Errorf("compressing registry: %w", err))
	}
	if err := gw.Close(); err != nil {
		return nil, spanError(span, fmt.Errorf("closing gzip writer: %w", err))
	}
	compressedData := compressed.Bytes()

	created := m.now()
	projectHash := ProjectHash(opts.ProjectRoot)
	snapshotID := hashString(fmt.Sprintf("%s:%s:%s:%d", opts.ProjectRoot, opts.Pattern, regHash, created.UnixNano()))[:16]

	meta := &Metadata{
		SnapshotID:     snapshotID,
		ProjectRoot:    opts.ProjectRoot,
		ProjectHash:    projectHash,
		Pattern:        opts.Pattern,
		RegistryHash:   regHash,
		RunID:          opts.RunID,
		Label:          opts.Label,
		CreatedAtMilli: created.UnixMilli(),
		Stats:          reg.Stats(),
		SchemaVersion:  model.SchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("marshaling metadata: %w", err))
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey(projectHash, snapshotID)), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey(projectHash, snapshotID)), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey(projectHash, opts.Pattern)), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(keyPrefixSnapIndex+snapshotID), []byte(projectHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, spanError(span, fmt.Errorf("writing snapshot to badger: %w", err))
	}

	span.SetAttributes(
		attribute.String("snapshot_id", snapshotID),
		attribute.Int64("compressed_size", meta.CompressedSize),
	)
	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("pattern", opts.Pattern),
		slog.Int("entities", meta.Stats.Total),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a snapshot by ID.
//
// Outputs:
//
//	*model.Registry - The reconstructed registry.
//	*Metadata - The snapshot metadata.
//	error - Wraps ErrNotFound for unknown IDs and ErrIntegrity for
//	corrupted data.
func (m *Manager) Load(ctx context.Context, snapshotID string) (*model.Registry, *Metadata, error) {
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	ctx, span := tracer.Start(ctx, "snapshot.Manager.Load",
		trace.WithAttributes(attribute.String("snapshot_id", snapshotID)),
	)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, nil, spanError(span, err)
	}

	projectHash, err := m.readString(keyPrefixSnapIndex + snapshotID)
	if err != nil {
		return nil, nil, spanError(span, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err))
	}
	reg, meta, err := m.loadByKeys(projectHash, snapshotID)
	if err != nil {
		return nil, nil, spanError(span, err)
	}
	return reg, meta, nil
}

// LoadLatest loads the most recent snapshot of a project's pattern.
func (m *Manager) LoadLatest(ctx context.Context, projectHash, pattern string) (*model.Registry, *Metadata, error) {
	if projectHash == "" {
		return nil, nil, fmt.Errorf("project hash must not be empty")
	}
	ctx, span := tracer.Start(ctx, "snapshot.Manager.LoadLatest",
		trace.WithAttributes(attribute.String("pattern", pattern)),
	)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return nil, nil, spanError(span, err)
	}

	snapshotID, err := m.readString(latestKey(projectHash, pattern))
	if err != nil {
		return nil, nil, spanError(span, fmt.Errorf("reading latest pointer for %s/%s: %w", projectHash, pattern, err))
	}
	reg, meta, err := m.loadByKeys(projectHash, snapshotID)
	if err != nil {
		return nil, nil, spanError(span, err)
	}
	return reg, meta, nil
}

// List returns metadata newest first, optionally filtered by project hash
// and pattern. A limit <= 0 defaults to 100.
func (m *Manager) List(ctx context.Context, projectHash, pattern string, limit int) ([]*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	prefix := keyPrefixSnap
	if projectHash != "" {
		prefix = keyPrefixSnap + projectHash + ":"
	}

	var results []*Metadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) || strings.Contains(key, keyInfixLatest) {
				continue
			}

			var meta Metadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			if pattern != "" && meta.Pattern != pattern {
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot. If it was the latest of its pattern, the
// latest pointer is removed too.
func (m *Manager) Delete(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	projectHash, err := m.readString(keyPrefixSnapIndex + snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	_, meta, err := m.loadByKeys(projectHash, snapshotID)
	if err != nil && !errors.Is(err, ErrIntegrity) {
		return err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{
			dataKey(projectHash, snapshotID),
			metaKey(projectHash, snapshotID),
			keyPrefixSnapIndex + snapshotID,
		} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		if meta == nil {
			return nil
		}

		latest := []byte(latestKey(projectHash, meta.Pattern))
		item, err := txn.Get(latest)
		if err != nil {
			return nil
		}
		var current string
		_ = item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
		if current == snapshotID {
			if err := txn.Delete(latest); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// Merge loads the given snapshots and merges them in order into one
// registry.
//
// Outputs:
//
//	error - A load failure, or a *merge.Error when two snapshots define
//	the same name differently.
func (m *Manager) Merge(ctx context.Context, snapshotIDs ...string) (*model.Registry, error) {
	ctx, span := tracer.Start(ctx, "snapshot.Manager.Merge",
		trace.WithAttributes(attribute.Int("snapshots", len(snapshotIDs))),
	)
	defer span.End()

	out := model.NewRegistry()
	for _, id := range snapshotIDs {
		reg, _, err := m.Load(ctx, id)
		if err != nil {
			return nil, spanError(span, err)
		}
		if err := merge.Registries(out, reg); err != nil {
			return nil, spanError(span, fmt.Errorf("merging snapshot %s: %w", id, err))
		}
	}
	return out, nil
}

func (m *Manager) loadByKeys(projectHash, snapshotID string) (*model.Registry, *Metadata, error) {
	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey(projectHash, snapshotID)))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, notFound(err))
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}
		metaItem, err := txn.Get([]byte(metaKey(projectHash, snapshotID)))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, notFound(err))
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, &meta, fmt.Errorf("%w: %s: expected hash %s, got %s", ErrIntegrity, snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var sr model.SerializableRegistry
	if err := json.Unmarshal(jsonData, &sr); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling registry for %s: %w", snapshotID, err)
	}
	reg, err := model.FromSerializable(&sr)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing registry for %s: %w", snapshotID, err)
	}
	return reg, &meta, nil
}

func (m *Manager) readString(key string) (string, error) {
	var value string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return notFound(err)
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, err
}

// ProjectHash returns SHA256(projectRoot)[:16] for use as a key prefix.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

func dataKey(projectHash, snapshotID string) string {
	return keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixData
}

func metaKey(projectHash, snapshotID string) string {
	return keyPrefixSnap + projectHash + ":" + snapshotID + keySuffixMeta
}

func latestKey(projectHash, pattern string) string {
	return keyPrefixSnap + projectHash + keyInfixLatest + pattern
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
