// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Patterns, 1)
	assert.Equal(t, "model", cfg.Patterns[0].Name)
	assert.Equal(t, []string{"src/**/*.ts"}, cfg.Patterns[0].Include)
	assert.Contains(t, cfg.Scalars, "Int")
	assert.Equal(t, "generated", cfg.Output.Dir)
	assert.Equal(t, []string{"json", "ts", "graphql"}, cfg.Output.Formats)
	assert.False(t, cfg.Snapshots.Enabled)
	assert.Equal(t, int64(10<<20), cfg.Parser.MaxFileSize)
	assert.Equal(t, "node", cfg.Compiler.ModuleResolution)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse(context.Background(), []byte(`
patterns:
  - name: api
    include: ["api/**/*.ts"]
  - name: admin
    include: ["admin/*.ts"]
compiler:
  base_url: .
  paths:
    "@app/*": ["src/*"]
output:
  formats: [yaml]
`))
	require.NoError(t, err)

	require.Len(t, cfg.Patterns, 2)
	p, ok := cfg.Pattern("admin")
	require.True(t, ok)
	assert.Equal(t, []string{"admin/*.ts"}, p.Include)
	assert.Equal(t, []string{"src/*"}, cfg.Compiler.Paths["@app/*"])
	assert.Equal(t, []string{"yaml"}, cfg.Output.Formats)
	assert.Equal(t, "generated", cfg.Output.Dir, "unset keys keep their defaults")
	assert.Equal(t, "es2022", cfg.Compiler.Target)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no patterns",
			yaml: "patterns: []",
			want: "patterns needs at least 1 entries",
		},
		{
			name: "pattern without include",
			yaml: "patterns: [{name: a}]",
			want: "patterns[0].include is required",
		},
		{
			name: "bad glob",
			yaml: `patterns: [{name: a, include: ["src/[.ts"]}]`,
			want: "patterns[0].include[0] is not a valid glob",
		},
		{
			name: "duplicate pattern names",
			yaml: `patterns: [{name: a, include: ["x"]}, {name: a, include: ["y"]}]`,
			want: "patterns must have unique names",
		},
		{
			name: "pattern name with slash",
			yaml: `patterns: [{name: a/b, include: ["x"]}]`,
			want: "patterns[0].name failed excludesall",
		},
		{
			name: "unknown format",
			yaml: "output: {formats: [xml]}",
			want: "output.formats[0] must be one of [json yaml ts graphql], got xml",
		},
		{
			name: "snapshots without dir",
			yaml: "snapshots: {enabled: true, dir: ''}",
			want: "snapshots.dir is required",
		},
		{
			name: "negative workers",
			yaml: "parser: {workers: -1}",
			want: "parser.workers failed gte=0",
		},
		{
			name: "negative declaration cap",
			yaml: "parser: {max_declarations: -5}",
			want: "parser.max_declarations failed gte=0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(context.Background(), []byte("patterns: {"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestParse_TooLarge(t *testing.T) {
	_, err := Parse(context.Background(), make([]byte, MaxFileSize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err, "a missing file yields defaults")
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("snapshots: {enabled: true}\n"), 0o644))
	cfg, err = Load(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, cfg.Snapshots.Enabled)
	assert.Equal(t, ".tsmodel/snapshots", cfg.Snapshots.Dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("output: {formats: [xml]}\n"), 0o644))
	_, err = Load(context.Background(), dir)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), FileName)
}
