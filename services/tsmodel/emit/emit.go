// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package emit writes a resolved model to disk in the configured formats.
package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/schema"
)

// Format is an output format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatTS      Format = "ts"
	FormatGraphQL Format = "graphql"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatYAML, FormatTS, FormatGraphQL}

// ErrUnknownFormat is returned for a format outside Formats.
var ErrUnknownFormat = errors.New("unknown output format")

// header marks generated files.
const header = "Code generated by tsmodel. DO NOT EDIT."

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatTS:
		return ".generated.ts"
	case FormatGraphQL:
		return ".graphql"
	default:
		return "." + string(f)
	}
}

// Render encodes reg in format f.
func Render(reg *model.Registry, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(reg.ToSerializable(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		buf.WriteString("# " + header + "\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(reg.ToSerializable()); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatTS:
		return renderModule(reg)
	case FormatGraphQL:
		sdl, err := schema.Generate(reg)
		if err != nil {
			return nil, fmt.Errorf("generating schema: %w", err)
		}
		return []byte("# " + header + "\n\n" + sdl), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// renderModule embeds the registry as a constant object literal. JSON is
// a valid TypeScript expression, so no separate printer is needed.
func renderModule(reg *model.Registry) ([]byte, error) {
	data, err := json.MarshalIndent(reg.ToSerializable(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding module: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("// " + header + "\n\n")
	buf.WriteString("export const model = ")
	buf.Write(data)
	buf.WriteString(" as const;\n\n")
	buf.WriteString("export type Model = typeof model;\n")
	return buf.Bytes(), nil
}

// WriteFiles renders reg in each format and writes dir/base+extension.
//
// Description:
//
//	Each file is written to a temporary sibling and renamed into place, so
//	readers never see a partial file. Returns the written paths in format
//	order. Stops at the first failure.
func WriteFiles(ctx context.Context, reg *model.Registry, dir, base string, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		data, err := Render(reg, f)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, base+f.Extension())
		if err := writeAtomic(path, data); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
