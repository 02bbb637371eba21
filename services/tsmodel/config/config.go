// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads tsmodel.config.yaml.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// FileName is the project config file name.
const FileName = "tsmodel.config.yaml"

// MaxFileSize bounds the config file size.
const MaxFileSize = 1 << 20

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full compiler configuration.
//
// Description:
//
//	Built-in defaults come from the embedded defaults.yaml. A project file
//	overrides any key it sets; lists are replaced, not appended.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// Patterns are compiled independently, each into its own registry.
	Patterns []Pattern `yaml:"patterns" validate:"required,min=1,unique=Name,dive"`

	// Compiler holds module resolution settings.
	Compiler typesys.CompilerOptions `yaml:"compiler"`

	// Scalars are the built-in basic scalar names.
	Scalars []string `yaml:"scalars" validate:"dive,required"`

	Output    Output    `yaml:"output"`
	Snapshots Snapshots `yaml:"snapshots"`
	Parser    Parser    `yaml:"parser"`
}

// Pattern is one named set of source globs.
type Pattern struct {
	// Name identifies the pattern in output file names and snapshots.
	Name string `yaml:"name" validate:"required,excludesall=/\\"`

	// Include globs, relative to the project root. "**" crosses directories.
	Include []string `yaml:"include" validate:"required,min=1,dive,required,glob"`

	// Exclude globs applied after Include.
	Exclude []string `yaml:"exclude" validate:"dive,required,glob"`
}

// Output controls emitted files.
type Output struct {
	// Dir is the output directory, relative to the project root.
	Dir string `yaml:"dir" validate:"required"`

	// Formats are emit formats: json, yaml, ts, graphql.
	Formats []string `yaml:"formats" validate:"required,min=1,dive,oneof=json yaml ts graphql"`

	// Merge merges all pattern registries into one output.
	Merge bool `yaml:"merge"`
}

// Snapshots controls registry persistence.
type Snapshots struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the badger directory, relative to the project root.
	Dir string `yaml:"dir" validate:"required_if=Enabled true"`
}

// Parser bounds parsing.
type Parser struct {
	// MaxFileSize is the largest source file parsed, in bytes.
	MaxFileSize int64 `yaml:"max_file_size" validate:"gt=0"`

	// Workers is the parse parallelism. Zero uses one worker per CPU.
	Workers int `yaml:"workers" validate:"gte=0,lte=256"`

	// MaxDeclarations caps top-level declarations per pattern. Zero keeps
	// the index default.
	MaxDeclarations int `yaml:"max_declarations" validate:"gte=0"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Parse(context.Background(), nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads FileName from projectRoot.
//
// Description:
//
//	A missing file is not an error: the built-in defaults are returned.
//	Relative directories in the result stay relative to projectRoot.
//
// Inputs:
//
//	ctx - Context for tracing.
//	projectRoot - Directory holding the config file.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Read, parse or validation failure. Validation failures wrap
//	ErrInvalid.
func Load(ctx context.Context, projectRoot string) (*Config, error) {
	return LoadFile(ctx, filepath.Join(projectRoot, FileName))
}

// LoadFile reads a config file by path. A missing file yields defaults.
func LoadFile(ctx context.Context, configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("no config file, using defaults", slog.String("path", configPath))
			return Parse(ctx, nil)
		}
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	cfg, err := Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// Parse overlays data onto the built-in defaults and validates the result.
// Nil data yields the defaults.
func Parse(ctx context.Context, data []byte) (*Config, error) {
	_, span := otel.Tracer("tsmodel.config").Start(ctx, "config.Parse")
	defer span.End()

	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config exceeds maximum size (%d > %d)", len(data), MaxFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("patterns", len(cfg.Patterns)),
		attribute.StringSlice("formats", cfg.Output.Formats),
		attribute.Bool("snapshots", cfg.Snapshots.Enabled),
	)
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := newValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = describe(fe)
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// Pattern returns the pattern named name.
func (c *Config) Pattern(name string) (Pattern, bool) {
	for _, p := range c.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		_, err := path.Match(fl.Field().String(), "")
		return err == nil
	})
	return v
}

// describe renders a field error with its yaml path.
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return ns + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", ns, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", ns, fe.Param(), fe.Value())
	case "glob":
		return fmt.Sprintf("%s is not a valid glob: %v", ns, fe.Value())
	case "unique":
		return ns + " must have unique names"
	default:
		return fmt.Sprintf("%s failed %s=%s", ns, fe.Tag(), fe.Param())
	}
}
