// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/validate"
)

// errInvalidInput is returned when validation finds errors, so the
// process exits non-zero after the errors are printed.
var errInvalidInput = errors.New("input is invalid")

func newValidateCommand(a *app) *cobra.Command {
	var (
		pattern    string
		snapshotID string
		printValue bool
	)
	cmd := &cobra.Command{
		Use:   "validate <entity> [file]",
		Short: "Validate a JSON or YAML document against a model entity",
		Long: `Validate reads a document from file, or stdin when file is omitted or "-",
and checks it against the named entity: structure first, then @assert
rules. Defaults declared with @default are applied to missing fields.`,
		Example: `  tsmodel validate Signup signup.json
  cat user.yaml | tsmodel validate User --pattern admin
  tsmodel validate User user.json --snapshot 3f2a9c01d4e5b6a7 --print`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "-"
			if len(args) == 2 {
				file = args[1]
			}
			value, err := readDocument(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var reg *model.Registry
			if snapshotID != "" {
				cfg, err := a.loadConfig(cmd.Context())
				if err != nil {
					return err
				}
				mgr, closer, err := a.openSnapshots(cfg)
				if err != nil {
					return fmt.Errorf("opening snapshot store: %w", err)
				}
				defer closer.Close()
				if reg, _, err = mgr.Load(cmd.Context(), snapshotID); err != nil {
					return err
				}
			} else {
				pr, err := a.compileProject(cmd, pattern)
				if err != nil {
					return err
				}
				reg = pr.Registry
			}

			out, err := validate.New(reg, validate.WithLogger(a.logger)).Validate(cmd.Context(), args[0], value)
			var fieldErrs validate.Errors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					a.ui.failf("%s", fe)
				}
				return fmt.Errorf("%w: %d error(s)", errInvalidInput, len(fieldErrs))
			}
			if err != nil {
				return err
			}

			if printValue {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			a.ui.okf("%s is valid", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Compile only this pattern (default: all patterns merged)")
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Validate against a stored snapshot instead of compiling")
	cmd.Flags().BoolVar(&printValue, "print", false, "Print the validated value with defaults applied")
	return cmd
}

// readDocument decodes a JSON or YAML document. Files ending in .json are
// parsed as JSON; everything else, stdin included, as YAML, which also
// accepts JSON.
func readDocument(stdin io.Reader, file string) (any, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	var value any
	ext := strings.ToLower(filepath.Ext(file))
	if ext == ".json" {
		err = json.Unmarshal(data, &value)
	} else {
		err = yaml.Unmarshal(data, &value)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding input: %w", err)
	}
	return value, nil
}
