// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the CLI in-process and returns stdout, stderr and the error.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

const accountSource = `/** @tsModel */ export interface Account {
  /** @assert {length: 3} */
  code: string;
  /** @default 0 */
  balance?: number;
  tier: Tier;
}
export enum Tier { Free = 'free', Pro = 'pro' }`

func TestCLI_Version(t *testing.T) {
	out, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "tsmodel dev") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCLI_InvalidGlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"log level", []string{"--log-level", "loud", "version"}, "--log-level"},
		{"log format", []string{"--log-format", "xml", "version"}, "--log-format"},
		{"trace exporter", []string{"--trace", "zipkin", "version"}, "--trace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestCLI_Compile(t *testing.T) {
	root := writeProject(t, map[string]string{"src/account.ts": accountSource})

	out, _, err := run(t, "", "-C", root, "compile", "--format", "json,graphql")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, want := range []string{"Compiled 1 pattern(s)", "generated/model.json", "generated/model.graphql"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	sdl, err := os.ReadFile(filepath.Join(root, "generated", "model.graphql"))
	if err != nil {
		t.Fatalf("reading SDL: %v", err)
	}
	if !strings.Contains(string(sdl), "enum Tier {") {
		t.Errorf("SDL missing Tier enum:\n%s", sdl)
	}
}

func TestCLI_CompileDryRunAndErrors(t *testing.T) {
	root := writeProject(t, map[string]string{"src/account.ts": accountSource})

	if _, _, err := run(t, "", "-C", root, "compile", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "generated")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run wrote output: %v", err)
	}

	if _, _, err := run(t, "", "-C", root, "compile", "admin"); err == nil || !strings.Contains(err.Error(), `unknown pattern "admin"`) {
		t.Errorf("expected unknown pattern error, got %v", err)
	}
	if _, _, err := run(t, "", "-C", root, "compile", "--format", "xml"); err == nil {
		t.Error("expected invalid format error")
	}
}

func TestCLI_Validate(t *testing.T) {
	root := writeProject(t, map[string]string{"src/account.ts": accountSource})

	out, _, err := run(t, `{"code": "ABC", "tier": "pro"}`, "-C", root, "validate", "Account", "--print")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, `"balance": 0`) {
		t.Errorf("default not applied:\n%s", out)
	}

	docPath := filepath.Join(root, "bad.yaml")
	if err := os.WriteFile(docPath, []byte("code: ABCD\ntier: gold\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = run(t, "", "-C", root, "validate", "Account", docPath)
	if !errors.Is(err, errInvalidInput) {
		t.Fatalf("expected errInvalidInput, got %v", err)
	}
	for _, want := range []string{"Account.code", "Account.tier"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_Snapshots(t *testing.T) {
	root := writeProject(t, map[string]string{"src/account.ts": accountSource})

	if _, _, err := run(t, "", "-C", root, "compile", "--snapshot", "--label", "first", "--dry-run"); err != nil {
		t.Fatalf("first compile: %v", err)
	}

	updated := strings.Replace(accountSource, "tier: Tier;", "tier: Tier;\n  owner?: string;", 1)
	if err := os.WriteFile(filepath.Join(root, "src", "account.ts"), []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, "", "-C", root, "compile", "--snapshot", "--dry-run"); err != nil {
		t.Fatalf("second compile: %v", err)
	}

	out, _, err := run(t, "", "-C", root, "snapshot", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if lines := strings.Count(strings.TrimSpace(out), "\n"); lines != 2 {
		t.Errorf("expected header and 2 rows, got:\n%s", out)
	}
	if !strings.Contains(out, "first") {
		t.Errorf("label missing from list:\n%s", out)
	}

	out, _, err = run(t, "", "-C", root, "snapshot", "show", "latest:model")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Account") {
		t.Errorf("show output missing entity names:\n%s", out)
	}

	firstID := firstColumn(t, root, 2)
	out, _, err = run(t, "", "-C", root, "snapshot", "diff", firstID, "latest")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "~ Account (object: fields_changed)") || !strings.Contains(out, "+ owner") {
		t.Errorf("unexpected diff:\n%s", out)
	}

	out, _, err = run(t, "", "-C", root, "snapshot", "merge", firstID, "latest", "--format", "graphql")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "owner: String") {
		t.Errorf("merged SDL missing owner field:\n%s", out)
	}

	if _, _, err := run(t, "", "-C", root, "snapshot", "delete", firstID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := run(t, "", "-C", root, "snapshot", "show", firstID); err == nil {
		t.Error("expected error showing deleted snapshot")
	}
}

// firstColumn returns the ID in row n (1-based, after the header) of
// snapshot list.
func firstColumn(t *testing.T, root string, n int) string {
	t.Helper()
	out, _, err := run(t, "", "-C", root, "snapshot", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) <= n {
		t.Fatalf("list has %d rows, want at least %d:\n%s", len(lines)-1, n, out)
	}
	return strings.Fields(lines[n])[0]
}
