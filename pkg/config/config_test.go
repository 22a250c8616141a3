// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSchemaConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid config parses schema and prompt", func(t *testing.T) {
		path := writeFile(t, dir, "schema.json", `{
			"schema": {
				"expertise": ["expert", "novice"],
				"time_available": ["rushed", "relaxed"]
			},
			"prompt": {
				"expertise": "Adapt depth of explanation to the user's expertise."
			}
		}`)

		cfg, err := LoadSchemaConfig(path)
		if err != nil {
			t.Fatalf("LoadSchemaConfig: %v", err)
		}

		fields := cfg.Fields()
		if len(fields) != 2 || fields[0] != "expertise" || fields[1] != "time_available" {
			t.Errorf("Fields() = %v, want sorted [expertise time_available]", fields)
		}
		if !cfg.HasField("expertise") {
			t.Error("HasField(expertise) = false, want true")
		}
		if cfg.HasField("favorite_color") {
			t.Error("HasField(favorite_color) = true, want false")
		}
		if got := cfg.Instruction("expertise"); got == "" {
			t.Error("Instruction(expertise) is empty")
		}
		if got := cfg.Instruction("time_available"); got != "" {
			t.Errorf("Instruction(time_available) = %q, want empty", got)
		}
	})

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		_, err := LoadSchemaConfig(filepath.Join(dir, "missing.json"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("malformed JSON returns ErrConfigInvalid", func(t *testing.T) {
		path := writeFile(t, dir, "bad.json", `{"schema": `)
		_, err := LoadSchemaConfig(path)
		if !errors.Is(err, ErrConfigInvalid) {
			t.Errorf("error = %v, want ErrConfigInvalid", err)
		}
	})

	t.Run("empty schema returns ErrConfigInvalid", func(t *testing.T) {
		path := writeFile(t, dir, "empty.json", `{"schema": {}, "prompt": {}}`)
		_, err := LoadSchemaConfig(path)
		if !errors.Is(err, ErrConfigInvalid) {
			t.Errorf("error = %v, want ErrConfigInvalid", err)
		}
	})
}

func TestSchemaConfig_AllowsValue(t *testing.T) {
	cfg := &SchemaConfig{
		Schema: map[string][]string{
			"expertise": {"expert", "novice"},
			"notes":     {},
		},
	}

	tests := []struct {
		name  string
		field string
		value string
		want  bool
	}{
		{"declared value allowed", "expertise", "expert", true},
		{"undeclared value rejected", "expertise", "wizard", false},
		{"unconstrained field accepts anything", "notes", "free text here", true},
		{"undeclared field rejected", "mood", "happy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.AllowsValue(tt.field, tt.value); got != tt.want {
				t.Errorf("AllowsValue(%q, %q) = %v, want %v", tt.field, tt.value, got, tt.want)
			}
		})
	}
}

func TestResolveOpenAIKey(t *testing.T) {
	dir := t.TempDir()

	t.Run("explicit path with key", func(t *testing.T) {
		path := writeFile(t, dir, "config.json", `{"openai_api_key": "sk-test-123"}`)
		key, err := ResolveOpenAIKey(path)
		if err != nil {
			t.Fatalf("ResolveOpenAIKey: %v", err)
		}
		if key != "sk-test-123" {
			t.Errorf("key = %q, want sk-test-123", key)
		}
	})

	t.Run("explicit path missing file", func(t *testing.T) {
		_, err := ResolveOpenAIKey(filepath.Join(dir, "nope.json"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("explicit path without key field", func(t *testing.T) {
		path := writeFile(t, dir, "nokey.json", `{"something_else": true}`)
		_, err := ResolveOpenAIKey(path)
		if !errors.Is(err, ErrConfigInvalid) {
			t.Errorf("error = %v, want ErrConfigInvalid", err)
		}
	})

	t.Run("falls back to working directory config.json", func(t *testing.T) {
		workDir := t.TempDir()
		writeFile(t, workDir, "config.json", `{"openai_api_key": "sk-cwd-456"}`)
		t.Chdir(workDir)

		key, err := ResolveOpenAIKey("")
		if err != nil {
			t.Fatalf("ResolveOpenAIKey: %v", err)
		}
		if key != "sk-cwd-456" {
			t.Errorf("key = %q, want sk-cwd-456", key)
		}
	})

	t.Run("no config anywhere returns ErrConfigNotFound", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := ResolveOpenAIKey("")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})
}
