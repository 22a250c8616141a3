// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides startup configuration for EchoMind components.
//
// Two resources are loaded here:
//
//   - The user schema config: a JSON document with a "schema" map
//     (profile field -> allowed values) and a "prompt" map (profile
//     field -> adaptation instruction injected into generation prompts).
//   - The OpenAI API key: resolved from an explicit config path or a
//     config.json in the working directory.
//
// Both are loaded once at startup into immutable values and passed by
// reference to the components that need them. There is no global mutable
// configuration state.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

// ErrConfigNotFound indicates a required configuration resource does not
// exist at any of the searched locations. Fatal at startup; not retried.
var ErrConfigNotFound = errors.New("configuration not found")

// ErrConfigInvalid indicates a configuration resource exists but could not
// be parsed or is missing required content. Fatal at startup; not retried.
var ErrConfigInvalid = errors.New("configuration invalid")

// =============================================================================
// Schema Configuration
// =============================================================================

// SchemaConfig holds the declarative user-profile schema and the per-field
// prompt instructions.
//
// # Description
//
// Schema maps each profile field name to its allowed value set. A field
// with an empty allowed set accepts free text. Prompt maps a field name to
// the instruction text used when assembling generation prompts.
//
// # Thread Safety
//
// SchemaConfig is immutable after LoadSchemaConfig returns and is shared
// read-only across components.
type SchemaConfig struct {
	Schema map[string][]string `json:"schema"`
	Prompt map[string]string   `json:"prompt"`
}

// LoadSchemaConfig reads and parses the schema config JSON at path.
//
// # Inputs
//
//   - path: Path to the schema config file. Must not be empty.
//
// # Outputs
//
//   - *SchemaConfig: Parsed, immutable schema configuration.
//   - error: ErrConfigNotFound if the file is missing, ErrConfigInvalid if
//     it cannot be parsed or declares no schema fields.
func LoadSchemaConfig(path string) (*SchemaConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: schema config path is empty", ErrConfigNotFound)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: schema config %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read schema config %s: %w", path, err)
	}

	var cfg SchemaConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse schema config %s: %v", ErrConfigInvalid, path, err)
	}
	if len(cfg.Schema) == 0 {
		return nil, fmt.Errorf("%w: schema config %s declares no fields", ErrConfigInvalid, path)
	}
	if cfg.Prompt == nil {
		cfg.Prompt = map[string]string{}
	}

	return &cfg, nil
}

// Fields returns the declared profile field names in sorted order.
//
// Sorting keeps prompt assembly and persisted records deterministic
// regardless of JSON map iteration order.
func (c *SchemaConfig) Fields() []string {
	fields := make([]string, 0, len(c.Schema))
	for field := range c.Schema {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// HasField reports whether the schema declares the given profile field.
func (c *SchemaConfig) HasField(field string) bool {
	_, ok := c.Schema[field]
	return ok
}

// AllowsValue reports whether value is acceptable for field.
//
// A field with an empty allowed set accepts any value. Undeclared fields
// never accept a value.
func (c *SchemaConfig) AllowsValue(field, value string) bool {
	options, ok := c.Schema[field]
	if !ok {
		return false
	}
	if len(options) == 0 {
		return true
	}
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}

// Instruction returns the prompt instruction for field, or "" if none.
func (c *SchemaConfig) Instruction(field string) string {
	return c.Prompt[field]
}

// =============================================================================
// API Key Resolution
// =============================================================================

// keyFile is the shape of the JSON file holding the OpenAI API key.
type keyFile struct {
	OpenAIAPIKey string `json:"openai_api_key"`
}

// ResolveOpenAIKey loads the OpenAI API key.
//
// # Description
//
// Resolution order:
//  1. The explicit config path, when non-empty. The file must exist and
//     contain an "openai_api_key" field.
//  2. config.json in the current working directory.
//
// # Outputs
//
//   - string: The API key, never empty on success.
//   - error: ErrConfigNotFound if neither location yields a key,
//     ErrConfigInvalid if a file exists but holds no key.
func ResolveOpenAIKey(explicitPath string) (string, error) {
	if explicitPath != "" {
		key, err := readKeyFile(explicitPath)
		if err != nil {
			return "", err
		}
		return key, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	cwdConfig := filepath.Join(cwd, "config.json")
	if _, err := os.Stat(cwdConfig); err == nil {
		return readKeyFile(cwdConfig)
	}

	return "", fmt.Errorf(
		"%w: no OpenAI config found; provide an explicit path or place a config.json with an 'openai_api_key' field in the working directory",
		ErrConfigNotFound)
}

func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrConfigInvalid, path, err)
	}
	key := strings.TrimSpace(kf.OpenAIAPIKey)
	if key == "" {
		return "", fmt.Errorf("%w: openai_api_key not found in %s", ErrConfigInvalid, path)
	}
	return key, nil
}
