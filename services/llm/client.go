// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the external language-model capability consumed by
// the conversation orchestrator and the retrieval index.
//
// Three capabilities are exposed:
//
//   - Generate: free-form completion from system instructions plus a user
//     message.
//   - Classify / ClassifyJSON: the same completion capability constrained
//     to act as a classifier, returning a short label or strictly-parseable
//     JSON.
//   - Embed: text embedding for semantic retrieval.
//
// All methods are blocking round trips; callers are expected to bound them
// with a context timeout.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// GenerationParams carries optional sampling parameters for a generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate produces a completion for the user message under the given
	// system instructions.
	Generate(ctx context.Context, system, user string, params GenerationParams) (string, error)

	// Classify runs the model as a constrained classifier and returns the
	// short label it produced, trimmed of surrounding whitespace.
	Classify(ctx context.Context, system, text string) (string, error)

	// ClassifyJSON runs the model as a classifier with a JSON response
	// format and returns the raw JSON payload.
	ClassifyJSON(ctx context.Context, system, text string) ([]byte, error)
}

// Embedder defines the embedding capability used by the retrieval index.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// =============================================================================
// Error Types
// =============================================================================

// CapabilityError wraps a failure of the external generation, classification,
// or embedding backend.
//
// The conversation orchestrator is the only layer that absorbs this error
// into a degraded textual payload; everything below it propagates the error
// unchanged so callers can decide.
type CapabilityError struct {
	// Op names the operation that failed, e.g. "generate", "classify",
	// "embed". Used in degraded user-facing messages.
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("llm %s failed: %v", e.Op, e.Err)
}

// Unwrap supports errors.Is and errors.As on the underlying cause.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// IsCapabilityError checks if an error is a *CapabilityError.
//
// Handlers and the conversation service use this to distinguish backend
// failures (degrade, keep the turn alive) from programming or validation
// errors (propagate).
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
