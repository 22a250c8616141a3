// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the maxim analysis types shared between the analysis
// endpoint and the conversation service.
package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Maxim Analysis Request
// =============================================================================

// MaximAnalysisRequest asks for a rubric evaluation of a piece of text
// against Grice's Cooperative Principle maxims.
//
// # Fields
//
//   - UserID: Required. The evaluation is persisted on this user's
//     file_maxim_evaluation record.
//   - Text: Required and non-blank. The text to evaluate. A blank value is
//     a validation error, not a degraded result.
//   - DomainContext: Optional domain hint, e.g. "medical", "casual".
//     Defaults to "general".
//   - Guidelines: Optional per-maxim evaluation guidance, keyed by maxim
//     name, e.g. {"quantity": "Should be concise for technical docs"}.
type MaximAnalysisRequest struct {
	UserID        string            `json:"user_id" validate:"required,max=128"`
	Text          string            `json:"text" validate:"required"`
	DomainContext string            `json:"domain_context,omitempty" validate:"max=256"`
	Guidelines    map[string]string `json:"guidelines,omitempty"`
}

// Validate validates the MaximAnalysisRequest fields. A Text value that is
// only whitespace fails validation even though the required tag passes.
func (r *MaximAnalysisRequest) Validate() error {
	if err := echoValidate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}

// EnsureDefaults populates DomainContext when absent.
func (r *MaximAnalysisRequest) EnsureDefaults() {
	if r.DomainContext == "" {
		r.DomainContext = "general"
	}
}

// =============================================================================
// Maxim Evaluation Result
// =============================================================================

// MaximScore is one rubric dimension: a 1-5 score plus a short explanation.
type MaximScore struct {
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
}

// MaximEvaluation holds the four-dimension rubric result for one text.
//
// The JSON shape matches the model's response format directly:
//
//	{"quantity": {"score": 3, "explanation": "..."}, "quality": {...},
//	 "relevance": {...}, "manner": {...}}
type MaximEvaluation struct {
	Quantity  MaximScore `json:"quantity"`
	Quality   MaximScore `json:"quality"`
	Relevance MaximScore `json:"relevance"`
	Manner    MaximScore `json:"manner"`
}

// ParseMaximEvaluation decodes a model JSON payload into a MaximEvaluation.
//
// The model occasionally wraps the four maxims in an envelope key or drifts
// on casing; this parser accepts the canonical flat shape only and reports
// anything else as an error so the caller can degrade.
func ParseMaximEvaluation(raw []byte) (*MaximEvaluation, error) {
	var eval MaximEvaluation
	if err := json.Unmarshal(raw, &eval); err != nil {
		return nil, fmt.Errorf("parse maxim evaluation: %w", err)
	}
	for name, score := range map[string]MaximScore{
		"quantity":  eval.Quantity,
		"quality":   eval.Quality,
		"relevance": eval.Relevance,
		"manner":    eval.Manner,
	} {
		if score.Score < 1 || score.Score > 5 {
			return nil, fmt.Errorf("maxim %q score %d out of range 1-5", name, score.Score)
		}
	}
	return &eval, nil
}

// String renders the evaluation as a compact single-line JSON document, the
// form persisted into the user's record.
func (e *MaximEvaluation) String() string {
	raw, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(raw)
}

// MaximAnalysisResponse is the reply to POST /v1/analysis/maxims.
type MaximAnalysisResponse struct {
	UserID        string           `json:"user_id"`
	DomainContext string           `json:"domain_context"`
	Evaluation    *MaximEvaluation `json:"evaluation"`
}
