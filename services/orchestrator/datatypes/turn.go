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
// This file contains request and response types for conversation turn
// endpoints. For account and profile types, see accounts.go; for maxim
// analysis types, see analysis.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxTurnMessageBytes is the maximum size of a single user message.
	MaxTurnMessageBytes = 32 * 1024 // 32KB

	// MaxSessionTurns is the maximum number of session-history turns
	// accepted in a single request.
	MaxSessionTurns = 200

	// MaxContextBytes is the maximum size of caller-supplied file or
	// artwork context.
	MaxContextBytes = 256 * 1024 // 256KB
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// echoValidate is the validator instance for conversation datatypes.
var echoValidate *validator.Validate

func init() {
	echoValidate = validator.New()

	// Byte-length limits; validator's max tag counts runes, not bytes.
	_ = echoValidate.RegisterValidation("maxmsgbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxTurnMessageBytes
	})
	_ = echoValidate.RegisterValidation("maxctxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxContextBytes
	})
}

// generateRequestID returns a fresh UUID v4 string for request correlation.
func generateRequestID() string {
	return uuid.New().String()
}

// =============================================================================
// Turn Request Types
// =============================================================================

// SessionTurn is one user/assistant exchange held by the client for the
// current session. It mirrors the persisted Turn shape but lives only for
// the duration of a session.
type SessionTurn struct {
	User   string `json:"user"`
	System string `json:"system"`
}

// TurnRequest represents one conversation turn submitted to POST /v1/chat.
//
// # Description
//
// Carries the user's message plus the client-held session history. The mode
// selects which persisted record the turn reads and writes, and which
// contextual source feeds generation:
//
//   - "standard": retrieval over the session text feeds the prompt.
//   - "file", "museum": the caller-supplied Context field feeds the prompt
//     (file analysis text or artwork description); no retrieval happens.
//   - "file_maxim_evaluation": like "file", plus a rubric evaluation of the
//     generated response is persisted with the turn.
//
// # Fields
//
//   - RequestID: Optional. UUID v4 for tracing; generated when absent.
//   - UserID: Required. The record owner.
//   - Mode: Required. One of the four conversation modes.
//   - Message: Required. The user's utterance, max 32KB.
//   - SessionHistory: Optional. Client-held turns for this session.
//   - Context: Optional. File or artwork context for non-retrieval modes.
//   - DomainContext: Optional. Domain hint for maxim evaluation
//     ("general" when absent).
//
// # Validation
//
// Uses go-playground/validator:
//   - UserID: required
//   - Mode: required, oneof the four supported modes
//   - Message: required, max 32KB
//   - SessionHistory: max 200 turns
//   - Context: max 256KB
type TurnRequest struct {
	RequestID      string        `json:"request_id" validate:"omitempty,uuid4"`
	UserID         string        `json:"user_id" validate:"required,max=128"`
	Mode           string        `json:"mode" validate:"required,oneof=standard file museum file_maxim_evaluation"`
	Message        string        `json:"message" validate:"required,maxmsgbytes"`
	SessionHistory []SessionTurn `json:"session_history" validate:"max=200"`
	Context        string        `json:"context,omitempty" validate:"maxctxbytes"`
	DomainContext  string        `json:"domain_context,omitempty" validate:"max=256"`
}

// Validate validates the TurnRequest fields.
func (r *TurnRequest) Validate() error {
	return echoValidate.Struct(r)
}

// EnsureDefaults populates RequestID and DomainContext when absent.
func (r *TurnRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateRequestID()
	}
	if r.DomainContext == "" {
		r.DomainContext = "general"
	}
}

// ResetRequest asks for the dynamic state of one (user, mode) record to be
// cleared: session history dropped, derived annotations back to neutral.
type ResetRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Mode   string `json:"mode" validate:"required,oneof=standard file museum file_maxim_evaluation"`
}

// Validate validates the ResetRequest fields.
func (r *ResetRequest) Validate() error {
	return echoValidate.Struct(r)
}

// =============================================================================
// Turn Response Types
// =============================================================================

// TurnResponse is the reply to one conversation turn.
//
// # Fields
//
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix milliseconds (UTC) when the response was produced.
//   - Response: The generated assistant reply.
//   - Dashboard: Human-readable projection of the user's profile and the
//     session history after this turn.
//   - Evaluation: Maxim rubric scores for the reply. Only populated in
//     file_maxim_evaluation mode; nil elsewhere.
//   - Degraded: True when at least one classifier call failed and its
//     annotation was replaced by a degradation message.
type TurnResponse struct {
	RequestID  string           `json:"request_id"`
	Timestamp  int64            `json:"timestamp"`
	Response   string           `json:"response"`
	Dashboard  string           `json:"dashboard"`
	Evaluation *MaximEvaluation `json:"evaluation,omitempty"`
	Degraded   bool             `json:"degraded,omitempty"`
}

// NewTurnResponse creates a TurnResponse with the timestamp set.
func NewTurnResponse(requestID, response, dashboard string) *TurnResponse {
	return &TurnResponse{
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Response:  response,
		Dashboard: dashboard,
	}
}

// DashboardResponse is the reply to a reset: the cleared dashboard text.
type DashboardResponse struct {
	UserID    string `json:"user_id"`
	Mode      string `json:"mode"`
	Dashboard string `json:"dashboard"`
}

// HistoryResponse carries the persisted dialogue history for one
// (user, mode) record.
type HistoryResponse struct {
	UserID string        `json:"user_id"`
	Mode   string        `json:"mode"`
	Turns  []SessionTurn `json:"turns"`
}
