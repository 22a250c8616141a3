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
// This file contains account and profile types for the auth and profile
// endpoints.
package datatypes

// =============================================================================
// Auth Types
// =============================================================================

// SignupRequest creates a new account. Signup also seeds one persisted
// record per conversation mode, with the profile predicted from previous
// signups when any exist.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Validate validates the SignupRequest fields.
func (r *SignupRequest) Validate() error {
	return echoValidate.Struct(r)
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1,max=128"`
}

// Validate validates the LoginRequest fields.
func (r *LoginRequest) Validate() error {
	return echoValidate.Struct(r)
}

// AuthResponse acknowledges a successful signup or login.
type AuthResponse struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// =============================================================================
// Profile Types
// =============================================================================

// ProfileUpdateRequest carries a partial profile update. Only keys declared
// by the schema config are applied; anything else is ignored. The update
// lands on the standard and file records together.
type ProfileUpdateRequest struct {
	Profile map[string]string `json:"profile" validate:"required,min=1"`
}

// Validate validates the ProfileUpdateRequest fields.
func (r *ProfileUpdateRequest) Validate() error {
	return echoValidate.Struct(r)
}

// ProfileResponse is the merged profile view of one (user, mode) record:
// the schema-declared fields plus the mode's derived annotations.
type ProfileResponse struct {
	UserID  string            `json:"user_id"`
	Mode    string            `json:"mode"`
	Profile map[string]string `json:"profile"`
}
