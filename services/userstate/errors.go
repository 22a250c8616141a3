// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package userstate

import "errors"

// ErrNotFound indicates the addressed (user, mode) record does not exist.
// Recoverable: the caller should Create the record first (normally done at
// signup for every mode).
var ErrNotFound = errors.New("user record not found")

// ErrCorruptState indicates a persisted record exists but could not be
// decoded. Surfaced explicitly rather than as a bare parse failure so
// callers can distinguish corruption from absence.
var ErrCorruptState = errors.New("user record corrupt")

// ErrInvalidDerivedKey indicates an UpdateDerived call used a key that the
// record's mode does not carry.
var ErrInvalidDerivedKey = errors.New("invalid derived key for mode")

// IsNotFound checks if an error is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorruptState checks if an error is ErrCorruptState.
func IsCorruptState(err error) bool {
	return errors.Is(err, ErrCorruptState)
}
