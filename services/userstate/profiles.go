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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// globalProfilesKey stores the append-only list of submitted profiles used
// for default-profile prediction at signup.
var globalProfilesKey = []byte("global/profiles")

// AppendGlobalProfile records one submitted profile in the global aggregate.
//
// The profile is filtered to schema-declared fields before storage, so the
// aggregate never accumulates undeclared keys.
func (s *BadgerStore) AppendGlobalProfile(ctx context.Context, profile map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filtered := make(map[string]string, len(s.schema.Schema))
	for _, field := range s.schema.Fields() {
		filtered[field] = profile[field]
	}

	mu := s.lockFor(globalProfilesKey)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		profiles, err := readGlobalProfiles(txn)
		if err != nil {
			return err
		}
		profiles = append(profiles, filtered)

		data, err := json.Marshal(profiles)
		if err != nil {
			return fmt.Errorf("encode global profiles: %w", err)
		}
		slog.Debug("Appended profile to global aggregate", "total", len(profiles))
		return txn.Set(globalProfilesKey, data)
	})
}

// PredictDefaultProfile suggests a profile for a new user.
//
// For each schema field the most common allowed value across the global
// aggregate wins; ties break toward the value counted first. With no
// history (or no valid values for a field) the field's first declared
// option is used, or "" for unconstrained fields.
func (s *BadgerStore) PredictDefaultProfile(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profiles []map[string]string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		profiles, err = readGlobalProfiles(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	defaults := make(map[string]string, len(s.schema.Schema))
	for _, field := range s.schema.Fields() {
		options := s.schema.Schema[field]
		fallback := ""
		if len(options) > 0 {
			fallback = options[0]
		}

		counts := map[string]int{}
		best, bestCount := fallback, 0
		for _, profile := range profiles {
			value := profile[field]
			if !s.schema.AllowsValue(field, value) || value == "" {
				continue
			}
			counts[value]++
			// Strictly greater keeps the first value to reach a count.
			if counts[value] > bestCount {
				best, bestCount = value, counts[value]
			}
		}
		defaults[field] = best
	}
	return defaults, nil
}

// readGlobalProfiles decodes the aggregate list, treating absence as empty.
func readGlobalProfiles(txn *badger.Txn) ([]map[string]string, error) {
	item, err := txn.Get(globalProfilesKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return []map[string]string{}, nil
		}
		return nil, fmt.Errorf("get global profiles: %w", err)
	}

	var profiles []map[string]string
	err = item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &profiles); err != nil {
			return fmt.Errorf("%w: global profiles: %v", ErrCorruptState, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
