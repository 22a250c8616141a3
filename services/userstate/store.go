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
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/echomind/pkg/config"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Store defines the contract for the per-(user, mode) state store.
//
// # Description
//
// Store provides durable, schema-validated read/modify/write access to one
// record per (user, mode) pair. All operations are whole-record cycles: the
// record is read, mutated in memory, and written back atomically.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Concurrent updates to
// the same (user, mode) must not lose writes.
type Store interface {
	// Create persists a new record with neutral derived defaults. Schema
	// fields missing from initial default to "". Idempotent: a no-op (not
	// an error) when a record already exists for this (user, mode).
	Create(ctx context.Context, userID string, mode Mode, initial map[string]string) error

	// GetProfile returns the merged flat view of schema fields plus the
	// mode's derived annotations. Returns ErrNotFound when no record exists.
	GetProfile(ctx context.Context, userID string, mode Mode) (map[string]string, error)

	// UpdateProfile overwrites the schema-declared keys present in partial.
	// Keys not declared by the schema are silently ignored; unspecified
	// declared keys keep their prior values. The standard and file modes
	// share one logical profile and are updated together; museum and
	// maxim-evaluation records are not touched.
	UpdateProfile(ctx context.Context, userID string, partial map[string]string) error

	// AppendDialogue appends one turn to the persistent history. Returns
	// ErrNotFound when no record exists.
	AppendDialogue(ctx context.Context, userID string, mode Mode, userUtterance, systemUtterance string) error

	// GetDialogueHistory returns the persisted transcript in append order.
	// Tolerant: returns an empty slice (not ErrNotFound) when the record is
	// absent, since callers use this to seed prompts before ever appending.
	GetDialogueHistory(ctx context.Context, userID string, mode Mode) ([]Turn, error)

	// UpdateDerived overwrites one derived annotation. Returns
	// ErrInvalidDerivedKey when the key is not carried by the mode and
	// ErrNotFound when no record exists.
	UpdateDerived(ctx context.Context, userID string, mode Mode, key, value string) error

	// ResetDynamic clears the dialogue history and resets derived
	// annotations to neutral defaults, leaving the profile untouched.
	// Returns ErrNotFound when no record exists.
	ResetDynamic(ctx context.Context, userID string, mode Mode) error
}

// Compile-time interface compliance.
var _ Store = (*BadgerStore)(nil)

// =============================================================================
// BadgerStore
// =============================================================================

// lockStripes is the number of mutex stripes guarding record keys. Striping
// bounds memory while still keeping unrelated records uncontended.
const lockStripes = 64

// BadgerStore implements Store on an embedded BadgerDB.
//
// Usage:
//
//	db, _ := storage.OpenWithPath("./data/userstate")
//	store := userstate.NewBadgerStore(db, schemaCfg)
type BadgerStore struct {
	db     *badger.DB
	schema *config.SchemaConfig
	locks  [lockStripes]sync.Mutex
}

// NewBadgerStore creates a store over an opened BadgerDB.
//
// The caller owns the database lifecycle; the store never closes it. The
// schema config is shared read-only and must outlive the store.
func NewBadgerStore(db *badger.DB, schema *config.SchemaConfig) *BadgerStore {
	return &BadgerStore{db: db, schema: schema}
}

// recordKey builds the storage key for a (user, mode) record.
func recordKey(userID string, mode Mode) []byte {
	return []byte(fmt.Sprintf("user/%s/%s", userID, mode))
}

// lockFor returns the stripe mutex guarding the given key.
func (s *BadgerStore) lockFor(key []byte) *sync.Mutex {
	h := fnv.New32a()
	h.Write(key)
	return &s.locks[h.Sum32()%lockStripes]
}

// Create implements the Store interface.
func (s *BadgerStore) Create(ctx context.Context, userID string, mode Mode, initial map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := recordKey(userID, mode)
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			// Idempotent create: the record already exists.
			slog.Debug("User record already exists, create is a no-op",
				"userId", userID, "mode", mode)
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check record %s: %w", key, err)
		}

		rec := newRecord(mode, s.schema.Fields(), initial)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", key, err)
		}
		slog.Info("Creating user record", "userId", userID, "mode", mode)
		return txn.Set(key, data)
	})
}

// GetProfile implements the Store interface.
func (s *BadgerStore) GetProfile(ctx context.Context, userID string, mode Mode) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := s.load(recordKey(userID, mode))
	if err != nil {
		return nil, err
	}
	return rec.profileView(s.schema.Fields()), nil
}

// UpdateProfile implements the Store interface.
//
// The standard/file shared-profile rule mirrors the profile-update flow of
// the UI: a profile edit is meant to apply to the shared logical profile,
// and museum / maxim-evaluation contexts deliberately keep their own.
func (s *BadgerStore) UpdateProfile(ctx context.Context, userID string, partial map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, mode := range []Mode{ModeStandard, ModeFile} {
		err := s.mutate(userID, mode, func(rec *Record) error {
			for field, value := range partial {
				if !s.schema.HasField(field) {
					slog.Debug("Ignoring undeclared profile field", "field", field)
					continue
				}
				rec.Static.Profile[field] = value
			}
			return nil
		})
		if err != nil && !IsNotFound(err) {
			return err
		}
		// A missing record for one of the pair is tolerated; the update
		// applies to whichever of the two exists.
	}
	return nil
}

// AppendDialogue implements the Store interface.
func (s *BadgerStore) AppendDialogue(ctx context.Context, userID string, mode Mode, userUtterance, systemUtterance string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.mutate(userID, mode, func(rec *Record) error {
		rec.Dynamic.DialogueHistory = append(rec.Dynamic.DialogueHistory, Turn{
			User:   userUtterance,
			System: systemUtterance,
		})
		return nil
	})
}

// GetDialogueHistory implements the Store interface.
func (s *BadgerStore) GetDialogueHistory(ctx context.Context, userID string, mode Mode) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := s.load(recordKey(userID, mode))
	if err != nil {
		if IsNotFound(err) {
			return []Turn{}, nil
		}
		return nil, err
	}
	history := make([]Turn, len(rec.Dynamic.DialogueHistory))
	copy(history, rec.Dynamic.DialogueHistory)
	return history, nil
}

// UpdateDerived implements the Store interface.
func (s *BadgerStore) UpdateDerived(ctx context.Context, userID string, mode Mode, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.mutate(userID, mode, func(rec *Record) error {
		if !rec.setDerived(key, value) {
			return fmt.Errorf("%w: %q on mode %q", ErrInvalidDerivedKey, key, mode)
		}
		return nil
	})
}

// ResetDynamic implements the Store interface.
func (s *BadgerStore) ResetDynamic(ctx context.Context, userID string, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.mutate(userID, mode, func(rec *Record) error {
		rec.resetDynamic()
		return nil
	})
}

// =============================================================================
// Private Helpers
// =============================================================================

// load reads and decodes one record. Maps badger.ErrKeyNotFound to
// ErrNotFound and decode failures to ErrCorruptState.
func (s *BadgerStore) load(key []byte) (*Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get record %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCorruptState, key, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if rec.Static.Profile == nil {
		rec.Static.Profile = map[string]string{}
	}
	return &rec, nil
}

// mutate runs one serialized read-modify-write cycle against a record.
func (s *BadgerStore) mutate(userID string, mode Mode, fn func(rec *Record) error) error {
	key := recordKey(userID, mode)
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get record %s: %w", key, err)
		}

		var rec Record
		err = item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrCorruptState, key, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if rec.Static.Profile == nil {
			rec.Static.Profile = map[string]string{}
		}

		if err := fn(&rec); err != nil {
			return err
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", key, err)
		}
		return txn.Set(key, data)
	})
}
