// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "alice", "s3cret"))
	assert.NoError(t, store.Authenticate(ctx, "alice", "s3cret"))
}

func TestAuthenticate_Failures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, "alice", "s3cret"))

	t.Run("wrong password", func(t *testing.T) {
		err := store.Authenticate(ctx, "alice", "wrong")
		assert.True(t, IsInvalidCredentials(err))
	})

	t.Run("unknown user", func(t *testing.T) {
		err := store.Authenticate(ctx, "mallory", "s3cret")
		assert.True(t, IsInvalidCredentials(err))
	})
}

func TestRegister_DuplicateUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Register(ctx, "alice", "s3cret"))

	err := store.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegister_RequiresUsernameAndPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Register(ctx, "", "s3cret"))
	assert.Error(t, store.Register(ctx, "alice", ""))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	first := NewFileStore(path)
	require.NoError(t, first.Register(ctx, "alice", "s3cret"))

	second := NewFileStore(path)
	assert.NoError(t, second.Authenticate(ctx, "alice", "s3cret"))
}

func TestStore_NeverPersistsPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	store := NewFileStore(path)
	require.NoError(t, store.Register(ctx, "alice", "hunter2-plaintext"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hunter2-plaintext"))
}
