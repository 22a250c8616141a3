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
	"fmt"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/storage"
)

func testSchema() *config.SchemaConfig {
	return &config.SchemaConfig{
		Schema: map[string][]string{
			"expertise":      {"expert", "novice"},
			"time_available": {"rushed", "relaxed"},
		},
		Prompt: map[string]string{
			"expertise": "Adapt depth to expertise.",
		},
	}
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, testSchema())
}

func TestCreate_EndToEndProfileView(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Create(ctx, "alice", ModeStandard, map[string]string{
		"expertise":      "novice",
		"time_available": "relaxed",
	})
	require.NoError(t, err)

	profile, err := store.GetProfile(ctx, "alice", ModeStandard)
	require.NoError(t, err)

	want := map[string]string{
		"expertise":      "novice",
		"time_available": "relaxed",
		"content_bias":   "None",
		"mental_state":   "Neutral",
		"dialogue_bias":  "None",
	}
	assert.Equal(t, want, profile)
}

func TestCreate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "bob", ModeStandard, map[string]string{"expertise": "expert"}))

	// Mutate state so a second create would be observable if it replaced
	// the record.
	require.NoError(t, store.AppendDialogue(ctx, "bob", ModeStandard, "hi", "hello"))
	require.NoError(t, store.UpdateDerived(ctx, "bob", ModeStandard, DerivedMentalState, "Curious"))

	// Second create with a different profile must be a no-op.
	require.NoError(t, store.Create(ctx, "bob", ModeStandard, map[string]string{"expertise": "novice"}))

	profile, err := store.GetProfile(ctx, "bob", ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "expert", profile["expertise"])
	assert.Equal(t, "Curious", profile["mental_state"])

	history, err := store.GetDialogueHistory(ctx, "bob", ModeStandard)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreate_MissingFieldsDefaultEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "carol", ModeFile, map[string]string{"expertise": "expert"}))

	profile, err := store.GetProfile(ctx, "carol", ModeFile)
	require.NoError(t, err)
	assert.Equal(t, "", profile["time_available"])
}

func TestCreate_MaximEvaluationDerivedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "dave", ModeMaximEvaluation, nil))

	profile, err := store.GetProfile(ctx, "dave", ModeMaximEvaluation)
	require.NoError(t, err)

	assert.Equal(t, "None", profile["content_maxim_evaluation"])
	assert.Equal(t, "None", profile["llm_dialogue_evaluation"])
	assert.Equal(t, "Neutral", profile["mental_state"])
	assert.NotContains(t, profile, "content_bias")
	assert.NotContains(t, profile, "dialogue_bias")
}

func TestGetProfile_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetProfile(context.Background(), "ghost", ModeStandard)
	assert.True(t, IsNotFound(err), "expected ErrNotFound, got %v", err)
}

func TestAppendDialogue_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "erin", ModeStandard, nil))

	const n = 5
	for i := 0; i < n; i++ {
		err := store.AppendDialogue(ctx, "erin", ModeStandard,
			fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
	}

	history, err := store.GetDialogueHistory(ctx, "erin", ModeStandard)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("question %d", i), turn.User)
		assert.Equal(t, fmt.Sprintf("answer %d", i), turn.System)
	}
}

func TestAppendDialogue_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendDialogue(context.Background(), "ghost", ModeStandard, "u", "s")
	assert.True(t, IsNotFound(err))
}

func TestGetDialogueHistory_TolerantWhenAbsent(t *testing.T) {
	store := newTestStore(t)

	history, err := store.GetDialogueHistory(context.Background(), "ghost", ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestResetDynamic_PreservesProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "frank", ModeStandard, map[string]string{
		"expertise":      "expert",
		"time_available": "rushed",
	}))
	require.NoError(t, store.AppendDialogue(ctx, "frank", ModeStandard, "q1", "a1"))
	require.NoError(t, store.AppendDialogue(ctx, "frank", ModeStandard, "q2", "a2"))
	require.NoError(t, store.UpdateDerived(ctx, "frank", ModeStandard, DerivedMentalState, "Frustrated"))
	require.NoError(t, store.UpdateDerived(ctx, "frank", ModeStandard, DerivedDialogueBias, "- Confirmation bias"))

	before, err := store.GetProfile(ctx, "frank", ModeStandard)
	require.NoError(t, err)

	require.NoError(t, store.ResetDynamic(ctx, "frank", ModeStandard))

	history, err := store.GetDialogueHistory(ctx, "frank", ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, history)

	after, err := store.GetProfile(ctx, "frank", ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, before["expertise"], after["expertise"])
	assert.Equal(t, before["time_available"], after["time_available"])
	assert.Equal(t, "Neutral", after["mental_state"])
	assert.Equal(t, "None", after["dialogue_bias"])
}

func TestUpdateProfile_SchemaFidelity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "gina", ModeStandard, map[string]string{"expertise": "novice"}))

	// Undeclared keys are silently ignored, declared keys are overwritten,
	// unspecified declared keys keep prior values.
	err := store.UpdateProfile(ctx, "gina", map[string]string{
		"expertise":      "expert",
		"favorite_color": "purple",
	})
	require.NoError(t, err)

	profile, err := store.GetProfile(ctx, "gina", ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "expert", profile["expertise"])
	assert.Equal(t, "", profile["time_available"])
	assert.NotContains(t, profile, "favorite_color")
}

func TestUpdateProfile_SharedAcrossStandardAndFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "hank", ModeStandard, map[string]string{"expertise": "novice"}))
	require.NoError(t, store.Create(ctx, "hank", ModeFile, map[string]string{"expertise": "novice"}))
	require.NoError(t, store.Create(ctx, "hank", ModeMuseum, map[string]string{"expertise": "novice"}))

	require.NoError(t, store.UpdateProfile(ctx, "hank", map[string]string{"expertise": "expert"}))

	for _, mode := range []Mode{ModeStandard, ModeFile} {
		profile, err := store.GetProfile(ctx, "hank", mode)
		require.NoError(t, err)
		assert.Equal(t, "expert", profile["expertise"], "mode %s", mode)
	}

	// Museum keeps its own profile.
	museum, err := store.GetProfile(ctx, "hank", ModeMuseum)
	require.NoError(t, err)
	assert.Equal(t, "novice", museum["expertise"])
}

func TestUpdateDerived_InvalidKeyForMode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "iris", ModeStandard, nil))
	require.NoError(t, store.Create(ctx, "iris", ModeMaximEvaluation, nil))

	err := store.UpdateDerived(ctx, "iris", ModeStandard, DerivedContentEvaluation, "{}")
	assert.ErrorIs(t, err, ErrInvalidDerivedKey)

	err = store.UpdateDerived(ctx, "iris", ModeMaximEvaluation, DerivedContentBias, "None")
	assert.ErrorIs(t, err, ErrInvalidDerivedKey)

	err = store.UpdateDerived(ctx, "iris", ModeStandard, "nonsense", "x")
	assert.ErrorIs(t, err, ErrInvalidDerivedKey)
}

func TestConcurrentAppends_NoLostUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "judy", ModeStandard, nil))

	const writers = 8
	const perWriter = 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := store.AppendDialogue(ctx, "judy", ModeStandard,
					fmt.Sprintf("w%d-q%d", w, i), "ok")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	history, err := store.GetDialogueHistory(ctx, "judy", ModeStandard)
	require.NoError(t, err)
	assert.Len(t, history, writers*perWriter)
}

func TestLoad_CorruptRecord(t *testing.T) {
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewBadgerStore(db, testSchema())
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey("kate", ModeStandard), []byte("{not json"))
	}))

	_, err = store.GetProfile(context.Background(), "kate", ModeStandard)
	assert.True(t, IsCorruptState(err), "expected ErrCorruptState, got %v", err)
}

func TestPredictDefaultProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("no history falls back to first option", func(t *testing.T) {
		defaults, err := store.PredictDefaultProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "expert", defaults["expertise"])
		assert.Equal(t, "rushed", defaults["time_available"])
	})

	t.Run("most common value wins", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, store.AppendGlobalProfile(ctx, map[string]string{
				"expertise":      "novice",
				"time_available": "relaxed",
			}))
		}
		require.NoError(t, store.AppendGlobalProfile(ctx, map[string]string{
			"expertise":      "expert",
			"time_available": "relaxed",
		}))

		defaults, err := store.PredictDefaultProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "novice", defaults["expertise"])
		assert.Equal(t, "relaxed", defaults["time_available"])
	})

	t.Run("values outside the schema are ignored", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			require.NoError(t, store.AppendGlobalProfile(ctx, map[string]string{
				"expertise": "wizard",
			}))
		}

		defaults, err := store.PredictDefaultProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "novice", defaults["expertise"])
	})
}
