// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/llm"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/storage"
	"github.com/AleutianAI/echomind/services/userstate"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeLLM is a scripted LLMClient. Classify dispatches on the system prompt
// so one fake serves the mental-state and both bias classifiers.
type fakeLLM struct {
	mu sync.Mutex

	generateReply string
	generateErr   error

	mentalState     string
	mentalStateErr  error
	contentBias     string
	contentBiasErr  error
	dialogueBias    string
	dialogueBiasErr error

	jsonPayload []byte
	jsonErr     error

	// capture
	lastSystem string
	lastUser   string
}

var validRubric = []byte(`{
	"quantity":  {"score": 4, "explanation": "enough detail"},
	"quality":   {"score": 5, "explanation": "accurate"},
	"relevance": {"score": 4, "explanation": "on topic"},
	"manner":    {"score": 3, "explanation": "a bit dense"}
}`)

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		generateReply: "Here is what I found.",
		mentalState:   "Curious",
		contentBias:   "- Confirmation bias",
		dialogueBias:  "No biases detected",
		jsonPayload:   validRubric,
	}
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string, params llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.lastSystem = system
	f.lastUser = user
	f.mu.Unlock()
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateReply, nil
}

func (f *fakeLLM) Classify(ctx context.Context, system, text string) (string, error) {
	switch {
	case strings.Contains(system, "mental state"):
		return f.mentalState, f.mentalStateErr
	case strings.Contains(system, "user dialogue"):
		return f.dialogueBias, f.dialogueBiasErr
	default:
		return f.contentBias, f.contentBiasErr
	}
}

func (f *fakeLLM) ClassifyJSON(ctx context.Context, system, text string) ([]byte, error) {
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	return f.jsonPayload, nil
}

func (f *fakeLLM) capturedSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSystem
}

// fakeRetriever returns a fixed context string.
type fakeRetriever struct {
	content string
	err     error
	calls   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	f.calls++
	return f.content, f.err
}

// =============================================================================
// Test Setup
// =============================================================================

func testSchema() *config.SchemaConfig {
	return &config.SchemaConfig{
		Schema: map[string][]string{
			"expertise":      {"expert", "novice"},
			"time_available": {"rushed", "relaxed"},
		},
		Prompt: map[string]string{
			"expertise":      "Adapt technical depth to the user's expertise.",
			"time_available": "Adapt response length to the user's available time.",
		},
	}
}

func newTestService(t *testing.T, client llm.LLMClient, retriever Retriever) (*Service, userstate.Store) {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := userstate.NewBadgerStore(db, testSchema())
	svc := NewService(store, client, retriever, testSchema(), nil)
	return svc, store
}

func createUser(t *testing.T, store userstate.Store, userID string) {
	t.Helper()
	for _, mode := range userstate.AllModes {
		require.NoError(t, store.Create(context.Background(), userID, mode,
			map[string]string{"expertise": "novice", "time_available": "relaxed"}))
	}
}

func standardTurn(userID string) *datatypes.TurnRequest {
	return &datatypes.TurnRequest{
		UserID:  userID,
		Mode:    "standard",
		Message: "What causes auroras?",
	}
}

// =============================================================================
// Turn Flow Tests
// =============================================================================

func TestHandleTurn_StandardFlow(t *testing.T) {
	client := newFakeLLM()
	retriever := &fakeRetriever{content: "Auroras are caused by solar wind."}
	svc, store := newTestService(t, client, retriever)
	createUser(t, store, "kate")

	resp, err := svc.HandleTurn(context.Background(), standardTurn("kate"))
	require.NoError(t, err)

	assert.Equal(t, "Here is what I found.", resp.Response)
	assert.False(t, resp.Degraded)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 1, retriever.calls)

	// Annotations and the turn are persisted.
	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "Curious", profile["mental_state"])
	assert.Equal(t, "- Confirmation bias", profile["content_bias"])
	assert.Equal(t, "No biases detected", profile["dialogue_bias"])

	history, err := store.GetDialogueHistory(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "What causes auroras?", history[0].User)
	assert.Equal(t, "Here is what I found.", history[0].System)
}

func TestHandleTurn_PromptAssembly(t *testing.T) {
	client := newFakeLLM()
	retriever := &fakeRetriever{content: "Auroras are caused by solar wind."}
	svc, store := newTestService(t, client, retriever)
	createUser(t, store, "kate")

	// Seed a persisted turn so the combined history has both layers.
	require.NoError(t, store.AppendDialogue(context.Background(), "kate",
		userstate.ModeStandard, "Hi there", "Hello!"))

	req := standardTurn("kate")
	req.SessionHistory = []datatypes.SessionTurn{{User: "Tell me more", System: "Sure."}}
	_, err := svc.HandleTurn(context.Background(), req)
	require.NoError(t, err)

	system := client.capturedSystem()
	assert.Contains(t, system, "Grice's Maxims")
	assert.Contains(t, system, "**Retrieved Content:** Auroras are caused by solar wind.")
	assert.Contains(t, system, "User: Hi there\nAI: Hello!")
	assert.Contains(t, system, "Tell me more\nSure.")
	assert.Contains(t, system, "- Content Bias: - Confirmation bias")
	assert.Contains(t, system, "- Dialogue Bias: No biases detected")
	assert.Contains(t, system, "**Expertise:** novice")
	assert.Contains(t, system, "Adapt technical depth to the user's expertise.")
	assert.Contains(t, system, "**Mental State:** Neutral")
}

func TestHandleTurn_ClassifierFailureDegrades(t *testing.T) {
	client := newFakeLLM()
	client.contentBiasErr = errors.New("upstream timeout")
	svc, store := newTestService(t, client, &fakeRetriever{content: "some content"})
	createUser(t, store, "kate")

	resp, err := svc.HandleTurn(context.Background(), standardTurn("kate"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Equal(t, "Here is what I found.", resp.Response)

	// The degraded payload reaches the prompt but never the store.
	assert.Contains(t, client.capturedSystem(), "Error predicting content bias: upstream timeout")
	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, userstate.NeutralAnnotation, profile["content_bias"])
	assert.Equal(t, "No biases detected", profile["dialogue_bias"])
}

func TestHandleTurn_GenerationFailure(t *testing.T) {
	client := newFakeLLM()
	client.generateErr = errors.New("model unavailable")
	svc, store := newTestService(t, client, &fakeRetriever{})
	createUser(t, store, "kate")

	resp, err := svc.HandleTurn(context.Background(), standardTurn("kate"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Response, "Error generating response: model unavailable")

	// Nothing was persisted for the failed turn.
	history, err := store.GetDialogueHistory(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleTurn_FileModeUsesCallerContext(t *testing.T) {
	client := newFakeLLM()
	retriever := &fakeRetriever{content: "should not appear"}
	svc, store := newTestService(t, client, retriever)
	createUser(t, store, "kate")

	req := &datatypes.TurnRequest{
		UserID:  "kate",
		Mode:    "file",
		Message: "Summarize the report.",
		Context: "Quarterly revenue grew 12 percent.",
	}
	resp, err := svc.HandleTurn(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Degraded)

	// File mode never touches the index and carries no content-bias line.
	assert.Equal(t, 0, retriever.calls)
	system := client.capturedSystem()
	assert.Contains(t, system, "**Retrieved Content:** Quarterly revenue grew 12 percent.")
	assert.NotContains(t, system, "Content Bias:")
	assert.Contains(t, system, "- Dialogue Bias: No biases detected")
}

func TestHandleTurn_RetrievalFailureDegrades(t *testing.T) {
	client := newFakeLLM()
	retriever := &fakeRetriever{err: errors.New("index offline")}
	svc, store := newTestService(t, client, retriever)
	createUser(t, store, "kate")

	resp, err := svc.HandleTurn(context.Background(), standardTurn("kate"))
	require.NoError(t, err)

	assert.True(t, resp.Degraded)
	assert.Contains(t, client.capturedSystem(), "Error retrieving content: index offline")
}

func TestHandleTurn_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t, newFakeLLM(), &fakeRetriever{})

	_, err := svc.HandleTurn(context.Background(), standardTurn("ghost"))
	require.Error(t, err)
	assert.True(t, userstate.IsNotFound(err))
}

func TestHandleTurn_InvalidRequest(t *testing.T) {
	svc, _ := newTestService(t, newFakeLLM(), &fakeRetriever{})

	req := standardTurn("kate")
	req.Mode = "debate"
	_, err := svc.HandleTurn(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

// =============================================================================
// Maxim Evaluation Flow Tests
// =============================================================================

func TestHandleTurn_MaximEvaluationFlow(t *testing.T) {
	client := newFakeLLM()
	svc, store := newTestService(t, client, nil)
	createUser(t, store, "kate")

	req := &datatypes.TurnRequest{
		UserID:        "kate",
		Mode:          "file_maxim_evaluation",
		Message:       "Does the essay hold up?",
		Context:       "The essay argues for shorter sentences.",
		DomainContext: "editorial",
	}
	resp, err := svc.HandleTurn(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Degraded)
	require.NotNil(t, resp.Evaluation)
	assert.Equal(t, 4, resp.Evaluation.Quantity.Score)
	assert.Equal(t, "a bit dense", resp.Evaluation.Manner.Explanation)

	// The rubric is persisted on the maxim-evaluation record.
	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeMaximEvaluation)
	require.NoError(t, err)
	assert.Contains(t, profile["llm_dialogue_evaluation"], `"quantity"`)
	assert.Equal(t, "Curious", profile["mental_state"])

	// Maxim mode uses the deterministic prompt, not the bias preamble.
	system := client.capturedSystem()
	assert.Contains(t, system, "Context: The essay argues for shorter sentences.")
	assert.Contains(t, system, "Domain: editorial")
	assert.NotContains(t, system, "Bias Considerations")
}

func TestHandleTurn_MaximEvaluationRubricFailure(t *testing.T) {
	client := newFakeLLM()
	client.jsonErr = errors.New("format drift")
	svc, store := newTestService(t, client, nil)
	createUser(t, store, "kate")

	req := &datatypes.TurnRequest{
		UserID:  "kate",
		Mode:    "file_maxim_evaluation",
		Message: "Thoughts?",
	}
	resp, err := svc.HandleTurn(context.Background(), req)
	require.NoError(t, err)

	// The reply survives; only the rubric degraded.
	assert.True(t, resp.Degraded)
	assert.Nil(t, resp.Evaluation)
	assert.Equal(t, "Here is what I found.", resp.Response)

	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeMaximEvaluation)
	require.NoError(t, err)
	assert.Equal(t, userstate.NeutralAnnotation, profile["llm_dialogue_evaluation"])
}

func TestAnalyzeText(t *testing.T) {
	client := newFakeLLM()
	svc, store := newTestService(t, client, nil)
	createUser(t, store, "kate")

	eval, err := svc.AnalyzeText(context.Background(), &datatypes.MaximAnalysisRequest{
		UserID: "kate",
		Text:   "The essay argues for shorter sentences.",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, eval.Quality.Score)

	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeMaximEvaluation)
	require.NoError(t, err)
	assert.Contains(t, profile["content_maxim_evaluation"], `"quality"`)
}

func TestAnalyzeText_EmptyTextFailsFast(t *testing.T) {
	svc, store := newTestService(t, newFakeLLM(), nil)
	createUser(t, store, "kate")

	_, err := svc.AnalyzeText(context.Background(), &datatypes.MaximAnalysisRequest{
		UserID: "kate",
		Text:   "   ",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestAnalyzeText_UnparseablePayload(t *testing.T) {
	client := newFakeLLM()
	client.jsonPayload = []byte(`{"verdict": "fine"}`)
	svc, store := newTestService(t, client, nil)
	createUser(t, store, "kate")

	_, err := svc.AnalyzeText(context.Background(), &datatypes.MaximAnalysisRequest{
		UserID: "kate",
		Text:   "Some text.",
	})
	require.Error(t, err)
}

// =============================================================================
// Reset and Dashboard Tests
// =============================================================================

func TestReset(t *testing.T) {
	client := newFakeLLM()
	svc, store := newTestService(t, client, &fakeRetriever{})
	createUser(t, store, "kate")

	_, err := svc.HandleTurn(context.Background(), standardTurn("kate"))
	require.NoError(t, err)

	dashboard, err := svc.Reset(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Contains(t, dashboard, "Predicted Mental State: Neutral")
	assert.True(t, strings.HasSuffix(dashboard, "Current Session Chat History:\n"))

	history, err := store.GetDialogueHistory(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The profile survives a reset.
	profile, err := store.GetProfile(context.Background(), "kate", userstate.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, "novice", profile["expertise"])
}

func TestDashboardFormat(t *testing.T) {
	profile := map[string]string{
		"expertise":      "novice",
		"time_available": "relaxed",
		"content_bias":   "None",
		"mental_state":   "Engaged",
		"dialogue_bias":  "None",
	}
	session := []datatypes.SessionTurn{
		{User: "Hello", System: "Hi! How can I help?"},
	}

	got := buildDashboard(profile, testSchema(), userstate.ModeStandard, session)
	want := "User Profile:\n" +
		"  - Expertise: novice\n" +
		"  - Time Available: relaxed\n" +
		"  - Content Bias: None\n" +
		"  - Predicted Mental State: Engaged\n" +
		"  - User Dialogue Bias: None\n" +
		"\nCurrent Session Chat History:\n" +
		"Hello\nHi! How can I help?\n\n"
	assert.Equal(t, want, got)
}

func TestDashboardFormat_FileModeOmitsContentBias(t *testing.T) {
	profile := map[string]string{
		"expertise":      "expert",
		"time_available": "rushed",
		"mental_state":   "Neutral",
		"dialogue_bias":  "None",
	}
	got := buildDashboard(profile, testSchema(), userstate.ModeFile, nil)
	assert.NotContains(t, got, "Content Bias")
	assert.Contains(t, got, "User Dialogue Bias: None")
}

func TestCombinedHistoryText(t *testing.T) {
	persistent := []userstate.Turn{{User: "a", System: "b"}}
	session := []datatypes.SessionTurn{{User: "c", System: "d"}}

	got := combinedHistoryText(persistent, session)
	assert.Equal(t, "User: a\nAI: b\n\nc\nd\n", got)
}

func TestTitleWords(t *testing.T) {
	tests := []struct{ in, want string }{
		{"expertise", "Expertise"},
		{"time_available", "Time Available"},
		{"llm_dialogue_evaluation", "Llm Dialogue Evaluation"},
	}
	for _, tt := range tests {
		if got := titleWords(tt.in); got != tt.want {
			t.Errorf("titleWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Interface compliance for the fakes.
var (
	_ llm.LLMClient = (*fakeLLM)(nil)
	_ Retriever     = (*fakeRetriever)(nil)
)
