// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation implements the per-turn orchestration between the
// state store, the retrieval index, and the language model.
//
// This package contains the ConversationService, which owns the turn flow:
//   - Assemble the combined context from persisted and session history
//   - Retrieve relevant content (retrieval mode) or accept caller context
//   - Classify biases concurrently and absorb classifier failures
//   - Generate the reply under an adaptive system prompt
//   - Persist the turn, the new mental state, and the annotations
//
// The service is stateless; all dependencies are injected and all state
// lives in the user state store. External-capability failures never abort a
// turn: the affected annotation degrades to an error message, its state
// write is skipped, and the turn completes.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/echomind/pkg/config"
	"github.com/AleutianAI/echomind/services/llm"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/orchestrator/observability"
	"github.com/AleutianAI/echomind/services/userstate"
)

// conversationTracer is the OpenTelemetry tracer for ConversationService
// operations.
var conversationTracer = otel.Tracer("echomind.orchestrator.conversation")

// =============================================================================
// Timeouts and Sampling
// =============================================================================

const (
	// classifierTimeout bounds each classifier round trip. Classifier
	// output is a short label; anything slower than this is treated as a
	// failure and degraded.
	classifierTimeout = 20 * time.Second

	// generationTimeout bounds the reply generation round trip.
	generationTimeout = 90 * time.Second

	// retrievalTimeout bounds index retrieval, including the query
	// embedding call.
	retrievalTimeout = 30 * time.Second

	// generationMaxTokens caps the reply length.
	generationMaxTokens = 500

	// generationTemperature is the sampling temperature for conversational
	// replies. The maxim-evaluation flow generates deterministically
	// instead.
	generationTemperature = float32(0.7)
)

// =============================================================================
// Interfaces
// =============================================================================

// Retriever supplies contextual content for a query. The retrieval index
// implements it; tests substitute fakes.
type Retriever interface {
	// Retrieve returns the top matching chunks joined into one context
	// string, or "" when the index holds nothing relevant.
	Retrieve(ctx context.Context, query string) (string, error)
}

// =============================================================================
// ConversationService
// =============================================================================

// Service orchestrates one conversation turn end-to-end.
//
// Usage:
//
//	svc := conversation.NewService(store, llmClient, index, schemaCfg, metrics)
//	resp, err := svc.HandleTurn(ctx, &req)
type Service struct {
	store     userstate.Store
	llm       llm.LLMClient
	retriever Retriever
	schema    *config.SchemaConfig
	metrics   *observability.TurnMetrics
}

// NewService creates a conversation service with the provided dependencies.
//
// retriever may be nil, which disables retrieval: the retrieval mode then
// generates with empty retrieved content. metrics may be nil in tests.
func NewService(
	store userstate.Store,
	llmClient llm.LLMClient,
	retriever Retriever,
	schema *config.SchemaConfig,
	metrics *observability.TurnMetrics,
) *Service {
	return &Service{
		store:     store,
		llm:       llmClient,
		retriever: retriever,
		schema:    schema,
		metrics:   metrics,
	}
}

// =============================================================================
// Turn Handling
// =============================================================================

// HandleTurn processes one conversation turn.
//
// # Description
//
// The flow is:
//  1. Validate the request and populate defaults.
//  2. Load the persisted transcript and merge it with the session history.
//  3. Load the profile for the request's mode.
//  4. Source contextual content: index retrieval over the session text in
//     the retrieval mode, the caller-supplied Context field elsewhere.
//  5. Classify content and dialogue bias concurrently (bias modes).
//  6. Generate the reply under the assembled adaptive system prompt.
//  7. Persist the new mental state, the turn, and successful annotations.
//     The maxim-evaluation mode additionally scores the reply against the
//     conversation and persists the rubric.
//  8. Return the reply plus the dashboard projection.
//
// # Outputs
//
//   - *datatypes.TurnResponse: The reply and dashboard. Degraded is true
//     when any external call failed and its payload was replaced by an
//     error message.
//   - error: Non-nil only for validation failures, unknown users
//     (userstate.ErrNotFound), or storage failures. Capability failures do
//     not surface here.
func (s *Service) HandleTurn(ctx context.Context, req *datatypes.TurnRequest) (*datatypes.TurnResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "ConversationService.HandleTurn")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	mode := userstate.Mode(req.Mode)
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("turn.mode", req.Mode),
	)

	start := time.Now()
	status := observability.TurnStatusError
	s.turnStarted(req.Mode)
	defer func() {
		s.turnEnded(req.Mode)
		s.recordTurn(req.Mode, status, time.Since(start).Seconds())
	}()

	// Step 2: combined context from both history layers.
	persistent, err := s.store.GetDialogueHistory(ctx, req.UserID, mode)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load dialogue history: %w", err)
	}
	combined := combinedHistoryText(persistent, req.SessionHistory)

	// Step 3: profile. An unknown user is the caller's error, not a
	// degradation.
	profile, err := s.store.GetProfile(ctx, req.UserID, mode)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if mode.UsesMaximEvaluation() {
		resp, err := s.handleMaximTurn(ctx, req, profile, combined)
		if err == nil {
			status = observability.TurnStatusSuccess
			if resp.Degraded {
				status = observability.TurnStatusDegraded
			}
		}
		return resp, err
	}

	degraded := false

	// Step 4: contextual content.
	var retrieved string
	if mode == userstate.ModeStandard {
		retrieved = s.retrieveContent(ctx, sessionText(req.SessionHistory), &degraded)
	} else {
		retrieved = req.Context
	}

	// Step 5: bias classifiers, concurrently. Failures are absorbed into
	// the (value, error) pairs; the group itself never fails.
	var contentBias, dialogueBias string
	var contentBiasErr, dialogueBiasErr error

	g, gctx := errgroup.WithContext(ctx)
	if mode == userstate.ModeStandard {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, classifierTimeout)
			defer cancel()
			contentBias, contentBiasErr = s.llm.Classify(cctx, contentBiasSystemPrompt, retrieved)
			return nil
		})
	}
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, classifierTimeout)
		defer cancel()
		dialogueBias, dialogueBiasErr = s.llm.Classify(cctx, dialogueBiasSystemPrompt, req.Message)
		return nil
	})
	_ = g.Wait()

	if mode == userstate.ModeStandard && contentBiasErr != nil {
		slog.Warn("Content bias classifier failed", "user", req.UserID, "error", contentBiasErr)
		contentBias = degradationMessage("predicting content bias", contentBiasErr)
		s.recordClassifierError(observability.ClassifierContentBias)
		degraded = true
	}
	if dialogueBiasErr != nil {
		slog.Warn("Dialogue bias classifier failed", "user", req.UserID, "error", dialogueBiasErr)
		dialogueBias = degradationMessage("predicting dialogue bias", dialogueBiasErr)
		s.recordClassifierError(observability.ClassifierDialogueBias)
		degraded = true
	}

	// Step 6: generate under the adaptive prompt.
	system := buildGenerationPrompt(promptInputs{
		retrievedContent:   retrieved,
		combinedHistory:    combined,
		contentBias:        contentBias,
		dialogueBias:       dialogueBias,
		includeContentBias: mode == userstate.ModeStandard,
		adaptation:         buildUserAdaptation(profile, s.schema),
	})

	reply, err := s.generate(ctx, system, req.Message, generationTemperature)
	if err != nil {
		slog.Error("Reply generation failed", "user", req.UserID, "error", err)
		span.RecordError(err)
		status = observability.TurnStatusDegraded
		resp := datatypes.NewTurnResponse(req.RequestID,
			degradationMessage("generating response", err),
			buildDashboard(profile, s.schema, mode, req.SessionHistory))
		resp.Degraded = true
		return resp, nil
	}

	// Step 7: persist. Annotations whose classifier failed keep their
	// previous persisted value.
	degraded = s.classifyAndPersistMentalState(ctx, req.UserID, mode, req.Message) || degraded
	if err := s.store.AppendDialogue(ctx, req.UserID, mode, req.Message, reply); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("append dialogue: %w", err)
	}
	if dialogueBiasErr == nil {
		if err := s.store.UpdateDerived(ctx, req.UserID, mode, userstate.DerivedDialogueBias, dialogueBias); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("persist dialogue bias: %w", err)
		}
	}
	if mode == userstate.ModeStandard && contentBiasErr == nil {
		if err := s.store.UpdateDerived(ctx, req.UserID, mode, userstate.DerivedContentBias, contentBias); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("persist content bias: %w", err)
		}
	}

	// Step 8: dashboard over the refreshed profile.
	resp := s.buildTurnResponse(ctx, req, mode, profile, reply)
	resp.Degraded = degraded

	status = observability.TurnStatusSuccess
	if degraded {
		status = observability.TurnStatusDegraded
	}
	span.SetAttributes(attribute.Bool("turn.degraded", degraded))
	return resp, nil
}

// handleMaximTurn is the maxim-evaluation variant of the turn flow: no bias
// classifiers, deterministic generation, and a rubric evaluation of the
// reply persisted with the turn.
func (s *Service) handleMaximTurn(
	ctx context.Context,
	req *datatypes.TurnRequest,
	profile map[string]string,
	combined string,
) (*datatypes.TurnResponse, error) {
	ctx, span := conversationTracer.Start(ctx, "ConversationService.handleMaximTurn")
	defer span.End()

	mode := userstate.ModeMaximEvaluation
	system := buildMaximGenerationPrompt(req.Context, profile[userstate.DerivedContentEvaluation], req.DomainContext)

	reply, err := s.generate(ctx, system, req.Message, 0)
	if err != nil {
		slog.Error("Reply generation failed", "user", req.UserID, "error", err)
		span.RecordError(err)
		resp := datatypes.NewTurnResponse(req.RequestID,
			degradationMessage("generating response", err),
			buildDashboard(profile, s.schema, mode, req.SessionHistory))
		resp.Degraded = true
		return resp, nil
	}

	degraded := s.classifyAndPersistMentalState(ctx, req.UserID, mode, req.Message)
	if err := s.store.AppendDialogue(ctx, req.UserID, mode, req.Message, reply); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("append dialogue: %w", err)
	}

	// Rubric evaluation of the reply in context. A rubric failure degrades
	// the response; the reply itself already happened and stays persisted.
	eval, evalErr := s.evaluateResponse(ctx, combined, reply, req.DomainContext)
	if evalErr != nil {
		slog.Warn("Response maxim evaluation failed", "user", req.UserID, "error", evalErr)
		s.recordClassifierError(observability.ClassifierMaximEvaluation)
		degraded = true
	} else {
		if err := s.store.UpdateDerived(ctx, req.UserID, mode, userstate.DerivedDialogueEvaluation, eval.String()); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("persist dialogue evaluation: %w", err)
		}
	}

	resp := s.buildTurnResponse(ctx, req, mode, profile, reply)
	resp.Evaluation = eval
	resp.Degraded = degraded
	span.SetAttributes(attribute.Bool("turn.degraded", degraded))
	return resp, nil
}

// Reset clears the dynamic state of one (user, mode) record and returns the
// fresh dashboard.
func (s *Service) Reset(ctx context.Context, userID string, mode userstate.Mode) (string, error) {
	ctx, span := conversationTracer.Start(ctx, "ConversationService.Reset")
	defer span.End()

	if err := s.store.ResetDynamic(ctx, userID, mode); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("reset dynamic state: %w", err)
	}
	profile, err := s.store.GetProfile(ctx, userID, mode)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("load profile: %w", err)
	}
	return buildDashboard(profile, s.schema, mode, nil), nil
}

// =============================================================================
// Private Helpers
// =============================================================================

// retrieveContent queries the index over the session text. Failures degrade
// to an error message in the retrieved-content slot rather than aborting
// the turn; an uninitialized or empty index yields "".
func (s *Service) retrieveContent(ctx context.Context, query string, degraded *bool) string {
	if s.retriever == nil {
		return ""
	}

	rctx, cancel := context.WithTimeout(ctx, retrievalTimeout)
	defer cancel()

	content, err := s.retriever.Retrieve(rctx, query)
	if err != nil {
		slog.Warn("Content retrieval failed", "error", err)
		s.recordRetrieval("error")
		*degraded = true
		return degradationMessage("retrieving content", err)
	}
	if content == "" {
		s.recordRetrieval("empty")
		return ""
	}
	s.recordRetrieval("hit")
	return content
}

// generate performs one bounded generation round trip.
func (s *Service) generate(ctx context.Context, system, user string, temperature float32) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	maxTokens := generationMaxTokens
	temp := temperature
	return s.llm.Generate(gctx, system, user, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}

// classifyAndPersistMentalState predicts the user's mental state from their
// utterance and persists it. Returns true when the turn degraded: on a
// classifier failure the previous persisted state is kept.
func (s *Service) classifyAndPersistMentalState(ctx context.Context, userID string, mode userstate.Mode, utterance string) bool {
	cctx, cancel := context.WithTimeout(ctx, classifierTimeout)
	defer cancel()

	state, err := s.llm.Classify(cctx, mentalStateSystemPrompt, utterance)
	if err != nil {
		slog.Warn("Mental state classifier failed", "user", userID, "error", err)
		s.recordClassifierError(observability.ClassifierMentalState)
		return true
	}
	if err := s.store.UpdateDerived(ctx, userID, mode, userstate.DerivedMentalState, state); err != nil {
		slog.Warn("Mental state write failed", "user", userID, "error", err)
		return true
	}
	return false
}

// buildTurnResponse re-reads the profile so the dashboard reflects the
// annotations written this turn, then renders the response. A failed
// re-read falls back to the pre-turn profile.
func (s *Service) buildTurnResponse(
	ctx context.Context,
	req *datatypes.TurnRequest,
	mode userstate.Mode,
	fallbackProfile map[string]string,
	reply string,
) *datatypes.TurnResponse {
	profile, err := s.store.GetProfile(ctx, req.UserID, mode)
	if err != nil {
		profile = fallbackProfile
	}
	session := append(append([]datatypes.SessionTurn{}, req.SessionHistory...),
		datatypes.SessionTurn{User: req.Message, System: reply})
	return datatypes.NewTurnResponse(req.RequestID, reply,
		buildDashboard(profile, s.schema, mode, session))
}

// degradationMessage renders a capability failure as the user-visible
// payload for the affected field.
func degradationMessage(doing string, err error) string {
	return fmt.Sprintf("Error %s: %v", doing, err)
}

// Metric helpers tolerate a nil metrics sink so tests can run without a
// Prometheus registry.

func (s *Service) turnStarted(mode string) {
	if s.metrics != nil {
		s.metrics.TurnStarted(mode)
	}
}

func (s *Service) turnEnded(mode string) {
	if s.metrics != nil {
		s.metrics.TurnEnded(mode)
	}
}

func (s *Service) recordTurn(mode string, status observability.TurnStatus, seconds float64) {
	if s.metrics != nil {
		s.metrics.RecordTurn(mode, status, seconds)
	}
}

func (s *Service) recordClassifierError(classifier string) {
	if s.metrics != nil {
		s.metrics.RecordClassifierError(classifier)
	}
}

func (s *Service) recordRetrieval(result string) {
	if s.metrics != nil {
		s.metrics.RecordRetrieval(result)
	}
}
