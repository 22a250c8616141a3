// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/orchestrator/observability"
	"github.com/AleutianAI/echomind/services/userstate"
)

// maximEvaluationTimeout bounds one rubric round trip. Rubric calls return
// a small JSON object but evaluate more text than the label classifiers.
const maximEvaluationTimeout = 45 * time.Second

// AnalyzeText scores a piece of text against the four cooperative-principle
// maxims and persists the result as the user's content evaluation.
//
// # Description
//
// The rubric call requests a strict JSON object with a 1-5 score and an
// explanation per maxim. The parsed result is persisted on the user's
// maxim-evaluation record as the content annotation, then returned.
//
// Unlike the classifiers inside a turn, a rubric failure here is the
// caller's problem: there is no reply to deliver alongside a degraded
// annotation, so the error propagates.
//
// # Outputs
//
//   - *datatypes.MaximEvaluation: The four-dimension rubric result.
//   - error: Validation failure (blank text), capability failure, an
//     unparseable model payload, or userstate.ErrNotFound when the user has
//     no maxim-evaluation record.
func (s *Service) AnalyzeText(ctx context.Context, req *datatypes.MaximAnalysisRequest) (*datatypes.MaximEvaluation, error) {
	ctx, span := conversationTracer.Start(ctx, "ConversationService.AnalyzeText")
	defer span.End()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	span.SetAttributes(
		attribute.String("analysis.domain", req.DomainContext),
		attribute.Int("analysis.text_bytes", len(req.Text)),
	)

	cctx, cancel := context.WithTimeout(ctx, maximEvaluationTimeout)
	defer cancel()

	raw, err := s.llm.ClassifyJSON(cctx, maximAnalysisSystemPrompt,
		buildMaximAnalysisPrompt(req.Text, req.DomainContext, req.Guidelines))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rubric call failed")
		s.recordClassifierError(observability.ClassifierMaximEvaluation)
		return nil, fmt.Errorf("maxim analysis failed: %w", err)
	}

	eval, err := datatypes.ParseMaximEvaluation(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable rubric payload")
		s.recordClassifierError(observability.ClassifierMaximEvaluation)
		return nil, err
	}

	if err := s.store.UpdateDerived(ctx, req.UserID, userstate.ModeMaximEvaluation,
		userstate.DerivedContentEvaluation, eval.String()); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist content evaluation: %w", err)
	}
	return eval, nil
}

// evaluateResponse scores the generated reply against the conversation
// context. Used inside the maxim-evaluation turn flow; failures there
// degrade the turn instead of propagating.
func (s *Service) evaluateResponse(ctx context.Context, conversationContext, reply, domainContext string) (*datatypes.MaximEvaluation, error) {
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("reply cannot be empty")
	}

	cctx, cancel := context.WithTimeout(ctx, maximEvaluationTimeout)
	defer cancel()

	raw, err := s.llm.ClassifyJSON(cctx, responseEvaluationSystemPrompt,
		buildResponseEvaluationPrompt(conversationContext, reply, domainContext))
	if err != nil {
		return nil, fmt.Errorf("response evaluation failed: %w", err)
	}
	return datatypes.ParseMaximEvaluation(raw)
}
