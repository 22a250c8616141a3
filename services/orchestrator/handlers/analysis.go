// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/llm"
	"github.com/AleutianAI/echomind/services/orchestrator/conversation"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

// HandleMaximAnalysis serves POST /v1/analysis/maxims: rubric evaluation of
// a piece of text, persisted as the user's content evaluation. Blank text
// is a 400, not a degraded result.
func HandleMaximAnalysis(svc *conversation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleMaximAnalysis")
		defer span.End()

		var req datatypes.MaximAnalysisRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		eval, err := svc.AnalyzeText(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case strings.Contains(err.Error(), "validation failed"):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case userstate.IsNotFound(err):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
			case llm.IsCapabilityError(err):
				slog.Error("Maxim analysis backend failed", "user", req.UserID, "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "analysis backend failed"})
			default:
				slog.Error("Maxim analysis failed", "user", req.UserID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
			}
			return
		}

		c.JSON(http.StatusOK, datatypes.MaximAnalysisResponse{
			UserID:        req.UserID,
			DomainContext: req.DomainContext,
			Evaluation:    eval,
		})
	}
}
