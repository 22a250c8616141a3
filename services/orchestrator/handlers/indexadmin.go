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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/orchestrator/observability"
	"github.com/AleutianAI/echomind/services/rag"
)

// HandleIndexRebuild serves POST /v1/index/rebuild: a synchronous
// incremental build pass. Already-indexed chunks are skipped; only new
// content is embedded.
func HandleIndexRebuild(index *rag.Index, metrics *observability.TurnMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleIndexRebuild")
		defer span.End()

		if err := index.BuildOrUpdate(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if metrics != nil {
				metrics.RecordIndexBuild(false, 0)
			}
			slog.Error("Index rebuild failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "index rebuild failed"})
			return
		}

		stats := index.Stats()
		if metrics != nil {
			metrics.RecordIndexBuild(true, stats.TotalChunks)
		}
		slog.Info("Index rebuilt",
			"documents", stats.Documents,
			"totalChunks", stats.TotalChunks,
			"newChunks", stats.NewChunks,
		)
		c.JSON(http.StatusOK, datatypes.IndexRebuildResponse{
			Status:      "ok",
			TotalChunks: stats.TotalChunks,
			NewChunks:   stats.NewChunks,
		})
	}
}

// HandleIndexStats serves GET /v1/index/stats. Before the first build all
// counts are zero and LastBuild is the zero time.
func HandleIndexStats(index *rag.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := handlerTracer.Start(c.Request.Context(), "HandleIndexStats")
		defer span.End()

		stats := index.Stats()
		c.JSON(http.StatusOK, datatypes.IndexStatsResponse{
			Documents:   stats.Documents,
			TotalChunks: stats.TotalChunks,
			NewChunks:   stats.NewChunks,
			LastBuild:   stats.LastBuild,
		})
	}
}
