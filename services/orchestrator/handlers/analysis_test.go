// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

func TestHandleMaximAnalysis_Success(t *testing.T) {
	f := newHandlerFixture(t)
	f.createUser(t, "alice")

	router := gin.New()
	router.POST("/v1/analysis/maxims", HandleMaximAnalysis(f.convSvc))

	w := postJSON(t, router, "/v1/analysis/maxims", datatypes.MaximAnalysisRequest{
		UserID: "alice",
		Text:   "The meeting is at 3pm in room 204. Bring the quarterly report.",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.MaximAnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.UserID)
	assert.Equal(t, "general", resp.DomainContext)
	require.NotNil(t, resp.Evaluation)
	assert.Equal(t, 5, resp.Evaluation.Relevance.Score)

	// The rubric is persisted on the maxim-evaluation record.
	profile, err := f.store.GetProfile(context.Background(), "alice", userstate.ModeMaximEvaluation)
	require.NoError(t, err)
	assert.NotEqual(t, userstate.NeutralAnnotation, profile[userstate.DerivedContentEvaluation])
}

func TestHandleMaximAnalysis_BlankTextReturns400(t *testing.T) {
	f := newHandlerFixture(t)
	f.createUser(t, "alice")

	router := gin.New()
	router.POST("/v1/analysis/maxims", HandleMaximAnalysis(f.convSvc))

	w := postJSON(t, router, "/v1/analysis/maxims", datatypes.MaximAnalysisRequest{
		UserID: "alice",
		Text:   "   ",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMaximAnalysis_UnknownUserReturns404(t *testing.T) {
	f := newHandlerFixture(t)

	router := gin.New()
	router.POST("/v1/analysis/maxims", HandleMaximAnalysis(f.convSvc))

	w := postJSON(t, router, "/v1/analysis/maxims", datatypes.MaximAnalysisRequest{
		UserID: "ghost",
		Text:   "Evaluate this text please.",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}
