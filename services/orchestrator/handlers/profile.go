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
	"github.com/AleutianAI/echomind/services/userstate"
)

// HandleGetProfile serves GET /v1/users/:userId/profile?mode=: the merged
// flat view of schema fields plus the mode's derived annotations.
func HandleGetProfile(store userstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleGetProfile")
		defer span.End()

		mode, ok := queryMode(c)
		if !ok {
			return
		}
		userID := c.Param("userId")

		profile, err := store.GetProfile(ctx, userID, mode)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if userstate.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user or mode record"})
				return
			}
			slog.Error("Profile read failed", "user", userID, "mode", mode, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile read failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.ProfileResponse{
			UserID:  userID,
			Mode:    string(mode),
			Profile: profile,
		})
	}
}

// HandleUpdateProfile serves PUT /v1/users/:userId/profile.
//
// The partial update lands on the shared standard and file records; keys
// not declared by the schema are ignored. The applied profile is also
// appended to the global profile log that seeds future signups.
func HandleUpdateProfile(store *userstate.BadgerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleUpdateProfile")
		defer span.End()

		var req datatypes.ProfileUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID := c.Param("userId")

		if err := store.UpdateProfile(ctx, userID, req.Profile); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if userstate.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
				return
			}
			slog.Error("Profile update failed", "user", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile update failed"})
			return
		}
		if err := store.AppendGlobalProfile(ctx, req.Profile); err != nil {
			// Prediction seed only; the user's own update already landed.
			slog.Warn("Global profile append failed", "user", userID, "error", err)
		}

		profile, err := store.GetProfile(ctx, userID, userstate.ModeStandard)
		if err != nil {
			span.RecordError(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "profile read failed"})
			return
		}
		c.JSON(http.StatusOK, datatypes.ProfileResponse{
			UserID:  userID,
			Mode:    string(userstate.ModeStandard),
			Profile: profile,
		})
	}
}
