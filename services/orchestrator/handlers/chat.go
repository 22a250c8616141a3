// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP handlers for the orchestrator. The
// handlers are thin: they bind and validate the request, call the injected
// service, and map service errors to HTTP status codes.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/orchestrator/conversation"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

var handlerTracer = otel.Tracer("echomind.orchestrator.handlers")

// HandleChatTurn serves POST /v1/chat: one conversation turn.
func HandleChatTurn(svc *conversation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatTurn")
		defer span.End()

		var req datatypes.TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad request body")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := svc.HandleTurn(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case userstate.IsNotFound(err):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user or mode record"})
			case strings.Contains(err.Error(), "validation failed"):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				slog.Error("Chat turn failed", "user", req.UserID, "mode", req.Mode, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "turn processing failed"})
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HandleChatReset serves POST /v1/chat/reset: clear the dynamic state of
// one (user, mode) record and return the fresh dashboard.
func HandleChatReset(svc *conversation.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatReset")
		defer span.End()

		var req datatypes.ResetRequest
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

		dashboard, err := svc.Reset(ctx, req.UserID, userstate.Mode(req.Mode))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if userstate.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user or mode record"})
				return
			}
			slog.Error("Chat reset failed", "user", req.UserID, "mode", req.Mode, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.DashboardResponse{
			UserID:    req.UserID,
			Mode:      req.Mode,
			Dashboard: dashboard,
		})
	}
}

// HandleGetHistory serves GET /v1/users/:userId/history?mode=: the
// persisted transcript for one record. Tolerant of absent records, which
// return an empty turn list.
func HandleGetHistory(store userstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleGetHistory")
		defer span.End()

		mode, ok := queryMode(c)
		if !ok {
			return
		}
		userID := c.Param("userId")

		history, err := store.GetDialogueHistory(ctx, userID, mode)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("History read failed", "user", userID, "mode", mode, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "history read failed"})
			return
		}

		turns := make([]datatypes.SessionTurn, len(history))
		for i, turn := range history {
			turns[i] = datatypes.SessionTurn{User: turn.User, System: turn.System}
		}
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			UserID: userID,
			Mode:   string(mode),
			Turns:  turns,
		})
	}
}

// queryMode reads and validates the mode query parameter, defaulting to
// the standard mode. Writes the 400 itself so callers can just return.
func queryMode(c *gin.Context) (userstate.Mode, bool) {
	raw := c.DefaultQuery("mode", string(userstate.ModeStandard))
	mode := userstate.Mode(raw)
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + raw})
		return "", false
	}
	return mode, true
}
