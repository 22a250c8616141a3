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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/echomind/services/auth"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

// HandleSignup serves POST /v1/auth/signup.
//
// Signup registers the credentials, then seeds one persisted record per
// conversation mode. The initial profile is predicted from the profiles of
// earlier signups; the very first user gets each field's first allowed
// value.
func HandleSignup(creds *auth.FileStore, store *userstate.BadgerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleSignup")
		defer span.End()

		var req datatypes.SignupRequest
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

		if err := creds.Register(ctx, req.Username, req.Password); err != nil {
			span.RecordError(err)
			if errors.Is(err, auth.ErrUserExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
				return
			}
			slog.Error("Signup failed", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
			return
		}

		predicted, err := store.PredictDefaultProfile(ctx)
		if err != nil {
			slog.Warn("Default profile prediction failed, using empty profile", "error", err)
			predicted = map[string]string{}
		}
		for _, mode := range userstate.AllModes {
			if err := store.Create(ctx, req.Username, mode, predicted); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "record creation failed")
				slog.Error("Record creation failed", "username", req.Username, "mode", mode, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "account state creation failed"})
				return
			}
		}

		slog.Info("User signed up", "username", req.Username)
		c.JSON(http.StatusCreated, datatypes.AuthResponse{Username: req.Username, Status: "created"})
	}
}

// HandleLogin serves POST /v1/auth/login. Unknown usernames and wrong
// passwords are indistinguishable in the reply.
func HandleLogin(creds *auth.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleLogin")
		defer span.End()

		var req datatypes.LoginRequest
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

		if err := creds.Authenticate(ctx, req.Username, req.Password); err != nil {
			span.SetStatus(codes.Error, "authentication failed")
			if auth.IsInvalidCredentials(err) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			slog.Error("Login failed", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AuthResponse{Username: req.Username, Status: "ok"})
	}
}
