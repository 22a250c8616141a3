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
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/echomind/services/auth"
	"github.com/AleutianAI/echomind/services/orchestrator/datatypes"
	"github.com/AleutianAI/echomind/services/userstate"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *handlerFixture) {
	t.Helper()
	f := newHandlerFixture(t)
	creds := auth.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))

	router := gin.New()
	router.POST("/v1/auth/signup", HandleSignup(creds, f.store))
	router.POST("/v1/auth/login", HandleLogin(creds))
	return router, f
}

// =============================================================================
// HandleSignup Tests
// =============================================================================

func TestHandleSignup_CreatesRecordsForAllModes(t *testing.T) {
	router, f := newAuthRouter(t)

	w := postJSON(t, router, "/v1/auth/signup", datatypes.SignupRequest{
		Username: "alice",
		Password: "correct-horse-battery",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp datatypes.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "created", resp.Status)

	// Every conversation mode gets its own record at signup.
	for _, mode := range userstate.AllModes {
		_, err := f.store.GetProfile(context.Background(), "alice", mode)
		assert.NoError(t, err, "expected a record for mode %s", mode)
	}
}

func TestHandleSignup_DuplicateUsernameReturns409(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := datatypes.SignupRequest{Username: "alice", Password: "correct-horse-battery"}

	w := postJSON(t, router, "/v1/auth/signup", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, router, "/v1/auth/signup", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleSignup_ShortPasswordReturns400(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := postJSON(t, router, "/v1/auth/signup", datatypes.SignupRequest{
		Username: "alice",
		Password: "short",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// HandleLogin Tests
// =============================================================================

func TestHandleLogin_Success(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := postJSON(t, router, "/v1/auth/signup", datatypes.SignupRequest{
		Username: "alice",
		Password: "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, router, "/v1/auth/login", datatypes.LoginRequest{
		Username: "alice",
		Password: "correct-horse-battery",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleLogin_WrongPasswordReturns401(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := postJSON(t, router, "/v1/auth/signup", datatypes.SignupRequest{
		Username: "alice",
		Password: "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, router, "/v1/auth/login", datatypes.LoginRequest{
		Username: "alice",
		Password: "wrong-password-here",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleLogin_UnknownUserReturns401(t *testing.T) {
	router, _ := newAuthRouter(t)

	// Unknown usernames and wrong passwords look the same to the caller.
	w := postJSON(t, router, "/v1/auth/login", datatypes.LoginRequest{
		Username: "ghost",
		Password: "whatever-it-takes",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
