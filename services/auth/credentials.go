// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth provides the flat-file credential store backing signup and
// login. Passwords are stored as bcrypt hashes in a single JSON file, which
// is enough for the single-node deployments this service targets.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ===== Errors =====

var (
	// ErrUserExists is returned by Register for a taken username.
	ErrUserExists = errors.New("auth: user already exists")

	// ErrInvalidCredentials is returned by Authenticate for an unknown
	// user or a wrong password. The two cases are deliberately
	// indistinguishable to callers.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// IsInvalidCredentials reports whether err is a failed login.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// ===== File Store =====

// FileStore persists username to bcrypt-hash pairs in one JSON file.
//
// # Thread Safety
//
// Safe for concurrent use within one process. The file is rewritten
// atomically on every registration, so a crash never leaves a truncated
// credential file behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store over path. The file is created lazily on
// the first registration.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Register hashes the password and records the new user.
func (s *FileStore) Register(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if username == "" || password == "" {
		return fmt.Errorf("auth: username and password are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	if _, taken := creds[username]; taken {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	creds[username] = string(hash)

	if err := s.save(creds); err != nil {
		return err
	}
	slog.Info("Registered user", "username", username)
	return nil
}

// Authenticate verifies a username/password pair.
func (s *FileStore) Authenticate(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	creds, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	hash, found := creds[username]
	if !found {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// load reads the credential file, treating absence as empty.
func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read credentials %s: %w", s.path, err)
	}

	var creds map[string]string
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", s.path, err)
	}
	if creds == nil {
		creds = map[string]string{}
	}
	return creds, nil
}

// save writes the credential file atomically via temp file plus rename.
func (s *FileStore) save(creds map[string]string) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create credentials dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials %s: %w", s.path, err)
	}
	return nil
}
