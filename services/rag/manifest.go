// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ===== Manifest =====

// StoredChunk is one content-addressed chunk tracked by the manifest.
type StoredChunk struct {
	Hash     string            `json:"hash"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Vector   []float32         `json:"vector"`
}

// manifest is the on-disk record of every chunk ever indexed. The index is
// growth-only: chunks whose source files disappear stay in the manifest.
type manifest struct {
	Version   int                    `json:"version"`
	UpdatedAt time.Time              `json:"updated_at"`
	Chunks    map[string]StoredChunk `json:"chunks"`
}

const manifestVersion = 1

func newManifest() *manifest {
	return &manifest{Version: manifestVersion, Chunks: map[string]StoredChunk{}}
}

// loadManifest reads the manifest from path. A missing file yields an empty
// manifest, not an error; any other failure is surfaced.
func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newManifest(), nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if m.Chunks == nil {
		m.Chunks = map[string]StoredChunk{}
	}
	return &m, nil
}

// save writes the manifest atomically: marshal to a temp file in the target
// directory, then rename over the destination. A crash mid-write leaves the
// previous manifest intact.
func (m *manifest) save(path string) error {
	m.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace manifest %s: %w", path, err)
	}
	return nil
}
