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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ===== Chunking =====

const (
	// ChunkSize is the target chunk length in characters.
	ChunkSize = 1000
	// ChunkOverlap is the character overlap between adjacent chunks.
	ChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// newSplitter builds the recursive character splitter used for all corpus
// documents.
func newSplitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
		textsplitter.WithSeparators(defaultSeparators),
	)
}

// splitDocument splits one document body into chunks.
func splitDocument(content string) ([]string, error) {
	chunks, err := newSplitter().SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("split document: %w", err)
	}
	return chunks, nil
}

// ===== Content Addressing =====

// ChunkHash computes the content address of a chunk.
//
// # Description
//
// The hash covers the chunk text plus its metadata serialized in sorted key
// order, so the address is deterministic regardless of map iteration order.
// Two chunks with identical text but different metadata (for example the
// same sentence appearing in two source files) hash differently and are
// indexed separately.
//
// # Inputs
//
//   - content: The chunk text.
//   - metadata: Key/value pairs describing the chunk's provenance.
//
// # Outputs
//
//   - string: Lowercase hex sha256 digest.
func ChunkHash(content string, metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(content)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(metadata[k])
		sb.WriteString(";")
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
