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
	"context"
	"math"
	"sort"
	"sync"
)

// ===== Searcher Interface =====

// ScoredChunk is one retrieval result with its similarity score.
type ScoredChunk struct {
	Chunk StoredChunk
	Score float64
}

// Searcher is the vector backend behind the index. Implementations must be
// safe for concurrent use.
type Searcher interface {
	// Upsert adds or replaces chunks by hash.
	Upsert(ctx context.Context, chunks []StoredChunk) error

	// Search returns up to topK chunks most similar to the query vector,
	// highest score first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)
}

// Compile-time interface compliance.
var _ Searcher = (*MemorySearcher)(nil)

// ===== In-Memory Searcher =====

// MemorySearcher is a brute-force cosine-similarity backend. It holds every
// vector in memory and scans linearly on each query, which is fine for the
// corpus sizes this service indexes.
type MemorySearcher struct {
	mu     sync.RWMutex
	chunks map[string]StoredChunk
}

// NewMemorySearcher creates an empty in-memory backend.
func NewMemorySearcher() *MemorySearcher {
	return &MemorySearcher{chunks: map[string]StoredChunk{}}
}

// Upsert implements the Searcher interface.
func (s *MemorySearcher) Upsert(ctx context.Context, chunks []StoredChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.Hash] = c
	}
	return nil
}

// Search implements the Searcher interface.
func (s *MemorySearcher) Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []ScoredChunk{}, nil
	}

	s.mu.RLock()
	scored := make([]ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		scored = append(scored, ScoredChunk{Chunk: c, Score: cosineSimilarity(vector, c.Vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Count implements the Searcher interface.
func (s *MemorySearcher) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty, zero, or the dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
