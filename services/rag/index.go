// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag maintains the incremental, content-addressed retrieval index
// over a directory of plain-text documents.
//
// Each document is split into overlapping chunks; every chunk is addressed
// by a sha256 over its text plus sorted metadata. A JSON manifest persisted
// next to the index records every chunk ever embedded, so rebuilds only pay
// the embedding cost of chunks not seen before. The index is growth-only:
// deleting a source file does not evict its chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/echomind/services/llm"
)

// ===== Errors =====

// ErrNotInitialized is returned by Retrieve before the first successful
// BuildOrUpdate.
var ErrNotInitialized = errors.New("rag: index not initialized")

// IsNotInitialized reports whether err indicates retrieval before a build.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}

// ===== Configuration =====

// ChunkSeparator joins retrieved chunks into a single context block.
const ChunkSeparator = "\n---\n"

// Config holds index construction parameters.
type Config struct {
	// DocsDir is the corpus root. Every *.txt file under it (recursively)
	// is indexed.
	DocsDir string

	// ManifestPath is where the JSON manifest is persisted.
	ManifestPath string

	// TopK is the number of chunks Retrieve returns. Defaults to 3.
	TopK int

	// EmbedBatchSize caps how many chunks go into one embedding call.
	// Defaults to 16.
	EmbedBatchSize int

	// EmbedBatchesPerSecond throttles embedding calls during a build.
	// Defaults to 5.
	EmbedBatchesPerSecond float64
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 16
	}
	if c.EmbedBatchesPerSecond <= 0 {
		c.EmbedBatchesPerSecond = 5
	}
}

// ===== Index =====

// Stats is a snapshot of index state after the most recent build.
type Stats struct {
	Documents   int       `json:"documents"`
	TotalChunks int       `json:"total_chunks"`
	NewChunks   int       `json:"new_chunks"`
	LastBuild   time.Time `json:"last_build"`
}

// Index is the incremental retrieval index.
//
// Usage:
//
//	idx := rag.NewIndex(cfg, embedder, rag.NewMemorySearcher())
//	if err := idx.BuildOrUpdate(ctx); err != nil { ... }
//	context, err := idx.Retrieve(ctx, query)
type Index struct {
	cfg      Config
	embedder llm.Embedder
	searcher Searcher
	limiter  *rate.Limiter

	mu          sync.Mutex
	initialized bool
	stats       Stats
}

// NewIndex creates an index over cfg.DocsDir backed by the given searcher.
// No I/O happens until BuildOrUpdate.
func NewIndex(cfg Config, embedder llm.Embedder, searcher Searcher) *Index {
	cfg.applyDefaults()
	return &Index{
		cfg:      cfg,
		embedder: embedder,
		searcher: searcher,
		limiter:  rate.NewLimiter(rate.Limit(cfg.EmbedBatchesPerSecond), 1),
	}
}

// BuildOrUpdate scans the corpus and embeds only chunks the manifest has
// not seen before.
//
// # Description
//
// The build loads the persisted manifest, walks DocsDir for *.txt files,
// splits each into chunks, and content-addresses every chunk. Chunks whose
// hash is already in the manifest are skipped; the rest are embedded in
// rate-limited batches. The full manifest (old and new chunks alike) is
// then pushed into the searcher, so an in-memory backend is fully restored
// after a process restart, and the manifest is written back atomically.
//
// # Outputs
//
//   - error: Non-nil when the scan, an embedding call, the searcher, or
//     the manifest write fails. On error the previous manifest on disk is
//     left untouched.
//
// # Limitations
//
//   - Growth-only: chunks from deleted or edited-away content are never
//     evicted.
func (i *Index) BuildOrUpdate(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	man, err := loadManifest(i.cfg.ManifestPath)
	if err != nil {
		return err
	}

	docs, err := listDocuments(i.cfg.DocsDir)
	if err != nil {
		return err
	}
	slog.Info("Scanning document corpus", "dir", i.cfg.DocsDir, "documents", len(docs))

	var pending []StoredChunk
	for _, path := range docs {
		chunks, err := chunkFile(i.cfg.DocsDir, path)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			if _, seen := man.Chunks[c.Hash]; seen {
				continue
			}
			pending = append(pending, c)
		}
	}

	if err := i.embedPending(ctx, man, pending); err != nil {
		return err
	}

	all := make([]StoredChunk, 0, len(man.Chunks))
	for _, c := range man.Chunks {
		all = append(all, c)
	}
	if err := i.searcher.Upsert(ctx, all); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	if err := man.save(i.cfg.ManifestPath); err != nil {
		return err
	}

	i.initialized = true
	i.stats = Stats{
		Documents:   len(docs),
		TotalChunks: len(man.Chunks),
		NewChunks:   len(pending),
		LastBuild:   time.Now().UTC(),
	}
	slog.Info("Index build complete",
		"documents", len(docs),
		"totalChunks", len(man.Chunks),
		"newChunks", len(pending),
		"elapsed", time.Since(start))
	return nil
}

// Retrieve embeds the query and returns the TopK most similar chunks joined
// with ChunkSeparator. An initialized but empty index yields "" with no
// error; calling before the first build yields ErrNotInitialized.
func (i *Index) Retrieve(ctx context.Context, query string) (string, error) {
	i.mu.Lock()
	ready := i.initialized
	topK := i.cfg.TopK
	i.mu.Unlock()
	if !ready {
		return "", ErrNotInitialized
	}

	count, err := i.searcher.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count chunks: %w", err)
	}
	if count == 0 {
		return "", nil
	}

	vectors, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	results, err := i.searcher.Search(ctx, vectors[0], topK)
	if err != nil {
		return "", fmt.Errorf("search chunks: %w", err)
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	return strings.Join(parts, ChunkSeparator), nil
}

// Stats returns a snapshot of the last build. Zero-valued before the first
// build.
func (i *Index) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

// ===== Private Helpers =====

// embedPending embeds new chunks in rate-limited batches and records them
// in the manifest.
func (i *Index) embedPending(ctx context.Context, man *manifest, pending []StoredChunk) error {
	for start := 0; start < len(pending); start += i.cfg.EmbedBatchSize {
		end := start + i.cfg.EmbedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := i.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("await embed budget: %w", err)
		}

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		vectors, err := i.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunk batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed chunk batch: expected %d vectors, got %d", len(batch), len(vectors))
		}

		for j, c := range batch {
			c.Vector = vectors[j]
			man.Chunks[c.Hash] = c
		}
		slog.Debug("Embedded chunk batch", "batchSize", len(batch), "progress", end, "total", len(pending))
	}
	return nil
}

// listDocuments walks root for *.txt files, returning sorted absolute paths.
// A missing corpus directory yields an empty corpus, not an error.
func listDocuments(root string) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Document corpus directory does not exist", "dir", root)
			return nil, nil
		}
		return nil, fmt.Errorf("walk corpus %s: %w", root, err)
	}
	return docs, nil
}

// chunkFile reads and splits one document, attaching provenance metadata.
func chunkFile(root, path string) ([]StoredChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	pieces, err := splitDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("chunk document %s: %w", path, err)
	}

	chunks := make([]StoredChunk, 0, len(pieces))
	for idx, content := range pieces {
		meta := map[string]string{
			"source":      filepath.ToSlash(rel),
			"chunk_index": strconv.Itoa(idx),
		}
		chunks = append(chunks, StoredChunk{
			Hash:     ChunkHash(content, meta),
			Content:  content,
			Metadata: meta,
		})
	}
	return chunks, nil
}
