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
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ===== Weaviate Searcher =====

// chunkClassName is the Weaviate class holding corpus chunks.
const chunkClassName = "EchoChunk"

// Compile-time interface compliance.
var _ Searcher = (*WeaviateSearcher)(nil)

// WeaviateSearcher is a Searcher backed by a Weaviate instance. Chunk ids
// are derived deterministically from the content hash, so re-upserting the
// same chunk overwrites rather than duplicates.
type WeaviateSearcher struct {
	client *weaviate.Client
}

// NewWeaviateSearcher wraps an existing Weaviate client and ensures the
// chunk class exists.
func NewWeaviateSearcher(ctx context.Context, client *weaviate.Client) (*WeaviateSearcher, error) {
	s := &WeaviateSearcher{client: client}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the EchoChunk class when it is missing.
func (s *WeaviateSearcher) ensureSchema(ctx context.Context) error {
	_, err := s.client.Schema().ClassGetter().WithClassName(chunkClassName).Do(ctx)
	if err == nil {
		slog.Debug("Weaviate schema already exists", "class", chunkClassName)
		return nil
	}

	indexFilterable := new(bool)
	*indexFilterable = true

	class := &models.Class{
		Class:       chunkClassName,
		Description: "One content-addressed chunk of the retrieval corpus.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "Chunk body text.",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Relative path of the originating document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "chunk_index",
				DataType:    []string{"text"},
				Description: "Position of the chunk within its document.",
			},
			{
				Name:            "hash",
				DataType:        []string{"text"},
				Description:     "sha256 content address of the chunk.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}

	slog.Info("Creating Weaviate schema", "class", chunkClassName)
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", chunkClassName, err)
	}
	return nil
}

// Upsert implements the Searcher interface.
func (s *WeaviateSearcher) Upsert(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class:  chunkClassName,
			ID:     strfmt.UUID(chunkID(c.Hash)),
			Vector: c.Vector,
			Properties: map[string]interface{}{
				"content":     c.Content,
				"source":      c.Metadata["source"],
				"chunk_index": c.Metadata["chunk_index"],
				"hash":        c.Hash,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch import to weaviate: %w", err)
	}

	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "error", errItem.Message)
			}
			return fmt.Errorf("weaviate rejected one or more chunks")
		}
	}
	return nil
}

// Search implements the Searcher interface.
func (s *WeaviateSearcher) Search(ctx context.Context, vector []float32, topK int) ([]ScoredChunk, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "chunk_index"},
		{Name: "hash"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(chunkClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search failed: %s", result.Errors[0].Message)
	}

	return parseSearchResults(result.Data), nil
}

// Count implements the Searcher interface.
func (s *WeaviateSearcher) Count(ctx context.Context) (int, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(chunkClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}

	// Walk Aggregate -> EchoChunk -> [0] -> meta -> count.
	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := agg[chunkClassName].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

// chunkID folds the hex content hash into a deterministic UUID.
func chunkID(hash string) string {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) < 16 {
		// Malformed hash, fall back to hashing the string itself.
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash)).String()
	}
	id, err := uuid.FromBytes(raw[:16])
	if err != nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash)).String()
	}
	return id.String()
}

// parseSearchResults walks the GraphQL response shape into scored chunks.
func parseSearchResults(data map[string]models.JSONObject) []ScoredChunk {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[chunkClassName].([]interface{})
	if !ok {
		return nil
	}

	results := make([]ScoredChunk, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		chunk := StoredChunk{Metadata: map[string]string{}}
		if v, ok := obj["content"].(string); ok {
			chunk.Content = v
		}
		if v, ok := obj["hash"].(string); ok {
			chunk.Hash = v
		}
		if v, ok := obj["source"].(string); ok {
			chunk.Metadata["source"] = v
		}
		if v, ok := obj["chunk_index"].(string); ok {
			chunk.Metadata["chunk_index"] = v
		}

		var score float64
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := add["certainty"].(float64); ok {
				score = certainty
			}
		}
		results = append(results, ScoredChunk{Chunk: chunk, Score: score})
	}
	return results
}
