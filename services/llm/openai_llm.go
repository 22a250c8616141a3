// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Classifier calls use deterministic-ish sampling and a tight token budget;
// they are expected to return a short label or a small JSON object.
const (
	classifierTemperature = 0.3
	classifierMaxTokens   = 128
)

// OpenAIClient implements LLMClient and Embedder against the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
}

// Compile-time interface compliance.
var (
	_ LLMClient = (*OpenAIClient)(nil)
	_ Embedder  = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates an OpenAI-backed client with an explicit API key.
//
// The key comes from the caller (resolved at startup by pkg/config); this
// constructor never reads it from the environment. Model names may still be
// overridden via OPENAI_MODEL and OPENAI_EMBEDDING_MODEL.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OpenAI API key is empty")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4o
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o")
	}
	embeddingModel := openai.EmbeddingModel(os.Getenv("OPENAI_EMBEDDING_MODEL"))
	if embeddingModel == "" {
		embeddingModel = openai.SmallEmbedding3
	}

	slog.Info("Initializing OpenAI client", "model", model, "embeddingModel", embeddingModel)
	return &OpenAIClient{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, system, user string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	content, err := o.complete(ctx, req)
	if err != nil {
		return "", &CapabilityError{Op: "generate", Err: err}
	}
	return content, nil
}

// Classify implements the LLMClient interface.
func (o *OpenAIClient) Classify(ctx context.Context, system, text string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature:         classifierTemperature,
		MaxCompletionTokens: classifierMaxTokens,
	}

	content, err := o.complete(ctx, req)
	if err != nil {
		return "", &CapabilityError{Op: "classify", Err: err}
	}
	return content, nil
}

// ClassifyJSON implements the LLMClient interface.
//
// The response format is pinned to JSON object mode so the payload is
// strictly parseable; callers still validate the shape.
func (o *OpenAIClient) ClassifyJSON(ctx context.Context, system, text string) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := o.complete(ctx, req)
	if err != nil {
		return nil, &CapabilityError{Op: "classify", Err: err}
	}
	return []byte(content), nil
}

// Embed implements the Embedder interface.
func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: o.embeddingModel,
		Input: texts,
	})
	if err != nil {
		slog.Error("OpenAI embeddings call failed", "error", err)
		return nil, &CapabilityError{Op: "embed", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &CapabilityError{
			Op:  "embed",
			Err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(resp.Data)),
		}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// complete performs one chat completion and returns the first choice content.
func (o *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
