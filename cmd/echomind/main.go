// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command echomind starts the EchoMind orchestrator HTTP server.
//
// Configuration is read from an optional YAML file (--config), with
// environment variables taking precedence for deployment overrides.
//
// # Environment Variables
//
//   - ECHOMIND_PORT: HTTP server port (default: 12250)
//   - ECHOMIND_SCHEMA_CONFIG: profile schema JSON path
//   - ECHOMIND_DATA_DIR: BadgerDB state directory (default: ./data/userstate)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: echomind-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o echomind ./cmd/echomind
//
//	# Run
//	./echomind serve --config config.yaml
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/echomind/pkg/logging"
	"github.com/AleutianAI/echomind/services/orchestrator"
)

// fileConfig mirrors the YAML layout of config.yaml.
type fileConfig struct {
	Port              int    `yaml:"port"`
	DataDir           string `yaml:"data_dir"`
	SchemaConfig      string `yaml:"schema_config"`
	OpenAIKeyPath     string `yaml:"openai_key_path"`
	DocsDir           string `yaml:"docs_dir"`
	ManifestPath      string `yaml:"manifest_path"`
	CredentialsPath   string `yaml:"credentials_path"`
	MuseumDir         string `yaml:"museum_dir"`
	WeaviateURL       string `yaml:"weaviate_url"`
	WatchDocs         bool   `yaml:"watch_docs"`
	BuildIndexOnStart bool   `yaml:"build_index_on_start"`
	RetrievalTopK     int    `yaml:"retrieval_top_k"`
	OTelEndpoint      string `yaml:"otel_endpoint"`
	GinMode           string `yaml:"gin_mode"`
}

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "echomind",
		Short: "A CLI to manage the EchoMind adaptive conversation service",
		Long: `EchoMind is an adaptive conversation orchestrator that tailors
LLM responses to a persistent per-user profile, detected biases, and
retrieved corpus content.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the EchoMind orchestrator HTTP server",
		Run:   runServe,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	// Setup structured logging
	logLogger := logging.Setup(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("ECHOMIND_LOG_LEVEL")),
		Service: "orchestrator",
		JSON:    true,
	})
	defer func() { _ = logLogger.Close() }()

	cfg, err := buildConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"schema_config", cfg.SchemaConfigPath,
		"data_dir", cfg.DataDir,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// buildConfig layers the optional YAML file under environment overrides.
func buildConfig(path string) (orchestrator.Config, error) {
	var fc fileConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return orchestrator.Config{}, err
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return orchestrator.Config{}, err
		}
		slog.Info("Configuration loaded", "path", path)
	}

	cfg := orchestrator.Config{
		Port:              getEnvInt("ECHOMIND_PORT", fc.Port),
		DataDir:           getEnvString("ECHOMIND_DATA_DIR", fc.DataDir),
		SchemaConfigPath:  getEnvString("ECHOMIND_SCHEMA_CONFIG", fc.SchemaConfig),
		OpenAIKeyPath:     getEnvString("ECHOMIND_OPENAI_KEY_PATH", fc.OpenAIKeyPath),
		DocsDir:           getEnvString("ECHOMIND_DOCS_DIR", fc.DocsDir),
		ManifestPath:      fc.ManifestPath,
		CredentialsPath:   fc.CredentialsPath,
		MuseumDir:         getEnvString("ECHOMIND_MUSEUM_DIR", fc.MuseumDir),
		WeaviateURL:       getEnvString("WEAVIATE_SERVICE_URL", fc.WeaviateURL),
		WatchDocs:         fc.WatchDocs,
		BuildIndexOnStart: fc.BuildIndexOnStart,
		RetrievalTopK:     fc.RetrievalTopK,
		OTelEndpoint:      getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", fc.OTelEndpoint),
		GinMode:           getEnvString("GIN_MODE", fc.GinMode),
	}
	return cfg, nil
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
