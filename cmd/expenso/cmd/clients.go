package cmd

import (
	"fmt"
	"log/slog"

	"github.com/expenso-ai/expenso/internal/category"
	"github.com/expenso-ai/expenso/internal/config"
	"github.com/expenso-ai/expenso/internal/elasticsearch"
	"github.com/expenso-ai/expenso/internal/embeddings"
	"github.com/expenso-ai/expenso/internal/llm"
)

func newESClient(cfg config.Config) (*elasticsearch.Client, error) {
	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return esClient, nil
}

func newEmbeddingsClient(cfg config.Config) (*embeddings.Client, error) {
	embedClient, err := embeddings.New(embeddings.Config{
		SocketPath: cfg.Embeddings.SocketPath,
		Model:      cfg.Embeddings.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}
	return embedClient, nil
}

// newClassifier builds the item classifier. Without an LLM configured
// every unclassified item falls back to Other.
func newClassifier(cfg config.Config) (*category.Classifier, error) {
	if !cfg.LLM.Enabled {
		slog.Info("LLM classification disabled, uncategorized items fall back to Other")
		return category.New(nil), nil
	}

	llmClient, err := llm.New(llm.Config{
		SocketPath: cfg.LLM.SocketPath,
		Model:      cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	slog.Info("LLM classification enabled", "model", cfg.LLM.Model)
	return category.New(llmClient), nil
}
