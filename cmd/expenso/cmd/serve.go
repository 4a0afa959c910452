package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/expenso-ai/expenso/internal/ingestion"
	"github.com/expenso-ai/expenso/internal/mcp"
	"github.com/expenso-ai/expenso/internal/retrieval"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for receipt tools.

The server communicates via stdio and provides these tools:
  - store_receipt: Store a receipt extracted from an image
  - get_receipt: Get one receipt by its image hash ID
  - search_receipts_by_metadata: Filter by time window and amount
  - search_relevant_receipts: Semantic search by description
  - get_category_summary: Per-category spending breakdown
  - search_receipts_by_category: Find receipts by item category

Example:
  expenso serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	esClient, err := newESClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := esClient.CreateIndex(ctx); err != nil {
		return fmt.Errorf("failed to prepare receipt index: %w", err)
	}

	embedClient, err := newEmbeddingsClient(cfg)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	ingestor := ingestion.New(esClient, embedClient, classifier, cfg.Receipts.DefaultCurrency)
	retriever := retrieval.New(esClient, embedClient)

	server := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, ingestor, retriever)

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
