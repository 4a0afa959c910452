package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/expenso-ai/expenso/internal/ingestion"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Classify items on receipts that predate categorization",
	Long: `Walk every stored receipt and classify purchased items whose category
is missing or not in the taxonomy. Only the item list is updated;
embeddings and the rest of each record stay untouched.

Requires the LLM to be enabled, otherwise every backfilled item would
land in Other.

Example:
  expenso backfill`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if !cfg.LLM.Enabled {
		return fmt.Errorf("backfill needs llm.enabled=true, refusing to classify everything as Other")
	}

	esClient, err := newESClient(cfg)
	if err != nil {
		return err
	}
	embedClient, err := newEmbeddingsClient(cfg)
	if err != nil {
		return err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}

	engine := ingestion.New(esClient, embedClient, classifier, cfg.Receipts.DefaultCurrency)

	fmt.Println("Backfilling categories...")

	result, err := engine.BackfillCategories(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("\nBackfill complete:\n")
	fmt.Printf("  Receipts scanned: %d\n", result.ReceiptsScanned)
	fmt.Printf("  Receipts updated: %d\n", result.ReceiptsUpdated)
	fmt.Printf("  Items classified: %d\n", result.ItemsClassified)
	fmt.Printf("  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
