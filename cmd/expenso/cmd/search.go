package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/expenso-ai/expenso/internal/retrieval"
	"github.com/expenso-ai/expenso/pkg/models"
)

var (
	searchLimit  int
	searchFormat string
	searchStart  string
	searchEnd    string
	searchMin    float64
	searchMax    float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored receipts",
	Long: `Search stored receipts.

With a query argument the search is semantic: the query is embedded and
matched against receipt embeddings. Without a query, --start and --end
filter receipts by transaction time, optionally narrowed by amount.

Examples:
  # Semantic search
  expenso search "coffee with friends"

  # Metadata search over a window
  expenso search --start 2025-01-01T00:00:00Z --end 2025-01-31T23:59:59Z

  # Narrow by amount, JSON output for scripting
  expenso search --start 2025-01-01T00:00:00Z --end 2025-01-31T23:59:59Z --min-total 100 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", retrieval.DefaultSimilarityLimit, "Maximum number of results (semantic search)")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().StringVar(&searchStart, "start", "", "Window start, ISO-8601 (metadata search)")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "Window end, ISO-8601 (metadata search)")
	searchCmd.Flags().Float64Var(&searchMin, "min-total", -1, "Minimum receipt total (metadata search)")
	searchCmd.Flags().Float64Var(&searchMax, "max-total", -1, "Maximum receipt total (metadata search)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	esClient, err := newESClient(cfg)
	if err != nil {
		return err
	}
	embedClient, err := newEmbeddingsClient(cfg)
	if err != nil {
		return err
	}
	retriever := retrieval.New(esClient, embedClient)

	var receipts []models.Receipt
	switch {
	case len(args) == 1:
		receipts, err = retriever.SearchBySimilarity(ctx, args[0], searchLimit)
	case searchStart != "" || searchEnd != "":
		receipts, err = retriever.SearchByMetadata(ctx, searchStart, searchEnd, searchMin, searchMax)
	default:
		return fmt.Errorf("provide a query for semantic search or --start/--end for metadata search")
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(receipts) == 0 {
		fmt.Println("No receipts found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(receipts, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d receipts:\n\n", len(receipts))
	for i, receipt := range receipts {
		fmt.Printf("─── Receipt %d ───\n", i+1)
		fmt.Printf("Store:   %s\n", receipt.StoreName)
		fmt.Printf("Time:    %s\n", receipt.TransactionTime)
		fmt.Printf("Total:   %.2f %s\n", receipt.TotalAmount, receipt.Currency)
		fmt.Printf("ID:      %s\n", receipt.ReceiptID)

		var items []string
		for _, item := range receipt.PurchasedItems {
			items = append(items, fmt.Sprintf("%dx %s (%s)", item.Quantity, item.Name, item.Category))
		}
		fmt.Printf("Items:   %s\n\n", strings.Join(items, ", "))
	}

	return nil
}
