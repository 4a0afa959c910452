package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/expenso-ai/expenso/internal/category"
	"github.com/expenso-ai/expenso/internal/ingestion"
	"github.com/expenso-ai/expenso/pkg/models"
)

// DefaultSimilarityLimit is how many receipts a semantic search returns
// when the caller does not ask for a specific count.
const DefaultSimilarityLimit = 5

// ReceiptSearcher is the document-store surface retrieval depends on.
// Implemented by elasticsearch.Client.
type ReceiptSearcher interface {
	GetByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error)
	FilterByMetadata(ctx context.Context, startTime, endTime string, minAmount, maxAmount float64) ([]models.Receipt, error)
	NearestNeighbors(ctx context.Context, vector []float32, limit int) ([]models.Receipt, error)
	ScanAll(ctx context.Context) ([]models.Receipt, error)
}

// Embedder turns query text into a vector in the same space receipts
// were embedded in at ingestion time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine answers structured and semantic queries over stored receipts.
type Engine struct {
	store    ReceiptSearcher
	embedder Embedder
}

// New creates a retrieval engine with injected dependencies.
func New(store ReceiptSearcher, embedder Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// GetByID returns one receipt by its image hash ID, or nil when no such
// receipt exists. The ID may arrive as a bare hash or wrapped in an
// image placeholder; both resolve to the same record.
func (e *Engine) GetByID(ctx context.Context, receiptID string) (*models.Receipt, error) {
	id := models.SanitizeImageID(receiptID)
	if id == "" {
		return nil, fmt.Errorf("%w: receipt_id is required", ingestion.ErrInvalidInput)
	}

	receipt, err := e.store.GetByReceiptID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up receipt %s: %w", id, err)
	}
	if receipt == nil {
		return nil, nil
	}
	receipt.Embedding = nil
	return receipt, nil
}

// SearchByMetadata returns receipts whose transaction time falls within
// [startTime, endTime], optionally narrowed by total amount. Both time
// bounds are required; amount bounds below zero mean "not supplied".
// Results come back in ascending time order with embeddings stripped.
func (e *Engine) SearchByMetadata(ctx context.Context, startTime, endTime string, minAmount, maxAmount float64) ([]models.Receipt, error) {
	start, err := models.ParseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ingestion.ErrInvalidInput, err)
	}
	end, err := models.ParseTime(endTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ingestion.ErrInvalidInput, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end_time is before start_time", ingestion.ErrInvalidInput)
	}

	receipts, err := e.store.FilterByMetadata(ctx, startTime, endTime, minAmount, maxAmount)
	if err != nil {
		return nil, fmt.Errorf("metadata search failed: %w", err)
	}

	stripEmbeddings(receipts)
	slog.Debug("metadata search", "start", startTime, "end", endTime, "hits", len(receipts))
	return receipts, nil
}

// SearchBySimilarity embeds the query text and returns the stored
// receipts nearest to it, closest first. A limit of zero or below falls
// back to DefaultSimilarityLimit.
func (e *Engine) SearchBySimilarity(ctx context.Context, query string, limit int) ([]models.Receipt, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ingestion.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSimilarityLimit
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	receipts, err := e.store.NearestNeighbors(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	stripEmbeddings(receipts)
	slog.Debug("similarity search", "query", query, "limit", limit, "hits", len(receipts))
	return receipts, nil
}

// CategoryTotal is the aggregated spend for one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Items    int     `json:"items"`
	Share    float64 `json:"share"` // fraction of grand total, 0..1
}

// CategoryReport is a per-category spending breakdown over a time
// window.
type CategoryReport struct {
	StartTime  string          `json:"start_time"`
	EndTime    string          `json:"end_time"`
	GrandTotal float64         `json:"grand_total"`
	Categories []CategoryTotal `json:"categories"`
}

// CategorySummary aggregates item-level spend (price times quantity)
// per category over the given window. Empty bounds default to the start
// of the current month through now. Categories are returned largest
// spend first.
func (e *Engine) CategorySummary(ctx context.Context, startTime, endTime string) (*CategoryReport, error) {
	now := time.Now().UTC()
	if startTime == "" {
		startTime = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	if endTime == "" {
		endTime = now.Format(time.RFC3339)
	}

	receipts, err := e.SearchByMetadata(ctx, startTime, endTime, -1, -1)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]*CategoryTotal)
	var grand float64
	for _, receipt := range receipts {
		for _, item := range receipt.PurchasedItems {
			name := item.Category
			if name == "" {
				name = category.Other
			}
			bucket, ok := totals[name]
			if !ok {
				bucket = &CategoryTotal{Category: name}
				totals[name] = bucket
			}
			spend := item.Price * float64(item.Quantity)
			bucket.Total += spend
			bucket.Items++
			grand += spend
		}
	}

	report := &CategoryReport{
		StartTime:  startTime,
		EndTime:    endTime,
		GrandTotal: grand,
		Categories: make([]CategoryTotal, 0, len(totals)),
	}
	for _, bucket := range totals {
		if grand > 0 {
			bucket.Share = bucket.Total / grand
		}
		report.Categories = append(report.Categories, *bucket)
	}
	// Highest spend first; equal totals rank the category with more
	// items above, then alphabetically.
	sort.Slice(report.Categories, func(i, j int) bool {
		a, b := report.Categories[i], report.Categories[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.Items != b.Items {
			return a.Items > b.Items
		}
		return a.Category < b.Category
	})

	return report, nil
}

// CategoryMatch is one receipt containing items of a searched category,
// with only the matching items and their combined spend.
type CategoryMatch struct {
	ReceiptID       string            `json:"receipt_id"`
	StoreName       string            `json:"store_name"`
	TransactionTime string            `json:"transaction_time"`
	Currency        string            `json:"currency"`
	Items           []models.LineItem `json:"items"`
	Subtotal        float64           `json:"subtotal"`
}

// CategoryResult is the outcome of a category search.
type CategoryResult struct {
	Category string          `json:"category"`
	Matches  []CategoryMatch `json:"matches"`
	Total    float64         `json:"total"`
}

// SearchByCategory returns receipts containing items of the named
// category, matched case-insensitively against the taxonomy. When both
// time bounds are empty the whole store is searched; otherwise the
// window behaves as in SearchByMetadata.
func (e *Engine) SearchByCategory(ctx context.Context, cat, startTime, endTime string) (*CategoryResult, error) {
	matched, ok := category.Normalize(cat)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q (valid: %s)", ingestion.ErrInvalidInput, cat, strings.Join(category.Taxonomy, ", "))
	}

	var receipts []models.Receipt
	var err error
	if startTime == "" && endTime == "" {
		receipts, err = e.store.ScanAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("category search failed: %w", err)
		}
	} else {
		receipts, err = e.SearchByMetadata(ctx, startTime, endTime, -1, -1)
		if err != nil {
			return nil, err
		}
	}

	result := &CategoryResult{Category: matched}
	for _, receipt := range receipts {
		var items []models.LineItem
		var subtotal float64
		for _, item := range receipt.PurchasedItems {
			if !strings.EqualFold(item.Category, matched) {
				continue
			}
			items = append(items, item)
			subtotal += item.Price * float64(item.Quantity)
		}
		if len(items) == 0 {
			continue
		}
		result.Matches = append(result.Matches, CategoryMatch{
			ReceiptID:       receipt.ReceiptID,
			StoreName:       receipt.StoreName,
			TransactionTime: receipt.TransactionTime,
			Currency:        receipt.Currency,
			Items:           items,
			Subtotal:        subtotal,
		})
		result.Total += subtotal
	}

	return result, nil
}

// stripEmbeddings clears the vector field before receipts leave the
// engine. Callers never need the raw vector and it dwarfs the rest of
// the record.
func stripEmbeddings(receipts []models.Receipt) {
	for i := range receipts {
		receipts[i].Embedding = nil
	}
}
