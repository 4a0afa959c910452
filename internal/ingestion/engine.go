package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expenso-ai/expenso/internal/category"
	"github.com/expenso-ai/expenso/pkg/models"
)

// ErrInvalidInput marks requests rejected at the validation boundary:
// malformed timestamps, item lists missing required fields. Nothing is
// persisted and no external call is made.
var ErrInvalidInput = errors.New("invalid input")

// ErrAlreadyExists marks ingestion of a receipt ID that is already
// stored. It is a normal outcome, not a failure: the caller gets the
// existing ID back and no record is touched.
var ErrAlreadyExists = errors.New("receipt already exists")

// ReceiptStore is the document-store surface ingestion depends on.
// Implemented by elasticsearch.Client.
type ReceiptStore interface {
	GetByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error)
	Insert(ctx context.Context, receipt models.Receipt) error
	ScanAll(ctx context.Context) ([]models.Receipt, error)
	UpdateItems(ctx context.Context, receiptID string, items []models.LineItem) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier assigns a taxonomy category to an item name. It never
// fails; degraded answers come back as "Other".
type Classifier interface {
	Classify(ctx context.Context, itemName string) string
}

// ItemInput is one purchased item as supplied by the caller. Price is a
// pointer so an absent price is distinguishable from zero; quantity and
// tax are optional and have defined defaults.
type ItemInput struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *int     `json:"quantity,omitempty"`
	Tax      *float64 `json:"tax,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Request carries one receipt to ingest.
type Request struct {
	ImageID         string      `json:"image_id"`
	StoreName       string      `json:"store_name"`
	TransactionTime string      `json:"transaction_time"`
	TotalAmount     float64     `json:"total_amount"`
	PurchasedItems  []ItemInput `json:"purchased_items"`
	Currency        string      `json:"currency,omitempty"`
}

// Engine validates, enriches, embeds, and persists receipts.
type Engine struct {
	store           ReceiptStore
	embedder        Embedder
	classifier      Classifier
	defaultCurrency string
}

// New creates an ingestion engine with injected dependencies.
func New(store ReceiptStore, embedder Embedder, classifier Classifier, defaultCurrency string) *Engine {
	return &Engine{
		store:           store,
		embedder:        embedder,
		classifier:      classifier,
		defaultCurrency: defaultCurrency,
	}
}

// Ingest stores one receipt and returns its ID.
//
// The receipt ID is the sanitized image ID. If a receipt with that ID
// is already stored, Ingest returns the ID together with
// ErrAlreadyExists without re-running enrichment or embedding, so
// retried ingestions of the same image cost nothing and create nothing.
//
// There is no transactional guard between the existence check and the
// insert. Two racing ingestions of the same image can both pass the
// check; because the ID is content-derived and doubles as the document
// ID, the loser overwrites an identical record rather than creating a
// duplicate.
func (e *Engine) Ingest(ctx context.Context, req Request) (string, error) {
	receiptID := models.SanitizeImageID(req.ImageID)
	if receiptID == "" {
		return "", fmt.Errorf("%w: image_id is required", ErrInvalidInput)
	}

	if _, err := models.ParseTime(req.TransactionTime); err != nil {
		return "", fmt.Errorf("%w: transaction_time must be ISO-8601 (e.g. 2025-01-05T10:30:00Z): %v", ErrInvalidInput, err)
	}
	if req.TotalAmount < 0 {
		return "", fmt.Errorf("%w: total_amount must not be negative", ErrInvalidInput)
	}
	if err := validateItems(req.PurchasedItems); err != nil {
		return "", err
	}

	existing, err := e.store.GetByReceiptID(ctx, receiptID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing receipt: %w", err)
	}
	if existing != nil {
		slog.Debug("receipt already stored, skipping", "receipt_id", receiptID)
		return receiptID, fmt.Errorf("%w: %s", ErrAlreadyExists, receiptID)
	}

	currency := req.Currency
	if currency == "" {
		currency = e.defaultCurrency
	}

	receipt := models.Receipt{
		ReceiptID:       receiptID,
		StoreName:       req.StoreName,
		TransactionTime: req.TransactionTime,
		TotalAmount:     req.TotalAmount,
		Currency:        currency,
		PurchasedItems:  e.enrichItems(ctx, req.PurchasedItems),
	}

	vector, err := e.embedder.Embed(ctx, receipt.Description())
	if err != nil {
		return "", fmt.Errorf("failed to embed receipt %s: %w", receiptID, err)
	}
	receipt.Embedding = vector

	if err := e.store.Insert(ctx, receipt); err != nil {
		return "", fmt.Errorf("failed to store receipt %s: %w", receiptID, err)
	}

	slog.Info("receipt stored", "receipt_id", receiptID, "store", receipt.StoreName, "items", len(receipt.PurchasedItems))
	return receiptID, nil
}

// validateItems rejects item lists before any persistence or external
// call happens. Each item needs at least a name and a price.
func validateItems(items []ItemInput) error {
	for i, item := range items {
		if item.Name == "" {
			return fmt.Errorf("%w: purchased_items[%d] is missing name", ErrInvalidInput, i)
		}
		if item.Price == nil {
			return fmt.Errorf("%w: purchased_items[%d] (%s) is missing price", ErrInvalidInput, i, item.Name)
		}
		if *item.Price < 0 {
			return fmt.Errorf("%w: purchased_items[%d] (%s) has negative price", ErrInvalidInput, i, item.Name)
		}
		if item.Quantity != nil && *item.Quantity <= 0 {
			return fmt.Errorf("%w: purchased_items[%d] (%s) quantity must be positive", ErrInvalidInput, i, item.Name)
		}
		if item.Tax != nil && *item.Tax < 0 {
			return fmt.Errorf("%w: purchased_items[%d] (%s) has negative tax", ErrInvalidInput, i, item.Name)
		}
	}
	return nil
}

// enrichItems applies defaults and fills missing categories. Items are
// classified one at a time; the model runner serializes requests anyway
// and item order has no effect on the result.
func (e *Engine) enrichItems(ctx context.Context, items []ItemInput) []models.LineItem {
	enriched := make([]models.LineItem, len(items))
	for i, item := range items {
		line := models.LineItem{
			Name:     item.Name,
			Price:    *item.Price,
			Quantity: 1,
		}
		if item.Quantity != nil {
			line.Quantity = *item.Quantity
		}
		if item.Tax != nil {
			line.Tax = *item.Tax
		}

		if matched, ok := category.Normalize(item.Category); ok {
			line.Category = matched
		} else {
			line.Category = e.classifier.Classify(ctx, item.Name)
		}

		enriched[i] = line
	}
	return enriched
}

// BackfillResult summarizes a category backfill run.
type BackfillResult struct {
	ReceiptsScanned int
	ReceiptsUpdated int
	ItemsClassified int
	Duration        time.Duration
	Errors          []string
}

// BackfillCategories walks every stored receipt and classifies items
// whose category is missing or outside the taxonomy, updating only the
// purchased_items field. Receipts ingested before categorization
// existed get their categories this way.
func (e *Engine) BackfillCategories(ctx context.Context) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	receipts, err := e.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan receipts: %w", err)
	}
	result.ReceiptsScanned = len(receipts)

	for _, receipt := range receipts {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "cancelled: "+ctx.Err().Error())
			break
		}

		changed := false
		for i, item := range receipt.PurchasedItems {
			if category.IsValid(item.Category) {
				continue
			}
			receipt.PurchasedItems[i].Category = e.classifier.Classify(ctx, item.Name)
			result.ItemsClassified++
			changed = true
		}
		if !changed {
			continue
		}

		if err := e.store.UpdateItems(ctx, receipt.ReceiptID, receipt.PurchasedItems); err != nil {
			slog.Error("failed to update receipt items", "receipt_id", receipt.ReceiptID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", receipt.ReceiptID, err))
			continue
		}
		result.ReceiptsUpdated++
	}

	result.Duration = time.Since(start)
	slog.Info("category backfill complete",
		"scanned", result.ReceiptsScanned,
		"updated", result.ReceiptsUpdated,
		"classified", result.ItemsClassified,
		"duration", result.Duration,
		"errors", len(result.Errors))

	return result, nil
}
