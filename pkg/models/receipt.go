package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Receipt represents one stored purchase transaction.
type Receipt struct {
	ReceiptID       string     `json:"receipt_id"`
	StoreName       string     `json:"store_name"`
	TransactionTime string     `json:"transaction_time"` // ISO-8601
	TotalAmount     float64    `json:"total_amount"`
	Currency        string     `json:"currency"`
	PurchasedItems  []LineItem `json:"purchased_items"`
	Embedding       []float32  `json:"embedding,omitempty"` // Vector over Description(), never shown to callers
}

// LineItem is one purchased product or service within a receipt.
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Tax      float64 `json:"tax"`
	Category string  `json:"category"`
}

// HashImageID creates a content-addressable identifier from raw image bytes.
// The ID is a SHA-256 hash (first 12 chars). Identical bytes always produce
// the same ID, which is what makes receipt ingestion deduplicable.
func HashImageID(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])[:12]
}

// SanitizeImageID extracts the bare identifier from an image reference.
// Agents sometimes pass the full placeholder ("[IMAGE-ID 12345]") instead
// of the ID itself; both forms resolve to the same lookup key.
func SanitizeImageID(imageID string) string {
	imageID = strings.TrimSpace(imageID)
	if strings.HasPrefix(imageID, "[IMAGE-") {
		if _, after, ok := strings.Cut(imageID, "ID "); ok {
			imageID, _, _ = strings.Cut(after, "]")
		}
	}
	return strings.TrimSpace(imageID)
}

// ParseTime parses an ISO-8601 timestamp as used in receipt fields and
// search windows. Accepts both zoned ("2025-01-05T10:30:00Z") and naive
// ("2025-01-05T10:30:00") forms; naive times are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a valid ISO-8601 timestamp: %q", s)
	}
	return t, nil
}

// Description renders the receipt as a canonical multi-line text block.
// This is the exact text that gets embedded at ingestion time, so query
// embeddings and stored embeddings live in the same space.
func (r Receipt) Description() string {
	var items strings.Builder
	for _, item := range r.PurchasedItems {
		fmt.Fprintf(&items, "  - %dx %s (%s) %.2f, tax %.2f\n",
			item.Quantity, item.Name, item.Category, item.Price, item.Tax)
	}

	return fmt.Sprintf(`Store Name: %s
Transaction Time: %s
Total Amount: %.2f
Currency: %s
Purchased Items:
%sReceipt Image ID: %s`,
		r.StoreName, r.TransactionTime, r.TotalAmount, r.Currency,
		items.String(), r.ReceiptID)
}
