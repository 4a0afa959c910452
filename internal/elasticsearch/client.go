package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/expenso-ai/expenso/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

// Client wraps the Elasticsearch client with receipt-store operations:
// point lookup by receipt ID, conjunctive range filtering, nearest-
// neighbor vector search, insert, and field-level item updates.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping defines the ES index mapping for receipts. The embedding
// is a dense vector with l2_norm similarity so kNN results come back in
// ascending Euclidean distance order.
var indexMapping = `{
	"mappings": {
		"properties": {
			"receipt_id": { "type": "keyword" },
			"store_name": { "type": "text" },
			"transaction_time": { "type": "date" },
			"total_amount": { "type": "double" },
			"currency": { "type": "keyword" },
			"purchased_items": {
				"properties": {
					"name": { "type": "text" },
					"price": { "type": "double" },
					"quantity": { "type": "integer" },
					"tax": { "type": "double" },
					"category": { "type": "keyword" }
				}
			},
			"embedding": {
				"type": "dense_vector",
				"dims": 768,
				"index": true,
				"similarity": "l2_norm"
			}
		}
	}
}`

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		// Index already exists
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Insert writes a receipt. The receipt ID doubles as the document ID,
// so a concurrent duplicate ingestion overwrites an identical
// content-derived record instead of creating a second one.
func (c *Client) Insert(ctx context.Context, receipt models.Receipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(receipt.ReceiptID),
	)
	if err != nil {
		return fmt.Errorf("failed to index receipt: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing receipt (status %d): %s", res.StatusCode, res.String())
	}

	return nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Receipt `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// maxFilterResults bounds unpaginated filter queries.
const maxFilterResults = 1000

func (c *Client) runSearch(ctx context.Context, query map[string]interface{}) ([]models.Receipt, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	receipts := make([]models.Receipt, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		receipts[i] = hit.Source
	}

	return receipts, nil
}

// GetByReceiptID returns the receipt with the given ID, or nil when no
// such receipt exists. A miss is a normal outcome, not an error.
func (c *Client) GetByReceiptID(ctx context.Context, receiptID string) (*models.Receipt, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"receipt_id": receiptID,
			},
		},
		"size": 1,
	}

	receipts, err := c.runSearch(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, nil
	}
	return &receipts[0], nil
}

// FilterByMetadata returns receipts whose transaction time falls within
// [startTime, endTime], optionally constrained by total amount. Amount
// bounds below zero mean "not supplied".
func (c *Client) FilterByMetadata(ctx context.Context, startTime, endTime string, minAmount, maxAmount float64) ([]models.Receipt, error) {
	filters := []map[string]interface{}{
		{
			"range": map[string]interface{}{
				"transaction_time": map[string]interface{}{
					"gte": startTime,
					"lte": endTime,
				},
			},
		},
	}

	amountRange := map[string]interface{}{}
	if minAmount >= 0 {
		amountRange["gte"] = minAmount
	}
	if maxAmount >= 0 {
		amountRange["lte"] = maxAmount
	}
	if len(amountRange) > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"total_amount": amountRange,
			},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
		"sort": []map[string]interface{}{
			{"transaction_time": map[string]interface{}{"order": "asc"}},
		},
		"size": maxFilterResults,
	}

	return c.runSearch(ctx, query)
}

// NearestNeighbors returns up to limit receipts closest to the query
// vector, ordered by ascending Euclidean distance.
func (c *Client) NearestNeighbors(ctx context.Context, vector []float32, limit int) ([]models.Receipt, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              limit,
			"num_candidates": limit * 10,
		},
		"size": limit,
	}

	return c.runSearch(ctx, query)
}

// ScanAll returns every stored receipt. Used by the category backfill
// and unwindowed category searches.
func (c *Client) ScanAll(ctx context.Context) ([]models.Receipt, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
		"size": maxFilterResults,
	}

	return c.runSearch(ctx, query)
}

// UpdateItems replaces the purchased_items field of a stored receipt.
// Only the item list changes; the embedding and the rest of the record
// stay as written at ingestion.
func (c *Client) UpdateItems(ctx context.Context, receiptID string, items []models.LineItem) error {
	payload := map[string]interface{}{
		"doc": map[string]interface{}{
			"purchased_items": items,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	res, err := c.es.Update(
		c.index,
		receiptID,
		bytes.NewReader(data),
		c.es.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt %s: %w", receiptID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error updating receipt %s (status %d): %s", receiptID, res.StatusCode, res.String())
	}

	return nil
}
