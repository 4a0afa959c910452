package elasticsearch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/expenso-ai/expenso/pkg/models"
)

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	// Try to connect to ES
	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

func testClient(t *testing.T, index string) *Client {
	t.Helper()

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     index,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func testEmbedding(seed float32) []float32 {
	v := make([]float32, 768)
	for i := range v {
		v[i] = seed
	}
	return v
}

func sampleReceipts() []models.Receipt {
	return []models.Receipt{
		{
			ReceiptID:       "aaa111bbb222",
			StoreName:       "Fresh Mart",
			TransactionTime: "2025-01-05T10:00:00Z",
			TotalAmount:     10,
			Currency:        "USD",
			PurchasedItems: []models.LineItem{
				{Name: "Milk", Price: 10, Quantity: 1, Category: "Groceries"},
			},
			Embedding: testEmbedding(0.1),
		},
		{
			ReceiptID:       "ccc333ddd444",
			StoreName:       "Cafe Luna",
			TransactionTime: "2025-02-10T18:30:00Z",
			TotalAmount:     50,
			Currency:        "USD",
			PurchasedItems: []models.LineItem{
				{Name: "Espresso", Price: 25, Quantity: 2, Category: "Dining"},
			},
			Embedding: testEmbedding(0.9),
		},
	}
}

func TestClient_CreateIndex(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "expenso-test-create")
	ctx := context.Background()

	// Delete index if exists (cleanup from previous test)
	client.DeleteIndex(ctx)

	err := client.CreateIndex(ctx)
	if err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	// Creating again should not error (idempotent)
	err = client.CreateIndex(ctx)
	if err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	client.DeleteIndex(ctx)
}

func TestClient_InsertAndGet(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "expenso-test-get")
	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	receipt := sampleReceipts()[0]
	if err := client.Insert(ctx, receipt); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	client.Refresh(ctx)

	got, err := client.GetByReceiptID(ctx, receipt.ReceiptID)
	if err != nil {
		t.Fatalf("GetByReceiptID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByReceiptID() returned nil for stored receipt")
	}
	if got.StoreName != receipt.StoreName {
		t.Errorf("StoreName = %q, want %q", got.StoreName, receipt.StoreName)
	}

	// Miss is nil, not an error
	got, err = client.GetByReceiptID(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("GetByReceiptID() miss error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByReceiptID() miss = %+v, want nil", got)
	}

	client.DeleteIndex(ctx)
}

func TestClient_FilterByMetadata(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "expenso-test-filter")
	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	for _, r := range sampleReceipts() {
		if err := client.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	client.Refresh(ctx)

	// January window should only match the first receipt
	results, err := client.FilterByMetadata(ctx, "2025-01-01T00:00:00Z", "2025-01-31T23:59:59Z", -1, -1)
	if err != nil {
		t.Fatalf("FilterByMetadata() error = %v", err)
	}
	if len(results) != 1 || results[0].ReceiptID != "aaa111bbb222" {
		t.Errorf("January filter = %+v, want only aaa111bbb222", results)
	}

	// Amount bounds narrow the full range
	results, err = client.FilterByMetadata(ctx, "2025-01-01T00:00:00Z", "2025-12-31T23:59:59Z", 20, -1)
	if err != nil {
		t.Fatalf("FilterByMetadata() with amount error = %v", err)
	}
	if len(results) != 1 || results[0].ReceiptID != "ccc333ddd444" {
		t.Errorf("amount filter = %+v, want only ccc333ddd444", results)
	}

	client.DeleteIndex(ctx)
}

func TestClient_NearestNeighbors(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "expenso-test-knn")
	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	for _, r := range sampleReceipts() {
		if err := client.Insert(ctx, r); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	client.Refresh(ctx)

	// A query close to the first receipt's vector should rank it first
	results, err := client.NearestNeighbors(ctx, testEmbedding(0.12), 2)
	if err != nil {
		t.Fatalf("NearestNeighbors() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("NearestNeighbors() returned %d results, want 2", len(results))
	}
	if results[0].ReceiptID != "aaa111bbb222" {
		t.Errorf("nearest = %q, want aaa111bbb222", results[0].ReceiptID)
	}

	client.DeleteIndex(ctx)
}

func TestClient_UpdateItems(t *testing.T) {
	skipIfNoES(t)

	client := testClient(t, "expenso-test-update")
	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	receipt := sampleReceipts()[0]
	receipt.PurchasedItems[0].Category = ""
	if err := client.Insert(ctx, receipt); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	client.Refresh(ctx)

	updated := []models.LineItem{
		{Name: "Milk", Price: 10, Quantity: 1, Category: "Groceries"},
	}
	if err := client.UpdateItems(ctx, receipt.ReceiptID, updated); err != nil {
		t.Fatalf("UpdateItems() error = %v", err)
	}
	client.Refresh(ctx)

	got, err := client.GetByReceiptID(ctx, receipt.ReceiptID)
	if err != nil {
		t.Fatalf("GetByReceiptID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByReceiptID() returned nil after update")
	}
	if got.PurchasedItems[0].Category != "Groceries" {
		t.Errorf("Category after update = %q, want Groceries", got.PurchasedItems[0].Category)
	}

	client.DeleteIndex(ctx)
}
