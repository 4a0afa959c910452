package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/expenso-ai/expenso/internal/ingestion"
	"github.com/expenso-ai/expenso/internal/retrieval"
	"github.com/expenso-ai/expenso/pkg/models"
)

// Ingestor is the write surface exposed over MCP.
type Ingestor interface {
	Ingest(ctx context.Context, req ingestion.Request) (string, error)
}

// Retriever is the read surface exposed over MCP.
type Retriever interface {
	GetByID(ctx context.Context, receiptID string) (*models.Receipt, error)
	SearchByMetadata(ctx context.Context, startTime, endTime string, minAmount, maxAmount float64) ([]models.Receipt, error)
	SearchBySimilarity(ctx context.Context, query string, limit int) ([]models.Receipt, error)
	CategorySummary(ctx context.Context, startTime, endTime string) (*retrieval.CategoryReport, error)
	SearchByCategory(ctx context.Context, category, startTime, endTime string) (*retrieval.CategoryResult, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server exposes the receipt store as MCP tools over stdio.
type Server struct {
	mcpServer *server.MCPServer
	ingestor  Ingestor
	retriever Retriever
}

// NewServer creates an MCP server wired to the given engines.
func NewServer(config Config, ingestor Ingestor, retriever Retriever) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		ingestor:  ingestor,
		retriever: retriever,
	}

	storeTool := mcp.NewTool("store_receipt",
		mcp.WithDescription("Store a receipt extracted from an image. The image_id is the receipt image hash; storing the same image twice is a no-op."),
		mcp.WithString("image_id",
			mcp.Required(),
			mcp.Description("Hash ID of the receipt image, bare or as an [IMAGE-ID ...] placeholder"),
		),
		mcp.WithString("store_name",
			mcp.Required(),
			mcp.Description("Name of the store or merchant"),
		),
		mcp.WithString("transaction_time",
			mcp.Required(),
			mcp.Description("Transaction timestamp in ISO-8601 format, e.g. 2025-01-05T10:30:00Z"),
		),
		mcp.WithNumber("total_amount",
			mcp.Required(),
			mcp.Description("Receipt total"),
		),
		mcp.WithArray("purchased_items",
			mcp.Required(),
			mcp.Description("Items on the receipt: objects with name, price, and optional quantity, tax, category"),
		),
		mcp.WithString("currency",
			mcp.Description("Currency code; defaults to the configured currency when omitted"),
		),
	)
	mcpServer.AddTool(storeTool, s.storeReceiptHandler)

	getTool := mcp.NewTool("get_receipt",
		mcp.WithDescription("Get one stored receipt by its image hash ID"),
		mcp.WithString("receipt_id",
			mcp.Required(),
			mcp.Description("Receipt image hash ID"),
		),
	)
	mcpServer.AddTool(getTool, s.getReceiptHandler)

	metadataTool := mcp.NewTool("search_receipts_by_metadata",
		mcp.WithDescription("Search receipts by time window and optional amount bounds. Use for questions with concrete dates or amounts."),
		mcp.WithString("start_time",
			mcp.Required(),
			mcp.Description("Window start, ISO-8601"),
		),
		mcp.WithString("end_time",
			mcp.Required(),
			mcp.Description("Window end, ISO-8601"),
		),
		mcp.WithNumber("min_total",
			mcp.Description("Minimum receipt total"),
		),
		mcp.WithNumber("max_total",
			mcp.Description("Maximum receipt total"),
		),
	)
	mcpServer.AddTool(metadataTool, s.searchByMetadataHandler)

	similarTool := mcp.NewTool("search_relevant_receipts",
		mcp.WithDescription("Find receipts semantically similar to a natural-language description. Use for fuzzy questions without concrete dates or amounts."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language description of what to find"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 5)"),
		),
	)
	mcpServer.AddTool(similarTool, s.searchRelevantHandler)

	summaryTool := mcp.NewTool("get_category_summary",
		mcp.WithDescription("Per-category spending breakdown over a time window. Defaults to the current month."),
		mcp.WithString("start_time",
			mcp.Description("Window start, ISO-8601; defaults to start of the current month"),
		),
		mcp.WithString("end_time",
			mcp.Description("Window end, ISO-8601; defaults to now"),
		),
	)
	mcpServer.AddTool(summaryTool, s.categorySummaryHandler)

	categoryTool := mcp.NewTool("search_receipts_by_category",
		mcp.WithDescription("Find receipts containing items of a given category, optionally within a time window."),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Category name, matched case-insensitively"),
		),
		mcp.WithString("start_time",
			mcp.Description("Window start, ISO-8601"),
		),
		mcp.WithString("end_time",
			mcp.Description("Window end, ISO-8601"),
		),
	)
	mcpServer.AddTool(categoryTool, s.searchByCategoryHandler)

	return s
}

// storeReceiptHandler handles the store_receipt tool call.
func (s *Server) storeReceiptHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	imageID, err := req.RequireString("image_id")
	if err != nil {
		return mcp.NewToolResultError("image_id parameter is required"), nil
	}
	storeName, err := req.RequireString("store_name")
	if err != nil {
		return mcp.NewToolResultError("store_name parameter is required"), nil
	}
	transactionTime, err := req.RequireString("transaction_time")
	if err != nil {
		return mcp.NewToolResultError("transaction_time parameter is required"), nil
	}
	totalAmount, err := req.RequireFloat("total_amount")
	if err != nil {
		return mcp.NewToolResultError("total_amount parameter is required"), nil
	}

	items, err := parseItems(req.GetArguments()["purchased_items"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid purchased_items: %v", err)), nil
	}

	id, err := s.ingestor.Ingest(ctx, ingestion.Request{
		ImageID:         imageID,
		StoreName:       storeName,
		TransactionTime: transactionTime,
		TotalAmount:     totalAmount,
		PurchasedItems:  items,
		Currency:        req.GetString("currency", ""),
	})
	if errors.Is(err, ingestion.ErrAlreadyExists) {
		// A duplicate ingestion is a success from the caller's view
		return mcp.NewToolResultText(fmt.Sprintf("Receipt %s is already stored.", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("store receipt failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Receipt %s stored.", id)), nil
}

// parseItems converts the raw tool argument into typed item inputs via
// a JSON round-trip, which keeps missing and zero prices distinct.
func parseItems(raw any) ([]ingestion.ItemInput, error) {
	if raw == nil {
		return nil, fmt.Errorf("purchased_items parameter is required")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var items []ingestion.ItemInput
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// getReceiptHandler handles the get_receipt tool call.
func (s *Server) getReceiptHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	receiptID, err := req.RequireString("receipt_id")
	if err != nil {
		return mcp.NewToolResultError("receipt_id parameter is required"), nil
	}

	receipt, err := s.retriever.GetByID(ctx, receiptID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get receipt failed: %v", err)), nil
	}
	if receipt == nil {
		return mcp.NewToolResultError(fmt.Sprintf("receipt not found: %s", receiptID)), nil
	}

	return jsonResult(receipt)
}

// searchByMetadataHandler handles the search_receipts_by_metadata tool call.
func (s *Server) searchByMetadataHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	startTime, err := req.RequireString("start_time")
	if err != nil {
		return mcp.NewToolResultError("start_time parameter is required"), nil
	}
	endTime, err := req.RequireString("end_time")
	if err != nil {
		return mcp.NewToolResultError("end_time parameter is required"), nil
	}

	minTotal := req.GetFloat("min_total", -1)
	maxTotal := req.GetFloat("max_total", -1)

	receipts, err := s.retriever.SearchByMetadata(ctx, startTime, endTime, minTotal, maxTotal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(receipts)
}

// searchRelevantHandler handles the search_relevant_receipts tool call.
func (s *Server) searchRelevantHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := req.GetInt("limit", retrieval.DefaultSimilarityLimit)

	receipts, err := s.retriever.SearchBySimilarity(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(receipts)
}

// categorySummaryHandler handles the get_category_summary tool call.
func (s *Server) categorySummaryHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.retriever.CategorySummary(ctx, req.GetString("start_time", ""), req.GetString("end_time", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("category summary failed: %v", err)), nil
	}

	return jsonResult(report)
}

// searchByCategoryHandler handles the search_receipts_by_category tool call.
func (s *Server) searchByCategoryHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError("category parameter is required"), nil
	}

	result, err := s.retriever.SearchByCategory(ctx, category, req.GetString("start_time", ""), req.GetString("end_time", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("category search failed: %v", err)), nil
	}

	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
