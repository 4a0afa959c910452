package chat

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/expenso-ai/expenso/pkg/models"
)

// DefaultUserID scopes sessions when the frontend does not identify the
// user.
const DefaultUserID = "default_user"

// Responder produces the model's reply for a windowed conversation
// history.
type Responder interface {
	Respond(ctx context.Context, history []Message) (string, error)
}

// Handler serves the conversational frontend boundary: one POST route
// taking a ChatRequest and returning a ChatResponse.
type Handler struct {
	svc       *Service
	responder Responder
}

// NewHandler creates a chat handler over the given session service and
// model.
func NewHandler(svc *Service, responder Responder) *Handler {
	return &Handler{svc: svc, responder: responder}
}

// Register mounts the chat route on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Post("/chat", h.HandleChat)
}

// HandleChat processes one conversation turn: intake and windowing,
// model invocation, then response assembly. Failures come back as a
// ChatResponse with the error field set so the frontend always gets the
// same shape. The session ID (generated when absent) is echoed in the
// X-Session-ID header.
func (h *Handler) HandleChat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ChatResponse{Error: "invalid request body"})
	}

	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	req.SessionID = h.svc.ResolveSession(req.SessionID)
	c.Set("X-Session-ID", req.SessionID)

	ctx := c.UserContext()

	history, err := h.svc.BeginTurn(ctx, req)
	if err != nil {
		slog.Error("turn intake failed", "session_id", req.SessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ChatResponse{Error: err.Error()})
	}

	answer, err := h.responder.Respond(ctx, history)
	if err != nil {
		slog.Error("model invocation failed", "session_id", req.SessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ChatResponse{Error: err.Error()})
	}

	resp, err := h.svc.CompleteTurn(ctx, req, answer)
	if err != nil {
		slog.Error("response assembly failed", "session_id", req.SessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ChatResponse{Error: err.Error()})
	}

	return c.JSON(resp)
}
