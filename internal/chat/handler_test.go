package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/expenso-ai/expenso/pkg/models"
)

type fakeResponder struct {
	answer      string
	err         error
	lastHistory []Message
}

func (f *fakeResponder) Respond(ctx context.Context, history []Message) (string, error) {
	f.lastHistory = history
	return f.answer, f.err
}

func chatApp(svc *Service, responder Responder) *fiber.App {
	app := fiber.New()
	NewHandler(svc, responder).Register(app)
	return app
}

func postChat(t *testing.T, app *fiber.App, req models.ChatRequest) (*models.ChatResponse, int, string) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	httpReq := httptest.NewRequest("POST", "/chat", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer httpResp.Body.Close()

	var resp models.ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &resp, httpResp.StatusCode, httpResp.Header.Get("X-Session-ID")
}

func TestHandleChat(t *testing.T) {
	blobs := newFakeBlobStore()
	svc := NewService(blobs)
	responder := &fakeResponder{answer: "# THINKING PROCESS\nJust a greeting.\n\n# FINAL RESPONSE\nHello!"}
	app := chatApp(svc, responder)

	resp, status, sessionID := postChat(t, app, models.ChatRequest{
		Text:      "hi there",
		SessionID: "s1",
	})

	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if sessionID != "s1" {
		t.Errorf("X-Session-ID = %q, want s1", sessionID)
	}
	if resp.Response != "Hello!" {
		t.Errorf("Response = %q, want Hello!", resp.Response)
	}
	if resp.ThinkingProcess != "Just a greeting." {
		t.Errorf("ThinkingProcess = %q", resp.ThinkingProcess)
	}
	if resp.Error != "" {
		t.Errorf("Error = %q, want empty", resp.Error)
	}

	// The turn reached the model with the user's text
	if len(responder.lastHistory) != 1 || responder.lastHistory[0].Parts[0].Text != "hi there" {
		t.Errorf("model history = %+v", responder.lastHistory)
	}

	// Anonymous requests are scoped to the default user
	if got := len(svc.History(DefaultUserID, "s1")); got != 2 {
		t.Errorf("history length = %d, want user turn + model turn", got)
	}
}

func TestHandleChat_GeneratesSessionID(t *testing.T) {
	svc := NewService(newFakeBlobStore())
	app := chatApp(svc, &fakeResponder{answer: "ok"})

	_, status, sessionID := postChat(t, app, models.ChatRequest{Text: "hi"})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if sessionID == "" {
		t.Error("expected a generated session ID in X-Session-ID")
	}
}

func TestHandleChat_StoresUploadedImage(t *testing.T) {
	blobs := newFakeBlobStore()
	svc := NewService(blobs)
	responder := &fakeResponder{answer: "got it"}
	app := chatApp(svc, responder)

	_, status, _ := postChat(t, app, models.ChatRequest{
		Text:      "store this receipt",
		Files:     []models.ImageData{encodedImage("receipt-photo")},
		SessionID: "s1",
	})

	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if blobs.puts != 1 {
		t.Errorf("blob puts = %d, want 1", blobs.puts)
	}

	// The model sees the placeholder for the stored image
	wantID := models.HashImageID([]byte("receipt-photo"))
	prompt := RenderPrompt(responder.lastHistory)
	if !strings.Contains(prompt, Placeholder(wantID)) {
		t.Errorf("prompt %q does not reference stored image %s", prompt, wantID)
	}
}

func TestHandleChat_ResponderFailure(t *testing.T) {
	svc := NewService(newFakeBlobStore())
	app := chatApp(svc, &fakeResponder{err: errors.New("model offline")})

	resp, status, _ := postChat(t, app, models.ChatRequest{Text: "hi", SessionID: "s1"})
	if status != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if resp.Error == "" {
		t.Error("expected error field in response")
	}
}

func TestHandleChat_BadBody(t *testing.T) {
	svc := NewService(newFakeBlobStore())
	app := chatApp(svc, &fakeResponder{answer: "ok"})

	httpReq := httptest.NewRequest("POST", "/chat", strings.NewReader("not json"))
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := app.Test(httpReq)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", httpResp.StatusCode)
	}
}

func TestRenderPrompt(t *testing.T) {
	history := []Message{
		{Role: "user", Parts: []Part{
			{Text: "here is a receipt"},
			NewImagePart([]byte("img"), "image/jpeg"),
			{Text: Placeholder(models.HashImageID([]byte("img")))},
		}},
		{Role: "model", Parts: []Part{{Text: "noted"}}},
	}

	prompt := RenderPrompt(history)

	if !strings.Contains(prompt, "user: here is a receipt") {
		t.Errorf("prompt missing user text: %q", prompt)
	}
	if !strings.Contains(prompt, "model: noted") {
		t.Errorf("prompt missing model text: %q", prompt)
	}
	if !strings.Contains(prompt, Placeholder(models.HashImageID([]byte("img")))) {
		t.Errorf("prompt missing image placeholder: %q", prompt)
	}
}
