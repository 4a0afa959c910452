package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/expenso-ai/expenso/pkg/models"
)

type fakeBlobStore struct {
	objects map[string][]byte
	mimes   map[string]string
	puts    int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects: make(map[string][]byte),
		mimes:   make(map[string]string),
	}
}

func (f *fakeBlobStore) key(userID, sessionID, hashID string) string {
	return userID + "/" + sessionID + "/" + hashID
}

func (f *fakeBlobStore) PutImage(ctx context.Context, userID, sessionID string, data []byte, mimeType string) (string, error) {
	f.puts++
	hashID := models.HashImageID(data)
	k := f.key(userID, sessionID, hashID)
	f.objects[k] = data
	f.mimes[k] = mimeType
	return hashID, nil
}

func (f *fakeBlobStore) GetImage(ctx context.Context, userID, sessionID, hashID string) ([]byte, string, error) {
	k := f.key(userID, sessionID, hashID)
	data, ok := f.objects[k]
	if !ok {
		return nil, "", nil
	}
	return data, f.mimes[k], nil
}

func encodedImage(content string) models.ImageData {
	return models.ImageData{
		SerializedImage: base64.StdEncoding.EncodeToString([]byte(content)),
		MIMEType:        "image/jpeg",
	}
}

func TestService_ResolveSession(t *testing.T) {
	svc := NewService(newFakeBlobStore())

	if got := svc.ResolveSession("existing"); got != "existing" {
		t.Errorf("ResolveSession(existing) = %q, want existing", got)
	}

	fresh := svc.ResolveSession("")
	if fresh == "" {
		t.Error("ResolveSession(\"\") returned empty ID")
	}
	if other := svc.ResolveSession(""); other == fresh {
		t.Error("ResolveSession(\"\") returned the same ID twice")
	}
}

func TestService_BeginTurn_PersistsImages(t *testing.T) {
	blobs := newFakeBlobStore()
	svc := NewService(blobs)
	ctx := context.Background()

	req := models.ChatRequest{
		Text:      "store this receipt",
		Files:     []models.ImageData{encodedImage("receipt-photo")},
		SessionID: "s1",
		UserID:    "u1",
	}

	history, err := svc.BeginTurn(ctx, req)
	if err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}

	if blobs.puts != 1 {
		t.Errorf("blob puts = %d, want 1", blobs.puts)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}

	msg := history[0]
	if msg.Role != "user" || msg.Parts[0].Text != "store this receipt" {
		t.Errorf("message = %+v, want user text part first", msg)
	}
	if msg.Parts[1].Image == nil {
		t.Fatal("image part missing")
	}
	wantID := models.HashImageID([]byte("receipt-photo"))
	if msg.Parts[1].Image.HashID != wantID {
		t.Errorf("HashID = %q, want %q", msg.Parts[1].Image.HashID, wantID)
	}
	if len(msg.Parts) != 3 || msg.Parts[2].Text != Placeholder(wantID) {
		t.Errorf("expected placeholder part after image, got %+v", msg.Parts)
	}
}

func TestService_BeginTurn_BadBase64(t *testing.T) {
	svc := NewService(newFakeBlobStore())

	req := models.ChatRequest{
		Files:     []models.ImageData{{SerializedImage: "not base64!!!", MIMEType: "image/jpeg"}},
		SessionID: "s1",
		UserID:    "u1",
	}

	if _, err := svc.BeginTurn(context.Background(), req); err == nil {
		t.Error("BeginTurn() expected error for undecodable image")
	}
}

func TestService_BeginTurn_WindowsOldImages(t *testing.T) {
	svc := NewService(newFakeBlobStore())
	ctx := context.Background()

	var history []Message
	for i := 0; i < ImageWindow+2; i++ {
		req := models.ChatRequest{
			Text:      "another receipt",
			Files:     []models.ImageData{encodedImage(string(rune('a' + i)))},
			SessionID: "s1",
			UserID:    "u1",
		}
		var err error
		history, err = svc.BeginTurn(ctx, req)
		if err != nil {
			t.Fatalf("BeginTurn() turn %d error = %v", i, err)
		}
	}

	if got := InlineImageCount(history); got != ImageWindow {
		t.Errorf("inline images = %d, want %d", got, ImageWindow)
	}
}

func TestService_CompleteTurn(t *testing.T) {
	blobs := newFakeBlobStore()
	svc := NewService(blobs)
	ctx := context.Background()

	req := models.ChatRequest{
		Text:      "show me that receipt",
		Files:     []models.ImageData{encodedImage("receipt-photo")},
		SessionID: "s1",
		UserID:    "u1",
	}
	if _, err := svc.BeginTurn(ctx, req); err != nil {
		t.Fatalf("BeginTurn() error = %v", err)
	}

	hashID := models.HashImageID([]byte("receipt-photo"))
	modelResponse := "# THINKING PROCESS\nLook up the image by hash.\n\n# FINAL RESPONSE\nHere it is: [IMAGE-ID " + hashID + "]"

	resp, err := svc.CompleteTurn(ctx, req, modelResponse)
	if err != nil {
		t.Fatalf("CompleteTurn() error = %v", err)
	}

	if resp.Response != "Here it is:" {
		t.Errorf("Response = %q, want placeholder stripped", resp.Response)
	}
	if resp.ThinkingProcess != "Look up the image by hash." {
		t.Errorf("ThinkingProcess = %q", resp.ThinkingProcess)
	}
	if len(resp.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(resp.Attachments))
	}
	if got := resp.Attachments[0].SerializedImage; got != base64.StdEncoding.EncodeToString([]byte("receipt-photo")) {
		t.Errorf("attachment bytes do not round-trip")
	}
	if resp.Attachments[0].MIMEType != "image/jpeg" {
		t.Errorf("attachment mime = %q, want image/jpeg", resp.Attachments[0].MIMEType)
	}

	// Model turn was recorded
	history := svc.History("u1", "s1")
	if len(history) != 2 || history[1].Role != "model" {
		t.Errorf("history after turn = %d messages, want user+model", len(history))
	}
}

type failingBlobStore struct {
	*fakeBlobStore
}

func (f *failingBlobStore) GetImage(ctx context.Context, userID, sessionID, hashID string) ([]byte, string, error) {
	return nil, "", errors.New("transient storage outage")
}

func TestService_CompleteTurn_BlobFailureSkipsAttachment(t *testing.T) {
	svc := NewService(&failingBlobStore{newFakeBlobStore()})

	req := models.ChatRequest{SessionID: "s1", UserID: "u1"}
	resp, err := svc.CompleteTurn(context.Background(), req, "Here: [IMAGE-ID 0123456789ab]")
	if err != nil {
		t.Fatalf("CompleteTurn() error = %v, want reply without the attachment", err)
	}
	if len(resp.Attachments) != 0 {
		t.Errorf("Attachments = %d, want 0 when the blob store fails", len(resp.Attachments))
	}
	if resp.Response != "Here:" {
		t.Errorf("Response = %q, want text delivered anyway", resp.Response)
	}
}

func TestService_CompleteTurn_UnknownImageSkipped(t *testing.T) {
	svc := NewService(newFakeBlobStore())

	req := models.ChatRequest{SessionID: "s1", UserID: "u1"}
	resp, err := svc.CompleteTurn(context.Background(), req, "See [IMAGE-ID 000000000000]")
	if err != nil {
		t.Fatalf("CompleteTurn() error = %v", err)
	}
	if len(resp.Attachments) != 0 {
		t.Errorf("Attachments = %d, want 0 for unknown hash", len(resp.Attachments))
	}
	if resp.Response != "See" {
		t.Errorf("Response = %q, want placeholder stripped anyway", resp.Response)
	}
}

func TestService_SessionsAreIsolated(t *testing.T) {
	svc := NewService(newFakeBlobStore())
	ctx := context.Background()

	reqA := models.ChatRequest{Text: "hello from A", SessionID: "a", UserID: "u1"}
	reqB := models.ChatRequest{Text: "hello from B", SessionID: "b", UserID: "u1"}

	if _, err := svc.BeginTurn(ctx, reqA); err != nil {
		t.Fatalf("BeginTurn(A) error = %v", err)
	}
	if _, err := svc.BeginTurn(ctx, reqB); err != nil {
		t.Fatalf("BeginTurn(B) error = %v", err)
	}

	if got := len(svc.History("u1", "a")); got != 1 {
		t.Errorf("session A history = %d, want 1", got)
	}
	if got := len(svc.History("u1", "b")); got != 1 {
		t.Errorf("session B history = %d, want 1", got)
	}
}
