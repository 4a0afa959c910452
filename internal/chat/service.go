package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/expenso-ai/expenso/pkg/models"
)

// BlobStore is the image persistence surface the service depends on.
// Implemented by storage.Client.
type BlobStore interface {
	PutImage(ctx context.Context, userID, sessionID string, data []byte, mimeType string) (string, error)
	GetImage(ctx context.Context, userID, sessionID, hashID string) ([]byte, string, error)
}

// Service manages per-session conversation histories and their image
// attachments. Every uploaded image is persisted to blob storage before
// it enters the history, so windowed-out images stay recoverable.
type Service struct {
	blobs BlobStore

	mu       sync.Mutex
	sessions map[string][]Message
}

// NewService creates a chat service backed by the given blob store.
func NewService(blobs BlobStore) *Service {
	return &Service{
		blobs:    blobs,
		sessions: make(map[string][]Message),
	}
}

// ResolveSession returns the given session ID, or a fresh one when the
// caller did not supply one.
func (s *Service) ResolveSession(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.NewString()
}

func sessionKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// BeginTurn appends the user's message to the session history and
// returns the windowed history to send to the model. Uploaded images
// are decoded from base64, persisted under their content hash, and
// attached inline; images from older turns are reduced to placeholders
// by the window pass.
func (s *Service) BeginTurn(ctx context.Context, req models.ChatRequest) ([]Message, error) {
	msg := Message{Role: "user"}
	if req.Text != "" {
		msg.Parts = append(msg.Parts, Part{Text: req.Text})
	}

	for i, file := range req.Files {
		data, err := base64.StdEncoding.DecodeString(file.SerializedImage)
		if err != nil {
			return nil, fmt.Errorf("failed to decode uploaded image %d: %w", i, err)
		}

		hashID, err := s.blobs.PutImage(ctx, req.UserID, req.SessionID, data, file.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("failed to store uploaded image %d: %w", i, err)
		}

		// The placeholder part follows the image so the model can refer
		// to it by hash; the window pass later keeps the placeholder and
		// drops the bytes.
		msg.Parts = append(msg.Parts, NewImagePart(data, file.MIMEType))
		msg.Parts = append(msg.Parts, Part{Text: Placeholder(hashID)})
		slog.Debug("attachment stored", "session_id", req.SessionID, "hash_id", hashID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(req.UserID, req.SessionID)
	history := append(s.sessions[key], msg)
	history = WindowImages(history)
	s.sessions[key] = history

	out := make([]Message, len(history))
	copy(out, history)
	return out, nil
}

// CompleteTurn records the model's response in the session history and
// builds the caller-facing response: thinking split from the final
// answer, placeholders stripped, and each referenced image loaded back
// from blob storage.
func (s *Service) CompleteTurn(ctx context.Context, req models.ChatRequest, modelResponse string) (*models.ChatResponse, error) {
	s.mu.Lock()
	key := sessionKey(req.UserID, req.SessionID)
	s.sessions[key] = append(s.sessions[key], Message{
		Role:  "model",
		Parts: []Part{{Text: modelResponse}},
	})
	s.mu.Unlock()

	thinking, final := ExtractThinking(modelResponse)
	cleaned, ids := ExtractAttachmentIDs(final)

	resp := &models.ChatResponse{
		Response:        cleaned,
		ThinkingProcess: thinking,
	}

	// A failed lookup drops that attachment, never the whole reply; the
	// text still stands on its own.
	for _, id := range ids {
		data, mimeType, err := s.blobs.GetImage(ctx, req.UserID, req.SessionID, id)
		if err != nil {
			slog.Warn("failed to load referenced image, skipping attachment", "session_id", req.SessionID, "hash_id", id, "error", err)
			continue
		}
		if data == nil {
			slog.Warn("response referenced unknown image", "session_id", req.SessionID, "hash_id", id)
			continue
		}
		resp.Attachments = append(resp.Attachments, models.ImageData{
			SerializedImage: base64.StdEncoding.EncodeToString(data),
			MIMEType:        mimeType,
		})
	}

	return resp, nil
}

// History returns a copy of the stored history for a session.
func (s *Service) History(userID, sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.sessions[sessionKey(userID, sessionID)]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
