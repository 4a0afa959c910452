package chat

import (
	"fmt"
	"strings"

	"github.com/expenso-ai/expenso/pkg/models"
)

// ImageWindow is how many of the most recent user messages keep their
// inline image bytes. Older user messages have each image replaced with
// a text placeholder carrying its hash ID, which bounds prompt size
// while keeping every image recoverable from blob storage.
const ImageWindow = 3

// Part is one piece of a message: text, an inline image, or a tool
// response marker. Exactly one of Text and Image is meaningful for
// content parts.
type Part struct {
	Text         string
	Image        *ImageBlob
	ToolResponse bool
}

// ImageBlob is inline image content together with its content hash.
type ImageBlob struct {
	Data     []byte
	MIMEType string
	HashID   string
}

// Message is one conversation turn.
type Message struct {
	Role  string // "user" or "model"
	Parts []Part
}

// Placeholder renders the stand-in text for a stored image.
func Placeholder(hashID string) string {
	return fmt.Sprintf("[IMAGE-ID %s]", hashID)
}

// NewImagePart wraps raw image bytes as a message part, hashing them
// for content addressing.
func NewImagePart(data []byte, mimeType string) Part {
	return Part{Image: &ImageBlob{
		Data:     data,
		MIMEType: mimeType,
		HashID:   models.HashImageID(data),
	}}
}

// WindowImages rewrites history so every image in a user message is
// followed by its placeholder, and only the last ImageWindow user
// messages keep the inline bytes. Model messages and tool responses are
// never touched.
//
// The pass is idempotent: an image whose placeholder already directly
// follows it gets no second one, so windowing an already-windowed
// history changes nothing.
func WindowImages(history []Message) []Message {
	userSeen := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg := &history[i]
		if msg.Role != "user" {
			continue
		}
		if isToolResponse(*msg) {
			continue
		}
		userSeen++
		keepBytes := userSeen <= ImageWindow

		var parts []Part
		for j := 0; j < len(msg.Parts); j++ {
			part := msg.Parts[j]
			if part.Image == nil {
				parts = append(parts, part)
				continue
			}

			if keepBytes {
				parts = append(parts, part)
			}
			placeholder := Placeholder(part.Image.HashID)
			if j+1 < len(msg.Parts) && msg.Parts[j+1].Text == placeholder {
				// Placeholder already present, picked up on the next pass
				// of the loop
				continue
			}
			parts = append(parts, Part{Text: placeholder})
		}
		msg.Parts = parts
	}
	return history
}

// RenderPrompt flattens a windowed history into one prompt for a
// text-only completion endpoint. Inline image bytes cannot cross that
// boundary; the placeholder parts the window pass guarantees stand in
// for them.
func RenderPrompt(history []Message) string {
	var b strings.Builder
	for _, msg := range history {
		for _, part := range msg.Parts {
			if part.Text == "" {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, part.Text)
		}
	}
	return b.String()
}

// isToolResponse reports whether a user-role message is actually a tool
// result being fed back to the model.
func isToolResponse(msg Message) bool {
	for _, part := range msg.Parts {
		if part.ToolResponse {
			return true
		}
	}
	return false
}

// InlineImageCount returns how many image parts in the history still
// carry raw bytes.
func InlineImageCount(history []Message) int {
	count := 0
	for _, msg := range history {
		for _, part := range msg.Parts {
			if part.Image != nil {
				count++
			}
		}
	}
	return count
}
