package models

// ImageData carries one image across the chat boundary.
type ImageData struct {
	SerializedImage string `json:"serialized_image"` // Base64 encoded content
	MIMEType        string `json:"mime_type"`
}

// ChatRequest is one user turn arriving from the conversational frontend.
type ChatRequest struct {
	Text      string      `json:"text"`
	Files     []ImageData `json:"files,omitempty"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
}

// ChatResponse is the assembled reply for one turn: the user-visible
// answer, the model's separated thinking process, and any receipt images
// the answer referenced by hash ID.
type ChatResponse struct {
	Response        string      `json:"response"`
	ThinkingProcess string      `json:"thinking_process"`
	Attachments     []ImageData `json:"attachments,omitempty"`
	Error           string      `json:"error,omitempty"`
}
