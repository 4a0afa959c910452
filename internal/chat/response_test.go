package chat

import (
	"reflect"
	"testing"
)

func TestExtractAttachmentIDs(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantCleaned string
		wantIDs     []string
	}{
		{
			name:        "no placeholders",
			text:        "You spent $50 at Cafe Luna.",
			wantCleaned: "You spent $50 at Cafe Luna.",
			wantIDs:     nil,
		},
		{
			name:        "single placeholder",
			text:        "Here is your receipt: [IMAGE-ID abc123def456]",
			wantCleaned: "Here is your receipt:",
			wantIDs:     []string{"abc123def456"},
		},
		{
			name:        "duplicate placeholder resolved once",
			text:        "[IMAGE-ID abc123def456] and again [IMAGE-ID abc123def456]",
			wantCleaned: "and again",
			wantIDs:     []string{"abc123def456"},
		},
		{
			name:        "order of first appearance",
			text:        "[IMAGE-ID bbb222] then [IMAGE-ID aaa111] then [IMAGE-ID bbb222]",
			wantCleaned: "then  then",
			wantIDs:     []string{"bbb222", "aaa111"},
		},
		{
			name:        "extra whitespace inside placeholder",
			text:        "[IMAGE-ID   abc123def456]",
			wantCleaned: "",
			wantIDs:     []string{"abc123def456"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned, ids := ExtractAttachmentIDs(tt.text)
			if cleaned != tt.wantCleaned {
				t.Errorf("cleaned = %q, want %q", cleaned, tt.wantCleaned)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestExtractThinking(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantThinking string
		wantFinal    string
	}{
		{
			name:         "no markers",
			text:         "You spent $50 last week.",
			wantThinking: "",
			wantFinal:    "You spent $50 last week.",
		},
		{
			name: "both sections",
			text: `# THINKING PROCESS
The user wants last week's total. I searched by metadata.

# FINAL RESPONSE
You spent $50 last week.`,
			wantThinking: "The user wants last week's total. I searched by metadata.",
			wantFinal:    "You spent $50 last week.",
		},
		{
			name: "final only",
			text: `# FINAL RESPONSE
Here you go.`,
			wantThinking: "",
			wantFinal:    "Here you go.",
		},
		{
			name:         "thinking without final marker",
			text:         "# THINKING PROCESS\nsecret chain of thought",
			wantThinking: "secret chain of thought",
			wantFinal:    "",
		},
		{
			name:         "text before unterminated thinking",
			text:         "Sure!\n# THINKING PROCESS\ninternal notes",
			wantThinking: "internal notes",
			wantFinal:    "Sure!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thinking, final := ExtractThinking(tt.text)
			if thinking != tt.wantThinking {
				t.Errorf("thinking = %q, want %q", thinking, tt.wantThinking)
			}
			if final != tt.wantFinal {
				t.Errorf("final = %q, want %q", final, tt.wantFinal)
			}
		})
	}
}
