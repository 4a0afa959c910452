package chat

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\[IMAGE-ID\s+([0-9a-fA-F]+)\]`)
	thinkingRe    = regexp.MustCompile(`(?s)#\s*THINKING PROCESS\s*(.*?)(?:#\s*FINAL RESPONSE|$)`)
	finalRe       = regexp.MustCompile(`(?s)#\s*FINAL RESPONSE\s*(.*)`)
)

// ExtractAttachmentIDs pulls image placeholder IDs out of a model
// response and returns the response text with the placeholders removed.
// IDs come back in order of first appearance, deduplicated, so the
// caller can resolve each one to stored image bytes exactly once.
func ExtractAttachmentIDs(text string) (string, []string) {
	var ids []string
	seen := make(map[string]bool)

	for _, match := range placeholderRe.FindAllStringSubmatch(text, -1) {
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	cleaned := placeholderRe.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(collapseBlankLines(cleaned))
	return cleaned, ids
}

// ExtractThinking splits a model response into its reasoning section
// and the user-facing answer. The thinking section is removed from the
// answer even when the final-response marker is missing, so reasoning
// never leaks to the user. Responses without any marker come back whole
// with empty thinking.
func ExtractThinking(text string) (thinking, final string) {
	if m := thinkingRe.FindStringSubmatch(text); m != nil {
		thinking = strings.TrimSpace(m[1])
	}

	if m := finalRe.FindStringSubmatch(text); m != nil {
		return thinking, strings.TrimSpace(m[1])
	}

	return thinking, strings.TrimSpace(thinkingRe.ReplaceAllString(text, ""))
}

// collapseBlankLines squeezes runs of blank lines left behind by
// placeholder removal.
func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
