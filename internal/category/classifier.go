package category

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Taxonomy is the closed set of expense categories. Every stored line
// item carries exactly one of these values after ingestion.
var Taxonomy = []string{
	"Groceries",
	"Dining",
	"Entertainment",
	"Fitness",
	"Electronics",
	"Clothing",
	"Healthcare",
	"Transportation",
	"Utilities",
	"Education",
	"Home",
	"Personal Care",
	"Travel",
	"Gifts",
	"Business",
	"Other",
}

// Other is the terminal fallback for anything that cannot be classified.
const Other = "Other"

// Completer produces a best-effort text answer for a prompt. Satisfied
// by llm.Client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Classifier assigns taxonomy categories to item names using an LLM.
// It never fails: any transport error or unparseable answer degrades to
// Other, because ingestion must not break on categorization.
type Classifier struct {
	llm Completer
}

// New creates a classifier backed by the given completer. A nil
// completer is allowed and classifies everything as Other.
func New(llm Completer) *Classifier {
	return &Classifier{llm: llm}
}

const classifierSystemPrompt = "You are an expense categorization assistant. " +
	"Given the name of a purchased item, answer with exactly one category name from the provided list. " +
	"Answer with the category name only, no explanations."

// Classify maps an item name to a taxonomy category.
func (c *Classifier) Classify(ctx context.Context, itemName string) string {
	if c.llm == nil {
		return Other
	}

	prompt := fmt.Sprintf("Categories: %s\n\nItem: %s\n\nCategory:",
		strings.Join(Taxonomy, ", "), itemName)

	answer, err := c.llm.Complete(ctx, classifierSystemPrompt, prompt)
	if err != nil {
		slog.Warn("item classification failed, falling back", "item", itemName, "fallback", Other, "error", err)
		return Other
	}

	matched, ok := Normalize(answer)
	if !ok {
		slog.Warn("classifier answer outside taxonomy, falling back", "item", itemName, "answer", answer, "fallback", Other)
		return Other
	}
	return matched
}

// Normalize matches free text against the taxonomy: exact
// case-insensitive match first, then substring containment either way.
// The second stage tolerates answers like "Category: Groceries" or
// truncated model output.
func Normalize(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	lower := strings.ToLower(s)
	for _, cat := range Taxonomy {
		if lower == strings.ToLower(cat) {
			return cat, true
		}
	}

	for _, cat := range Taxonomy {
		cl := strings.ToLower(cat)
		if strings.Contains(lower, cl) || strings.Contains(cl, lower) {
			return cat, true
		}
	}

	return "", false
}

// IsValid reports whether s is already a taxonomy member.
func IsValid(s string) bool {
	for _, cat := range Taxonomy {
		if s == cat {
			return true
		}
	}
	return false
}
