package rag

import (
	"strings"

	"lexchat/internal/vectorindex"
)

const (
	// DefaultMaxContextTokens bounds the assembled context.
	DefaultMaxContextTokens = 3000
	// charsPerToken approximates the token budget in characters. This is the
	// same fixed heuristic the context size has always been computed with;
	// exact tokenization would change context size for equivalent inputs.
	charsPerToken = 4

	chunkDelimiter = "\n\n---\n\n"
	dedupKeyChars  = 80

	// NoContextPlaceholder keeps the prompt well-formed when retrieval found
	// nothing usable.
	NoContextPlaceholder = "(No relevant context found.)"
)

const systemPromptTemplate = `You are an assistant for answering questions about the user's uploaded documents. Answer strictly from the context below. If the answer is not in the context, say so instead of inventing information.

Context from documents:
{{CONTEXT}}

Rules:
- Answer concisely and factually.
- Quote specific passages from the context where it helps.
- Do not use information outside the provided context.`

// BuildContext packs ranked results into a single context string. Results are
// taken in the given order, deduplicated by (document id, first 80 chars of
// text) to drop near-duplicates from overlapping windows, and accumulated
// until the character budget would be exceeded.
func BuildContext(results []vectorindex.SearchResult, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	maxChars := maxTokens * charsPerToken

	seen := make(map[string]struct{}, len(results))
	var parts []string
	total := 0
	for _, r := range results {
		key := r.DocumentID + ":" + prefix(r.Text, dedupKeyChars)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if total+len(r.Text) > maxChars {
			break
		}
		parts = append(parts, strings.TrimSpace(r.Text))
		total += len(r.Text)
	}

	if len(parts) == 0 {
		return NoContextPlaceholder
	}
	return strings.Join(parts, chunkDelimiter)
}

// SystemMessage returns the system-role prompt with the context injected.
func SystemMessage(context string) string {
	if context == "" {
		context = NoContextPlaceholder
	}
	return strings.Replace(systemPromptTemplate, "{{CONTEXT}}", context, 1)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
