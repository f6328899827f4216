// Package textgen defines the text generation and document retrieval
// interfaces the pipeline depends on. Backends are interchangeable behind
// these interfaces; an HTTP-backed generator ships here, and static doubles
// cover tests and offline runs.
package textgen

import "context"

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest is the input to a generator's Generate call.
type GenerationRequest struct {
	Prompt  string
	System  string
	History []Message
}

// TextGenerator produces structured output for a prompt. Implementations may
// return either a map[string]any or a JSON-encoded string; callers pass the
// result through Normalize before use.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (any, error)
}

// Document is one retrieved reference document with its similarity to the query.
type Document struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Category   string  `json:"category,omitempty"`
}

// DocumentRetriever finds the topK documents most relevant to a query.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
