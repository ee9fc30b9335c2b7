// Package llm provides the language-model collaborator contract and an
// OpenAI-compatible chat client used for advisory calls.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Options bound a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Client is the text-generation collaborator. Implementations must honor
// context cancellation; advisory calls carry a hard timeout.
type Client interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}
