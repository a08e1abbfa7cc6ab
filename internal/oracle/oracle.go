// Package oracle abstracts the LLM provider used for document and code
// analysis. Implementations must be safe for concurrent use.
package oracle

import "context"

// Client produces a text completion for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerateFunc adapts a plain function to the Client interface.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
