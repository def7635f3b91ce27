package ai

import "context"

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// The response is untrusted: callers validate and parse it themselves.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
