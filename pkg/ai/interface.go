package ai

import "context"

// Completer is the interface for LLM text completion.
// Implement this interface to add new model providers.
type Completer interface {
	// Complete sends a prompt and returns the raw model output.
	Complete(ctx context.Context, prompt string) (string, error)
	// Model returns the model identifier, recorded alongside results.
	Model() string
}
