// Package ai defines the gateway boundary to the external model provider.
// The gateway itself implements no retries or backoff; resilience belongs to
// the caller (see resilient.go).
package ai

import "context"

// Transcriber converts raw audio bytes into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder produces a fixed-dimension vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway bundles the three model capabilities the pipeline consumes. The
// concrete pieces can come from different providers (the transcriber talks to
// the Gemini HTTP API directly; generation and embeddings go through
// langchaingo).
type Gateway struct {
	Transcriber
	Generator
	Embedder
}
