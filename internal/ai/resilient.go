package ai

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meetgraph/internal/retry"
)

// ResilientGateway wraps a Gateway with exponential-backoff retries for
// transient upstream failures. Non-retryable errors (bad requests, auth) pass
// through after the first attempt.
type ResilientGateway struct {
	inner  Gateway
	config retry.RetryConfig
	log    zerolog.Logger
}

// NewResilientGateway wraps gw with the gateway retry policy.
func NewResilientGateway(gw Gateway, log zerolog.Logger) *ResilientGateway {
	return &ResilientGateway{
		inner:  gw,
		config: retry.GatewayRetryConfig(),
		log:    log,
	}
}

func (g *ResilientGateway) Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error) {
	var out string
	err := g.do(ctx, "transcribe", func() error {
		var err error
		out, err = g.inner.Transcribe(ctx, audio, mimeType, languageHint)
		return err
	})
	return out, err
}

func (g *ResilientGateway) Generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := g.do(ctx, "generate", func() error {
		var err error
		out, err = g.inner.Generate(ctx, prompt)
		return err
	})
	return out, err
}

func (g *ResilientGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.do(ctx, "embed", func() error {
		var err error
		out, err = g.inner.Embed(ctx, text)
		return err
	})
	return out, err
}

func (g *ResilientGateway) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	result := retry.RetryWithBackoff(ctx, g.config, g.log.With().Str("op", op).Logger(), func() error {
		err := fn()
		lastErr = err
		if err != nil && !retry.IsRetryableError(err) {
			// Permanent failure: stop the loop by reporting success and
			// surface the error below instead of burning retries on it.
			return nil
		}
		return err
	})
	if !result.Success {
		return result.LastError
	}
	return lastErr
}
