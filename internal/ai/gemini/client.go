// Package gemini is a direct HTTP client for the Gemini generateContent and
// Files APIs. It exists because audio transcription needs the inline-data and
// file-data request shapes that the langchaingo abstraction does not expose.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// InlineAudioLimit is the payload size at or below which audio is sent
	// inline (base64 in the request body). Larger payloads go through the
	// resumable upload protocol. Hard constant, not configuration.
	InlineAudioLimit = 4 * 1024 * 1024
)

// Config contains configuration for the Gemini client.
type Config struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// Client talks to the Gemini HTTP API. It implements ai.Transcriber.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a Gemini client. The rate limiter keeps us under the
// free-tier request ceiling; bursts of a few calls are fine.
func New(config Config, log zerolog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:  config.APIKey,
		model:   config.Model,
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(rate.Every(1*time.Second), 5),
		log:     log,
	}, nil
}

// request/response shapes for generateContent

type generateRequest struct {
	Contents []requestContent `json:"contents"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineBlob `json:"inline_data,omitempty"`
	FileData   *fileRef    `json:"file_data,omitempty"`
}

type inlineBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type fileRef struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Transcribe converts audio to transcript text. Payloads at or below
// InlineAudioLimit are sent inline; larger payloads go through the three-step
// resumable upload and are deleted remotely afterwards on a best-effort basis.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType, languageHint string) (string, error) {
	prompt := transcriptionPrompt(languageHint)

	if len(audio) <= InlineAudioLimit {
		return c.generateContent(ctx, []requestPart{
			{InlineData: &inlineBlob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
			{Text: prompt},
		})
	}

	file, err := c.uploadFile(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}
	defer c.deleteFileQuietly(ctx, file.Name)

	return c.generateContent(ctx, []requestPart{
		{FileData: &fileRef{MimeType: mimeType, FileURI: file.URI}},
		{Text: prompt},
	})
}

// transcriptionPrompt builds the strict instruction contract for the
// transcription call. The parser downstream depends on the Speaker prefix and
// the [inaudible] token exactly as worded here.
func transcriptionPrompt(languageHint string) string {
	var b strings.Builder
	b.WriteString("Transcribe this audio recording accurately.\n")
	if languageHint != "" {
		b.WriteString(fmt.Sprintf("The audio is primarily in %s.\n", languageHint))
	}
	b.WriteString("Output the transcript text only, with no commentary or markdown.\n")
	b.WriteString("If you can distinguish multiple speakers, prefix each speaker turn with \"Speaker <N>:\" (for example \"Speaker 1: ...\").\n")
	b.WriteString("If no speech is discernible, output exactly [inaudible].")
	return b.String()
}

// generateContent issues one generateContent call and returns the first
// candidate's concatenated text parts.
func (c *Client) generateContent(ctx context.Context, parts []requestPart) (string, error) {
	body := generateRequest{Contents: []requestContent{{Parts: parts}}}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	respBody, err := c.post(ctx, endpoint, "application/json", mustJSON(body), nil)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode generateContent response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("Gemini API error (%d %s): %s", resp.Error.Code, resp.Error.Status, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini returned no candidates")
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", fmt.Errorf("Gemini returned an empty candidate")
	}
	return text.String(), nil
}

// post sends a POST and returns the response body, mapping non-2xx statuses
// to errors that carry the body for diagnosis.
func (c *Client) post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) ([]byte, error) {
	return c.send(ctx, http.MethodPost, url, contentType, body, headers)
}

func (c *Client) send(ctx context.Context, method, url, contentType string, body []byte, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Gemini API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}
	return respBody, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with an unmarshalable type, which is a bug.
		panic(err)
	}
	return data
}
