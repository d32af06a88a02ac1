package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Resumable upload protocol against the Gemini Files API, used for audio
// payloads above InlineAudioLimit. Three phases: start (returns an upload
// URL), upload+finalize (streams the bytes), poll (waits for the file to
// become ACTIVE).

const (
	uploadPollAttempts = 30
	uploadPollInterval = 2 * time.Second
)

// RemoteFile describes a file held by the Files API.
type RemoteFile struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

type fileEnvelope struct {
	File RemoteFile `json:"file"`
}

// uploadFile runs the full three-phase protocol and returns the remote file
// once it is ACTIVE.
func (c *Client) uploadFile(ctx context.Context, data []byte, mimeType string) (*RemoteFile, error) {
	uploadURL, err := c.startUpload(ctx, len(data), mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload start failed: %w", err)
	}

	file, err := c.transferBytes(ctx, uploadURL, data)
	if err != nil {
		return nil, fmt.Errorf("upload transfer failed: %w", err)
	}

	active, err := c.waitForActive(ctx, file.Name)
	if err != nil {
		c.deleteFileQuietly(ctx, file.Name)
		return nil, err
	}
	return active, nil
}

// startUpload declares the payload and returns the session's upload URL.
func (c *Client) startUpload(ctx context.Context, length int, mimeType string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/upload/v1beta/files?key=%s", c.baseURL, c.apiKey)
	body := mustJSON(map[string]interface{}{
		"file": map[string]interface{}{"display_name": "meetgraph-audio"},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(length))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload start returned status %d", resp.StatusCode)
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", fmt.Errorf("upload start returned no upload URL")
	}
	return uploadURL, nil
}

// transferBytes streams the full payload at offset 0 with a combined
// upload+finalize command and returns the created file handle.
func (c *Client) transferBytes(ctx context.Context, uploadURL string, data []byte) (*RemoteFile, error) {
	headers := map[string]string{
		"X-Goog-Upload-Offset":  "0",
		"X-Goog-Upload-Command": "upload, finalize",
	}
	respBody, err := c.send(ctx, http.MethodPut, uploadURL, "application/octet-stream", data, headers)
	if err != nil {
		return nil, err
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if envelope.File.Name == "" {
		return nil, fmt.Errorf("upload response contained no file handle")
	}
	return &envelope.File, nil
}

// waitForActive polls the file handle until its state reports ACTIVE,
// bounded to uploadPollAttempts at uploadPollInterval spacing.
func (c *Client) waitForActive(ctx context.Context, name string) (*RemoteFile, error) {
	for attempt := 0; attempt < uploadPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(uploadPollInterval):
			}
		}

		endpoint := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
		respBody, err := c.send(ctx, http.MethodGet, endpoint, "", nil, nil)
		if err != nil {
			return nil, fmt.Errorf("file poll failed: %w", err)
		}

		var file RemoteFile
		if err := json.Unmarshal(respBody, &file); err != nil {
			return nil, fmt.Errorf("failed to decode file state: %w", err)
		}

		switch file.State {
		case "ACTIVE":
			return &file, nil
		case "FAILED":
			return nil, fmt.Errorf("remote file processing failed for %s", name)
		}
	}
	return nil, fmt.Errorf("remote file %s not active after %d polls", name, uploadPollAttempts)
}

// deleteFileQuietly removes a remote file best-effort. Failure is logged and
// swallowed; cleanup must never mask the result of the call that used the
// file.
func (c *Client) deleteFileQuietly(ctx context.Context, name string) {
	if name == "" {
		return
	}
	endpoint := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, name, c.apiKey)
	if _, err := c.send(ctx, http.MethodDelete, endpoint, "", nil, nil); err != nil {
		c.log.Warn().Err(err).Str("file", name).Msg("failed to delete remote upload")
	}
}
