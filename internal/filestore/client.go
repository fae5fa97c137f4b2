package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client uploads binary attachments through the file-storage front end. The upload
// is a two-step protocol: request a pre-signed upload target for the destination
// key, then POST the binary with the returned form fields. The durable URL is the
// one reported by the presign call, not the upload endpoint's own response.
type Client struct {
	logger     *slog.Logger
	serviceURL string
	http       *http.Client
}

// Config holds file-storage client configuration.
type Config struct {
	ServiceURL string
	Timeout    time.Duration
}

// New creates a new file-storage client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "filestore"),
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		http:       &http.Client{Timeout: timeout},
	}
}

type presignRequest struct {
	Key string `json:"key"`
}

type presignResponse struct {
	// URL is the final, durable object URL.
	URL string `json:"url"`
	// UploadURL and Fields describe the one-shot form POST target.
	UploadURL string            `json:"uploadUrl"`
	Fields    map[string]string `json:"fields"`
}

// Upload stores data under the given key and returns the durable object URL.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	presigned, err := c.presign(ctx, key)
	if err != nil {
		return "", err
	}
	if err := c.uploadForm(ctx, presigned, key, data, contentType); err != nil {
		return "", err
	}
	return presigned.URL, nil
}

func (c *Client) presign(ctx context.Context, key string) (*presignResponse, error) {
	payload, err := json.Marshal(presignRequest{Key: key})
	if err != nil {
		return nil, fmt.Errorf("marshal presign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new presign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presign request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("presign error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var presigned presignResponse
	if err := json.NewDecoder(res.Body).Decode(&presigned); err != nil {
		return nil, fmt.Errorf("decode presign response: %w", err)
	}
	if presigned.URL == "" || presigned.UploadURL == "" {
		return nil, fmt.Errorf("presign response missing url for key %s", key)
	}
	return &presigned, nil
}

func (c *Client) uploadForm(ctx context.Context, presigned *presignResponse, key string, data []byte, contentType string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, value := range presigned.Fields {
		if err := writer.WriteField(field, value); err != nil {
			return fmt.Errorf("write form field %s: %w", field, err)
		}
	}

	part, err := writer.CreateFormFile("file", key)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, presigned.UploadURL, &buf)
	if err != nil {
		return fmt.Errorf("new upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if contentType != "" {
		req.Header.Set("X-Content-Type", contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("upload error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
