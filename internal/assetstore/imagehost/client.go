package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/marketa/catalog/internal/assetstore"
	"github.com/marketa/catalog/pkg/httpclient"
)

// Config holds image host client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the external image host over HTTP. Uploads are multipart
// POSTs, deletions are keyed by asset id. All calls go through a circuit
// breaker so a misbehaving host cannot pile up requests.
type Client struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// New creates a new image host client.
func New(cfg Config, logger *slog.Logger) *Client {
	clientCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}

	base := httpclient.New(clientCfg)
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("imagehost"), logger)

	return &Client{
		http:    cb,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// uploadResponse is the image host's reply to a successful upload.
type uploadResponse struct {
	AssetID string `json:"asset_id"`
	URL     string `json:"url"`
}

// errorResponse is the image host's structured error body.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the asset as a multipart POST and returns its handle and URL.
func (c *Client) Upload(ctx context.Context, input *assetstore.UploadInput) (*assetstore.UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", input.Filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, input.Data); err != nil {
		return nil, fmt.Errorf("copy upload data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	payload := body.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assets", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp, "upload")
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.AssetID == "" || uploaded.URL == "" {
		return nil, fmt.Errorf("image host returned incomplete upload response")
	}

	c.logger.DebugContext(ctx, "asset uploaded",
		slog.String("asset_id", uploaded.AssetID),
		slog.String("filename", input.Filename),
	)

	return &assetstore.UploadResult{AssetID: uploaded.AssetID, URL: uploaded.URL}, nil
}

// Delete removes an asset by its handle. A 404 or 410 from the host maps to
// assetstore.ErrAssetNotFound so callers can treat it as an idempotent success.
func (c *Client) Delete(ctx context.Context, assetID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/assets/"+assetID, http.NoBody)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", assetID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return assetstore.ErrAssetNotFound
	default:
		return c.parseError(resp, "delete")
	}
}

// parseError reads a non-2xx response body and builds a descriptive error.
func (c *Client) parseError(resp *http.Response, op string) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("image host %s returned status %d (failed to read body: %w)", op, resp.StatusCode, err)
	}

	var structured errorResponse
	if json.Unmarshal(bodyBytes, &structured) == nil && structured.Error.Code != "" {
		return fmt.Errorf("image host %s failed (%d/%s): %s", op, resp.StatusCode, structured.Error.Code, structured.Error.Message)
	}

	return fmt.Errorf("image host %s returned status %d: %s", op, resp.StatusCode, string(bodyBytes))
}
