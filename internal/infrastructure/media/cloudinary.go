// Package media implements the external media-host contract: hand over a
// staged local file, get back a durable URL. The host speaks the
// Cloudinary-style signed upload REST API.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const uploadTimeout = 30 * time.Second

// Config carries the media-host credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL overrides the host endpoint; used in tests.
	BaseURL string
}

// Client uploads images to the media host.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://api.cloudinary.com/v1_1/%s", cfg.CloudName)
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: uploadTimeout},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

// Upload sends the local file as a signed multipart request and returns the
// durable URL of the stored asset. The caller owns cleanup of localPath.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("media: open staged file: %w", err)
	}
	defer f.Close()

	ts := strconv.FormatInt(time.Now().Unix(), 10)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("api_key", c.cfg.APIKey)
	_ = w.WriteField("timestamp", ts)
	_ = w.WriteField("signature", c.signature(ts))

	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("media: build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("media: read staged file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("media: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/image/upload", &body)
	if err != nil {
		return "", fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("media: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("media: upload rejected with status %d: %s", resp.StatusCode, msg)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("media: decode response: %w", err)
	}

	url := out.SecureURL
	if url == "" {
		url = out.URL
	}
	if url == "" {
		return "", fmt.Errorf("media: host returned no URL")
	}
	return url, nil
}

// signature is the hex SHA-1 of the signed params concatenated with the API
// secret, per the host's signed-upload scheme.
func (c *Client) signature(ts string) string {
	sum := sha1.Sum([]byte("timestamp=" + ts + c.cfg.APISecret))
	return hex.EncodeToString(sum[:])
}
