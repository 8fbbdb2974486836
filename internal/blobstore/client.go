package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxFileSize is the upload ceiling for garment images.
	MaxFileSize = 10 * 1024 * 1024
	// MinFileSize guards against empty or truncated uploads.
	MinFileSize = 1024

	defaultTimeout = 30 * time.Second
)

var allowedContentTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/webp",
	"image/gif",
}

// Config holds storage service configuration
type Config struct {
	Endpoint   string // storage API base, e.g. https://xyz.supabase.co/storage/v1
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

// Client is an HTTP client for the image storage service. Original uploads
// land under {owner}/, processed images under {owner}/processed/.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a storage client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// UploadOriginal stores a freshly uploaded garment image under a unique name
// and returns its public URL.
func (c *Client) UploadOriginal(ctx context.Context, ownerID, fileName string, data []byte, contentType string) (string, error) {
	objectPath := fmt.Sprintf("%s/%s%s", ownerID, uuid.New().String(), extensionFor(fileName, contentType))
	return c.upload(ctx, objectPath, data, contentType)
}

// UploadProcessed stores the background-extracted image for a garment and
// returns its public URL. The path is deterministic so a retried job
// overwrites its own earlier partial result.
func (c *Client) UploadProcessed(ctx context.Context, ownerID, garmentID string, data []byte, contentType string) (string, error) {
	objectPath := fmt.Sprintf("%s/processed/%s%s", ownerID, garmentID, extensionFor("", contentType))
	return c.upload(ctx, objectPath, data, contentType)
}

func (c *Client) upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/object/%s/%s", c.config.Endpoint, c.config.Bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := fmt.Sprintf("%s/object/public/%s/%s", c.config.Endpoint, c.config.Bucket, objectPath)

	c.logger.Info("Image uploaded",
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)

	return publicURL, nil
}

// Delete removes an object given its public URL. A reference that does not
// point into this bucket is reported, not silently ignored.
func (c *Client) Delete(ctx context.Context, publicURL string) error {
	objectPath, err := c.objectPathFromURL(publicURL)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/object/%s/%s", c.config.Endpoint, c.config.Bucket, objectPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete returned status %d", resp.StatusCode)
	}

	c.logger.Info("Image deleted",
		slog.String("path", objectPath),
	)

	return nil
}

// ValidateImage checks content type and size limits before an upload is
// accepted. Producer-side validation; the worker trusts queued payloads.
func (c *Client) ValidateImage(contentType string, size int64) error {
	allowed := false
	for _, t := range allowedContentTypes {
		if t == contentType {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("content type %q not allowed, allowed: %s", contentType, strings.Join(allowedContentTypes, ", "))
	}

	if size > MaxFileSize {
		return fmt.Errorf("file too large, maximum is %dMB", MaxFileSize/(1024*1024))
	}
	if size < MinFileSize {
		return fmt.Errorf("file too small")
	}

	return nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/bucket/%s", c.config.Endpoint, c.config.Bucket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("storage health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) objectPathFromURL(publicURL string) (string, error) {
	prefix := fmt.Sprintf("%s/object/public/%s/", c.config.Endpoint, c.config.Bucket)
	if !strings.HasPrefix(publicURL, prefix) {
		return "", fmt.Errorf("url %q does not reference bucket %s", publicURL, c.config.Bucket)
	}
	return strings.TrimPrefix(publicURL, prefix), nil
}

func extensionFor(fileName, contentType string) string {
	if ext := path.Ext(fileName); ext != "" {
		return strings.ToLower(ext)
	}

	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
