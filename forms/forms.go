// Package forms fetches submitted form documents from the document
// source API and stages them on disk for journalizing.
package forms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dentalrpa/journalize/logkeys"
	"github.com/dentalrpa/journalize/process"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// DefaultTimeout is the per-fetch HTTP timeout.
const DefaultTimeout = 30 * time.Second

// Client fetches document bytes from the document source, authenticating
// with an API key header.
type Client struct {
	apiKey string
	client *http.Client
	logger log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a document source client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: DefaultTimeout},
		logger: log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBytes fetches the raw document bytes for a source URL.
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("API-Key", c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("document source: unexpected status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Download fetches the item's source document and writes it to
// dir/fileName, replacing any stale copy from a previous run. The staged
// path is recorded in the run context under KeyDocumentPath.
func (c *Client) Download(ctx context.Context, rctx *process.Context, dir, fileName string) (string, error) {
	logger := ctxlog.Logger(ctx, c.logger)

	url, err := rctx.RequireString(process.KeyURL)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(dir, fileName)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating document folder: %w", err)
	}
	if err = os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("removing stale document: %w", err)
	}

	raw, err := c.FetchBytes(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetching document: %w", err)
	}
	if err = os.WriteFile(fullPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	// verify the write landed before the desktop app is pointed at it
	if _, err = os.Stat(fullPath); err != nil {
		return "", fmt.Errorf("verifying document: %w", err)
	}

	rctx.Set(map[string]interface{}{process.KeyDocumentPath: fullPath})
	logger.Debug(logkeys.Message, "downloaded document", logkeys.Path, fullPath)
	return fullPath, nil
}
