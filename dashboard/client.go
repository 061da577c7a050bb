// Package dashboard talks to the process dashboard REST API: resolving
// process, step, run, and step-run identifiers and patching step-run
// status records.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/micromdm/nanolib/log"
)

var (
	ErrProcessNotFound = errors.New("process not found on dashboard")
	ErrStepNotFound    = errors.New("step not found on dashboard")
	ErrRunNotFound     = errors.New("no run found on dashboard")
	ErrStepRunNotFound = errors.New("step run not found on dashboard")
)

// DefaultTimeout is the per-call HTTP timeout for dashboard lookups and
// step-run updates. A hung dashboard fails fast rather than hanging the
// pipeline.
const DefaultTimeout = 30 * time.Second

// MetadataTimeout is the shorter timeout for the run metadata patch.
const MetadataTimeout = 10 * time.Second

// Client is a dashboard API client authenticating with an API key header.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client (and with it the timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new dashboard API client for the base endpoint URL.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one API call and decodes the JSON response into out (when
// out is non-nil). Any non-2xx status is an error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("dashboard API: %s %s: unexpected status: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type processRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProcessID resolves a process id by exact display-name match among
// non-deleted processes. A missing name is a configuration defect and
// returns ErrProcessNotFound.
func (c *Client) ProcessID(ctx context.Context, name string) (int, error) {
	var resp struct {
		Items []processRecord `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/processes/?include_deleted=false", nil, &resp); err != nil {
		return 0, fmt.Errorf("retrieving processes: %w", err)
	}
	for _, p := range resp.Items {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrProcessNotFound, name)
}

type stepRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StepID resolves a step id by exact name match among the process' steps.
func (c *Client) StepID(ctx context.Context, processID int, stepName string) (int, error) {
	var steps []stepRecord
	path := fmt.Sprintf("/steps/process/%d?include_deleted=false", processID)
	if err := c.do(ctx, http.MethodGet, path, nil, &steps); err != nil {
		return 0, fmt.Errorf("retrieving steps: %w", err)
	}
	for _, s := range steps {
		if s.Name == stepName {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrStepNotFound, stepName)
}

type runRecord struct {
	ID   int               `json:"id"`
	Meta map[string]string `json:"meta"`
}

func (c *Client) latestRun(ctx context.Context, processID int, nationalID string) (*runRecord, error) {
	var resp struct {
		Items []runRecord `json:"items"`
	}
	path := fmt.Sprintf(
		"/runs/?process_id=%d&meta_filter=%s&order_by=created_at&sort_direction=desc",
		processID, url.QueryEscape("cpr:"+nationalID),
	)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("retrieving runs: %w", err)
	}
	if len(resp.Items) < 1 {
		return nil, fmt.Errorf("%w: national id filter", ErrRunNotFound)
	}
	return &resp.Items[0], nil
}

// LatestRunID resolves the most recent run id for a process filtered by
// the citizen's national id.
func (c *Client) LatestRunID(ctx context.Context, processID int, nationalID string) (int, error) {
	r, err := c.latestRun(ctx, processID, nationalID)
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

// LatestRunMeta returns the metadata map of the most recent run for a
// process and national id. It returns a nil map (and no error) when the
// citizen has no recorded run.
func (c *Client) LatestRunMeta(ctx context.Context, processID int, nationalID string) (map[string]string, error) {
	r, err := c.latestRun(ctx, processID, nationalID)
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.Meta == nil {
		return map[string]string{}, nil
	}
	return r.Meta, nil
}

// StepRunID resolves the step-run record id for a (run, step) pair.
func (c *Client) StepRunID(ctx context.Context, runID, stepID int) (int, error) {
	var resp struct {
		ID *int `json:"id"`
	}
	path := fmt.Sprintf("/step-runs/run/%d/step/%d?include_deleted=false", runID, stepID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("retrieving step run: %w", err)
	}
	if resp.ID == nil {
		return 0, fmt.Errorf("%w: run %d step %d", ErrStepRunNotFound, runID, stepID)
	}
	return *resp.ID, nil
}

// UpdateStepRun patches the step-run record by id.
func (c *Client) UpdateStepRun(ctx context.Context, stepRunID int, update *StepRunUpdate) error {
	path := fmt.Sprintf("/step-runs/%d", stepRunID)
	if err := c.do(ctx, http.MethodPatch, path, update, nil); err != nil {
		return fmt.Errorf("updating step run %d: %w", stepRunID, err)
	}
	return nil
}

// UpdateRunMetadata patches a run's metadata map.
func (c *Client) UpdateRunMetadata(ctx context.Context, runID int, meta map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, MetadataTimeout)
	defer cancel()
	body := &struct {
		Meta map[string]string `json:"meta"`
	}{Meta: meta}
	path := fmt.Sprintf("/runs/%d/metadata", runID)
	if err := c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("updating run %d metadata: %w", runID, err)
	}
	return nil
}
