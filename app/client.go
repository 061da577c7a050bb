package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/micromdm/nanolib/log"
)

// DefaultTimeout is the per-call HTTP timeout against the automation
// bridge. UI automation is slow; individual capability calls may drive
// multiple dialogs.
const DefaultTimeout = 90 * time.Second

// Client drives the desktop application through the automation bridge
// agent running on the robot host. Each capability maps to one bridge
// endpoint.
type Client struct {
	endpoint string
	username string
	password string
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

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates an automation bridge client. The username and
// password are the application login used by the Login capability.
func NewClient(endpoint, username, password string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post sends one capability call to the bridge. Any non-2xx status is an
// error.
func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	var raw []byte
	var err error
	if body != nil {
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal bridge request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bridge: %s: unexpected status: %s", path, resp.Status)
	}
	return nil
}

func (c *Client) Start(ctx context.Context) error {
	return c.post(ctx, "/app/start", nil)
}

func (c *Client) Login(ctx context.Context) error {
	return c.post(ctx, "/app/login", &struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{c.username, c.password})
}

func (c *Client) OpenPatient(ctx context.Context, nationalID string) error {
	return c.post(ctx, "/app/open-patient", &struct {
		NationalID string `json:"national_id"`
	}{nationalID})
}

func (c *Client) CreateDocument(ctx context.Context, path, documentType, description string) error {
	return c.post(ctx, "/app/create-document", &struct {
		Path         string `json:"path"`
		DocumentType string `json:"document_type"`
		Description  string `json:"description"`
	}{path, documentType, description})
}

func (c *Client) CreateJournalNote(ctx context.Context, message string, markComplete bool) error {
	return c.post(ctx, "/app/create-journal-note", &struct {
		Message      string `json:"message"`
		MarkComplete bool   `json:"mark_complete"`
	}{message, markComplete})
}

func (c *Client) ChangeClinic(ctx context.Context, clinicName string) error {
	return c.post(ctx, "/app/change-clinic", &struct {
		ClinicName string `json:"clinic_name"`
	}{clinicName})
}

func (c *Client) ReleaseKeys(ctx context.Context) error {
	return c.post(ctx, "/app/release-keys", nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.post(ctx, "/app/close", nil)
}

func (c *Client) Terminate(ctx context.Context) error {
	return c.post(ctx, "/app/kill", nil)
}

func (c *Client) Running(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/app/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	var status struct {
		Running bool `json:"running"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Running
}
