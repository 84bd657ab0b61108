// Package connapi is a minimal IS-05 Connection Management API client. It is
// used to activate and deactivate the resource behind a status monitor; the
// request and response bodies are opaque to the rest of the tool beyond
// success or failure.
package connapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/nccheck/errors"
)

const component = "connapi"

// Client issues staged PATCH requests against one IS-05 endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options tunes a Client.
type Options struct {
	// Timeout bounds each request. Zero means 10 seconds.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a client for the Connection API rooted at baseURL, e.g.
// "http://device:port/x-nmos/connection/v1.1".
func NewClient(baseURL string, opts Options) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.New(errors.KindProtocolError, component, "NewClient", "invalid base URL %q: %v", baseURL, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.With(slog.String("component", component)),
	}, nil
}

// ReceiverDriver adapts the client to drive a receiver resource. The SDP is
// offered as the transport file on activation.
type ReceiverDriver struct {
	Client *Client
	SDP    string
}

// Activate patches the receiver's staged endpoint with master_enable true and
// immediate activation.
func (d ReceiverDriver) Activate(ctx context.Context, resourceID string) error {
	body := map[string]any{
		"activation":    map[string]any{"mode": "activate_immediate"},
		"master_enable": true,
		"sender_id":     uuid.NewString(),
		"transport_file": map[string]any{
			"data": d.SDP,
			"type": "application/sdp",
		},
	}
	return d.Client.patchStaged(ctx, "receivers", resourceID, body)
}

// Deactivate patches the receiver's staged endpoint with master_enable false.
func (d ReceiverDriver) Deactivate(ctx context.Context, resourceID string) error {
	body := map[string]any{
		"activation":    map[string]any{"mode": "activate_immediate"},
		"master_enable": false,
		"sender_id":     nil,
	}
	return d.Client.patchStaged(ctx, "receivers", resourceID, body)
}

// SenderDriver adapts the client to drive a sender resource.
type SenderDriver struct {
	Client *Client
}

// Activate patches the sender's staged endpoint with master_enable true and
// immediate activation.
func (d SenderDriver) Activate(ctx context.Context, resourceID string) error {
	body := map[string]any{
		"activation":    map[string]any{"mode": "activate_immediate"},
		"master_enable": true,
	}
	return d.Client.patchStaged(ctx, "senders", resourceID, body)
}

// Deactivate patches the sender's staged endpoint with master_enable false.
func (d SenderDriver) Deactivate(ctx context.Context, resourceID string) error {
	body := map[string]any{
		"activation":    map[string]any{"mode": "activate_immediate"},
		"master_enable": false,
	}
	return d.Client.patchStaged(ctx, "senders", resourceID, body)
}

func (c *Client) patchStaged(ctx context.Context, resourceKind, resourceID string, body map[string]any) error {
	endpoint := fmt.Sprintf("%s/single/%s/%s/staged", c.baseURL, resourceKind, url.PathEscape(resourceID))

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, component, "patchStaged", "encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, component, "patchStaged", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, component, "patchStaged", "PATCH "+endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.KindProtocolError, component, "patchStaged",
			"PATCH %s returned HTTP %d: %s", endpoint, resp.StatusCode, string(detail))
	}

	c.logger.Debug("staged patch applied",
		slog.String("resource", resourceKind+"/"+resourceID),
		slog.Int("status", resp.StatusCode))
	return nil
}
