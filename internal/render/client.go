// Package render talks to the external PDF render service. Templates are
// HTML files shipped with the console; the service merges them with data
// and returns the rendered PDF.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/launchbase/console/internal/retry"
)

// Client posts render jobs to the render service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
}

// Config configures the render client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a render client. Transient transport failures are retried
// under the default policy; HTTP error statuses are not.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	policy := retry.DefaultPolicy()
	policy.Retryable = func(err error) bool {
		var statusErr *StatusError
		return !errors.As(err, &statusErr)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		policy:     policy,
	}
}

type renderRequest struct {
	TemplateBase64 string      `json:"templateBase64"`
	Data           interface{} `json:"data"`
}

// RenderFile reads an HTML template from disk and renders it with data.
func (c *Client) RenderFile(ctx context.Context, templatePath string, data interface{}) ([]byte, error) {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return c.Render(ctx, template, data)
}

// Render posts the template and data to the render service and returns the
// PDF bytes.
func (c *Client) Render(ctx context.Context, template []byte, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{
		TemplateBase64: base64.StdEncoding.EncodeToString(template),
		Data:           data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	var pdf []byte
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		pdf, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		return err
	})
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// StatusError reports a non-200 response from the render service. It is not
// retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("render service returned status %d: %s", e.Code, e.Body)
}
