// Package odoo implements the ERP RPC gateway. It authenticates once per
// call sequence and forwards named operations to the remote object model,
// bounding every network leg with its own fresh timeout window so an
// unreachable backend fails fast instead of holding server resources.
package odoo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/launchbase/console/internal/metrics"
	"github.com/launchbase/console/internal/retry"
	"github.com/launchbase/console/pkg/logger"
)

var (
	// ErrConnectionTimeout reports that a network leg exceeded its budget.
	ErrConnectionTimeout = errors.New("odoo connection timeout")
	// ErrAuthenticationFailed reports that the remote rejected the
	// configured credentials.
	ErrAuthenticationFailed = errors.New("odoo authentication failed")
)

// Config holds gateway connection settings.
type Config struct {
	URL      string
	Database string
	Username string
	Password string
	// Timeout bounds each network leg. Defaults to 3 seconds.
	Timeout time.Duration
}

// rpcCaller is the slice of the XML-RPC client the gateway needs.
type rpcCaller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// Client forwards calls to the Odoo XML-RPC endpoints. It holds no mutable
// state between calls; each call sequence authenticates fresh.
type Client struct {
	cfg       Config
	common    rpcCaller
	object    rpcCaller
	authRetry retry.Policy
	log       *logger.Logger
}

// New dials the common and object endpoints and returns a gateway client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("odoo url is required")
	}
	if cfg.Database == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("odoo database, username and password are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("odoo")
	}

	base := strings.TrimSuffix(cfg.URL, "/")
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	common, err := xmlrpc.NewClient(base+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("dial odoo common endpoint: %w", err)
	}
	object, err := xmlrpc.NewClient(base+"/xmlrpc/2/object", transport)
	if err != nil {
		return nil, fmt.Errorf("dial odoo object endpoint: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.Retryable = func(err error) bool {
		// Only transient transport failures are worth a second attempt.
		// A timeout already consumed its full budget and a rejection
		// will not change on retry.
		return !errors.Is(err, ErrConnectionTimeout) && !errors.Is(err, ErrAuthenticationFailed)
	}

	return &Client{
		cfg:       cfg,
		common:    common,
		object:    object,
		authRetry: policy,
		log:       log,
	}, nil
}

// Authenticate exchanges the configured credentials for a numeric session id.
// It does not retry internally; the caller decides retry policy.
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	var uid int
	args := []interface{}{c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]interface{}{}}
	if err := c.callWithTimeout(ctx, c.common, "authenticate", args, &uid); err != nil {
		// Transport errors propagate unwrapped so the caller's retry policy
		// can tell them apart from a credential rejection.
		return 0, err
	}
	if uid == 0 {
		return 0, ErrAuthenticationFailed
	}
	return uid, nil
}

// ExecuteKw authenticates and forwards a named method on a remote model with
// positional and keyword arguments. Remote errors propagate unmodified; on
// timeout the call fails with ErrConnectionTimeout. No partial-success state
// is possible: either both legs succeed and a result is returned, or an
// error propagates with no local side effects.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	var uid int
	err := c.authRetry.Do(ctx, func(ctx context.Context) error {
		var authErr error
		uid, authErr = c.Authenticate(ctx)
		return authErr
	})
	if err != nil {
		metrics.RecordOdooCall(model, method, "auth_error")
		return nil, err
	}

	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	var result interface{}
	callArgs := []interface{}{c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs}
	if err := c.callWithTimeout(ctx, c.object, "execute_kw", callArgs, &result); err != nil {
		outcome := "error"
		if errors.Is(err, ErrConnectionTimeout) {
			outcome = "timeout"
		}
		metrics.RecordOdooCall(model, method, outcome)
		return nil, err
	}

	metrics.RecordOdooCall(model, method, "ok")
	return result, nil
}

// SearchRead is a convenience wrapper for the search_read method, decoding
// the result rows into generic records.
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit int) ([]map[string]interface{}, error) {
	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	if limit > 0 {
		kwargs["limit"] = limit
	}

	raw, err := c.ExecuteKw(ctx, model, "search_read", []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}

	rows, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected search_read result shape %T", raw)
	}

	records := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		record, ok := row.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected search_read row shape %T", row)
		}
		records = append(records, record)
	}
	return records, nil
}

// Probe checks reachability by authenticating. Used by the availability job.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Authenticate(ctx)
	return err
}

// callWithTimeout races the RPC call against a fresh timer. Each leg gets
// its own full timeout window rather than sharing a cumulative deadline.
func (c *Client) callWithTimeout(ctx context.Context, caller rpcCaller, method string, args []interface{}, reply interface{}) error {
	done := make(chan error, 1)
	go func() {
		done <- caller.Call(method, args, reply)
	}()

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.log.WithField("method", method).Warn("odoo call exceeded timeout budget")
		return ErrConnectionTimeout
	}
}
