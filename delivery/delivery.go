// Package delivery posts signed activities to remote inboxes.
//
// Every delivery goes through an httpsig.Transport for the sending actor's
// key. The transports share one base RoundTripper and so one connection
// pool. Failures are returned, never retried.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/staythepath/threadtalk/httpsig"
)

// DefaultTimeout bounds one delivery when Config leaves it zero.
const DefaultTimeout = 10 * time.Second

// Config configures a Client.
type Config struct {
	// Base carries the signed requests. Defaults to a clone of
	// http.DefaultTransport.
	Base http.RoundTripper

	// Timeout bounds each delivery, including reading the response.
	Timeout time.Duration

	UserAgent string
	Logger    *slog.Logger
}

// Client delivers activities. It is safe for concurrent use.
type Client struct {
	base      http.RoundTripper
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// Error is returned for a delivery that got no response or a non-2xx one.
type Error struct {
	Inbox      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("delivery: post %s: %v", e.Inbox, e.Err)
	}

	return fmt.Sprintf("delivery: post %s: status %d", e.Inbox, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		base:      cfg.Base,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger.With("component", "delivery"),
	}
}

// Deliver posts payload to inbox, signed by signer.
func (c *Client) Deliver(ctx context.Context, inbox string, signer httpsig.Signer, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(payload))
	if err != nil {
		return &Error{Inbox: inbox, Err: err}
	}

	req.Header.Set("Content-Type", httpsig.ContentTypeActivity)

	transport := httpsig.NewTransport(c.base, httpsig.SignConfig{Signer: signer}).WithUserAgent(c.userAgent)
	client := &http.Client{Transport: transport}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Warn("delivery failed", "inbox", inbox, "key_id", signer.KeyID(), "error", err)
		return &Error{Inbox: inbox, Err: err}
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("delivery rejected", "inbox", inbox, "status", resp.StatusCode)
		return &Error{Inbox: inbox, StatusCode: resp.StatusCode}
	}

	c.logger.Debug("delivered", "inbox", inbox, "status", resp.StatusCode, "duration", time.Since(start))

	return nil
}
