// Package webhooks is the shared HTTP collaborator behind the four
// webhook call sites the admission pipeline and user repository use:
// pubkey-check, event-check, event-callback, and top-up.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"relaycore/config"
	"relaycore/core/types"
)

const defaultTimeout = 3 * time.Second

// PubkeyCheckResponse is the body returned by the pubkey-check endpoint.
type PubkeyCheckResponse struct {
	Pubkey     string   `json:"pubkey"`
	IsAdmitted bool     `json:"isAdmitted"`
	Balance    *big.Int `json:"balance"`
	CreatedAt  int64    `json:"createdAt"`
	UpdatedAt  int64    `json:"updatedAt"`
}

// EventCheckResponse is the body returned by the event-check endpoint.
type EventCheckResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// TopUpResponse is the body returned by the top-up endpoint.
type TopUpResponse struct {
	Success bool `json:"success"`
}

// Client wraps a bounded-timeout, single-redirect HTTP client
// authenticated via a query-string API token, plus a small
// fire-and-forget worker for event-callback notifications.
type Client struct {
	http     *http.Client
	cfg      config.Webhooks
	apiKey   string
	logger   *slog.Logger
	callback chan *types.Event
	done     chan struct{}
}

// New builds a Client and starts its background callback worker. apiKey
// is sourced from the VIDA_API_KEY environment variable by the caller.
func New(cfg config.Webhooks, apiKey string, logger *slog.Logger) *Client {
	c := &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 2 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		cfg:      cfg,
		apiKey:   apiKey,
		logger:   logger,
		callback: make(chan *types.Event, 256),
		done:     make(chan struct{}),
	}
	go c.runCallbackWorker()
	return c
}

// Close stops the callback worker, dropping any events still queued.
func (c *Client) Close() {
	close(c.done)
}

// PubkeyCheck asks the remote identity service whether pubkey is
// admitted. Transport failure propagates to the caller.
func (c *Client) PubkeyCheck(ctx context.Context, pubkeyHex string, amount *big.Int) (PubkeyCheckResponse, error) {
	var out PubkeyCheckResponse
	if !c.cfg.PubkeyChecks || c.cfg.Endpoints.BaseURL == "" || c.cfg.Endpoints.PubkeyCheck == "" {
		return out, fmt.Errorf("webhooks: pubkey-check not configured")
	}
	body := map[string]interface{}{"pubkey": pubkeyHex, "amount": amountOrZero(amount)}
	err := c.post(ctx, c.cfg.Endpoints.PubkeyCheck, body, &out)
	return out, err
}

// EventCheck asks the remote policy service whether event may proceed.
// Transport failure propagates — it is fatal to this admission, per the
// pipeline's error-handling design.
func (c *Client) EventCheck(ctx context.Context, event *types.Event) (EventCheckResponse, error) {
	var out EventCheckResponse
	if !c.cfg.EventChecks || c.cfg.Endpoints.BaseURL == "" || c.cfg.Endpoints.EventCheck == "" {
		return EventCheckResponse{Success: true}, nil
	}
	err := c.post(ctx, c.cfg.Endpoints.EventCheck, event, &out)
	if err != nil {
		return out, err
	}
	return out, nil
}

// TopUp asks the remote payment service to credit pubkey. Transport
// failure propagates.
func (c *Client) TopUp(ctx context.Context, pubkeyHex string, amount *big.Int) (TopUpResponse, error) {
	var out TopUpResponse
	if !c.cfg.TopUps || c.cfg.Endpoints.BaseURL == "" || c.cfg.Endpoints.TopUps == "" {
		return out, fmt.Errorf("webhooks: top-up not configured")
	}
	body := map[string]interface{}{"pubkey": pubkeyHex, "amount": amountOrZero(amount)}
	err := c.post(ctx, c.cfg.Endpoints.TopUps, body, &out)
	return out, err
}

// EventCallback enqueues a best-effort, fire-and-forget notification.
// A full queue drops the event and logs it; callback failures are never
// surfaced to the submitting client.
func (c *Client) EventCallback(event *types.Event) {
	if !c.cfg.EventCallbacks || c.cfg.Endpoints.BaseURL == "" || c.cfg.Endpoints.EventCallback == "" {
		return
	}
	select {
	case c.callback <- event:
	default:
		if c.logger != nil {
			c.logger.Warn("webhooks: event-callback queue full, dropping", "event_id", event.IDHex())
		}
	}
}

func (c *Client) runCallbackWorker() {
	for {
		select {
		case <-c.done:
			return
		case event := <-c.callback:
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			var ignored map[string]interface{}
			if err := c.post(ctx, c.cfg.Endpoints.EventCallback, event, &ignored); err != nil && c.logger != nil {
				c.logger.Warn("webhooks: event-callback delivery failed", "event_id", event.IDHex(), "error", err)
			}
			cancel()
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	endpoint, err := c.buildURL(path)
	if err != nil {
		return fmt.Errorf("webhooks: build url: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhooks: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhooks: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhooks: request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhooks: %s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("webhooks: decode response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) buildURL(path string) (string, error) {
	u, err := url.Parse(c.cfg.Endpoints.BaseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(path)
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func amountOrZero(amount *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return amount
}
