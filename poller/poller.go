// Package poller looks up payments on the indexer and polls until a
// transaction is confirmed.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
)

// DefaultIndexerURL is the public payment indexer.
const DefaultIndexerURL = "https://tx.yodl.me"

const defaultTimeout = 30 * time.Second

// PollConfig bounds a confirmation-polling loop.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// FastPoll is the interactive polling profile, used right after a
// payment request returns: the transaction is usually indexed within a
// few seconds.
var FastPoll = PollConfig{Interval: 250 * time.Millisecond, MaxAttempts: 40}

// SlowPoll is the patient profile for background reconciliation.
var SlowPoll = PollConfig{Interval: 5 * time.Second, MaxAttempts: 6}

// Config configures a Client. The zero value selects the public
// indexer, a default HTTP client and the FastPoll profile.
type Config struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Poll       PollConfig
}

// Client queries the payment indexer over HTTP.
type Client struct {
	url    string
	client *http.Client
	poll   PollConfig
}

// NewClient creates an indexer client. A nil config is valid and uses
// defaults throughout.
func NewClient(config *Config) *Client {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.URL == "" {
		cfg.URL = DefaultIndexerURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = FastPoll.Interval
	}
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll.MaxAttempts = FastPoll.MaxAttempts
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: cfg.HTTPClient,
		poll:   cfg.Poll,
	}
}

// GetPayment fetches a payment by transaction hash. A 404 means the
// indexer has not seen the transaction yet and returns (nil, nil) so
// callers can keep polling.
func (c *Client) GetPayment(ctx context.Context, txHash string) (*yapp.RemotePayment, error) {
	if txHash == "" {
		return nil, fmt.Errorf("poller: txHash is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/v1/payments/"+txHash, nil)
	if err != nil {
		return nil, fmt.Errorf("poller: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poller: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("poller: indexer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("poller: read response: %w", err)
	}
	return decodePayment(raw)
}

// decodePayment accepts both response shapes the indexer has used: a
// bare payment object and an envelope with a "payment" field.
func decodePayment(raw []byte) (*yapp.RemotePayment, error) {
	var envelope struct {
		Payment json.RawMessage `json:"payment"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Payment) > 0 {
		raw = envelope.Payment
	}

	var payment yapp.RemotePayment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("poller: decode payment: %w", err)
	}
	return &payment, nil
}

// PollUntilConfirmed polls GetPayment until the payment is confirmed on
// the indexer, the attempt budget runs out or the context ends. Lookup
// errors and not-yet-indexed responses both count as attempts; the
// loop keeps going because indexing lag is the common case.
func (c *Client) PollUntilConfirmed(ctx context.Context, txHash string) (*yapp.RemotePayment, error) {
	for attempt := 0; attempt < c.poll.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.poll.Interval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		payment, err := c.GetPayment(ctx, txHash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if payment != nil && payment.Confirmed() {
			return payment, nil
		}
	}
	return nil, fmt.Errorf("poller: %s after %d attempts: %w", txHash, c.poll.MaxAttempts, yapp.ErrLookupExhausted)
}

var _ yapp.PaymentLookup = (*Client)(nil)
