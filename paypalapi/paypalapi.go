// Package paypalapi contains minimal helpers to interact with the PayPal REST
// API: a client-credentials token source and webhook signature verification.
package paypalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Headers carried on every genuine PayPal webhook delivery. All five are
// required for verification.
var requiredHeaders = []string{
	"Paypal-Auth-Algo",
	"Paypal-Cert-Url",
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Sig",
	"Paypal-Transmission-Time",
}

// ErrMissingHeaders reports a delivery without the full signature header
// bundle; it is rejected without calling the provider.
var ErrMissingHeaders = errors.New("missing paypal signature headers")

// Client wraps the PayPal REST endpoints the engine needs. APIBase is
// overridable so tests can point at an httptest server.
type Client struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	APIBase      string
	HTTPClient   *http.Client

	mu     sync.Mutex
	client *http.Client
}

// httpClient returns an OAuth2-authenticated client using the
// client-credentials grant against /v1/oauth2/token. The client (and its
// token source) is built once and reused, so an app token fetched for one
// delivery serves subsequent deliveries until it expires.
func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		// The token source outlives any single request, so it gets a
		// background context rather than the request's.
		ctx := context.Background()
		if c.HTTPClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
		}
		cfg := &clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.APIBase + "/v1/oauth2/token",
		}
		c.client = cfg.Client(ctx)
	}
	return c.client
}

// Verify authenticates a webhook delivery by calling PayPal's
// verify-webhook-signature endpoint with the raw event body and the header
// bundle. Only an explicit SUCCESS verification status is trusted.
func (c *Client) Verify(ctx context.Context, rawBody []byte, header http.Header) (bool, error) {
	vals := make(map[string]string, len(requiredHeaders))
	for _, h := range requiredHeaders {
		v := header.Get(h)
		if v == "" {
			return false, fmt.Errorf("%w: %s", ErrMissingHeaders, h)
		}
		vals[h] = v
	}

	reqBody := map[string]any{
		"auth_algo":         vals["Paypal-Auth-Algo"],
		"cert_url":          vals["Paypal-Cert-Url"],
		"transmission_id":   vals["Paypal-Transmission-Id"],
		"transmission_sig":  vals["Paypal-Transmission-Sig"],
		"transmission_time": vals["Paypal-Transmission-Time"],
		"webhook_id":        c.WebhookID,
		"webhook_event":     json.RawMessage(rawBody),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.APIBase+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("paypal verify request failed: %s: %s", resp.Status, string(b))
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}
