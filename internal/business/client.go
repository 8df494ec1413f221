// Package business integrates with the WhatsApp Business (Graph) API:
// outbound message delivery and the inbound webhook relay.
package business

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client is the outbound message dispatcher and number-metadata probe for
// the WhatsApp Business API. Its boolean methods never propagate provider
// errors; failures are logged and reported as a negative result, matching
// the relay's fire-and-forget contract.
type Client struct {
	apiURL        string
	accessToken   string
	phoneNumberID string
	http          *http.Client
}

// NewClient creates a dispatcher for the given Graph API endpoint. Empty
// credentials leave the client in a degraded "not configured" state.
func NewClient(apiURL, accessToken, phoneNumberID string, timeout time.Duration) *Client {
	return &Client{
		apiURL:        apiURL,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		http:          &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the Business API credentials are present.
func (c *Client) Configured() bool {
	return c.accessToken != "" && c.phoneNumberID != ""
}

// Send delivers a text message to the recipient. It satisfies the send
// half of the protocol-client capability surface shared with the QR path.
func (c *Client) Send(ctx context.Context, to, text string) error {
	if !c.Configured() {
		return fmt.Errorf("whatsapp business api not configured")
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// SendMessage delivers a text message and reports success. It never
// returns an error; failures are logged.
func (c *Client) SendMessage(ctx context.Context, to, text string) bool {
	if err := c.Send(ctx, to, text); err != nil {
		slog.Error("business: send failed", "to", to, "error", err)
		return false
	}
	slog.Info("business: message sent", "to", to)
	return true
}

// CheckStatus probes the provider's number-metadata endpoint. Any error
// reports false.
func (c *Client) CheckStatus(ctx context.Context) bool {
	_, err := c.numberMetadata(ctx)
	if err != nil {
		slog.Warn("business: status check failed", "error", err)
		return false
	}
	return true
}

// PhoneNumberInfo returns the provider's metadata for the configured
// number, or nil on any error.
func (c *Client) PhoneNumberInfo(ctx context.Context) map[string]any {
	info, err := c.numberMetadata(ctx)
	if err != nil {
		slog.Warn("business: phone number info failed", "error", err)
		return nil
	}
	return info
}

func (c *Client) numberMetadata(ctx context.Context) (map[string]any, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("whatsapp business api not configured")
	}

	url := fmt.Sprintf("%s/%s", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return info, nil
}
