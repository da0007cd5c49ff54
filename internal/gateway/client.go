package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPartDelay paces outbound parts so they arrive in reading order and
// stay inside provider rate expectations.
const DefaultPartDelay = 1500 * time.Millisecond

// Sender delivers reply parts back to a transport address.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
	SendParts(ctx context.Context, to string, parts []string) error
}

// Client posts outbound messages to the provider's send API.
type Client struct {
	apiURL     string
	accountSID string
	authToken  string
	from       string
	partDelay  time.Duration
	httpClient *http.Client
}

type ClientConfig struct {
	APIURL     string
	AccountSID string
	AuthToken  string
	From       string
	PartDelay  time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	delay := cfg.PartDelay
	if delay <= 0 {
		delay = DefaultPartDelay
	}
	return &Client{
		apiURL:     strings.TrimSpace(cfg.APIURL),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		partDelay:  delay,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts one message body and returns the provider message id. Delivery
// retries are the provider's job, not ours.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("gateway send status %d: %s", res.StatusCode, string(payload))
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	return out.Sid, nil
}

// SendParts delivers parts strictly in order: part N+1 is never posted
// before part N's send call returns, with a fixed pause between parts.
func (c *Client) SendParts(ctx context.Context, to string, parts []string) error {
	for i, part := range parts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.partDelay):
			}
		}
		if _, err := c.Send(ctx, to, part); err != nil {
			return fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}
