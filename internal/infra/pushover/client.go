package pushover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-companion/internal/infra"
)

const defaultEndpoint = "https://api.pushover.net/1/messages.json"

type Client struct {
	token      string
	userKey    string
	title      string
	endpoint   string
	retry      infra.RetryConfig
	httpClient *http.Client
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithTitle(title string) Option {
	return func(c *Client) { c.title = title }
}

func WithRetry(cfg infra.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(token, userKey string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		userKey:    userKey,
		title:      "Voice Companion",
		endpoint:   defaultEndpoint,
		retry:      infra.DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify is a no-op when the client has no credentials.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.userKey == "" {
		return nil
	}

	data := url.Values{}
	data.Set("token", c.token)
	data.Set("user", c.userKey)
	data.Set("message", message)
	data.Set("title", c.title)
	body := data.Encode()

	return infra.WithRetry(ctx, c.retry, func() error {
		return c.send(ctx, body)
	})
}

func (c *Client) send(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return infra.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("pushover error: %s", resp.Status)
		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return err
		}
		return infra.Permanent(err)
	}

	return nil
}
