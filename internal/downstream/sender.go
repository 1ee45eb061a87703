// Package downstream delivers a freshly acquired session token to its consumers.
//
// Two delivery modes cover both consumers:
//   - [ModeCookie] calls the endpoint with the token as a cookie, the way the
//     tracker's dynamic seedbox registration expects it
//   - [ModeJSON] posts {"<field>": "<token>"} with an API key header, the way
//     the indexer's settings API expects it
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Mode selects how a token is delivered.
type Mode string

const (
	ModeCookie Mode = "cookie"
	ModeJSON   Mode = "json"
)

// ParseMode converts a settings value to a [Mode], defaulting to [ModeCookie].
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCookie:
		return ModeCookie, nil
	case ModeJSON:
		return ModeJSON, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", s)
	}
}

// Delivery describes one token hand-off.
type Delivery struct {
	URL        string
	Mode       Mode
	Token      string
	CookieName string
	Field      string
	APIKey     string
	ProxyURL   string
}

// Sender performs deliveries.
type Sender interface {
	Send(ctx context.Context, d Delivery) (string, error)
}

// HTTPSender implements [Sender] over HTTP.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a sender using client; nil means [http.DefaultClient].
func NewHTTPSender(client *http.Client) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{client: client}
}

// Send delivers the token and returns the consumer's (trimmed) response body.
func (s *HTTPSender) Send(ctx context.Context, d Delivery) (string, error) {
	if d.URL == "" {
		return "", errors.New("delivery url is empty")
	}
	if d.Token == "" {
		return "", errors.New("no token to deliver")
	}

	req, err := s.buildRequest(ctx, d)
	if err != nil {
		return "", err
	}

	client := s.client
	if d.ProxyURL != "" {
		client, err = s.proxiedClient(d.ProxyURL)
		if err != nil {
			return "", err
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read delivery response: %w", err)
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode >= http.StatusBadRequest {
		return text, fmt.Errorf("delivery failed with status %d: %s", resp.StatusCode, text)
	}
	return text, nil
}

func (s *HTTPSender) buildRequest(ctx context.Context, d Delivery) (*http.Request, error) {
	switch d.Mode {
	case ModeJSON:
		field := d.Field
		if field == "" {
			field = "token"
		}
		payload, err := json.Marshal(map[string]string{field: d.Token})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to build delivery request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if d.APIKey != "" {
			req.Header.Set("X-Api-Key", d.APIKey)
		}
		return req, nil

	case ModeCookie, "":
		name := d.CookieName
		if name == "" {
			return nil, errors.New("cookie name is empty")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build delivery request: %w", err)
		}
		req.AddCookie(&http.Cookie{Name: name, Value: d.Token})
		return req, nil

	default:
		return nil, fmt.Errorf("unknown delivery mode %q", d.Mode)
	}
}

func (s *HTTPSender) proxiedClient(proxyURL string) (*http.Client, error) {
	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy)
	return &http.Client{Transport: transport, Timeout: s.client.Timeout}, nil
}
