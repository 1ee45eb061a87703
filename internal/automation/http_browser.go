package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"sessionrotor/internal/prune"
)

// HTTPBrowser drives the account site with plain HTTP: a form login whose
// session cookie is the harvested token, and a JSON session list.
//
// Each target gets its own cookie jar and transport so that a target routed
// through a proxy (the VPN tunnel) never shares cookies with the others.
type HTTPBrowser struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*targetClient
}

type targetClient struct {
	acct   Account
	client *http.Client
}

// NewHTTPBrowser creates a browser whose requests time out after timeout.
func NewHTTPBrowser(timeout time.Duration) *HTTPBrowser {
	return &HTTPBrowser{
		timeout: timeout,
		clients: make(map[string]*targetClient),
	}
}

// HTTPFactory adapts [NewHTTPBrowser] to a [Factory].
func HTTPFactory(timeout time.Duration) Factory {
	return func(context.Context) (Browser, error) {
		return NewHTTPBrowser(timeout), nil
	}
}

// Login posts the account credentials to the login form and returns the
// value of the configured session cookie.
func (b *HTTPBrowser) Login(ctx context.Context, acct Account) (string, error) {
	loginURL, err := url.Parse(acct.LoginURL)
	if err != nil {
		return "", fmt.Errorf("invalid login url: %w", err)
	}

	client, err := b.newClient(acct)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("username", acct.Username)
	form.Set("password", acct.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	token := ""
	for _, c := range client.Jar.Cookies(loginURL) {
		if c.Name == acct.CookieName {
			token = c.Value
		}
	}
	if token == "" {
		return "", fmt.Errorf("login did not issue cookie %q", acct.CookieName)
	}

	b.mu.Lock()
	b.clients[acct.Target] = &targetClient{acct: acct, client: client}
	b.mu.Unlock()

	return token, nil
}

// Logout calls the logout URL, when configured, and forgets the target's cookies.
func (b *HTTPBrowser) Logout(ctx context.Context, target string) error {
	tc, err := b.target(target)
	if err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.clients, target)
	b.mu.Unlock()

	if tc.acct.LogoutURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.acct.LogoutURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build logout request: %w", err)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// Sessions returns the session list visible to target's logged-in session.
func (b *HTTPBrowser) Sessions(target string) (prune.Directory, error) {
	tc, err := b.target(target)
	if err != nil {
		return nil, err
	}
	if tc.acct.SessionsURL == "" {
		return nil, errors.New("sessions url is not configured")
	}
	return &httpDirectory{client: tc.client, baseURL: strings.TrimRight(tc.acct.SessionsURL, "/")}, nil
}

// Close drops every target session.
func (b *HTTPBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for target, tc := range b.clients {
		tc.client.CloseIdleConnections()
		delete(b.clients, target)
	}
	return nil
}

func (b *HTTPBrowser) target(target string) (*targetClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tc, ok := b.clients[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, target)
	}
	return tc, nil
}

func (b *HTTPBrowser) newClient(acct Account) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if acct.ProxyURL != "" {
		proxy, err := url.Parse(acct.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &http.Client{Jar: jar, Transport: transport, Timeout: b.timeout}, nil
}

// httpDirectory reads the session list as JSON and removes entries through
// POST <base>/<id>/remove, which answers {"confirm": bool}.
type httpDirectory struct {
	client  *http.Client
	baseURL string
}

func (d *httpDirectory) List(ctx context.Context) ([]prune.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session list returned status %d", resp.StatusCode)
	}

	var entries []prune.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode session list: %w", err)
	}
	return entries, nil
}

func (d *httpDirectory) Remove(ctx context.Context, entry prune.Entry) (bool, error) {
	endpoint := d.baseURL + "/" + url.PathEscape(entry.ID) + "/remove"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return false, fmt.Errorf("session removal returned status %d", resp.StatusCode)
	}

	var ack struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to decode removal response: %w", err)
	}
	return ack.Confirm, nil
}

func (d *httpDirectory) Removable(ctx context.Context, entry prune.Entry) (bool, error) {
	entries, err := d.List(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.ID == entry.ID {
			return e.Removable, nil
		}
	}
	return false, nil
}
