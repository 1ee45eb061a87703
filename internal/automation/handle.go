// Package automation owns the session with the third-party account site.
//
// The site is driven through a [Browser]: log in for a target and harvest its
// session token, log out, and expose the account's session list as a
// [prune.Directory]. A [Handle] is the single owner of the live browser: it
// starts one lazily on first use and tears it down on [Handle.Release], so
// the lifecycle is explicit instead of ambient global state.
//
// Key types:
//   - [Browser] is the operation set the step vocabulary relies on
//   - [Handle] manages acquire/release of one [Browser]
//   - [HTTPBrowser] is the production driver speaking HTTP forms and JSON
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"sessionrotor/internal/prune"
)

// ErrNoSession is returned by operations that require a prior login.
var ErrNoSession = errors.New("no active session for target")

// Account holds everything needed to log in for one target.
type Account struct {
	Target      string
	LoginURL    string
	LogoutURL   string
	SessionsURL string
	Username    string
	Password    string
	CookieName  string
	ProxyURL    string
}

// Browser is one live automation session against the account site.
type Browser interface {
	// Login authenticates acct and returns the session token it was issued.
	Login(ctx context.Context, acct Account) (token string, err error)

	// Logout ends the session previously opened for target.
	Logout(ctx context.Context, target string) error

	// Sessions returns the account's session list as seen by target's session.
	Sessions(target string) (prune.Directory, error)

	// Close releases every resource held by the browser.
	Close() error
}

// Factory starts a new [Browser].
type Factory func(ctx context.Context) (Browser, error)

// Handle is the single owner of the automation [Browser].
type Handle struct {
	factory Factory
	log     logrus.FieldLogger

	mu      sync.Mutex
	current Browser
	targets []string
}

// NewHandle creates a handle that starts browsers with factory.
func NewHandle(factory Factory, log logrus.FieldLogger) *Handle {
	return &Handle{factory: factory, log: log}
}

// Acquire returns the live browser, starting one if necessary.
func (h *Handle) Acquire(ctx context.Context) (Browser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		return h.current, nil
	}

	b, err := h.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start automation session: %w", err)
	}
	h.current = b
	h.log.Debug("Automation session started")
	return b, nil
}

// Track remembers that target logged in on the current browser so that
// [Handle.Targets] can report which sessions may need a logout.
func (h *Handle) Track(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.targets {
		if t == target {
			return
		}
	}
	h.targets = append(h.targets, target)
}

// Forget drops target from the tracked set after a logout.
func (h *Handle) Forget(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, t := range h.targets {
		if t == target {
			h.targets = append(h.targets[:i], h.targets[i+1:]...)
			return
		}
	}
}

// Targets returns the targets currently logged in on the browser.
func (h *Handle) Targets() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.targets))
	copy(out, h.targets)
	return out
}

// Active reports whether a browser is currently running.
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Release closes the live browser, if any. It is safe to call repeatedly.
func (h *Handle) Release() error {
	h.mu.Lock()
	b := h.current
	h.current = nil
	h.targets = nil
	h.mu.Unlock()

	if b == nil {
		return nil
	}
	if err := b.Close(); err != nil {
		return fmt.Errorf("failed to close automation session: %w", err)
	}
	h.log.Debug("Automation session released")
	return nil
}
