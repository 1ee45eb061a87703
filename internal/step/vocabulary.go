package step

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"sessionrotor/internal/automation"
	"sessionrotor/internal/container"
	"sessionrotor/internal/credential"
	"sessionrotor/internal/downstream"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/prune"
	"sessionrotor/internal/settings"
)

// Per-target setting fields, combined with the target ID via [settings.TargetKey].
const (
	FieldLoginURL    = "login_url"
	FieldLogoutURL   = "logout_url"
	FieldSessionsURL = "sessions_url"
	FieldUsername    = "username"
	FieldPassword    = "password"
	FieldCookieName  = "cookie_name"
	FieldProxyURL    = "proxy_url"
	FieldSendURL     = "send_url"
	FieldSendMode    = "send_mode"
	FieldSendField   = "send_field"
	FieldAPIKey      = "api_key"
)

// DefaultCookieName is the session cookie harvested when a target does not override it.
const DefaultCookieName = "mam_id"

// Name builds a step name scoped to a target, e.g. "acquire-session/tracker".
func Name(action, target string) string {
	if target == "" {
		return action
	}
	return action + "/" + target
}

// AccountFor resolves the login account of target from the settings snapshot.
func AccountFor(snap settings.Snapshot, target string) automation.Account {
	return automation.Account{
		Target:      target,
		LoginURL:    snap.Target(target, FieldLoginURL, ""),
		LogoutURL:   snap.Target(target, FieldLogoutURL, ""),
		SessionsURL: snap.Target(target, FieldSessionsURL, ""),
		Username:    snap.Target(target, FieldUsername, ""),
		Password:    snap.Target(target, FieldPassword, ""),
		CookieName:  snap.Target(target, FieldCookieName, DefaultCookieName),
		ProxyURL:    snap.Target(target, FieldProxyURL, ""),
	}
}

// ClearCredential invalidates the cached token of target.
func ClearCredential(cache *credential.Cache, target string) Step {
	return Step{
		Name: Name("clear-credential", target),
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			cred := cache.Clear(target)
			return Succeeded(fmt.Sprintf("credential invalidated at %s", cred.ObtainedAt.Format("2006-01-02 15:04:05"))), nil
		}),
	}
}

// RestartContainer restarts the VPN container named by the vpn_container setting.
func RestartContainer(r container.Restarter) Step {
	return Step{
		Name: "restart-container",
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			name := env.Settings.String(settings.KeyVPNContainer, settings.DefaultVPNContainer)
			if err := r.Restart(ctx, name); err != nil {
				return Outcome{}, err
			}
			return Succeeded(fmt.Sprintf("container %s restarted", name)), nil
		}),
	}
}

// DetectVPNAddress reports the external and VPN addresses. It fails when the
// VPN address cannot be determined.
func DetectVPNAddress(d *ipdetect.Detector) Step {
	return Step{
		Name: "detect-ip",
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			logPath := env.Settings.String(settings.KeyVPNLogPath, settings.DefaultVPNLogPath)
			addrs := d.Detect(ctx, logPath)
			msg := fmt.Sprintf("external %s, vpn %s", addrs.External, addrs.VPN)
			if addrs.VPN == ipdetect.VPNNotFound {
				return Failed(msg), nil
			}
			if addrs.VPN == addrs.External {
				env.Log.WithField("ip", addrs.VPN).Warn("VPN address equals external address")
			}
			return Succeeded(msg), nil
		}),
	}
}

// AcquireSession logs in for target and caches the issued token.
func AcquireSession(h *automation.Handle, cache *credential.Cache, target string) Step {
	return Step{
		Name: Name("acquire-session", target),
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			acct := AccountFor(env.Settings, target)
			if err := requireSettings(map[string]string{
				settings.TargetKey(target, FieldLoginURL): acct.LoginURL,
				settings.TargetKey(target, FieldUsername): acct.Username,
				settings.TargetKey(target, FieldPassword): acct.Password,
			}); err != nil {
				return Outcome{}, err
			}

			browser, err := h.Acquire(ctx)
			if err != nil {
				return Outcome{}, err
			}

			token, err := browser.Login(ctx, acct)
			if err != nil {
				return Outcome{}, err
			}
			h.Track(target)
			cache.Set(target, token)

			return Succeeded(fmt.Sprintf("session acquired for %s", acct.Username)), nil
		}),
	}
}

// SendCredential delivers the cached token of target to its consumer.
func SendCredential(sender downstream.Sender, cache *credential.Cache, target string) Step {
	return Step{
		Name: Name("send-credential", target),
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			sendURL := env.Settings.Target(target, FieldSendURL, "")
			if err := requireSettings(map[string]string{settings.TargetKey(target, FieldSendURL): sendURL}); err != nil {
				return Outcome{}, err
			}
			mode, err := downstream.ParseMode(env.Settings.Target(target, FieldSendMode, ""))
			if err != nil {
				return Outcome{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
			}

			cred := cache.Get(target)
			if !cred.Valid() {
				return Failed(fmt.Sprintf("no valid credential for %s", target)), nil
			}

			body, err := sender.Send(ctx, downstream.Delivery{
				URL:        sendURL,
				Mode:       mode,
				Token:      cred.Token,
				CookieName: env.Settings.Target(target, FieldCookieName, DefaultCookieName),
				Field:      env.Settings.Target(target, FieldSendField, ""),
				APIKey:     env.Settings.Target(target, FieldAPIKey, ""),
				ProxyURL:   env.Settings.Target(target, FieldProxyURL, ""),
			})
			if err != nil {
				return Outcome{}, err
			}
			return Succeeded(summarize(fmt.Sprintf("credential delivered to %s", target), body)), nil
		}),
	}
}

// PruneSessions removes every account session except the newest, as seen by
// target's logged-in session.
func PruneSessions(h *automation.Handle, p *prune.Pruner, target string) Step {
	return Step{
		Name: Name("prune-sessions", target),
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			sessionsURL := env.Settings.Target(target, FieldSessionsURL, "")
			if err := requireSettings(map[string]string{settings.TargetKey(target, FieldSessionsURL): sessionsURL}); err != nil {
				return Outcome{}, err
			}

			browser, err := h.Acquire(ctx)
			if err != nil {
				return Outcome{}, err
			}
			dir, err := browser.Sessions(target)
			if errors.Is(err, automation.ErrNoSession) {
				return Failed(fmt.Sprintf("not logged in for %s", target)), nil
			}
			if err != nil {
				return Outcome{}, err
			}

			res, err := p.Prune(ctx, dir)
			if err != nil {
				return Outcome{}, err
			}
			return Succeeded(fmt.Sprintf("removed %d session(s) in %d pass(es)", res.Deleted, res.Iterations)), nil
		}),
	}
}

// Logout ends every session opened during the run.
func Logout(h *automation.Handle) Step {
	return Step{
		Name: "logout",
		Action: ActionFunc(func(ctx context.Context, env Env) (Outcome, error) {
			targets := h.Targets()
			if !h.Active() || len(targets) == 0 {
				return Succeeded("no active session"), nil
			}

			browser, err := h.Acquire(ctx)
			if err != nil {
				return Outcome{}, err
			}

			var failed []string
			for _, target := range targets {
				if err := browser.Logout(ctx, target); err != nil {
					env.Log.WithError(err).WithField("target", target).Warn("Logout failed")
					failed = append(failed, target)
					continue
				}
				h.Forget(target)
			}
			if len(failed) > 0 {
				return Failed(fmt.Sprintf("logout failed for %s", strings.Join(failed, ", "))), nil
			}
			return Succeeded(fmt.Sprintf("logged out of %s", strings.Join(targets, ", "))), nil
		}),
	}
}

func summarize(prefix, body string) string {
	const max = 120
	body = strings.TrimSpace(body)
	if body == "" {
		return prefix
	}
	if len(body) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return prefix + ": " + body
}
