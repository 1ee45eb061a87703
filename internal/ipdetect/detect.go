// Package ipdetect reports the host's external IP and the VPN tunnel's exit IP.
//
// The VPN IP is read from the torrent client's log ("Detected external IP.
// IP: ..." lines, newest first, within the last [TailLines] lines). When the
// log is absent or has no such line, an IP-info JSON endpoint is queried as a
// last resort.
package ipdetect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// TailLines is how many trailing log lines are scanned for the VPN IP.
const TailLines = 500

// Sentinel values reported when detection fails, matching what the front end displays.
const (
	ExternalUnavailable = "Error"
	VPNNotFound         = "Not Found"
)

const (
	DefaultExternalURL = "https://api.ipify.org"
	DefaultFallbackURL = "https://ipinfo.io/json"
)

var detectedIPPattern = regexp.MustCompile(`Detected external IP\. IP:\s*"?([0-9]{1,3}(?:\.[0-9]{1,3}){3})"?`)

// Addresses is the detection result.
type Addresses struct {
	External string `json:"external_ip"`
	VPN      string `json:"vpn_ip"`
}

// Detector looks up both addresses.
type Detector struct {
	client      *http.Client
	externalURL string
	fallbackURL string
	log         logrus.FieldLogger
}

// NewDetector creates a detector; empty URLs use the defaults.
func NewDetector(client *http.Client, externalURL, fallbackURL string, log logrus.FieldLogger) *Detector {
	if client == nil {
		client = http.DefaultClient
	}
	if externalURL == "" {
		externalURL = DefaultExternalURL
	}
	if fallbackURL == "" {
		fallbackURL = DefaultFallbackURL
	}
	return &Detector{client: client, externalURL: externalURL, fallbackURL: fallbackURL, log: log}
}

// Detect returns both addresses. Failures are reported through the sentinel
// values rather than an error so the caller can always render a result.
func (d *Detector) Detect(ctx context.Context, logPath string) Addresses {
	addrs := Addresses{External: ExternalUnavailable, VPN: VPNNotFound}

	if ip, err := d.External(ctx); err != nil {
		d.log.WithError(err).Warn("Failed to get external IP")
	} else {
		addrs.External = ip
	}

	if ip, err := VPNFromLog(logPath); err != nil {
		d.log.WithError(err).WithField("path", logPath).Debug("VPN IP not found in log")
	} else {
		addrs.VPN = ip
		return addrs
	}

	if ip, err := d.fallbackVPN(ctx); err != nil {
		d.log.WithError(err).Warn("Failed to get VPN IP via API")
	} else {
		addrs.VPN = ip
	}
	return addrs
}

// External asks the external-IP endpoint for the caller's address.
func (d *Detector) External(ctx context.Context) (string, error) {
	body, err := d.get(ctx, d.externalURL)
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("empty response from %s", d.externalURL)
	}
	return ip, nil
}

func (d *Detector) fallbackVPN(ctx context.Context) (string, error) {
	body, err := d.get(ctx, d.fallbackURL)
	if err != nil {
		return "", err
	}
	var info struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to decode ip info: %w", err)
	}
	if info.IP == "" {
		return "", fmt.Errorf("ip info response has no ip field")
	}
	return info.IP, nil
}

func (d *Detector) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64*1024))
}

// VPNFromLog returns the most recent detected external IP in the last
// [TailLines] lines of the log at path.
func VPNFromLog(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tail := make([]string, 0, TailLines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(tail) == TailLines {
			tail = tail[1:]
		}
		tail = append(tail, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read log: %w", err)
	}

	for i := len(tail) - 1; i >= 0; i-- {
		if m := detectedIPPattern.FindStringSubmatch(tail[i]); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no detected IP in last %d lines", TailLines)
}
