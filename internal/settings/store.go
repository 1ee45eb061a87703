// Package settings persists the operator-editable settings document.
//
// The document is an arbitrary JSON object (settings.json) owned by the
// front end. The core never assumes a fixed schema: it reads only the keys it
// needs through typed getters on a [Snapshot], each with an explicit default.
//
// Key types:
//   - [Store] loads, replaces, merges and atomically saves the document
//   - [Snapshot] is an immutable copy handed to one workflow run
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Well-known keys read by the core.
const (
	KeyScheduledRunTime = "scheduled_run_time"
	KeyJitterMinutes    = "jitter_minutes"
	KeyScheduleEnabled  = "schedule_enabled"
	KeyVPNContainer     = "vpn_container"
	KeyVPNLogPath       = "qbittorrentvpn_logpath"
)

// Defaults for the well-known keys.
const (
	DefaultScheduledRunTime = "02:00"
	DefaultJitterMinutes    = 10
	DefaultVPNContainer     = "binhex-qbittorrentvpn"
	DefaultVPNLogPath       = "/app/binhex-qbittorrentvpn/qBittorrent/data/logs/qbittorrent.log"
)

// TargetKey builds a per-target key such as "tracker_username".
func TargetKey(target, field string) string {
	return target + "_" + field
}

// Store is a file-backed settings document safe for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]any
}

// Open loads the document at path. A missing file yields an empty document;
// the parent directory is created so a later [Store.Save] succeeds.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	s := &Store{path: path, data: map[string]any{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if s.data == nil {
		s.data = map[string]any{}
	}
	return s, nil
}

// NewMemory returns a store that is not backed by a file. Save is a no-op.
func NewMemory(initial map[string]any) *Store {
	return &Store{data: copyMap(initial)}
}

// Path returns the backing file path, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns an immutable copy of the current document.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{values: copyMap(s.data)}
}

// Replace swaps the whole document and saves it.
func (s *Store) Replace(doc map[string]any) error {
	s.mu.Lock()
	s.data = copyMap(doc)
	s.mu.Unlock()
	return s.Save()
}

// Update merges values into the document and saves it.
func (s *Store) Update(values map[string]any) error {
	s.mu.Lock()
	for k, v := range values {
		s.data[k] = v
	}
	s.mu.Unlock()
	return s.Save()
}

// Save writes the document atomically (write to temp, then rename).
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	encoded, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Snapshot is a read-only view of the settings document.
type Snapshot struct {
	values map[string]any
}

// NewSnapshot builds a snapshot from a plain map, mostly for tests.
func NewSnapshot(values map[string]any) Snapshot {
	return Snapshot{values: copyMap(values)}
}

// Map returns a copy of the underlying document.
func (s Snapshot) Map() map[string]any {
	return copyMap(s.values)
}

// String returns the value for key as a trimmed string, or def when the key
// is absent or empty.
func (s Snapshot) String(key, def string) string {
	v, ok := s.values[key]
	if !ok || v == nil {
		return def
	}
	var str string
	switch t := v.(type) {
	case string:
		str = t
	case float64:
		str = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		str = fmt.Sprint(t)
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return def
	}
	return str
}

// Int returns the value for key as an int, or def when it is absent or not numeric.
func (s Snapshot) Int(key string, def int) int {
	switch t := s.values[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Bool returns the value for key as a bool, or def when it is absent or not boolean.
func (s Snapshot) Bool(key string, def bool) bool {
	switch t := s.values[key].(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Target returns the string value of a per-target field.
func (s Snapshot) Target(target, field, def string) string {
	return s.String(TargetKey(target, field), def)
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
