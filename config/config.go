package config

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML settings document from path. Missing
// optional sections decode to their zero value; callers that need a
// working relay should call Validate on the result.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// Manager holds a hot-reloadable Settings snapshot. The pipeline calls
// Snapshot() once at the start of each admission; Watch, if started,
// swaps in a freshly parsed Settings whenever the backing file changes
// without ever handing out a partially-updated struct.
type Manager struct {
	path  string
	value atomic.Value // holds *Settings
}

// NewManager loads path once and returns a Manager primed with the result.
func NewManager(path string) (*Manager, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.value.Store(s)
	return m, nil
}

// NewManagerWithSettings builds a Manager already primed with s,
// without reading a file. Watch is a no-op on a Manager built this way
// since there is no backing path to poll. Intended for wiring tests and
// callers that construct Settings programmatically.
func NewManagerWithSettings(s *Settings) *Manager {
	m := &Manager{}
	m.value.Store(s)
	return m
}

// Snapshot returns the current settings. Safe for concurrent use.
func (m *Manager) Snapshot() *Settings {
	return m.value.Load().(*Settings)
}

// Watch polls the settings file's modification time on interval and
// reloads it on change, logging via onError and keeping the previous
// snapshot whenever a reload fails to parse. It blocks until ctx is
// canceled, except on a Manager with no backing path, where it returns
// at once.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onError func(error)) {
	if m.path == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastMod time.Time
	if info, err := os.Stat(m.path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(m.path)
			if err != nil {
				if onError != nil {
					onError(fmt.Errorf("config: stat %s: %w", m.path, err))
				}
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			s, err := Load(m.path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			lastMod = info.ModTime()
			m.value.Store(s)
		}
	}
}
