package config

import (
	"os"
	"sync"
	"time"
)

// Provider hands out the live configuration. The file is re-read whenever its
// modification time changes, so the listener engine sees edits made by hand
// and settings saved over IPC without a process restart.
type Provider struct {
	path string

	mu      sync.Mutex
	current *Config
	modTime time.Time
}

func NewProvider(path string) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path, current: cfg}
	if info, err := os.Stat(path); err == nil {
		p.modTime = info.ModTime()
	}
	return p, nil
}

func (p *Provider) Path() string { return p.path }

// Current returns a snapshot of the configuration, refreshing from disk when
// the file changed. A file that became unreadable or invalid keeps the last
// good snapshot; losing the listener over a transient edit would be worse.
func (p *Provider) Current() Config {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err == nil && !info.ModTime().Equal(p.modTime) {
		if cfg, err := Load(p.path); err == nil {
			p.current = cfg
			p.modTime = info.ModTime()
		}
	}
	return *p.current
}

// SetListener replaces the listener settings and persists the whole config.
// The listener engine picks the change up on its next loop iteration.
func (p *Provider) SetListener(s ListenerSettings) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := *p.current
	next.Listener = s
	next.ApplyDefaults()
	if err := next.Validate(); err != nil {
		return err
	}
	if err := Save(p.path, &next); err != nil {
		return err
	}
	p.current = &next
	if info, err := os.Stat(p.path); err == nil {
		p.modTime = info.ModTime()
	}
	return nil
}
