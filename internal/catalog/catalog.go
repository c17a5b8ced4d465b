// Package catalog is the on-disk application catalog the management client
// edits over IPC: a JSON file of launchable applications keyed by slot.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
)

type App struct {
	Slot string   `json:"slot"`
	Name string   `json:"name"`
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
}

var ErrUnknownSlot = errors.New("unknown app slot")

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) List() ([]App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Get(slot string) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps, err := s.load()
	if err != nil {
		return App{}, err
	}
	for _, a := range apps {
		if a.Slot == slot {
			return a, nil
		}
	}
	return App{}, fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
}

// Save upserts by slot and rewrites the file.
func (s *Store) Save(app App) error {
	if app.Slot == "" {
		return errors.New("app slot is required")
	}
	if app.Path == "" {
		return errors.New("app path is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	apps, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range apps {
		if apps[i].Slot == app.Slot {
			apps[i] = app
			replaced = true
			break
		}
	}
	if !replaced {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Slot < apps[j].Slot })

	return s.write(apps)
}

// Launch starts the app detached; it does not wait for or reap the process.
func (s *Store) Launch(slot string) error {
	app, err := s.Get(slot)
	if err != nil {
		return err
	}
	cmd := exec.Command(app.Path, app.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", slot, err)
	}
	return cmd.Process.Release()
}

func (s *Store) load() ([]App, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var apps []App
	if err := json.Unmarshal(b, &apps); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", s.path, err)
	}
	return apps, nil
}

func (s *Store) write(apps []App) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(apps, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}
