// Package workarea creates and tracks the per-task working directories that
// executors run in and handoff artifacts are written to.
package workarea

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

var namePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_([a-z]+)_([0-9a-f]{6})$`)

// Manager creates work areas under a root directory.
type Manager struct {
	config Config
	now    func() time.Time
	mu     sync.Mutex // Serializes creation so short codes never collide
}

// NewManager creates a Manager. The root is created lazily.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("work area root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work area root: %w", err)
	}
	cfg.Root = root
	return &Manager{config: cfg, now: time.Now}, nil
}

// Root returns the absolute root directory.
func (m *Manager) Root() string {
	return m.config.Root
}

// Create makes a new, empty work area for a task of the given mode.
func (m *Manager) Create(mode string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "task"
	}
	day := m.now()

	for attempt := 0; attempt < 8; attempt++ {
		code, err := shortCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate work area code: %w", err)
		}
		name := fmt.Sprintf("%s_%s_%s", day.Format(dayLayout), mode, code)
		path := filepath.Join(m.config.Root, name)

		if err := os.MkdirAll(m.config.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work area root: %w", err)
		}
		if err := os.Mkdir(path, 0o755); err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to create work area: %w", err)
		}

		return &Info{
			Path:      path,
			Name:      name,
			Mode:      mode,
			Day:       time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
			ShortCode: code,
		}, nil
	}
	return nil, fmt.Errorf("failed to create a unique work area for mode %q", mode)
}

// Parse extracts the encoded fields from a work area path. It returns false
// for directories that were not created by a Manager.
func Parse(path string) (Info, bool) {
	name := filepath.Base(path)
	match := namePattern.FindStringSubmatch(name)
	if match == nil {
		return Info{}, false
	}
	day, err := time.ParseInLocation(dayLayout, match[1], time.Local)
	if err != nil {
		return Info{}, false
	}
	return Info{Path: path, Name: name, Day: day, Mode: match[2], ShortCode: match[3]}, true
}

// List returns all work areas under the root, oldest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.config.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list work areas: %w", err)
	}

	var areas []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if info, ok := Parse(filepath.Join(m.config.Root, e.Name())); ok {
			areas = append(areas, info)
		}
	}
	sort.Slice(areas, func(i, j int) bool {
		if !areas[i].Day.Equal(areas[j].Day) {
			return areas[i].Day.Before(areas[j].Day)
		}
		return areas[i].Name < areas[j].Name
	})
	return areas, nil
}

// Owns reports whether path is a work area directly under the root.
func (m *Manager) Owns(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil || filepath.Dir(abs) != m.config.Root {
		return false
	}
	_, ok := Parse(abs)
	return ok
}

// Remove deletes a work area. Paths outside the root are refused.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if filepath.Dir(abs) != m.config.Root {
		return fmt.Errorf("refusing to remove %s: not a work area under %s", abs, m.config.Root)
	}
	if _, ok := Parse(abs); !ok {
		return fmt.Errorf("refusing to remove %s: not a work area", abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to remove work area: %w", err)
	}
	return nil
}

// Prune removes work areas created before the cutoff day and returns how
// many were deleted.
func (m *Manager) Prune(before time.Time) (int, error) {
	areas, err := m.List()
	if err != nil {
		return 0, err
	}

	var errs []string
	removed := 0
	for _, a := range areas {
		if !a.Day.Before(before) {
			continue
		}
		if err := os.RemoveAll(a.Path); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("prune errors: %s", strings.Join(errs, "; "))
	}
	return removed, nil
}

func shortCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
