package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
	"gopkg.in/yaml.v3"
)

// ImportInfo records the completed dataset import.
type ImportInfo struct {
	Source     string    `yaml:"source"`
	Rows       int       `yaml:"rows"`
	Inserted   int       `yaml:"inserted"`
	ImportedAt time.Time `yaml:"imported_at"`
}

// Settings is the persisted key-value state kept beside the record store.
// Imports holds one completed import per store target, so switching stores
// does not carry the flag over.
type Settings struct {
	Imports map[string]ImportInfo `yaml:"imports,omitempty"`
}

// File keeps Settings in a YAML file and implements the importer gate for
// one store target.
type File struct {
	mu     sync.Mutex
	path   string
	target string
}

// NewFile returns the gate for target in the settings file at path. The
// file is created on first write.
func NewFile(path, target string) *File {
	return &File{path: path, target: target}
}

// Path returns the backing file location.
func (f *File) Path() string { return f.path }

// Target returns the store target the gate is scoped to.
func (f *File) Target() string { return f.target }

// Load reads the settings, returning zero values when the file does not exist.
func (f *File) Load() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (Settings, error) {
	var s Settings
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

func (f *File) save(s Settings) error {
	if err := utils.EnsureDir(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return utils.SafeWriteFile(f.path, b)
}

// Imported reports whether the dataset import into this target completed.
func (f *File) Imported() (bool, error) {
	s, err := f.Load()
	if err != nil {
		return false, err
	}
	_, ok := s.Imports[f.target]
	return ok, nil
}

// MarkImported sets the import flag for this target and records what was imported.
func (f *File) MarkImported(info ImportInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load()
	if err != nil {
		return err
	}
	if s.Imports == nil {
		s.Imports = make(map[string]ImportInfo)
	}
	s.Imports[f.target] = info
	return f.save(s)
}

// Reset clears the import flag of this target so the next import runs again.
func (f *File) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.load()
	if err != nil {
		return err
	}
	delete(s.Imports, f.target)
	return f.save(s)
}

// Memory is an in-process gate, used by tests and the memory store driver.
type Memory struct {
	mu   sync.Mutex
	info *ImportInfo
}

func (m *Memory) Imported() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info != nil, nil
}

func (m *Memory) MarkImported(info ImportInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = &info
	return nil
}

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = nil
	return nil
}
