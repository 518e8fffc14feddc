package fm

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// Directories is the list of user-added font directories, persisted as
// fontconfig <dir> elements.
type Directories struct {
	path   string
	logger Logger

	mu   sync.RWMutex
	dirs []string
}

func NewDirectories(path string, logger Logger) *Directories {
	return &Directories{path: path, logger: logger}
}

func (d *Directories) Load() error {
	var doc fcConfig
	if err := readXML(d.path, &doc, fcTemplate, d.logger); err != nil {
		return err
	}

	var dirs []string
	for _, dir := range doc.Dirs {
		dir = filepath.Clean(dir)
		if filepath.IsAbs(dir) && !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}

	d.mu.Lock()
	d.dirs = dirs
	d.mu.Unlock()
	return nil
}

// Save writes the directory list, rotating the previous file to .bak.
func (d *Directories) Save() error {
	return writeXML(d.path, fcConfig{Dirs: d.List()}, fontconfigDoctype)
}

// Add appends dir. It reports whether the list changed.
func (d *Directories) Add(dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", dir, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.dirs, abs) {
		return false, nil
	}
	d.dirs = append(d.dirs, abs)
	return true, nil
}

// Remove drops dir. It reports whether the list changed.
func (d *Directories) Remove(dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolving %s: %w", dir, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	i := slices.Index(d.dirs, abs)
	if i < 0 {
		return false, nil
	}
	d.dirs = slices.Delete(d.dirs, i, i+1)
	return true, nil
}

// List returns the directories in insertion order.
func (d *Directories) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.dirs)
}
