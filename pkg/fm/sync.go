package fm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fontkit/font-manager/internal/platform"
	"github.com/fsnotify/fsnotify"
)

// SyncReport counts files, not faces.
type SyncReport struct {
	Added     int
	Removed   int
	Updated   int
	Unchanged int
}

func (r SyncReport) Changed() bool {
	return r.Added+r.Removed+r.Updated > 0
}

func (r SyncReport) String() string {
	return fmt.Sprintf("%d added, %d removed, %d updated, %d unchanged",
		r.Added, r.Removed, r.Updated, r.Unchanged)
}

// enumerate returns every face the manager should know about: what the
// platform reports plus a walk of all font directories. Fontconfig hides
// disabled families from fc-list, so the walk keeps them in the cache.
func (m *DefaultManager) enumerate(ctx context.Context) ([]platform.FaceRef, error) {
	refs, err := m.platform.Enumerate(ctx)
	if err != nil {
		m.logger.Warn("platform enumeration failed, walking font directories only", "error", err)
		refs = nil
	}

	paths, err := m.platform.GetFontPaths()
	if err != nil {
		return nil, fmt.Errorf("getting font paths: %w", err)
	}
	dirs := append(append([]string{}, paths.SystemDirs...), m.userDirs()...)
	walked, err := WalkFontDirs(ctx, dirs...)
	if err != nil {
		return nil, err
	}

	type key struct {
		path  string
		index int
	}
	seen := make(map[key]bool, len(refs))
	out := make([]platform.FaceRef, 0, len(refs)+len(walked))
	for _, ref := range append(refs, walked...) {
		k := key{ref.Path, ref.Index}
		// bitmap and Type 1 fonts are left to fontconfig
		if seen[k] || !isFontFile(ref.Path) {
			continue
		}
		seen[k] = true
		out = append(out, ref)
	}
	return out, nil
}

func refPaths(refs []platform.FaceRef) []string {
	seen := make(map[string]bool, len(refs))
	var paths []string
	for _, ref := range refs {
		if !seen[ref.Path] {
			seen[ref.Path] = true
			paths = append(paths, ref.Path)
		}
	}
	return paths
}

// Reload discards the cache and rescans every font.
func (m *DefaultManager) Reload(ctx context.Context) (*SyncReport, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	refs, err := m.enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating fonts: %w", err)
	}
	states := statFiles(refPaths(refs))
	records, err := m.scanner.Scan(ctx, refs, m.userDirs())
	if err != nil {
		return nil, fmt.Errorf("scanning fonts: %w", err)
	}
	if err := m.cache.Replace(ctx, records); err != nil {
		return nil, fmt.Errorf("replacing cache: %w", err)
	}
	if err := m.cache.SetFingerprint(ctx, fingerprint(states, m.userDirs()), time.Now()); err != nil {
		return nil, fmt.Errorf("storing fingerprint: %w", err)
	}

	report := &SyncReport{Added: countFiles(records)}
	m.logger.Info("reloaded font cache", "files", report.Added, "faces", len(records))
	return report, nil
}

func countFiles(records []FontRecord) int {
	files := make(map[string]bool)
	for _, r := range records {
		files[r.Filepath] = true
	}
	return len(files)
}

// Sync applies filesystem changes to the cache. A file is rescanned when
// it is new, its size or modification time differ from the cached row, or
// a directory change moved it between System and User.
func (m *DefaultManager) Sync(ctx context.Context) (*SyncReport, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	return m.sync(ctx)
}

func (m *DefaultManager) sync(ctx context.Context) (*SyncReport, error) {
	refs, err := m.enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating fonts: %w", err)
	}
	states := statFiles(refPaths(refs))

	cached, err := m.cache.Query(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	type cachedFile struct {
		state fileState
		owner Owner
	}
	known := make(map[string]cachedFile, len(cached))
	for _, r := range cached {
		known[r.Filepath] = cachedFile{fileState{size: r.Filesize, modUnix: r.Modified.Unix()}, r.Owner}
	}
	userDirs := m.userDirs()

	report := &SyncReport{}
	var stale []string
	for path := range known {
		if _, ok := states[path]; !ok {
			stale = append(stale, path)
			report.Removed++
		}
	}

	// Files that yield no face are rescanned on every sync but only
	// counted when they produce records.
	rescan := make(map[string]bool) // path -> was cached
	for path, st := range states {
		old, ok := known[path]
		switch {
		case !ok:
			rescan[path] = false
		case old.state != st, old.owner != ownerOf(path, userDirs):
			rescan[path] = true
			stale = append(stale, path)
		default:
			report.Unchanged++
		}
	}

	var pending []platform.FaceRef
	for _, ref := range refs {
		if _, ok := rescan[ref.Path]; ok {
			pending = append(pending, ref)
		}
	}
	records, err := m.scanner.Scan(ctx, pending, userDirs)
	if err != nil {
		return nil, fmt.Errorf("scanning fonts: %w", err)
	}

	scanned := make(map[string]bool)
	for _, r := range records {
		scanned[r.Filepath] = true
	}
	for path, updated := range rescan {
		switch {
		case updated && scanned[path]:
			report.Updated++
		case updated:
			report.Removed++
		case scanned[path]:
			report.Added++
		}
	}

	sort.Strings(stale)
	if err := m.cache.Delete(ctx, stale...); err != nil {
		return nil, fmt.Errorf("removing stale fonts: %w", err)
	}
	if err := m.cache.Insert(ctx, records...); err != nil {
		return nil, fmt.Errorf("updating cache: %w", err)
	}
	if err := m.cache.SetFingerprint(ctx, fingerprint(states, userDirs), time.Now()); err != nil {
		return nil, fmt.Errorf("storing fingerprint: %w", err)
	}

	if report.Changed() {
		m.logger.Info("synchronised font cache", "report", report.String())
	}
	return report, nil
}

// Load serves the cache as is when the fingerprint of the installed font
// files matches the stored one, and synchronises otherwise.
func (m *DefaultManager) Load(ctx context.Context) (*SyncReport, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	stored, _, err := m.cache.Fingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading fingerprint: %w", err)
	}
	count, err := m.cache.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting cached fonts: %w", err)
	}

	if stored != "" && count > 0 {
		refs, err := m.enumerate(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerating fonts: %w", err)
		}
		if fingerprint(statFiles(refPaths(refs)), m.userDirs()) == stored {
			m.logger.Debug("font cache is current", "faces", count)
			return &SyncReport{Unchanged: len(refPaths(refs))}, nil
		}
	}
	return m.sync(ctx)
}

// Watch synchronises the cache whenever something changes below the user
// font directories. Events are coalesced for debounce before a Sync runs.
// onChange, if not nil, receives every report that changed something.
// Watch blocks until ctx is done.
func (m *DefaultManager) Watch(ctx context.Context, debounce time.Duration, onChange func(*SyncReport)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range m.userDirs() {
		if err := watchTree(watcher, dir); err != nil {
			return err
		}
	}
	m.logger.Info("watching font directories", "dirs", strings.Join(watcher.WatchList(), ","))

	// nil until an event arrives, so the select never fires spuriously
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, event.Name); err != nil {
						m.logger.Warn("failed to watch directory", "dir", event.Name, "error", err)
					}
				}
			}
			if event.Has(fsnotify.Chmod) {
				continue
			}
			m.logger.Debug("font directory changed", "path", event.Name, "op", event.Op.String())
			settle = time.After(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("watcher error", "error", err)

		case <-settle:
			settle = nil
			report, err := m.Sync(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("sync after change failed", "error", err)
				continue
			}
			if report.Changed() && onChange != nil {
				onChange(report)
			}
		}
	}
}

// watchTree adds dir and its subdirectories. A missing dir is created so
// fonts installed later are seen.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
