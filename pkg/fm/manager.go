package fm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fontkit/font-manager/internal/platform"
)

// Manager handles font operations
type Manager interface {
	// Load brings the cache up to date if the installed fonts changed
	Load(ctx context.Context) (*SyncReport, error)

	// Reload discards the cache and rescans every font
	Reload(ctx context.Context) (*SyncReport, error)

	// Sync applies filesystem changes to the cache incrementally
	Sync(ctx context.Context) (*SyncReport, error)

	// Catalog returns the cached fonts grouped by family
	Catalog(ctx context.Context) (*Catalog, error)

	// Install installs a font from any registered source
	Install(ctx context.Context, name string) error

	// InstallFiles installs local font files and archives
	InstallFiles(ctx context.Context, paths ...string) (*InstallResult, error)

	// Uninstall removes a user-installed family
	Uninstall(ctx context.Context, family string) error

	// IsInstalled checks if a font family is installed
	IsInstalled(ctx context.Context, name string) (bool, error)

	// RegisterSource adds a new source to search for fonts
	RegisterSource(source Source) error

	// InstallFromConfig installs fonts from a config file
	InstallFromConfig(ctx context.Context, reader io.Reader) error
}

// Options configures a DefaultManager.
type Options struct {
	Platform platform.Manager
	Cache    Cache
	Logger   Logger
	Workers  int

	// ConfigDir overrides the fontconfig user configuration directory.
	ConfigDir string
	// DataDir overrides the application data directory.
	DataDir string
}

// DefaultManager provides the standard font management implementation
type DefaultManager struct {
	sources     []Source
	installer   *FontInstaller
	platform    platform.Manager
	cache       Cache
	scanner     *Scanner
	collections *CollectionStore
	blacklist   *Blacklist
	directories *Directories
	logger      Logger
	userDir     string

	// serialises scans so a watcher and a command never interleave
	syncMu sync.Mutex
}

var _ Manager = (*DefaultManager)(nil)

// NewManager creates a font manager and loads its configuration files.
func NewManager(opts Options) (*DefaultManager, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}

	paths, err := opts.Platform.GetFontPaths()
	if err != nil {
		return nil, fmt.Errorf("getting font paths: %w", err)
	}
	if opts.ConfigDir == "" {
		if opts.ConfigDir, err = opts.Platform.ConfigDir(); err != nil {
			return nil, fmt.Errorf("getting config dir: %w", err)
		}
	}
	if opts.DataDir == "" {
		if opts.DataDir, err = opts.Platform.DataDir(); err != nil {
			return nil, fmt.Errorf("getting data dir: %w", err)
		}
	}

	m := &DefaultManager{
		platform:    opts.Platform,
		cache:       opts.Cache,
		scanner:     NewScanner(opts.Workers, opts.Logger),
		collections: NewCollectionStore(filepath.Join(opts.DataDir, "Collections.xml"), opts.Logger),
		blacklist:   NewBlacklist(filepath.Join(opts.ConfigDir, "conf.d", "78-Reject.conf"), opts.Logger),
		directories: NewDirectories(filepath.Join(opts.ConfigDir, "conf.d", "09-Directories.conf"), opts.Logger),
		logger:      opts.Logger,
		userDir:     paths.UserDir,
	}
	m.installer = NewFontInstaller(paths.UserDir, m.isDuplicate)

	if err := m.collections.Load(); err != nil {
		return nil, fmt.Errorf("loading collections: %w", err)
	}
	if err := m.blacklist.Load(); err != nil {
		return nil, fmt.Errorf("loading blacklist: %w", err)
	}
	if err := m.directories.Load(); err != nil {
		return nil, fmt.Errorf("loading directories: %w", err)
	}
	return m, nil
}

// Collections exposes the collection store.
func (m *DefaultManager) Collections() *CollectionStore {
	return m.collections
}

// Blacklist exposes the disabled-family set.
func (m *DefaultManager) Blacklist() *Blacklist {
	return m.blacklist
}

// Directories exposes the user-added font directories.
func (m *DefaultManager) Directories() *Directories {
	return m.directories
}

// UpdateCache updates the system font cache
func (m *DefaultManager) UpdateCache() error {
	return m.platform.UpdateFontCache()
}

func (m *DefaultManager) userDirs() []string {
	return append([]string{m.userDir}, m.directories.List()...)
}

func (m *DefaultManager) isDuplicate(checksum string) (bool, error) {
	found, err := m.cache.FindByChecksum(context.Background(), checksum)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Catalog returns the cached fonts grouped by family.
func (m *DefaultManager) Catalog(ctx context.Context) (*Catalog, error) {
	records, err := m.cache.Query(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	return NewCatalog(records, m.blacklist.IsDisabled), nil
}

// Search returns the families matching query.
func (m *DefaultManager) Search(ctx context.Context, query string) ([]*Family, error) {
	catalog, err := m.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Search(query), nil
}

// FamilyInfo is the detail view of one family.
type FamilyInfo struct {
	*Family
	Collections []string
	License     License
	Source      string // remote source the family was installed from, if known
}

// Info returns the details of an installed family.
func (m *DefaultManager) Info(ctx context.Context, family string) (*FamilyInfo, error) {
	records, err := m.cache.Query(ctx, Filter{Family: family})
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("font %q is %w", family, ErrNotInstalled)
	}

	fam := NewCatalog(records, m.blacklist.IsDisabled).Family(family)
	info := &FamilyInfo{
		Family:      fam,
		Collections: m.collections.Containing(family),
		License:     records[0].License(),
	}
	for _, file := range recordFiles(records) {
		if src, ok := readSource(filepath.Dir(file)); ok {
			info.Source = src.Source
			break
		}
	}
	return info, nil
}

// ParseFontSpec parses a font specification line into a Font struct
func ParseFontSpec(line string) (*Font, error) {
	// Skip empty lines and comments
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	// Check if it's a URL
	if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
		if _, err := url.Parse(line); err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		return &Font{
			Source: "url",
			URL:    line,
			Name:   getFontNameFromURL(line),
		}, nil
	}

	// Check for source specification with @
	name, source, _ := strings.Cut(line, "@")
	return &Font{
		Name:   strings.TrimSpace(name),
		Source: strings.TrimSpace(source),
	}, nil
}

// Spec is the inverse of ParseFontSpec.
func (f Font) Spec() string {
	switch {
	case f.URL != "":
		return f.URL
	case f.Source != "":
		return f.Name + "@" + f.Source
	}
	return f.Name
}

// InstallFromConfig implements bulk font installation from a config file
func (m *DefaultManager) InstallFromConfig(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	var errs []error

	for scanner.Scan() {
		font, err := ParseFontSpec(scanner.Text())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if font == nil {
			continue // Skip empty lines and comments
		}

		if err := m.Install(ctx, font.Spec()); err != nil {
			if errors.Is(err, ErrAlreadyInstalled) || errors.Is(err, ErrDuplicate) {
				m.logger.Info("skipping installed font", "font", font.Name)
				continue
			}
			errs = append(errs, fmt.Errorf("failed to install %s: %w", font.Name, err))
		}
	}

	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("error reading config: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("encountered errors during installation: %w", errors.Join(errs...))
	}

	return nil
}

func getFontNameFromURL(urlStr string) string {
	// Extract filename from URL and clean it up
	u, _ := url.Parse(urlStr)
	name := filepath.Base(u.Path)

	// Remove extension and common suffixes
	for _, ext := range []string{".zip", ".ttf", ".otf", ".ttc"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Install installs a font from a remote source. name is a family name,
// "name@source" or a URL.
func (m *DefaultManager) Install(ctx context.Context, name string) error {
	font, err := ParseFontSpec(name)
	if err != nil {
		return err
	}
	if font == nil {
		return fmt.Errorf("empty font name")
	}

	// URLs carry no family name to check; duplicates are caught by checksum
	if font.URL != "" {
		return m.installFromURL(ctx, *font)
	}

	// First check if it's already installed
	installed, err := m.IsInstalled(ctx, font.Name)
	if err != nil {
		return fmt.Errorf("checking if font is installed: %w", err)
	}
	if installed {
		return fmt.Errorf("font %q is %w", font.Name, ErrAlreadyInstalled)
	}

	// If a specific source is requested, use only that source
	if font.Source != "" {
		for _, source := range m.sources {
			if source.Name() == font.Source {
				return m.installFromSource(ctx, font.Name, source)
			}
		}
		return fmt.Errorf("%w: %q", ErrSourceNotFound, font.Source)
	}

	// Try all sources in order
	var lastErr error
	for _, source := range m.sources {
		err := m.installFromSource(ctx, font.Name, source)
		if err == nil || errors.Is(err, ErrDuplicate) {
			return err
		}
		m.logger.Debug("source failed", "source", source.Name(), "font", font.Name, "error", err)
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("font %q not found in any source: %w", font.Name, lastErr)
	}
	return fmt.Errorf("font %q: no sources registered: %w", font.Name, ErrSourceNotFound)
}

func (m *DefaultManager) installFromURL(ctx context.Context, font Font) error {
	body, err := fetch(ctx, defaultClient, font.URL)
	if err != nil {
		return fmt.Errorf("downloading font: %w", err)
	}
	defer body.Close()
	return m.installData(ctx, font, body)
}

// Helper method to install from a specific source
func (m *DefaultManager) installFromSource(ctx context.Context, name string, source Source) error {
	fonts, err := source.Search(ctx, name)
	if err != nil {
		return fmt.Errorf("searching in %s: %w", source.Name(), err)
	}

	if len(fonts) == 0 {
		return fmt.Errorf("font not found in %s", source.Name())
	}

	data, err := source.Download(ctx, fonts[0])
	if err != nil {
		return fmt.Errorf("downloading from %s: %w", source.Name(), err)
	}
	defer data.Close()

	return m.installData(ctx, fonts[0], data)
}

// installData returns an error wrapping ErrDuplicate when every font in
// data is installed already.
func (m *DefaultManager) installData(ctx context.Context, font Font, data io.Reader) error {
	res, err := m.installer.Install(font, data)
	if err != nil {
		return fmt.Errorf("installing font: %w", err)
	}
	m.logger.Info("installed font", "font", font.Name, "source", font.Source,
		"files", len(res.Installed), "duplicates", len(res.Duplicates))
	return m.refresh(ctx)
}

// InstallFiles installs local font files and zip archives into the user
// font directory. Fonts identical to an installed one are reported as
// duplicates and not copied.
func (m *DefaultManager) InstallFiles(ctx context.Context, paths ...string) (*InstallResult, error) {
	res, err := m.installer.InstallFiles(paths...)
	if err != nil {
		return res, err
	}
	for _, dup := range res.Duplicates {
		m.logger.Info("skipping duplicate font", "file", dup)
	}
	if len(res.Installed) > 0 {
		if err := m.refresh(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// refresh updates the platform font cache and then the metadata cache.
// A failing platform refresh is logged; the files are in place regardless.
func (m *DefaultManager) refresh(ctx context.Context) error {
	if err := m.UpdateCache(); err != nil {
		m.logger.Warn("failed to update font cache", "error", err)
	}
	if _, err := m.Sync(ctx); err != nil {
		return fmt.Errorf("updating metadata cache: %w", err)
	}
	return nil
}

// RegisterSource adds a new source to search for fonts
func (m *DefaultManager) RegisterSource(source Source) error {
	// Check if source is nil
	if source == nil {
		return fmt.Errorf("cannot register nil source")
	}

	// Check for duplicate sources
	for _, existing := range m.sources {
		if existing.Name() == source.Name() {
			return fmt.Errorf("source %q is already registered", source.Name())
		}
	}

	// Add the source to our list
	m.sources = append(m.sources, source)
	return nil
}

// IsInstalled reports whether a family with a matching name is cached.
// Names are compared after sanitizing, so "Fira Code" matches "FiraCode".
func (m *DefaultManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	families, err := m.cache.Families(ctx)
	if err != nil {
		return false, fmt.Errorf("checking installation status: %w", err)
	}

	// Normalize the name for comparison
	normalizedName := normalizeFamily(name)

	for _, family := range families {
		if normalizeFamily(family) == normalizedName {
			return true, nil
		}
	}

	return false, nil
}

func normalizeFamily(name string) string {
	return strings.ToLower(strings.ReplaceAll(sanitizeFontName(name), "-", ""))
}

// Uninstall removes the files of family installed into the user font
// directory. System copies of the family are left in place.
func (m *DefaultManager) Uninstall(ctx context.Context, family string) error {
	records, err := m.cache.Query(ctx, Filter{Family: family})
	if err != nil {
		return fmt.Errorf("checking font installation: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("font %q is %w", family, ErrNotInstalled)
	}

	var owned []FontRecord
	for _, r := range records {
		if r.Owner == User && isUnder(r.Filepath, m.userDir) {
			owned = append(owned, r)
		}
	}
	if len(owned) == 0 {
		return fmt.Errorf("%w: %s", ErrSystemFont, family)
	}
	if kept := len(recordFiles(records)) - len(recordFiles(owned)); kept > 0 {
		m.logger.Info("keeping copies outside the user font directory", "family", family, "files", kept)
	}

	removed, err := m.installer.Uninstall(owned)
	if err != nil {
		return fmt.Errorf("uninstalling %s: %w", family, err)
	}
	if err := m.cache.Delete(ctx, removed...); err != nil {
		return fmt.Errorf("updating metadata cache: %w", err)
	}
	m.logger.Info("uninstalled font", "family", family, "files", len(removed))

	// Update the system's font cache
	if err := m.UpdateCache(); err != nil {
		// Log the error but don't fail - the font is already removed
		m.logger.Warn("failed to update font cache", "error", err)
	}
	return nil
}

// Enable removes families from the blacklist.
func (m *DefaultManager) Enable(families ...string) error {
	if !m.blacklist.Enable(families...) {
		return nil
	}
	return m.blacklist.Save()
}

// Disable adds families to the blacklist.
func (m *DefaultManager) Disable(families ...string) error {
	if !m.blacklist.Disable(families...) {
		return nil
	}
	return m.blacklist.Save()
}

// SetCollectionEnabled flips a collection and every member family.
func (m *DefaultManager) SetCollectionEnabled(name string, enabled bool) error {
	c, err := m.collections.Get(name)
	if err != nil {
		return err
	}
	if err := m.collections.SetEnabled(name, enabled); err != nil {
		return err
	}
	if enabled {
		err = m.Enable(c.Families...)
	} else {
		err = m.Disable(c.Families...)
	}
	if err != nil {
		return fmt.Errorf("saving blacklist: %w", err)
	}
	return m.collections.Save()
}

// AddToCollection adds families to a collection, creating it if needed.
// Families inherit a disabled collection's state.
func (m *DefaultManager) AddToCollection(name string, families ...string) error {
	if _, err := m.collections.Get(name); errors.Is(err, ErrCollectionNotFound) {
		if err := m.collections.Create(name, ""); err != nil {
			return err
		}
	}
	if err := m.collections.AddFamilies(name, families...); err != nil {
		return err
	}
	c, err := m.collections.Get(name)
	if err != nil {
		return err
	}
	if !c.Enabled {
		if err := m.Disable(families...); err != nil {
			return fmt.Errorf("saving blacklist: %w", err)
		}
	}
	return m.collections.Save()
}

// Export copies the font files of a collection into dest/<family>/.
// It returns the number of files copied.
func (m *DefaultManager) Export(ctx context.Context, collection, dest string) (int, error) {
	c, err := m.collections.Get(collection)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, family := range c.Families {
		records, err := m.cache.Query(ctx, Filter{Family: family})
		if err != nil {
			return copied, fmt.Errorf("reading cache: %w", err)
		}
		if len(records) == 0 {
			m.logger.Warn("collection member is not installed", "collection", collection, "family", family)
			continue
		}
		dir := filepath.Join(dest, sanitizeFontName(family))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return copied, fmt.Errorf("creating %s: %w", dir, err)
		}
		used := make(map[string]bool)
		for _, file := range recordFiles(records) {
			name := filepath.Base(file)
			ext := filepath.Ext(name)
			for i := 1; used[name]; i++ {
				name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(filepath.Base(file), ext), i, ext)
			}
			used[name] = true
			if err := copyFile(file, filepath.Join(dir, name)); err != nil {
				return copied, err
			}
			copied++
		}
	}
	return copied, nil
}

// AddDirectory registers a user font directory and rescans.
func (m *DefaultManager) AddDirectory(ctx context.Context, dir string) error {
	changed, err := m.directories.Add(dir)
	if err != nil || !changed {
		return err
	}
	if err := m.directories.Save(); err != nil {
		return fmt.Errorf("saving directories: %w", err)
	}
	return m.refresh(ctx)
}

// RemoveDirectory unregisters a user font directory and rescans.
func (m *DefaultManager) RemoveDirectory(ctx context.Context, dir string) error {
	changed, err := m.directories.Remove(dir)
	if err != nil || !changed {
		return err
	}
	if err := m.directories.Save(); err != nil {
		return fmt.Errorf("saving directories: %w", err)
	}
	return m.refresh(ctx)
}

// recordFiles returns the distinct files behind records, in order.
func recordFiles(records []FontRecord) []string {
	seen := make(map[string]bool, len(records))
	var files []string
	for _, r := range records {
		if !seen[r.Filepath] {
			seen[r.Filepath] = true
			files = append(files, r.Filepath)
		}
	}
	return files
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// ScannedAt returns when the cache was last synchronised.
func (m *DefaultManager) ScannedAt(ctx context.Context) (time.Time, error) {
	_, at, err := m.cache.Fingerprint(ctx)
	return at, err
}
