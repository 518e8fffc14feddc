package fm

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// InstallResult reports what an installation did.
type InstallResult struct {
	Installed  []string // destination paths written
	Duplicates []string // inputs skipped because an identical font is installed
	Skipped    []string // inputs that were not fonts
}

// DuplicateCheck reports whether a font with the given checksum is already
// installed.
type DuplicateCheck func(checksum string) (bool, error)

// FontInstaller handles the installation of fonts into the user font
// directory, laid out as <foundry>/<family>/<file>.
type FontInstaller struct {
	fontDir    string
	duplicates DuplicateCheck
}

func NewFontInstaller(fontDir string, duplicates DuplicateCheck) *FontInstaller {
	if duplicates == nil {
		duplicates = func(string) (bool, error) { return false, nil }
	}
	return &FontInstaller{
		fontDir:    fontDir,
		duplicates: duplicates,
	}
}

// Install installs a downloaded font. data is either a zip archive or a
// single font file.
func (fi *FontInstaller) Install(font Font, data io.Reader) (*InstallResult, error) {
	// Read all data into memory to avoid multiple reads
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, data); err != nil {
		return nil, fmt.Errorf("reading font data: %w", err)
	}

	res := &InstallResult{}
	if err := fi.installBlob(downloadName(font), buf.Bytes(), res); err != nil {
		return nil, err
	}
	if len(res.Installed) == 0 {
		if len(res.Duplicates) > 0 {
			return res, fmt.Errorf("%s: %w", font.Name, ErrDuplicate)
		}
		return nil, fmt.Errorf("no valid font files found in %s", font.Name)
	}

	for _, dir := range installedDirs(res.Installed) {
		if err := storeSource(dir, font); err != nil {
			return nil, fmt.Errorf("storing font metadata: %w", err)
		}
	}
	return res, nil
}

// InstallFiles installs local font files and zip archives.
func (fi *FontInstaller) InstallFiles(paths ...string) (*InstallResult, error) {
	res := &InstallResult{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return res, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := fi.installBlob(filepath.Base(path), data, res); err != nil {
			return res, fmt.Errorf("installing %s: %w", path, err)
		}
	}
	return res, nil
}

func (fi *FontInstaller) installBlob(name string, data []byte, res *InstallResult) error {
	if isZip(data) {
		return fi.installZip(data, res)
	}
	return fi.installFont(name, data, res, nil)
}

func (fi *FontInstaller) installZip(data []byte, res *InstallResult) error {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("reading zip data: %w", err)
	}

	var licenses []*zip.File
	for _, file := range zipReader.File {
		// Skip directories and hidden files
		if file.FileInfo().IsDir() || strings.HasPrefix(filepath.Base(file.Name), ".") {
			continue
		}
		if isLicenseFile(file.Name) {
			licenses = append(licenses, file)
		}
	}

	for _, file := range zipReader.File {
		if file.FileInfo().IsDir() || strings.HasPrefix(filepath.Base(file.Name), ".") || !isFontFile(file.Name) {
			continue
		}
		content, err := readZipFile(file)
		if err != nil {
			return fmt.Errorf("extracting font file %s: %w", file.Name, err)
		}
		if err := fi.installFont(filepath.Base(file.Name), content, res, licenses); err != nil {
			return err
		}
	}
	return nil
}

func (fi *FontInstaller) installFont(name string, data []byte, res *InstallResult, licenses []*zip.File) error {
	records, err := ParseMetadata(data)
	if errors.Is(err, ErrNotAFont) {
		res.Skipped = append(res.Skipped, name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	first := records[0]

	dup, err := fi.duplicates(first.Checksum)
	if err != nil {
		return fmt.Errorf("checking for duplicates: %w", err)
	}
	if dup {
		res.Duplicates = append(res.Duplicates, name)
		return nil
	}

	// downloads often lack a usable extension
	if !isFontFile(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + fontExtension(first.Filetype)
	}

	destDir := filepath.Join(fi.fontDir, sanitizeFontName(first.Foundry), sanitizeFontName(first.Family))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating font directory: %w", err)
	}
	dest, same := freeName(filepath.Join(destDir, sanitizeFileName(name)), data)
	if same {
		res.Duplicates = append(res.Duplicates, name)
		return nil
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	res.Installed = append(res.Installed, dest)

	// Always extract LICENSE files next to the fonts they came with
	for _, lic := range licenses {
		if err := extractFile(lic, destDir); err != nil {
			return fmt.Errorf("extracting license file: %w", err)
		}
	}
	return nil
}

// Uninstall removes the files behind records. Every record must be owned by
// the user. Directories left empty are removed up to the font directory.
func (fi *FontInstaller) Uninstall(records []FontRecord) ([]string, error) {
	for _, r := range records {
		if r.Owner != User || !isUnder(r.Filepath, fi.fontDir) {
			return nil, fmt.Errorf("%w: %s", ErrSystemFont, r.Filepath)
		}
	}

	var removed []string
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.Filepath] {
			continue
		}
		seen[r.Filepath] = true
		if err := os.Remove(r.Filepath); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing %s: %w", r.Filepath, err)
		}
		removed = append(removed, r.Filepath)
		fi.prune(filepath.Dir(r.Filepath))
	}
	return removed, nil
}

// prune removes dir and its parents while they hold nothing but
// bookkeeping files, stopping at the font directory.
func (fi *FontInstaller) prune(dir string) {
	for dir != fi.fontDir && isUnder(dir, fi.fontDir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() || isFontFile(e.Name()) {
				return
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// sourceInfo is stored next to fonts installed from a remote source.
type sourceInfo struct {
	Source      string            `json:"source"`
	URL         string            `json:"url,omitempty"`
	InstalledAt time.Time         `json:"installed_at"`
	Meta        map[string]string `json:"meta,omitempty"`
}

const sourceFile = ".source.json"

// storeSource saves information about where the fonts in dir came from
func storeSource(dir string, font Font) error {
	if font.Source == "" {
		return nil
	}
	data, err := json.Marshal(sourceInfo{
		Source:      font.Source,
		URL:         font.URL,
		InstalledAt: time.Now().UTC(),
		Meta:        font.Meta,
	})
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sourceFile), data, 0644); err != nil {
		return fmt.Errorf("writing metadata file: %w", err)
	}
	return nil
}

// readSource returns the stored source of the fonts in dir, if any.
func readSource(dir string) (*sourceInfo, bool) {
	data, err := os.ReadFile(filepath.Join(dir, sourceFile))
	if err != nil {
		return nil, false
	}
	var info sourceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false
	}
	return &info, true
}

// Helper functions

// downloadName is the file name a download is installed under.
func downloadName(font Font) string {
	if font.URL == "" {
		return font.Name
	}
	u, err := url.Parse(font.URL)
	if err != nil {
		return font.Name
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return font.Name
	}
	return name
}

func fontExtension(filetype string) string {
	switch filetype {
	case FiletypeOpenType:
		return ".otf"
	case FiletypeCollection:
		return ".ttc"
	}
	return ".ttf"
}

// freeName returns dest, or dest with a numeric suffix when a different
// file already occupies it. same reports that dest holds data already.
func freeName(dest string, data []byte) (name string, same bool) {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	name = dest
	for i := 1; ; i++ {
		existing, err := os.ReadFile(name)
		if err != nil {
			return name, false
		}
		if bytes.Equal(existing, data) {
			return name, true
		}
		name = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

func isZip(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "PK\x03\x04"
}

func isLicenseFile(name string) bool {
	base := strings.ToUpper(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	return base == "LICENSE" || base == "OFL" || base == "LICENCE"
}

func installedDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func sanitizeFontName(name string) string {
	// Remove any potentially problematic characters from font name
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
	name = strings.Trim(name, "-")
	if name == "" {
		return "unknown"
	}
	return name
}

func sanitizeFileName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	return sanitizeFontName(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))) + ext
}

func readZipFile(file *zip.File) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("opening file in archive: %w", err)
	}
	defer src.Close()
	return io.ReadAll(src)
}

func extractFile(file *zip.File, destPath string) error {
	// Open the file from the archive
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening file in archive: %w", err)
	}
	defer src.Close()

	// Create the destination file
	destFile := filepath.Join(destPath, filepath.Base(file.Name))
	dest, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	defer dest.Close()

	// Copy the contents
	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("copying file contents: %w", err)
	}

	return nil
}
