package platform

import (
	"context"
	"runtime"
)

// FontPaths represents system and user font directories
type FontPaths struct {
	SystemDirs []string // System-wide font directories
	UserDir    string   // User-specific font directory
}

// FaceRef identifies a single face as reported by the platform's font
// enumeration. Only Path and Index are guaranteed; the remaining fields are
// filled when the enumerator knows them (fontconfig does, a directory walk
// does not).
type FaceRef struct {
	Path    string
	Index   int
	Family  string
	Style   string
	Weight  int // fontconfig weight scale, -1 when unknown
	Width   int // fontconfig width scale, -1 when unknown
	Slant   int // fontconfig slant, -1 when unknown
	Spacing int // fontconfig spacing, -1 when unknown
}

// Manager handles platform-specific operations
type Manager interface {
	// GetFontPaths returns the system and user font directories
	GetFontPaths() (FontPaths, error)

	// ConfigDir returns the directory holding fontconfig user configuration
	ConfigDir() (string, error)

	// DataDir returns the per-user application data directory
	DataDir() (string, error)

	// UpdateFontCache updates the system's font cache
	UpdateFontCache() error

	// Enumerate lists every face the platform font system knows about
	Enumerate(ctx context.Context) ([]FaceRef, error)
}

// Options overrides the external binaries used by the platform manager.
type Options struct {
	FcList  string
	FcCache string
}

// New returns a platform-specific manager
func New(opts Options) Manager {
	if opts.FcList == "" {
		opts.FcList = "fc-list"
	}
	if opts.FcCache == "" {
		opts.FcCache = "fc-cache"
	}
	if runtime.GOOS == "darwin" {
		return newDarwinManager(opts)
	}
	return newLinuxManager(opts)
}
