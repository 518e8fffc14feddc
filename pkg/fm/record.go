package fm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Owner tells whether a font file belongs to the system or to the user.
type Owner int

const (
	System Owner = iota
	User
)

func (o Owner) String() string {
	if o == User {
		return "User"
	}
	return "System"
}

// ParseOwner is the inverse of Owner.String, case-insensitive.
func ParseOwner(s string) (Owner, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return System, nil
	case "user":
		return User, nil
	}
	return System, fmt.Errorf("unknown owner %q", s)
}

// FontRecord is the cached metadata of one face of one font file.
type FontRecord struct {
	Owner       Owner
	Filepath    string
	Filetype    string
	Filesize    int64
	Modified    time.Time
	Checksum    string // SHA-256 of the whole file, duplicate detection only
	PSName      string
	Family      string
	Style       string
	Foundry     string
	Copyright   string
	Version     string
	Description string
	LicenseData string
	LicenseURL  string
	Panose      string
	FaceIndex   int

	// Layout engine view of the face.
	PFamily      string
	PStyle       string
	PVariant     string
	PWeight      string
	PStretch     string
	PDescription string
}

// Key is the cache identity of the record.
func (r *FontRecord) Key() string {
	return fmt.Sprintf("%s#%d", r.Filepath, r.FaceIndex)
}

// Filter selects records from the cache. Zero values match everything.
type Filter struct {
	Family     string
	Style      string
	Owner      *Owner
	Foundry    string
	Checksum   string
	PathPrefix string
	Search     string // substring over family, style, foundry and PostScript name
	OrderBy    string // one of the OrderBy* constants
	Limit      int
}

// Columns the cache accepts for ordering.
const (
	OrderByFamily   = "family"
	OrderByStyle    = "style"
	OrderByFilepath = "filepath"
	OrderByFoundry  = "foundry"
	OrderByFilesize = "filesize"
)

// Cache persists FontRecords keyed by (filepath, face index).
type Cache interface {
	Insert(ctx context.Context, records ...FontRecord) error
	Replace(ctx context.Context, records []FontRecord) error
	Delete(ctx context.Context, filepaths ...string) error
	Query(ctx context.Context, filter Filter) ([]FontRecord, error)
	Get(ctx context.Context, filepath string, index int) (*FontRecord, error)
	FindByChecksum(ctx context.Context, checksum string) ([]FontRecord, error)
	Families(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Fingerprint(ctx context.Context) (string, time.Time, error)
	SetFingerprint(ctx context.Context, fingerprint string, scannedAt time.Time) error
}
