package fm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fontkit/font-manager/internal/platform"
	"golang.org/x/sync/errgroup"
)

var fontExtensions = map[string]bool{
	".ttf": true,
	".otf": true,
	".ttc": true,
	".otc": true,
}

func isFontFile(name string) bool {
	return fontExtensions[strings.ToLower(filepath.Ext(name))]
}

// WalkFontDirs lists the font files below dirs. Missing directories are
// skipped.
func WalkFontDirs(ctx context.Context, dirs ...string) ([]platform.FaceRef, error) {
	var refs []platform.FaceRef
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isFontFile(d.Name()) {
				refs = append(refs, platform.FaceRef{Path: path, Weight: -1, Width: -1, Slant: -1, Spacing: -1})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	}
	return refs, nil
}

// Scanner turns enumerated faces into FontRecords.
type Scanner struct {
	workers int
	logger  Logger
}

// NewScanner returns a scanner running workers extractions in parallel;
// workers <= 0 means one per CPU.
func NewScanner(workers int, logger Logger) *Scanner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scanner{workers: workers, logger: logger}
}

// Scan extracts metadata for every file referenced by refs. Files under one
// of userDirs are owned by the User. Unreadable files are skipped.
func (s *Scanner) Scan(ctx context.Context, refs []platform.FaceRef, userDirs []string) ([]FontRecord, error) {
	byPath := groupByPath(refs)

	var (
		mu      sync.Mutex
		records []FontRecord
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for path, faces := range byPath {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := ExtractMetadata(path)
			if err != nil {
				if errors.Is(err, ErrNotAFont) {
					s.logger.Debug("skipping unsupported file", "path", path)
				} else {
					s.logger.Warn("skipping unreadable font", "path", path, "error", err)
				}
				return nil
			}
			owner := ownerOf(path, userDirs)
			for i := range found {
				found[i].Owner = owner
				if ref, ok := faces[found[i].FaceIndex]; ok {
					applyFaceRef(&found[i], ref)
				}
			}
			mu.Lock()
			records = append(records, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Filepath != records[j].Filepath {
			return records[i].Filepath < records[j].Filepath
		}
		return records[i].FaceIndex < records[j].FaceIndex
	})
	s.logger.Debug("scan finished", "files", len(byPath), "faces", len(records))
	return records, nil
}

func groupByPath(refs []platform.FaceRef) map[string]map[int]platform.FaceRef {
	byPath := make(map[string]map[int]platform.FaceRef)
	for _, ref := range refs {
		faces, ok := byPath[ref.Path]
		if !ok {
			faces = make(map[int]platform.FaceRef)
			byPath[ref.Path] = faces
		}
		faces[ref.Index] = ref
	}
	return byPath
}

// applyFaceRef overlays what the platform font system knows about a face
// on the layout strings derived from the file.
func applyFaceRef(r *FontRecord, ref platform.FaceRef) {
	family := r.Family
	if ref.Family != "" {
		family = ref.Family
		r.PFamily = ref.Family
	}
	if ref.Style != "" {
		r.PDescription = describe(family, ref.Style)
	}
	if ref.Weight >= 0 {
		r.PWeight = WeightName(weightClassFromFc(ref.Weight))
	}
	if ref.Width >= 0 {
		r.PStretch = StretchName(widthClassFromFc(ref.Width))
	}
	if ref.Slant >= 0 {
		r.PStyle = slantFromFc(ref.Slant)
	}
}

func ownerOf(path string, userDirs []string) Owner {
	for _, dir := range userDirs {
		if isUnder(path, dir) {
			return User
		}
	}
	return System
}

func isUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fileState is the part of a file's stat that decides whether it changed.
type fileState struct {
	size    int64
	modUnix int64
}

func statFiles(paths []string) map[string]fileState {
	states := make(map[string]fileState, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		states[p] = fileState{size: info.Size(), modUnix: info.ModTime().Unix()}
	}
	return states
}

// fingerprint hashes the sorted file states and the user directories,
// which decide ownership.
func fingerprint(states map[string]fileState, userDirs []string) string {
	paths := make([]string, 0, len(states))
	for p := range states {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		st := states[p]
		fmt.Fprintf(h, "%s|%d|%d\n", p, st.size, st.modUnix)
	}
	dirs := append([]string(nil), userDirs...)
	sort.Strings(dirs)
	for _, d := range dirs {
		fmt.Fprintf(h, "dir|%s\n", d)
	}
	return hex.EncodeToString(h.Sum(nil))
}
