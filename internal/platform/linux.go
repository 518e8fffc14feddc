package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flopp/go-findfont"
)

type linuxManager struct {
	opts Options
}

func newLinuxManager(opts Options) Manager {
	return &linuxManager{opts: opts}
}

func (m *linuxManager) GetFontPaths() (FontPaths, error) {
	dataHome, err := xdgDir("XDG_DATA_HOME", ".local/share")
	if err != nil {
		return FontPaths{}, err
	}

	paths := FontPaths{
		SystemDirs: []string{"/usr/share/fonts", "/usr/local/share/fonts"},
		UserDir:    filepath.Join(dataHome, "fonts"),
	}

	// Ensure user fonts directory exists
	if err := os.MkdirAll(paths.UserDir, 0755); err != nil {
		return FontPaths{}, fmt.Errorf("creating user fonts directory: %w", err)
	}

	return paths, nil
}

func (m *linuxManager) ConfigDir() (string, error) {
	configHome, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(configHome, "fontconfig"), nil
}

func (m *linuxManager) DataDir() (string, error) {
	dataHome, err := xdgDir("XDG_DATA_HOME", ".local/share")
	if err != nil {
		return "", err
	}
	return filepath.Join(dataHome, "font-manager"), nil
}

func (m *linuxManager) UpdateFontCache() error {
	// First try fc-cache
	if err := runCommand(m.opts.FcCache, "-f"); err == nil {
		return nil
	}

	// If fc-cache fails, try with sudo (some distros require this)
	if os.Geteuid() != 0 {
		if err := runCommand("sudo", m.opts.FcCache, "-f"); err != nil {
			return fmt.Errorf("updating font cache: %w", err)
		}
	}

	return nil
}

// fcListFormat yields one tab separated line per face.
const fcListFormat = `%{file}\t%{index}\t%{family[0]}\t%{style[0]}\t%{weight}\t%{width}\t%{slant}\t%{spacing}\n`

func (m *linuxManager) Enumerate(ctx context.Context) ([]FaceRef, error) {
	cmd := exec.CommandContext(ctx, m.opts.FcList, "--format", fcListFormat)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return listFindFont(), nil
		}
		return nil, fmt.Errorf("running %s: %w", m.opts.FcList, err)
	}
	return ParseFcList(string(out)), nil
}

// ParseFcList parses the output of fc-list run with fcListFormat.
// Lines with an empty path are dropped; numeric fields fontconfig could not
// fill are reported as -1.
func ParseFcList(out string) []FaceRef {
	var refs []FaceRef
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || strings.TrimSpace(fields[0]) == "" {
			continue
		}
		for len(fields) < 8 {
			fields = append(fields, "")
		}
		index, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			index = 0
		}
		refs = append(refs, FaceRef{
			Path:    strings.TrimSpace(fields[0]),
			Index:   index,
			Family:  strings.TrimSpace(fields[2]),
			Style:   strings.TrimSpace(fields[3]),
			Weight:  fcInt(fields[4]),
			Width:   fcInt(fields[5]),
			Slant:   fcInt(fields[6]),
			Spacing: fcInt(fields[7]),
		})
	}
	return refs
}

// fcInt parses a fontconfig numeric property. Variable fonts report ranges
// such as "[100 900]"; the lower bound is used.
func fcInt(s string) int {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return -1
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return -1
	}
	return int(f)
}

// listFindFont is the enumeration fallback when fontconfig is unavailable.
func listFindFont() []FaceRef {
	var refs []FaceRef
	for _, path := range findfont.List() {
		refs = append(refs, FaceRef{Path: path, Weight: -1, Width: -1, Slant: -1, Spacing: -1})
	}
	return refs
}

func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(homeDir, fallback), nil
}

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %s: %w", name, output, err)
	}
	return nil
}
