package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type darwinManager struct {
	opts Options
}

func newDarwinManager(opts Options) Manager {
	return &darwinManager{opts: opts}
}

func (m *darwinManager) GetFontPaths() (FontPaths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return FontPaths{}, fmt.Errorf("getting user home directory: %w", err)
	}

	paths := FontPaths{
		SystemDirs: []string{"/System/Library/Fonts", "/Library/Fonts"},
		UserDir:    filepath.Join(homeDir, "Library/Fonts"),
	}

	// Ensure user fonts directory exists
	if err := os.MkdirAll(paths.UserDir, 0755); err != nil {
		return FontPaths{}, fmt.Errorf("creating user fonts directory: %w", err)
	}

	return paths, nil
}

func (m *darwinManager) ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config/fontconfig"), nil
}

func (m *darwinManager) DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(homeDir, "Library/Application Support/font-manager"), nil
}

func (m *darwinManager) UpdateFontCache() error {
	// macOS automatically detects new fonts, but we can force a refresh
	// by touching the fonts directory
	paths, err := m.GetFontPaths()
	if err != nil {
		return err
	}

	now := time.Now()
	if err := os.Chtimes(paths.UserDir, now, now); err != nil {
		return fmt.Errorf("updating directory timestamp: %w", err)
	}

	// For older macOS versions, we might need to restart the font server
	if err := exec.Command("atsutil", "databases", "-remove").Run(); err == nil {
		if err := exec.Command("atsutil", "server", "-shutdown").Run(); err != nil {
			return fmt.Errorf("restarting font server: %w", err)
		}
	}

	return nil
}

func (m *darwinManager) Enumerate(ctx context.Context) ([]FaceRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listFindFont(), nil
}
