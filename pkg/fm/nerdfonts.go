package fm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const nerdFontsAPI = "https://api.github.com/repos/ryanoasis/nerd-fonts/releases/latest"

// NerdFontsSource installs patched fonts from the latest NerdFonts release
type NerdFontsSource struct {
	client     *http.Client
	releaseURL string
}

func NewNerdFontsSource() *NerdFontsSource {
	return &NerdFontsSource{
		client:     defaultClient,
		releaseURL: nerdFontsAPI,
	}
}

func (s *NerdFontsSource) Name() string {
	return "nerdfonts"
}

type nerdFontsRelease struct {
	TagName string           `json:"tag_name"`
	Assets  []nerdFontsAsset `json:"assets"`
}

type nerdFontsAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Search matches name against the zip assets of the latest release,
// ignoring case and spaces, so "fira code" finds FiraCode.zip.
func (s *NerdFontsSource) Search(ctx context.Context, name string) ([]Font, error) {
	var release nerdFontsRelease
	if err := getJSON(ctx, s.client, s.releaseURL, &release); err != nil {
		return nil, fmt.Errorf("fetching latest release: %w", err)
	}

	want := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
	var results []Font
	for _, asset := range release.Assets {
		base, ok := strings.CutSuffix(asset.Name, ".zip")
		if !ok || strings.ToLower(base) != want {
			continue
		}
		results = append(results, Font{
			Name:   base,
			Source: s.Name(),
			URL:    asset.DownloadURL,
			Meta:   map[string]string{"version": release.TagName},
		})
	}
	return results, nil
}

func (s *NerdFontsSource) Download(ctx context.Context, font Font) (io.ReadCloser, error) {
	if font.URL == "" {
		fonts, err := s.Search(ctx, font.Name)
		if err != nil {
			return nil, err
		}
		if len(fonts) == 0 {
			return nil, fmt.Errorf("font not found: %s", font.Name)
		}
		font = fonts[0]
	}

	body, err := fetch(ctx, s.client, font.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading font: %w", err)
	}
	return body, nil
}
