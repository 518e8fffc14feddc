package fm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// FontSourceAPI provides access to fontsource.org
type FontSourceAPI struct {
	client      *http.Client
	apiURL      string
	downloadURL string
}

func NewFontSourceAPI() *FontSourceAPI {
	return &FontSourceAPI{
		client:      defaultClient,
		apiURL:      "https://api.fontsource.org/v1/fonts",
		downloadURL: "https://r2.fontsource.org/fonts",
	}
}

func (s *FontSourceAPI) Name() string {
	return "fontsource"
}

type fontSourceFont struct {
	ID       string `json:"id"`
	Family   string `json:"family"`
	Category string `json:"category"`
	License  string `json:"license"`
}

func (s *FontSourceAPI) Search(ctx context.Context, name string) ([]Font, error) {
	var fonts []fontSourceFont
	reqURL := s.apiURL + "?family=" + url.QueryEscape(name)
	if err := getJSON(ctx, s.client, reqURL, &fonts); err != nil {
		return nil, fmt.Errorf("searching fonts: %w", err)
	}

	results := make([]Font, 0, len(fonts))
	for _, f := range fonts {
		results = append(results, Font{
			Name:   f.Family,
			Source: s.Name(),
			URL:    fmt.Sprintf("%s/%s@latest/download.zip", s.downloadURL, f.ID),
			Meta:   map[string]string{"id": f.ID, "category": f.Category, "license": f.License},
		})
	}
	return results, nil
}

func (s *FontSourceAPI) Download(ctx context.Context, font Font) (io.ReadCloser, error) {
	downloadURL := font.URL
	if downloadURL == "" {
		// If we don't have the URL, try to search for it
		fonts, err := s.Search(ctx, font.Name)
		if err != nil {
			return nil, fmt.Errorf("searching for font ID: %w", err)
		}
		if len(fonts) == 0 {
			return nil, fmt.Errorf("font not found: %s", font.Name)
		}
		downloadURL = fonts[0].URL
	}

	body, err := fetch(ctx, s.client, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("downloading font: %w", err)
	}
	return body, nil
}
