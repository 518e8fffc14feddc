package fm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Font represents a font that can be installed from a remote source
type Font struct {
	Name   string            // Display name of the font
	Source string            // Source identifier (e.g., "nerdfonts", "fontsource", "url")
	URL    string            // Direct URL if provided
	Meta   map[string]string // Additional metadata, kept in the installed .source.json
}

// Source defines how to interact with a font source
type Source interface {
	// Name returns the identifier for this source
	Name() string

	// Search looks for fonts matching the given name
	Search(ctx context.Context, name string) ([]Font, error)

	// Download retrieves the font data, a zip archive or a single font file
	Download(ctx context.Context, font Font) (io.ReadCloser, error)
}

const userAgent = "font-manager/1.0"

// Common HTTP client with reasonable defaults
var defaultClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	},
}

// fetch issues a GET and returns the body of a 200 response.
func fetch(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := fetch(ctx, client, url)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
