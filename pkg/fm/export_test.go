package fm

import "net/http"

// Test hooks pointing the remote sources at a local server.

func NewNerdFontsSourceAt(client *http.Client, releaseURL string) *NerdFontsSource {
	return &NerdFontsSource{client: client, releaseURL: releaseURL}
}

func NewFontSourceAPIAt(client *http.Client, apiURL, downloadURL string) *FontSourceAPI {
	return &FontSourceAPI{client: client, apiURL: apiURL, downloadURL: downloadURL}
}
