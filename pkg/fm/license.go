package fm

import (
	"strings"
)

// License is a recognised license family.
type License struct {
	Name string
	URL  string
}

// Ordered: more specific keywords must precede the ones they contain.
var knownLicenses = []struct {
	license  License
	keywords []string
}{
	{License{"SIL Open Font License", "https://openfontlicense.org"},
		[]string{"open font license", "openfontlicense", "scripts.sil.org/ofl", " ofl"}},
	{License{"Apache License", "https://www.apache.org/licenses/LICENSE-2.0"},
		[]string{"apache license", "apache.org/licenses"}},
	{License{"GNU Lesser General Public License", "https://www.gnu.org/licenses/lgpl.html"},
		[]string{"lesser general public license", "gnu lgpl", "licenses/lgpl"}},
	{License{"GNU General Public License", "https://www.gnu.org/licenses/gpl.html"},
		[]string{"general public license", "gnu gpl", "licenses/gpl"}},
	{License{"Ubuntu Font License", "https://ubuntu.com/legal/font-licence"},
		[]string{"ubuntu font licence", "ubuntu font license"}},
	{License{"Bitstream Vera License", "https://www.gnome.org/fonts/"},
		[]string{"bitstream vera", "bitstream, inc"}},
	{License{"GUST Font License", "https://www.gust.org.pl/fonts/licenses"},
		[]string{"gust font license", "gust.org.pl"}},
	{License{"MIT License", "https://opensource.org/licenses/MIT"},
		[]string{"mit license", "opensource.org/licenses/mit"}},
	{License{"Creative Commons", "https://creativecommons.org/licenses/"},
		[]string{"creative commons", "creativecommons.org"}},
	{License{"Public Domain", ""},
		[]string{"public domain"}},
	{License{"Freeware", ""},
		[]string{"freeware", "free for personal", "free for commercial"}},
}

// Proprietary is reported when no known license matches.
var Proprietary = License{Name: "Proprietary"}

// ClassifyLicense matches license text, URL and copyright notice against
// known license families.
func ClassifyLicense(text, url, copyright string) License {
	haystack := " " + strings.ToLower(strings.Join([]string{text, url, copyright}, " "))
	for _, known := range knownLicenses {
		for _, kw := range known.keywords {
			if strings.Contains(haystack, kw) {
				l := known.license
				if url != "" {
					l.URL = url
				}
				return l
			}
		}
	}
	l := Proprietary
	l.URL = url
	return l
}

// License classifies the record's license.
func (r *FontRecord) License() License {
	return ClassifyLicense(r.LicenseData, r.LicenseURL, r.Copyright)
}
