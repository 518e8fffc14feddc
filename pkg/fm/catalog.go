package fm

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Family groups the faces sharing a family name, keyed by style.
type Family struct {
	Name    string
	Styles  map[string]*FontRecord
	Enabled bool
}

// StyleNames returns the family's styles, regular-looking styles first.
func (f *Family) StyleNames() []string {
	names := make([]string, 0, len(f.Styles))
	for name := range f.Styles {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := styleRank(names[i]), styleRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

// Owner is User when any face of the family is user-owned.
func (f *Family) Owner() Owner {
	for _, r := range f.Styles {
		if r.Owner == User {
			return User
		}
	}
	return System
}

// Files returns the distinct files backing the family.
func (f *Family) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, r := range f.Styles {
		if !seen[r.Filepath] {
			seen[r.Filepath] = true
			files = append(files, r.Filepath)
		}
	}
	sort.Strings(files)
	return files
}

func styleRank(style string) int {
	switch strings.ToLower(style) {
	case "regular", "normal", "book", "roman":
		return 0
	}
	return 1
}

// Catalog is the in-memory family/style view of a set of records.
// A Catalog is not safe for concurrent use.
type Catalog struct {
	families map[string]*Family
	collator *collate.Collator
	folder   cases.Caser
}

// NewCatalog groups records by family. disabled reports whether a family
// is blacklisted; it may be nil. When two files provide the same
// family and style, the first record wins.
func NewCatalog(records []FontRecord, disabled func(family string) bool) *Catalog {
	c := &Catalog{
		families: make(map[string]*Family),
		collator: collate.New(language.Und, collate.IgnoreCase),
		folder:   cases.Fold(),
	}
	for i := range records {
		r := records[i]
		fam, ok := c.families[r.Family]
		if !ok {
			enabled := disabled == nil || !disabled(r.Family)
			fam = &Family{Name: r.Family, Styles: make(map[string]*FontRecord), Enabled: enabled}
			c.families[r.Family] = fam
		}
		if _, exists := fam.Styles[r.Style]; !exists {
			fam.Styles[r.Style] = &r
		}
	}
	return c
}

// Len returns the number of families.
func (c *Catalog) Len() int {
	return len(c.families)
}

// Family returns the named family or nil.
func (c *Catalog) Family(name string) *Family {
	return c.families[name]
}

// Families returns every family sorted by collation order.
func (c *Catalog) Families() []*Family {
	out := make([]*Family, 0, len(c.families))
	for _, f := range c.families {
		out = append(out, f)
	}
	c.sort(out)
	return out
}

// Names returns the sorted family names.
func (c *Catalog) Names() []string {
	families := c.Families()
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = f.Name
	}
	return names
}

// Search returns the families where the case-folded query occurs in the
// family name or in any face's style, foundry or PostScript name.
func (c *Catalog) Search(query string) []*Family {
	q := c.folder.String(strings.TrimSpace(query))
	if q == "" {
		return c.Families()
	}
	var out []*Family
	for _, f := range c.families {
		if c.matches(f, q) {
			out = append(out, f)
		}
	}
	c.sort(out)
	return out
}

func (c *Catalog) matches(f *Family, q string) bool {
	if strings.Contains(c.folder.String(f.Name), q) {
		return true
	}
	for _, r := range f.Styles {
		for _, s := range []string{r.Style, r.Foundry, r.PSName} {
			if strings.Contains(c.folder.String(s), q) {
				return true
			}
		}
	}
	return false
}

func (c *Catalog) sort(families []*Family) {
	sort.SliceStable(families, func(i, j int) bool {
		if cmp := c.collator.CompareString(families[i].Name, families[j].Name); cmp != 0 {
			return cmp < 0
		}
		return families[i].Name < families[j].Name
	})
}
