package fm

import (
	"sort"
	"sync"
)

// Blacklist is the set of disabled families, persisted as a fontconfig
// rejectfont fragment so fontconfig itself stops matching them.
type Blacklist struct {
	path   string
	logger Logger

	mu       sync.RWMutex
	families map[string]struct{}
}

func NewBlacklist(path string, logger Logger) *Blacklist {
	return &Blacklist{path: path, logger: logger, families: make(map[string]struct{})}
}

// Path returns the file the blacklist is stored in.
func (b *Blacklist) Path() string {
	return b.path
}

// Load replaces the in-memory set with the file contents.
func (b *Blacklist) Load() error {
	var doc fcConfig
	if err := readXML(b.path, &doc, fcTemplate, b.logger); err != nil {
		return err
	}

	families := make(map[string]struct{})
	if doc.SelectFont != nil {
		for _, p := range doc.SelectFont.Reject.Patterns {
			for _, elt := range p.Elts {
				if elt.Name == "family" && elt.String != "" {
					families[elt.String] = struct{}{}
				}
			}
		}
	}

	b.mu.Lock()
	b.families = families
	b.mu.Unlock()
	return nil
}

// Save writes the blacklist, rotating the previous file to .bak.
func (b *Blacklist) Save() error {
	doc := fcConfig{SelectFont: &fcSelectFont{}}
	for _, family := range b.Families() {
		doc.SelectFont.Reject.Patterns = append(doc.SelectFont.Reject.Patterns, fcPattern{
			Elts: []fcPatElt{{Name: "family", String: family}},
		})
	}
	return writeXML(b.path, doc, fontconfigDoctype)
}

// Disable adds families to the blacklist. It reports whether anything changed.
func (b *Blacklist) Disable(families ...string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	for _, f := range families {
		if _, ok := b.families[f]; !ok {
			b.families[f] = struct{}{}
			changed = true
		}
	}
	return changed
}

// Enable removes families from the blacklist. It reports whether anything changed.
func (b *Blacklist) Enable(families ...string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	for _, f := range families {
		if _, ok := b.families[f]; ok {
			delete(b.families, f)
			changed = true
		}
	}
	return changed
}

func (b *Blacklist) IsDisabled(family string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.families[family]
	return ok
}

// Families returns the disabled families, sorted.
func (b *Blacklist) Families() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.families))
	for f := range b.families {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
