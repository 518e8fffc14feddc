package fm

import (
	"encoding/xml"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Collection is a named, user-ordered group of families.
type Collection struct {
	Name     string   `xml:"name,attr"`
	Enabled  bool     `xml:"enabled,attr"`
	Comment  string   `xml:"comment,omitempty"`
	Families []string `xml:"family"`
}

type collectionsDoc struct {
	XMLName     xml.Name     `xml:"collections"`
	Collections []Collection `xml:"collection"`
}

const collectionsTemplate = xml.Header + "<collections>\n</collections>\n"

// CollectionStore keeps collections in the order the user arranged them.
type CollectionStore struct {
	path   string
	logger Logger

	mu          sync.RWMutex
	collections []*Collection
}

func NewCollectionStore(path string, logger Logger) *CollectionStore {
	return &CollectionStore{path: path, logger: logger}
}

// Load replaces the in-memory collections with the file contents.
// Duplicate names keep their first occurrence.
func (s *CollectionStore) Load() error {
	var doc collectionsDoc
	if err := readXML(s.path, &doc, collectionsTemplate, s.logger); err != nil {
		return err
	}

	var collections []*Collection
	seen := make(map[string]bool)
	for i := range doc.Collections {
		c := doc.Collections[i]
		if c.Name == "" || seen[c.Name] {
			s.logger.Warn("skipping invalid collection", "name", c.Name)
			continue
		}
		seen[c.Name] = true
		c.Families = dedupe(c.Families)
		collections = append(collections, &c)
	}

	s.mu.Lock()
	s.collections = collections
	s.mu.Unlock()
	return nil
}

// Save writes every collection, rotating the previous file to .bak.
func (s *CollectionStore) Save() error {
	return writeXML(s.path, collectionsDoc{Collections: s.List()}, "")
}

// List returns copies of the collections in user order.
func (s *CollectionStore) List() []Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Collection, len(s.collections))
	for i, c := range s.collections {
		out[i] = clone(c)
	}
	return out
}

// Get returns a copy of the named collection.
func (s *CollectionStore) Get(name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.find(name)
	if c == nil {
		return Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return clone(c), nil
}

// Create appends a new, enabled, empty collection.
func (s *CollectionStore) Create(name, comment string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("collection name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(name) != nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	s.collections = append(s.collections, &Collection{Name: name, Comment: comment, Enabled: true})
	return nil
}

// Delete removes the named collection. Member families are untouched.
func (s *CollectionStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	s.collections = slices.Delete(s.collections, i, i+1)
	return nil
}

func (s *CollectionStore) Rename(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("collection name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(oldName)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, oldName)
	}
	if newName != oldName && s.find(newName) != nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, newName)
	}
	c.Name = newName
	return nil
}

func (s *CollectionStore) SetComment(name, comment string) error {
	return s.update(name, func(c *Collection) { c.Comment = comment })
}

// AddFamilies appends families not already in the collection.
func (s *CollectionStore) AddFamilies(name string, families ...string) error {
	return s.update(name, func(c *Collection) {
		c.Families = dedupe(append(c.Families, families...))
	})
}

func (s *CollectionStore) RemoveFamilies(name string, families ...string) error {
	return s.update(name, func(c *Collection) {
		c.Families = slices.DeleteFunc(c.Families, func(f string) bool {
			return slices.Contains(families, f)
		})
	})
}

// SetEnabled records the collection's flag. Propagating it to member
// families is the caller's job.
func (s *CollectionStore) SetEnabled(name string, enabled bool) error {
	return s.update(name, func(c *Collection) { c.Enabled = enabled })
}

// Move places the named collection at index, clamped to the valid range.
func (s *CollectionStore) Move(name string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	c := s.collections[i]
	s.collections = slices.Delete(s.collections, i, i+1)
	index = max(0, min(index, len(s.collections)))
	s.collections = slices.Insert(s.collections, index, c)
	return nil
}

// Containing returns the names of collections that include family.
func (s *CollectionStore) Containing(family string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, c := range s.collections {
		if slices.Contains(c.Families, family) {
			names = append(names, c.Name)
		}
	}
	return names
}

func (s *CollectionStore) update(name string, fn func(c *Collection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(name)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	fn(c)
	return nil
}

func (s *CollectionStore) find(name string) *Collection {
	if i := s.index(name); i >= 0 {
		return s.collections[i]
	}
	return nil
}

func (s *CollectionStore) index(name string) int {
	return slices.IndexFunc(s.collections, func(c *Collection) bool { return c.Name == name })
}

func clone(c *Collection) Collection {
	out := *c
	out.Families = slices.Clone(c.Families)
	return out
}

func dedupe(families []string) []string {
	seen := make(map[string]bool, len(families))
	out := families[:0:0]
	for _, f := range families {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
