package spec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrInvalidName is returned for category or spec names that are not a
// single visible path element.
var ErrInvalidName = errors.New("invalid spec name")

// Extensions are the file extensions listed as specs, in lookup order.
var Extensions = []string{".yaml", ".yml"}

// Ref identifies one spec file by category and base name.
type Ref struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// Store reads OpenAPI documents from a <root>/<category>/<name>.yaml tree.
// Nothing is cached: every call reads from disk.
type Store struct {
	log  logrus.FieldLogger
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(log logrus.FieldLogger, dir string) *Store {
	return &Store{
		log:  log.WithField("component", "spec_store"),
		root: dir,
	}
}

// Root returns the spec directory.
func (s *Store) Root() string {
	return s.root
}

// Locate returns the file path of a spec. The .yaml file is preferred; the
// .yml file is used when no .yaml exists. The returned error wraps
// fs.ErrNotExist when neither exists.
func (s *Store) Locate(category, name string) (string, error) {
	if !validName(category) || !validName(name) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidName, category, name)
	}

	primary := filepath.Join(s.root, category, name+Extensions[0])

	for _, ext := range Extensions {
		path := filepath.Join(s.root, category, name+ext)

		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return primary, fmt.Errorf("spec %s: %w", primary, fs.ErrNotExist)
}

// ReadRaw returns the file contents of a spec.
func (s *Store) ReadRaw(category, name string) ([]byte, error) {
	path, err := s.Locate(category, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, nil
}

// Open reads and parses a spec.
func (s *Store) Open(category, name string) (*Document, error) {
	path, err := s.Locate(category, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	doc.Category = category
	doc.Name = name
	doc.Path = path

	return doc, nil
}

// Load reads and parses a spec, returning nil on any failure. Failures are
// logged and otherwise treated as absence.
func (s *Store) Load(category, name string) *Document {
	doc, err := s.Open(category, name)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"category": category,
			"spec":     name,
		}).Error("Error loading OpenAPI spec")

		return nil
	}

	return doc
}

// List enumerates every spec under the root: each visible subdirectory is a
// category and each .yaml/.yml file in it a spec. Order follows directory
// enumeration. A missing or unreadable root is logged and yields an empty
// list; an entry that cannot be read is logged and skipped.
func (s *Store) List() []Ref {
	refs, err := s.list()
	if err != nil {
		s.log.WithError(err).Error("Error getting all OpenAPI specs")

		return []Ref{}
	}

	return refs
}

// ListCategory returns the specs of a single category, in List order.
func (s *Store) ListCategory(category string) []Ref {
	var refs []Ref

	for _, ref := range s.List() {
		if ref.Category == category {
			refs = append(refs, ref)
		}
	}

	return refs
}

// Categories returns the distinct categories of List, in order.
func (s *Store) Categories() []string {
	var categories []string

	seen := make(map[string]bool)

	for _, ref := range s.List() {
		if !seen[ref.Category] {
			seen[ref.Category] = true
			categories = append(categories, ref.Category)
		}
	}

	return categories
}

func (s *Store) list() ([]Ref, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading spec root: %w", err)
	}

	refs := make([]Ref, 0)

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		categoryPath := filepath.Join(s.root, entry.Name())

		// Stat follows symlinks, so linked category directories count.
		info, err := os.Stat(categoryPath)
		if err != nil {
			s.log.WithError(err).WithField("path", categoryPath).Warn("Skipping unreadable spec directory entry")

			continue
		}

		if !info.IsDir() {
			continue
		}

		files, err := os.ReadDir(categoryPath)
		if err != nil {
			s.log.WithError(err).WithField("category", entry.Name()).Warn("Skipping unreadable spec category")

			continue
		}

		for _, file := range files {
			name := file.Name()
			if file.IsDir() || strings.HasPrefix(name, ".") || !HasSpecExtension(name) {
				continue
			}

			refs = append(refs, Ref{
				Category: entry.Name(),
				Name:     strings.TrimSuffix(name, filepath.Ext(name)),
			})
		}
	}

	return refs, nil
}

// HasSpecExtension reports whether a file name carries a listed extension.
func HasSpecExtension(name string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}

	return false
}

func validName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, "/\\\x00")
}
