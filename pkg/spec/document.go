package spec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned when a file holds no YAML document.
var ErrEmptyDocument = errors.New("empty document")

// maxRefDepth bounds $ref chains followed by Resolve.
const maxRefDepth = 16

// Document is a parsed OpenAPI specification. It is never mutated after
// Parse returns.
type Document struct {
	Category string
	Name     string
	Path     string
	Raw      []byte

	root Node
}

// Info is the projection of the document's info object used by the pages.
type Info struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Contact     *Contact `json:"contact,omitempty"`
}

// Contact is the info.contact object.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Server is one entry of the servers list.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Parse parses YAML (or JSON) bytes into a Document. The root must be a
// mapping.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	node := wrap(&root)
	if !node.Exists() {
		return nil, ErrEmptyDocument
	}

	if !node.IsMap() {
		return nil, fmt.Errorf("document root is not a mapping (line %d)", node.Line())
	}

	return &Document{Raw: data, root: node}, nil
}

// Root returns the top-level mapping.
func (d *Document) Root() Node {
	if d == nil {
		return Node{}
	}

	return d.root
}

// Paths returns the paths mapping.
func (d *Document) Paths() Node {
	return d.Root().Get("paths")
}

// Info returns the info object. Missing fields are empty.
func (d *Document) Info() Info {
	info := d.Root().Get("info")

	out := Info{
		Title:       info.Get("title").String(),
		Description: info.Get("description").String(),
		Version:     info.Get("version").String(),
	}

	if contact := info.Get("contact"); contact.IsMap() {
		out.Contact = &Contact{
			Name:  contact.Get("name").String(),
			Email: contact.Get("email").String(),
			URL:   contact.Get("url").String(),
		}
	}

	return out
}

// Title returns info.title, falling back to the spec name.
func (d *Document) Title() string {
	if title := d.Info().Title; title != "" {
		return title
	}

	if d == nil {
		return ""
	}

	return d.Name
}

// Servers returns the servers list, skipping entries without a url.
func (d *Document) Servers() []Server {
	var servers []Server

	for _, s := range d.Root().Get("servers").Items() {
		url := s.Get("url").String()
		if url == "" {
			continue
		}

		servers = append(servers, Server{URL: url, Description: s.Get("description").String()})
	}

	return servers
}

// MarshalJSON encodes the whole document as JSON in declared key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Root().MarshalJSON()
}

// Resolve follows a local "$ref" (for example "#/components/schemas/Pet")
// and returns the referenced node. Nodes without a ref, external refs and
// dangling refs are returned unchanged.
func (d *Document) Resolve(n Node) Node {
	for depth := 0; depth < maxRefDepth; depth++ {
		ref := n.Get("$ref").String()
		if ref == "" {
			return n
		}

		target, ok := d.pointer(ref)
		if !ok {
			return n
		}

		n = target
	}

	return n
}

// pointer evaluates a local JSON pointer against the document root.
func (d *Document) pointer(ref string) (Node, bool) {
	if !strings.HasPrefix(ref, "#/") {
		return Node{}, false
	}

	cur := d.Root()

	for _, token := range strings.Split(ref[2:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")

		switch {
		case cur.IsMap():
			cur = cur.Get(token)
		case cur.IsList():
			i, err := strconv.Atoi(token)
			if err != nil {
				return Node{}, false
			}

			cur = cur.Index(i)
		default:
			return Node{}, false
		}

		if !cur.Exists() {
			return Node{}, false
		}
	}

	return cur, true
}
