package spec

import "strings"

// Methods are the HTTP methods indexed on a path item, in listing order.
var Methods = []string{"get", "post", "put", "delete", "patch"}

// Entry is one (method, path) pair of a document.
type Entry struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Summary     string `json:"summary"`
	OperationID string `json:"operationId,omitempty"`
}

// Slug returns the URL segment for the entry's path.
func (e Entry) Slug() string {
	return Slug(e.Path)
}

// Entries returns every operation of the document in declared path order.
// Within a path, methods follow Methods. A document without paths yields an
// empty, non-nil slice.
func Entries(doc *Document) []Entry {
	entries := make([]Entry, 0)

	for _, item := range doc.Paths().Pairs() {
		for _, method := range Methods {
			op := item.Value.Get(method)
			if !op.Present() {
				continue
			}

			entries = append(entries, Entry{
				Method:      method,
				Path:        item.Key,
				Summary:     op.Get("summary").String(),
				OperationID: op.Get("operationId").String(),
			})
		}
	}

	return entries
}

// Operation returns the operation object at paths[path][method]. The method
// is matched after lower-casing.
func Operation(doc *Document, path, method string) (Node, bool) {
	op := doc.Paths().Get(path).Get(strings.ToLower(method))
	if !op.Present() {
		return Node{}, false
	}

	return op, true
}

// FirstOperation returns the first present operation of a path in Methods
// order.
func FirstOperation(doc *Document, path string) (string, Node, bool) {
	item := doc.Paths().Get(path)

	for _, method := range Methods {
		if op := item.Get(method); op.Present() {
			return method, op, true
		}
	}

	return "", Node{}, false
}

// PathMethods returns the methods present on a path, in Methods order.
func PathMethods(doc *Document, path string) []string {
	var methods []string

	item := doc.Paths().Get(path)

	for _, method := range Methods {
		if item.Get(method).Present() {
			methods = append(methods, method)
		}
	}

	return methods
}

// Slug maps an endpoint path to its URL segment: one leading slash is
// dropped and every other slash becomes a hyphen.
func Slug(path string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "-")
}

// ResolveSlug maps a URL segment back to a declared path. A path matches when
// its slug equals the segment or when it equals "/"+segment. Paths are tried
// in declared order and the first match wins, so colliding slugs such as
// "/a/b" and "/a-b" resolve to whichever is declared first.
func ResolveSlug(doc *Document, slug string) (string, bool) {
	for _, path := range doc.Paths().Keys() {
		if Slug(path) == slug || path == "/"+slug {
			return path, true
		}
	}

	return "", false
}

// Collisions returns groups of declared paths that share a slug, each group in
// declared order. Only the first path of a group is reachable via ResolveSlug.
func Collisions(doc *Document) [][]string {
	var (
		order  []string
		groups = make(map[string][]string)
	)

	for _, path := range doc.Paths().Keys() {
		slug := Slug(path)
		if _, ok := groups[slug]; !ok {
			order = append(order, slug)
		}

		groups[slug] = append(groups[slug], path)
	}

	var out [][]string

	for _, slug := range order {
		if len(groups[slug]) > 1 {
			out = append(out, groups[slug])
		}
	}

	return out
}
