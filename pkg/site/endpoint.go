package site

import (
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teliax/ringer-docs/pkg/spec"
)

type endpointView struct {
	Category    string
	Name        string
	BaseURL     string
	Slug        string
	Method      string
	Path        string
	Summary     string
	Description template.HTML
	Methods     []string
	Parameters  []parameterView
	RequestBody *requestBodyView
	Responses   []responseView
	Info        spec.Info
}

type parameterView struct {
	Name        string
	In          string
	Required    bool
	Type        string
	Description template.HTML
}

type requestBodyView struct {
	Description template.HTML
	Required    bool
	Content     []mediaView
}

type responseView struct {
	Status      string
	Class       string
	Description template.HTML
	Content     []mediaView
}

type mediaView struct {
	Type    string
	Example string
}

func (h *Handler) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")
	// Templates escape the braces of path parameters, and chi matches on the
	// escaped path, so the segment arrives still encoded.
	slug, err := url.PathUnescape(chi.URLParam(r, "endpoint"))
	if err != nil {
		h.NotFound(w, r)

		return
	}

	doc := h.load(category, name)
	if doc == nil {
		h.NotFound(w, r)

		return
	}

	path, ok := spec.ResolveSlug(doc, slug)
	if !ok {
		h.NotFound(w, r)

		return
	}

	method, op, ok := spec.FirstOperation(doc, path)
	if !ok {
		h.NotFound(w, r)

		return
	}

	if requested := strings.ToLower(r.URL.Query().Get("method")); requested != "" {
		if !slices.Contains(spec.Methods, requested) {
			h.NotFound(w, r)

			return
		}

		op, ok = spec.Operation(doc, path, requested)
		if !ok {
			h.NotFound(w, r)

			return
		}

		method = requested
	}

	view := endpointView{
		Category:    category,
		Name:        name,
		BaseURL:     "/api-reference/" + category + "/" + name,
		Slug:        slug,
		Method:      method,
		Path:        path,
		Summary:     op.Get("summary").String(),
		Description: h.markdown(op.Get("description").String()),
		Methods:     spec.PathMethods(doc, path),
		Parameters:  h.parameters(doc, doc.Paths().Get(path), op),
		RequestBody: h.requestBody(doc, op),
		Responses:   h.responses(doc, op),
		Info:        doc.Info(),
	}

	title := view.Summary
	if title == "" {
		title = strings.ToUpper(method) + " " + path
	}

	h.render(w, http.StatusOK, "endpoint.html", &page{
		Title:   title,
		Section: "reference",
		Data:    view,
	})
}

// parameters merges path-level and operation-level parameters. An operation
// parameter replaces a path parameter with the same name and location.
func (h *Handler) parameters(doc *spec.Document, item, op spec.Node) []parameterView {
	var (
		params []parameterView
		index  = make(map[string]int)
	)

	add := func(n spec.Node) {
		n = doc.Resolve(n)

		p := parameterView{
			Name:        n.Get("name").String(),
			In:          n.Get("in").String(),
			Required:    n.Get("required").Bool(),
			Type:        schemaType(doc, n.Get("schema")),
			Description: h.markdown(n.Get("description").String()),
		}

		key := p.In + "\x00" + p.Name
		if i, ok := index[key]; ok {
			params[i] = p

			return
		}

		index[key] = len(params)
		params = append(params, p)
	}

	for _, n := range item.Get("parameters").Items() {
		add(n)
	}

	for _, n := range op.Get("parameters").Items() {
		add(n)
	}

	return params
}

func (h *Handler) requestBody(doc *spec.Document, op spec.Node) *requestBodyView {
	body := doc.Resolve(op.Get("requestBody"))
	if !body.IsMap() {
		return nil
	}

	return &requestBodyView{
		Description: h.markdown(body.Get("description").String()),
		Required:    body.Get("required").Bool(),
		Content:     media(doc, body.Get("content")),
	}
}

func (h *Handler) responses(doc *spec.Document, op spec.Node) []responseView {
	pairs := op.Get("responses").Pairs()
	out := make([]responseView, 0, len(pairs))

	for _, pair := range pairs {
		resp := doc.Resolve(pair.Value)

		out = append(out, responseView{
			Status:      pair.Key,
			Class:       statusClass(pair.Key),
			Description: h.markdown(resp.Get("description").String()),
			Content:     media(doc, resp.Get("content")),
		})
	}

	return out
}

// media lists a content map in declared order with a pretty-printed
// example. The first entry of "examples" is used when "example" is absent.
func media(doc *spec.Document, content spec.Node) []mediaView {
	var out []mediaView

	for _, pair := range content.Pairs() {
		m := mediaView{Type: pair.Key}

		if example := pair.Value.Get("example"); example.Present() {
			m.Example = example.IndentJSON()
		} else if examples := pair.Value.Get("examples").Pairs(); len(examples) > 0 {
			if value := doc.Resolve(examples[0].Value).Get("value"); value.Present() {
				m.Example = value.IndentJSON()
			}
		}

		out = append(out, m)
	}

	return out
}

// schemaType describes a parameter schema as "type" or "array[type]".
func schemaType(doc *spec.Document, schema spec.Node) string {
	schema = doc.Resolve(schema)

	t := schema.Get("type").String()
	if t == "array" {
		if items := doc.Resolve(schema.Get("items")).Get("type").String(); items != "" {
			return "array[" + items + "]"
		}
	}

	return t
}

func statusClass(status string) string {
	switch {
	case strings.HasPrefix(status, "2"):
		return "status-success"
	case strings.HasPrefix(status, "4"):
		return "status-warning"
	case strings.HasPrefix(status, "5"):
		return "status-error"
	default:
		return "status-info"
	}
}
