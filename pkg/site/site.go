// Package site renders the documentation pages: the markdown guides and the
// API reference generated from the OpenAPI files of the spec store.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/teliax/ringer-docs/pkg/config"
	"github.com/teliax/ringer-docs/pkg/metrics"
	"github.com/teliax/ringer-docs/pkg/spec"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed content
var contentFS embed.FS

// pageTemplates are rendered inside templates/layout.html.
var pageTemplates = []string{
	"404.html",
	"guide.html",
	"reference.html",
	"spec.html",
	"endpoint.html",
	"swagger.html",
}

// Handler serves the documentation pages.
type Handler struct {
	log     logrus.FieldLogger
	cfg     config.SiteConfig
	specs   *spec.Store
	metrics *metrics.Metrics
	pages   map[string]*template.Template
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

// New creates a page handler. Templates are parsed once here.
func New(log logrus.FieldLogger, cfg config.SiteConfig, specs *spec.Store, m *metrics.Metrics) (*Handler, error) {
	h := &Handler{
		log:     log.WithField("component", "site"),
		cfg:     cfg,
		specs:   specs,
		metrics: m,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		policy: bluemonday.UGCPolicy(),
	}

	if err := h.parseTemplates(); err != nil {
		return nil, err
	}

	return h, nil
}

// Register mounts the page routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusMovedPermanently)
	})

	r.Get("/docs", h.handleGuide)
	r.Get("/docs/*", h.handleGuide)

	r.Route("/api-reference", func(r chi.Router) {
		r.Get("/", h.handleReference)
		r.Get("/{category}", h.handleCategory)
		r.Get("/{category}/{spec}", h.handleSpec)
		r.Get("/{category}/{spec}/swagger", h.handleSwagger)
		r.Get("/{category}/{spec}/openapi.json", h.handleSpecJSON)
		r.Get("/{category}/{spec}/openapi.yaml", h.handleSpecYAML)
		r.Get("/{category}/{spec}/{endpoint}", h.handleEndpoint)
	})
}

// NotFound renders the HTML 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "404.html", &page{
		Title:   "Page not found",
		Section: sectionFor(r.URL.Path),
		Data:    r.URL.Path,
	})
}

func (h *Handler) parseTemplates() error {
	funcs := template.FuncMap{
		"upper":       strings.ToUpper,
		"methodClass": methodClass,
	}

	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return fmt.Errorf("parsing layout: %w", err)
	}

	h.pages = make(map[string]*template.Template, len(pageTemplates))

	for _, name := range pageTemplates {
		clone, err := base.Clone()
		if err != nil {
			return fmt.Errorf("cloning layout for %s: %w", name, err)
		}

		t, err := clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}

		h.pages[name] = t
	}

	return nil
}

// page is the data passed to every template.
type page struct {
	Site    config.SiteConfig
	Title   string
	Section string
	Guides  []guide
	Nav     []navCategory
	Data    any
}

// navCategory is one sidebar group of the API reference.
type navCategory struct {
	Name  string
	Specs []string
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, p *page) {
	t, ok := h.pages[name]
	if !ok {
		h.log.WithField("template", name).Error("Unknown template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	p.Site = h.cfg
	p.Guides = guides

	if p.Section == "reference" {
		p.Nav = h.nav()
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", p); err != nil {
		h.log.WithError(err).WithField("template", name).Error("Failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) nav() []navCategory {
	var (
		nav   []navCategory
		index = make(map[string]int)
	)

	for _, ref := range h.specs.List() {
		i, ok := index[ref.Category]
		if !ok {
			i = len(nav)
			index[ref.Category] = i

			nav = append(nav, navCategory{Name: ref.Category})
		}

		nav[i].Specs = append(nav[i].Specs, ref.Name)
	}

	return nav
}

// markdown renders CommonMark to sanitized HTML.
func (h *Handler) markdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := h.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src)) //nolint:gosec // escaped
	}

	return template.HTML(h.policy.SanitizeBytes(buf.Bytes())) //nolint:gosec // sanitized
}

func sectionFor(path string) string {
	if strings.HasPrefix(path, "/api-reference") {
		return "reference"
	}

	return "docs"
}

func methodClass(method string) string {
	switch strings.ToLower(method) {
	case "get", "post", "put", "delete", "patch":
		return "method-" + strings.ToLower(method)
	default:
		return "method-other"
	}
}

// readContent reads an embedded file below content/.
func readContent(name string) ([]byte, error) {
	return fs.ReadFile(contentFS, "content/"+name)
}
