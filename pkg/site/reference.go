package site

import (
	"html/template"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/teliax/ringer-docs/pkg/spec"
)

// cardDescriptionLimit is the number of characters of info.description
// shown on a spec card.
const cardDescriptionLimit = 120

// card is one spec on the reference index.
type card struct {
	Category    string
	Name        string
	Title       string
	Description string
	Version     string
	URL         string
}

type referenceView struct {
	Category string
	Cards    []card
}

type specView struct {
	Category    string
	Name        string
	Info        spec.Info
	Description template.HTML
	Servers     []spec.Server
	Endpoints   []endpointLink
	BaseURL     string
}

type endpointLink struct {
	Method  string
	Path    string
	Summary string
	URL     string
}

func (h *Handler) handleReference(w http.ResponseWriter, _ *http.Request) {
	refs := h.specs.List()
	h.metrics.SetSpecCount(len(refs))

	h.render(w, http.StatusOK, "reference.html", &page{
		Title:   "API Reference",
		Section: "reference",
		Data:    referenceView{Cards: h.cards(refs)},
	})
}

func (h *Handler) handleCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	refs := h.specs.ListCategory(category)
	if len(refs) == 0 {
		h.NotFound(w, r)

		return
	}

	h.render(w, http.StatusOK, "reference.html", &page{
		Title:   category,
		Section: "reference",
		Data:    referenceView{Category: category, Cards: h.cards(refs)},
	})
}

func (h *Handler) cards(refs []spec.Ref) []card {
	cards := make([]card, 0, len(refs))

	for _, ref := range refs {
		c := card{
			Category: ref.Category,
			Name:     ref.Name,
			Title:    ref.Name,
			URL:      "/api-reference/" + ref.Category + "/" + ref.Name,
		}

		doc := h.load(ref.Category, ref.Name)
		if doc != nil {
			info := doc.Info()

			c.Title = doc.Title()
			c.Description = truncate(info.Description, cardDescriptionLimit)
			c.Version = info.Version
		}

		cards = append(cards, c)
	}

	return cards
}

func (h *Handler) handleSpec(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")

	doc := h.load(category, name)
	if doc == nil {
		h.NotFound(w, r)

		return
	}

	for _, group := range spec.Collisions(doc) {
		h.log.WithFields(logrus.Fields{
			"category": category,
			"spec":     name,
			"slug":     spec.Slug(group[0]),
			"paths":    group,
		}).Warn("Endpoint paths share a URL segment, only the first is reachable")
	}

	base := "/api-reference/" + category + "/" + name
	info := doc.Info()

	view := specView{
		Category:    category,
		Name:        name,
		Info:        info,
		Description: h.markdown(info.Description),
		Servers:     doc.Servers(),
		BaseURL:     base,
	}

	for _, e := range spec.Entries(doc) {
		view.Endpoints = append(view.Endpoints, endpointLink{
			Method:  e.Method,
			Path:    e.Path,
			Summary: e.Summary,
			URL:     base + "/" + e.Slug(),
		})
	}

	h.render(w, http.StatusOK, "spec.html", &page{
		Title:   doc.Title(),
		Section: "reference",
		Data:    view,
	})
}

type swaggerView struct {
	Title   string
	BaseURL string
	SpecURL string
}

func (h *Handler) handleSwagger(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")

	doc := h.load(category, name)
	if doc == nil {
		h.NotFound(w, r)

		return
	}

	base := "/api-reference/" + category + "/" + name

	h.render(w, http.StatusOK, "swagger.html", &page{
		Title:   doc.Title() + " API",
		Section: "reference",
		Data: swaggerView{
			Title:   doc.Title(),
			BaseURL: base,
			SpecURL: base + "/openapi.json",
		},
	})
}

func (h *Handler) handleSpecJSON(w http.ResponseWriter, r *http.Request) {
	doc := h.load(chi.URLParam(r, "category"), chi.URLParam(r, "spec"))
	if doc == nil {
		h.NotFound(w, r)

		return
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		h.log.WithError(err).WithField("spec", doc.Name).Error("Failed to encode spec as JSON")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *Handler) handleSpecYAML(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "spec")

	data, err := h.specs.ReadRaw(category, name)
	if err != nil {
		h.metrics.RecordSpecLoad(false)
		h.NotFound(w, r)

		return
	}

	h.metrics.RecordSpecLoad(true)

	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(data)
}

// load reads a spec through the store and records the outcome.
func (h *Handler) load(category, name string) *spec.Document {
	doc := h.specs.Load(category, name)
	h.metrics.RecordSpecLoad(doc != nil)

	return doc
}

// truncate cuts s to limit characters, appending "..." when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	return string([]rune(s)[:limit]) + "..."
}
