package site

import (
	"html/template"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// guide is one markdown page below /docs.
type guide struct {
	Slug  string
	Title string
}

// URL returns the page location.
func (g guide) URL() string {
	if g.Slug == "introduction" {
		return "/docs"
	}

	return "/docs/" + g.Slug
}

// guides is the sidebar order of the guide pages.
var guides = []guide{
	{Slug: "introduction", Title: "Introduction"},
	{Slug: "authentication", Title: "Authentication"},
	{Slug: "products/telique", Title: "Telique"},
}

type guideView struct {
	Slug string
	Body template.HTML
}

func (h *Handler) handleGuide(w http.ResponseWriter, r *http.Request) {
	slug := strings.Trim(chi.URLParam(r, "*"), "/")
	if slug == "" {
		slug = "introduction"
	}

	if path.Clean(slug) != slug || strings.HasPrefix(slug, ".") {
		h.NotFound(w, r)

		return
	}

	src, err := readContent("docs/" + slug + ".md")
	if err != nil {
		h.NotFound(w, r)

		return
	}

	h.render(w, http.StatusOK, "guide.html", &page{
		Title:   guideTitle(slug, string(src)),
		Section: "docs",
		Data: guideView{
			Slug: slug,
			Body: h.markdown(string(src)),
		},
	})
}

// guideTitle returns the first level-one heading, falling back to the
// configured sidebar title.
func guideTitle(slug, src string) string {
	for _, line := range strings.Split(src, "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(title)
		}
	}

	for _, g := range guides {
		if g.Slug == slug {
			return g.Title
		}
	}

	return slug
}
