package extractor

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/dom"

	"github.com/PuerkitoBio/goquery"
)

var (
	modulesMarkers = []string{
		"#context_modules",
		".context_module",
		"[data-testid='context-modules']",
		".context_module_item",
	}
	containerSelectors = []string{
		"#context_modules",
		"[data-testid='context-modules']",
	}
)

// Page is a parsed modules page together with the URL it was served from.
type Page struct {
	URL  *url.URL
	Doc  *goquery.Document
	Tree *dom.Document
}

// NewPage parses r. pageURL may be empty for saved pages with no known origin,
// in which case only absolute links can be extracted. A <base href> in the
// document overrides pageURL for link resolution, as in a browser.
func NewPage(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	p := &Page{Doc: doc}
	if len(doc.Nodes) > 0 {
		p.Tree = dom.FromHTML(doc.Nodes[0])
	}
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
		}
		p.URL = u
	}
	return p, nil
}

// BaseURL is the URL relative links on the page resolve against.
func (p *Page) BaseURL() *url.URL {
	href, ok := p.Doc.Find("base[href]").First().Attr("href")
	if !ok {
		return p.URL
	}
	u, err := url.Parse(href)
	if err != nil {
		return p.URL
	}
	if p.URL != nil {
		return p.URL.ResolveReference(u)
	}
	if u.IsAbs() {
		return u
	}
	return nil
}

// CourseName is the course title Canvas shows in the breadcrumbs, falling
// back to the part of <title> after the last colon ("Course Modules: BIO 101").
func (p *Page) CourseName() string {
	crumb := p.Doc.Find("#breadcrumbs li").Eq(1).Text()
	if name := strings.Join(strings.Fields(crumb), " "); name != "" {
		return name
	}
	title := strings.TrimSpace(p.Doc.Find("title").First().Text())
	if i := strings.LastIndex(title, ":"); i >= 0 {
		title = strings.TrimSpace(title[i+1:])
	}
	return title
}

// IsModulesPage reports whether the page is a course modules listing.
func (p *Page) IsModulesPage() bool {
	return IsModulesPage(p.URL, p.Doc)
}

// Extract runs an extraction pass over the page's modules container.
func (p *Page) Extract() Result {
	res := Extract(FindContainer(p.Doc, p.Tree), p.BaseURL())
	if p.URL != nil {
		res.Debug.PageURL = p.URL.String()
	}
	return res
}

// IsModulesPage requires both a /courses/<id>/modules path and one of the
// containers Canvas renders the module list in.
func IsModulesPage(pageURL *url.URL, doc *goquery.Document) bool {
	if pageURL == nil || doc == nil || !canvas.IsModulesPath(pageURL.Path) {
		return false
	}
	for _, sel := range modulesMarkers {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// FindContainer picks the element holding the module list, falling back to
// <body>. tree must have been built from doc.
func FindContainer(doc *goquery.Document, tree *dom.Document) *dom.Node {
	if tree == nil {
		return nil
	}
	for _, sel := range containerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if n := tree.Lookup(s.Nodes[0]); n != nil {
				return n
			}
		}
	}
	return tree.Body()
}
