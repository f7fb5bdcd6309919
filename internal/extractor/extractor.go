// Package extractor finds candidate file links on a rendered Canvas modules page.
package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/classify"
	"go-canvas-download/internal/dom"
	"go-canvas-download/internal/helpers"
	"go-canvas-download/internal/models"

	log "github.com/sirupsen/logrus"
)

const maxSampleHrefs = 15

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	originRegex     = regexp.MustCompile(`^https?://[^/]+`)
)

// Debug carries counters for troubleshooting a scan that found nothing.
type Debug struct {
	PageURL        string   `json:"pageUrl"`
	TotalAnchors   int      `json:"totalAnchors"`
	MatchedAnchors int      `json:"matchedAnchors"`
	SampleHrefs    []string `json:"sampleHrefs"`
}

// Result is the outcome of one extraction pass.
type Result struct {
	Files []models.CandidateFile `json:"files"`
	Debug Debug                  `json:"debug"`
}

// Extract scans container for links to course files. Relative hrefs are
// resolved against base; a nil base accepts absolute hrefs only.
func Extract(container *dom.Node, base *url.URL) Result {
	res := Result{Files: []models.CandidateFile{}, Debug: Debug{SampleHrefs: []string{}}}
	if base != nil {
		res.Debug.PageURL = base.String()
	}
	if container == nil {
		return res
	}

	anchors := container.FindAll(isCandidateAnchor)
	res.Debug.TotalAnchors = len(anchors)
	seen := make(map[string]bool)

	for _, anchor := range anchors {
		href, ok := resolveHref(anchor.Attr("href"), base)
		if !ok {
			continue
		}

		if len(res.Debug.SampleHrefs) < maxSampleHrefs {
			short := originRegex.ReplaceAllString(href, "")
			if !slices.Contains(res.Debug.SampleHrefs, short) {
				res.Debug.SampleHrefs = append(res.Debug.SampleHrefs, short)
			}
		}

		moduleItemLink := canvas.IsModuleItemURL(href)
		directFileLink := canvas.IsFileURL(href)
		extensionLink := canvas.HasFileExtension(href)
		if !moduleItemLink && !directFileLink && !extensionLink {
			continue
		}

		// Module items are only worth a closer look when the URL alone says nothing.
		if moduleItemLink && !directFileLink && !extensionLink {
			if row := classify.FindModuleItemRow(anchor); row != nil && !classify.IsFileRow(row, anchor) {
				log.Debugf("Skipping non-file module item %s", href)
				continue
			}
		}

		if seen[href] {
			continue
		}
		seen[href] = true
		res.Debug.MatchedAnchors++

		candidate, keep := buildCandidate(anchor, href, moduleItemLink, directFileLink, extensionLink)
		if !keep {
			log.Debugf("Skipping non-presentation %q (%s)", candidate.Title, href)
			continue
		}
		res.Files = append(res.Files, candidate)
	}

	return res
}

func buildCandidate(anchor *dom.Node, href string, moduleItemLink, directFileLink, extensionLink bool) (models.CandidateFile, bool) {
	title := anchorTitle(anchor)

	filename := helpers.NormalizeFilenameFromURL(href)
	if filename == "" && title != "" && !helpers.IsNumeric(title) {
		filename = title
	}

	var fileType models.FileType
	if extensionLink || directFileLink {
		fileType = helpers.DetectFileTypeFromURL(href)
	} else {
		name := title
		if name == "" {
			name = filename
		}
		fileType = helpers.DetectFileTypeFromName(name)
	}

	source := models.SourceExtension
	switch {
	case directFileLink:
		source = models.SourceDirect
	case moduleItemLink:
		source = models.SourceModuleItem
	}

	c := models.CandidateFile{
		ID:       helpers.HashID(title, href),
		Title:    title,
		URL:      href,
		Filename: filename,
		Type:     fileType,
		Source:   source,
	}
	if c.Title == "" {
		c.Title = filename
	}
	if c.Title == "" {
		c.Title = href
	}

	// A title can only confirm a presentation; "Lecture 4.10" or "Node.js"
	// look like extensions, so only the filename may rule one out.
	titlePres, _ := helpers.IsPresentationName(title)
	filePres, fileDecided := helpers.IsPresentationName(filename)
	switch {
	case titlePres || filePres:
	case fileDecided:
		return c, false
	default:
		c.NeedsTypeCheck = true
	}
	return c, true
}

// anchorTitle is the first non-empty of data-title, title, aria-label and
// text, with runs of whitespace collapsed.
func anchorTitle(anchor *dom.Node) string {
	for _, raw := range []string{
		anchor.Attr("data-title"),
		anchor.Attr("title"),
		anchor.Attr("aria-label"),
		anchor.TextContent(),
	} {
		if t := strings.TrimSpace(whitespaceRegex.ReplaceAllString(raw, " ")); t != "" {
			return t
		}
	}
	return ""
}

// isCandidateAnchor matches the union of
//
//	.context_module_item a, a.ig-title, a.item_link, .ig-title a,
//	a[href*='/modules/items/'], a[href*='/files/']
func isCandidateAnchor(n *dom.Node) bool {
	if !n.Is("a") {
		return false
	}
	if n.HasClass("ig-title") || n.HasClass("item_link") {
		return true
	}
	href := n.Attr("href")
	if strings.Contains(href, "/modules/items/") || strings.Contains(href, "/files/") {
		return true
	}
	return n.Parent.Closest(func(p *dom.Node) bool {
		return p.HasClass("context_module_item") || p.HasClass("ig-title")
	}) != nil
}

func resolveHref(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// Summary is the one-line footer shown after a scan.
func Summary(files []models.CandidateFile) string {
	pending := 0
	for _, f := range files {
		if f.NeedsTypeCheck {
			pending++
		}
	}
	summary := fmt.Sprintf("Found %d presentation(s)", len(files))
	if pending > 0 {
		summary += fmt.Sprintf(" (%d confirmed, %d pending)", len(files)-pending, pending)
	}
	return summary
}
